// Package mqtt connects the bridge to an MQTT broker.
//
// The broker is where the bridge exposes its entity model: retained state
// for every sensor, cover, device and room mode, plus command topics for
// drives and rooms. This package only handles the connection; the topic
// payloads are defined in internal/bridge.
//
// # Topic Layout
//
//	gregor/state/{mac}/{kind}      sensor state (retained)
//	gregor/state/{mac}/cover       drive cover state (retained)
//	gregor/state/{mac}/entity      device status and attributes (retained)
//	gregor/state/room/{id}/mode    room mode select (retained)
//	gregor/command/{drive|room}/{id}
//	gregor/ack/{drive|room}/{id}
//	gregor/health/bridge           periodic health (retained)
//	gregor/system/status           online/offline, also the LWT
//
// The "gregor" root is configurable with mqtt.topic_prefix.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(client.Topics().AllCommands(), 1,
//	    func(topic string, payload []byte) error {
//	        return handle(topic, payload)
//	    })
//
// Tests that need a running broker carry the integration build tag:
//
//	go test -tags=integration ./internal/infrastructure/mqtt/...
package mqtt
