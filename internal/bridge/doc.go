// Package bridge publishes the device registry on MQTT and accepts commands.
//
// State topics are retained so a dashboard or automation engine that
// connects late sees the current value of every entity:
//
//	gregor/state/{mac}/{kind}      SensorStateMessage
//	gregor/state/{mac}/cover       CoverStateMessage
//	gregor/state/{mac}/entity      EntityStateMessage
//	gregor/state/room/{id}/mode    ModeStateMessage
//	gregor/health/bridge           HealthMessage
//
// Commands arrive as CommandMessage JSON:
//
//	gregor/command/drive/42   {"id":"c1","command":"open"}
//	gregor/command/drive/42   {"id":"c2","command":"close"}
//	gregor/command/room/9     {"id":"c3","command":"set_mode","parameters":{"mode":"airing"}}
//
// Each command is answered with an AckMessage on gregor/ack/{drive|room}/{id}.
// A failed ack carries one of the ErrCode values, so callers can tell a
// missing room (NO_ROOM) from a rejected cloud token (UPSTREAM_UNAUTHORISED).
//
// The bridge does not poll. It reacts to registry events produced by the
// poll cycle and to the optimistic transitions made by the command
// dispatcher.
package bridge
