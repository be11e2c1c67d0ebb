package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gregor-bridge/internal/infrastructure/config"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is in milliseconds.
	defaultDisconnectQuiesce = 1000

	defaultKeepAlive = 60 * time.Second
	maxQoS           = 2
	tlsMinVersion    = tls.VersionTLS12
)

// brokerURL renders the paho broker address for cfg.
func brokerURL(cfg config.MQTTConfig) string {
	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port)
}

// buildClientOptions maps the mqtt config section onto paho options.
// Sessions are clean; reconnects back off from InitialDelay to MaxDelay.
func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(brokerURL(cfg))
	opts.SetClientID(cfg.Broker.ClientID)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second)
	opts.SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second)
	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)

	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tlsMinVersion})
	}

	return opts
}

// statusPayload is published retained on the system status topic.
type statusPayload struct {
	Status    string `json:"status"`
	ClientID  string `json:"client_id"`
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp"`
}

func (p statusPayload) String() string {
	data, err := json.Marshal(p)
	if err != nil {
		return `{"status":"` + p.Status + `"}`
	}
	return string(data)
}

// configureLWT registers a retained QoS 1 "offline" will on the status topic.
func configureLWT(opts *pahomqtt.ClientOptions, topics Topics, clientID string) {
	will := statusPayload{
		Status:    "offline",
		ClientID:  clientID,
		Reason:    "unexpected_disconnect",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	opts.SetWill(topics.SystemStatus(), will.String(), 1, true)
}

func buildOnlinePayload(clientID string) string {
	return statusPayload{
		Status:    "online",
		ClientID:  clientID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}.String()
}

func buildOfflinePayload(clientID string) string {
	return statusPayload{
		Status:    "offline",
		ClientID:  clientID,
		Reason:    "graceful_shutdown",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}.String()
}
