// Gregor Bridge - MyGregor cloud to home automation bridge
//
// This is the main entry point for the bridge. It polls the MyGregor cloud
// for Station climate sensors and Drive shading devices, keeps a registry of
// long-lived entities, and exposes them on MQTT and a local HTTP API.
//
// Usage:
//
//	gregorbridge                  run the bridge
//	gregorbridge token [flags]    mint a local API access token
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/gregor-bridge/internal/api"
	"github.com/nerrad567/gregor-bridge/internal/auth"
	"github.com/nerrad567/gregor-bridge/internal/bridge"
	"github.com/nerrad567/gregor-bridge/internal/cloud"
	"github.com/nerrad567/gregor-bridge/internal/command"
	"github.com/nerrad567/gregor-bridge/internal/device"
	"github.com/nerrad567/gregor-bridge/internal/infrastructure/config"
	"github.com/nerrad567/gregor-bridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/gregor-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/gregor-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/gregor-bridge/internal/poll"
	"github.com/nerrad567/gregor-bridge/internal/registry"
	"github.com/nerrad567/gregor-bridge/internal/scheduler"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	if len(os.Args) > 1 && os.Args[1] == "token" {
		if err := runToken(os.Args[2:], os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Cancel on Ctrl+C or SIGTERM for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
// It blocks until ctx is cancelled and returns nil on clean shutdown.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Gregor Bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Cloud session
	client := cloud.NewClient(cloud.Options{
		BaseURL: cfg.Cloud.BaseURL,
		Timeout: cfg.GetCloudTimeout(),
		Logger:  log,
	})
	if err := authenticate(ctx, client, cfg.Cloud); err != nil {
		return fmt.Errorf("cloud session: %w", err)
	}
	log.Info("cloud session established", "base_url", cfg.Cloud.BaseURL)

	devices, err := client.FetchDevices(ctx, true, true)
	if err != nil {
		return fmt.Errorf("fetching devices: %w", err)
	}
	devices, err = filterDevices(devices, cfg.Cloud.Devices)
	if err != nil {
		return fmt.Errorf("filtering devices: %w", err)
	}
	reportMissingDevices(ctx, client, devices, cfg.Cloud.Devices, log)

	// Entity registry
	stalePolicy, err := registry.ParseStalePolicy(cfg.Registry.StalePolicy)
	if err != nil {
		return fmt.Errorf("registry: %w", err)
	}
	reg := registry.New(client, registry.Options{
		StalePolicy: stalePolicy,
		Logger:      log,
	})
	provisioned := reg.Provision(devices)
	rooms := seedRooms(ctx, client, reg, log)
	log.Info("device registry initialised",
		"devices", len(devices),
		"provisioned", provisioned,
		"rooms", rooms,
	)

	cycle := poll.New(client, reg)
	cycle.SetLogger(log)
	if n, updateErr := cycle.UpdateAll(ctx); updateErr != nil {
		// The schedule retries; a slow first poll must not block startup.
		log.Warn("initial poll incomplete", "updated", n, "error", updateErr)
	} else {
		log.Info("initial poll complete", "updated", n)
	}

	dispatcher := command.New(client, reg, cfg.GetRoomCacheTTL())
	dispatcher.SetLogger(log)

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		unsubscribe := reg.Subscribe(influxClient.HandleEvent)
		defer unsubscribe()
	} else {
		log.Info("InfluxDB disabled")
	}

	// Connect to MQTT and start the bridge (optional)
	var mqttClient *mqtt.Client
	var mqttBridge *bridge.Bridge
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		mqttBridge, err = startBridge(ctx, cfg, mqttClient, reg, dispatcher, client, log)
		if err != nil {
			return fmt.Errorf("starting MQTT bridge: %w", err)
		}
		defer func() {
			log.Info("stopping MQTT bridge")
			mqttBridge.Stop()
		}()

		// Retained state is republished after every reconnect.
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
			mqttBridge.PublishSnapshot()
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
	} else {
		log.Info("MQTT disabled")
	}

	// Periodic polling
	sched := scheduler.New(cycle, scheduler.Options{
		Interval:            cfg.GetPollInterval(),
		FullRefreshInterval: cfg.GetFullRefreshInterval(),
		Timeout:             cfg.GetCloudTimeout(),
		Logger:              log,
	})
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}
	defer func() {
		log.Info("stopping scheduler")
		sched.Stop()
	}()
	for _, id := range reg.DeviceIDs() {
		if addErr := sched.Add(id); addErr != nil {
			return fmt.Errorf("scheduling device %d: %w", id, addErr)
		}
	}
	log.Info("scheduler started",
		"devices", sched.Scheduled(),
		"interval", cfg.GetPollInterval(),
	)

	// Local HTTP API (optional)
	var apiServer *api.Server
	if cfg.API.Enabled {
		deps := api.Deps{
			Config:    cfg.API,
			WS:        cfg.WebSocket,
			Security:  cfg.Security,
			Logger:    log,
			Registry:  reg,
			Commander: dispatcher,
			Refresher: sched,
			Version:   version,
		}
		if mqttClient != nil {
			deps.MQTT = mqttClient
			deps.Bridge = mqttBridge
		}

		apiServer, err = api.New(deps)
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		if err := apiServer.Start(ctx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		defer func() {
			log.Info("stopping API server")
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error stopping API server", "error", closeErr)
			}
		}()
		log.Info("API server started", "addr", apiServer.Addr())
	} else {
		log.Info("API disabled")
	}

	// Verify all connections are healthy
	if err := healthCheck(ctx, client, mqttClient, influxClient, apiServer); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order:
	// API, scheduler, MQTT bridge, MQTT, InfluxDB

	log.Info("Gregor Bridge stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses GREGOR_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GREGOR_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// authenticate installs a configured token or exchanges credentials for one,
// then proves the token against the account endpoint.
func authenticate(ctx context.Context, client *cloud.Client, cfg config.CloudConfig) error {
	if cfg.AccessToken != "" {
		client.SetAccessToken(cfg.AccessToken, 0)
	} else if _, err := client.Authenticate(ctx, cfg.Username, cfg.Password); err != nil {
		return fmt.Errorf("authenticating: %w", err)
	}

	if err := client.ValidateToken(ctx); err != nil {
		return fmt.Errorf("validating token: %w", err)
	}
	return nil
}

// filterDevices keeps only the devices whose MAC appears in allow.
// An empty allow list keeps everything.
func filterDevices(devices []*device.Device, allow []string) ([]*device.Device, error) {
	if len(allow) == 0 {
		return devices, nil
	}

	wanted := make(map[string]bool, len(allow))
	for _, raw := range allow {
		mac, err := device.NormalizeMAC(raw)
		if err != nil {
			return nil, fmt.Errorf("cloud.devices entry %q: %w", raw, err)
		}
		wanted[mac] = true
	}

	kept := make([]*device.Device, 0, len(wanted))
	for _, d := range devices {
		if wanted[d.MAC] {
			kept = append(kept, d)
		}
	}
	return kept, nil
}

// missingDevices returns the configured MACs, normalised, that no device in
// devices carries. Entries must already have passed filterDevices.
func missingDevices(devices []*device.Device, allow []string) []string {
	have := make(map[string]bool, len(devices))
	for _, d := range devices {
		have[d.MAC] = true
	}

	var missing []string
	for _, raw := range allow {
		mac, err := device.NormalizeMAC(raw)
		if err != nil || have[mac] {
			continue
		}
		have[mac] = true
		missing = append(missing, mac)
	}
	return missing
}

// reportMissingDevices looks each configured device that was not listed up
// on the account again and logs why it will not be bridged.
func reportMissingDevices(ctx context.Context, client *cloud.Client, devices []*device.Device, allow []string, log *logging.Logger) {
	for _, mac := range missingDevices(devices, allow) {
		d, err := client.FindDeviceByMAC(ctx, mac)
		switch {
		case errors.Is(err, cloud.ErrNotFound):
			log.Warn("configured device not on account", "mac", mac)
		case err != nil:
			log.Warn("looking up configured device failed", "mac", mac, "error", err)
		default:
			log.Warn("configured device appeared after listing, restart to bridge it",
				"mac", mac, "id", d.ID, "kind", d.Kind)
		}
	}
}

// seedRooms gives every room on the account a mode select, including rooms
// with no drive in them. It returns the number of rooms known afterwards.
// A failed listing is logged and modes then come from drive room ids only.
func seedRooms(ctx context.Context, client *cloud.Client, reg *registry.Registry, log *logging.Logger) int {
	rooms, err := client.FetchRooms(ctx, false)
	if err != nil {
		log.Warn("listing rooms failed", "error", err)
		return len(reg.Modes())
	}
	for _, room := range rooms {
		reg.EnsureMode(room.ID, room.Name)
	}
	return len(reg.Modes())
}

// healthCheck verifies the cloud session and every enabled connection.
// mqttClient, influxClient and apiServer may be nil when disabled.
func healthCheck(ctx context.Context, client *cloud.Client, mqttClient *mqtt.Client, influxClient *influxdb.Client, apiServer *api.Server) error {
	if client.AccessToken() == "" {
		return errors.New("cloud: no access token")
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	if apiServer != nil {
		if err := apiServer.HealthCheck(ctx); err != nil {
			return fmt.Errorf("api: %w", err)
		}
	}

	return nil
}

// startBridge creates the MQTT bridge and starts it.
func startBridge(ctx context.Context, cfg *config.Config, mqttClient *mqtt.Client, reg *registry.Registry, dispatcher *command.Dispatcher, client *cloud.Client, log *logging.Logger) (*bridge.Bridge, error) {
	b, err := bridge.NewBridge(bridge.Options{
		MQTTClient:     &mqttBridgeAdapter{client: mqttClient},
		Registry:       reg,
		Commander:      dispatcher,
		Topics:         mqttClient.Topics(),
		QoS:            mqttClient.QoS(),
		BridgeID:       cfg.MQTT.Broker.ClientID,
		Version:        version,
		HealthInterval: cfg.GetHealthInterval(),
		Cloud:          client,
		Logger:         log,
	})
	if err != nil {
		return nil, fmt.Errorf("creating bridge: %w", err)
	}

	if err := b.Start(ctx); err != nil {
		return nil, err
	}
	log.Info("MQTT bridge started", "topic_prefix", cfg.MQTT.TopicPrefix)

	return b, nil
}

// runToken implements the token subcommand: it mints a signed access token
// for the local API and prints it to out.
func runToken(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	subject := fs.String("sub", "", "token subject, e.g. the client's name (required)")
	role := fs.String("role", string(auth.RoleViewer), "role: viewer or operator")
	ttl := fs.Int("ttl", 0, "lifetime in minutes (default: security.jwt.access_token_ttl)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *subject == "" {
		return errors.New("token: -sub is required")
	}
	if !auth.IsValidRole(auth.Role(*role)) {
		return fmt.Errorf("token: %w: %q", auth.ErrInvalidRole, *role)
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	minutes := *ttl
	if minutes <= 0 {
		minutes = cfg.Security.JWT.AccessTokenTTL
	}

	token, err := auth.GenerateAccessToken(*subject, auth.Role(*role), cfg.Security.JWT.Secret, minutes)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(out, token)
	return err
}

// mqttBridgeAdapter adapts the infrastructure MQTT client to the bridge's
// MQTTClient interface. The primary difference is the Subscribe handler signature:
// - Infrastructure mqtt: func(topic, payload []byte) error
// - Bridge expects: func(topic, payload []byte)
type mqttBridgeAdapter struct {
	client *mqtt.Client
}

// Publish implements bridge.MQTTClient.
func (a *mqttBridgeAdapter) Publish(topic string, payload []byte, qos byte, retained bool) error {
	return a.client.Publish(topic, payload, qos, retained)
}

// Subscribe implements bridge.MQTTClient.
func (a *mqttBridgeAdapter) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	return a.client.Subscribe(topic, qos, func(t string, p []byte) error {
		handler(t, p)
		return nil
	})
}

// IsConnected implements bridge.MQTTClient.
func (a *mqttBridgeAdapter) IsConnected() bool {
	return a.client.IsConnected()
}

// Disconnect implements bridge.MQTTClient.
// The MQTT client is owned by run's defer chain, so this is a no-op.
func (a *mqttBridgeAdapter) Disconnect(_ uint) {}
