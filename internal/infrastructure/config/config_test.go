package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// validJWTSecret meets the 32-character minimum.
const validJWTSecret = "test-secret-key-at-least-32-chars!"

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
cloud:
  access_token: "abc123"
  timeout: 5
  devices:
    - "AA:BB:CC:DD:EE:FF"
poll:
  interval: 30
registry:
  stale_policy: clear
mqtt:
  enabled: true
  broker:
    host: "broker.local"
    port: 1883
    client_id: "test-client"
  qos: 1
api:
  enabled: true
  port: 8089
security:
  jwt:
    secret: "test-secret-key-at-least-32-chars!"
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Cloud.AccessToken != "abc123" {
		t.Errorf("Cloud.AccessToken = %q, want %q", cfg.Cloud.AccessToken, "abc123")
	}
	if cfg.Cloud.BaseURL != DefaultCloudBaseURL {
		t.Errorf("Cloud.BaseURL = %q, want default %q", cfg.Cloud.BaseURL, DefaultCloudBaseURL)
	}
	if len(cfg.Cloud.Devices) != 1 || cfg.Cloud.Devices[0] != "AA:BB:CC:DD:EE:FF" {
		t.Errorf("Cloud.Devices = %v", cfg.Cloud.Devices)
	}
	if cfg.GetPollInterval() != 30*time.Second {
		t.Errorf("GetPollInterval() = %v, want 30s", cfg.GetPollInterval())
	}
	if cfg.Registry.StalePolicy != StalePolicyClear {
		t.Errorf("Registry.StalePolicy = %q, want %q", cfg.Registry.StalePolicy, StalePolicyClear)
	}
	if cfg.MQTT.Broker.Host != "broker.local" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "broker.local")
	}
	if cfg.MQTT.TopicPrefix != "gregor" {
		t.Errorf("MQTT.TopicPrefix = %q, want default %q", cfg.MQTT.TopicPrefix, "gregor")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
cloud:
  username: "user@example.com"
`
	_, err := Load(writeConfig(t, content))
	if err == nil {
		t.Fatal("Load() expected validation error for missing password, got nil")
	}
	if !strings.Contains(err.Error(), "cloud.access_token") {
		t.Errorf("error = %v, want mention of cloud.access_token", err)
	}
}

func TestLoad_EnvSuppliesCredentials(t *testing.T) {
	t.Setenv("GREGOR_CLOUD_USERNAME", "user@example.com")
	t.Setenv("GREGOR_CLOUD_PASSWORD", "hunter2")

	cfg, err := Load(writeConfig(t, "poll:\n  interval: 15\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Cloud.Username != "user@example.com" || cfg.Cloud.Password != "hunter2" {
		t.Errorf("credentials not taken from environment: %+v", cfg.Cloud)
	}
}

func validConfig() *Config {
	cfg := defaultConfig()
	cfg.Cloud.AccessToken = "token"
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name: "credentials instead of token",
			mutate: func(c *Config) {
				c.Cloud.AccessToken = ""
				c.Cloud.Username = "user"
				c.Cloud.Password = "pass"
			},
			wantErr: false,
		},
		{
			name:    "no token and no credentials",
			mutate:  func(c *Config) { c.Cloud.AccessToken = "" },
			wantErr: true,
		},
		{
			name:    "relative base url",
			mutate:  func(c *Config) { c.Cloud.BaseURL = "/v2" },
			wantErr: true,
		},
		{
			name:    "zero cloud timeout",
			mutate:  func(c *Config) { c.Cloud.Timeout = 0 },
			wantErr: true,
		},
		{
			name:    "zero poll interval",
			mutate:  func(c *Config) { c.Poll.Interval = 0 },
			wantErr: true,
		},
		{
			name:    "unknown stale policy",
			mutate:  func(c *Config) { c.Registry.StalePolicy = "forget" },
			wantErr: true,
		},
		{
			name:    "invalid QoS",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: true,
		},
		{
			name: "mqtt enabled without prefix",
			mutate: func(c *Config) {
				c.MQTT.Enabled = true
				c.MQTT.TopicPrefix = ""
			},
			wantErr: true,
		},
		{
			name: "api disabled ignores port and secret",
			mutate: func(c *Config) {
				c.API.Port = 0
			},
			wantErr: false,
		},
		{
			name: "api enabled invalid port",
			mutate: func(c *Config) {
				c.API.Enabled = true
				c.API.Port = 70000
				c.Security.JWT.Secret = validJWTSecret
			},
			wantErr: true,
		},
		{
			name: "api enabled missing JWT secret",
			mutate: func(c *Config) {
				c.API.Enabled = true
			},
			wantErr: true,
		},
		{
			name: "api enabled JWT secret too short",
			mutate: func(c *Config) {
				c.API.Enabled = true
				c.Security.JWT.Secret = "short"
			},
			wantErr: true,
		},
		{
			name: "influxdb enabled without url",
			mutate: func(c *Config) {
				c.InfluxDB.Enabled = true
				c.InfluxDB.Bucket = "gregor"
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Validate_AggregatesErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Poll.Interval = 0
	cfg.MQTT.QoS = 5

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error")
	}
	msg := err.Error()
	if !strings.HasPrefix(msg, "configuration errors: ") {
		t.Errorf("error = %q, want configuration errors prefix", msg)
	}
	if !strings.Contains(msg, "poll.interval") || !strings.Contains(msg, "mqtt.qos") {
		t.Errorf("error = %q, want both poll.interval and mqtt.qos", msg)
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		Cloud: CloudConfig{Timeout: 7},
		Poll:  PollConfig{Interval: 60, FullRefreshInterval: 600},
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
		Registry: RegistryConfig{RoomCacheTTL: 120},
		MQTT:     MQTTConfig{HealthInterval: 15},
	}

	if got := cfg.GetCloudTimeout(); got != 7*time.Second {
		t.Errorf("GetCloudTimeout() = %v, want 7s", got)
	}
	if got := cfg.GetFullRefreshInterval(); got != 10*time.Minute {
		t.Errorf("GetFullRefreshInterval() = %v, want 10m", got)
	}
	if got := cfg.GetRoomCacheTTL(); got != 2*time.Minute {
		t.Errorf("GetRoomCacheTTL() = %v, want 2m", got)
	}
	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}
	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}
	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
	if got := cfg.GetHealthInterval(); got != 15*time.Second {
		t.Errorf("GetHealthInterval() = %v, want 15s", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("GREGOR_CLOUD_BASE_URL", "http://localhost:9999")
	t.Setenv("GREGOR_CLOUD_ACCESS_TOKEN", "env-token")
	t.Setenv("GREGOR_POLL_INTERVAL", "45")
	t.Setenv("GREGOR_MQTT_HOST", "mqtt.example.com")
	t.Setenv("GREGOR_MQTT_USERNAME", "testuser")
	t.Setenv("GREGOR_MQTT_PASSWORD", "testpass")
	t.Setenv("GREGOR_API_HOST", "192.168.1.1")
	t.Setenv("GREGOR_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("GREGOR_JWT_SECRET", "jwt-secret")

	applyEnvOverrides(cfg)

	if cfg.Cloud.BaseURL != "http://localhost:9999" {
		t.Errorf("Cloud.BaseURL = %q", cfg.Cloud.BaseURL)
	}
	if cfg.Cloud.AccessToken != "env-token" {
		t.Errorf("Cloud.AccessToken = %q, want %q", cfg.Cloud.AccessToken, "env-token")
	}
	if cfg.Poll.Interval != 45 {
		t.Errorf("Poll.Interval = %d, want 45", cfg.Poll.Interval)
	}
	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}
	if cfg.MQTT.Auth.Username != "testuser" {
		t.Errorf("MQTT.Auth.Username = %q, want %q", cfg.MQTT.Auth.Username, "testuser")
	}
	if cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth.Password = %q, want %q", cfg.MQTT.Auth.Password, "testpass")
	}
	if cfg.API.Host != "192.168.1.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "192.168.1.1")
	}
	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
	if cfg.Security.JWT.Secret != "jwt-secret" {
		t.Errorf("Security.JWT.Secret = %q, want %q", cfg.Security.JWT.Secret, "jwt-secret")
	}
}

func TestApplyEnvOverrides_IgnoresMalformedInterval(t *testing.T) {
	cfg := defaultConfig()
	t.Setenv("GREGOR_POLL_INTERVAL", "soon")

	applyEnvOverrides(cfg)

	if cfg.Poll.Interval != 60 {
		t.Errorf("Poll.Interval = %d, want default 60", cfg.Poll.Interval)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Cloud.BaseURL != "https://api.mygregor.com" {
		t.Errorf("defaultConfig Cloud.BaseURL = %q", cfg.Cloud.BaseURL)
	}
	if cfg.Registry.StalePolicy != StalePolicyRetain {
		t.Errorf("defaultConfig Registry.StalePolicy = %q, want retain", cfg.Registry.StalePolicy)
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.MQTT.Enabled || cfg.API.Enabled || cfg.InfluxDB.Enabled {
		t.Error("defaultConfig should leave optional surfaces disabled")
	}
}
