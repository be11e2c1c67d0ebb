package bridge

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/gregor-bridge/internal/registry"
)

// Commands accepted on gregor/command/drive/{id}.
const (
	CommandOpen  = "open"
	CommandClose = "close"
)

// CommandSetMode is accepted on gregor/command/room/{id} with a "mode" parameter.
const CommandSetMode = "set_mode"

// CommandMessage is received on a command topic.
type CommandMessage struct {
	// ID correlates the command with its ack. A missing ID is filled in.
	ID string `json:"id"`

	Timestamp time.Time `json:"timestamp"`

	// Command is one of open, close or set_mode.
	Command string `json:"command"`

	// Parameters holds command-specific values, e.g. {"mode": "airing"}.
	Parameters map[string]any `json:"parameters,omitempty"`

	// Source names the sender, e.g. "automation" or "dashboard".
	Source string `json:"source,omitempty"`
}

// MarshalJSON writes Timestamp as RFC 3339 in UTC.
func (m *CommandMessage) MarshalJSON() ([]byte, error) {
	type Alias CommandMessage
	return json.Marshal(&struct {
		*Alias
		Timestamp string `json:"timestamp"`
	}{
		Alias:     (*Alias)(m),
		Timestamp: m.Timestamp.UTC().Format(time.RFC3339),
	})
}

// UnmarshalJSON accepts a missing timestamp.
func (m *CommandMessage) UnmarshalJSON(data []byte) error {
	type Alias CommandMessage
	aux := &struct {
		*Alias
		Timestamp string `json:"timestamp"`
	}{
		Alias: (*Alias)(m),
	}
	if err := json.Unmarshal(data, aux); err != nil {
		return fmt.Errorf("unmarshal command message: %w", err)
	}
	if aux.Timestamp != "" {
		t, err := time.Parse(time.RFC3339, aux.Timestamp)
		if err != nil {
			return fmt.Errorf("parse timestamp: %w", err)
		}
		m.Timestamp = t
	}
	return nil
}

// StringParam returns a string parameter and whether it was present.
func (m CommandMessage) StringParam(name string) (string, bool) {
	v, ok := m.Parameters[name].(string)
	return v, ok
}

// AckStatus is the outcome reported for a command.
type AckStatus string

const (
	AckAccepted AckStatus = "accepted"
	AckFailed   AckStatus = "failed"
	AckTimeout  AckStatus = "timeout"
)

// AckMessage is published on gregor/ack/{target}/{id} for every command.
type AckMessage struct {
	CommandID string    `json:"command_id"`
	Timestamp time.Time `json:"timestamp"`
	Target    string    `json:"target"`
	TargetID  int64     `json:"target_id"`
	Command   string    `json:"command"`
	Status    AckStatus `json:"status"`

	// State is the predicted cover state or the selected mode.
	State string `json:"state,omitempty"`

	Error *AckError `json:"error,omitempty"`
}

// AckError describes why a command failed.
type AckError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes for failed commands.
const (
	ErrCodeInvalidCommand       = "INVALID_COMMAND"
	ErrCodeInvalidParameters    = "INVALID_PARAMETERS"
	ErrCodeUnknownTarget        = "UNKNOWN_TARGET"
	ErrCodeNoRoom               = "NO_ROOM"
	ErrCodeUpstreamUnauthorised = "UPSTREAM_UNAUTHORISED"
	ErrCodeUpstreamError        = "UPSTREAM_ERROR"
	ErrCodeTimeout              = "TIMEOUT"
	ErrCodeBridgeError          = "BRIDGE_ERROR"
)

// NewAckMessage creates an accepted ack.
func NewAckMessage(cmd CommandMessage, target string, targetID int64, state string) AckMessage {
	return AckMessage{
		CommandID: cmd.ID,
		Timestamp: time.Now().UTC(),
		Target:    target,
		TargetID:  targetID,
		Command:   cmd.Command,
		Status:    AckAccepted,
		State:     state,
	}
}

// NewAckError creates a failed ack. ErrCodeTimeout yields AckTimeout.
func NewAckError(cmd CommandMessage, target string, targetID int64, code, message string) AckMessage {
	status := AckFailed
	if code == ErrCodeTimeout {
		status = AckTimeout
	}
	return AckMessage{
		CommandID: cmd.ID,
		Timestamp: time.Now().UTC(),
		Target:    target,
		TargetID:  targetID,
		Command:   cmd.Command,
		Status:    status,
		Error:     &AckError{Code: code, Message: message},
	}
}

// SensorStateMessage is the retained payload on gregor/state/{mac}/{kind}.
type SensorStateMessage struct {
	DeviceID  int64     `json:"device_id"`
	MAC       string    `json:"mac"`
	Kind      string    `json:"kind"`
	Name      string    `json:"name"`
	Value     any       `json:"value"`
	Unit      string    `json:"unit,omitempty"`
	Available bool      `json:"available"`
	Timestamp time.Time `json:"timestamp"`
}

// NewSensorStateMessage renders a sensor. Value is null unless the sensor holds one.
func NewSensorStateMessage(deviceID int64, s registry.SensorState) SensorStateMessage {
	msg := SensorStateMessage{
		DeviceID:  deviceID,
		MAC:       s.MAC,
		Kind:      string(s.Kind),
		Name:      s.Name,
		Unit:      s.Unit,
		Available: s.Available,
		Timestamp: stamp(s.UpdatedAt),
	}
	if s.HasValue {
		msg.Value = s.Value
	}
	return msg
}

// CoverStateMessage is the retained payload on gregor/state/{mac}/cover.
type CoverStateMessage struct {
	DeviceID  int64     `json:"device_id"`
	State     string    `json:"state"`
	Position  *int      `json:"position"`
	Closed    bool      `json:"closed"`
	Available bool      `json:"available"`
	RoomID    *int64    `json:"room_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewCoverStateMessage renders a cover snapshot.
func NewCoverStateMessage(c registry.CoverSnapshot) CoverStateMessage {
	return CoverStateMessage{
		DeviceID:  c.DeviceID,
		State:     string(c.State),
		Position:  c.Position,
		Closed:    c.Closed,
		Available: c.Available,
		RoomID:    c.RoomID,
		Timestamp: stamp(c.UpdatedAt),
	}
}

// EntityStateMessage is the retained payload on gregor/state/{mac}/entity.
type EntityStateMessage struct {
	DeviceID   int64          `json:"device_id"`
	Kind       string         `json:"kind"`
	Name       string         `json:"name"`
	Model      string         `json:"model,omitempty"`
	RoomID     *int64         `json:"room_id,omitempty"`
	RoomName   string         `json:"room_name,omitempty"`
	Status     string         `json:"status"`
	Available  bool           `json:"available"`
	Attributes map[string]any `json:"attributes"`
	Timestamp  time.Time      `json:"timestamp"`
}

// NewEntityStateMessage renders a device entity.
func NewEntityStateMessage(e registry.EntityState) EntityStateMessage {
	attrs := e.Attributes
	if attrs == nil {
		attrs = map[string]any{}
	}
	return EntityStateMessage{
		DeviceID:   e.DeviceID,
		Kind:       string(e.Kind),
		Name:       e.Name,
		Model:      e.Model,
		RoomID:     e.RoomID,
		RoomName:   e.RoomName,
		Status:     e.Status,
		Available:  e.Available,
		Attributes: attrs,
		Timestamp:  stamp(e.UpdatedAt),
	}
}

// ModeStateMessage is the retained payload on gregor/state/room/{id}/mode.
type ModeStateMessage struct {
	RoomID    int64     `json:"room_id"`
	Name      string    `json:"name,omitempty"`
	Mode      string    `json:"mode"`
	Options   []string  `json:"options"`
	Timestamp time.Time `json:"timestamp"`
}

// NewModeStateMessage renders a room mode select.
func NewModeStateMessage(m registry.ModeState) ModeStateMessage {
	return ModeStateMessage{
		RoomID:    m.RoomID,
		Name:      m.Name,
		Mode:      m.Mode,
		Options:   m.Options,
		Timestamp: stamp(m.UpdatedAt),
	}
}

// HealthStatus is the operational status of the bridge.
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
	HealthStarting  HealthStatus = "starting"
	HealthStopping  HealthStatus = "stopping"
)

// HealthMessage is published retained on gregor/health/bridge.
type HealthMessage struct {
	Bridge         string            `json:"bridge"`
	Timestamp      time.Time         `json:"timestamp"`
	Status         HealthStatus      `json:"status"`
	Version        string            `json:"version"`
	UptimeSeconds  int64             `json:"uptime_seconds"`
	Cloud          *CloudStatus      `json:"cloud,omitempty"`
	Statistics     *BridgeStatistics `json:"statistics,omitempty"`
	DevicesManaged int               `json:"devices_managed"`
	Reason         string            `json:"reason,omitempty"`
}

// CloudStatus reports the state of the cloud access token.
type CloudStatus struct {
	TokenSet       bool       `json:"token_set"`
	TokenExpiresAt *time.Time `json:"token_expires_at,omitempty"`
	TokenExpired   bool       `json:"token_expired"`
}

// BridgeStatistics counts MQTT traffic handled by the bridge.
type BridgeStatistics struct {
	CommandsReceived uint64 `json:"commands_received"`
	CommandsFailed   uint64 `json:"commands_failed"`
	StatesPublished  uint64 `json:"states_published"`
	EventsDropped    uint64 `json:"events_dropped"`
}

// stamp returns t in UTC, or now when t is unset.
func stamp(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}
