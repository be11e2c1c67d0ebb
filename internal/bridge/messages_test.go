package bridge

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/gregor-bridge/internal/registry"
)

func TestCommandMessage_Unmarshal(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantErr bool
		check   func(t *testing.T, m CommandMessage)
	}{
		{
			name:    "full",
			payload: `{"id":"c1","timestamp":"2026-03-01T12:00:00Z","command":"set_mode","parameters":{"mode":"relax"},"source":"automation"}`,
			check: func(t *testing.T, m CommandMessage) {
				if m.ID != "c1" || m.Command != CommandSetMode || m.Source != "automation" {
					t.Errorf("message = %+v", m)
				}
				if !m.Timestamp.Equal(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)) {
					t.Errorf("Timestamp = %v", m.Timestamp)
				}
				if mode, ok := m.StringParam("mode"); !ok || mode != "relax" {
					t.Errorf("mode = %q, %v", mode, ok)
				}
			},
		},
		{
			name:    "no timestamp",
			payload: `{"command":"open"}`,
			check: func(t *testing.T, m CommandMessage) {
				if !m.Timestamp.IsZero() || m.Command != CommandOpen {
					t.Errorf("message = %+v", m)
				}
			},
		},
		{
			name:    "non-string mode",
			payload: `{"command":"set_mode","parameters":{"mode":3}}`,
			check: func(t *testing.T, m CommandMessage) {
				if _, ok := m.StringParam("mode"); ok {
					t.Error("numeric mode accepted as string")
				}
			},
		},
		{name: "bad timestamp", payload: `{"command":"open","timestamp":"yesterday"}`, wantErr: true},
		{name: "not json", payload: `open`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var m CommandMessage
			err := json.Unmarshal([]byte(tt.payload), &m)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Unmarshal() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.check != nil {
				tt.check(t, m)
			}
		})
	}
}

func TestCommandMessage_MarshalUsesRFC3339(t *testing.T) {
	m := CommandMessage{ID: "c1", Command: CommandClose, Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))}

	data, err := json.Marshal(&m)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"timestamp":"2026-03-01T11:00:00Z"`) {
		t.Errorf("payload = %s, want UTC RFC 3339 timestamp", data)
	}
}

func TestNewAckError_TimeoutStatus(t *testing.T) {
	cmd := CommandMessage{ID: "c1", Command: CommandOpen}

	if got := NewAckError(cmd, "drive", 2, ErrCodeTimeout, "slow").Status; got != AckTimeout {
		t.Errorf("timeout ack status = %s", got)
	}
	if got := NewAckError(cmd, "drive", 2, ErrCodeNoRoom, "no room").Status; got != AckFailed {
		t.Errorf("no-room ack status = %s", got)
	}
}

func TestNewSensorStateMessage_NullWithoutValue(t *testing.T) {
	msg := NewSensorStateMessage(1, registry.SensorState{MAC: "aa:bb:cc:dd:ee:01", Kind: "co2", Value: 0.0, HasValue: false})

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"value":null`) {
		t.Errorf("payload = %s, want null value", data)
	}
	if msg.Timestamp.IsZero() {
		t.Error("Timestamp not filled in for a never-updated sensor")
	}
}

func TestNewEntityStateMessage_EmptyAttributes(t *testing.T) {
	data, err := json.Marshal(NewEntityStateMessage(registry.EntityState{DeviceID: 1, Status: "Offline"}))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"attributes":{}`) {
		t.Errorf("payload = %s, want empty attributes object", data)
	}
}
