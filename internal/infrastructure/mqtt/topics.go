package mqtt

import (
	"fmt"
	"strings"
)

// DefaultTopicPrefix is the root of every bridge topic when none is configured.
const DefaultTopicPrefix = "gregor"

// Topics builds bridge topic names under a common prefix.
//
// The zero value uses DefaultTopicPrefix:
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.SensorState("aa:bb:cc:dd:ee:01", "co2")
//	// Returns: "gregor/state/aabbccddee01/co2"
//
// MAC addresses are written without separators so each one stays a single
// topic level.
type Topics struct {
	Prefix string
}

// NewTopics returns a builder rooted at prefix, or at DefaultTopicPrefix
// when prefix is empty. Trailing slashes are removed.
func NewTopics(prefix string) Topics {
	return Topics{Prefix: strings.TrimRight(prefix, "/")}
}

func (t Topics) root() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return t.Prefix
}

// TopicMAC renders a MAC address as a single topic level.
func TopicMAC(mac string) string {
	return strings.ToLower(strings.NewReplacer(":", "", "-", "", ".", "").Replace(mac))
}

// =============================================================================
// State Topics (retained)
// =============================================================================

// SensorState returns the retained state topic for one sensor entity.
//
// Example: gregor/state/aabbccddee01/temperature
func (t Topics) SensorState(mac, kind string) string {
	return fmt.Sprintf("%s/state/%s/%s", t.root(), TopicMAC(mac), kind)
}

// CoverState returns the retained state topic for a drive's cover entity.
//
// Example: gregor/state/aabbccddee42/cover
func (t Topics) CoverState(mac string) string {
	return fmt.Sprintf("%s/state/%s/cover", t.root(), TopicMAC(mac))
}

// EntityState returns the retained state topic for a device entity.
//
// Example: gregor/state/aabbccddee01/entity
func (t Topics) EntityState(mac string) string {
	return fmt.Sprintf("%s/state/%s/entity", t.root(), TopicMAC(mac))
}

// RoomMode returns the retained mode topic for a room.
//
// Example: gregor/state/room/9/mode
func (t Topics) RoomMode(roomID int64) string {
	return fmt.Sprintf("%s/state/room/%d/mode", t.root(), roomID)
}

// =============================================================================
// Command Topics
// =============================================================================

// Command targets.
const (
	TargetDrive = "drive"
	TargetRoom  = "room"
)

// Command returns the command topic for a drive or room.
//
// Example: gregor/command/drive/42
func (t Topics) Command(target string, id int64) string {
	return fmt.Sprintf("%s/command/%s/%d", t.root(), target, id)
}

// Ack returns the acknowledgement topic for a drive or room.
//
// Example: gregor/ack/room/9
func (t Topics) Ack(target string, id int64) string {
	return fmt.Sprintf("%s/ack/%s/%d", t.root(), target, id)
}

// AllCommands returns a pattern matching every command topic.
//
// Pattern: gregor/command/+/+
func (t Topics) AllCommands() string {
	return fmt.Sprintf("%s/command/+/+", t.root())
}

// ParseCommand splits a command topic into its target and id.
// ok is false when topic is not a command topic under this prefix.
func (t Topics) ParseCommand(topic string) (target, id string, ok bool) {
	rest, found := strings.CutPrefix(topic, t.root()+"/command/")
	if !found {
		return "", "", false
	}
	target, id, found = strings.Cut(rest, "/")
	if !found || target == "" || id == "" || strings.Contains(id, "/") {
		return "", "", false
	}
	return target, id, true
}

// =============================================================================
// System Topics
// =============================================================================

// Health returns the retained bridge health topic.
//
// Example: gregor/health/bridge
func (t Topics) Health() string {
	return fmt.Sprintf("%s/health/bridge", t.root())
}

// SystemStatus returns the online/offline status topic, also used for the LWT.
//
// Example: gregor/system/status
func (t Topics) SystemStatus() string {
	return fmt.Sprintf("%s/system/status", t.root())
}

// AllTopics returns a pattern matching every bridge topic.
//
// Pattern: gregor/#
func (t Topics) AllTopics() string {
	return t.root() + "/#"
}
