package registry

import (
	"maps"
	"sync"
	"time"

	"github.com/nerrad567/gregor-bridge/internal/device"
)

// Attribute keys carried on an Entity.
const (
	AttrHardwareVersion = "hardware_version"
	AttrSoftwareVersion = "software_version"
	AttrRSSI            = "rssi"
)

// Entity is the owning record of one device. Its sensors and, for drives,
// its cover hang off it by MAC.
type Entity struct {
	deviceID int64
	mac      string
	kind     device.Kind

	mu         sync.RWMutex
	name       string
	model      string
	roomID     *int64
	roomName   string
	status     string
	available  bool
	attributes map[string]any
	updatedAt  time.Time
}

// EntityState is a point-in-time copy of an Entity.
type EntityState struct {
	DeviceID   int64          `json:"device_id"`
	MAC        string         `json:"mac"`
	Kind       device.Kind    `json:"kind"`
	Name       string         `json:"name"`
	Model      string         `json:"model,omitempty"`
	RoomID     *int64         `json:"room_id,omitempty"`
	RoomName   string         `json:"room_name,omitempty"`
	Status     string         `json:"status"`
	Available  bool           `json:"available"`
	Attributes map[string]any `json:"attributes"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// EntityUpdate is the result of one poll applied to an Entity.
type EntityUpdate struct {
	Status     string
	Available  bool
	Attributes map[string]any
	RoomID     *int64
	RoomName   string
}

func newEntity(d *device.Device) *Entity {
	e := &Entity{
		deviceID:   d.ID,
		mac:        d.MAC,
		kind:       d.Kind,
		status:     device.StateOffline,
		attributes: map[string]any{},
	}
	e.describe(d)
	return e
}

// describe refreshes identity metadata from a fetched device.
func (e *Entity) describe(d *device.Device) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.name = d.Name
	if d.Model != "" {
		e.model = d.Model
	}
	if d.RoomID != nil {
		id := *d.RoomID
		e.roomID = &id
	}
	if d.RoomName != "" {
		e.roomName = d.RoomName
	}
}

// DeviceID returns the cloud id of the device.
func (e *Entity) DeviceID() int64 { return e.deviceID }

// MAC returns the normalized MAC of the device.
func (e *Entity) MAC() string { return e.mac }

// Kind returns the device kind.
func (e *Entity) Kind() device.Kind { return e.kind }

// Available reports whether the device was online at the last poll.
func (e *Entity) Available() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.available
}

// State returns a copy of the entity's state.
func (e *Entity) State() EntityState {
	e.mu.RLock()
	defer e.mu.RUnlock()

	st := EntityState{
		DeviceID:   e.deviceID,
		MAC:        e.mac,
		Kind:       e.kind,
		Name:       e.name,
		Model:      e.model,
		RoomName:   e.roomName,
		Status:     e.status,
		Available:  e.available,
		Attributes: maps.Clone(e.attributes),
		UpdatedAt:  e.updatedAt,
	}
	if e.roomID != nil {
		id := *e.roomID
		st.RoomID = &id
	}
	return st
}

// apply records a poll result and reports whether anything visible changed.
func (e *Entity) apply(u EntityUpdate, now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	changed := e.status != u.Status || e.available != u.Available
	e.status = u.Status
	e.available = u.Available
	e.updatedAt = now

	for k, v := range u.Attributes {
		if old, ok := e.attributes[k]; !ok || !sameValue(old, v) {
			changed = true
		}
		e.attributes[k] = v
	}

	if u.RoomID != nil && (e.roomID == nil || *e.roomID != *u.RoomID) {
		id := *u.RoomID
		e.roomID = &id
		changed = true
	}
	if u.RoomName != "" && u.RoomName != e.roomName {
		e.roomName = u.RoomName
		changed = true
	}
	return changed
}
