package registry

import (
	"sync"
	"time"
)

// CoverState is the derived state of a drive.
type CoverState string

// Cover states.
const (
	CoverClosed  CoverState = "closed"
	CoverOpen    CoverState = "open"
	CoverOpening CoverState = "opening"
	CoverClosing CoverState = "closing"
)

// Cover tracks the open/closed state machine of one drive.
//
// State after Open or Close is a client prediction. It stays authoritative
// only until the next ApplyPosition, which always wins.
type Cover struct {
	deviceID int64
	mac      string
	name     string
	onChange func(CoverSnapshot)

	mu        sync.RWMutex
	roomID    *int64
	position  int
	known     bool
	state     CoverState
	available bool
	updatedAt time.Time
}

// CoverSnapshot is a point-in-time copy of a Cover.
type CoverSnapshot struct {
	DeviceID  int64      `json:"device_id"`
	MAC       string     `json:"mac"`
	Name      string     `json:"name"`
	RoomID    *int64     `json:"room_id,omitempty"`
	State     CoverState `json:"state"`
	Position  *int       `json:"position"`
	Closed    bool       `json:"closed"`
	Available bool       `json:"available"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// NewCover creates a cover with unknown position, which reads as closed.
func NewCover(deviceID int64, mac, name string) *Cover {
	return &Cover{
		deviceID: deviceID,
		mac:      mac,
		name:     name,
		state:    CoverClosed,
	}
}

// DeviceID returns the cloud id of the drive.
func (c *Cover) DeviceID() int64 { return c.deviceID }

// MAC returns the normalized MAC of the drive.
func (c *Cover) MAC() string { return c.mac }

// State returns the current derived state.
func (c *Cover) State() CoverState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Position returns the last polled position. ok is false when unknown.
func (c *Cover) Position() (pos int, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.position, c.known
}

// IsClosed reports whether the last polled position is exactly 0.
// Opening and closing predictions do not affect it.
func (c *Cover) IsClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.known && c.position == 0
}

// RoomID returns the room the drive belongs to, if known.
func (c *Cover) RoomID() (int64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.roomID == nil {
		return 0, false
	}
	return *c.roomID, true
}

// Open records an open intent: open when already fully open, else opening.
func (c *Cover) Open() CoverState {
	return c.transition(func() {
		if c.known && c.position == 100 {
			c.state = CoverOpen
		} else {
			c.state = CoverOpening
		}
	})
}

// Close records a close intent: closed when already at 0 or unknown, else closing.
func (c *Cover) Close() CoverState {
	return c.transition(func() {
		if !c.known || c.position == 0 {
			c.state = CoverClosed
		} else {
			c.state = CoverClosing
		}
	})
}

// ApplyPosition replaces any prediction with the polled position.
// ok false means the poll carried no usable position.
func (c *Cover) ApplyPosition(pos int, ok bool) CoverState {
	return c.transition(func() {
		c.position = pos
		c.known = ok
		if !ok {
			c.position = 0
		}
		if !ok || pos == 0 {
			c.state = CoverClosed
		} else {
			c.state = CoverOpen
		}
	})
}

// Snapshot returns a copy of the cover's state.
func (c *Cover) Snapshot() CoverSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotLocked()
}

func (c *Cover) setAvailable(available bool) {
	c.transition(func() { c.available = available })
}

func (c *Cover) setRoom(roomID *int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if roomID == nil {
		return
	}
	id := *roomID
	c.roomID = &id
}

// transition applies fn under the lock and notifies after releasing it.
func (c *Cover) transition(fn func()) CoverState {
	c.mu.Lock()
	fn()
	c.updatedAt = time.Now()
	snap := c.snapshotLocked()
	notify := c.onChange
	c.mu.Unlock()

	if notify != nil {
		notify(snap)
	}
	return snap.State
}

func (c *Cover) snapshotLocked() CoverSnapshot {
	snap := CoverSnapshot{
		DeviceID:  c.deviceID,
		MAC:       c.mac,
		Name:      c.name,
		State:     c.state,
		Closed:    c.known && c.position == 0,
		Available: c.available,
		UpdatedAt: c.updatedAt,
	}
	if c.roomID != nil {
		id := *c.roomID
		snap.RoomID = &id
	}
	if c.known {
		pos := c.position
		snap.Position = &pos
	}
	return snap
}
