package registry

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/nerrad567/gregor-bridge/internal/cloud"
)

// ModeSelect holds the selected mode of one room.
//
// The current option is updated optimistically after a successful room
// state change; the cloud is never read back.
type ModeSelect struct {
	roomID   int64
	name     string
	onChange func(ModeState)

	mu        sync.RWMutex
	current   string
	updatedAt time.Time
}

// ModeState is a point-in-time copy of a ModeSelect.
type ModeState struct {
	RoomID    int64     `json:"room_id"`
	Name      string    `json:"name,omitempty"`
	Mode      string    `json:"mode"`
	Options   []string  `json:"options"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewModeSelect creates a select for a room with the auto option selected.
func NewModeSelect(roomID int64, name string) *ModeSelect {
	return &ModeSelect{
		roomID:  roomID,
		name:    name,
		current: cloud.RoomStateAuto,
	}
}

// Options returns the selectable modes in display order.
func (m *ModeSelect) Options() []string {
	return slices.Clone(cloud.RoomStates)
}

// Current returns the selected mode.
func (m *ModeSelect) Current() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Select sets the current mode. Unknown modes are rejected.
func (m *ModeSelect) Select(mode string) error {
	if !cloud.ValidRoomState(mode) {
		return fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}

	m.mu.Lock()
	m.current = mode
	m.updatedAt = time.Now()
	state := m.stateLocked()
	notify := m.onChange
	m.mu.Unlock()

	if notify != nil {
		notify(state)
	}
	return nil
}

// State returns a copy of the select's state.
func (m *ModeSelect) State() ModeState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stateLocked()
}

func (m *ModeSelect) stateLocked() ModeState {
	return ModeState{
		RoomID:    m.roomID,
		Name:      m.name,
		Mode:      m.current,
		Options:   slices.Clone(cloud.RoomStates),
		UpdatedAt: m.updatedAt,
	}
}
