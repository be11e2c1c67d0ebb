package registry

import (
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gregor-bridge/internal/device"
)

// Key identifies a Sensor by normalized device MAC and measurement.
type Key struct {
	MAC  string
	Kind device.Measurement
}

// String renders the key for logs and topics. It is not used for lookups.
func (k Key) String() string {
	return k.MAC + "/" + string(k.Kind)
}

// StalePolicy controls what happens to a stored value when its sensor
// becomes unavailable.
type StalePolicy string

const (
	// StaleRetain keeps the last value readable while unavailable.
	StaleRetain StalePolicy = "retain"

	// StaleClear drops the value when the sensor becomes unavailable.
	StaleClear StalePolicy = "clear"
)

// ParseStalePolicy converts a config value into a StalePolicy.
// The empty string selects StaleRetain.
func ParseStalePolicy(s string) (StalePolicy, error) {
	switch StalePolicy(s) {
	case "", StaleRetain:
		return StaleRetain, nil
	case StaleClear:
		return StaleClear, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStalePolicy, s)
	}
}

// Sensor is the long-lived projection of one measurement slot.
//
// Availability is tracked independently of the value: a sensor can be
// unavailable while still holding its last reading. Readers must not treat
// the value as meaningful when Available is false.
type Sensor struct {
	kind device.Measurement
	name string
	unit string

	mu        sync.RWMutex
	mac       string
	value     any
	hasValue  bool
	available bool
	updatedAt time.Time
}

// SensorState is a point-in-time copy of a Sensor.
type SensorState struct {
	MAC       string             `json:"mac"`
	Kind      device.Measurement `json:"kind"`
	Name      string             `json:"name"`
	Unit      string             `json:"unit,omitempty"`
	Value     any                `json:"value"`
	HasValue  bool               `json:"has_value"`
	Available bool               `json:"available"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// NewSensor creates an unavailable sensor without a value.
func NewSensor(kind device.Measurement, name, unit string) *Sensor {
	return &Sensor{kind: kind, name: name, unit: unit}
}

// Kind returns the measurement the sensor projects.
func (s *Sensor) Kind() device.Measurement { return s.kind }

// Name returns the display name.
func (s *Sensor) Name() string { return s.name }

// Unit returns the unit of measurement, possibly empty.
func (s *Sensor) Unit() string { return s.unit }

// Value returns the stored value and whether one is held.
func (s *Sensor) Value() (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value, s.hasValue
}

// Available reports whether the last update carried a fresh value.
func (s *Sensor) Available() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.available
}

// UpdatedAt returns when ApplyValue last touched the sensor.
func (s *Sensor) UpdatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updatedAt
}

// State returns a copy of the sensor's current state.
func (s *Sensor) State() SensorState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return SensorState{
		MAC:       s.mac,
		Kind:      s.kind,
		Name:      s.name,
		Unit:      s.unit,
		Value:     s.value,
		HasValue:  s.hasValue,
		Available: s.available,
		UpdatedAt: s.updatedAt,
	}
}

// apply records one update and reports whether value or availability changed.
// A nil value marks the sensor unavailable.
func (s *Sensor) apply(value any, policy StalePolicy, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.updatedAt = now

	if value == nil {
		changed := s.available
		s.available = false
		if policy == StaleClear && s.hasValue {
			s.value = nil
			s.hasValue = false
			changed = true
		}
		return changed
	}

	changed := !s.available || !s.hasValue || !sameValue(s.value, value)
	s.value = value
	s.hasValue = true
	s.available = true
	return changed
}

// sameValue compares slot values, which are float64, string, bool or nil.
// Anything else is reported as different.
func sameValue(a, b any) bool {
	switch av := a.(type) {
	case float64:
		bv, ok := b.(float64)
		return ok && av == bv
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	default:
		return false
	}
}
