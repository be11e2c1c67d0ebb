package device

import (
	"fmt"
	"math"
)

// Slot is one named measurement on a Device.
type Slot struct {
	Measurement Measurement
	Title       string
	Unit        string

	value    any
	observed bool
}

// Observed reports whether the payload mentioned this measurement at all.
func (s Slot) Observed() bool {
	return s.observed
}

// IsNull reports whether the payload carried an explicit null.
func (s Slot) IsNull() bool {
	return s.observed && s.value == nil
}

// HasValue reports whether the slot holds a non-null value.
func (s Slot) HasValue() bool {
	return s.observed && s.value != nil
}

// Value returns the raw slot value; nil when unset or null.
func (s Slot) Value() any {
	return s.value
}

// Device is the canonical, per-fetch view of one piece of MyGregor hardware.
//
// Each Device owns its slot map; nothing is shared between instances.
type Device struct {
	ID       int64
	MAC      string
	Kind     Kind
	Name     string
	Model    string
	RoomID   *int64
	RoomName string

	slots map[Measurement]*Slot
	order []Measurement
}

// New creates a Device with every slot of its kind unset.
func New(id int64, kind Kind, name, mac string) (*Device, error) {
	defs := schema(kind)
	if defs == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDeviceKind, kind)
	}

	normalized, err := NormalizeMAC(mac)
	if err != nil {
		return nil, err
	}

	d := &Device{
		ID:    id,
		MAC:   normalized,
		Kind:  kind,
		Name:  name,
		slots: make(map[Measurement]*Slot, len(defs)),
		order: make([]Measurement, 0, len(defs)),
	}
	for _, def := range defs {
		d.slots[def.measurement] = &Slot{
			Measurement: def.measurement,
			Title:       def.title,
			Unit:        def.unit,
		}
		d.order = append(d.order, def.measurement)
	}
	return d, nil
}

// Set records a value for a measurement. A nil value marks the slot null.
func (d *Device) Set(m Measurement, value any) error {
	slot, ok := d.slots[m]
	if !ok {
		return fmt.Errorf("%w: %s has no %q", ErrUnknownSlot, d.Kind, m)
	}
	slot.value = value
	slot.observed = true
	return nil
}

// Slot returns a copy of the named slot.
func (d *Device) Slot(m Measurement) (Slot, bool) {
	slot, ok := d.slots[m]
	if !ok {
		return Slot{}, false
	}
	return *slot, true
}

// Value returns a slot's value and whether the payload mentioned it.
// A null slot returns (nil, true); an unset slot returns (nil, false).
func (d *Device) Value(m Measurement) (any, bool) {
	slot, ok := d.slots[m]
	if !ok || !slot.observed {
		return nil, false
	}
	return slot.value, true
}

// Measurements returns every slot name of the device kind in schema order.
func (d *Device) Measurements() []Measurement {
	out := make([]Measurement, len(d.order))
	copy(out, d.order)
	return out
}

// Sensors lists slots in schema order. With activeOnly only slots holding a
// non-null value are returned.
func (d *Device) Sensors(activeOnly bool) []Slot {
	out := make([]Slot, 0, len(d.order))
	for _, m := range d.order {
		slot := d.slots[m]
		if activeOnly && !slot.HasValue() {
			continue
		}
		out = append(out, *slot)
	}
	return out
}

// State returns the state slot as a string, or "" when it is not a string.
func (d *Device) State() string {
	return d.stringValue(State)
}

// Online reports whether the device's state slot reads "Online".
func (d *Device) Online() bool {
	return d.State() == StateOnline
}

// HardwareVersion returns the hw_version slot as a string.
func (d *Device) HardwareVersion() string {
	return d.stringValue(HardwareVersion)
}

// SoftwareVersion returns the sw_version slot as a string.
func (d *Device) SoftwareVersion() string {
	return d.stringValue(SoftwareVersion)
}

// Position returns the drive position percentage clamped to 0..100.
// ok is false for stations and for drives that did not report a numeric position.
func (d *Device) Position() (pos int, ok bool) {
	v, observed := d.Value(Position)
	if !observed {
		return 0, false
	}
	f, isNum := Float(v)
	if !isNum {
		return 0, false
	}
	p := int(math.Round(f))
	switch {
	case p < 0:
		p = 0
	case p > 100:
		p = 100
	}
	return p, true
}

func (d *Device) stringValue(m Measurement) string {
	v, _ := d.Value(m)
	s, _ := v.(string)
	return s
}

// Float converts a slot value to float64 when it is numeric.
func Float(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
