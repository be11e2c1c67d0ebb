package device

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// sensorFields maps vendor sensors_raw keys to slots.
var sensorFields = []struct {
	vendor      string
	measurement Measurement
}{
	{"co2", CO2},
	{"temperature", Temperature},
	{"humidity", Humidity},
	{"rssi", RSSI},
	{"noise", Noise},
	{"light", Luminosity},
	{"radiation", Radiation},
	{"battery_voltage", Voltage},
	{"battery_perc", BatteryLevel},
	{"position", Position},
}

// topLevelFields maps vendor record keys to slots.
var topLevelFields = []struct {
	vendor      string
	measurement Measurement
}{
	{"hardware_version", HardwareVersion},
	{"software_version", SoftwareVersion},
}

// Normalize converts one raw cloud device record into a Device.
//
// Only measurements present in the record are populated. A record without a
// "status" key gets the state "Offline". Vendor sensors the kind does not
// define are ignored. Normalize does no I/O and does not retain raw.
func Normalize(raw map[string]any) (*Device, error) {
	typ, _ := raw["type"].(string)
	if typ == "" {
		return nil, fmt.Errorf("%w: missing type", ErrUnknownDeviceKind)
	}
	kind, err := ParseKind(typ)
	if err != nil {
		return nil, err
	}

	id, ok := toInt64(raw["id"])
	if !ok {
		return nil, fmt.Errorf("%w: missing or non-numeric id", ErrInvalidDevice)
	}

	mac, _ := raw["mac"].(string)
	if mac == "" {
		return nil, fmt.Errorf("%w: device %d has no mac", ErrInvalidDevice, id)
	}

	name, _ := raw["name"].(string)

	d, err := New(id, kind, name, mac)
	if err != nil {
		return nil, fmt.Errorf("device %d: %w", id, err)
	}
	d.Model, _ = raw["model"].(string)
	applyRoom(d, raw)

	for _, f := range topLevelFields {
		if v, present := raw[f.vendor]; present {
			d.mustSet(f.measurement, normalizeValue(v))
		}
	}

	if v, present := raw["status"]; present {
		d.mustSet(State, normalizeValue(v))
	} else {
		d.mustSet(State, StateOffline)
	}

	if sensors, ok := raw["sensors_raw"].(map[string]any); ok {
		for _, f := range sensorFields {
			v, present := sensors[f.vendor]
			if !present {
				continue
			}
			if _, defined := d.slots[f.measurement]; !defined {
				continue
			}
			d.mustSet(f.measurement, normalizeValue(v))
		}
	}

	return d, nil
}

// NormalizeJSON decodes a single device record and normalizes it.
func NormalizeJSON(data []byte) (*Device, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDevice, err)
	}
	return Normalize(raw)
}

// NormalizeMAC returns the lower-case, colon separated form of a MAC address.
// Bare twelve digit hex strings are accepted as well as every form net.ParseMAC understands.
func NormalizeMAC(mac string) (string, error) {
	s := strings.TrimSpace(mac)
	if len(s) == 12 && isHex(s) {
		var b strings.Builder
		for i := 0; i < 12; i += 2 {
			if i > 0 {
				b.WriteByte(':')
			}
			b.WriteString(s[i : i+2])
		}
		s = b.String()
	}

	hw, err := net.ParseMAC(s)
	if err != nil || len(hw) != 6 {
		return "", fmt.Errorf("%w: %q", ErrInvalidMAC, mac)
	}
	return hw.String(), nil
}

// mustSet is used where the slot is known to exist for the kind.
func (d *Device) mustSet(m Measurement, v any) {
	if err := d.Set(m, v); err != nil {
		panic(err)
	}
}

// applyRoom reads room membership from either room_id/room_name or a nested room object.
func applyRoom(d *Device, raw map[string]any) {
	if room, ok := raw["room"].(map[string]any); ok {
		if id, ok := toInt64(room["id"]); ok {
			d.RoomID = &id
		}
		d.RoomName, _ = room["name"].(string)
	}
	if id, ok := toInt64(raw["room_id"]); ok {
		d.RoomID = &id
	}
	if name, ok := raw["room_name"].(string); ok && name != "" {
		d.RoomName = name
	}
}

// normalizeValue turns decoder output into the value types slots carry:
// float64 for numbers, string, bool or nil.
func normalizeValue(v any) any {
	switch n := v.(type) {
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return f
		}
		return n.String()
	default:
		return v
	}
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		if n != float64(int64(n)) {
			return 0, false
		}
		return int64(n), true
	case int:
		return int64(n), true
	case int64:
		return n, true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}

func isHex(s string) bool {
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
