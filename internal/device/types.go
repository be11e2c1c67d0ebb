package device

import "fmt"

// Kind discriminates the hardware families reported by the cloud.
type Kind string

// Supported device kinds, as spelled in the cloud's "type" field.
const (
	KindStation Kind = "Station"
	KindDrive   Kind = "Drive"
)

// ParseKind converts a cloud "type" value into a Kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindStation, KindDrive:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownDeviceKind, s)
	}
}

// String returns the cloud spelling of the kind.
func (k Kind) String() string {
	return string(k)
}

// Measurement names a slot on a Device and, by extension, the Sensor
// projected from it.
type Measurement string

// Measurement slots.
const (
	CO2             Measurement = "co2"
	Temperature     Measurement = "temperature"
	Humidity        Measurement = "humidity"
	Noise           Measurement = "noise"
	Luminosity      Measurement = "luminosity"
	Radiation       Measurement = "radiation"
	RSSI            Measurement = "rssi"
	HardwareVersion Measurement = "hw_version"
	SoftwareVersion Measurement = "sw_version"
	State           Measurement = "state"
	Voltage         Measurement = "voltage"
	BatteryLevel    Measurement = "battery_level"
	Position        Measurement = "position"
)

// Device states reported in the state slot.
const (
	StateOnline  = "Online"
	StateOffline = "Offline"
)

// slotDef describes one slot in a kind's schema.
type slotDef struct {
	measurement Measurement
	title       string
	unit        string
}

// commonSlots are carried by every kind.
var commonSlots = []slotDef{
	{RSSI, "RSSI", "dB"},
	{HardwareVersion, "Hardware Version", ""},
	{SoftwareVersion, "Software Version", ""},
	{State, "State", ""},
}

var kindSlots = map[Kind][]slotDef{
	KindStation: {
		{CO2, "CO₂", "ppm"},
		{Temperature, "Temperature", "℃"},
		{Humidity, "Humidity", "%"},
		{Noise, "Noise", "dBA"},
		{Luminosity, "Luminosity", "lx"},
		{Radiation, "Radiation", "µSv/h"},
	},
	KindDrive: {
		{Noise, "Noise", "dBA"},
		{Voltage, "Battery voltage", "V"},
		{BatteryLevel, "Battery level", "%"},
		{Position, "Position", "%"},
	},
}

// sensorKinds lists, per kind, the measurements exposed as Sensors.
// Attribute-like slots (versions, state) are not sensors.
var sensorKinds = map[Kind][]Measurement{
	KindStation: {CO2, Temperature, Humidity, Noise, Luminosity, Radiation, RSSI},
	KindDrive:   {Noise, Voltage, BatteryLevel, RSSI, Position},
}

// SensorKinds returns the measurements projected as Sensors for a kind.
// The returned slice is a copy.
func SensorKinds(k Kind) []Measurement {
	src := sensorKinds[k]
	out := make([]Measurement, len(src))
	copy(out, src)
	return out
}

// Describe returns the title and unit of a measurement for a kind.
func Describe(k Kind, m Measurement) (title, unit string, ok bool) {
	for _, def := range schema(k) {
		if def.measurement == m {
			return def.title, def.unit, true
		}
	}
	return "", "", false
}

// schema returns the full ordered slot list for a kind.
func schema(k Kind) []slotDef {
	specific, ok := kindSlots[k]
	if !ok {
		return nil
	}
	defs := make([]slotDef, 0, len(specific)+len(commonSlots))
	defs = append(defs, specific...)
	defs = append(defs, commonSlots...)
	return defs
}
