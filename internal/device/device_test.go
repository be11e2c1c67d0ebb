package device

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseKind(t *testing.T) {
	for _, s := range []string{"Station", "Drive"} {
		if k, err := ParseKind(s); err != nil || k.String() != s {
			t.Errorf("ParseKind(%q) = %q, %v", s, k, err)
		}
	}
	if _, err := ParseKind("station"); !errors.Is(err, ErrUnknownDeviceKind) {
		t.Errorf("ParseKind is case sensitive; got %v", err)
	}
}

func TestNew_SlotSchema(t *testing.T) {
	tests := []struct {
		kind Kind
		want []Measurement
	}{
		{
			kind: KindStation,
			want: []Measurement{CO2, Temperature, Humidity, Noise, Luminosity, Radiation, RSSI, HardwareVersion, SoftwareVersion, State},
		},
		{
			kind: KindDrive,
			want: []Measurement{Noise, Voltage, BatteryLevel, Position, RSSI, HardwareVersion, SoftwareVersion, State},
		},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			d, err := New(1, tt.kind, "x", "aa:bb:cc:dd:ee:ff")
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, d.Measurements()); diff != "" {
				t.Errorf("Measurements() mismatch (-want +got):\n%s", diff)
			}
			for _, s := range d.Sensors(false) {
				if s.Observed() {
					t.Errorf("fresh device slot %s is observed", s.Measurement)
				}
			}
		})
	}
}

func TestDevice_SetUnknownSlot(t *testing.T) {
	d, err := New(1, KindDrive, "x", "aa:bb:cc:dd:ee:ff")
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Set(Temperature, 20.0); !errors.Is(err, ErrUnknownSlot) {
		t.Errorf("Set(temperature) on drive error = %v, want ErrUnknownSlot", err)
	}
}

func TestDevice_SensorsActiveOnly(t *testing.T) {
	d, err := New(1, KindStation, "x", "aa:bb:cc:dd:ee:ff")
	if err != nil {
		t.Fatal(err)
	}
	_ = d.Set(Temperature, 20.0)
	_ = d.Set(CO2, nil)
	_ = d.Set(State, StateOnline)

	var got []Measurement
	for _, s := range d.Sensors(true) {
		got = append(got, s.Measurement)
	}
	want := []Measurement{Temperature, State}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Sensors(true) mismatch (-want +got):\n%s", diff)
	}

	if n := len(d.Sensors(false)); n != 10 {
		t.Errorf("Sensors(false) returned %d slots, want 10", n)
	}
}

func TestDevice_SlotMetadata(t *testing.T) {
	title, unit, ok := Describe(KindStation, CO2)
	if !ok || title != "CO₂" || unit != "ppm" {
		t.Errorf("Describe(station, co2) = %q %q %v", title, unit, ok)
	}
	title, unit, ok = Describe(KindDrive, Voltage)
	if !ok || title != "Battery voltage" || unit != "V" {
		t.Errorf("Describe(drive, voltage) = %q %q %v", title, unit, ok)
	}
	if _, _, ok := Describe(KindDrive, Humidity); ok {
		t.Error("Describe(drive, humidity) should not exist")
	}
}

func TestDevice_Position(t *testing.T) {
	tests := []struct {
		name   string
		value  any
		set    bool
		want   int
		wantOK bool
	}{
		{name: "unset", set: false, want: 0, wantOK: false},
		{name: "null", value: nil, set: true, want: 0, wantOK: false},
		{name: "closed", value: float64(0), set: true, want: 0, wantOK: true},
		{name: "half", value: 49.6, set: true, want: 50, wantOK: true},
		{name: "over range", value: float64(140), set: true, want: 100, wantOK: true},
		{name: "non numeric", value: "open", set: true, want: 0, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := New(1, KindDrive, "x", "aa:bb:cc:dd:ee:ff")
			if err != nil {
				t.Fatal(err)
			}
			if tt.set {
				_ = d.Set(Position, tt.value)
			}
			got, ok := d.Position()
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("Position() = %d, %v; want %d, %v", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestSensorKinds_ReturnsCopy(t *testing.T) {
	kinds := SensorKinds(KindStation)
	kinds[0] = Position
	if SensorKinds(KindStation)[0] != CO2 {
		t.Error("SensorKinds exposes its backing slice")
	}
	if diff := cmp.Diff([]Measurement{Noise, Voltage, BatteryLevel, RSSI, Position}, SensorKinds(KindDrive)); diff != "" {
		t.Errorf("SensorKinds(drive) mismatch (-want +got):\n%s", diff)
	}
}
