package registry

import (
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/nerrad567/gregor-bridge/internal/device"
)

const stationMAC = "aa:bb:cc:dd:ee:01"

func mustDevice(t *testing.T, raw map[string]any) *device.Device {
	t.Helper()
	d, err := device.Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	return d
}

func station(t *testing.T) *device.Device {
	return mustDevice(t, map[string]any{
		"id": float64(1), "type": "Station", "name": "Office", "mac": stationMAC,
		"status": "Online", "room": map[string]any{"id": float64(5), "name": "Office"},
	})
}

func drive(t *testing.T) *device.Device {
	return mustDevice(t, map[string]any{
		"id": float64(2), "type": "Drive", "name": "Skylight", "mac": "aa:bb:cc:dd:ee:02",
		"status": "Online", "room_id": float64(5),
	})
}

type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) handle(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) ofType(t EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, ev := range r.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func TestRegistry_RegisterLookup(t *testing.T) {
	r := New(nil, Options{})

	if _, ok := r.Lookup(stationMAC, device.Temperature); ok {
		t.Fatal("Lookup() found a sensor in an empty registry")
	}

	s := NewSensor(device.Temperature, "Office Temperature", "℃")
	if err := r.Register("AA-BB-CC-DD-EE-01", s); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	got, ok := r.Lookup("aabbccddee01", device.Temperature)
	if !ok || got != s {
		t.Fatalf("Lookup() = %v, %v; want registered sensor", got, ok)
	}
	if got.State().MAC != stationMAC {
		t.Errorf("sensor MAC = %q, want %q", got.State().MAC, stationMAC)
	}

	if _, ok := r.Lookup(stationMAC, device.Humidity); ok {
		t.Error("Lookup() matched a different kind")
	}

	replacement := NewSensor(device.Temperature, "Replacement", "℃")
	if err := r.Register(stationMAC, replacement); err != nil {
		t.Fatal(err)
	}
	if got, _ := r.Lookup(stationMAC, device.Temperature); got != replacement {
		t.Error("Register() did not overwrite the existing key")
	}

	if err := r.Register("bogus", NewSensor(device.CO2, "x", "")); err == nil {
		t.Error("Register() accepted an invalid MAC")
	}
}

func TestRegistry_ApplyValueAvailability(t *testing.T) {
	r := New(nil, Options{})
	s := NewSensor(device.Temperature, "T", "℃")
	if err := r.Register(stationMAC, s); err != nil {
		t.Fatal(err)
	}

	if !r.ApplyValue(stationMAC, device.Temperature, 21.5) {
		t.Fatal("ApplyValue() reported no sensor")
	}
	if v, ok := s.Value(); !ok || v != 21.5 || !s.Available() {
		t.Fatalf("after value: value=%v has=%v available=%v", v, ok, s.Available())
	}

	r.ApplyValue(stationMAC, device.Temperature, nil)
	if s.Available() {
		t.Error("null value left sensor available")
	}
	if v, ok := s.Value(); !ok || v != 21.5 {
		t.Errorf("retain policy dropped the stored value: %v, %v", v, ok)
	}

	r.ApplyValue(stationMAC, device.Temperature, 22.0)
	if !s.Available() {
		t.Error("fresh value did not restore availability")
	}
}

func TestRegistry_ApplyValueClearPolicy(t *testing.T) {
	r := New(nil, Options{StalePolicy: StaleClear})
	s := NewSensor(device.Humidity, "H", "%")
	if err := r.Register(stationMAC, s); err != nil {
		t.Fatal(err)
	}

	r.ApplyValue(stationMAC, device.Humidity, 40.0)
	r.ApplyValue(stationMAC, device.Humidity, nil)

	if v, ok := s.Value(); ok || v != nil {
		t.Errorf("clear policy kept value %v", v)
	}
	if s.Available() {
		t.Error("sensor still available")
	}
}

func TestRegistry_ApplyValueUnregisteredIsNoop(t *testing.T) {
	r := New(nil, Options{})
	rec := &eventRecorder{}
	r.Subscribe(rec.handle)

	if r.ApplyValue(stationMAC, device.CO2, 600.0) {
		t.Error("ApplyValue() reported an update for an unregistered key")
	}
	if r.ApplyValue("garbage", device.CO2, 600.0) {
		t.Error("ApplyValue() accepted an invalid MAC")
	}
	if _, ok := r.Lookup(stationMAC, device.CO2); ok {
		t.Error("ApplyValue() created a sensor")
	}
	if len(rec.ofType(EventSensor)) != 0 {
		t.Error("no-op emitted an event")
	}
}

func TestRegistry_SensorEventsReportChange(t *testing.T) {
	r := New(nil, Options{})
	r.Provision([]*device.Device{station(t)})
	rec := &eventRecorder{}
	r.Subscribe(rec.handle)

	r.ApplyValue(stationMAC, device.Temperature, 21.5)
	r.ApplyValue(stationMAC, device.Temperature, 21.5)
	r.ApplyValue(stationMAC, device.Temperature, 22.0)

	events := rec.ofType(EventSensor)
	if len(events) != 3 {
		t.Fatalf("sensor events = %d, want 3", len(events))
	}
	want := []bool{true, false, true}
	for i, ev := range events {
		if ev.Changed != want[i] {
			t.Errorf("event %d Changed = %v, want %v", i, ev.Changed, want[i])
		}
		if ev.DeviceID != 1 || ev.DeviceKind != "Station" {
			t.Errorf("event %d device = %d/%s", i, ev.DeviceID, ev.DeviceKind)
		}
	}
}

func TestRegistry_Unsubscribe(t *testing.T) {
	r := New(nil, Options{})
	r.Provision([]*device.Device{station(t)})

	rec := &eventRecorder{}
	unsubscribe := r.Subscribe(rec.handle)
	r.ApplyValue(stationMAC, device.CO2, 500.0)
	unsubscribe()
	r.ApplyValue(stationMAC, device.CO2, 510.0)

	if n := len(rec.ofType(EventSensor)); n != 1 {
		t.Errorf("events after unsubscribe = %d, want 1", n)
	}
}

func TestRegistry_PanickingHandlerDoesNotBreakUpdates(t *testing.T) {
	r := New(nil, Options{})
	r.Provision([]*device.Device{station(t)})
	r.Subscribe(func(Event) { panic("boom") })

	if !r.ApplyValue(stationMAC, device.CO2, 500.0) {
		t.Fatal("ApplyValue() failed")
	}
	s, _ := r.Lookup(stationMAC, device.CO2)
	if v, _ := s.Value(); v != 500.0 {
		t.Errorf("value = %v, want 500", v)
	}
}

func TestRegistry_Provision(t *testing.T) {
	r := New(nil, Options{})
	st, dr := station(t), drive(t)

	if n := r.Provision([]*device.Device{st, dr}); n != 2 {
		t.Fatalf("Provision() = %d, want 2", n)
	}

	for _, kind := range device.SensorKinds(device.KindStation) {
		if _, ok := r.Lookup(st.MAC, kind); !ok {
			t.Errorf("station sensor %s not provisioned", kind)
		}
	}
	for _, kind := range device.SensorKinds(device.KindDrive) {
		if _, ok := r.Lookup(dr.MAC, kind); !ok {
			t.Errorf("drive sensor %s not provisioned", kind)
		}
	}
	if _, ok := r.Lookup(dr.MAC, device.CO2); ok {
		t.Error("drive got a co2 sensor")
	}

	s, _ := r.Lookup(st.MAC, device.Temperature)
	if s.Name() != "Office Temperature" || s.Unit() != "℃" {
		t.Errorf("sensor metadata = %q/%q", s.Name(), s.Unit())
	}
	if s.Available() {
		t.Error("fresh sensor is available before any poll")
	}

	if _, ok := r.Cover(st.MAC); ok {
		t.Error("station got a cover")
	}
	cover, ok := r.CoverByID(2)
	if !ok {
		t.Fatal("drive cover missing")
	}
	if room, ok := cover.RoomID(); !ok || room != 5 {
		t.Errorf("cover room = %d, %v; want 5", room, ok)
	}

	mode, ok := r.Mode(5)
	if !ok || mode.Current() != "auto" {
		t.Fatalf("room 5 mode = %v, %v", mode, ok)
	}

	if diff := cmp.Diff([]int64{1, 2}, r.DeviceIDs()); diff != "" {
		t.Errorf("DeviceIDs() mismatch (-want +got):\n%s", diff)
	}
}

func TestRegistry_ProvisionKeepsExistingSensors(t *testing.T) {
	r := New(nil, Options{})
	r.Provision([]*device.Device{station(t)})
	r.ApplyValue(stationMAC, device.Temperature, 19.0)
	before, _ := r.Lookup(stationMAC, device.Temperature)

	if n := r.Provision([]*device.Device{station(t)}); n != 0 {
		t.Errorf("re-provision reported %d new devices", n)
	}

	after, _ := r.Lookup(stationMAC, device.Temperature)
	if before != after {
		t.Error("re-provision replaced an existing sensor")
	}
	if v, _ := after.Value(); v != 19.0 {
		t.Errorf("value lost on re-provision: %v", v)
	}
}

func TestRegistry_InstancesAreIndependent(t *testing.T) {
	a := New(nil, Options{})
	b := New(nil, Options{})
	a.Provision([]*device.Device{station(t)})

	if _, ok := b.Lookup(stationMAC, device.Temperature); ok {
		t.Error("registries share sensors")
	}
	if len(b.Entities()) != 0 {
		t.Error("registries share entities")
	}
}

func TestRegistry_UpdateEntity(t *testing.T) {
	r := New(nil, Options{})
	r.Provision([]*device.Device{station(t), drive(t)})
	rec := &eventRecorder{}
	r.Subscribe(rec.handle)

	ok := r.UpdateEntity("aa:bb:cc:dd:ee:02", EntityUpdate{
		Status:    "Online",
		Available: true,
		Attributes: map[string]any{
			AttrHardwareVersion: "1.0",
			AttrRSSI:            -60.0,
		},
	})
	if !ok {
		t.Fatal("UpdateEntity() reported unknown MAC")
	}

	ent, _ := r.EntityByID(2)
	got := ent.State()
	want := EntityState{
		DeviceID:   2,
		MAC:        "aa:bb:cc:dd:ee:02",
		Kind:       device.KindDrive,
		Name:       "Skylight",
		Status:     "Online",
		Available:  true,
		Attributes: map[string]any{AttrHardwareVersion: "1.0", AttrRSSI: -60.0},
	}
	if diff := cmp.Diff(want, got, cmpopts.IgnoreFields(EntityState{}, "UpdatedAt", "RoomID")); diff != "" {
		t.Errorf("entity mismatch (-want +got):\n%s", diff)
	}

	cover, _ := r.CoverByID(2)
	if !cover.Snapshot().Available {
		t.Error("entity availability not mirrored onto cover")
	}

	if len(rec.ofType(EventEntity)) != 1 {
		t.Errorf("entity events = %d, want 1", len(rec.ofType(EventEntity)))
	}

	if r.UpdateEntity("aa:bb:cc:dd:ee:99", EntityUpdate{}) {
		t.Error("UpdateEntity() accepted an unknown MAC")
	}
}

func TestRegistry_Entities_Sorted(t *testing.T) {
	r := New(nil, Options{})
	r.Provision([]*device.Device{station(t), drive(t)})

	var names []string
	for _, e := range r.Entities() {
		names = append(names, e.State().Name)
	}
	if diff := cmp.Diff([]string{"Office", "Skylight"}, names); diff != "" {
		t.Errorf("Entities() order (-want +got):\n%s", diff)
	}
}

func TestRegistry_Sensors(t *testing.T) {
	r := New(nil, Options{})
	r.Provision([]*device.Device{drive(t)})

	states := r.Sensors("aa:bb:cc:dd:ee:02")
	var kinds []device.Measurement
	for _, s := range states {
		kinds = append(kinds, s.Kind)
	}
	if diff := cmp.Diff(device.SensorKinds(device.KindDrive), kinds); diff != "" {
		t.Errorf("Sensors() kinds (-want +got):\n%s", diff)
	}
	if got := r.Sensors("aa:bb:cc:dd:ee:77"); len(got) != 0 {
		t.Error("Sensors() returned entries for an unknown device")
	}
}

func TestRegistry_CoverAndModeEvents(t *testing.T) {
	r := New(nil, Options{})
	r.Provision([]*device.Device{drive(t)})
	rec := &eventRecorder{}
	r.Subscribe(rec.handle)

	cover, _ := r.CoverByID(2)
	cover.ApplyPosition(40, true)
	cover.Open()

	covers := rec.ofType(EventCover)
	if len(covers) != 2 {
		t.Fatalf("cover events = %d, want 2", len(covers))
	}
	if covers[1].Cover.State != CoverOpening {
		t.Errorf("last cover event state = %s, want opening", covers[1].Cover.State)
	}

	mode := r.EnsureMode(5, "")
	if err := mode.Select("airing"); err != nil {
		t.Fatal(err)
	}
	modes := rec.ofType(EventMode)
	if len(modes) != 1 || modes[0].Mode.Mode != "airing" || modes[0].Mode.RoomID != 5 {
		t.Errorf("mode events = %+v", modes)
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := New(nil, Options{})
	r.Provision([]*device.Device{station(t)})

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := range 100 {
				r.ApplyValue(stationMAC, device.Temperature, float64(i*100+j))
			}
		}()
		go func() {
			defer wg.Done()
			for range 100 {
				if s, ok := r.Lookup(stationMAC, device.Temperature); ok {
					_ = s.State()
				}
				_ = r.Entities()
			}
		}()
	}
	wg.Wait()

	s, _ := r.Lookup(stationMAC, device.Temperature)
	if !s.Available() {
		t.Error("sensor unavailable after concurrent writes")
	}
}

func TestParseStalePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    StalePolicy
		wantErr bool
	}{
		{"", StaleRetain, false},
		{"retain", StaleRetain, false},
		{"clear", StaleClear, false},
		{"forget", "", true},
	}
	for _, tt := range tests {
		got, err := ParseStalePolicy(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseStalePolicy(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestSensor_UpdatedAt(t *testing.T) {
	r := New(nil, Options{})
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return fixed }

	s := NewSensor(device.Noise, "N", "dBA")
	if err := r.Register(stationMAC, s); err != nil {
		t.Fatal(err)
	}
	r.ApplyValue(stationMAC, device.Noise, nil)

	if !s.UpdatedAt().Equal(fixed) {
		t.Errorf("UpdatedAt() = %v, want %v", s.UpdatedAt(), fixed)
	}
}
