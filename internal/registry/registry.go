package registry

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/nerrad567/gregor-bridge/internal/cloud"
	"github.com/nerrad567/gregor-bridge/internal/device"
)

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures a Registry.
type Options struct {
	// StalePolicy applied by ApplyValue. Default: StaleRetain.
	StalePolicy StalePolicy

	// Logger is optional.
	Logger Logger
}

// Registry maps devices to their long-lived sensors, entities, covers and
// room mode selects. One Registry exists per authenticated cloud session.
//
// The registry never creates a Sensor on write: sensors exist only after
// Register or Provision.
//
// All public methods are thread-safe.
type Registry struct {
	client *cloud.Client
	policy StalePolicy
	logger Logger
	now    func() time.Time

	mu       sync.RWMutex
	sensors  map[Key]*Sensor
	entities map[string]*Entity
	byID     map[int64]string
	covers   map[string]*Cover
	modes    map[int64]*ModeSelect

	subsMu  sync.RWMutex
	subs    map[int]Handler
	nextSub int
}

// New creates an empty Registry bound to the session's API client.
func New(client *cloud.Client, opts Options) *Registry {
	policy := opts.StalePolicy
	if policy == "" {
		policy = StaleRetain
	}

	var logger Logger = noopLogger{}
	if opts.Logger != nil {
		logger = opts.Logger
	}

	return &Registry{
		client:   client,
		policy:   policy,
		logger:   logger,
		now:      time.Now,
		sensors:  make(map[Key]*Sensor),
		entities: make(map[string]*Entity),
		byID:     make(map[int64]string),
		covers:   make(map[string]*Cover),
		modes:    make(map[int64]*ModeSelect),
		subs:     make(map[int]Handler),
	}
}

// Client returns the API client of the session.
func (r *Registry) Client() *cloud.Client {
	return r.client
}

// StalePolicy returns the policy applied to unavailable sensors.
func (r *Registry) StalePolicy() StalePolicy {
	return r.policy
}

// Register stores s under (mac, s.Kind()), replacing any sensor already there.
func (r *Registry) Register(mac string, s *Sensor) error {
	normalized, err := device.NormalizeMAC(mac)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.mac = normalized
	s.mu.Unlock()

	r.mu.Lock()
	r.sensors[Key{MAC: normalized, Kind: s.kind}] = s
	r.mu.Unlock()

	r.logger.Debug("sensor registered", "mac", normalized, "kind", s.kind)
	return nil
}

// Lookup returns the sensor registered under (mac, kind).
// A missing entry is normal and reported with ok false.
func (r *Registry) Lookup(mac string, kind device.Measurement) (*Sensor, bool) {
	normalized, err := device.NormalizeMAC(mac)
	if err != nil {
		return nil, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sensors[Key{MAC: normalized, Kind: kind}]
	return s, ok
}

// ApplyValue updates the sensor under (mac, kind). A nil value marks it
// unavailable; anything else stores the value and marks it available.
//
// It is a no-op when no sensor is registered under the key and reports
// whether a sensor was updated.
func (r *Registry) ApplyValue(mac string, kind device.Measurement, value any) bool {
	normalized, err := device.NormalizeMAC(mac)
	if err != nil {
		return false
	}

	r.mu.RLock()
	s, ok := r.sensors[Key{MAC: normalized, Kind: kind}]
	ent := r.entities[normalized]
	r.mu.RUnlock()

	if !ok {
		return false
	}

	now := r.now()
	changed := s.apply(value, r.policy, now)
	state := s.State()

	ev := Event{Type: EventSensor, Time: now, Changed: changed, Sensor: &state}
	if ent != nil {
		ev.DeviceID = ent.deviceID
		ev.DeviceKind = string(ent.kind)
	}
	r.emit(ev)
	return true
}

// Sensors returns the state of every sensor of a device, in measurement order.
func (r *Registry) Sensors(mac string) []SensorState {
	normalized, err := device.NormalizeMAC(mac)
	if err != nil {
		return nil
	}

	r.mu.RLock()
	ent := r.entities[normalized]
	var kinds []device.Measurement
	if ent != nil {
		kinds = device.SensorKinds(ent.kind)
	}
	found := make([]*Sensor, 0, len(kinds))
	for _, k := range kinds {
		if s, ok := r.sensors[Key{MAC: normalized, Kind: k}]; ok {
			found = append(found, s)
		}
	}
	r.mu.RUnlock()

	out := make([]SensorState, 0, len(found))
	for _, s := range found {
		out = append(out, s.State())
	}
	return out
}

// Provision builds the entity, sensors and, for drives, the cover of every
// device, plus a mode select per room seen. Already provisioned devices keep
// their sensors and values; only their metadata is refreshed.
//
// It returns the number of newly provisioned devices.
func (r *Registry) Provision(devices []*device.Device) int {
	added := 0
	for _, d := range devices {
		if r.provision(d) {
			added++
		}
	}
	r.logger.Info("devices provisioned", "count", len(devices), "new", added)
	return added
}

func (r *Registry) provision(d *device.Device) bool {
	r.mu.Lock()

	ent, exists := r.entities[d.MAC]
	if exists {
		ent.describe(d)
	} else {
		ent = newEntity(d)
		r.entities[d.MAC] = ent
		r.byID[d.ID] = d.MAC
	}

	for _, kind := range device.SensorKinds(d.Kind) {
		key := Key{MAC: d.MAC, Kind: kind}
		if _, ok := r.sensors[key]; ok {
			continue
		}
		title, unit, _ := device.Describe(d.Kind, kind)
		s := NewSensor(kind, displayName(d, title), unit)
		s.mac = d.MAC
		r.sensors[key] = s
	}

	if d.Kind == device.KindDrive {
		cover, ok := r.covers[d.MAC]
		if !ok {
			cover = NewCover(d.ID, d.MAC, d.Name)
			cover.onChange = r.emitCover
			r.covers[d.MAC] = cover
		}
		cover.setRoom(d.RoomID)
	}

	if d.RoomID != nil {
		r.ensureModeLocked(*d.RoomID, d.RoomName)
	}

	r.mu.Unlock()

	if !exists {
		r.logger.Debug("device provisioned", "id", d.ID, "mac", d.MAC, "kind", d.Kind)
	}
	return !exists
}

func displayName(d *device.Device, title string) string {
	base := d.Name
	if base == "" {
		base = d.MAC
	}
	return base + " " + title
}

// Entity returns the entity of a device by MAC.
func (r *Registry) Entity(mac string) (*Entity, bool) {
	normalized, err := device.NormalizeMAC(mac)
	if err != nil {
		return nil, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entities[normalized]
	return e, ok
}

// EntityByID returns the entity of a device by cloud id.
func (r *Registry) EntityByID(id int64) (*Entity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	mac, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	return r.entities[mac], true
}

// Entities returns every entity ordered by name, then MAC.
func (r *Registry) Entities() []*Entity {
	r.mu.RLock()
	out := make([]*Entity, 0, len(r.entities))
	for _, e := range r.entities {
		out = append(out, e)
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b *Entity) int {
		an, bn := a.State().Name, b.State().Name
		if c := cmp.Compare(an, bn); c != 0 {
			return c
		}
		return cmp.Compare(a.mac, b.mac)
	})
	return out
}

// DeviceIDs returns the cloud id of every provisioned device, ascending.
func (r *Registry) DeviceIDs() []int64 {
	r.mu.RLock()
	ids := make([]int64, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	slices.Sort(ids)
	return ids
}

// UpdateEntity applies a poll result to a device's entity. Availability is
// mirrored onto the device's cover. It reports false when the MAC is unknown.
func (r *Registry) UpdateEntity(mac string, u EntityUpdate) bool {
	normalized, err := device.NormalizeMAC(mac)
	if err != nil {
		return false
	}

	r.mu.RLock()
	ent, ok := r.entities[normalized]
	cover := r.covers[normalized]
	r.mu.RUnlock()

	if !ok {
		return false
	}

	now := r.now()
	changed := ent.apply(u, now)
	if cover != nil {
		cover.setRoom(u.RoomID)
		cover.setAvailable(u.Available)
	}
	if u.RoomID != nil {
		r.mu.Lock()
		r.ensureModeLocked(*u.RoomID, u.RoomName)
		r.mu.Unlock()
	}

	state := ent.State()
	r.emit(Event{
		Type:       EventEntity,
		Time:       now,
		Changed:    changed,
		DeviceID:   ent.deviceID,
		DeviceKind: string(ent.kind),
		Entity:     &state,
	})
	return true
}

// Cover returns the cover of a drive by MAC.
func (r *Registry) Cover(mac string) (*Cover, bool) {
	normalized, err := device.NormalizeMAC(mac)
	if err != nil {
		return nil, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.covers[normalized]
	return c, ok
}

// CoverByID returns the cover of a drive by cloud id.
func (r *Registry) CoverByID(id int64) (*Cover, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	mac, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	c, ok := r.covers[mac]
	return c, ok
}

// Covers returns every cover ordered by device id.
func (r *Registry) Covers() []*Cover {
	r.mu.RLock()
	out := make([]*Cover, 0, len(r.covers))
	for _, c := range r.covers {
		out = append(out, c)
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b *Cover) int { return cmp.Compare(a.deviceID, b.deviceID) })
	return out
}

// Mode returns the mode select of a room.
func (r *Registry) Mode(roomID int64) (*ModeSelect, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.modes[roomID]
	return m, ok
}

// EnsureMode returns the mode select of a room, creating it when missing.
func (r *Registry) EnsureMode(roomID int64, name string) *ModeSelect {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ensureModeLocked(roomID, name)
}

func (r *Registry) ensureModeLocked(roomID int64, name string) *ModeSelect {
	if m, ok := r.modes[roomID]; ok {
		return m
	}
	m := NewModeSelect(roomID, name)
	m.onChange = r.emitMode
	r.modes[roomID] = m
	return m
}

// Modes returns every room mode select ordered by room id.
func (r *Registry) Modes() []*ModeSelect {
	r.mu.RLock()
	out := make([]*ModeSelect, 0, len(r.modes))
	for _, m := range r.modes {
		out = append(out, m)
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b *ModeSelect) int { return cmp.Compare(a.roomID, b.roomID) })
	return out
}

func (r *Registry) emitCover(snap CoverSnapshot) {
	r.emit(Event{
		Type:       EventCover,
		Time:       snap.UpdatedAt,
		Changed:    true,
		DeviceID:   snap.DeviceID,
		DeviceKind: string(device.KindDrive),
		Cover:      &snap,
	})
}

func (r *Registry) emitMode(state ModeState) {
	r.emit(Event{
		Type:    EventMode,
		Time:    state.UpdatedAt,
		Changed: true,
		Mode:    &state,
	})
}
