package registry

import "time"

// EventType discriminates registry change events.
type EventType string

// Event types.
const (
	EventSensor EventType = "sensor"
	EventEntity EventType = "entity"
	EventCover  EventType = "cover"
	EventMode   EventType = "mode"
)

// Event describes one update applied to the registry. Exactly one of the
// state pointers is set, matching Type.
//
// Sensor events are emitted for every applied value, including repeats;
// Changed is false when neither value nor availability moved.
type Event struct {
	Type    EventType `json:"type"`
	Time    time.Time `json:"time"`
	Changed bool      `json:"changed"`

	DeviceID   int64          `json:"device_id,omitempty"`
	DeviceKind string         `json:"device_kind,omitempty"`
	Sensor     *SensorState   `json:"sensor,omitempty"`
	Entity     *EntityState   `json:"entity,omitempty"`
	Cover      *CoverSnapshot `json:"cover,omitempty"`
	Mode       *ModeState     `json:"mode,omitempty"`
}

// Handler receives registry events. Handlers run on the goroutine that made
// the change and must not block or call back into mutating registry methods.
type Handler func(Event)

// Subscribe registers fn for every subsequent event and returns a function
// that removes it.
func (r *Registry) Subscribe(fn Handler) (unsubscribe func()) {
	r.subsMu.Lock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = fn
	r.subsMu.Unlock()

	return func() {
		r.subsMu.Lock()
		delete(r.subs, id)
		r.subsMu.Unlock()
	}
}

func (r *Registry) emit(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = r.now()
	}

	r.subsMu.RLock()
	handlers := make([]Handler, 0, len(r.subs))
	for _, h := range r.subs {
		handlers = append(handlers, h)
	}
	r.subsMu.RUnlock()

	for _, h := range handlers {
		r.safeCall(h, ev)
	}
}

// safeCall runs one handler and logs a panic instead of propagating it.
func (r *Registry) safeCall(h Handler, ev Event) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("registry event handler panicked", "type", ev.Type, "panic", rec)
		}
	}()
	h(ev)
}
