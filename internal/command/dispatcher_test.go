package command

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/nerrad567/gregor-bridge/internal/cloud"
	"github.com/nerrad567/gregor-bridge/internal/device"
	"github.com/nerrad567/gregor-bridge/internal/registry"
)

type roomCall struct {
	roomID int64
	state  string
}

// mockCloud records room state changes and serves devices from a map.
type mockCloud struct {
	mu         sync.Mutex
	calls      []roomCall
	fetches    int
	setErr     error
	devices    map[int64]*device.Device
	fetchError error
}

func (m *mockCloud) SetRoomState(_ context.Context, id int64, state string) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, roomCall{roomID: id, state: state})
	if m.setErr != nil {
		return nil, m.setErr
	}
	return map[string]any{"id": id, "state": state}, nil
}

func (m *mockCloud) FetchDevice(_ context.Context, id int64, _, _ bool) (*device.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetches++
	if m.fetchError != nil {
		return nil, m.fetchError
	}
	d, ok := m.devices[id]
	if !ok {
		return nil, fmt.Errorf("%w: device %d", cloud.ErrNotFound, id)
	}
	return d, nil
}

func (m *mockCloud) roomCalls() []roomCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]roomCall, len(m.calls))
	copy(out, m.calls)
	return out
}

func mustDevice(t *testing.T, raw map[string]any) *device.Device {
	t.Helper()
	d, err := device.Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	return d
}

func driveRecord(id int, roomID any) map[string]any {
	raw := map[string]any{
		"id":     float64(id),
		"type":   "Drive",
		"name":   fmt.Sprintf("Drive %d", id),
		"mac":    fmt.Sprintf("aa:bb:cc:dd:ee:%02x", id),
		"status": "Online",
	}
	if roomID != nil {
		raw["room_id"] = roomID
	}
	return raw
}

func setup(t *testing.T, records ...map[string]any) (*Dispatcher, *mockCloud, *registry.Registry) {
	t.Helper()

	mock := &mockCloud{devices: make(map[int64]*device.Device)}
	var devices []*device.Device
	for _, raw := range records {
		d := mustDevice(t, raw)
		devices = append(devices, d)
		mock.devices[d.ID] = d
	}

	reg := registry.New(nil, registry.Options{})
	reg.Provision(devices)
	return New(mock, reg, 0), mock, reg
}

func TestDispatcher_Open(t *testing.T) {
	tests := []struct {
		name     string
		position int
		want     registry.CoverState
	}{
		{"from closed", 0, registry.CoverOpening},
		{"from partially open", 40, registry.CoverOpening},
		{"already fully open", 100, registry.CoverOpen},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			disp, mock, reg := setup(t, driveRecord(2, float64(5)))
			cover, _ := reg.CoverByID(2)
			cover.ApplyPosition(tt.position, true)

			got, err := disp.Open(context.Background(), 2)
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			if got != tt.want || cover.State() != tt.want {
				t.Errorf("state = %s (returned %s), want %s", cover.State(), got, tt.want)
			}

			calls := mock.roomCalls()
			if len(calls) != 1 || calls[0] != (roomCall{roomID: 5, state: "open"}) {
				t.Errorf("room calls = %+v", calls)
			}

			mode, _ := reg.Mode(5)
			if mode.Current() != "open" {
				t.Errorf("room mode = %q, want open", mode.Current())
			}
		})
	}
}

func TestDispatcher_Close(t *testing.T) {
	tests := []struct {
		name     string
		position int
		known    bool
		want     registry.CoverState
	}{
		{"already closed", 0, true, registry.CoverClosed},
		{"unknown position", 0, false, registry.CoverClosed},
		{"from open", 100, true, registry.CoverClosing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			disp, mock, reg := setup(t, driveRecord(2, float64(5)))
			cover, _ := reg.CoverByID(2)
			cover.ApplyPosition(tt.position, tt.known)

			got, err := disp.Close(context.Background(), 2)
			if err != nil {
				t.Fatalf("Close() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Close() = %s, want %s", got, tt.want)
			}
			if calls := mock.roomCalls(); len(calls) != 1 || calls[0].state != "close" {
				t.Errorf("room calls = %+v", calls)
			}
		})
	}
}

func TestDispatcher_FailureLeavesStateUntouched(t *testing.T) {
	disp, mock, reg := setup(t, driveRecord(2, float64(5)))
	mock.setErr = &cloud.APIError{StatusCode: 500, Message: "down"}

	cover, _ := reg.CoverByID(2)
	cover.ApplyPosition(50, true)

	_, err := disp.Open(context.Background(), 2)
	if !errors.Is(err, cloud.ErrAPI) {
		t.Fatalf("Open() error = %v, want ErrAPI", err)
	}
	if cover.State() != registry.CoverOpen {
		t.Errorf("cover state = %s after failure, want open", cover.State())
	}
	mode, _ := reg.Mode(5)
	if mode.Current() != "auto" {
		t.Errorf("room mode = %q after failure, want auto", mode.Current())
	}

	if err := disp.SetMode(context.Background(), 5, "relax"); err == nil {
		t.Fatal("SetMode() succeeded against a failing cloud")
	}
	if mode.Current() != "auto" {
		t.Errorf("room mode = %q after failed SetMode", mode.Current())
	}
}

func TestDispatcher_UnknownDrive(t *testing.T) {
	disp, mock, _ := setup(t,
		driveRecord(2, float64(5)),
		map[string]any{"id": float64(1), "type": "Station", "mac": "aa:bb:cc:dd:ee:01"},
	)

	for _, id := range []int64{1, 99} {
		if _, err := disp.Open(context.Background(), id); !errors.Is(err, ErrUnknownDrive) {
			t.Errorf("Open(%d) error = %v, want ErrUnknownDrive", id, err)
		}
	}
	if len(mock.roomCalls()) != 0 {
		t.Error("unknown drive reached the cloud")
	}
}

func TestDispatcher_RoomResolution(t *testing.T) {
	t.Run("falls back to fetch and caches", func(t *testing.T) {
		disp, mock, _ := setup(t, driveRecord(2, nil))
		mock.devices[2] = mustDevice(t, driveRecord(2, float64(8)))

		for range 3 {
			if _, err := disp.Close(context.Background(), 2); err != nil {
				t.Fatalf("Close() error = %v", err)
			}
		}
		if mock.fetches != 1 {
			t.Errorf("fetches = %d, want 1", mock.fetches)
		}
		for _, c := range mock.roomCalls() {
			if c.roomID != 8 {
				t.Errorf("room call to %d, want 8", c.roomID)
			}
		}
	})

	t.Run("drive without room", func(t *testing.T) {
		disp, mock, _ := setup(t, driveRecord(2, nil))

		if _, err := disp.Open(context.Background(), 2); !errors.Is(err, ErrNoRoom) {
			t.Errorf("Open() error = %v, want ErrNoRoom", err)
		}
		if len(mock.roomCalls()) != 0 {
			t.Error("drive without room reached the cloud")
		}
	})

	t.Run("fetch error propagates", func(t *testing.T) {
		disp, mock, _ := setup(t, driveRecord(2, nil))
		mock.fetchError = fmt.Errorf("%w: expired", cloud.ErrUnauthorized)

		if _, err := disp.RoomOf(context.Background(), 2); !errors.Is(err, cloud.ErrUnauthorized) {
			t.Errorf("RoomOf() error = %v, want ErrUnauthorized", err)
		}
	})

	t.Run("seeded from cover", func(t *testing.T) {
		disp, mock, _ := setup(t, driveRecord(2, float64(5)))

		room, err := disp.RoomOf(context.Background(), 2)
		if err != nil || room != 5 {
			t.Errorf("RoomOf() = %d, %v; want 5", room, err)
		}
		if mock.fetches != 0 {
			t.Errorf("fetches = %d, want 0", mock.fetches)
		}
	})

	t.Run("forget drops cached room", func(t *testing.T) {
		disp, mock, _ := setup(t, driveRecord(2, nil))
		mock.devices[2] = mustDevice(t, driveRecord(2, float64(8)))

		if _, err := disp.RoomOf(context.Background(), 2); err != nil {
			t.Fatal(err)
		}
		disp.ForgetRoom(2)
		if _, err := disp.RoomOf(context.Background(), 2); err != nil {
			t.Fatal(err)
		}
		if mock.fetches != 2 {
			t.Errorf("fetches = %d, want 2", mock.fetches)
		}
	})
}

func TestDispatcher_SetMode(t *testing.T) {
	disp, mock, reg := setup(t, driveRecord(2, float64(5)))

	if err := disp.SetMode(context.Background(), 5, "airing"); err != nil {
		t.Fatalf("SetMode() error = %v", err)
	}
	mode, _ := reg.Mode(5)
	if mode.Current() != "airing" {
		t.Errorf("mode = %q, want airing", mode.Current())
	}

	if err := disp.SetMode(context.Background(), 12, "relax"); err != nil {
		t.Fatalf("SetMode(room 12) error = %v", err)
	}
	if m, ok := reg.Mode(12); !ok || m.Current() != "relax" {
		t.Error("SetMode() did not create a select for a new room")
	}

	if len(mock.roomCalls()) != 2 {
		t.Errorf("room calls = %d, want 2", len(mock.roomCalls()))
	}
}

func TestDispatcher_SetModeInvalid(t *testing.T) {
	disp, mock, _ := setup(t)

	for _, mode := range []string{"", "invalid", "OPEN"} {
		if err := disp.SetMode(context.Background(), 5, mode); !errors.Is(err, cloud.ErrInvalidArgument) {
			t.Errorf("SetMode(%q) error = %v, want ErrInvalidArgument", mode, err)
		}
	}
	if len(mock.roomCalls()) != 0 {
		t.Errorf("invalid modes made %d cloud calls", len(mock.roomCalls()))
	}
}
