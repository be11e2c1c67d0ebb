package registry

import "testing"

func TestCover_Transitions(t *testing.T) {
	tests := []struct {
		name       string
		position   int
		known      bool
		action     func(*Cover) CoverState
		wantState  CoverState
		wantClosed bool
	}{
		{"poll at 0", 0, true, nil, CoverClosed, true},
		{"poll at 100", 100, true, nil, CoverOpen, false},
		{"poll partially open", 35, true, nil, CoverOpen, false},
		{"poll unknown", 0, false, nil, CoverClosed, false},
		{"open when fully open stays open", 100, true, (*Cover).Open, CoverOpen, false},
		{"open when closed is opening", 0, true, (*Cover).Open, CoverOpening, true},
		{"open when partial is opening", 50, true, (*Cover).Open, CoverOpening, false},
		{"open when unknown is opening", 0, false, (*Cover).Open, CoverOpening, false},
		{"close when closed stays closed", 0, true, (*Cover).Close, CoverClosed, true},
		{"close when unknown is closed", 0, false, (*Cover).Close, CoverClosed, false},
		{"close when open is closing", 100, true, (*Cover).Close, CoverClosing, false},
		{"close when partial is closing", 20, true, (*Cover).Close, CoverClosing, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCover(1, "aa:bb:cc:dd:ee:ff", "Window")
			state := c.ApplyPosition(tt.position, tt.known)
			if tt.action != nil {
				state = tt.action(c)
			}

			if state != tt.wantState || c.State() != tt.wantState {
				t.Errorf("state = %s (returned %s), want %s", c.State(), state, tt.wantState)
			}
			if c.IsClosed() != tt.wantClosed {
				t.Errorf("IsClosed() = %v, want %v", c.IsClosed(), tt.wantClosed)
			}
		})
	}
}

func TestCover_PollOverridesPrediction(t *testing.T) {
	c := NewCover(1, "aa:bb:cc:dd:ee:ff", "Window")
	c.ApplyPosition(0, true)

	if got := c.Open(); got != CoverOpening {
		t.Fatalf("Open() = %s, want opening", got)
	}
	if got := c.ApplyPosition(0, true); got != CoverClosed {
		t.Errorf("poll after open intent = %s, want closed", got)
	}
	if got := c.ApplyPosition(100, true); got != CoverOpen {
		t.Errorf("poll at 100 = %s, want open", got)
	}
}

func TestCover_Snapshot(t *testing.T) {
	c := NewCover(7, "aa:bb:cc:dd:ee:07", "Roof")

	snap := c.Snapshot()
	if snap.Position != nil || snap.State != CoverClosed || snap.Closed {
		t.Errorf("fresh snapshot = %+v", snap)
	}

	c.ApplyPosition(65, true)
	snap = c.Snapshot()
	if snap.Position == nil || *snap.Position != 65 {
		t.Errorf("Position = %v, want 65", snap.Position)
	}
	if snap.DeviceID != 7 || snap.MAC != "aa:bb:cc:dd:ee:07" || snap.Name != "Roof" {
		t.Errorf("identity = %+v", snap)
	}

	if pos, ok := c.Position(); !ok || pos != 65 {
		t.Errorf("Position() = %d, %v", pos, ok)
	}
}

func TestModeSelect(t *testing.T) {
	m := NewModeSelect(3, "Kitchen")
	if m.Current() != "auto" {
		t.Errorf("default mode = %q, want auto", m.Current())
	}

	if err := m.Select("relax"); err != nil {
		t.Fatalf("Select(relax) error = %v", err)
	}
	if m.Current() != "relax" {
		t.Errorf("Current() = %q", m.Current())
	}

	if err := m.Select("disco"); err == nil {
		t.Error("Select(disco) succeeded")
	}
	if m.Current() != "relax" {
		t.Error("invalid select changed the current mode")
	}

	opts := m.Options()
	opts[0] = "mutated"
	if m.Options()[0] != "open" {
		t.Error("Options() exposes shared state")
	}
}
