package tray

import (
	"encoding/binary"
	"testing"

	"keyavatar/internal/avatar"
	"keyavatar/internal/input"
	"keyavatar/internal/scheduler"
)

type fakeController struct {
	snap    scheduler.Snapshot
	resyncs int
	modes   []string
}

func (f *fakeController) Snapshot() scheduler.Snapshot { return f.snap }
func (f *fakeController) RequestResync()               { f.resyncs++ }
func (f *fakeController) RequestMode(name string)      { f.modes = append(f.modes, name) }

func TestMenuLayout(t *testing.T) {
	ctrl := &fakeController{snap: scheduler.Snapshot{Expression: avatar.Neutral, Mode: "keyboard", Modes: []string{"keyboard", "standard"}}}
	tr := New(ctrl, nil)

	var titles []string
	for _, e := range tr.entries {
		if e.kind != entrySeparator {
			titles = append(titles, e.title)
		}
	}
	want := []string{"idle, neutral (0 devices)", "keyboard", "standard", "Resync devices", "Quit"}
	if len(titles) != len(want) {
		t.Fatalf("Expected %v, got %v", want, titles)
	}
	for i := range want {
		if titles[i] != want[i] {
			t.Errorf("Entry %d: expected %q, got %q", i, want[i], titles[i])
		}
	}
}

func TestMenuActions(t *testing.T) {
	ctrl := &fakeController{snap: scheduler.Snapshot{Modes: []string{"keyboard", "standard"}}}
	tr := New(ctrl, nil)

	for _, e := range tr.entries {
		switch {
		case e.kind == entryMode && e.mode == "standard":
			e.action()
		case e.title == "Resync devices":
			e.action()
		}
	}
	if len(ctrl.modes) != 1 || ctrl.modes[0] != "standard" {
		t.Errorf("Expected [standard], got %v", ctrl.modes)
	}
	if ctrl.resyncs != 1 {
		t.Errorf("Expected 1 resync, got %d", ctrl.resyncs)
	}
}

func TestStatusLine(t *testing.T) {
	snap := scheduler.Snapshot{
		Phase:      avatar.Active,
		Expression: avatar.Happy,
		Devices:    []input.Device{{ID: "a"}, {ID: "b"}},
	}
	if got := statusLine(snap); got != "active, happy (2 devices)" {
		t.Errorf("Expected status line, got %q", got)
	}
}

func TestIcon(t *testing.T) {
	data := icon()
	if binary.LittleEndian.Uint16(data[2:]) != 1 || data[6] != iconSize {
		t.Fatalf("Expected ICO header, got % x", data[:8])
	}
	size := binary.LittleEndian.Uint32(data[14:])
	offset := binary.LittleEndian.Uint32(data[18:])
	if int(size+offset) != len(data) {
		t.Errorf("Expected size+offset %d, got %d", len(data), size+offset)
	}
	// center pixel is opaque, corner is transparent
	px := data[offset+40:]
	center := (8*iconSize + 8) * 4
	if px[center+3] != 0xff || px[3] != 0 {
		t.Errorf("Expected disc shape, got center alpha %x corner alpha %x", px[center+3], px[3])
	}
}
