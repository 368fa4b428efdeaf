package normalize

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"keyavatar/internal/input"
)

var base = time.Unix(1700000000, 0)

func at(ms int) time.Time {
	return base.Add(time.Duration(ms) * time.Millisecond)
}

func key(code uint16, pressed bool, ms int) input.RawEvent {
	return input.RawEvent{DeviceID: "test", Code: code, Pressed: pressed, Time: at(ms)}
}

func TestDebounceRepeatedDown(t *testing.T) {
	n := New(nil)
	for i := 0; i < 5; i++ {
		if err := n.Ingest(key(input.KeyA, true, i)); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
	}
	n.Ingest(key(input.KeyA, false, 10))
	n.Ingest(key(input.KeyA, false, 11)) // orphan release

	events := n.Drain()
	if len(events) != 2 {
		t.Fatalf("Expected 2 events, got %d: %+v", len(events), events)
	}
	if events[0].Kind != KeyDown || events[0].Zone != ZoneLeftHand {
		t.Errorf("Expected left-hand key_down, got %s in %s", events[0].Kind, events[0].Zone)
	}
	if events[1].Kind != KeyUp {
		t.Errorf("Expected key_up, got %s", events[1].Kind)
	}
	if got := n.Stats().Debounced; got != 5 {
		t.Errorf("Expected 5 debounced events, got %d", got)
	}
}

func TestUnmappedCodesDropped(t *testing.T) {
	zones, err := NewZoneTable(map[string][]string{"arrows": {"UP", "DOWN"}})
	if err != nil {
		t.Fatalf("NewZoneTable failed: %v", err)
	}
	n := New(zones)
	n.Ingest(key(input.KeyA, true, 0))
	n.Ingest(key(103, true, 1)) // UP
	n.Ingest(key(input.KeyA, false, 2))

	events := n.Drain()
	if len(events) != 1 || events[0].Zone != "arrows" {
		t.Errorf("Expected one arrows event, got %+v", events)
	}
	if got := n.Stats().Unmapped; got != 2 {
		t.Errorf("Expected 2 unmapped events, got %d", got)
	}
}

func TestOutOfOrderClamped(t *testing.T) {
	n := New(nil)
	n.Ingest(key(input.KeyA, true, 50))
	err := n.Ingest(key(input.KeyZ, true, 10))

	var nerr *NormalizationError
	if !errors.As(err, &nerr) || !errors.Is(err, ErrOutOfOrder) {
		t.Fatalf("Expected out-of-order NormalizationError, got %v", err)
	}
	if !nerr.Clamped {
		t.Error("Expected event to be clamped")
	}

	events := n.Drain()
	if len(events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(events))
	}
	if !events[1].Time.Equal(at(50)) {
		t.Errorf("Expected clamped time %v, got %v", at(50), events[1].Time)
	}
	if events[0].Seq >= events[1].Seq {
		t.Errorf("Expected ingestion order on equal timestamps, got seq %d then %d", events[0].Seq, events[1].Seq)
	}
}

func TestMissingTimestamp(t *testing.T) {
	n := New(nil)
	n.Ingest(key(input.KeyA, true, 5))
	err := n.Ingest(input.RawEvent{Code: input.KeyA})
	if !errors.Is(err, ErrMissingTimestamp) {
		t.Errorf("Expected ErrMissingTimestamp, got %v", err)
	}
	events := n.Drain()
	if len(events) != 2 || !events[1].Time.Equal(at(5)) {
		t.Errorf("Expected release at %v, got %+v", at(5), events)
	}
}

// TestOutputNonDecreasing feeds random raw sequences and checks ordering
func TestOutputNonDecreasing(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	codes := []uint16{input.KeyA, input.KeyZ, input.KeySpace, input.KeyEnter, input.BtnLeft, 0}

	for round := 0; round < 200; round++ {
		n := New(nil)
		var lastTime time.Time
		for batch := 0; batch < 5; batch++ {
			for i := 0; i < 50; i++ {
				code := codes[rng.Intn(len(codes))]
				ev := input.RawEvent{Code: code, Pressed: rng.Intn(2) == 0, Time: at(rng.Intn(1000))}
				if code == 0 {
					ev.Pos = &input.Point{X: rng.Float64() * 100, Y: rng.Float64() * 100}
				}
				if rng.Intn(20) == 0 {
					ev.Time = time.Time{}
				}
				n.Ingest(ev)
			}
			for _, ev := range n.Drain() {
				if ev.Time.Before(lastTime) {
					t.Fatalf("Round %d: time went backwards: %v after %v", round, ev.Time, lastTime)
				}
				lastTime = ev.Time
			}
		}
	}
}

func TestMouseEvents(t *testing.T) {
	n := New(nil)
	n.Ingest(input.RawEvent{Pos: &input.Point{X: 10, Y: 20}, Time: at(0)})
	n.Ingest(input.RawEvent{Code: input.BtnLeft, Pressed: true, Pos: &input.Point{X: 10, Y: 20}, Time: at(1)})

	events := n.Drain()
	if len(events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(events))
	}
	if events[0].Kind != MouseMove || events[0].Pos.X != 10 {
		t.Errorf("Expected mouse_move at x=10, got %+v", events[0])
	}
	if events[1].Kind != MouseButton || events[1].Zone != ZoneMouse || !events[1].Pressed {
		t.Errorf("Expected mouse button press in mouse zone, got %+v", events[1])
	}
}

func TestReleaseAll(t *testing.T) {
	n := New(nil)
	n.Ingest(key(input.KeyA, true, 0))
	n.Ingest(key(input.KeySpace, true, 1))
	n.Drain()

	n.ReleaseAll(at(5))
	events := n.Drain()
	if len(events) != 2 || events[0].Pressed || events[1].Pressed {
		t.Errorf("Expected two releases, got %+v", events)
	}
	if n.Held() != 0 {
		t.Errorf("Expected no held keys, got %d", n.Held())
	}
}

func TestZoneOverrides(t *testing.T) {
	z, err := DefaultZoneTable().With(map[string][]string{
		"space-bar": {"SPACE"},
		ZoneMouse:   {},
	})
	if err != nil {
		t.Fatalf("With failed: %v", err)
	}
	if zone, _ := z.Lookup(input.KeySpace); zone != "space-bar" {
		t.Errorf("Expected 'space-bar', got '%s'", zone)
	}
	if _, ok := z.Lookup(input.BtnLeft); ok {
		t.Error("Expected mouse zone removed")
	}
	if zone, _ := z.Lookup(input.KeyA); zone != ZoneLeftHand {
		t.Errorf("Expected untouched zone 'left-hand', got '%s'", zone)
	}

	if _, err := NewZoneTable(map[string][]string{"x": {"NOPE"}}); err == nil {
		t.Error("Expected error for unknown key name")
	}
}

func TestSetZonesKeepsHeldZone(t *testing.T) {
	n := New(nil)
	n.Ingest(key(input.KeyA, true, 0))

	other, _ := NewZoneTable(map[string][]string{"all": {"A"}})
	n.SetZones(other)
	n.Ingest(key(input.KeyA, false, 1))

	events := n.Drain()
	if len(events) != 2 || events[1].Zone != ZoneLeftHand {
		t.Errorf("Expected release in original zone, got %+v", events)
	}
}
