// Package normalize turns raw backend events into the ordered, debounced,
// zone-tagged InputEvent stream consumed by the avatar state.
package normalize

import (
	"fmt"
	"sort"
	"time"

	"keyavatar/internal/input"
)

// Kind is the kind of a normalized event.
type Kind uint8

const (
	KeyDown Kind = iota + 1
	KeyUp
	MouseMove
	MouseButton
)

func (k Kind) String() string {
	switch k {
	case KeyDown:
		return "key_down"
	case KeyUp:
		return "key_up"
	case MouseMove:
		return "mouse_move"
	case MouseButton:
		return "mouse_button"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// InputEvent is an immutable normalized event. Pos is set for MouseMove and,
// when the backend knows it, for MouseButton.
type InputEvent struct {
	Kind     Kind
	Code     uint16
	Zone     string
	Pressed  bool
	Pos      *input.Point
	Time     time.Time
	Seq      uint64
	DeviceID string
}

// Stats counts what the normalizer did with its input.
type Stats struct {
	Ingested  uint64 `json:"ingested"`
	Emitted   uint64 `json:"emitted"`
	Clamped   uint64 `json:"clamped"`
	Debounced uint64 `json:"debounced"`
	Unmapped  uint64 `json:"unmapped"`
}

// Normalizer is owned by the tick thread and is not safe for concurrent use.
type Normalizer struct {
	zones   *ZoneTable
	down    map[uint16]string // code -> zone it was pressed in
	pending []InputEvent
	last    time.Time
	seq     uint64
	stats   Stats
}

// New creates a normalizer using zones. A nil table means the default table.
func New(zones *ZoneTable) *Normalizer {
	if zones == nil {
		zones = DefaultZoneTable()
	}
	return &Normalizer{zones: zones, down: make(map[uint16]string)}
}

// Zones returns the active zone table.
func (n *Normalizer) Zones() *ZoneTable {
	return n.zones
}

// SetZones swaps the zone table. Keys already down keep the zone they were
// pressed in so their release still balances.
func (n *Normalizer) SetZones(zones *ZoneTable) {
	if zones != nil {
		n.zones = zones
	}
}

// Ingest accepts one raw event. Timestamps are made monotonic: a missing or
// earlier timestamp is clamped to the last accepted one and reported as a
// *NormalizationError while the event is still delivered. Repeated downs of a
// held key, releases of keys that are not down and codes outside the zone
// table produce nothing.
func (n *Normalizer) Ingest(ev input.RawEvent) error {
	n.stats.Ingested++

	var err error
	ts := ev.Time
	switch {
	case ts.IsZero():
		ts = n.last
		if ts.IsZero() {
			ts = time.Now()
		}
		err = &NormalizationError{Reason: ErrMissingTimestamp, Code: ev.Code, Device: ev.DeviceID, Clamped: true}
	case ts.Before(n.last):
		ts = n.last
		err = &NormalizationError{Reason: ErrOutOfOrder, Code: ev.Code, Device: ev.DeviceID, Clamped: true}
	}
	if err != nil {
		n.stats.Clamped++
	}
	n.last = ts

	if ev.IsMotion() {
		pos := *ev.Pos
		n.emit(InputEvent{Kind: MouseMove, Pos: &pos, Time: ts, DeviceID: ev.DeviceID})
		return err
	}

	if ev.Pressed {
		if _, held := n.down[ev.Code]; held {
			n.stats.Debounced++
			return err
		}
		zone, ok := n.zones.Lookup(ev.Code)
		if !ok {
			n.stats.Unmapped++
			return err
		}
		n.down[ev.Code] = zone
		n.emit(n.keyEvent(ev, zone, ts))
		return err
	}

	zone, held := n.down[ev.Code]
	if !held {
		if _, ok := n.zones.Lookup(ev.Code); !ok {
			n.stats.Unmapped++
		} else {
			n.stats.Debounced++
		}
		return err
	}
	delete(n.down, ev.Code)
	n.emit(n.keyEvent(ev, zone, ts))
	return err
}

func (n *Normalizer) keyEvent(ev input.RawEvent, zone string, ts time.Time) InputEvent {
	out := InputEvent{Code: ev.Code, Zone: zone, Pressed: ev.Pressed, Time: ts, DeviceID: ev.DeviceID}
	switch {
	case ev.IsButton():
		out.Kind = MouseButton
		if ev.Pos != nil {
			pos := *ev.Pos
			out.Pos = &pos
		}
	case ev.Pressed:
		out.Kind = KeyDown
	default:
		out.Kind = KeyUp
	}
	return out
}

func (n *Normalizer) emit(ev InputEvent) {
	n.seq++
	ev.Seq = n.seq
	n.pending = append(n.pending, ev)
	n.stats.Emitted++
}

// ReleaseAll emits a release for every key still down. It is used when the
// device set changes and pending releases may never arrive.
func (n *Normalizer) ReleaseAll(at time.Time) {
	if at.Before(n.last) {
		at = n.last
	}
	codes := make([]uint16, 0, len(n.down))
	for code := range n.down {
		codes = append(codes, code)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })

	for _, code := range codes {
		zone := n.down[code]
		delete(n.down, code)
		n.emit(n.keyEvent(input.RawEvent{Code: code, Pressed: false}, zone, at))
	}
	n.last = at
}

// Drain returns the pending events ordered by timestamp, ties broken by
// ingestion order, and starts a new batch.
func (n *Normalizer) Drain() []InputEvent {
	if len(n.pending) == 0 {
		return nil
	}
	out := n.pending
	n.pending = nil
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Time.Equal(out[j].Time) {
			return out[i].Time.Before(out[j].Time)
		}
		return out[i].Seq < out[j].Seq
	})
	return out
}

// Held returns the number of keys currently down.
func (n *Normalizer) Held() int {
	return len(n.down)
}

// Stats returns a copy of the counters.
func (n *Normalizer) Stats() Stats {
	return n.stats
}
