// Package avatar holds the avatar's finite-state model: which zones are held,
// the Idle/Active phase, the expression overlay and the pointer.
package avatar

import (
	"fmt"
	"sort"
	"time"

	"keyavatar/internal/input"
	"keyavatar/internal/normalize"
)

// Phase is the zone state of the avatar.
type Phase uint8

const (
	Idle Phase = iota
	Active
)

func (p Phase) String() string {
	if p == Active {
		return "active"
	}
	return "idle"
}

// MarshalText encodes the phase by name.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText decodes a phase name.
func (p *Phase) UnmarshalText(text []byte) error {
	switch string(text) {
	case "idle":
		*p = Idle
	case "active":
		*p = Active
	default:
		return fmt.Errorf("unknown phase %q", text)
	}
	return nil
}

// State is owned by the tick thread. A zone stays pressed while any of its
// codes is held, so Idle always means no zone is pressed and Active means at
// least one is.
type State struct {
	phase        Phase
	held         map[string]map[uint16]struct{}
	buttons      map[uint16]bool
	expression   Expression
	lastActivity time.Time
	pointer      input.Point
	hasPointer   bool
}

// NewState returns an Idle, Neutral state.
func NewState() *State {
	return &State{
		held:       make(map[string]map[uint16]struct{}),
		buttons:    make(map[uint16]bool),
		expression: Neutral,
	}
}

// Apply feeds one normalized event. It reports whether the set of pressed
// zones changed.
func (s *State) Apply(ev normalize.InputEvent) bool {
	if ev.Time.After(s.lastActivity) {
		s.lastActivity = ev.Time
	}
	if ev.Pos != nil {
		s.pointer = *ev.Pos
		s.hasPointer = true
	}

	switch ev.Kind {
	case normalize.MouseMove:
		return false
	case normalize.MouseButton:
		s.buttons[ev.Code] = ev.Pressed
		if !ev.Pressed {
			delete(s.buttons, ev.Code)
		}
	}

	if ev.Zone == "" {
		return false
	}
	if ev.Pressed {
		return s.press(ev.Zone, ev.Code)
	}
	return s.release(ev.Zone, ev.Code)
}

func (s *State) press(zone string, code uint16) bool {
	codes, ok := s.held[zone]
	if !ok {
		codes = make(map[uint16]struct{})
		s.held[zone] = codes
	}
	codes[code] = struct{}{}
	s.phase = Active
	return !ok
}

func (s *State) release(zone string, code uint16) bool {
	codes, ok := s.held[zone]
	if !ok {
		return false
	}
	delete(codes, code)
	if len(codes) > 0 {
		return false
	}
	delete(s.held, zone)
	if len(s.held) == 0 {
		s.phase = Idle
	}
	return true
}

// Update advances the expression overlay. It reports whether the expression
// changed.
func (s *State) Update(now time.Time, sample Sample, rules Rules) bool {
	elapsed := time.Duration(0)
	if !s.lastActivity.IsZero() {
		elapsed = now.Sub(s.lastActivity)
	}
	next := NextExpression(s.expression, sample, elapsed, rules)
	if next == s.expression {
		return false
	}
	s.expression = next
	return true
}

// Phase returns Idle or Active.
func (s *State) Phase() Phase {
	return s.phase
}

// Zones returns the pressed zones in sorted order.
func (s *State) Zones() []string {
	out := make([]string, 0, len(s.held))
	for zone := range s.held {
		out = append(out, zone)
	}
	sort.Strings(out)
	return out
}

// ZonePressed reports whether zone is held.
func (s *State) ZonePressed(zone string) bool {
	_, ok := s.held[zone]
	return ok
}

// HeldCodes returns every held code in ascending order.
func (s *State) HeldCodes() []uint16 {
	var out []uint16
	for _, codes := range s.held {
		for code := range codes {
			out = append(out, code)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Button reports whether a mouse button is down.
func (s *State) Button(code uint16) bool {
	return s.buttons[code]
}

// Expression returns the current expression.
func (s *State) Expression() Expression {
	return s.expression
}

// Pointer returns the last known pointer position.
func (s *State) Pointer() (input.Point, bool) {
	return s.pointer, s.hasPointer
}

// LastActivity returns the time of the latest event.
func (s *State) LastActivity() time.Time {
	return s.lastActivity
}

// Check verifies the phase/zone invariant.
func (s *State) Check() error {
	switch {
	case s.phase == Idle && len(s.held) != 0:
		return fmt.Errorf("idle with %d zones pressed", len(s.held))
	case s.phase == Active && len(s.held) == 0:
		return fmt.Errorf("active with no zone pressed")
	}
	for zone, codes := range s.held {
		if len(codes) == 0 {
			return fmt.Errorf("zone %q pressed without a held code", zone)
		}
	}
	return nil
}
