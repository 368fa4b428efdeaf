package normalize

import (
	"fmt"
	"sort"

	"keyavatar/internal/input"
)

// Default zone names.
const (
	ZoneLeftHand   = "left-hand"
	ZoneRightHand  = "right-hand"
	ZoneThumb      = "thumb"
	ZoneModifier   = "modifier"
	ZoneFunction   = "function"
	ZoneNavigation = "navigation"
	ZoneMouse      = "mouse"
)

var defaultZones = map[string][]string{
	ZoneLeftHand: {
		"GRAVE", "1", "2", "3", "4", "5", "Q", "W", "E", "R", "T",
		"A", "S", "D", "F", "G", "Z", "X", "C", "V", "B", "TAB", "CAPSLOCK", "ESC",
	},
	ZoneRightHand: {
		"6", "7", "8", "9", "0", "MINUS", "EQUAL", "Y", "U", "I", "O", "P",
		"LEFTBRACE", "RIGHTBRACE", "BACKSLASH", "H", "J", "K", "L", "SEMICOLON",
		"APOSTROPHE", "N", "M", "COMMA", "DOT", "SLASH", "ENTER", "BACKSPACE",
	},
	ZoneThumb:    {"SPACE"},
	ZoneModifier: {"CTRL", "SHIFT", "ALT", "CMD"},
	ZoneFunction: {
		"F1", "F2", "F3", "F4", "F5", "F6", "F7", "F8", "F9", "F10", "F11", "F12",
		"PRINTSCREEN", "SCROLLLOCK", "PAUSE",
	},
	ZoneNavigation: {"UP", "DOWN", "LEFT", "RIGHT", "HOME", "END", "PAGEUP", "PAGEDOWN", "INSERT", "DELETE"},
	ZoneMouse:      {"MOUSE1", "MOUSE2", "MOUSE3", "MOUSE4", "MOUSE5"},
}

// ZoneTable maps canonical key codes to zones. Many codes may share a zone;
// a code belongs to at most one zone. A table is immutable once built.
type ZoneTable struct {
	byCode map[uint16]string
}

// DefaultZoneTable returns the built-in split of a full keyboard and mouse.
func DefaultZoneTable() *ZoneTable {
	z, err := NewZoneTable(defaultZones)
	if err != nil {
		panic(err)
	}
	return z
}

// NewZoneTable builds a table from zone name to key names (see input.KeyCodes).
func NewZoneTable(spec map[string][]string) (*ZoneTable, error) {
	return (&ZoneTable{byCode: map[uint16]string{}}).With(spec)
}

// With returns a copy of z where every zone named in overrides is replaced by
// the given keys. Keys claimed by an override leave their previous zone; an
// empty key list removes the zone.
func (z *ZoneTable) With(overrides map[string][]string) (*ZoneTable, error) {
	out := &ZoneTable{byCode: make(map[uint16]string, len(z.byCode))}
	for code, zone := range z.byCode {
		if _, replaced := overrides[zone]; !replaced {
			out.byCode[code] = zone
		}
	}

	names := make([]string, 0, len(overrides))
	for zone := range overrides {
		names = append(names, zone)
	}
	sort.Strings(names)

	for _, zone := range names {
		if zone == "" {
			return nil, fmt.Errorf("zone name must not be empty")
		}
		for _, key := range overrides[zone] {
			codes, err := input.KeyCodes(key)
			if err != nil {
				return nil, fmt.Errorf("zone %q: %w", zone, err)
			}
			for _, code := range codes {
				out.byCode[code] = zone
			}
		}
	}
	return out, nil
}

// Lookup returns the zone of a code.
func (z *ZoneTable) Lookup(code uint16) (string, bool) {
	zone, ok := z.byCode[code]
	return zone, ok
}

// Zones returns the zone names in sorted order.
func (z *ZoneTable) Zones() []string {
	seen := map[string]bool{}
	var out []string
	for _, zone := range z.byCode {
		if !seen[zone] {
			seen[zone] = true
			out = append(out, zone)
		}
	}
	sort.Strings(out)
	return out
}

// Codes returns the codes mapped to zone in ascending order.
func (z *ZoneTable) Codes(zone string) []uint16 {
	var out []uint16
	for code, zn := range z.byCode {
		if zn == zone {
			out = append(out, code)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
