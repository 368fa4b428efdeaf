package input

import (
	"fmt"
	"strings"
)

// Canonical codes follow linux/input-event-codes.h. Windows virtual keys and
// X11 keycodes are translated into this space by their backends.
const (
	KeyEsc        uint16 = 1
	KeyBackspace  uint16 = 14
	KeyTab        uint16 = 15
	KeyEnter      uint16 = 28
	KeyLeftCtrl   uint16 = 29
	KeyA          uint16 = 30
	KeyLeftShift  uint16 = 42
	KeyZ          uint16 = 44
	KeyRightShift uint16 = 54
	KeyLeftAlt    uint16 = 56
	KeySpace      uint16 = 57
	KeyCapsLock   uint16 = 58
	KeyRightCtrl  uint16 = 97
	KeyRightAlt   uint16 = 100
	KeyLeftMeta   uint16 = 125
	KeyRightMeta  uint16 = 126
	KeyMax        uint16 = 0x2ff

	BtnLeft   uint16 = 0x110
	BtnRight  uint16 = 0x111
	BtnMiddle uint16 = 0x112
	BtnSide   uint16 = 0x113
	BtnExtra  uint16 = 0x114
)

// x11KeycodeOffset is the distance between X11 keycodes and evdev codes
// under the evdev XKB rules.
const x11KeycodeOffset = 8

// IsButtonCode reports whether code is a mouse button.
func IsButtonCode(code uint16) bool {
	return code >= BtnLeft && code <= BtnExtra
}

type keyEntry struct {
	code uint16
	name string
	vk   []uint32
}

// keyTable lists every key the capture path knows by name. Left and right
// modifier variants share a name so chords match either side.
var keyTable = []keyEntry{
	{KeyEsc, "ESC", []uint32{0x1B}},
	{2, "1", []uint32{0x31}}, {3, "2", []uint32{0x32}}, {4, "3", []uint32{0x33}},
	{5, "4", []uint32{0x34}}, {6, "5", []uint32{0x35}}, {7, "6", []uint32{0x36}},
	{8, "7", []uint32{0x37}}, {9, "8", []uint32{0x38}}, {10, "9", []uint32{0x39}},
	{11, "0", []uint32{0x30}},
	{12, "MINUS", []uint32{0xBD}}, {13, "EQUAL", []uint32{0xBB}},
	{KeyBackspace, "BACKSPACE", []uint32{0x08}},
	{KeyTab, "TAB", []uint32{0x09}},
	{16, "Q", []uint32{0x51}}, {17, "W", []uint32{0x57}}, {18, "E", []uint32{0x45}},
	{19, "R", []uint32{0x52}}, {20, "T", []uint32{0x54}}, {21, "Y", []uint32{0x59}},
	{22, "U", []uint32{0x55}}, {23, "I", []uint32{0x49}}, {24, "O", []uint32{0x4F}},
	{25, "P", []uint32{0x50}},
	{26, "LEFTBRACE", []uint32{0xDB}}, {27, "RIGHTBRACE", []uint32{0xDD}},
	{KeyEnter, "ENTER", []uint32{0x0D}},
	{KeyLeftCtrl, "CTRL", []uint32{0x11, 0xA2}},
	{KeyA, "A", []uint32{0x41}}, {31, "S", []uint32{0x53}}, {32, "D", []uint32{0x44}},
	{33, "F", []uint32{0x46}}, {34, "G", []uint32{0x47}}, {35, "H", []uint32{0x48}},
	{36, "J", []uint32{0x4A}}, {37, "K", []uint32{0x4B}}, {38, "L", []uint32{0x4C}},
	{39, "SEMICOLON", []uint32{0xBA}}, {40, "APOSTROPHE", []uint32{0xDE}},
	{41, "GRAVE", []uint32{0xC0}},
	{KeyLeftShift, "SHIFT", []uint32{0x10, 0xA0}},
	{43, "BACKSLASH", []uint32{0xDC}},
	{KeyZ, "Z", []uint32{0x5A}}, {45, "X", []uint32{0x58}}, {46, "C", []uint32{0x43}},
	{47, "V", []uint32{0x56}}, {48, "B", []uint32{0x42}}, {49, "N", []uint32{0x4E}},
	{50, "M", []uint32{0x4D}},
	{51, "COMMA", []uint32{0xBC}}, {52, "DOT", []uint32{0xBE}}, {53, "SLASH", []uint32{0xBF}},
	{KeyRightShift, "SHIFT", []uint32{0xA1}},
	{KeyLeftAlt, "ALT", []uint32{0x12, 0xA4}},
	{KeySpace, "SPACE", []uint32{0x20}},
	{KeyCapsLock, "CAPSLOCK", []uint32{0x14}},
	{59, "F1", []uint32{0x70}}, {60, "F2", []uint32{0x71}}, {61, "F3", []uint32{0x72}},
	{62, "F4", []uint32{0x73}}, {63, "F5", []uint32{0x74}}, {64, "F6", []uint32{0x75}},
	{65, "F7", []uint32{0x76}}, {66, "F8", []uint32{0x77}}, {67, "F9", []uint32{0x78}},
	{68, "F10", []uint32{0x79}}, {87, "F11", []uint32{0x7A}}, {88, "F12", []uint32{0x7B}},
	{70, "SCROLLLOCK", []uint32{0x91}},
	{KeyRightCtrl, "CTRL", []uint32{0xA3}},
	{99, "PRINTSCREEN", []uint32{0x2C}},
	{KeyRightAlt, "ALT", []uint32{0xA5}},
	{102, "HOME", []uint32{0x24}}, {103, "UP", []uint32{0x26}}, {104, "PAGEUP", []uint32{0x21}},
	{105, "LEFT", []uint32{0x25}}, {106, "RIGHT", []uint32{0x27}}, {107, "END", []uint32{0x23}},
	{108, "DOWN", []uint32{0x28}}, {109, "PAGEDOWN", []uint32{0x22}},
	{110, "INSERT", []uint32{0x2D}}, {111, "DELETE", []uint32{0x2E}},
	{119, "PAUSE", []uint32{0x13}},
	{KeyLeftMeta, "CMD", []uint32{0x5B}}, {KeyRightMeta, "CMD", []uint32{0x5C}},
	{BtnLeft, "MOUSE1", nil}, {BtnRight, "MOUSE3", nil}, {BtnMiddle, "MOUSE2", nil},
	{BtnSide, "MOUSE4", nil}, {BtnExtra, "MOUSE5", nil},
}

// keyAliases are alternative spellings accepted by KeyCodes. Side-specific
// modifier names resolve to a single key.
var keyAliases = map[string][]uint16{
	"ESCAPE":      {KeyEsc},
	"RETURN":      {KeyEnter},
	"BKSP":        {KeyBackspace},
	"LCTRL":       {KeyLeftCtrl},
	"RCTRL":       {KeyRightCtrl},
	"LSHIFT":      {KeyLeftShift},
	"RSHIFT":      {KeyRightShift},
	"LALT":        {KeyLeftAlt},
	"RALT":        {KeyRightAlt},
	"LWIN":        {KeyLeftMeta},
	"RWIN":        {KeyRightMeta},
	"WIN":         {KeyLeftMeta, KeyRightMeta},
	"META":        {KeyLeftMeta, KeyRightMeta},
	"SUPER":       {KeyLeftMeta, KeyRightMeta},
	"CONTROL":     {KeyLeftCtrl, KeyRightCtrl},
	"CAPS":        {KeyCapsLock},
	"DEL":         {111},
	"PERIOD":      {52},
	"MOUSELEFT":   {BtnLeft},
	"MOUSERIGHT":  {BtnRight},
	"MOUSEMIDDLE": {BtnMiddle},
}

var (
	codeToName = map[uint16]string{}
	nameToCode = map[string][]uint16{}
	vkToCode   = map[uint32]uint16{}
)

func init() {
	for _, e := range keyTable {
		codeToName[e.code] = e.name
		nameToCode[e.name] = append(nameToCode[e.name], e.code)
		for _, vk := range e.vk {
			vkToCode[vk] = e.code
		}
	}
}

// KeyName returns the upper-case name of a canonical code, or "" if unknown.
func KeyName(code uint16) string {
	return codeToName[code]
}

// KeyCodes resolves a key name (case-insensitive) to every canonical code
// carrying it, e.g. "ctrl" yields both control keys.
func KeyCodes(name string) ([]uint16, error) {
	key := strings.ToUpper(strings.TrimSpace(name))
	codes, ok := nameToCode[key]
	if !ok {
		codes, ok = keyAliases[key]
	}
	if !ok {
		return nil, fmt.Errorf("unknown key name %q", name)
	}
	return codes, nil
}

// FromVirtualKey translates a Windows virtual-key code. ok is false for keys
// outside the table.
func FromVirtualKey(vk uint32) (code uint16, ok bool) {
	code, ok = vkToCode[vk]
	return code, ok
}

// FromX11Keycode translates an X11 keycode under the evdev XKB rules.
func FromX11Keycode(kc uint8) uint16 {
	if kc < x11KeycodeOffset {
		return 0
	}
	return uint16(kc) - x11KeycodeOffset
}
