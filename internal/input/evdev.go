package input

import (
	"encoding/binary"
	"time"
)

// Linux input event types and codes used by the evdev backend.
const (
	evSyn = 0x00
	evKey = 0x01
	evRel = 0x02

	synReport = 0x00

	relX = 0x00
	relY = 0x01

	// value of an EV_KEY event
	keyReleased = 0
	keyPressed  = 1
	keyRepeat   = 2
)

// EvdevOptions configures device discovery and per-tick read bounds.
type EvdevOptions struct {
	Glob               string
	MaxEventsPerDevice int
	ScreenWidth        int
	ScreenHeight       int
}

// inputEvent is one decoded struct input_event.
type inputEvent struct {
	Time  time.Time
	Type  uint16
	Code  uint16
	Value int32
}

// decodeEvents splits buf into input_event records of the given size (16 on
// 32-bit timeval layouts, 24 on 64-bit). A trailing partial record is ignored.
func decodeEvents(buf []byte, size int, fn func(inputEvent)) int {
	n := 0
	for len(buf) >= size {
		rec := buf[:size]
		buf = buf[size:]

		var ev inputEvent
		switch size {
		case 24:
			sec := int64(binary.LittleEndian.Uint64(rec[0:8]))
			usec := int64(binary.LittleEndian.Uint64(rec[8:16]))
			ev.Time = time.Unix(sec, usec*int64(time.Microsecond))
			ev.Type = binary.LittleEndian.Uint16(rec[16:18])
			ev.Code = binary.LittleEndian.Uint16(rec[18:20])
			ev.Value = int32(binary.LittleEndian.Uint32(rec[20:24]))
		case 16:
			sec := int64(int32(binary.LittleEndian.Uint32(rec[0:4])))
			usec := int64(int32(binary.LittleEndian.Uint32(rec[4:8])))
			ev.Time = time.Unix(sec, usec*int64(time.Microsecond))
			ev.Type = binary.LittleEndian.Uint16(rec[8:10])
			ev.Code = binary.LittleEndian.Uint16(rec[10:12])
			ev.Value = int32(binary.LittleEndian.Uint32(rec[12:16]))
		default:
			return n
		}
		fn(ev)
		n++
	}
	return n
}

// cursor is the virtual pointer built from relative motion. All evdev mice
// share one cursor, clamped to the configured screen.
type cursor struct {
	x, y          float64
	width, height float64
}

func newCursor(width, height int) *cursor {
	if width < 1 {
		width = 1920
	}
	if height < 1 {
		height = 1080
	}
	return &cursor{
		x: float64(width) / 2, y: float64(height) / 2,
		width: float64(width), height: float64(height),
	}
}

func (c *cursor) move(dx, dy int32) {
	c.x = clampf(c.x+float64(dx), 0, c.width-1)
	c.y = clampf(c.y+float64(dy), 0, c.height-1)
}

func (c *cursor) pos() *Point {
	return &Point{X: c.x, Y: c.y}
}

func clampf(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// evdevTranslator turns the input_event stream of one device into RawEvents.
// Relative motion is accumulated until SYN_REPORT so a diagonal move yields
// one motion event.
type evdevTranslator struct {
	deviceID string
	cursor   *cursor
	dx, dy   int32
}

func (t *evdevTranslator) translate(ev inputEvent, emit func(RawEvent)) {
	ts := ev.Time
	if ts.IsZero() || ts.Unix() == 0 {
		ts = time.Now()
	}

	switch ev.Type {
	case evKey:
		if ev.Value == keyRepeat || ev.Code == 0 || ev.Code > KeyMax {
			return
		}
		raw := RawEvent{DeviceID: t.deviceID, Code: ev.Code, Pressed: ev.Value == keyPressed, Time: ts}
		if IsButtonCode(ev.Code) {
			raw.Pos = t.cursor.pos()
		}
		emit(raw)
	case evRel:
		switch ev.Code {
		case relX:
			t.dx += ev.Value
		case relY:
			t.dy += ev.Value
		}
	case evSyn:
		if ev.Code != synReport || (t.dx == 0 && t.dy == 0) {
			return
		}
		t.cursor.move(t.dx, t.dy)
		t.dx, t.dy = 0, 0
		emit(RawEvent{DeviceID: t.deviceID, Pos: t.cursor.pos(), Time: ts})
	}
}

// testBit reports whether bit n is set in a kernel bitmap.
func testBit(bits []byte, n uint) bool {
	idx := n / 8
	if int(idx) >= len(bits) {
		return false
	}
	return bits[idx]&(1<<(n%8)) != 0
}

// classify derives capabilities from the EV_* and EV_KEY bitmaps of a device.
// A keyboard must report KEY_A, KEY_Z and KEY_ENTER; a mouse needs relative
// axes and a left button.
func classify(evBits, keyBits []byte) Capability {
	var caps Capability
	if testBit(evBits, evKey) &&
		testBit(keyBits, uint(KeyA)) && testBit(keyBits, uint(KeyZ)) && testBit(keyBits, uint(KeyEnter)) {
		caps |= CapKeyboard
	}
	if testBit(evBits, evRel) && testBit(keyBits, uint(BtnLeft)) {
		caps |= CapMouse
	}
	return caps
}
