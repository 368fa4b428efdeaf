// Package input provides cross-platform device capture. Every backend turns its
// native events into RawEvent values; backend differences end at this package.
package input

import (
	"strings"
	"time"
)

// Point is a pointer position in screen coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// RawEvent is one device event in the canonical code space (Linux evdev codes).
// A pointer motion has Code 0 and a non-nil Pos.
type RawEvent struct {
	DeviceID string
	Code     uint16
	Pressed  bool
	Pos      *Point
	Time     time.Time
}

// IsMotion reports whether the event only carries a pointer position.
func (e RawEvent) IsMotion() bool {
	return e.Code == 0 && e.Pos != nil
}

// IsButton reports whether the code is a mouse button.
func (e RawEvent) IsButton() bool {
	return IsButtonCode(e.Code)
}

// Capability is a bit set of device kinds.
type Capability uint8

const (
	CapKeyboard Capability = 1 << iota
	CapMouse
)

// Has reports whether c contains all of o.
func (c Capability) Has(o Capability) bool {
	return c&o == o
}

func (c Capability) String() string {
	var parts []string
	if c.Has(CapKeyboard) {
		parts = append(parts, "keyboard")
	}
	if c.Has(CapMouse) {
		parts = append(parts, "mouse")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "+")
}

// Device describes one physical or logical input source owned by a backend.
type Device struct {
	ID   string     `json:"id"`
	Name string     `json:"name"`
	Path string     `json:"path,omitempty"`
	Caps Capability `json:"caps"`
	Open bool       `json:"open"`
}

// Backend is a platform-specific device poller.
//
// Open acquires devices and starts any capture thread the platform needs.
// Poll never blocks: it appends at most max pending events to dst and returns
// immediately. Close signals capture threads, joins them, then releases devices.
type Backend interface {
	Name() string
	Open() ([]Device, error)
	Poll(dst []RawEvent, max int) []RawEvent
	Close() error
}

// Resyncer is implemented by backends that can rescan their devices on request.
type Resyncer interface {
	Resync() ([]Device, error)
}

// DropCounter is implemented by backends that hand events across threads
// through a bounded Queue.
type DropCounter interface {
	Dropped() uint64
}

// DeviceLister reports the current device set of a backend.
type DeviceLister interface {
	Devices() []Device
}
