package input

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupported is returned when a backend cannot run on this platform.
	ErrUnsupported = errors.New("input backend not supported on this platform")

	// ErrNoDevices is returned when a backend found nothing it could open.
	ErrNoDevices = errors.New("no input devices available")

	// ErrClosed is returned when using a backend after Close.
	ErrClosed = errors.New("input backend closed")

	// ErrAlreadyOpen is returned by Open on a running backend.
	ErrAlreadyOpen = errors.New("input backend already open")
)

// CaptureError reports a device open/read/permission failure. The device is
// marked unavailable and capture continues with the remaining devices.
type CaptureError struct {
	Backend string
	Device  string
	Op      string
	Err     error
}

func (e *CaptureError) Error() string {
	if e.Device == "" {
		return fmt.Sprintf("%s: %s: %v", e.Backend, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s %s: %v", e.Backend, e.Op, e.Device, e.Err)
}

func (e *CaptureError) Unwrap() error {
	return e.Err
}
