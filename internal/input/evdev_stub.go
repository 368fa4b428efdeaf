//go:build !linux

package input

// EvdevBackend is only available on Linux.
type EvdevBackend struct {
	opts EvdevOptions
}

// NewEvdevBackend creates a stub evdev backend.
func NewEvdevBackend(opts EvdevOptions) *EvdevBackend {
	return &EvdevBackend{opts: opts}
}

// Name returns the backend name.
func (b *EvdevBackend) Name() string {
	return "evdev"
}

// Open always fails off Linux.
func (b *EvdevBackend) Open() ([]Device, error) {
	return nil, &CaptureError{Backend: b.Name(), Op: "open", Err: ErrUnsupported}
}

// Poll returns dst unchanged.
func (b *EvdevBackend) Poll(dst []RawEvent, max int) []RawEvent {
	return dst
}

// Close is a no-op.
func (b *EvdevBackend) Close() error {
	return nil
}
