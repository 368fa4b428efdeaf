//go:build !windows

package input

// HookBackend is only available on Windows.
type HookBackend struct{}

// NewHookBackend creates a stub hook backend.
func NewHookBackend(capacity int) *HookBackend {
	return &HookBackend{}
}

// Name returns the backend name.
func (h *HookBackend) Name() string {
	return "windows"
}

// Open always fails off Windows.
func (h *HookBackend) Open() ([]Device, error) {
	return nil, &CaptureError{Backend: h.Name(), Op: "open", Err: ErrUnsupported}
}

// Poll returns dst unchanged.
func (h *HookBackend) Poll(dst []RawEvent, max int) []RawEvent {
	return dst
}

// Close is a no-op.
func (h *HookBackend) Close() error {
	return nil
}
