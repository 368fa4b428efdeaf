package input

import (
	"sync"
	"time"
)

// ManualBackend is fed by the program itself rather than by a device. It is
// used by the demo typist and by tests.
type ManualBackend struct {
	queue *Queue

	mu     sync.Mutex
	open   bool
	device Device
}

// NewManualBackend creates a manual backend with the given queue capacity.
func NewManualBackend(capacity int) *ManualBackend {
	return &ManualBackend{
		queue:  NewQueue(capacity),
		device: Device{ID: "manual", Name: "Manual input", Caps: CapKeyboard | CapMouse},
	}
}

// Name returns the backend name.
func (m *ManualBackend) Name() string {
	return "manual"
}

// Open marks the backend open.
func (m *ManualBackend) Open() ([]Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.open {
		return nil, ErrAlreadyOpen
	}
	m.open = true
	m.device.Open = true
	return []Device{m.device}, nil
}

// Inject queues an event. It is safe to call from any goroutine and never
// blocks. A zero Time is replaced with the current time.
func (m *ManualBackend) Inject(ev RawEvent) {
	if ev.DeviceID == "" {
		ev.DeviceID = m.device.ID
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	m.queue.Push(ev)
}

// Key queues a key or button transition.
func (m *ManualBackend) Key(code uint16, pressed bool, at time.Time) {
	m.Inject(RawEvent{Code: code, Pressed: pressed, Time: at})
}

// Move queues a pointer motion.
func (m *ManualBackend) Move(x, y float64, at time.Time) {
	m.Inject(RawEvent{Pos: &Point{X: x, Y: y}, Time: at})
}

// Poll drains queued events.
func (m *ManualBackend) Poll(dst []RawEvent, max int) []RawEvent {
	m.mu.Lock()
	open := m.open
	m.mu.Unlock()
	if !open {
		return dst
	}
	return m.queue.DrainInto(dst, max)
}

// Dropped returns the number of events evicted from the queue.
func (m *ManualBackend) Dropped() uint64 {
	return m.queue.Dropped()
}

// Devices returns the single manual device.
func (m *ManualBackend) Devices() []Device {
	m.mu.Lock()
	defer m.mu.Unlock()
	return []Device{m.device}
}

// Close marks the backend closed. Queued events are kept.
func (m *ManualBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open = false
	m.device.Open = false
	return nil
}
