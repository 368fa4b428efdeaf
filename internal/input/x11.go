package input

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"

	"keyavatar/internal/log"
)

// X11Options configures the X11 backend.
type X11Options struct {
	Display        string        // empty means $DISPLAY
	SampleInterval time.Duration // keymap/pointer sampling period
	QueueCapacity  int
	Reconnect      ReconnectConfig
}

// X11Backend captures the core keyboard and pointer of an X server. A
// sampling goroutine owns the connection; it diffs the global keymap and
// pointer state and pushes the differences into the Queue. On a lost
// connection it reconnects with bounded retry.
//
// xgb matches one reply per request, so RECORD's EnableContext stream of
// intercepted data cannot be read through it. Sampling is used instead: a
// press and release that both land between two samples is not seen.
type X11Backend struct {
	opts  X11Options
	queue *Queue

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	device  Device
	logger  *slog.Logger
}

// NewX11Backend creates an X11 backend.
func NewX11Backend(opts X11Options) *X11Backend {
	if opts.SampleInterval <= 0 {
		opts.SampleInterval = 8 * time.Millisecond
	}
	if opts.Reconnect.MaxRetries <= 0 {
		opts.Reconnect = DefaultReconnectConfig()
	}
	return &X11Backend{opts: opts, queue: NewQueue(opts.QueueCapacity)}
}

// Name returns the backend name.
func (b *X11Backend) Name() string {
	return "x11"
}

// Open connects to the display and starts the sampling goroutine.
func (b *X11Backend) Open() ([]Device, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		return nil, ErrAlreadyOpen
	}
	b.logger = log.Component("x11")

	sess, err := dialX11(b.opts.Display)
	if err != nil {
		return nil, &CaptureError{Backend: b.Name(), Device: b.opts.Display, Op: "connect", Err: err}
	}

	name := b.opts.Display
	if name == "" {
		name = "default"
	}
	b.device = Device{ID: "x11:" + name, Name: "X11 core keyboard and pointer", Caps: CapKeyboard | CapMouse, Open: true}

	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.running = true
	b.wg.Add(1)
	go b.sampleLoop(ctx, sess, b.device.ID)

	b.logger.Info("Connected to X server", "display", name)
	return []Device{b.device}, nil
}

// x11Session is one live connection.
type x11Session struct {
	conn *xgb.Conn
	root xproto.Window
}

func dialX11(display string) (*x11Session, error) {
	conn, err := xgb.NewConnDisplay(display)
	if err != nil {
		return nil, err
	}
	setup := xproto.Setup(conn)
	if setup == nil || len(setup.Roots) == 0 {
		conn.Close()
		return nil, fmt.Errorf("x server reported no screens")
	}
	return &x11Session{conn: conn, root: setup.DefaultScreen(conn).Root}, nil
}

// x11Sample is the input state observed at one instant.
type x11Sample struct {
	keys    [32]byte
	x, y    int16
	buttons uint16
}

func (s *x11Session) sample() (x11Sample, error) {
	var out x11Sample

	km, err := xproto.QueryKeymap(s.conn).Reply()
	if err != nil {
		return out, fmt.Errorf("query keymap: %w", err)
	}
	copy(out.keys[:], km.Keys)

	ptr, err := xproto.QueryPointer(s.conn, s.root).Reply()
	if err != nil {
		return out, fmt.Errorf("query pointer: %w", err)
	}
	out.x, out.y = ptr.RootX, ptr.RootY
	out.buttons = ptr.Mask & (xproto.KeyButMaskButton1 | xproto.KeyButMaskButton2 | xproto.KeyButMaskButton3)
	return out, nil
}

func (b *X11Backend) sampleLoop(ctx context.Context, sess *x11Session, deviceID string) {
	defer b.wg.Done()
	defer func() {
		if sess != nil {
			sess.conn.Close()
		}
	}()

	ticker := time.NewTicker(b.opts.SampleInterval)
	defer ticker.Stop()

	var (
		prev    x11Sample
		hasPrev bool
	)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		cur, err := sess.sample()
		if err != nil {
			b.logger.Warn("X connection lost", "error", err)
			sess.conn.Close()
			sess = nil

			err = reconnect(ctx, b.opts.Reconnect, b.logger, func() error {
				s, err := dialX11(b.opts.Display)
				if err != nil {
					return err
				}
				sess = s
				return nil
			})
			if err != nil {
				if ctx.Err() == nil {
					b.logger.Error("Giving up on X server", "error", err)
					b.mu.Lock()
					b.device.Open = false
					b.mu.Unlock()
				}
				return
			}
			continue
		}

		if hasPrev {
			diffSamples(prev, cur, time.Now(), func(ev RawEvent) {
				ev.DeviceID = deviceID
				b.queue.Push(ev)
			})
		}
		prev, hasPrev = cur, true
	}
}

var x11Buttons = []struct {
	mask uint16
	code uint16
}{
	{xproto.KeyButMaskButton1, BtnLeft},
	{xproto.KeyButMaskButton2, BtnMiddle},
	{xproto.KeyButMaskButton3, BtnRight},
}

// diffSamples emits the events that explain the change from prev to cur:
// pointer motion first, then key and button transitions.
func diffSamples(prev, cur x11Sample, now time.Time, emit func(RawEvent)) {
	pos := &Point{X: float64(cur.x), Y: float64(cur.y)}
	if cur.x != prev.x || cur.y != prev.y {
		emit(RawEvent{Pos: pos, Time: now})
	}

	for i := range cur.keys {
		changed := prev.keys[i] ^ cur.keys[i]
		if changed == 0 {
			continue
		}
		for bit := 0; bit < 8; bit++ {
			if changed&(1<<bit) == 0 {
				continue
			}
			code := FromX11Keycode(uint8(i*8 + bit))
			if code == 0 {
				continue
			}
			emit(RawEvent{Code: code, Pressed: cur.keys[i]&(1<<bit) != 0, Time: now})
		}
	}

	for _, btn := range x11Buttons {
		was, is := prev.buttons&btn.mask != 0, cur.buttons&btn.mask != 0
		if was != is {
			emit(RawEvent{Code: btn.code, Pressed: is, Pos: pos, Time: now})
		}
	}
}

// Poll drains sampled events without blocking.
func (b *X11Backend) Poll(dst []RawEvent, max int) []RawEvent {
	return b.queue.DrainInto(dst, max)
}

// Dropped returns the number of events evicted from the queue.
func (b *X11Backend) Dropped() uint64 {
	return b.queue.Dropped()
}

// Devices returns the logical X11 device.
func (b *X11Backend) Devices() []Device {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.running {
		return nil
	}
	return []Device{b.device}
}

// Close cancels the sampling goroutine, waits for it to exit and close the
// connection.
func (b *X11Backend) Close() error {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return nil
	}
	b.running = false
	b.cancel()
	b.mu.Unlock()

	b.wg.Wait()
	b.logger.Info("Disconnected from X server")
	return nil
}
