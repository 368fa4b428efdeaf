//go:build linux

package input

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sort"
	"unsafe"

	"golang.org/x/sys/unix"

	"keyavatar/internal/log"
)

// ioctl request encoding (Linux _IOC macro)
const (
	iocNRShift   = 0
	iocTypeShift = 8
	iocSizeShift = 16
	iocDirShift  = 30

	iocRead = 2
)

func ioc(dir, typ, nr, size uint32) uint {
	return uint((dir << iocDirShift) | (typ << iocTypeShift) | (nr << iocNRShift) | (size << iocSizeShift))
}

// EVIOCGBIT(ev, len) = _IOC(_IOC_READ, 'E', 0x20 + ev, len)
func eviocgbit(ev, size uint32) uint {
	return ioc(iocRead, 'E', 0x20+ev, size)
}

// EVIOCGNAME(len) = _IOC(_IOC_READ, 'E', 0x06, len)
func eviocgname(size uint32) uint {
	return ioc(iocRead, 'E', 0x06, size)
}

var eventSize = int(unsafe.Sizeof(unix.Timeval{})) + 8

type evdevDevice struct {
	info  Device
	fd    int
	trans evdevTranslator
}

// EvdevBackend reads /dev/input/event* character devices directly. Every
// device is non-blocking and read synchronously from Poll; no thread is
// started. Hot-plug is only picked up by Resync.
type EvdevBackend struct {
	opts    EvdevOptions
	cursor  *cursor
	devices []*evdevDevice
	warned  map[string]bool
	buf     []byte
	next    int // device Poll starts from
	closed  bool
	logger  *slog.Logger
}

// NewEvdevBackend creates an evdev backend. Devices are opened by Open.
func NewEvdevBackend(opts EvdevOptions) *EvdevBackend {
	if opts.Glob == "" {
		opts.Glob = "/dev/input/event*"
	}
	if opts.MaxEventsPerDevice <= 0 {
		opts.MaxEventsPerDevice = 64
	}
	return &EvdevBackend{
		opts:   opts,
		cursor: newCursor(opts.ScreenWidth, opts.ScreenHeight),
		warned: make(map[string]bool),
		buf:    make([]byte, eventSize*opts.MaxEventsPerDevice),
	}
}

// Name returns the backend name.
func (b *EvdevBackend) Name() string {
	return "evdev"
}

// Open scans the device glob and opens every keyboard or mouse it can read.
// Devices that cannot be opened are skipped with a warning. ErrNoDevices is
// returned when nothing usable was found.
func (b *EvdevBackend) Open() ([]Device, error) {
	if len(b.devices) > 0 {
		return nil, ErrAlreadyOpen
	}
	b.logger = log.Component("evdev")
	b.closed = false
	return b.scan()
}

// Resync rescans the device glob. Devices that are still present keep their
// descriptors; vanished ones are closed.
func (b *EvdevBackend) Resync() ([]Device, error) {
	if b.closed {
		return nil, ErrClosed
	}
	if b.logger == nil {
		b.logger = log.Component("evdev")
	}
	return b.scan()
}

func (b *EvdevBackend) scan() ([]Device, error) {
	paths, err := filepath.Glob(b.opts.Glob)
	if err != nil {
		return nil, &CaptureError{Backend: b.Name(), Op: "scan", Err: err}
	}
	sort.Strings(paths)

	existing := make(map[string]*evdevDevice, len(b.devices))
	for _, d := range b.devices {
		if d.info.Open {
			existing[d.info.Path] = d
		}
	}

	var (
		next []*evdevDevice
		errs []error
	)
	for _, path := range paths {
		if d, ok := existing[path]; ok {
			next = append(next, d)
			delete(existing, path)
			continue
		}
		d, err := b.openDevice(path)
		if err != nil {
			if !errors.Is(err, errNotInput) {
				errs = append(errs, err)
				b.warnOnce(path, err)
			}
			continue
		}
		b.logger.Info("Opened input device", "path", path, "name", d.info.Name, "caps", d.info.Caps.String())
		next = append(next, d)
	}
	for path, d := range existing {
		unix.Close(d.fd)
		b.logger.Info("Input device gone", "path", path)
	}
	b.devices = next

	if len(b.devices) == 0 {
		errs = append(errs, ErrNoDevices)
		return nil, errors.Join(errs...)
	}
	return b.Devices(), nil
}

var errNotInput = errors.New("not a keyboard or mouse")

func (b *EvdevBackend) openDevice(path string) (*evdevDevice, error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, &CaptureError{Backend: b.Name(), Device: path, Op: "open", Err: err}
	}

	evBits := make([]byte, 4)
	keyBits := make([]byte, int(KeyMax)/8+1)
	if err := ioctlBuf(fd, eviocgbit(0, uint32(len(evBits))), evBits); err != nil {
		unix.Close(fd)
		return nil, &CaptureError{Backend: b.Name(), Device: path, Op: "query capabilities", Err: err}
	}
	if err := ioctlBuf(fd, eviocgbit(evKey, uint32(len(keyBits))), keyBits); err != nil {
		unix.Close(fd)
		return nil, &CaptureError{Backend: b.Name(), Device: path, Op: "query keys", Err: err}
	}

	caps := classify(evBits, keyBits)
	if caps == 0 {
		unix.Close(fd)
		return nil, errNotInput
	}

	name := make([]byte, 256)
	if err := ioctlBuf(fd, eviocgname(uint32(len(name))), name); err != nil {
		name = []byte(filepath.Base(path))
	}
	if i := bytes.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}

	id := "evdev:" + filepath.Base(path)
	return &evdevDevice{
		info:  Device{ID: id, Name: string(name), Path: path, Caps: caps, Open: true},
		fd:    fd,
		trans: evdevTranslator{deviceID: id, cursor: b.cursor},
	}, nil
}

func ioctlBuf(fd int, req uint, buf []byte) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(req), uintptr(unsafe.Pointer(&buf[0])))
	if errno != 0 {
		return errno
	}
	return nil
}

// Poll reads every open device without blocking. Each device contributes at
// most MaxEventsPerDevice input_event records per call so a flooding device
// cannot starve the tick. A record yields at most one RawEvent, so reads stop
// once max is reached and the rest stays queued in the kernel for the next
// call. The starting device rotates between calls. A device that fails is
// closed and skipped.
func (b *EvdevBackend) Poll(dst []RawEvent, max int) []RawEvent {
	emit := func(ev RawEvent) {
		dst = append(dst, ev)
	}
	start := len(dst)
	n := len(b.devices)
	for i := 0; i < n; i++ {
		d := b.devices[(b.next+i)%n]
		if !d.info.Open {
			continue
		}
		limit := b.opts.MaxEventsPerDevice
		if max > 0 {
			left := max - (len(dst) - start)
			if left <= 0 {
				break
			}
			if left < limit {
				limit = left
			}
		}
		b.readDevice(d, limit, emit)
	}
	if n > 0 {
		b.next = (b.next + 1) % n
	}
	return dst
}

// readDevice reads at most limit records from d.
func (b *EvdevBackend) readDevice(d *evdevDevice, limit int, emit func(RawEvent)) {
	read := 0
	for read < limit {
		n, err := unix.Read(d.fd, b.buf[:(limit-read)*eventSize])
		if err == unix.EAGAIN || err == unix.EINTR {
			return
		}
		if err != nil || n == 0 {
			if err == nil {
				err = io.EOF
			}
			b.dropDevice(d, err)
			return
		}
		read += decodeEvents(b.buf[:n], eventSize, func(ev inputEvent) {
			d.trans.translate(ev, emit)
		})
	}
}

func (b *EvdevBackend) dropDevice(d *evdevDevice, err error) {
	unix.Close(d.fd)
	d.fd = -1
	d.info.Open = false
	b.warnOnce(d.info.Path, &CaptureError{Backend: b.Name(), Device: d.info.Path, Op: "read", Err: err})
}

func (b *EvdevBackend) warnOnce(path string, err error) {
	if b.warned[path] {
		return
	}
	b.warned[path] = true
	b.logger.Warn("Skipping input device", "path", path, "error", err)
}

// Devices returns the current device set.
func (b *EvdevBackend) Devices() []Device {
	out := make([]Device, 0, len(b.devices))
	for _, d := range b.devices {
		out = append(out, d.info)
	}
	return out
}

// Close releases every device descriptor.
func (b *EvdevBackend) Close() error {
	var errs []error
	for _, d := range b.devices {
		if d.fd < 0 {
			continue
		}
		if err := unix.Close(d.fd); err != nil {
			errs = append(errs, &CaptureError{Backend: b.Name(), Device: d.info.Path, Op: "close", Err: err})
		}
	}
	b.devices = nil
	b.closed = true
	return errors.Join(errs...)
}
