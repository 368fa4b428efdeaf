package input

import (
	"encoding/binary"
	"errors"
	"testing"
	"time"
)

// TestQueueOverflowDropsOldest tests that a full queue evicts the oldest event
func TestQueueOverflowDropsOldest(t *testing.T) {
	q := NewQueue(4)
	for i := 1; i <= 10; i++ {
		q.Push(RawEvent{Code: uint16(i)})
	}

	if q.Len() != 4 {
		t.Errorf("Expected 4 pending events, got %d", q.Len())
	}
	if q.Dropped() != 6 {
		t.Errorf("Expected 6 dropped events, got %d", q.Dropped())
	}

	got := q.DrainInto(nil, 0)
	for i, ev := range got {
		if want := uint16(7 + i); ev.Code != want {
			t.Errorf("Expected code %d at %d, got %d", want, i, ev.Code)
		}
	}
	if q.Len() != 0 {
		t.Errorf("Expected empty queue after drain, got %d", q.Len())
	}
}

// TestQueueDrainMax tests partial drains keep order
func TestQueueDrainMax(t *testing.T) {
	q := NewQueue(8)
	for i := 1; i <= 5; i++ {
		q.Push(RawEvent{Code: uint16(i)})
	}

	first := q.DrainInto(nil, 2)
	rest := q.DrainInto(nil, 0)
	if len(first) != 2 || first[0].Code != 1 || first[1].Code != 2 {
		t.Errorf("Expected codes [1 2], got %+v", first)
	}
	if len(rest) != 3 || rest[0].Code != 3 {
		t.Errorf("Expected codes [3 4 5], got %+v", rest)
	}
}

// TestQueueProducerNeverBlocks tests that a producer without a consumer finishes
func TestQueueProducerNeverBlocks(t *testing.T) {
	q := NewQueue(16)
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100000; i++ {
			q.Push(RawEvent{Code: uint16(i % 200)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Producer blocked on a full queue")
	}
	if q.Dropped() != 100000-16 {
		t.Errorf("Expected %d dropped events, got %d", 100000-16, q.Dropped())
	}
}

func TestKeyNames(t *testing.T) {
	if KeyName(KeyA) != "A" {
		t.Errorf("Expected 'A', got '%s'", KeyName(KeyA))
	}
	if KeyName(BtnLeft) != "MOUSE1" {
		t.Errorf("Expected 'MOUSE1', got '%s'", KeyName(BtnLeft))
	}

	codes, err := KeyCodes("ctrl")
	if err != nil {
		t.Fatalf("KeyCodes failed: %v", err)
	}
	if len(codes) != 2 || codes[0] != KeyLeftCtrl || codes[1] != KeyRightCtrl {
		t.Errorf("Expected both control keys, got %v", codes)
	}

	if _, err := KeyCodes("hyper"); err == nil {
		t.Error("Expected error for unknown key name")
	}
}

func TestFromVirtualKey(t *testing.T) {
	tests := []struct {
		vk   uint32
		code uint16
		ok   bool
	}{
		{0x41, KeyA, true},
		{0x5A, KeyZ, true},
		{0x0D, KeyEnter, true},
		{0xA3, KeyRightCtrl, true},
		{0x20, KeySpace, true},
		{0xFF, 0, false},
	}
	for _, tt := range tests {
		code, ok := FromVirtualKey(tt.vk)
		if code != tt.code || ok != tt.ok {
			t.Errorf("FromVirtualKey(0x%X): expected (%d, %v), got (%d, %v)", tt.vk, tt.code, tt.ok, code, ok)
		}
	}
}

func TestFromX11Keycode(t *testing.T) {
	// X keycode 38 is 'a' under the evdev rules
	if got := FromX11Keycode(38); got != KeyA {
		t.Errorf("Expected %d, got %d", KeyA, got)
	}
	if got := FromX11Keycode(3); got != 0 {
		t.Errorf("Expected 0 for keycode below offset, got %d", got)
	}
}

func encodeEvent24(sec, usec int64, typ, code uint16, value int32) []byte {
	b := make([]byte, 24)
	binary.LittleEndian.PutUint64(b[0:8], uint64(sec))
	binary.LittleEndian.PutUint64(b[8:16], uint64(usec))
	binary.LittleEndian.PutUint16(b[16:18], typ)
	binary.LittleEndian.PutUint16(b[18:20], code)
	binary.LittleEndian.PutUint32(b[20:24], uint32(value))
	return b
}

func encodeEvent16(sec, usec int32, typ, code uint16, value int32) []byte {
	b := make([]byte, 16)
	binary.LittleEndian.PutUint32(b[0:4], uint32(sec))
	binary.LittleEndian.PutUint32(b[4:8], uint32(usec))
	binary.LittleEndian.PutUint16(b[8:10], typ)
	binary.LittleEndian.PutUint16(b[10:12], code)
	binary.LittleEndian.PutUint32(b[12:16], uint32(value))
	return b
}

func TestDecodeEvents(t *testing.T) {
	var buf []byte
	buf = append(buf, encodeEvent24(100, 250000, evKey, KeyA, keyPressed)...)
	buf = append(buf, encodeEvent24(100, 300000, evSyn, synReport, 0)...)
	buf = append(buf, 0x01, 0x02) // partial trailing record

	var got []inputEvent
	n := decodeEvents(buf, 24, func(ev inputEvent) { got = append(got, ev) })
	if n != 2 || len(got) != 2 {
		t.Fatalf("Expected 2 events, got %d", n)
	}
	if got[0].Type != evKey || got[0].Code != KeyA || got[0].Value != keyPressed {
		t.Errorf("Unexpected first event: %+v", got[0])
	}
	if want := time.Unix(100, 250000000); !got[0].Time.Equal(want) {
		t.Errorf("Expected time %v, got %v", want, got[0].Time)
	}

	got = got[:0]
	decodeEvents(encodeEvent16(5, 0, evKey, KeyZ, keyReleased), 16, func(ev inputEvent) { got = append(got, ev) })
	if len(got) != 1 || got[0].Code != KeyZ || got[0].Value != keyReleased {
		t.Errorf("Unexpected 16-byte decode: %+v", got)
	}
}

func TestTranslatorIgnoresRepeat(t *testing.T) {
	tr := evdevTranslator{deviceID: "evdev:event0", cursor: newCursor(100, 100)}
	var got []RawEvent
	emit := func(ev RawEvent) { got = append(got, ev) }

	at := time.Unix(10, 0)
	tr.translate(inputEvent{Time: at, Type: evKey, Code: KeyA, Value: keyPressed}, emit)
	tr.translate(inputEvent{Time: at, Type: evKey, Code: KeyA, Value: keyRepeat}, emit)
	tr.translate(inputEvent{Time: at, Type: evKey, Code: KeyA, Value: keyRepeat}, emit)
	tr.translate(inputEvent{Time: at, Type: evKey, Code: KeyA, Value: keyReleased}, emit)

	if len(got) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(got))
	}
	if !got[0].Pressed || got[1].Pressed {
		t.Errorf("Expected press then release, got %+v", got)
	}
	if got[0].DeviceID != "evdev:event0" {
		t.Errorf("Expected device id 'evdev:event0', got '%s'", got[0].DeviceID)
	}
}

func TestTranslatorRelativeMotion(t *testing.T) {
	tr := evdevTranslator{cursor: newCursor(100, 80)}
	var got []RawEvent
	emit := func(ev RawEvent) { got = append(got, ev) }

	at := time.Unix(10, 0)
	tr.translate(inputEvent{Time: at, Type: evRel, Code: relX, Value: 10}, emit)
	tr.translate(inputEvent{Time: at, Type: evRel, Code: relY, Value: -5}, emit)
	if len(got) != 0 {
		t.Fatalf("Expected motion to wait for SYN_REPORT, got %d events", len(got))
	}
	tr.translate(inputEvent{Time: at, Type: evSyn, Code: synReport}, emit)

	if len(got) != 1 || !got[0].IsMotion() {
		t.Fatalf("Expected one motion event, got %+v", got)
	}
	if got[0].Pos.X != 60 || got[0].Pos.Y != 35 {
		t.Errorf("Expected position (60, 35), got (%v, %v)", got[0].Pos.X, got[0].Pos.Y)
	}

	// far beyond the screen edge
	tr.translate(inputEvent{Time: at, Type: evRel, Code: relX, Value: 10000}, emit)
	tr.translate(inputEvent{Time: at, Type: evSyn, Code: synReport}, emit)
	if got[1].Pos.X != 99 {
		t.Errorf("Expected cursor clamped to 99, got %v", got[1].Pos.X)
	}

	tr.translate(inputEvent{Time: at, Type: evKey, Code: BtnLeft, Value: keyPressed}, emit)
	if !got[2].IsButton() || got[2].Pos == nil {
		t.Errorf("Expected button event with position, got %+v", got[2])
	}
}

func TestClassify(t *testing.T) {
	set := func(bits []byte, n uint16) { bits[n/8] |= 1 << (n % 8) }

	evBits := make([]byte, 4)
	keyBits := make([]byte, int(KeyMax)/8+1)
	set(evBits, evKey)
	set(keyBits, KeyA)
	set(keyBits, KeyZ)

	if caps := classify(evBits, keyBits); caps != 0 {
		t.Errorf("Expected no caps without KEY_ENTER, got %s", caps)
	}

	set(keyBits, KeyEnter)
	if caps := classify(evBits, keyBits); caps != CapKeyboard {
		t.Errorf("Expected keyboard, got %s", caps)
	}

	set(evBits, evRel)
	set(keyBits, BtnLeft)
	if caps := classify(evBits, keyBits); caps != CapKeyboard|CapMouse {
		t.Errorf("Expected keyboard+mouse, got %s", caps)
	}
}

func TestDiffSamples(t *testing.T) {
	var prev, cur x11Sample
	cur.keys[38/8] |= 1 << (38 % 8) // 'a'
	cur.x, cur.y = 5, 7
	cur.buttons = 256 // Button1

	var got []RawEvent
	diffSamples(prev, cur, time.Unix(1, 0), func(ev RawEvent) { got = append(got, ev) })

	if len(got) != 3 {
		t.Fatalf("Expected 3 events, got %d: %+v", len(got), got)
	}
	if !got[0].IsMotion() || got[0].Pos.X != 5 {
		t.Errorf("Expected motion first, got %+v", got[0])
	}
	if got[1].Code != KeyA || !got[1].Pressed {
		t.Errorf("Expected KEY_A down, got %+v", got[1])
	}
	if got[2].Code != BtnLeft || !got[2].Pressed {
		t.Errorf("Expected left button down, got %+v", got[2])
	}

	got = got[:0]
	diffSamples(cur, prev, time.Unix(2, 0), func(ev RawEvent) { got = append(got, ev) })
	if len(got) != 3 || got[1].Pressed || got[2].Pressed {
		t.Errorf("Expected releases, got %+v", got)
	}
}

// TestDiffSamplesMissesTapBetweenSamples tests that a key pressed and
// released within one sample interval leaves no trace
func TestDiffSamplesMissesTapBetweenSamples(t *testing.T) {
	var before, after x11Sample
	before.x, before.y = 5, 7
	after.x, after.y = 5, 7

	// 'a' went down and up again after before was taken, before after was
	var got []RawEvent
	diffSamples(before, after, time.Unix(1, 0), func(ev RawEvent) { got = append(got, ev) })
	if len(got) != 0 {
		t.Errorf("Expected a tap between samples to be invisible, got %+v", got)
	}

	// the same tap spanning a sample is seen as a press then a release
	var mid x11Sample
	mid.x, mid.y = 5, 7
	mid.keys[38/8] |= 1 << (38 % 8)
	diffSamples(before, mid, time.Unix(1, 0), func(ev RawEvent) { got = append(got, ev) })
	diffSamples(mid, after, time.Unix(2, 0), func(ev RawEvent) { got = append(got, ev) })
	if len(got) != 2 || got[0].Code != KeyA || !got[0].Pressed || got[1].Pressed {
		t.Errorf("Expected KEY_A down then up, got %+v", got)
	}
}

func TestStopThread(t *testing.T) {
	t.Run("exits on first request", func(t *testing.T) {
		done := make(chan struct{})
		posts := 0
		err := stopThread(func() error {
			posts++
			close(done)
			return nil
		}, done, time.Second)
		if err != nil || posts != 1 {
			t.Errorf("Expected clean stop after 1 post, got %v after %d", err, posts)
		}
	})

	t.Run("exits on second request", func(t *testing.T) {
		done := make(chan struct{})
		posts := 0
		err := stopThread(func() error {
			posts++
			if posts == 2 {
				close(done)
			}
			return nil
		}, done, 10*time.Millisecond)
		if err != nil || posts != 2 {
			t.Errorf("Expected clean stop after 2 posts, got %v after %d", err, posts)
		}
	})

	t.Run("never exits", func(t *testing.T) {
		done := make(chan struct{})
		posts := 0
		err := stopThread(func() error {
			posts++
			return nil
		}, done, 10*time.Millisecond)
		if !errors.Is(err, errThreadStuck) || posts != 2 {
			t.Errorf("Expected errThreadStuck after 2 posts, got %v after %d", err, posts)
		}
	})

	t.Run("post fails", func(t *testing.T) {
		done := make(chan struct{})
		want := errors.New("no such thread")
		err := stopThread(func() error { return want }, done, time.Second)
		if !errors.Is(err, want) {
			t.Errorf("Expected post error, got %v", err)
		}
	})

	t.Run("already exited", func(t *testing.T) {
		done := make(chan struct{})
		close(done)
		err := stopThread(func() error {
			t.Error("Expected no post for an exited thread")
			return nil
		}, done, time.Second)
		if err != nil {
			t.Errorf("Expected nil, got %v", err)
		}
	})
}

func TestBackoff(t *testing.T) {
	cfg := ReconnectConfig{MaxRetries: 5, RetryDelay: time.Second, MaxRetryDelay: 5 * time.Second}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second}
	for i, w := range want {
		if got := backoff(i+1, cfg); got != w {
			t.Errorf("Attempt %d: expected %v, got %v", i+1, w, got)
		}
	}
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name    string
		backend string
		env     Env
		want    string
		wantErr bool
	}{
		{"windows auto", "auto", Env{GOOS: "windows"}, "windows", false},
		{"x11 session", "", Env{GOOS: "linux", Display: ":0"}, "x11", false},
		{"wayland session", "auto", Env{GOOS: "linux", Display: ":0", WaylandDisplay: "wayland-0"}, "evdev", false},
		{"console", "auto", Env{GOOS: "linux"}, "evdev", false},
		{"forced evdev", "evdev", Env{GOOS: "linux", Display: ":0"}, "evdev", false},
		{"darwin", "auto", Env{GOOS: "darwin"}, "", true},
		{"bogus", "carrier-pigeon", Env{GOOS: "linux"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backends, err := Detect(DetectConfig{Backend: tt.backend, QueueCapacity: 8}, tt.env)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error, got %d backends", len(backends))
				}
				return
			}
			if err != nil {
				t.Fatalf("Detect failed: %v", err)
			}
			if len(backends) != 1 || backends[0].Name() != tt.want {
				t.Errorf("Expected backend '%s', got %v", tt.want, backends)
			}
		})
	}

	backends, err := Detect(DetectConfig{Backend: "none"}, Env{GOOS: "linux"})
	if err != nil || len(backends) != 0 {
		t.Errorf("Expected no backends for 'none', got %v (%v)", backends, err)
	}
}

func TestDetectUnsupported(t *testing.T) {
	_, err := Detect(DetectConfig{}, Env{GOOS: "plan9"})
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("Expected ErrUnsupported, got %v", err)
	}
}

func TestManualBackend(t *testing.T) {
	m := NewManualBackend(8)
	m.Key(KeyA, true, time.Unix(1, 0))

	if got := m.Poll(nil, 0); len(got) != 0 {
		t.Errorf("Expected no events before Open, got %d", len(got))
	}

	devices, err := m.Open()
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if len(devices) != 1 || !devices[0].Open {
		t.Errorf("Expected one open device, got %+v", devices)
	}
	if _, err := m.Open(); !errors.Is(err, ErrAlreadyOpen) {
		t.Errorf("Expected ErrAlreadyOpen, got %v", err)
	}

	m.Move(3, 4, time.Time{})
	got := m.Poll(nil, 0)
	if len(got) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(got))
	}
	if got[0].Code != KeyA || got[0].DeviceID != "manual" {
		t.Errorf("Unexpected key event: %+v", got[0])
	}
	if !got[1].IsMotion() || got[1].Time.IsZero() {
		t.Errorf("Expected timestamped motion, got %+v", got[1])
	}

	if err := m.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestCaptureErrorUnwrap(t *testing.T) {
	err := error(&CaptureError{Backend: "evdev", Device: "/dev/input/event3", Op: "open", Err: ErrUnsupported})
	if !errors.Is(err, ErrUnsupported) {
		t.Error("Expected CaptureError to unwrap")
	}
	if err.Error() != "evdev: open /dev/input/event3: input backend not supported on this platform" {
		t.Errorf("Unexpected message: %s", err.Error())
	}
}
