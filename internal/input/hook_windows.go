//go:build windows

package input

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"

	"keyavatar/internal/log"
)

// Low-level hook capture. The hooks are installed from a locked OS thread that
// owns a GetMessage loop; the callbacks only push into the Queue.

const (
	whKeyboardLL = 13
	whMouseLL    = 14

	wmQuit        = 0x0012
	wmKeyDown     = 0x0100
	wmKeyUp       = 0x0101
	wmSysKeyDown  = 0x0104
	wmSysKeyUp    = 0x0105
	wmMouseMove   = 0x0200
	wmLButtonDown = 0x0201
	wmLButtonUp   = 0x0202
	wmRButtonDown = 0x0204
	wmRButtonUp   = 0x0205
	wmMButtonDown = 0x0207
	wmMButtonUp   = 0x0208
	wmXButtonDown = 0x020B
	wmXButtonUp   = 0x020C

	pmNoRemove = 0x0000
)

var (
	user32                = windows.NewLazySystemDLL("user32.dll")
	procSetWindowsHookEx  = user32.NewProc("SetWindowsHookExW")
	procUnhookWindowsHook = user32.NewProc("UnhookWindowsHookEx")
	procCallNextHookEx    = user32.NewProc("CallNextHookEx")
	procGetMessage        = user32.NewProc("GetMessageW")
	procPeekMessage       = user32.NewProc("PeekMessageW")
	procPostThreadMessage = user32.NewProc("PostThreadMessageW")
	procTranslateMessage  = user32.NewProc("TranslateMessage")
	procDispatchMessage   = user32.NewProc("DispatchMessageW")
)

type point struct {
	X, Y int32
}

type msg struct {
	Hwnd    windows.Handle
	Message uint32
	WParam  uintptr
	LParam  uintptr
	Time    uint32
	Pt      point
}

type msllHookStruct struct {
	Pt          point
	MouseData   uint32
	Flags       uint32
	Time        uint32
	DwExtraInfo uintptr
}

type kbdllHookStruct struct {
	VkCode      uint32
	ScanCode    uint32
	Flags       uint32
	Time        uint32
	DwExtraInfo uintptr
}

// Hook procedures carry no user data, so the running backend is reached
// through this pointer. Callbacks are created once because Windows callback
// slots are never released.
var (
	activeHook   atomic.Pointer[HookBackend]
	keyboardProc = windows.NewCallback(keyboardHookProc)
	mouseProc    = windows.NewCallback(mouseHookProc)
)

// HookBackend captures keyboard and mouse input with WH_KEYBOARD_LL and
// WH_MOUSE_LL hooks.
type HookBackend struct {
	queue *Queue

	mu       sync.Mutex
	running  bool
	threadID uint32
	done     chan struct{}
	devices  []Device

	// held is only touched by the hook thread.
	held [KeyMax + 1]bool
}

// NewHookBackend creates a hook backend whose queue holds capacity events.
func NewHookBackend(capacity int) *HookBackend {
	return &HookBackend{queue: NewQueue(capacity)}
}

// Name returns the backend name.
func (h *HookBackend) Name() string {
	return "windows"
}

// Open starts the hook thread and waits until both hooks are installed.
func (h *HookBackend) Open() ([]Device, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.running {
		return nil, ErrAlreadyOpen
	}
	if h.done != nil {
		select {
		case <-h.done:
		default:
			return nil, &CaptureError{Backend: h.Name(), Op: "open", Err: errThreadStuck}
		}
	}
	if !activeHook.CompareAndSwap(nil, h) {
		return nil, &CaptureError{Backend: h.Name(), Op: "open", Err: fmt.Errorf("another hook backend is running")}
	}

	ready := make(chan error, 1)
	h.done = make(chan struct{})
	h.held = [KeyMax + 1]bool{}
	go h.hookThread(ready)

	if err := <-ready; err != nil {
		<-h.done
		activeHook.CompareAndSwap(h, nil)
		return nil, &CaptureError{Backend: h.Name(), Op: "install hooks", Err: err}
	}

	h.running = true
	h.devices = []Device{
		{ID: "hook:keyboard", Name: "Low-level keyboard hook", Caps: CapKeyboard, Open: true},
		{ID: "hook:mouse", Name: "Low-level mouse hook", Caps: CapMouse, Open: true},
	}
	log.Component("hook").Info("Hooks installed", "thread", h.threadID)
	return h.Devices(), nil
}

// hookThread owns the hooks for their whole lifetime. Hooks must be removed
// from the thread that installed them.
func (h *HookBackend) hookThread(ready chan<- error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(h.done)

	// Force creation of the thread message queue before anyone can post to it.
	var m msg
	procPeekMessage.Call(uintptr(unsafe.Pointer(&m)), 0, 0, 0, pmNoRemove)
	h.threadID = windows.GetCurrentThreadId()

	keyHook, _, err := procSetWindowsHookEx.Call(whKeyboardLL, keyboardProc, 0, 0)
	if keyHook == 0 {
		ready <- fmt.Errorf("keyboard hook: %w", err)
		return
	}
	defer procUnhookWindowsHook.Call(keyHook)

	mouseHook, _, err := procSetWindowsHookEx.Call(whMouseLL, mouseProc, 0, 0)
	if mouseHook == 0 {
		ready <- fmt.Errorf("mouse hook: %w", err)
		return
	}
	defer procUnhookWindowsHook.Call(mouseHook)

	ready <- nil

	for {
		ret, _, _ := procGetMessage.Call(uintptr(unsafe.Pointer(&m)), 0, 0, 0)
		// 0 is WM_QUIT, -1 is an error; both end the loop.
		if int32(ret) <= 0 {
			return
		}
		procTranslateMessage.Call(uintptr(unsafe.Pointer(&m)))
		procDispatchMessage.Call(uintptr(unsafe.Pointer(&m)))
	}
}

// Poll drains pending hook events without blocking.
func (h *HookBackend) Poll(dst []RawEvent, max int) []RawEvent {
	return h.queue.DrainInto(dst, max)
}

// Dropped returns the number of events evicted from the hook queue.
func (h *HookBackend) Dropped() uint64 {
	return h.queue.Dropped()
}

// Devices returns the two logical hook devices.
func (h *HookBackend) Devices() []Device {
	out := make([]Device, len(h.devices))
	copy(out, h.devices)
	return out
}

// Close posts WM_QUIT to the hook thread, waits for it to unhook and exit,
// then releases the backend. A thread that does not exit leaves the backend
// closed but unable to reopen until it does; its hooks no longer deliver.
func (h *HookBackend) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.running {
		return nil
	}

	err := stopThread(func() error {
		ret, _, err := procPostThreadMessage.Call(uintptr(h.threadID), wmQuit, 0, 0)
		if ret == 0 {
			return err
		}
		return nil
	}, h.done, 2*time.Second)

	h.running = false
	for i := range h.devices {
		h.devices[i].Open = false
	}
	activeHook.CompareAndSwap(h, nil)
	if err != nil {
		log.Component("hook").Error("Hook thread did not exit", "thread", h.threadID, "error", err)
		return &CaptureError{Backend: h.Name(), Op: "stop hook thread", Err: err}
	}
	log.Component("hook").Info("Hooks removed")
	return nil
}

func (h *HookBackend) push(code uint16, pressed bool, pos *Point) {
	h.queue.Push(RawEvent{DeviceID: devFor(code), Code: code, Pressed: pressed, Pos: pos, Time: time.Now()})
}

func devFor(code uint16) string {
	if code == 0 || IsButtonCode(code) {
		return "hook:mouse"
	}
	return "hook:keyboard"
}

func keyboardHookProc(nCode int32, wParam uintptr, lParam uintptr) uintptr {
	if h := activeHook.Load(); h != nil && nCode >= 0 {
		ks := (*kbdllHookStruct)(unsafe.Pointer(lParam))
		if code, ok := FromVirtualKey(ks.VkCode); ok {
			switch uint32(wParam) {
			case wmKeyDown, wmSysKeyDown:
				// Auto-repeat arrives as further downs while the key is held.
				if !h.held[code] {
					h.held[code] = true
					h.push(code, true, nil)
				}
			case wmKeyUp, wmSysKeyUp:
				h.held[code] = false
				h.push(code, false, nil)
			}
		}
	}
	ret, _, _ := procCallNextHookEx.Call(0, uintptr(nCode), wParam, lParam)
	return ret
}

func mouseHookProc(nCode int32, wParam uintptr, lParam uintptr) uintptr {
	if h := activeHook.Load(); h != nil && nCode >= 0 {
		ms := (*msllHookStruct)(unsafe.Pointer(lParam))
		pos := &Point{X: float64(ms.Pt.X), Y: float64(ms.Pt.Y)}

		switch uint32(wParam) {
		case wmMouseMove:
			h.push(0, false, pos)
		case wmLButtonDown:
			h.push(BtnLeft, true, pos)
		case wmLButtonUp:
			h.push(BtnLeft, false, pos)
		case wmRButtonDown:
			h.push(BtnRight, true, pos)
		case wmRButtonUp:
			h.push(BtnRight, false, pos)
		case wmMButtonDown:
			h.push(BtnMiddle, true, pos)
		case wmMButtonUp:
			h.push(BtnMiddle, false, pos)
		case wmXButtonDown, wmXButtonUp:
			btn := BtnSide
			if ms.MouseData>>16 == 2 {
				btn = BtnExtra
			}
			h.push(btn, uint32(wParam) == wmXButtonDown, pos)
		}
	}
	ret, _, _ := procCallNextHookEx.Call(0, uintptr(nCode), wParam, lParam)
	return ret
}
