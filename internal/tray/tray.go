// Package tray provides the system tray menu using getlantern/systray.
package tray

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"time"

	"github.com/getlantern/systray"

	"keyavatar/internal/log"
	"keyavatar/internal/scheduler"
)

// Controller is what the menu reads and drives.
type Controller interface {
	Snapshot() scheduler.Snapshot
	RequestResync()
	RequestMode(name string)
}

type entryKind int

const (
	entryStatus entryKind = iota
	entryMode
	entryAction
	entrySeparator
)

// entry is one menu row before it is handed to systray.
type entry struct {
	kind    entryKind
	title   string
	tooltip string
	mode    string
	action  func()
	item    *systray.MenuItem
}

// Tray manages the system tray icon and menu
type Tray struct {
	ctrl    Controller
	onQuit  func()
	entries []*entry
	refresh time.Duration
	quitCh  chan struct{}
	logger  *slog.Logger
}

// New creates the tray menu for ctrl. onQuit runs when Quit is clicked, on
// the systray goroutine.
func New(ctrl Controller, onQuit func()) *Tray {
	t := &Tray{
		ctrl:    ctrl,
		onQuit:  onQuit,
		refresh: time.Second,
		quitCh:  make(chan struct{}),
		logger:  log.Component("tray"),
	}
	t.entries = t.buildMenu(ctrl.Snapshot())
	return t
}

func (t *Tray) buildMenu(snap scheduler.Snapshot) []*entry {
	entries := []*entry{{kind: entryStatus, title: statusLine(snap)}, {kind: entrySeparator}}
	for _, name := range snap.Modes {
		name := name
		entries = append(entries, &entry{
			kind:    entryMode,
			title:   name,
			tooltip: "Switch to mode " + name,
			mode:    name,
			action:  func() { t.ctrl.RequestMode(name) },
		})
	}
	entries = append(entries,
		&entry{kind: entrySeparator},
		&entry{kind: entryAction, title: "Resync devices", tooltip: "Rescan input devices and release held keys", action: t.ctrl.RequestResync},
		&entry{kind: entrySeparator},
		&entry{kind: entryAction, title: "Quit", action: t.quit},
	)
	return entries
}

func (t *Tray) quit() {
	if t.onQuit != nil {
		t.onQuit()
	}
	systray.Quit()
}

// statusLine summarizes a snapshot for the disabled first row.
func statusLine(snap scheduler.Snapshot) string {
	return fmt.Sprintf("%s, %s (%d devices)", snap.Phase, snap.Expression, len(snap.Devices))
}

// Run starts the tray event loop (blocks)
func (t *Tray) Run() {
	systray.Run(t.setupMenu, func() { close(t.quitCh) })
}

// Stop stops the tray
func (t *Tray) Stop() {
	systray.Quit()
}

// setupMenu is called when systray is ready
func (t *Tray) setupMenu() {
	systray.SetTitle("KeyAvatar")
	systray.SetTooltip("KeyAvatar input capture")
	systray.SetIcon(icon())

	for _, e := range t.entries {
		switch e.kind {
		case entrySeparator:
			systray.AddSeparator()
			continue
		case entryMode:
			e.item = systray.AddMenuItemCheckbox(e.title, e.tooltip, false)
		default:
			e.item = systray.AddMenuItem(e.title, e.tooltip)
		}
		if e.kind == entryStatus {
			e.item.Disable()
			continue
		}

		// Handle clicks in goroutine
		go func(e *entry) {
			for {
				select {
				case <-e.item.ClickedCh:
					t.logger.Debug("menu clicked", "item", e.title)
					e.action()
				case <-t.quitCh:
					return
				}
			}
		}(e)
	}

	go t.refreshLoop()
}

func (t *Tray) refreshLoop() {
	ticker := time.NewTicker(t.refresh)
	defer ticker.Stop()
	for {
		t.apply(t.ctrl.Snapshot())
		select {
		case <-ticker.C:
		case <-t.quitCh:
			return
		}
	}
}

// apply updates the status row and mode checkmarks.
func (t *Tray) apply(snap scheduler.Snapshot) {
	for _, e := range t.entries {
		if e.item == nil {
			continue
		}
		switch e.kind {
		case entryStatus:
			e.item.SetTitle(statusLine(snap))
		case entryMode:
			if e.mode == snap.Mode {
				e.item.Check()
			} else {
				e.item.Uncheck()
			}
		}
	}
}

const iconSize = 16

// icon returns a 16x16 32-bit ICO with a filled disc.
func icon() []byte {
	const (
		headerLen = 6 + 16
		dibLen    = 40
		pixelLen  = iconSize * iconSize * 4
		maskLen   = iconSize * 4 // 1bpp rows padded to 32 bits
	)
	buf := make([]byte, headerLen+dibLen+pixelLen+maskLen)
	le := binary.LittleEndian

	// ICONDIR + one ICONDIRENTRY
	le.PutUint16(buf[2:], 1)
	le.PutUint16(buf[4:], 1)
	buf[6] = iconSize
	buf[7] = iconSize
	le.PutUint16(buf[10:], 1)
	le.PutUint16(buf[12:], 32)
	le.PutUint32(buf[14:], dibLen+pixelLen+maskLen)
	le.PutUint32(buf[18:], headerLen)

	dib := buf[headerLen:]
	le.PutUint32(dib[0:], dibLen)
	le.PutUint32(dib[4:], iconSize)
	le.PutUint32(dib[8:], iconSize*2) // color + mask
	le.PutUint16(dib[12:], 1)
	le.PutUint16(dib[14:], 32)
	le.PutUint32(dib[20:], pixelLen)

	px := dib[dibLen:]
	const c = (iconSize - 1) / 2.0
	for y := 0; y < iconSize; y++ {
		for x := 0; x < iconSize; x++ {
			dx, dy := float64(x)-c, float64(y)-c
			if dx*dx+dy*dy > 7*7 {
				continue
			}
			i := (y*iconSize + x) * 4
			px[i], px[i+1], px[i+2], px[i+3] = 0x40, 0xa0, 0xf0, 0xff // BGRA
		}
	}
	return buf
}
