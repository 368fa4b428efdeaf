// Package hotkey matches key chords against the set of held keys.
package hotkey

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"keyavatar/internal/input"
	"keyavatar/internal/log"
)

// Manager holds registered chords and reports the one that became fully
// held since the previous Update. It owns no capture of its own: the caller
// feeds it the held codes once per tick.
type Manager struct {
	mu      sync.RWMutex
	hotkeys []*registeredHotkey
	logger  *slog.Logger
}

type registeredHotkey struct {
	parts    [][]uint16 // each part matches any of its codes, e.g. CTRL is left or right
	original string
	id       string
	active   bool
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{logger: log.Component("hotkey")}
}

// Parse splits a chord string such as "Ctrl+Alt+1" or "Mouse2" into its
// parts, each resolved to the codes that satisfy it.
func Parse(hotkeyStr string) ([][]uint16, error) {
	var parts [][]uint16
	for _, p := range strings.Split(hotkeyStr, "+") {
		p = strings.TrimSpace(p)
		if p == "" {
			return nil, fmt.Errorf("hotkey %q: empty key", hotkeyStr)
		}
		codes, err := input.KeyCodes(p)
		if err != nil {
			return nil, fmt.Errorf("hotkey %q: %w", hotkeyStr, err)
		}
		parts = append(parts, codes)
	}
	return parts, nil
}

// Register adds a chord that reports id when matched. An empty chord is
// ignored.
func (m *Manager) Register(hotkeyStr, id string) error {
	if strings.TrimSpace(hotkeyStr) == "" {
		return nil
	}
	parts, err := Parse(hotkeyStr)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.hotkeys = append(m.hotkeys, &registeredHotkey{
		parts:    parts,
		original: hotkeyStr,
		id:       id,
	})
	return nil
}

// Clear removes all registered hotkeys.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hotkeys = nil
}

// Len returns the number of registered chords.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.hotkeys)
}

// Update takes the currently held codes and returns the id of a chord that
// became fully held since the last call. A chord fires once per press; it
// must be released before it fires again. When several chords fire at once
// the one with the most keys wins, so "Ctrl+1" beats "1".
func (m *Manager) Update(held []uint16) (string, bool) {
	down := make(map[uint16]bool, len(held))
	for _, c := range held {
		down[c] = true
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var best *registeredHotkey
	for _, hk := range m.hotkeys {
		match := true
		// All parts of the hotkey must be held
		for _, part := range hk.parts {
			if !anyDown(part, down) {
				match = false
				break
			}
		}

		fired := match && !hk.active
		hk.active = match
		if fired && (best == nil || len(hk.parts) > len(best.parts)) {
			best = hk
		}
	}

	if best == nil {
		return "", false
	}
	m.logger.Debug("hotkey triggered", "hotkey", best.original, "id", best.id)
	return best.id, true
}

func anyDown(codes []uint16, down map[uint16]bool) bool {
	for _, c := range codes {
		if down[c] {
			return true
		}
	}
	return false
}
