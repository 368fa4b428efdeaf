package avatar

import (
	"time"

	"keyavatar/internal/normalize"
)

type press struct {
	at   time.Time
	zone string
}

// ActivityWindow keeps the presses of the recent past and turns them into a
// Sample.
type ActivityWindow struct {
	window  time.Duration
	burst   time.Duration
	presses []press
}

// NewActivityWindow creates a window measuring the press rate over window and
// distinct zones over burst.
func NewActivityWindow(window, burst time.Duration) *ActivityWindow {
	if window <= 0 {
		window = time.Second
	}
	if burst <= 0 {
		burst = 100 * time.Millisecond
	}
	return &ActivityWindow{window: window, burst: burst}
}

// Record notes a press. Releases and pointer motion are ignored.
func (w *ActivityWindow) Record(ev normalize.InputEvent) {
	if !ev.Pressed || ev.Zone == "" {
		return
	}
	if ev.Kind != normalize.KeyDown && ev.Kind != normalize.MouseButton {
		return
	}
	w.presses = append(w.presses, press{at: ev.Time, zone: ev.Zone})
}

// Sample prunes presses older than the window and measures the rest.
func (w *ActivityWindow) Sample(now time.Time) Sample {
	cutoff := now.Add(-w.window)
	keep := w.presses[:0]
	for _, p := range w.presses {
		if p.at.After(cutoff) {
			keep = append(keep, p)
		}
	}
	w.presses = keep

	burstCutoff := now.Add(-w.burst)
	zones := map[string]struct{}{}
	for _, p := range w.presses {
		if !p.at.Before(burstCutoff) {
			zones[p.zone] = struct{}{}
		}
	}

	return Sample{
		Presses:    len(w.presses),
		Rate:       float64(len(w.presses)) / w.window.Seconds(),
		BurstZones: len(zones),
	}
}

// Reset forgets every recorded press.
func (w *ActivityWindow) Reset() {
	w.presses = w.presses[:0]
}
