package main

import (
	"context"
	"math"
	"math/rand"
	"strings"
	"time"

	"keyavatar/internal/animation"
	"keyavatar/internal/input"
	"keyavatar/internal/log"
)

const demoPhrase = "the quick brown fox jumps over the lazy dog"

// burstKeys hit five zones at once
var burstKeys = []string{"A", "Y", "SPACE", "LCTRL", "F1"}

// typist feeds a ManualBackend with a scripted typing session: the phrase at
// a human pace, a pointer circling the attachment point, then a burst of
// simultaneous keys and a pause long enough to go idle.
type typist struct {
	backend *input.ManualBackend
	cfg     animation.Config
	phrase  []uint16
	burst   []uint16
	rng     *rand.Rand
	angle   float64
	pause   time.Duration
}

func newTypist(b *input.ManualBackend, cfg animation.Config) *typist {
	t := &typist{
		backend: b,
		cfg:     cfg,
		rng:     rand.New(rand.NewSource(1)),
		pause:   3 * time.Second,
	}
	for _, r := range demoPhrase {
		name := strings.ToUpper(string(r))
		if r == ' ' {
			name = "SPACE"
		}
		if codes, err := input.KeyCodes(name); err == nil {
			t.phrase = append(t.phrase, codes[0])
		}
	}
	for _, name := range burstKeys {
		if codes, err := input.KeyCodes(name); err == nil {
			t.burst = append(t.burst, codes[0])
		}
	}
	return t
}

func (t *typist) jitter(lo, hi time.Duration) time.Duration {
	return lo + time.Duration(t.rng.Int63n(int64(hi-lo)))
}

func (t *typist) wait(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func (t *typist) move() {
	t.angle += 0.2
	r := t.cfg.Reach / 3
	t.backend.Move(t.cfg.AttachX+r*math.Cos(t.angle), t.cfg.AttachY+r*math.Sin(t.angle)/2, time.Now())
}

// run types until ctx is cancelled.
func (t *typist) run(ctx context.Context) {
	logger := log.Component("demo")
	logger.Info("scripted typist started", "phrase", demoPhrase)

	for round := 1; ; round++ {
		for _, code := range t.phrase {
			t.move()
			t.backend.Key(code, true, time.Now())
			if !t.wait(ctx, t.jitter(40*time.Millisecond, 90*time.Millisecond)) {
				t.backend.Key(code, false, time.Now())
				return
			}
			t.backend.Key(code, false, time.Now())
			if !t.wait(ctx, t.jitter(50*time.Millisecond, 150*time.Millisecond)) {
				return
			}
		}

		now := time.Now()
		for _, code := range t.burst {
			t.backend.Key(code, true, now)
		}
		ok := t.wait(ctx, 150*time.Millisecond)
		now = time.Now()
		for _, code := range t.burst {
			t.backend.Key(code, false, now)
		}
		logger.Debug("scripted round done", "round", round)
		if !ok || !t.wait(ctx, t.pause) {
			return
		}
	}
}
