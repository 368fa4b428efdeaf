package main

import (
	"context"
	"testing"
	"time"

	"keyavatar/internal/animation"
	"keyavatar/internal/input"
)

func TestTypistScript(t *testing.T) {
	b := input.NewManualBackend(1024)
	tp := newTypist(b, animation.DefaultConfig())

	if len(tp.phrase) != len(demoPhrase) {
		t.Errorf("Expected %d phrase codes, got %d", len(demoPhrase), len(tp.phrase))
	}
	if len(tp.burst) != len(burstKeys) {
		t.Errorf("Expected %d burst codes, got %d", len(burstKeys), len(tp.burst))
	}
}

func TestTypistBalancedPresses(t *testing.T) {
	b := input.NewManualBackend(1024)
	if _, err := b.Open(); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 400*time.Millisecond)
	defer cancel()
	newTypist(b, animation.DefaultConfig()).run(ctx)

	held := map[uint16]bool{}
	presses := 0
	for _, ev := range b.Poll(nil, 1024) {
		if ev.IsMotion() {
			continue
		}
		if ev.Pressed {
			presses++
		}
		held[ev.Code] = ev.Pressed
	}
	if presses == 0 {
		t.Fatal("Expected key presses")
	}
	for code, down := range held {
		if down {
			t.Errorf("Expected key 0x%X released after cancel", code)
		}
	}
}
