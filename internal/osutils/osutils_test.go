//go:build !windows

package osutils

import (
	"os"
	"testing"
)

func TestIsAdmin(t *testing.T) {
	if got, want := IsAdmin(), os.Geteuid() == 0; got != want {
		t.Errorf("Expected IsAdmin %v, got %v", want, got)
	}
}

func TestCaptureAccessOtherBackends(t *testing.T) {
	for _, backend := range []string{"x11", "manual", "windows"} {
		ok, hint := CaptureAccess(backend)
		if !ok || hint != "" {
			t.Errorf("Expected %s always accessible, got %v %q", backend, ok, hint)
		}
	}
}

func TestCaptureAccessEvdevHint(t *testing.T) {
	ok, hint := CaptureAccess("evdev")
	if !ok && hint == "" {
		t.Error("Expected a hint when evdev is not accessible")
	}
}
