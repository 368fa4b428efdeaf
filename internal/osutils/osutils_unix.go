//go:build !windows

// Package osutils provides platform checks around input capture.
package osutils

import (
	"os"
	"os/user"
	"runtime"
)

// inputGroup owns /dev/input/event* on most distributions
const inputGroup = "input"

// IsAdmin reports whether the process runs as root.
func IsAdmin() bool {
	return os.Geteuid() == 0
}

// CaptureAccess reports whether backend can read devices as the current user.
// Only evdev needs extra rights: the device nodes are root:input 0660.
func CaptureAccess(backend string) (ok bool, hint string) {
	if backend != "evdev" || runtime.GOOS != "linux" || IsAdmin() {
		return true, ""
	}
	if inGroup(inputGroup) {
		return true, ""
	}
	return false, "user is not in the '" + inputGroup + "' group; evdev devices cannot be opened"
}

func inGroup(name string) bool {
	g, err := user.LookupGroup(name)
	if err != nil {
		return false
	}
	u, err := user.Current()
	if err != nil {
		return false
	}
	ids, err := u.GroupIds()
	if err != nil {
		return false
	}
	for _, id := range ids {
		if id == g.Gid {
			return true
		}
	}
	return false
}

// EnsureFirewallRule is a no-op outside Windows.
func EnsureFirewallRule(port int) error {
	return nil
}
