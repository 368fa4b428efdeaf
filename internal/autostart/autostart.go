// Package autostart registers the service to start on login.
package autostart

import (
	"fmt"
	"os"
	"strings"
)

const appID = "keyavatar"

// Entry is what gets launched at login.
type Entry struct {
	Exec string
	Args []string
}

// Current returns an entry for the running executable with args.
func Current(args ...string) (Entry, error) {
	exe, err := os.Executable()
	if err != nil {
		return Entry{}, fmt.Errorf("failed to get executable path: %w", err)
	}
	return Entry{Exec: exe, Args: args}, nil
}

// CommandLine joins Exec and Args, quoting words with spaces.
func (e Entry) CommandLine() string {
	words := make([]string, 0, len(e.Args)+1)
	for _, w := range append([]string{e.Exec}, e.Args...) {
		if strings.ContainsAny(w, " \t\"") {
			w = `"` + strings.ReplaceAll(w, `"`, `\"`) + `"`
		}
		words = append(words, w)
	}
	return strings.Join(words, " ")
}

// Enable enables auto-start on login
func Enable(e Entry) error {
	return enable(e)
}

// Disable disables auto-start on login
func Disable() error {
	return disable()
}

// IsEnabled checks if auto-start is enabled
func IsEnabled() bool {
	return isEnabled()
}
