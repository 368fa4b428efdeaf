package assets

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingField is returned when a required config field is empty.
	ErrMissingField = errors.New("missing required field")

	// ErrModeDisabled is returned when a mode failed to load.
	ErrModeDisabled = errors.New("mode disabled")

	// ErrNoModes is returned when no mode could be loaded.
	ErrNoModes = errors.New("no usable modes")
)

// ConfigError reports a malformed file of the asset tree. A ConfigError for
// a mode disables only that mode.
type ConfigError struct {
	Path string
	Mode string
	Err  error
}

func (e *ConfigError) Error() string {
	if e.Mode != "" {
		return fmt.Sprintf("assets: mode %q: %s: %v", e.Mode, e.Path, e.Err)
	}
	return fmt.Sprintf("assets: %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}
