package animation

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingParameter is returned when a declared parameter has no value.
	ErrMissingParameter = errors.New("missing parameter")

	// ErrInvalidValue is returned for NaN or infinite parameter values.
	ErrInvalidValue = errors.New("invalid parameter value")

	// ErrDuplicateParameter is returned when two specs share a name.
	ErrDuplicateParameter = errors.New("duplicate parameter")
)

// AnimationError makes the PoseFrame of one tick unusable.
type AnimationError struct {
	Param string
	Layer string
	Err   error
}

func (e *AnimationError) Error() string {
	if e.Layer == "" {
		return fmt.Sprintf("animation: %s: %v", e.Param, e.Err)
	}
	return fmt.Sprintf("animation: %s (after %s): %v", e.Param, e.Layer, e.Err)
}

func (e *AnimationError) Unwrap() error {
	return e.Err
}
