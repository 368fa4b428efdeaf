package normalize

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfOrder is the reason for a timestamp earlier than its predecessor.
	ErrOutOfOrder = errors.New("timestamp out of order")

	// ErrMissingTimestamp is the reason for an event without a timestamp.
	ErrMissingTimestamp = errors.New("missing timestamp")
)

// NormalizationError reports a raw event whose timestamp had to be clamped.
// The event is still delivered; the error is informational.
type NormalizationError struct {
	Reason  error
	Code    uint16
	Device  string
	Clamped bool
}

func (e *NormalizationError) Error() string {
	action := "dropped"
	if e.Clamped {
		action = "clamped"
	}
	return fmt.Sprintf("normalize: %s code %d: %v (%s)", e.Device, e.Code, e.Reason, action)
}

func (e *NormalizationError) Unwrap() error {
	return e.Reason
}
