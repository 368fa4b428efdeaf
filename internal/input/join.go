package input

import (
	"errors"
	"time"
)

var errThreadStuck = errors.New("thread did not exit")

// stopThread asks a capture thread to exit with post and waits up to wait
// for done. A thread still running is asked once more before errThreadStuck
// is returned.
func stopThread(post func() error, done <-chan struct{}, wait time.Duration) error {
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		select {
		case <-done:
			return nil
		default:
		}
		if err = post(); err != nil {
			continue
		}
		select {
		case <-done:
			return nil
		case <-time.After(wait):
			err = errThreadStuck
		}
	}
	select {
	case <-done:
		return nil
	default:
	}
	return err
}
