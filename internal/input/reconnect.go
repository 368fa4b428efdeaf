package input

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// ReconnectConfig bounds reconnection attempts with exponential backoff.
type ReconnectConfig struct {
	MaxRetries    int           // attempts before giving up
	RetryDelay    time.Duration // first backoff delay
	MaxRetryDelay time.Duration // backoff cap
}

// DefaultReconnectConfig returns 5 attempts starting at 500ms, capped at 8s.
func DefaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{
		MaxRetries:    5,
		RetryDelay:    500 * time.Millisecond,
		MaxRetryDelay: 8 * time.Second,
	}
}

// reconnect calls connect until it succeeds, the retries are used up or ctx
// is cancelled. The first attempt waits one backoff step.
func reconnect(ctx context.Context, cfg ReconnectConfig, logger *slog.Logger, connect func() error) error {
	for attempt := 1; ; attempt++ {
		if attempt > cfg.MaxRetries {
			return fmt.Errorf("max retries exceeded (%d attempts)", cfg.MaxRetries)
		}

		delay := backoff(attempt, cfg)
		logger.Warn("Reconnecting", "attempt", attempt, "max_retries", cfg.MaxRetries, "delay", delay)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}

		err := connect()
		if err == nil {
			logger.Info("Reconnected", "attempt", attempt)
			return nil
		}
		logger.Error("Reconnect failed", "attempt", attempt, "error", err)
	}
}

// backoff returns RetryDelay * 2^(attempt-1), capped at MaxRetryDelay.
func backoff(attempt int, cfg ReconnectConfig) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 30 {
		return cfg.MaxRetryDelay
	}
	delay := cfg.RetryDelay * time.Duration(1<<uint(attempt-1))
	if cfg.MaxRetryDelay > 0 && delay > cfg.MaxRetryDelay {
		delay = cfg.MaxRetryDelay
	}
	return delay
}
