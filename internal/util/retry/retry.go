// Package retry provides bounded retry loops for operations that are
// flaky against external systems (guest agent polls, terraform applies,
// SSH dials).
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Config holds retry configuration.
type Config struct {
	Attempts   int
	Delay      time.Duration
	MaxDelay   time.Duration
	Multiplier float64
}

// Option is a functional option for retry configuration.
type Option func(*Config)

// Do runs op until it succeeds or the attempt budget is exhausted.
// The default policy is a fixed 5s delay between 5 attempts; use
// WithBackoff for exponential growth. Context cancellation is respected
// between attempts. Errors wrapped with Permanent() are not retried.
func Do(ctx context.Context, op func() error, opts ...Option) error {
	cfg := &Config{
		Attempts:   5,
		Delay:      5 * time.Second,
		Multiplier: 1.0,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	delay := cfg.Delay
	var lastErr error

	for attempt := 1; attempt <= cfg.Attempts; attempt++ {
		err := op()
		if err == nil {
			return nil
		}
		lastErr = err

		if IsPermanent(err) {
			return fmt.Errorf("not retrying: %w", err)
		}

		if attempt < cfg.Attempts {
			select {
			case <-ctx.Done():
				return fmt.Errorf("cancelled after %d attempts: %w", attempt, ctx.Err())
			case <-time.After(delay):
				delay = time.Duration(float64(delay) * cfg.Multiplier)
				if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
					delay = cfg.MaxDelay
				}
			}
		}
	}

	return fmt.Errorf("failed after %d attempts: %w", cfg.Attempts, lastErr)
}

// WithAttempts sets the total attempt count (including the first try).
func WithAttempts(n int) Option {
	return func(c *Config) {
		c.Attempts = n
	}
}

// WithDelay sets the delay between attempts.
func WithDelay(d time.Duration) Option {
	return func(c *Config) {
		c.Delay = d
	}
}

// WithBackoff enables exponential backoff with the given multiplier,
// capped at maxDelay.
func WithBackoff(multiplier float64, maxDelay time.Duration) Option {
	return func(c *Config) {
		c.Multiplier = multiplier
		c.MaxDelay = maxDelay
	}
}

// PermanentError wraps an error to mark it as non-retryable.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent marks an error as non-retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var perm *PermanentError
	return errors.As(err, &perm)
}
