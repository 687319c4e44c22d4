// Package retry executes single operations with bounded retries and backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/trackpilot/trackpilot/pkg/core"
)

// Config holds configuration for retry with backoff.
type Config struct {
	// MaxAttempts is the maximum number of attempts (including the first).
	// Default: 3
	MaxAttempts int

	// InitialBackoff is the delay before the second attempt.
	// Default: 2s
	InitialBackoff time.Duration

	// MaxBackoff caps the delay between attempts.
	// Default: 30s
	MaxBackoff time.Duration

	// BackoffMultiplier is applied to the delay after each attempt. A
	// multiplier of 1.0 keeps a fixed delay.
	// Default: 1.0
	BackoffMultiplier float64

	// JitterFraction is the fraction of backoff to randomize (0.0 to 1.0).
	// Default: 0
	JitterFraction float64
}

// DefaultConfig returns the default retry configuration: a fixed delay
// between attempts.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:       3,
		InitialBackoff:    2 * time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 1.0,
		JitterFraction:    0,
	}
}

// ExhaustedError reports that every attempt failed with a retryable error.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retry exhausted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Runner executes operations under one retry policy. It is pure control
// flow: the only side effects are the operation's own.
type Runner struct {
	config Config
	rng    *rand.Rand
}

// New creates a Runner. Zero or negative config fields fall back to the
// defaults.
func New(config Config) *Runner {
	defaults := DefaultConfig()
	if config.MaxAttempts < 1 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = defaults.InitialBackoff
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = defaults.MaxBackoff
	}
	if config.BackoffMultiplier < 1.0 {
		config.BackoffMultiplier = defaults.BackoffMultiplier
	}
	if config.JitterFraction < 0 {
		config.JitterFraction = 0
	}
	return &Runner{
		config: config,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Do runs op until it succeeds, fails fatally, or the attempt budget is
// exhausted. It returns the number of attempts used.
//
// Fatal errors (core.NoRetry or context cancellation) propagate immediately
// without consuming the remaining budget. Exhaustion returns an
// *ExhaustedError wrapping the last retryable error.
func (r *Runner) Do(ctx context.Context, op func(ctx context.Context) error) (int, error) {
	var lastErr error
	backoff := r.config.InitialBackoff

	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return attempt, nil
		}

		if errors.Is(lastErr, context.Canceled) || errors.Is(lastErr, context.DeadlineExceeded) {
			return attempt, lastErr
		}
		if core.IsFatal(lastErr) {
			return attempt, lastErr
		}

		if attempt >= r.config.MaxAttempts {
			return attempt, &ExhaustedError{Attempts: attempt, Err: lastErr}
		}

		jitter := time.Duration(float64(backoff) * r.config.JitterFraction * (r.rng.Float64()*2 - 1))
		sleep := backoff + jitter
		if sleep < 0 {
			sleep = backoff
		}

		select {
		case <-ctx.Done():
			return attempt, ctx.Err()
		case <-time.After(sleep):
		}

		backoff = time.Duration(float64(backoff) * r.config.BackoffMultiplier)
		if backoff > r.config.MaxBackoff {
			backoff = r.config.MaxBackoff
		}
	}

	// Unreachable: the loop always returns.
	return r.config.MaxAttempts, lastErr
}
