package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trackpilot/trackpilot/pkg/core"
)

func fastConfig(maxAttempts int) Config {
	return Config{
		MaxAttempts:       maxAttempts,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 1.0,
	}
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	r := New(fastConfig(3))
	calls := 0
	attempts, err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, calls)
}

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	// Fails k=2 times then succeeds; budget of k+1 succeeds with 3 attempts.
	r := New(fastConfig(3))
	calls := 0
	attempts, err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls <= 2 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDoExhaustsBudget(t *testing.T) {
	r := New(fastConfig(2))
	calls := 0
	attempts, err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errors.New("still broken")
	})
	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, attempts)

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 2, exhausted.Attempts)
	assert.Contains(t, exhausted.Error(), "still broken")
}

func TestDoFatalBypassesRetry(t *testing.T) {
	r := New(fastConfig(5))
	calls := 0
	attempts, err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return core.NoRetry(errors.New("invalid spec"))
	})
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, attempts)
	assert.True(t, core.IsFatal(err))

	var exhausted *ExhaustedError
	assert.False(t, errors.As(err, &exhausted))
}

func TestDoRespectsContextCancellation(t *testing.T) {
	cfg := fastConfig(10)
	cfg.InitialBackoff = time.Hour // would hang without cancellation
	r := New(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := r.Do(ctx, func(ctx context.Context) error {
			return errors.New("transient")
		})
		done <- err
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Do did not return after context cancellation")
	}
}

func TestDoContextErrorFromOperation(t *testing.T) {
	r := New(fastConfig(5))
	calls := 0
	_, err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return context.DeadlineExceeded
	})
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewAppliesDefaults(t *testing.T) {
	r := New(Config{})
	defaults := DefaultConfig()
	assert.Equal(t, defaults.MaxAttempts, r.config.MaxAttempts)
	assert.Equal(t, defaults.InitialBackoff, r.config.InitialBackoff)
	assert.Equal(t, defaults.MaxBackoff, r.config.MaxBackoff)
	assert.Equal(t, defaults.BackoffMultiplier, r.config.BackoffMultiplier)
}

func TestBackoffIsNonDecreasing(t *testing.T) {
	t.Parallel()

	cfg := Config{
		MaxAttempts:       4,
		InitialBackoff:    2 * time.Millisecond,
		MaxBackoff:        8 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
	r := New(cfg)

	var stamps []time.Time
	_, err := r.Do(context.Background(), func(ctx context.Context) error {
		stamps = append(stamps, time.Now())
		return errors.New("transient")
	})
	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.Len(t, stamps, 4)

	// Gaps between attempts should roughly double and never shrink below
	// the previous floor; allow generous slack for scheduler noise.
	prev := time.Duration(0)
	for i := 1; i < len(stamps); i++ {
		gap := stamps[i].Sub(stamps[i-1])
		assert.GreaterOrEqual(t, gap, prev/2)
		prev = gap
	}
}
