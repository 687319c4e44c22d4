package schedule

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunnerFiresAndStopsAtLimit(t *testing.T) {
	var fired atomic.Int32
	r := NewRunner(Every(5*time.Millisecond),
		func(ctx context.Context) error {
			fired.Add(1)
			return nil
		},
		WithMaxRuns(3),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)

	err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(3), fired.Load())
}

func TestRunnerContinuesAfterTriggerError(t *testing.T) {
	var fired atomic.Int32
	r := NewRunner(Every(time.Millisecond),
		func(ctx context.Context) error {
			if fired.Add(1) == 1 {
				return errors.New("run blew up")
			}
			return nil
		},
		WithMaxRuns(2),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)

	require.NoError(t, r.Run(context.Background()))
	assert.Equal(t, int32(2), fired.Load())
}

func TestRunnerComputesWaitFromInjectedClock(t *testing.T) {
	// The clock sits an hour ahead of the wall clock; the wait between
	// fires must come from the schedule, not from the skew.
	fixed := time.Now().Add(time.Hour)
	var fired atomic.Int32
	r := NewRunner(Every(5*time.Millisecond),
		func(ctx context.Context) error {
			fired.Add(1)
			return nil
		},
		WithMaxRuns(2),
		WithClock(func() time.Time { return fixed }),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, r.Run(ctx))
	assert.Equal(t, int32(2), fired.Load())
}

func TestRunnerStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewRunner(Every(time.Hour),
		func(ctx context.Context) error { return nil },
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)

	err := r.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
