package schedule

import (
	"context"
	"log/slog"
	"time"
)

// Trigger is the work fired on each schedule tick, typically one full
// autopilot run.
type Trigger func(ctx context.Context) error

// Option configures a Runner.
type Option interface {
	apply(*Runner)
}

type optionFunc func(*Runner)

func (f optionFunc) apply(r *Runner) { f(r) }

// WithLogger sets the slog logger.
func WithLogger(logger *slog.Logger) Option {
	return optionFunc(func(r *Runner) {
		r.logger = logger
	})
}

// WithMaxRuns stops the runner after n completed triggers. Zero means run
// until the context ends.
func WithMaxRuns(n int) Option {
	return optionFunc(func(r *Runner) {
		r.maxRuns = n
	})
}

// WithClock replaces the wall clock, used by tests.
func WithClock(now func() time.Time) Option {
	return optionFunc(func(r *Runner) {
		r.now = now
	})
}

// Runner fires a trigger on a schedule. Triggers run one at a time: a fire
// time that passes while a run is still in progress is skipped, and the
// runner waits for the next slot after the run completes.
type Runner struct {
	sched   Schedule
	trigger Trigger
	logger  *slog.Logger
	maxRuns int
	now     func() time.Time
}

// NewRunner creates a Runner firing trigger according to sched.
func NewRunner(sched Schedule, trigger Trigger, opts ...Option) *Runner {
	r := &Runner{
		sched:   sched,
		trigger: trigger,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt.apply(r)
	}
	return r
}

// Run blocks, firing the trigger at each schedule slot until the context
// ends or the run limit is reached. Trigger errors are logged and do not
// stop the loop.
func (r *Runner) Run(ctx context.Context) error {
	runs := 0
	for {
		next := r.sched.Next(r.now())
		wait := next.Sub(r.now())
		r.logger.Info("next scheduled run", "at", next, "in", wait)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		start := r.now()
		if err := r.trigger(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.Error("scheduled run failed", "error", err, "duration", r.now().Sub(start))
		} else {
			r.logger.Info("scheduled run finished", "duration", r.now().Sub(start))
		}

		runs++
		if r.maxRuns > 0 && runs >= r.maxRuns {
			return nil
		}
	}
}
