// Package machine advances one track job through its production phases.
package machine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/trackpilot/trackpilot/pkg/core"
	"github.com/trackpilot/trackpilot/pkg/retry"
)

// PlanFunc produces the spec and mastering profile for one job. The
// orchestrator wires it to either the template planner or the phase-2
// candidate evaluator.
type PlanFunc func(ctx context.Context, jobID int) (core.TrackSpec, core.Profile, error)

// NeedsSession reports whether work in this phase drives the exclusive
// automation session. Planning is session-independent.
func NeedsSession(p core.Phase) bool {
	switch p {
	case core.PhaseCreating, core.PhaseAwaitingReadiness, core.PhaseTreating, core.PhaseExporting:
		return true
	}
	return false
}

// Option configures a Machine.
type Option interface {
	apply(*Machine)
}

type optionFunc func(*Machine)

func (f optionFunc) apply(m *Machine) { f(m) }

// WithPollInterval sets the readiness poll interval.
func WithPollInterval(d time.Duration) Option {
	return optionFunc(func(m *Machine) {
		if d > 0 {
			m.pollInterval = d
		}
	})
}

// WithWaitBudget caps the total time spent waiting for readiness.
func WithWaitBudget(d time.Duration) Option {
	return optionFunc(func(m *Machine) {
		if d > 0 {
			m.waitBudget = d
		}
	})
}

// WithExportKind sets the export format.
func WithExportKind(kind core.ExportKind) Option {
	return optionFunc(func(m *Machine) {
		m.exportKind = kind
	})
}

// WithLogger sets the slog logger.
func WithLogger(logger *slog.Logger) Option {
	return optionFunc(func(m *Machine) {
		m.logger = logger
	})
}

// Machine executes phase steps against the executor port. It never decides
// failure policy and never persists: it advances the job or reports the
// error, and the orchestrator does the rest.
type Machine struct {
	exec         core.Executor
	runner       *retry.Runner
	plan         PlanFunc
	exportKind   core.ExportKind
	pollInterval time.Duration
	waitBudget   time.Duration
	logger       *slog.Logger
}

// New creates a Machine.
func New(exec core.Executor, runner *retry.Runner, plan PlanFunc, opts ...Option) *Machine {
	m := &Machine{
		exec:         exec,
		runner:       runner,
		plan:         plan,
		exportKind:   core.ExportFull,
		pollInterval: 5 * time.Second,
		waitBudget:   90 * time.Second,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt.apply(m)
	}
	return m
}

// Step performs the work of the job's current phase and advances it exactly
// one phase forward. On failure the job is left in its current phase; the
// caller maps the error to Failed or Skipped.
func (m *Machine) Step(ctx context.Context, job *core.TrackJob) error {
	switch job.Phase {
	case core.PhasePending:
		return m.stepPlan(ctx, job)
	case core.PhaseCreating:
		return m.stepCreate(ctx, job)
	case core.PhaseAwaitingReadiness:
		return m.stepAwaitReady(ctx, job)
	case core.PhaseTreating:
		return m.stepTreat(ctx, job)
	case core.PhaseExporting:
		return m.stepExport(ctx, job)
	default:
		return fmt.Errorf("machine: job %d has no step in phase %s", job.ID, job.Phase)
	}
}

// addAttempts tolerates jobs restored from JSON with a nil attempts map.
func addAttempts(job *core.TrackJob, phase core.Phase, n int) {
	for i := 0; i < n; i++ {
		job.RecordAttempt(phase)
	}
}

func (m *Machine) stepPlan(ctx context.Context, job *core.TrackJob) error {
	// A resumed job may already carry its spec; never re-plan it.
	if job.Spec == nil {
		attempts, err := m.runner.Do(ctx, func(ctx context.Context) error {
			spec, profile, err := m.plan(ctx, job.ID)
			if err != nil {
				return err
			}
			job.Spec = &spec
			job.Profile = profile
			return nil
		})
		addAttempts(job, core.PhasePending, attempts)
		if err != nil {
			return fmt.Errorf("plan: %w", err)
		}
		m.logger.Info("planned", "job_id", job.ID, "title", job.Spec.Title, "profile", job.Profile)
	}
	return job.Advance(core.PhaseCreating)
}

func (m *Machine) stepCreate(ctx context.Context, job *core.TrackJob) error {
	attempts, err := m.runner.Do(ctx, func(ctx context.Context) error {
		ref, err := m.exec.Create(ctx, *job.Spec)
		if err != nil {
			return err
		}
		job.UnitRef = ref
		return nil
	})
	addAttempts(job, core.PhaseCreating, attempts)
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}
	return job.Advance(core.PhaseAwaitingReadiness)
}

// stepAwaitReady polls readiness on a fixed interval until the unit is
// ready or the wait budget runs out. Transient poll errors count as
// not-ready; only fatal errors end the wait early.
func (m *Machine) stepAwaitReady(ctx context.Context, job *core.TrackJob) error {
	deadline := time.Now().Add(m.waitBudget)
	for {
		addAttempts(job, core.PhaseAwaitingReadiness, 1)
		ready, err := m.exec.PollReady(ctx, job.UnitRef)
		if err != nil {
			if core.IsFatal(err) {
				return fmt.Errorf("poll readiness: %w", err)
			}
			m.logger.Debug("readiness poll failed", "job_id", job.ID, "error", err)
		}
		if ready {
			return job.Advance(core.PhaseTreating)
		}
		if time.Now().Add(m.pollInterval).After(deadline) {
			return fmt.Errorf("poll readiness: %w: budget %v exhausted", core.ErrNotReady, m.waitBudget)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.pollInterval):
		}
	}
}

func (m *Machine) stepTreat(ctx context.Context, job *core.TrackJob) error {
	attempts, err := m.runner.Do(ctx, func(ctx context.Context) error {
		return m.exec.ApplyTreatment(ctx, job.UnitRef, job.Profile)
	})
	addAttempts(job, core.PhaseTreating, attempts)
	if err != nil {
		return fmt.Errorf("apply treatment: %w", err)
	}
	return job.Advance(core.PhaseExporting)
}

func (m *Machine) stepExport(ctx context.Context, job *core.TrackJob) error {
	attempts, err := m.runner.Do(ctx, func(ctx context.Context) error {
		path, err := m.exec.Export(ctx, job.UnitRef, m.exportKind)
		if err != nil {
			return err
		}
		job.ArtifactRefs = append(job.ArtifactRefs, path)
		return nil
	})
	addAttempts(job, core.PhaseExporting, attempts)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	return job.Advance(core.PhaseCompleted)
}
