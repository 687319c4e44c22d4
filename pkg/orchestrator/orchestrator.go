// Package orchestrator drives a full autopilot run: it owns the job list,
// the worker pool, the exclusive session, and every checkpoint save.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/trackpilot/trackpilot/pkg/artifact"
	"github.com/trackpilot/trackpilot/pkg/checkpoint"
	"github.com/trackpilot/trackpilot/pkg/core"
	"github.com/trackpilot/trackpilot/pkg/evaluate"
	"github.com/trackpilot/trackpilot/pkg/machine"
	"github.com/trackpilot/trackpilot/pkg/planner"
	"github.com/trackpilot/trackpilot/pkg/retry"
)

// Option configures an Orchestrator.
type Option interface {
	apply(*Orchestrator)
}

type optionFunc func(*Orchestrator)

func (f optionFunc) apply(o *Orchestrator) { f(o) }

// WithPlanner replaces the default template planner.
func WithPlanner(p planner.Planner) Option {
	return optionFunc(func(o *Orchestrator) {
		o.planner = p
	})
}

// WithArtifactLog sets the append-only candidate audit log.
func WithArtifactLog(log artifact.Log) Option {
	return optionFunc(func(o *Orchestrator) {
		o.artifacts = log
	})
}

// WithEventHook registers a callback for run events. The hook is called
// synchronously from worker goroutines and must be safe for concurrent use.
func WithEventHook(hook func(core.Event)) Option {
	return optionFunc(func(o *Orchestrator) {
		o.hook = hook
	})
}

// WithLogger sets the slog logger.
func WithLogger(logger *slog.Logger) Option {
	return optionFunc(func(o *Orchestrator) {
		o.logger = logger
	})
}

// WithRetryBackoff overrides the backoff curve used around executor calls.
// The attempt budget always comes from the run config.
func WithRetryBackoff(cfg retry.Config) Option {
	return optionFunc(func(o *Orchestrator) {
		o.backoff = cfg
	})
}

// Orchestrator coordinates one logical run at a time. It is safe to reuse
// across runs but not to call Run concurrently.
type Orchestrator struct {
	exec      core.Executor
	store     *checkpoint.Store
	planner   planner.Planner
	artifacts artifact.Log
	hook      func(core.Event)
	logger    *slog.Logger
	backoff   retry.Config
}

// New creates an Orchestrator around an executor and a checkpoint store.
func New(exec core.Executor, store *checkpoint.Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		exec:      exec,
		store:     store,
		artifacts: artifact.Discard{},
		logger:    slog.Default(),
		backoff:   retry.DefaultConfig(),
	}
	for _, opt := range opts {
		opt.apply(o)
	}
	return o
}

// runState is the shared mutable state of one run.
type runState struct {
	cfg      core.RunConfig
	runID    string
	machine  *machine.Machine
	session  *session
	stateMu  sync.Mutex
	jobs     []*core.TrackJob // canonical, immutable clones
	aborted  atomic.Bool
	abortJob atomic.Int64
}

// Run executes or resumes the configured run and returns its summary.
//
// Resume protocol: an existing checkpoint with a matching config identity
// restores every job to its persisted phase; completed work is never
// redone. A mismatched or corrupt checkpoint is surfaced to the caller,
// never silently discarded.
func (o *Orchestrator) Run(ctx context.Context, cfg core.RunConfig) (*core.Summary, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	snap, err := o.store.LoadMatching(cfg.Identity())
	if err != nil {
		return nil, err
	}

	rs := &runState{cfg: cfg, session: newSession()}
	if snap != nil {
		rs.runID = snap.RunID
		rs.jobs = snap.Jobs
		if len(rs.jobs) != cfg.Count {
			return nil, &checkpoint.CorruptError{
				Path: o.store.Path(),
				Err:  fmt.Errorf("snapshot has %d jobs, config wants %d", len(rs.jobs), cfg.Count),
			}
		}
		o.logger.Info("resuming from checkpoint", "run_id", rs.runID, "jobs", len(rs.jobs))
	} else {
		rs.runID = uuid.New().String()
		for i := 0; i < cfg.Count; i++ {
			rs.jobs = append(rs.jobs, core.NewTrackJob(i))
		}
	}

	rs.machine = machine.New(o.exec, o.stepRunner(cfg), o.planFunc(rs),
		machine.WithPollInterval(cfg.PollInterval),
		machine.WithWaitBudget(cfg.WaitGeneration),
		machine.WithExportKind(cfg.ExportKind),
		machine.WithLogger(o.logger),
	)

	// Persist the initial state so a crash before the first transition
	// still leaves a resumable run.
	if err := o.save(rs); err != nil {
		return nil, err
	}

	work := make(chan *core.TrackJob)
	var wg sync.WaitGroup
	workers := cfg.Concurrency
	if workers > cfg.Count {
		workers = cfg.Count
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range work {
				o.runJob(ctx, rs, job)
				o.pause(ctx, rs, cfg.WaitBetween)
			}
		}()
	}

dispatch:
	for _, canonical := range rs.jobs {
		if canonical.Phase.Terminal() {
			continue
		}
		if rs.aborted.Load() || ctx.Err() != nil {
			break
		}
		// Workers own a private copy; the canonical slice only ever holds
		// published clones.
		select {
		case work <- canonical.Clone():
		case <-ctx.Done():
			break dispatch
		}
	}
	close(work)
	wg.Wait()

	if err := o.save(rs); err != nil {
		// Report what happened even though the final state is not durable.
		return o.summarize(rs), err
	}

	summary := o.summarize(rs)
	if len(summary.Completed) == cfg.Count {
		// Fully done: the next run with this config starts fresh.
		if err := o.store.Clear(); err != nil {
			return summary, err
		}
	}
	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

// stepRunner builds the retry policy around executor calls: the attempt
// budget is the per-phase retry count plus the initial attempt.
func (o *Orchestrator) stepRunner(cfg core.RunConfig) *retry.Runner {
	rc := o.backoff
	rc.MaxAttempts = cfg.StepRetries + 1
	return retry.New(rc)
}

// planFunc selects between direct planning and phase-2 candidate
// evaluation. Without an injected planner the template planner is built
// per-run from the configured seed, so the same seed plans the same specs.
func (o *Orchestrator) planFunc(rs *runState) machine.PlanFunc {
	p := o.planner
	if p == nil {
		p = planner.NewTemplate(rs.cfg.Seed)
	}
	if !rs.cfg.Phase2 {
		return func(ctx context.Context, jobID int) (core.TrackSpec, core.Profile, error) {
			return p.Plan(rs.cfg.MusicType, jobID)
		}
	}
	ev := evaluate.New(p,
		evaluate.WithArtifactLog(o.artifacts),
		evaluate.WithCandidates(rs.cfg.CandidateCount),
		evaluate.WithConcurrency(rs.cfg.Concurrency),
		evaluate.WithLogger(o.logger),
	)
	return func(ctx context.Context, jobID int) (core.TrackSpec, core.Profile, error) {
		return ev.Evaluate(ctx, rs.runID, jobID, rs.cfg.MusicType, jobID)
	}
}

// runJob drives one job until it is terminal, the run aborts, or the
// context ends. Already-issued phase operations always settle; the abort
// flag only stops new ones from being issued.
func (o *Orchestrator) runJob(ctx context.Context, rs *runState, job *core.TrackJob) {
	for !job.Phase.Terminal() {
		if rs.aborted.Load() || ctx.Err() != nil {
			return
		}

		from := job.Phase
		var stepErr error
		if machine.NeedsSession(job.Phase) {
			release, err := rs.session.acquire(ctx, rs.cfg.SessionWait)
			if err != nil {
				stepErr = err
			} else {
				stepErr = rs.machine.Step(ctx, job)
				release()
			}
		} else {
			stepErr = rs.machine.Step(ctx, job)
		}

		if stepErr == nil {
			o.publish(rs, job)
			o.emit(&core.PhaseAdvanced{JobID: job.ID, From: from, To: job.Phase, Timestamp: time.Now()})
			if from == core.PhasePending && job.Spec != nil {
				o.emit(&core.JobPlanned{JobID: job.ID, Title: job.Spec.Title, Profile: job.Profile, Timestamp: time.Now()})
			}
			if job.Phase == core.PhaseCompleted {
				o.emit(&core.JobCompleted{JobID: job.ID, Artifacts: job.ArtifactRefs, Timestamp: time.Now()})
			}
			continue
		}

		if ctx.Err() != nil {
			// External cancellation: leave the job at its current phase so
			// a resume picks it up there.
			o.publish(rs, job)
			return
		}

		o.settleFailure(rs, job, from, stepErr)
		return
	}
}

// settleFailure maps a step error to the job's terminal phase and the
// run-level policy.
func (o *Orchestrator) settleFailure(rs *runState, job *core.TrackJob, phase core.Phase, stepErr error) {
	reason := stepErr.Error()

	// A fatal failure while planning left no side effects on the
	// production surface; under continue-on-error the job is skipped
	// rather than failed.
	if phase == core.PhasePending && core.IsFatal(stepErr) && rs.cfg.ContinueOnError {
		job.Skip(reason)
		o.publish(rs, job)
		o.emit(&core.JobSkipped{JobID: job.ID, Reason: reason, Timestamp: time.Now()})
		o.logger.Warn("job skipped", "job_id", job.ID, "error", stepErr)
		return
	}

	job.Fail(reason)
	o.publish(rs, job)
	o.emit(&core.JobFailed{JobID: job.ID, Phase: phase, Reason: reason, Timestamp: time.Now()})
	o.logger.Error("job failed", "job_id", job.ID, "phase", phase, "error", stepErr)

	if !rs.cfg.ContinueOnError && rs.aborted.CompareAndSwap(false, true) {
		rs.abortJob.Store(int64(job.ID))
		o.emit(&core.RunAborted{JobID: job.ID, Reason: reason, Timestamp: time.Now()})
		o.logger.Error("run aborted", "job_id", job.ID)
	}
}

// publish installs an immutable clone of the job into the canonical slice
// and saves a checkpoint. Saves are serialized; a reader of the checkpoint
// file sees either the prior or the new snapshot.
//
// A failed save aborts the run: without a durable checkpoint the resume
// guarantee is gone, so no new phase work is issued.
func (o *Orchestrator) publish(rs *runState, job *core.TrackJob) {
	rs.stateMu.Lock()
	rs.jobs[job.ID] = job.Clone()
	rs.stateMu.Unlock()

	if err := o.save(rs); err != nil {
		o.logger.Error("checkpoint save failed", "job_id", job.ID, "error", err)
		if rs.aborted.CompareAndSwap(false, true) {
			rs.abortJob.Store(int64(job.ID))
			o.emit(&core.RunAborted{
				JobID:     job.ID,
				Reason:    fmt.Sprintf("checkpoint save failed: %v", err),
				Timestamp: time.Now(),
			})
		}
	}
}

func (o *Orchestrator) save(rs *runState) error {
	rs.stateMu.Lock()
	snap := &checkpoint.Snapshot{
		Identity: rs.cfg.Identity(),
		RunID:    rs.runID,
		Jobs:     append([]*core.TrackJob(nil), rs.jobs...),
	}
	rs.stateMu.Unlock()

	if err := o.store.Save(snap); err != nil {
		return err
	}
	o.emit(&core.CheckpointSaved{Jobs: len(snap.Jobs), Timestamp: time.Now()})
	return nil
}

func (o *Orchestrator) emit(ev core.Event) {
	if o.hook != nil {
		o.hook(ev)
	}
}

// pause waits between jobs so the production surface is not hammered.
func (o *Orchestrator) pause(ctx context.Context, rs *runState, d time.Duration) {
	if d <= 0 || rs.aborted.Load() {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

func (o *Orchestrator) summarize(rs *runState) *core.Summary {
	rs.stateMu.Lock()
	defer rs.stateMu.Unlock()

	summary := &core.Summary{RunID: rs.runID, Errors: make(map[int]string)}
	for _, job := range rs.jobs {
		switch job.Phase {
		case core.PhaseCompleted:
			summary.Completed = append(summary.Completed, job.ID)
		case core.PhaseFailed:
			summary.Failed = append(summary.Failed, job.ID)
			summary.Errors[job.ID] = job.LastError
		case core.PhaseSkipped:
			summary.Skipped = append(summary.Skipped, job.ID)
			summary.Errors[job.ID] = job.LastError
		default:
			summary.Pending = append(summary.Pending, job.ID)
		}
	}
	sort.Ints(summary.Completed)
	sort.Ints(summary.Failed)
	sort.Ints(summary.Skipped)
	sort.Ints(summary.Pending)
	if rs.aborted.Load() {
		id := int(rs.abortJob.Load())
		summary.AbortedBy = &id
	}
	return summary
}
