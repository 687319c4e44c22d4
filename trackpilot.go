// Package trackpilot drives a music production UI through a full
// generate, master, and export pipeline without human supervision.
//
// This is the main package users should import. It re-exports the public
// types from the pkg/ packages for a clean API surface.
//
// Basic usage:
//
//	// Wire an executor and a checkpoint store
//	exec := trackpilot.NewSimulatedExecutor()
//	store := trackpilot.NewCheckpointStore("state/checkpoint.json")
//
//	// Run the pipeline
//	pilot := trackpilot.New(exec, store)
//	cfg := trackpilot.DefaultRunConfig("synthwave")
//	cfg.Count = 5
//	summary, err := pilot.Run(ctx, cfg)
//
//	// Recurring runs
//	runner := trackpilot.NewScheduleRunner(trackpilot.Daily(3, 0), func(ctx context.Context) error {
//	    _, err := pilot.Run(ctx, cfg)
//	    return err
//	})
//	runner.Run(ctx)
package trackpilot

import (
	"time"

	"github.com/trackpilot/trackpilot/pkg/artifact"
	"github.com/trackpilot/trackpilot/pkg/checkpoint"
	"github.com/trackpilot/trackpilot/pkg/core"
	"github.com/trackpilot/trackpilot/pkg/evaluate"
	"github.com/trackpilot/trackpilot/pkg/executor"
	"github.com/trackpilot/trackpilot/pkg/machine"
	"github.com/trackpilot/trackpilot/pkg/orchestrator"
	"github.com/trackpilot/trackpilot/pkg/planner"
	"github.com/trackpilot/trackpilot/pkg/retry"
	"github.com/trackpilot/trackpilot/pkg/schedule"
)

type (
	// TrackSpec is the creative brief for one generated track.
	TrackSpec = core.TrackSpec

	// TrackJob is one unit of pipeline work.
	TrackJob = core.TrackJob

	// Phase is a TrackJob lifecycle phase.
	Phase = core.Phase

	// Profile names a mastering treatment.
	Profile = core.Profile

	// ExportKind selects the export format.
	ExportKind = core.ExportKind

	// RunConfig is the full configuration of one run.
	RunConfig = core.RunConfig

	// Summary is the final report of a run.
	Summary = core.Summary

	// Executor is the port to the production surface.
	Executor = core.Executor

	// UnitRef identifies a track inside the production surface.
	UnitRef = core.UnitRef

	// Event is the interface for all run events.
	Event = core.Event

	// JobPlanned is emitted when a job's spec is chosen.
	JobPlanned = core.JobPlanned

	// PhaseAdvanced is emitted on every forward phase transition.
	PhaseAdvanced = core.PhaseAdvanced

	// JobCompleted is emitted when a job finishes its export.
	JobCompleted = core.JobCompleted

	// JobFailed is emitted when a job fails permanently.
	JobFailed = core.JobFailed

	// JobSkipped is emitted when a job is skipped under continue-on-error.
	JobSkipped = core.JobSkipped

	// RunAborted is emitted when a failure stops the whole run.
	RunAborted = core.RunAborted

	// ContentionError reports a session that could not be acquired in time.
	ContentionError = core.ContentionError

	// Planner produces track specs.
	Planner = planner.Planner

	// Candidate is one phase-2 competitor spec.
	Candidate = evaluate.Candidate

	// ArtifactRecord is one append-only audit log entry.
	ArtifactRecord = artifact.Record

	// ArtifactLog is the append-only candidate audit log.
	ArtifactLog = artifact.Log

	// Schedule computes fire times for recurring runs.
	Schedule = schedule.Schedule
)

// Phases, in pipeline order.
const (
	PhasePending           = core.PhasePending
	PhaseCreating          = core.PhaseCreating
	PhaseAwaitingReadiness = core.PhaseAwaitingReadiness
	PhaseTreating          = core.PhaseTreating
	PhaseExporting         = core.PhaseExporting
	PhaseCompleted         = core.PhaseCompleted
	PhaseFailed            = core.PhaseFailed
	PhaseSkipped           = core.PhaseSkipped
)

// Orchestrator coordinates runs.
type Orchestrator = orchestrator.Orchestrator

// New creates an Orchestrator around an executor and a checkpoint store.
func New(exec Executor, store *checkpoint.Store, opts ...orchestrator.Option) *Orchestrator {
	return orchestrator.New(exec, store, opts...)
}

// DefaultRunConfig returns a config with the defaults used by the CLI.
func DefaultRunConfig(musicType string) RunConfig {
	return core.DefaultRunConfig(musicType)
}

// NewCheckpointStore creates a checkpoint store persisting to path.
func NewCheckpointStore(path string, opts ...checkpoint.Option) *checkpoint.Store {
	return checkpoint.NewStore(path, opts...)
}

// NewSimulatedExecutor creates an in-memory executor for dry runs.
func NewSimulatedExecutor(opts ...executor.Option) *executor.Simulated {
	return executor.NewSimulated(opts...)
}

// NewTemplatePlanner creates the genre-preset planner. A zero seed derives
// one from the clock.
func NewTemplatePlanner(seed int64) Planner {
	return planner.NewTemplate(seed)
}

// NoRetry marks an error as fatal so retry loops stop immediately.
func NoRetry(err error) error {
	return core.NoRetry(err)
}

// NeedsSession reports whether a phase requires the exclusive automation
// session.
func NeedsSession(phase Phase) bool {
	return machine.NeedsSession(phase)
}

// DefaultRetryConfig returns the backoff defaults used around executor
// calls.
func DefaultRetryConfig() retry.Config {
	return retry.DefaultConfig()
}

// Every creates a schedule that fires at fixed intervals.
func Every(d time.Duration) Schedule {
	return schedule.Every(d)
}

// Daily creates a schedule that fires at a specific UTC time each day.
func Daily(hour, minute int) Schedule {
	return schedule.Daily(hour, minute)
}

// Cron creates a schedule from a five-field cron expression.
func Cron(expr string) (Schedule, error) {
	return schedule.Cron(expr)
}

// NewScheduleRunner creates a runner firing trigger according to sched.
func NewScheduleRunner(sched Schedule, trigger schedule.Trigger, opts ...schedule.Option) *schedule.Runner {
	return schedule.NewRunner(sched, trigger, opts...)
}
