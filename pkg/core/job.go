package core

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// Phase represents a track job's position in the production pipeline.
type Phase string

const (
	PhasePending           Phase = "pending"
	PhaseCreating          Phase = "creating"
	PhaseAwaitingReadiness Phase = "awaiting_readiness"
	PhaseTreating          Phase = "treating"
	PhaseExporting         Phase = "exporting"
	PhaseCompleted         Phase = "completed"
	PhaseFailed            Phase = "failed"
	PhaseSkipped           Phase = "skipped"
)

// phaseRank orders the forward pipeline. Terminal failure phases are not
// ranked; they are reachable from any non-terminal phase.
var phaseRank = map[Phase]int{
	PhasePending:           0,
	PhaseCreating:          1,
	PhaseAwaitingReadiness: 2,
	PhaseTreating:          3,
	PhaseExporting:         4,
	PhaseCompleted:         5,
}

// Terminal reports whether no further work happens for a job in this phase.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseFailed || p == PhaseSkipped
}

// TrackJob is one independently-tracked unit of work. It is owned exclusively
// by the orchestrator; no other component mutates it.
type TrackJob struct {
	ID           int           `json:"id"`
	Phase        Phase         `json:"phase"`
	Attempts     map[Phase]int `json:"attempts,omitempty"`
	Spec         *TrackSpec    `json:"spec,omitempty"`
	Profile      Profile       `json:"profile,omitempty"`
	UnitRef      UnitRef       `json:"unit_ref,omitempty"`
	ArtifactRefs []string      `json:"artifact_refs,omitempty"`
	LastError    string        `json:"last_error,omitempty"`
}

// NewTrackJob returns a job in phase Pending.
func NewTrackJob(id int) *TrackJob {
	return &TrackJob{
		ID:       id,
		Phase:    PhasePending,
		Attempts: make(map[Phase]int),
	}
}

// Advance moves the job forward to next. Moving backward, re-entering a
// phase, or leaving a terminal phase is an error.
func (j *TrackJob) Advance(next Phase) error {
	if j.Phase.Terminal() {
		return fmt.Errorf("trackpilot: job %d is terminal in phase %s", j.ID, j.Phase)
	}
	from, ok := phaseRank[j.Phase]
	if !ok {
		return fmt.Errorf("trackpilot: job %d in unknown phase %s", j.ID, j.Phase)
	}
	to, ok := phaseRank[next]
	if !ok {
		return fmt.Errorf("trackpilot: cannot advance job %d to %s", j.ID, next)
	}
	if to <= from {
		return fmt.Errorf("trackpilot: job %d cannot move from %s back to %s", j.ID, j.Phase, next)
	}
	j.Phase = next
	return nil
}

// Fail terminates the job, recording the reason.
func (j *TrackJob) Fail(reason string) {
	j.Phase = PhaseFailed
	j.LastError = reason
}

// Skip terminates the job without marking it failed.
func (j *TrackJob) Skip(reason string) {
	j.Phase = PhaseSkipped
	j.LastError = reason
}

// Clone returns a deep copy of the job. The orchestrator publishes clones
// into checkpoint snapshots so workers can keep mutating their own copy.
func (j *TrackJob) Clone() *TrackJob {
	c := *j
	if j.Attempts != nil {
		c.Attempts = make(map[Phase]int, len(j.Attempts))
		for k, v := range j.Attempts {
			c.Attempts[k] = v
		}
	}
	if j.Spec != nil {
		spec := *j.Spec
		c.Spec = &spec
	}
	if j.ArtifactRefs != nil {
		c.ArtifactRefs = append([]string(nil), j.ArtifactRefs...)
	}
	return &c
}

// RecordAttempt counts one attempt of the given phase.
func (j *TrackJob) RecordAttempt(phase Phase) {
	if j.Attempts == nil {
		j.Attempts = make(map[Phase]int)
	}
	j.Attempts[phase]++
}

// RunConfig holds the immutable settings for one autopilot run.
type RunConfig struct {
	MusicType       string        `json:"music_type" yaml:"music_type"`
	Count           int           `json:"count" yaml:"count"`
	StepRetries     int           `json:"step_retries" yaml:"step_retries"`
	Concurrency     int           `json:"concurrency" yaml:"concurrency"`
	ContinueOnError bool          `json:"continue_on_error" yaml:"continue_on_error"`
	Phase2          bool          `json:"phase2" yaml:"phase2"`
	CandidateCount  int           `json:"candidate_count" yaml:"candidate_count"`
	ExportKind      ExportKind    `json:"export_kind" yaml:"export_kind"`
	Seed            int64         `json:"seed" yaml:"seed"`
	WaitGeneration  time.Duration `json:"wait_generation" yaml:"wait_generation"`
	PollInterval    time.Duration `json:"poll_interval" yaml:"poll_interval"`
	WaitBetween     time.Duration `json:"wait_between" yaml:"wait_between"`
	SessionWait     time.Duration `json:"session_wait" yaml:"session_wait"`
}

// DefaultRunConfig returns a config with the defaults used by the CLI.
func DefaultRunConfig(musicType string) RunConfig {
	return RunConfig{
		MusicType:       musicType,
		Count:           1,
		StepRetries:     2,
		Concurrency:     2,
		ContinueOnError: true,
		CandidateCount:  3,
		ExportKind:      ExportFull,
		WaitGeneration:  90 * time.Second,
		PollInterval:    5 * time.Second,
		WaitBetween:     20 * time.Second,
		SessionWait:     5 * time.Minute,
	}
}

// Validate checks the config for values the engine cannot run with.
func (c RunConfig) Validate() error {
	if c.MusicType == "" {
		return fmt.Errorf("%w: music type is required", ErrInvalidConfig)
	}
	if c.Count < 1 {
		return fmt.Errorf("%w: count must be at least 1", ErrInvalidConfig)
	}
	if c.StepRetries < 0 {
		return fmt.Errorf("%w: step retries cannot be negative", ErrInvalidConfig)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("%w: concurrency must be at least 1", ErrInvalidConfig)
	}
	if c.Phase2 && c.CandidateCount < 1 {
		return fmt.Errorf("%w: candidate count must be at least 1 in phase-2 mode", ErrInvalidConfig)
	}
	if !c.ExportKind.Valid() {
		return fmt.Errorf("%w: unknown export kind %q", ErrInvalidConfig, c.ExportKind)
	}
	return nil
}

// identityFields are the RunConfig fields that affect what a run produces.
// Timing knobs and concurrency change how fast a run executes, not its
// outcome, so they are excluded.
type identityFields struct {
	MusicType      string     `json:"music_type"`
	Count          int        `json:"count"`
	StepRetries    int        `json:"step_retries"`
	Phase2         bool       `json:"phase2"`
	CandidateCount int        `json:"candidate_count"`
	ExportKind     ExportKind `json:"export_kind"`
	Seed           int64      `json:"seed"`
}

// Identity returns a stable hash of the reproducibility-affecting fields,
// used to validate that a checkpoint belongs to this run.
func (c RunConfig) Identity() string {
	data, err := json.Marshal(identityFields{
		MusicType:      c.MusicType,
		Count:          c.Count,
		StepRetries:    c.StepRetries,
		Phase2:         c.Phase2,
		CandidateCount: c.CandidateCount,
		ExportKind:     c.ExportKind,
		Seed:           c.Seed,
	})
	if err != nil {
		// identityFields contains only marshalable types
		panic(err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Summary is the final report of a run.
type Summary struct {
	RunID     string         `json:"run_id"`
	Completed []int          `json:"completed"`
	Failed    []int          `json:"failed"`
	Skipped   []int          `json:"skipped"`
	Pending   []int          `json:"pending"`
	AbortedBy *int           `json:"aborted_by,omitempty"`
	Errors    map[int]string `json:"errors,omitempty"`
}

// Success reports whether the run's exit should be clean: every job either
// completed, or was skipped under the continue-on-error policy.
func (s *Summary) Success(continueOnError bool) bool {
	if len(s.Failed) > 0 || len(s.Pending) > 0 || s.AbortedBy != nil {
		return false
	}
	if len(s.Skipped) > 0 && !continueOnError {
		return false
	}
	return true
}
