package core

import "time"

// Event is the interface for all run events.
type Event interface {
	eventMarker()
}

// JobPlanned is emitted when a job's spec has been chosen.
type JobPlanned struct {
	JobID     int
	Title     string
	Profile   Profile
	Timestamp time.Time
}

func (*JobPlanned) eventMarker() {}

// PhaseAdvanced is emitted after a job moves to a new phase.
type PhaseAdvanced struct {
	JobID     int
	From      Phase
	To        Phase
	Timestamp time.Time
}

func (*PhaseAdvanced) eventMarker() {}

// JobCompleted is emitted when a job finishes all phases.
type JobCompleted struct {
	JobID     int
	Artifacts []string
	Timestamp time.Time
}

func (*JobCompleted) eventMarker() {}

// JobFailed is emitted when a job terminates in phase Failed.
type JobFailed struct {
	JobID     int
	Phase     Phase
	Reason    string
	Timestamp time.Time
}

func (*JobFailed) eventMarker() {}

// JobSkipped is emitted when a job terminates in phase Skipped.
type JobSkipped struct {
	JobID     int
	Reason    string
	Timestamp time.Time
}

func (*JobSkipped) eventMarker() {}

// RunAborted is emitted when a job failure stops the whole run.
type RunAborted struct {
	JobID     int
	Reason    string
	Timestamp time.Time
}

func (*RunAborted) eventMarker() {}

// CheckpointSaved is emitted after each durable state save.
type CheckpointSaved struct {
	Jobs      int
	Timestamp time.Time
}

func (*CheckpointSaved) eventMarker() {}
