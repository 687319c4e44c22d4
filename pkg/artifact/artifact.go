// Package artifact records candidate outcomes in append-only logs.
//
// The artifact log is the audit ground truth for phase-2 evaluation: every
// candidate outcome is written before a winner is selected, and entries are
// never mutated or removed. Two backends are provided: a JSONL file and a
// GORM-backed sqlite table.
package artifact

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
)

// Outcome classifies a candidate evaluation.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Record is one immutable artifact-log entry.
type Record struct {
	RecordID    string    `json:"record_id" gorm:"primaryKey;size:26"`
	RunID       string    `json:"run_id" gorm:"index;size:36"`
	JobID       int       `json:"job_id" gorm:"index"`
	CandidateID int       `json:"candidate_id"`
	SpecSummary string    `json:"spec_summary" gorm:"type:text"`
	Outcome     Outcome   `json:"outcome" gorm:"size:10"`
	Score       *float64  `json:"score,omitempty"`
	Error       string    `json:"error,omitempty" gorm:"type:text"`
	CreatedAt   time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// TableName fixes the GORM table name.
func (Record) TableName() string {
	return "artifact_records"
}

// NewRecordID returns a fresh lexically-sortable record ID.
func NewRecordID() string {
	return ulid.Make().String()
}

// Log is an append-only artifact store. There is deliberately no update or
// delete operation.
type Log interface {
	Append(ctx context.Context, rec *Record) error
}

// Discard is a Log that drops every record, for runs without an artifact
// log configured.
type Discard struct{}

func (Discard) Append(context.Context, *Record) error { return nil }

type multiLog []Log

// Multi fans one append out to several logs, stopping at the first error.
func Multi(logs ...Log) Log {
	return multiLog(logs)
}

func (m multiLog) Append(ctx context.Context, rec *Record) error {
	for _, l := range m {
		if err := l.Append(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}
