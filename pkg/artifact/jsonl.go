package artifact

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/trackpilot/trackpilot/pkg/core"
)

// JSONL appends records to a file, one JSON object per line.
type JSONL struct {
	path string
	mu   sync.Mutex
}

// NewJSONL creates a JSONL log at path. The file is created on first append.
func NewJSONL(path string) *JSONL {
	return &JSONL{path: path}
}

// Path returns the log file path.
func (l *JSONL) Path() string {
	return l.path
}

// Append writes one record. Records carry their own IDs; missing IDs are
// filled in here.
func (l *JSONL) Append(ctx context.Context, rec *Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec.RecordID == "" {
		rec.RecordID = NewRecordID()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("artifact: marshal record: %w", err)
	}
	return l.appendLine(data)
}

func (l *JSONL) appendLine(line []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("artifact: create directory: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("artifact: open log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("artifact: append: %w", err)
	}
	return nil
}

// eventEnvelope is the JSONL shape of one run event.
type eventEnvelope struct {
	Event string    `json:"event"`
	At    time.Time `json:"at"`
	Data  any       `json:"data"`
}

// EventSink appends run events to a JSONL file.
type EventSink struct {
	log JSONL
}

// NewEventSink creates an event sink at path.
func NewEventSink(path string) *EventSink {
	return &EventSink{log: JSONL{path: path}}
}

// Write appends one event.
func (s *EventSink) Write(ev core.Event) error {
	env := eventEnvelope{
		Event: eventName(ev),
		At:    time.Now().UTC(),
		Data:  ev,
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("artifact: marshal event: %w", err)
	}
	return s.log.appendLine(data)
}

func eventName(ev core.Event) string {
	switch ev.(type) {
	case *core.JobPlanned:
		return "job_planned"
	case *core.PhaseAdvanced:
		return "phase_advanced"
	case *core.JobCompleted:
		return "job_completed"
	case *core.JobFailed:
		return "job_failed"
	case *core.JobSkipped:
		return "job_skipped"
	case *core.RunAborted:
		return "run_aborted"
	case *core.CheckpointSaved:
		return "checkpoint_saved"
	default:
		return "unknown"
	}
}
