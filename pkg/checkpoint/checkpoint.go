// Package checkpoint persists run state durably so a killed run can resume.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/trackpilot/trackpilot/pkg/core"
)

// ErrIdentityMismatch reports that a checkpoint exists but belongs to a run
// with a different configuration.
var ErrIdentityMismatch = errors.New("checkpoint: run config identity mismatch")

// CorruptError reports a checkpoint that exists but cannot be read.
type CorruptError struct {
	Path string
	Err  error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("checkpoint: corrupt checkpoint at %s: %v", e.Path, e.Err)
}

func (e *CorruptError) Unwrap() error {
	return e.Err
}

// Snapshot is the serialized state of a run: the config identity plus every
// job's current phase.
type Snapshot struct {
	Identity string           `json:"identity"`
	RunID    string           `json:"run_id"`
	SavedAt  time.Time        `json:"saved_at"`
	Jobs     []*core.TrackJob `json:"jobs"`
}

// Option configures a Store.
type Option interface {
	apply(*Store)
}

type optionFunc func(*Store)

func (f optionFunc) apply(s *Store) { f(s) }

// WithFs replaces the OS filesystem, used by tests.
func WithFs(fs afero.Fs) Option {
	return optionFunc(func(s *Store) {
		s.fs = fs
	})
}

// Store reads and writes checkpoint snapshots at a fixed path. Saves are
// atomic: a reader observes either the prior snapshot or the new one, never
// a partial write. Saves are serialized by an internal mutex.
type Store struct {
	fs   afero.Fs
	path string
	mu   sync.Mutex
}

// NewStore creates a Store persisting to path.
func NewStore(path string, opts ...Option) *Store {
	s := &Store{
		fs:   afero.NewOsFs(),
		path: path,
	}
	for _, opt := range opts {
		opt.apply(s)
	}
	return s
}

// Path returns the checkpoint file path.
func (s *Store) Path() string {
	return s.path
}

// Save writes the snapshot atomically: marshal, write to a temp file in the
// same directory, then rename over the real path.
func (s *Store) Save(snap *Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap.SavedAt = time.Now().UTC()
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("checkpoint: marshal snapshot: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("checkpoint: create directory: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := afero.WriteFile(s.fs, tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("checkpoint: write temp file: %w", err)
	}
	if err := s.fs.Rename(tmpPath, s.path); err != nil {
		_ = s.fs.Remove(tmpPath)
		return fmt.Errorf("checkpoint: rename temp file: %w", err)
	}
	return nil
}

// Load reads the current snapshot. A missing checkpoint returns (nil, nil);
// an unreadable one returns a *CorruptError.
func (s *Store) Load() (*Snapshot, error) {
	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &CorruptError{Path: s.path, Err: err}
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, &CorruptError{Path: s.path, Err: err}
	}
	if snap.Identity == "" {
		return nil, &CorruptError{Path: s.path, Err: errors.New("missing identity")}
	}
	return &snap, nil
}

// LoadMatching loads the snapshot and validates it belongs to the run with
// the given identity. A mismatched checkpoint returns ErrIdentityMismatch;
// it is never silently discarded.
func (s *Store) LoadMatching(identity string) (*Snapshot, error) {
	snap, err := s.Load()
	if err != nil || snap == nil {
		return snap, err
	}
	if snap.Identity != identity {
		return nil, fmt.Errorf("%w: checkpoint %s, requested %s",
			ErrIdentityMismatch, short(snap.Identity), short(identity))
	}
	return snap, nil
}

// Clear removes the checkpoint file. Missing files are not an error.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fs.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("checkpoint: remove: %w", err)
	}
	return nil
}

func short(identity string) string {
	if len(identity) > 12 {
		return identity[:12]
	}
	return identity
}
