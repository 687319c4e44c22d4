// Package executor provides a simulated implementation of the executor
// port. It stands in for the UI-automation collaborator during dry runs,
// demos, and tests.
package executor

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/trackpilot/trackpilot/pkg/core"
)

// Operation names used for failure injection and call accounting.
const (
	OpCreate = "create"
	OpPoll   = "poll_ready"
	OpTreat  = "apply_treatment"
	OpExport = "export"
)

// Option configures a Simulated executor.
type Option interface {
	apply(*Simulated)
}

type optionFunc func(*Simulated)

func (f optionFunc) apply(s *Simulated) { f(s) }

// WithLatency adds a fixed delay to every operation.
func WithLatency(d time.Duration) Option {
	return optionFunc(func(s *Simulated) {
		s.latency = d
	})
}

// WithReadyAfter sets how many readiness polls a unit needs before it
// reports ready.
func WithReadyAfter(polls int) Option {
	return optionFunc(func(s *Simulated) {
		s.readyAfter = polls
	})
}

// WithExportDir sets the directory exported artifact paths point into.
func WithExportDir(dir string) Option {
	return optionFunc(func(s *Simulated) {
		s.exportDir = dir
	})
}

// WithFailEvery makes every nth call of the given operation fail with a
// transient error, simulating a flaky automation surface.
func WithFailEvery(op string, n int) Option {
	return optionFunc(func(s *Simulated) {
		if n > 0 {
			s.failEvery[op] = n
		}
	})
}

type unitState struct {
	spec    core.TrackSpec
	polls   int
	treated core.Profile
}

// Simulated is a deterministic in-memory executor. All methods are safe for
// concurrent use; call accounting doubles as a probe for exclusivity tests.
type Simulated struct {
	mu         sync.Mutex
	latency    time.Duration
	readyAfter int
	exportDir  string
	failEvery  map[string]int

	units    map[core.UnitRef]*unitState
	nextUnit int
	calls    map[string]int
	inFlight int
	peak     int
}

// NewSimulated creates a Simulated executor.
func NewSimulated(opts ...Option) *Simulated {
	s := &Simulated{
		readyAfter: 1,
		exportDir:  "/tmp/trackpilot",
		failEvery:  make(map[string]int),
		units:      make(map[core.UnitRef]*unitState),
		calls:      make(map[string]int),
	}
	for _, opt := range opts {
		opt.apply(s)
	}
	return s
}

// Calls returns how many times the operation ran.
func (s *Simulated) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// Peak returns the highest number of operations ever in flight at once.
func (s *Simulated) Peak() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peak
}

// enter records the call and reports whether this call should fail.
func (s *Simulated) enter(op string) (exit func(), fail bool) {
	s.mu.Lock()
	s.calls[op]++
	n := s.calls[op]
	s.inFlight++
	if s.inFlight > s.peak {
		s.peak = s.inFlight
	}
	if every := s.failEvery[op]; every > 0 && n%every == 0 {
		fail = true
	}
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		s.inFlight--
		s.mu.Unlock()
	}, fail
}

func (s *Simulated) sleep(ctx context.Context) error {
	if s.latency <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.latency):
		return nil
	}
}

// Create starts a simulated generation.
func (s *Simulated) Create(ctx context.Context, spec core.TrackSpec) (core.UnitRef, error) {
	exit, fail := s.enter(OpCreate)
	defer exit()
	if err := s.sleep(ctx); err != nil {
		return "", err
	}
	if spec.Lyrics == "" && spec.Styles == "" {
		return "", core.NoRetry(errors.New("executor: empty spec"))
	}
	if fail {
		return "", errors.New("executor: create button did not respond")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextUnit++
	ref := core.UnitRef(fmt.Sprintf("unit-%04d", s.nextUnit))
	s.units[ref] = &unitState{spec: spec}
	return ref, nil
}

// PollReady reports readiness after the configured number of polls.
func (s *Simulated) PollReady(ctx context.Context, ref core.UnitRef) (bool, error) {
	exit, fail := s.enter(OpPoll)
	defer exit()
	if err := s.sleep(ctx); err != nil {
		return false, err
	}
	if fail {
		return false, errors.New("executor: progress indicator not visible")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	unit, ok := s.units[ref]
	if !ok {
		return false, core.NoRetry(fmt.Errorf("executor: unknown unit %s", ref))
	}
	unit.polls++
	return unit.polls >= s.readyAfter, nil
}

// ApplyTreatment masters the unit.
func (s *Simulated) ApplyTreatment(ctx context.Context, ref core.UnitRef, profile core.Profile) error {
	exit, fail := s.enter(OpTreat)
	defer exit()
	if err := s.sleep(ctx); err != nil {
		return err
	}
	if !profile.Valid() {
		return core.NoRetry(fmt.Errorf("executor: unknown profile %q", profile))
	}
	if fail {
		return errors.New("executor: mastering panel stuck")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	unit, ok := s.units[ref]
	if !ok {
		return core.NoRetry(fmt.Errorf("executor: unknown unit %s", ref))
	}
	unit.treated = profile
	return nil
}

// Export renders the unit and returns the artifact path.
func (s *Simulated) Export(ctx context.Context, ref core.UnitRef, kind core.ExportKind) (string, error) {
	exit, fail := s.enter(OpExport)
	defer exit()
	if err := s.sleep(ctx); err != nil {
		return "", err
	}
	if fail {
		return "", errors.New("executor: export dialog did not open")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	unit, ok := s.units[ref]
	if !ok {
		return "", core.NoRetry(fmt.Errorf("executor: unknown unit %s", ref))
	}
	if unit.treated == "" {
		return "", errors.New("executor: unit not mastered yet")
	}

	ext := "wav"
	if kind == core.ExportMP3 {
		ext = "mp3"
	}
	return filepath.Join(s.exportDir, fmt.Sprintf("%s_%s.%s", ref, unit.treated, ext)), nil
}
