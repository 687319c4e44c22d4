// Package evaluate runs competing candidate specs and commits to a winner.
package evaluate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/trackpilot/trackpilot/pkg/artifact"
	"github.com/trackpilot/trackpilot/pkg/core"
	"github.com/trackpilot/trackpilot/pkg/planner"
)

// ErrAllCandidatesFailed reports that no candidate produced a usable spec.
// It is a plain (retryable) error: the caller may re-run the evaluation.
var ErrAllCandidatesFailed = errors.New("evaluate: no valid candidates generated")

// Candidate is one competing spec during a single evaluation. It exists only
// for the duration of Evaluate; its outcome survives in the artifact log.
type Candidate struct {
	ID          int
	Spec        core.TrackSpec
	Profile     core.Profile
	Score       float64
	Err         error
	GeneratedAt time.Time
}

// Option configures an Evaluator.
type Option interface {
	apply(*Evaluator)
}

type optionFunc func(*Evaluator)

func (f optionFunc) apply(e *Evaluator) { f(e) }

// WithArtifactLog sets the append-only log candidate outcomes are written to.
func WithArtifactLog(log artifact.Log) Option {
	return optionFunc(func(e *Evaluator) {
		e.log = log
	})
}

// WithCandidates sets how many candidates each evaluation generates.
func WithCandidates(n int) Option {
	return optionFunc(func(e *Evaluator) {
		if n >= 1 {
			e.candidates = n
		}
	})
}

// WithConcurrency caps how many candidates are generated at once.
func WithConcurrency(n int) Option {
	return optionFunc(func(e *Evaluator) {
		if n >= 1 {
			e.concurrency = n
		}
	})
}

// WithLogger sets the slog logger.
func WithLogger(logger *slog.Logger) Option {
	return optionFunc(func(e *Evaluator) {
		e.logger = logger
	})
}

// Evaluator generates candidate specs concurrently, scores them, records
// every outcome, and selects a winner.
type Evaluator struct {
	planner     planner.Planner
	log         artifact.Log
	candidates  int
	concurrency int
	logger      *slog.Logger
}

// New creates an Evaluator around a planner.
func New(p planner.Planner, opts ...Option) *Evaluator {
	e := &Evaluator{
		planner:     p,
		log:         artifact.Discard{},
		candidates:  3,
		concurrency: 2,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt.apply(e)
	}
	return e
}

// Evaluate runs one job's candidate competition. Candidate generation is
// session-independent, so candidates run concurrently up to the configured
// cap. Every outcome is appended to the artifact log before selection; the
// log is the ground truth even if the process dies before a winner is
// chosen.
//
// Selection is deterministic: highest score among successful candidates,
// ties broken by lowest candidate ID.
func (e *Evaluator) Evaluate(ctx context.Context, runID string, jobID int, musicType string, index int) (core.TrackSpec, core.Profile, error) {
	results := e.generate(ctx, musicType, index)

	for _, c := range results {
		rec := &artifact.Record{
			RunID:       runID,
			JobID:       jobID,
			CandidateID: c.ID,
			CreatedAt:   c.GeneratedAt,
		}
		if c.Err != nil {
			rec.Outcome = artifact.OutcomeFailure
			rec.Error = c.Err.Error()
		} else {
			rec.Outcome = artifact.OutcomeSuccess
			rec.SpecSummary = c.Spec.Summary()
			s := c.Score
			rec.Score = &s
		}
		if err := e.log.Append(ctx, rec); err != nil {
			return core.TrackSpec{}, "", fmt.Errorf("evaluate: record candidate %d: %w", c.ID, err)
		}
	}

	winner := Select(results)
	if winner == nil {
		return core.TrackSpec{}, "", ErrAllCandidatesFailed
	}

	e.logger.Debug("candidate selected",
		"job_id", jobID, "candidate_id", winner.ID, "score", winner.Score)
	return winner.Spec, winner.Profile, nil
}

// generate runs the planner for each candidate on a bounded worker pool and
// returns the candidates ordered by ID.
func (e *Evaluator) generate(ctx context.Context, musicType string, index int) []*Candidate {
	n := e.candidates
	results := make([]*Candidate, n)

	work := make(chan int, n)
	for i := 0; i < n; i++ {
		work <- i
	}
	close(work)

	workers := e.concurrency
	if workers > n {
		workers = n
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range work {
				c := &Candidate{ID: i, GeneratedAt: time.Now().UTC()}
				if err := ctx.Err(); err != nil {
					c.Err = err
				} else {
					spec, profile, err := e.planner.Plan(musicType, index+i)
					if err != nil {
						c.Err = err
					} else {
						c.Spec = spec
						c.Profile = profile
						c.Score = ScoreSpec(spec)
					}
				}
				results[i] = c
			}
		}()
	}
	wg.Wait()

	return results
}

// Select picks the winning candidate: highest score among successes, ties
// broken by lowest ID. Returns nil when every candidate failed.
func Select(candidates []*Candidate) *Candidate {
	var best *Candidate
	for _, c := range candidates {
		if c == nil || c.Err != nil {
			continue
		}
		if best == nil || c.Score > best.Score {
			best = c
		}
	}
	return best
}

// ScoreSpec rates how usable a generated spec is. The heuristic favors
// complete lyrics, a styles line of moderate length, and parameter values
// inside the ranges that generate well.
func ScoreSpec(spec core.TrackSpec) float64 {
	score := 0.0
	if len(spec.Title) >= 6 {
		score += 1.0
	}
	if n := len(spec.Styles); n >= 20 && n <= 180 {
		score += 1.5
	}
	if len(spec.Lyrics) >= 120 {
		score += 2.0
	}
	if spec.Weirdness >= 10 && spec.Weirdness <= 80 {
		score += 0.75
	} else {
		score += 0.2
	}
	if spec.StyleInfluence >= 40 && spec.StyleInfluence <= 90 {
		score += 0.75
	} else {
		score += 0.2
	}
	return score
}
