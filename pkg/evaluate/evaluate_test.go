package evaluate

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trackpilot/trackpilot/pkg/artifact"
	"github.com/trackpilot/trackpilot/pkg/core"
)

// fakePlanner lets tests script per-index behavior.
type fakePlanner struct {
	mu       sync.Mutex
	planFn   func(musicType string, index int) (core.TrackSpec, core.Profile, error)
	inflight atomic.Int32
	peak     atomic.Int32
}

func (f *fakePlanner) Plan(musicType string, index int) (core.TrackSpec, core.Profile, error) {
	cur := f.inflight.Add(1)
	for {
		peak := f.peak.Load()
		if cur <= peak || f.peak.CompareAndSwap(peak, cur) {
			break
		}
	}
	time.Sleep(2 * time.Millisecond) // widen the concurrency window
	defer f.inflight.Add(-1)

	f.mu.Lock()
	fn := f.planFn
	f.mu.Unlock()
	return fn(musicType, index)
}

func goodSpec(title string) core.TrackSpec {
	return core.TrackSpec{
		Title:          title,
		Styles:         "modern pop, catchy hooks, polished production",
		Lyrics:         strings.Repeat("we keep it true\n", 10),
		Weirdness:      40,
		StyleInfluence: 70,
	}
}

// memLog is an in-memory artifact log for assertions.
type memLog struct {
	mu   sync.Mutex
	recs []artifact.Record
}

func (m *memLog) Append(_ context.Context, rec *artifact.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, *rec)
	return nil
}

func TestEvaluateSelectsWinner(t *testing.T) {
	p := &fakePlanner{planFn: func(_ string, index int) (core.TrackSpec, core.Profile, error) {
		return goodSpec("Session"), core.ProfileRadioReady, nil
	}}
	log := &memLog{}
	e := New(p, WithCandidates(3), WithConcurrency(2), WithArtifactLog(log))

	spec, profile, err := e.Evaluate(context.Background(), "r1", 0, "pop", 0)
	require.NoError(t, err)
	assert.Equal(t, core.ProfileRadioReady, profile)
	assert.Equal(t, "Session", spec.Title)
	assert.Len(t, log.recs, 3)
}

func TestEvaluateTieBreaksOnLowestCandidateID(t *testing.T) {
	// Identical specs and scores for every candidate: the first generated
	// must always win.
	titles := map[int]string{}
	var mu sync.Mutex
	p := &fakePlanner{planFn: func(_ string, index int) (core.TrackSpec, core.Profile, error) {
		spec := goodSpec("Equal Score")
		mu.Lock()
		titles[index] = spec.Title
		mu.Unlock()
		return spec, core.ProfileClarity, nil
	}}
	e := New(p, WithCandidates(4), WithConcurrency(4))

	for i := 0; i < 5; i++ {
		spec, _, err := e.Evaluate(context.Background(), "r1", 0, "pop", 0)
		require.NoError(t, err)
		assert.Equal(t, "Equal Score", spec.Title)
	}
}

func TestSelectTieBreak(t *testing.T) {
	t.Parallel()

	candidates := []*Candidate{
		{ID: 0, Score: 3.0},
		{ID: 1, Score: 5.0},
		{ID: 2, Score: 5.0},
		{ID: 3, Err: errors.New("failed")},
	}
	winner := Select(candidates)
	require.NotNil(t, winner)
	assert.Equal(t, 1, winner.ID)
}

func TestSelectAllFailed(t *testing.T) {
	t.Parallel()

	assert.Nil(t, Select([]*Candidate{
		{ID: 0, Err: errors.New("a")},
		{ID: 1, Err: errors.New("b")},
	}))
	assert.Nil(t, Select(nil))
}

func TestEvaluateAllCandidatesFail(t *testing.T) {
	p := &fakePlanner{planFn: func(string, int) (core.TrackSpec, core.Profile, error) {
		return core.TrackSpec{}, "", errors.New("planner down")
	}}
	log := &memLog{}
	e := New(p, WithCandidates(3), WithArtifactLog(log))

	_, _, err := e.Evaluate(context.Background(), "r1", 2, "pop", 2)
	assert.ErrorIs(t, err, ErrAllCandidatesFailed)
	// Retryable at the job level, not fatal.
	assert.False(t, core.IsFatal(err))
	// Failures are still on the record.
	assert.Len(t, log.recs, 3)
	for _, rec := range log.recs {
		assert.Equal(t, artifact.OutcomeFailure, rec.Outcome)
		assert.Equal(t, 2, rec.JobID)
	}
}

func TestEvaluateSingleSuccessWinsRegardlessOfScore(t *testing.T) {
	// 4 candidates, concurrency 2: three fail, one succeeds with a weak
	// spec. The single success must win and all four outcomes must appear
	// in the artifact log.
	p := &fakePlanner{planFn: func(_ string, index int) (core.TrackSpec, core.Profile, error) {
		if index != 2 {
			return core.TrackSpec{}, "", errors.New("generation failed")
		}
		return core.TrackSpec{Title: "Lone", Styles: "edm", Lyrics: "short", Weirdness: 5, StyleInfluence: 95},
			core.ProfileBassHeavy, nil
	}}
	log := &memLog{}
	e := New(p, WithCandidates(4), WithConcurrency(2), WithArtifactLog(log))

	spec, profile, err := e.Evaluate(context.Background(), "r1", 0, "edm", 0)
	require.NoError(t, err)
	assert.Equal(t, "Lone", spec.Title)
	assert.Equal(t, core.ProfileBassHeavy, profile)

	require.Len(t, log.recs, 4)
	success := 0
	for _, rec := range log.recs {
		if rec.Outcome == artifact.OutcomeSuccess {
			success++
			assert.Equal(t, 2, rec.CandidateID)
			require.NotNil(t, rec.Score)
		}
	}
	assert.Equal(t, 1, success)
}

func TestEvaluateHonorsConcurrencyCap(t *testing.T) {
	p := &fakePlanner{planFn: func(string, int) (core.TrackSpec, core.Profile, error) {
		return goodSpec("Session"), core.ProfileRadioReady, nil
	}}
	e := New(p, WithCandidates(8), WithConcurrency(2))

	_, _, err := e.Evaluate(context.Background(), "r1", 0, "pop", 0)
	require.NoError(t, err)
	assert.LessOrEqual(t, p.peak.Load(), int32(2))
}

func TestEvaluateRecordsOutcomesBeforeReturning(t *testing.T) {
	p := &fakePlanner{planFn: func(string, int) (core.TrackSpec, core.Profile, error) {
		return goodSpec("Session"), core.ProfileRadioReady, nil
	}}
	log := &memLog{}
	e := New(p, WithCandidates(3), WithArtifactLog(log))

	_, _, err := e.Evaluate(context.Background(), "r1", 0, "pop", 0)
	require.NoError(t, err)

	// Records are appended in candidate order.
	require.Len(t, log.recs, 3)
	for i, rec := range log.recs {
		assert.Equal(t, i, rec.CandidateID)
	}
}

func TestScoreSpec(t *testing.T) {
	t.Parallel()

	full := ScoreSpec(goodSpec("Long Title"))
	assert.InDelta(t, 6.0, full, 0.001)

	weak := ScoreSpec(core.TrackSpec{Title: "x", Styles: "edm", Lyrics: "la", Weirdness: 5, StyleInfluence: 95})
	assert.InDelta(t, 0.4, weak, 0.001)

	assert.Greater(t, full, weak)
}
