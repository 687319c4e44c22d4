package artifact

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trackpilot/trackpilot/pkg/core"
)

func score(v float64) *float64 {
	return &v
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.NoError(t, scanner.Err())
	return lines
}

func TestJSONLAppendGrowsOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "artifacts.jsonl")
	log := NewJSONL(path)
	ctx := context.Background()

	require.NoError(t, log.Append(ctx, &Record{RunID: "r1", JobID: 0, CandidateID: 0, Outcome: OutcomeSuccess, Score: score(4.5)}))
	require.NoError(t, log.Append(ctx, &Record{RunID: "r1", JobID: 0, CandidateID: 1, Outcome: OutcomeFailure, Error: "planner blew up"}))
	assert.Len(t, readLines(t, path), 2)

	// A later run appends, never replaces.
	require.NoError(t, log.Append(ctx, &Record{RunID: "r2", JobID: 0, CandidateID: 0, Outcome: OutcomeSuccess, Score: score(1)}))
	lines := readLines(t, path)
	require.Len(t, lines, 3)

	var first Record
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "r1", first.RunID)
	assert.Equal(t, OutcomeSuccess, first.Outcome)
	require.NotNil(t, first.Score)
	assert.InDelta(t, 4.5, *first.Score, 0.001)
	assert.NotEmpty(t, first.RecordID)
	assert.False(t, first.CreatedAt.IsZero())
}

func TestJSONLAppendCreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "artifacts.jsonl")
	log := NewJSONL(path)
	require.NoError(t, log.Append(context.Background(), &Record{RunID: "r1"}))
	assert.FileExists(t, path)
}

func TestJSONLAppendRespectsCancelledContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "artifacts.jsonl")
	log := NewJSONL(path)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := log.Append(ctx, &Record{RunID: "r1"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewRecordIDSortable(t *testing.T) {
	a := NewRecordID()
	b := NewRecordID()
	assert.Len(t, a, 26)
	assert.LessOrEqual(t, a, b)
}

func TestMultiAppendsToAll(t *testing.T) {
	dir := t.TempDir()
	a := NewJSONL(filepath.Join(dir, "a.jsonl"))
	b := NewJSONL(filepath.Join(dir, "b.jsonl"))
	log := Multi(a, b)

	require.NoError(t, log.Append(context.Background(), &Record{RunID: "r1"}))
	assert.Len(t, readLines(t, a.Path()), 1)
	assert.Len(t, readLines(t, b.Path()), 1)
}

func TestDiscard(t *testing.T) {
	assert.NoError(t, Discard{}.Append(context.Background(), &Record{}))
}

func TestEventSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	sink := NewEventSink(path)

	require.NoError(t, sink.Write(&core.JobFailed{JobID: 1, Phase: core.PhaseTreating, Reason: "boom"}))
	require.NoError(t, sink.Write(&core.JobCompleted{JobID: 0}))

	lines := readLines(t, path)
	require.Len(t, lines, 2)

	var env struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &env))
	assert.Equal(t, "job_failed", env.Event)
	assert.Contains(t, string(env.Data), "boom")
}
