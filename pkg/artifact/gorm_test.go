package artifact

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestLog creates a fresh in-memory SQLite artifact log for each test.
func newTestLog(t *testing.T) *Gorm {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err, "open in-memory sqlite")

	g := NewGorm(db)
	require.NoError(t, g.Migrate(context.Background()), "migrate schema")
	return g
}

func TestGormAppendAndReadBack(t *testing.T) {
	g := newTestLog(t)
	ctx := context.Background()

	require.NoError(t, g.Append(ctx, &Record{RunID: "r1", JobID: 0, CandidateID: 1, SpecSummary: "Pop Session 1", Outcome: OutcomeSuccess, Score: score(5.25)}))
	require.NoError(t, g.Append(ctx, &Record{RunID: "r1", JobID: 0, CandidateID: 0, Outcome: OutcomeFailure, Error: "no candidates"}))
	require.NoError(t, g.Append(ctx, &Record{RunID: "r1", JobID: 1, CandidateID: 0, Outcome: OutcomeSuccess, Score: score(2)}))

	recs, err := g.ForJob(ctx, "r1", 0)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	// Ordered by record ID, i.e. insertion order.
	assert.Equal(t, 1, recs[0].CandidateID)
	assert.Equal(t, OutcomeSuccess, recs[0].Outcome)
	require.NotNil(t, recs[0].Score)
	assert.InDelta(t, 5.25, *recs[0].Score, 0.001)
	assert.Equal(t, "no candidates", recs[1].Error)
	assert.Nil(t, recs[1].Score)
}

func TestGormAccumulatesAcrossRuns(t *testing.T) {
	g := newTestLog(t)
	ctx := context.Background()

	require.NoError(t, g.Append(ctx, &Record{RunID: "r1", JobID: 0, Outcome: OutcomeSuccess}))
	require.NoError(t, g.Append(ctx, &Record{RunID: "r2", JobID: 0, Outcome: OutcomeSuccess}))

	n, err := g.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestGormGeneratesRecordID(t *testing.T) {
	g := newTestLog(t)
	rec := &Record{RunID: "r1", JobID: 0, Outcome: OutcomeSuccess}
	require.NoError(t, g.Append(context.Background(), rec))
	assert.Len(t, rec.RecordID, 26)
}
