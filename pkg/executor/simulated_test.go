package executor

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trackpilot/trackpilot/pkg/core"
)

func testSpec() core.TrackSpec {
	return core.TrackSpec{
		Title:  "Night Drive Session 1",
		Styles: "synthwave, retro, analog",
		Lyrics: "neon lights on the highway\n",
	}
}

func TestSimulatedFullLifecycle(t *testing.T) {
	ctx := context.Background()
	sim := NewSimulated(WithReadyAfter(2), WithExportDir("/exports"))

	ref, err := sim.Create(ctx, testSpec())
	require.NoError(t, err)
	assert.NotEmpty(t, ref)

	ready, err := sim.PollReady(ctx, ref)
	require.NoError(t, err)
	assert.False(t, ready, "first poll should not be ready")

	ready, err = sim.PollReady(ctx, ref)
	require.NoError(t, err)
	assert.True(t, ready, "second poll should be ready")

	require.NoError(t, sim.ApplyTreatment(ctx, ref, core.ProfileRadioReady))

	path, err := sim.Export(ctx, ref, core.ExportMP3)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(path, "/exports/"), "path %q", path)
	assert.True(t, strings.HasSuffix(path, ".mp3"), "path %q", path)

	assert.Equal(t, 1, sim.Calls(OpCreate))
	assert.Equal(t, 2, sim.Calls(OpPoll))
}

func TestSimulatedExportBeforeTreatment(t *testing.T) {
	ctx := context.Background()
	sim := NewSimulated(WithReadyAfter(1))

	ref, err := sim.Create(ctx, testSpec())
	require.NoError(t, err)

	_, err = sim.Export(ctx, ref, core.ExportWAV)
	require.Error(t, err)
	assert.False(t, core.IsFatal(err), "premature export is retryable")
}

func TestSimulatedRejectsEmptySpec(t *testing.T) {
	sim := NewSimulated()

	_, err := sim.Create(context.Background(), core.TrackSpec{Title: "empty"})
	require.Error(t, err)
	assert.True(t, core.IsFatal(err))
}

func TestSimulatedUnknownUnitIsFatal(t *testing.T) {
	ctx := context.Background()
	sim := NewSimulated()

	_, err := sim.PollReady(ctx, "unit-9999")
	require.Error(t, err)
	assert.True(t, core.IsFatal(err))

	err = sim.ApplyTreatment(ctx, "unit-9999", core.ProfileWarmVinyl)
	require.Error(t, err)
	assert.True(t, core.IsFatal(err))
}

func TestSimulatedFailEvery(t *testing.T) {
	ctx := context.Background()
	sim := NewSimulated(WithFailEvery(OpCreate, 2))

	_, err := sim.Create(ctx, testSpec())
	require.NoError(t, err)

	_, err = sim.Create(ctx, testSpec())
	require.Error(t, err)
	assert.False(t, core.IsFatal(err), "injected failures are transient")

	_, err = sim.Create(ctx, testSpec())
	require.NoError(t, err)
}
