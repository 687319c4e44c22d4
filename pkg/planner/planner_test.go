package planner

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trackpilot/trackpilot/pkg/core"
)

func TestTemplatePlanKnownGenre(t *testing.T) {
	p := NewTemplate(1)
	spec, profile, err := p.Plan("lofi", 0)
	require.NoError(t, err)

	assert.Equal(t, core.ProfileLoFi, profile)
	assert.Contains(t, spec.Styles, "lo-fi hip hop")
	assert.Equal(t, "Lofi Session 1", spec.Title)
	assert.Equal(t, 25, spec.Weirdness)
	assert.Equal(t, 60, spec.StyleInfluence)
	assert.Contains(t, spec.Lyrics, "[Chorus]")
	assert.Contains(t, spec.Lyrics, "lofi moment")
}

func TestTemplatePlanGenreMatchIsFuzzy(t *testing.T) {
	p := NewTemplate(1)
	_, profile, err := p.Plan("Dark EDM Bangers", 0)
	require.NoError(t, err)
	assert.Equal(t, core.ProfileBassHeavy, profile)
}

func TestPickPresetAmbiguousTypeIsStable(t *testing.T) {
	// "pop rock" matches both the pop and rock presets; the match must not
	// depend on map iteration order.
	want := genrePresets["pop"]
	for i := 0; i < 50; i++ {
		got := pickPreset("pop rock")
		assert.Equal(t, want.styles, got.styles)
		assert.Equal(t, want.profile, got.profile)
	}
}

func TestTemplatePlanUnknownGenreFallsBack(t *testing.T) {
	p := NewTemplate(1)
	spec, profile, err := p.Plan("sea shanty", 2)
	require.NoError(t, err)

	assert.Equal(t, core.ProfileRadioReady, profile)
	assert.Contains(t, spec.Styles, "sea shanty")
	assert.Equal(t, "Sea Shanty Session 3", spec.Title)
	assert.Equal(t, 40, spec.Weirdness)
}

func TestTemplatePlanDeterministicUnderSeed(t *testing.T) {
	a := NewTemplate(42)
	b := NewTemplate(42)
	for i := 0; i < 4; i++ {
		specA, profA, err := a.Plan("rock", i)
		require.NoError(t, err)
		specB, profB, err := b.Plan("rock", i)
		require.NoError(t, err)
		assert.Equal(t, specA, specB)
		assert.Equal(t, profA, profB)
	}
}

func TestTemplatePlanConcurrentUse(t *testing.T) {
	p := NewTemplate(7)
	done := make(chan struct{})
	for g := 0; g < 8; g++ {
		go func(g int) {
			defer func() { done <- struct{}{} }()
			for i := 0; i < 20; i++ {
				_, _, err := p.Plan("pop", i)
				assert.NoError(t, err)
			}
		}(g)
	}
	for g := 0; g < 8; g++ {
		<-done
	}
}

func TestSlug(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"Lo-Fi Hip Hop", "lo_fi_hip_hop"},
		{"EDM!!", "edm"},
		{"  ", "track"},
		{"r&b", "r_b"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, slug(tt.in), "slug(%q)", tt.in)
	}
}

func TestSampleDistinctWhenPoolLargeEnough(t *testing.T) {
	p := NewTemplate(3)
	got := p.sample([]string{"a", "b", "c", "d"}, 3)
	require.Len(t, got, 3)
	seen := map[string]bool{}
	for _, s := range got {
		assert.False(t, seen[s], "duplicate %q in %s", s, strings.Join(got, ","))
		seen[s] = true
	}
}
