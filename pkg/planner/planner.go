// Package planner turns a music-type descriptor into concrete track specs.
package planner

import (
	"fmt"
	"math/rand"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/trackpilot/trackpilot/pkg/core"
)

// Planner produces one track spec and mastering profile per job index.
// Implementations must be safe for concurrent use; the candidate evaluator
// calls Plan from multiple goroutines.
type Planner interface {
	Plan(musicType string, index int) (core.TrackSpec, core.Profile, error)
}

type preset struct {
	styles    string
	profile   core.Profile
	weirdness int
	influence int
	imagery   []string
}

var genrePresets = map[string]preset{
	"pop": {
		styles:    "modern pop, catchy hooks, polished production, radio-ready",
		profile:   core.ProfileRadioReady,
		weirdness: 35,
		influence: 75,
		imagery:   []string{"city lights", "late-night drive", "heartbeat", "neon skyline"},
	},
	"edm": {
		styles:    "EDM, festival energy, heavy drops, sidechain pumping, bright synths",
		profile:   core.ProfileBassHeavy,
		weirdness: 45,
		influence: 80,
		imagery:   []string{"strobe lights", "crowd jump", "bassline", "laser beams"},
	},
	"lofi": {
		styles:    "lo-fi hip hop, dusty drums, vinyl crackle, mellow keys, chill",
		profile:   core.ProfileLoFi,
		weirdness: 25,
		influence: 60,
		imagery:   []string{"rainy window", "old notebook", "coffee steam", "faded photo"},
	},
	"rock": {
		styles:    "alternative rock, driven guitars, live drums, anthemic chorus",
		profile:   core.ProfileClarity,
		weirdness: 40,
		influence: 70,
		imagery:   []string{"highway", "amp glow", "crowd chant", "midnight road"},
	},
	"hiphop": {
		styles:    "hip-hop, punchy drums, deep 808, confident flow, modern trap influence",
		profile:   core.ProfileBassHeavy,
		weirdness: 50,
		influence: 78,
		imagery:   []string{"streetlights", "skyscraper", "808 rumble", "night ambition"},
	},
	"rnb": {
		styles:    "R&B, smooth vocals, warm keys, groove-focused, soulful",
		profile:   core.ProfileVocalFocus,
		weirdness: 30,
		influence: 72,
		imagery:   []string{"velvet room", "moonlight", "silk chords", "slow pulse"},
	},
}

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

func slug(text string) string {
	s := strings.Trim(slugPattern.ReplaceAllString(strings.ToLower(text), "_"), "_")
	if s == "" {
		return "track"
	}
	return s
}

func pickPreset(musicType string) preset {
	key := strings.ReplaceAll(slug(musicType), "_", "")
	// Map iteration order would make a type matching two presets resolve
	// differently run to run.
	names := make([]string, 0, len(genrePresets))
	for name := range genrePresets {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if strings.Contains(key, name) {
			return genrePresets[name]
		}
	}
	return preset{
		styles:    fmt.Sprintf("%s, modern production, emotionally engaging", musicType),
		profile:   core.ProfileRadioReady,
		weirdness: 40,
		influence: 70,
		imagery:   []string{"night sky", "heartbeat", "motion", "echo"},
	}
}

// Template generates specs from the built-in genre presets. A fixed seed
// makes imagery sampling reproducible.
type Template struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewTemplate creates a Template planner. A seed of 0 seeds from the clock.
func NewTemplate(seed int64) *Template {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Template{rng: rand.New(rand.NewSource(seed))}
}

// Plan builds the spec for one job index.
func (p *Template) Plan(musicType string, index int) (core.TrackSpec, core.Profile, error) {
	pre := pickPreset(musicType)
	images := p.sample(pre.imagery, 3)

	// cases.Caser is not safe for concurrent use, so build one per call.
	titler := cases.Title(language.English)
	title := fmt.Sprintf("%s Session %d", titler.String(musicType), index+1)
	lyrics := fmt.Sprintf(
		"[Verse 1]\n"+
			"%s in the distance, we don't look back tonight\n"+
			"We turn the pressure into motion, turn the silence into light\n\n"+
			"[Chorus]\n"+
			"This is our %s moment, loud and clear\n"+
			"We rise together, no fear\n"+
			"From %s to %s, we keep it true\n"+
			"One more song to break through\n\n"+
			"[Outro]\n"+
			"Keep it moving, keep it true.",
		titler.String(images[0]), musicType, images[1], images[2],
	)

	spec := core.TrackSpec{
		Lyrics:         lyrics,
		Styles:         pre.styles,
		Title:          title,
		Weirdness:      pre.weirdness,
		StyleInfluence: pre.influence,
	}
	return spec, pre.profile, nil
}

// sample picks k distinct entries, repeating entries only when the pool is
// smaller than k.
func (p *Template) sample(pool []string, k int) []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx := p.rng.Perm(len(pool))
	out := make([]string, 0, k)
	for i := 0; i < k; i++ {
		out = append(out, pool[idx[i%len(idx)]])
	}
	return out
}
