package core

import "strings"

// TrackSpec is the content payload for one track: what to generate and how
// strongly the style should steer it.
type TrackSpec struct {
	Lyrics         string `json:"lyrics"`
	Styles         string `json:"styles"`
	Title          string `json:"title,omitempty"`
	Weirdness      int    `json:"weirdness"`
	StyleInfluence int    `json:"style_influence"`
}

// Summary returns a short human-readable digest of the spec, used in
// artifact-log records where the full lyrics would be noise.
func (s TrackSpec) Summary() string {
	parts := []string{}
	if s.Title != "" {
		parts = append(parts, s.Title)
	}
	styles := s.Styles
	if len(styles) > 60 {
		styles = styles[:60]
	}
	if styles != "" {
		parts = append(parts, styles)
	}
	return strings.Join(parts, " | ")
}

// Profile names a mastering treatment applied after generation.
type Profile string

const (
	ProfileRadioReady Profile = "radio_ready"
	ProfileWarmVinyl  Profile = "warm_vinyl"
	ProfileBassHeavy  Profile = "bass_heavy"
	ProfileVocalFocus Profile = "vocal_focus"
	ProfileBrightPop  Profile = "bright_pop"
	ProfileLoFi       Profile = "lo_fi"
	ProfileClarity    Profile = "clarity"
	ProfileFlat       Profile = "flat"
)

// Profiles returns all known mastering profiles in display order.
func Profiles() []Profile {
	return []Profile{
		ProfileRadioReady,
		ProfileWarmVinyl,
		ProfileBassHeavy,
		ProfileVocalFocus,
		ProfileBrightPop,
		ProfileLoFi,
		ProfileClarity,
		ProfileFlat,
	}
}

// Valid reports whether p is a known profile.
func (p Profile) Valid() bool {
	for _, known := range Profiles() {
		if p == known {
			return true
		}
	}
	return false
}

// ExportKind selects the export format for a finished track.
type ExportKind string

const (
	ExportFull ExportKind = "full"
	ExportMP3  ExportKind = "mp3"
	ExportWAV  ExportKind = "wav"
)

// Valid reports whether k is a known export kind.
func (k ExportKind) Valid() bool {
	switch k {
	case ExportFull, ExportMP3, ExportWAV:
		return true
	}
	return false
}
