package cli

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/trackpilot/trackpilot/pkg/core"
)

// fileConfig is the YAML shape of a run config file. Durations are strings
// like "90s" so the file reads the way the flags do.
type fileConfig struct {
	MusicType       string `yaml:"music_type"`
	Count           *int   `yaml:"count"`
	StepRetries     *int   `yaml:"step_retries"`
	Concurrency     *int   `yaml:"concurrency"`
	ContinueOnError *bool  `yaml:"continue_on_error"`
	Phase2          *bool  `yaml:"phase2"`
	CandidateCount  *int   `yaml:"candidate_count"`
	ExportKind      string `yaml:"export_kind"`
	Seed            *int64 `yaml:"seed"`
	WaitGeneration  string `yaml:"wait_generation"`
	PollInterval    string `yaml:"poll_interval"`
	WaitBetween     string `yaml:"wait_between"`
	SessionWait     string `yaml:"session_wait"`

	Checkpoint  string `yaml:"checkpoint"`
	ArtifactLog string `yaml:"artifact_log"`
	ArtifactDB  string `yaml:"artifact_db"`
	EventLog    string `yaml:"event_log"`
}

// outputPaths collects the file sinks a run writes besides the exports.
type outputPaths struct {
	checkpoint  string
	artifactLog string
	artifactDB  string
	eventLog    string
}

// applyConfigFile layers the YAML file over cfg and paths. Flag values are
// applied afterwards, so flags win over the file.
func applyConfigFile(path string, cfg *core.RunConfig, paths *outputPaths) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	if fc.MusicType != "" {
		cfg.MusicType = fc.MusicType
	}
	if fc.Count != nil {
		cfg.Count = *fc.Count
	}
	if fc.StepRetries != nil {
		cfg.StepRetries = *fc.StepRetries
	}
	if fc.Concurrency != nil {
		cfg.Concurrency = *fc.Concurrency
	}
	if fc.ContinueOnError != nil {
		cfg.ContinueOnError = *fc.ContinueOnError
	}
	if fc.Phase2 != nil {
		cfg.Phase2 = *fc.Phase2
	}
	if fc.CandidateCount != nil {
		cfg.CandidateCount = *fc.CandidateCount
	}
	if fc.ExportKind != "" {
		cfg.ExportKind = core.ExportKind(fc.ExportKind)
	}
	if fc.Seed != nil {
		cfg.Seed = *fc.Seed
	}

	durs := []struct {
		raw  string
		dst  *time.Duration
		name string
	}{
		{fc.WaitGeneration, &cfg.WaitGeneration, "wait_generation"},
		{fc.PollInterval, &cfg.PollInterval, "poll_interval"},
		{fc.WaitBetween, &cfg.WaitBetween, "wait_between"},
		{fc.SessionWait, &cfg.SessionWait, "session_wait"},
	}
	for _, d := range durs {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("parse config %s: %s: %w", path, d.name, err)
		}
		*d.dst = v
	}

	if fc.Checkpoint != "" {
		paths.checkpoint = fc.Checkpoint
	}
	if fc.ArtifactLog != "" {
		paths.artifactLog = fc.ArtifactLog
	}
	if fc.ArtifactDB != "" {
		paths.artifactDB = fc.ArtifactDB
	}
	if fc.EventLog != "" {
		paths.eventLog = fc.EventLog
	}
	return nil
}
