package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/trackpilot/trackpilot/pkg/artifact"
	"github.com/trackpilot/trackpilot/pkg/checkpoint"
	"github.com/trackpilot/trackpilot/pkg/core"
	"github.com/trackpilot/trackpilot/pkg/executor"
	"github.com/trackpilot/trackpilot/pkg/orchestrator"
)

const defaultCheckpointPath = "state/checkpoint.json"

// runOptions carries the run flags shared by `run` and `schedule`.
type runOptions struct {
	musicType       string
	count           int
	retries         int
	concurrency     int
	continueOnError bool
	phase2          bool
	candidates      int
	export          string
	seed            int64
	waitGeneration  time.Duration
	pollInterval    time.Duration
	waitBetween     time.Duration
	configFile      string

	checkpointPath string
	artifactLog    string
	artifactDB     string
	eventLog       string

	resume bool
	fresh  bool
	dryRun bool
}

func addRunFlags(cmd *cobra.Command, o *runOptions) {
	f := cmd.Flags()
	f.StringVarP(&o.musicType, "type", "t", "", "music type, e.g. synthwave, lofi, edm")
	f.IntVarP(&o.count, "count", "n", 1, "number of tracks to produce")
	f.IntVar(&o.retries, "retries", 2, "retries per phase after the initial attempt")
	f.IntVar(&o.concurrency, "concurrency", 2, "worker goroutines")
	f.BoolVar(&o.continueOnError, "continue-on-error", true, "keep going when a job fails")
	f.BoolVar(&o.phase2, "phase2", false, "evaluate candidate specs before creating")
	f.IntVar(&o.candidates, "candidates", 3, "candidates per job in phase-2 mode")
	f.StringVar(&o.export, "export", "full", "export kind: full, mp3 or wav")
	f.Int64Var(&o.seed, "seed", 0, "planner seed, 0 derives one from the clock")
	f.DurationVar(&o.waitGeneration, "wait-generation", 90*time.Second, "readiness budget per track")
	f.DurationVar(&o.pollInterval, "poll-interval", 5*time.Second, "readiness poll interval")
	f.DurationVar(&o.waitBetween, "wait-between", 20*time.Second, "pause between jobs per worker")
	f.StringVarP(&o.configFile, "config", "c", "", "YAML config file, flags override it")

	f.StringVar(&o.checkpointPath, "checkpoint", defaultCheckpointPath, "checkpoint file path")
	f.StringVar(&o.artifactLog, "artifact-log", "", "JSONL artifact log path")
	f.StringVar(&o.artifactDB, "artifact-db", "", "sqlite artifact log path")
	f.StringVar(&o.eventLog, "event-log", "", "JSONL run event log path")

	f.BoolVar(&o.resume, "resume", true, "resume a matching checkpoint if present")
	f.BoolVar(&o.fresh, "fresh", false, "discard any existing checkpoint before starting")
	f.BoolVar(&o.dryRun, "dry-run", false, "run against the zero-latency simulated surface")
}

// buildConfig layers defaults, the config file, and changed flags, in that
// order.
func (o *runOptions) buildConfig(cmd *cobra.Command) (core.RunConfig, outputPaths, error) {
	cfg := core.DefaultRunConfig("")
	paths := outputPaths{checkpoint: defaultCheckpointPath}

	if o.configFile != "" {
		if err := applyConfigFile(o.configFile, &cfg, &paths); err != nil {
			return cfg, paths, err
		}
	}

	f := cmd.Flags()
	if f.Changed("type") || cfg.MusicType == "" {
		cfg.MusicType = o.musicType
	}
	if f.Changed("count") {
		cfg.Count = o.count
	}
	if f.Changed("retries") {
		cfg.StepRetries = o.retries
	}
	if f.Changed("concurrency") {
		cfg.Concurrency = o.concurrency
	}
	if f.Changed("continue-on-error") {
		cfg.ContinueOnError = o.continueOnError
	}
	if f.Changed("phase2") {
		cfg.Phase2 = o.phase2
	}
	if f.Changed("candidates") {
		cfg.CandidateCount = o.candidates
	}
	if f.Changed("export") {
		cfg.ExportKind = core.ExportKind(o.export)
	}
	if f.Changed("seed") {
		cfg.Seed = o.seed
	}
	if f.Changed("wait-generation") {
		cfg.WaitGeneration = o.waitGeneration
	}
	if f.Changed("poll-interval") {
		cfg.PollInterval = o.pollInterval
	}
	if f.Changed("wait-between") {
		cfg.WaitBetween = o.waitBetween
	}
	if o.dryRun {
		cfg.WaitGeneration = 5 * time.Second
		cfg.PollInterval = 10 * time.Millisecond
		cfg.WaitBetween = 0
	}

	if f.Changed("checkpoint") {
		paths.checkpoint = o.checkpointPath
	}
	if f.Changed("artifact-log") {
		paths.artifactLog = o.artifactLog
	}
	if f.Changed("artifact-db") {
		paths.artifactDB = o.artifactDB
	}
	if f.Changed("event-log") {
		paths.eventLog = o.eventLog
	}

	return cfg, paths, cfg.Validate()
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Produce a batch of tracks end to end",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, paths, err := opts.buildConfig(cmd)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return executeRun(ctx, cfg, paths, opts)
		},
	}
	addRunFlags(cmd, opts)
	return cmd
}

// executeRun wires one orchestrated run and reports its summary on stdout.
func executeRun(ctx context.Context, cfg core.RunConfig, paths outputPaths, opts *runOptions) error {
	logger := slog.Default()
	store := checkpoint.NewStore(paths.checkpoint)

	if opts.fresh || !opts.resume {
		if err := store.Clear(); err != nil {
			return fmt.Errorf("clear checkpoint: %w", err)
		}
	}

	exec := buildExecutor(opts)

	oopts := []orchestrator.Option{orchestrator.WithLogger(logger)}
	log, err := buildArtifactLog(ctx, paths)
	if err != nil {
		return err
	}
	if log != nil {
		oopts = append(oopts, orchestrator.WithArtifactLog(log))
	}
	if paths.eventLog != "" {
		sink := artifact.NewEventSink(paths.eventLog)
		oopts = append(oopts, orchestrator.WithEventHook(func(ev core.Event) {
			if err := sink.Write(ev); err != nil {
				logger.Warn("event log write failed", "error", err)
			}
		}))
	}

	pilot := orchestrator.New(exec, store, oopts...)
	summary, err := pilot.Run(ctx, cfg)
	if err != nil {
		if errors.Is(err, checkpoint.ErrIdentityMismatch) {
			return fmt.Errorf("%w\nthe checkpoint belongs to a different run configuration; pass --fresh to discard it", err)
		}
		var corrupt *checkpoint.CorruptError
		if errors.As(err, &corrupt) {
			return fmt.Errorf("%w\nthe checkpoint cannot be trusted; pass --fresh to discard it", err)
		}
		if summary != nil {
			printSummary(summary)
		}
		return err
	}

	printSummary(summary)
	if !summary.Success(cfg.ContinueOnError) {
		if summary.AbortedBy != nil {
			return fmt.Errorf("run aborted by job %d: %s", *summary.AbortedBy, summary.Errors[*summary.AbortedBy])
		}
		return fmt.Errorf("run finished with %d failed job(s)", len(summary.Failed))
	}
	return nil
}

func buildExecutor(opts *runOptions) core.Executor {
	if opts.dryRun {
		return executor.NewSimulated(executor.WithReadyAfter(2))
	}
	// No production surface is bound in yet; pace the simulated one like a
	// real UI so the session and wait behavior is observable.
	return executor.NewSimulated(
		executor.WithReadyAfter(3),
		executor.WithLatency(time.Second),
	)
}

// buildArtifactLog assembles the requested artifact backends, fanning out
// to all of them.
func buildArtifactLog(ctx context.Context, paths outputPaths) (artifact.Log, error) {
	var logs []artifact.Log
	if paths.artifactLog != "" {
		logs = append(logs, artifact.NewJSONL(paths.artifactLog))
	}
	if paths.artifactDB != "" {
		db, err := gorm.Open(sqlite.Open(paths.artifactDB), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		})
		if err != nil {
			return nil, fmt.Errorf("open artifact db: %w", err)
		}
		g := artifact.NewGorm(db)
		if err := g.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("migrate artifact db: %w", err)
		}
		logs = append(logs, g)
	}
	switch len(logs) {
	case 0:
		return nil, nil
	case 1:
		return logs[0], nil
	default:
		return artifact.Multi(logs...), nil
	}
}

func printSummary(summary *core.Summary) {
	b, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "marshal summary: %v\n", err)
		return
	}
	fmt.Println(string(b))
}
