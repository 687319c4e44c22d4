package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/trackpilot/trackpilot/pkg/schedule"
)

func newScheduleCmd() *cobra.Command {
	opts := &runOptions{}
	var (
		every   time.Duration
		daily   string
		cron    string
		maxRuns int
	)

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the pipeline on a recurring schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			sched, err := buildSchedule(every, daily, cron)
			if err != nil {
				return err
			}
			cfg, paths, err := opts.buildConfig(cmd)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			runner := schedule.NewRunner(sched,
				func(ctx context.Context) error {
					return executeRun(ctx, cfg, paths, opts)
				},
				schedule.WithMaxRuns(maxRuns),
			)
			if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&every, "every", 0, "fixed interval between runs, e.g. 6h")
	cmd.Flags().StringVar(&daily, "daily", "", "daily run time as HH:MM (UTC)")
	cmd.Flags().StringVar(&cron, "cron", "", "five-field cron expression")
	cmd.Flags().IntVar(&maxRuns, "max-runs", 0, "stop after this many runs, 0 means forever")
	addRunFlags(cmd, opts)
	return cmd
}

// buildSchedule picks exactly one of the three schedule flags.
func buildSchedule(every time.Duration, daily, cron string) (schedule.Schedule, error) {
	set := 0
	if every > 0 {
		set++
	}
	if daily != "" {
		set++
	}
	if cron != "" {
		set++
	}
	if set != 1 {
		return nil, fmt.Errorf("exactly one of --every, --daily or --cron is required")
	}

	switch {
	case every > 0:
		return schedule.Every(every), nil
	case daily != "":
		hour, minute, err := parseClock(daily)
		if err != nil {
			return nil, err
		}
		return schedule.Daily(hour, minute), nil
	default:
		sched, err := schedule.Cron(cron)
		if err != nil {
			return nil, fmt.Errorf("parse cron expression: %w", err)
		}
		return sched, nil
	}
}

func parseClock(s string) (hour, minute int, err error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, want HH:MM", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return hour, minute, nil
}
