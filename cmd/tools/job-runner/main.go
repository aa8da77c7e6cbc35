// Package main implements the job-runner CLI for invoking scheduled tasks
// directly, bypassing the Lambda shim.
//
// It is intended for local development, manual reruns and backfills. Each
// run goes through the same runner as the Lambda: connection lease, job lock,
// job history and metrics.
//
// Usage:
//
//	go run ./cmd/tools/job-runner --list
//	go run ./cmd/tools/job-runner --task=refresh_metadata
//	go run ./cmd/tools/job-runner --task=aggregate_daily_views --reference-time=2026-01-15T02:00:00Z
//	go run ./cmd/tools/job-runner --task=aggregate_daily_views --backfill-days=14
//	go run ./cmd/tools/job-runner --dry-run --task=housekeeping
//
// Configuration comes from the environment (or a .env file); with
// APP_ENV=local no SSM lookups are made.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"tamasha/internal/config"
	"tamasha/internal/jobs"
	"tamasha/internal/scheduler"
)

var taskDescriptions = map[scheduler.TaskType]string{
	scheduler.TaskAggregateDailyViews: "Roll yesterday's watch history into analytics_daily",
	scheduler.TaskRecomputePopularity: "Recompute content.popularity_score over the trailing window",
	scheduler.TaskRefreshMetadata:     "Refresh stale TMDB ratings (up to 50 rows)",
	scheduler.TaskHousekeeping:        "Purge read notifications, finished jobs; abandon idle watches",
	scheduler.TaskDailyAnalytics:      "aggregate_daily_views then recompute_popularity",
}

// options are the parsed command-line flags.
type options struct {
	task         scheduler.TaskType
	refTime      *time.Time
	list         bool
	dryRun       bool
	backfillDays int
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}

	if opts.list {
		printAvailableTasks(os.Stdout)
		return
	}

	payload := buildPayload(opts)

	if opts.dryRun {
		if err := printPayload(os.Stdout, payload); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := execute(ctx, payload, logger); err != nil {
		logger.Error("task execution failed", "task", string(opts.task), "error", err)
		os.Exit(1)
	}
}

// parseFlags validates the command line. --list needs no task.
func parseFlags(args []string, stderr io.Writer) (options, error) {
	fs := flag.NewFlagSet("job-runner", flag.ContinueOnError)
	fs.SetOutput(stderr)

	taskFlag := fs.String("task", "", "Task type to execute (see --list)")
	refTimeFlag := fs.String("reference-time", "", "Override reference time (RFC3339, e.g. 2026-01-15T02:00:00Z)")
	listFlag := fs.Bool("list", false, "List all available task types and exit")
	dryRunFlag := fs.Bool("dry-run", false, "Print the JSON payload(s) without executing")
	backfillFlag := fs.Int("backfill-days", 0, "Roll up each of the N days before the reference time (aggregate_daily_views only)")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: job-runner [flags]\n\n")
		fmt.Fprintf(stderr, "Invoke Tamasha scheduled tasks directly, bypassing Lambda.\n\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	opts := options{list: *listFlag, dryRun: *dryRunFlag, backfillDays: *backfillFlag}
	if opts.list {
		return opts, nil
	}

	if *taskFlag == "" {
		return options{}, errors.New("--task is required")
	}
	task, err := scheduler.ParseTaskType(*taskFlag)
	if err != nil {
		return options{}, err
	}
	opts.task = task

	if *refTimeFlag != "" {
		t, err := time.Parse(time.RFC3339, *refTimeFlag)
		if err != nil {
			return options{}, fmt.Errorf("invalid --reference-time %q: expected RFC3339: %w", *refTimeFlag, err)
		}
		opts.refTime = &t
	}

	if err := buildPayload(opts).Validate(); err != nil {
		return options{}, fmt.Errorf("invalid --backfill-days: %w", err)
	}

	return opts, nil
}

// buildPayload turns the flags into the event the Lambda would receive. A
// backfill is a single payload; the runner walks the days itself.
func buildPayload(opts options) scheduler.TaskPayload {
	return scheduler.TaskPayload{
		Task:          opts.task,
		ReferenceTime: opts.refTime,
		BackfillDays:  opts.backfillDays,
	}
}

// execute loads configuration, wires the runner and runs payload.
func execute(ctx context.Context, payload scheduler.TaskPayload, logger *slog.Logger) error {
	provider := config.ProviderForEnvironment(os.Getenv("APP_ENV"), os.Getenv("AWS_REGION"))
	cfg, err := config.LoadConfig(provider)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	workerID := "job-runner-" + uuid.NewString()
	runner, closePool, err := jobs.Bootstrap(ctx, cfg, workerID, logger)
	if err != nil {
		return err
	}
	defer closePool()

	result, err := runner.Handle(ctx, payload)
	if err != nil {
		return err
	}
	logger.Info("task execution succeeded", "task", string(payload.Task), "result", result)
	return nil
}

func printAvailableTasks(w io.Writer) {
	fmt.Fprintf(w, "Available task types:\n\n")
	for _, t := range scheduler.AllTasks() {
		fmt.Fprintf(w, "  %-22s  %s\n", t, taskDescriptions[t])
	}
}

func printPayload(w io.Writer, payload scheduler.TaskPayload) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(payload); err != nil {
		return fmt.Errorf("marshalling payload: %w", err)
	}
	return nil
}
