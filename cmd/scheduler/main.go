// Package main is the Lambda entry point for the Tamasha scheduled jobs.
//
// One function serves every task; each EventBridge schedule delivers a
// scheduler.TaskPayload naming the task:
//
//	aggregate_daily_views  daily, shortly after 00:00 UTC
//	recompute_popularity   daily, after the rollup
//	daily_analytics        alternative to the two above on one trigger
//	refresh_metadata       hourly
//	housekeeping           daily
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/google/uuid"

	"tamasha/internal/config"
	"tamasha/internal/jobs"
)

func main() {
	logger := newLogger(os.Getenv("LOG_LEVEL"))
	logger.Info("scheduler Lambda initializing (cold start)")

	provider := config.ProviderForEnvironment(os.Getenv("APP_ENV"), os.Getenv("AWS_REGION"))
	cfg, err := config.LoadConfig(provider)
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// One worker id per Lambda instance; job_locks rows are owned by it.
	workerID := "lambda-" + uuid.NewString()

	runner, closePool, err := jobs.Bootstrap(context.Background(), cfg, workerID, logger)
	if err != nil {
		logger.Error("failed to initialize job runner", "error", err)
		os.Exit(1)
	}
	defer closePool()

	logger.Info("scheduler Lambda initialized",
		"worker_id", workerID,
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
	)

	lambda.Start(runner.Handle)
}

func newLogger(level string) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(level),
	}))
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
