package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// HousekeepingStore runs the three retention statements.
type HousekeepingStore interface {
	DeleteReadNotifications(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteFinishedJobs(ctx context.Context, cutoff time.Time) (int64, error)
	AbandonIdleWatches(ctx context.Context, idleBefore, now time.Time) (int64, error)
}

// HousekeepingConfig holds the retention windows.
type HousekeepingConfig struct {
	NotificationRetention time.Duration
	JobRetention          time.Duration
	WatchIdleAfter        time.Duration
}

// DefaultHousekeepingConfig returns 90 days for read notifications, 30 days
// for finished jobs and 7 days of inactivity for watch sessions.
func DefaultHousekeepingConfig() HousekeepingConfig {
	return HousekeepingConfig{
		NotificationRetention: 90 * 24 * time.Hour,
		JobRetention:          30 * 24 * time.Hour,
		WatchIdleAfter:        7 * 24 * time.Hour,
	}
}

// HousekeepingReport counts the rows each statement touched.
type HousekeepingReport struct {
	NotificationsDeleted int64
	JobsDeleted          int64
	WatchesAbandoned     int64
}

// Total returns the number of rows touched by all statements.
func (r HousekeepingReport) Total() int64 {
	return r.NotificationsDeleted + r.JobsDeleted + r.WatchesAbandoned
}

// HousekeepingSweeper purges expired rows. The statements are independent
// and autocommit; one failing does not stop or undo the others.
//
// Sweep reports every statement's outcome and returns a joined error when any
// of them failed, so a partial sweep still shows up as a failed run.
type HousekeepingSweeper struct {
	store  HousekeepingStore
	cfg    HousekeepingConfig
	logger *slog.Logger
}

// NewHousekeepingSweeper creates a new HousekeepingSweeper. Zero windows in
// cfg take their defaults.
func NewHousekeepingSweeper(store HousekeepingStore, cfg HousekeepingConfig, logger *slog.Logger) *HousekeepingSweeper {
	def := DefaultHousekeepingConfig()
	if cfg.NotificationRetention <= 0 {
		cfg.NotificationRetention = def.NotificationRetention
	}
	if cfg.JobRetention <= 0 {
		cfg.JobRetention = def.JobRetention
	}
	if cfg.WatchIdleAfter <= 0 {
		cfg.WatchIdleAfter = def.WatchIdleAfter
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HousekeepingSweeper{store: store, cfg: cfg, logger: logger}
}

// Sweep runs all three statements and returns the counts of those that
// succeeded together with the joined errors of those that failed.
func (s *HousekeepingSweeper) Sweep(ctx context.Context, now time.Time) (HousekeepingReport, error) {
	var (
		report HousekeepingReport
		errs   []error
	)

	n, err := s.store.DeleteReadNotifications(ctx, now.Add(-s.cfg.NotificationRetention))
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to purge read notifications", "error", err)
		errs = append(errs, fmt.Errorf("purging read notifications: %w", err))
	} else {
		report.NotificationsDeleted = n
	}

	n, err = s.store.DeleteFinishedJobs(ctx, now.Add(-s.cfg.JobRetention))
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to purge finished jobs", "error", err)
		errs = append(errs, fmt.Errorf("purging finished jobs: %w", err))
	} else {
		report.JobsDeleted = n
	}

	n, err = s.store.AbandonIdleWatches(ctx, now.Add(-s.cfg.WatchIdleAfter), now)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to abandon idle watch sessions", "error", err)
		errs = append(errs, fmt.Errorf("abandoning idle watches: %w", err))
	} else {
		report.WatchesAbandoned = n
	}

	s.logger.InfoContext(ctx, "housekeeping sweep complete",
		"notifications_deleted", report.NotificationsDeleted,
		"jobs_deleted", report.JobsDeleted,
		"watches_abandoned", report.WatchesAbandoned,
		"failures", len(errs),
	)
	return report, errors.Join(errs...)
}
