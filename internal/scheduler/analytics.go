package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DailyViewStore writes the analytics_daily rollup.
type DailyViewStore interface {
	// UpsertDailyViews aggregates watch events of [dayStart, dayStart+24h)
	// and overwrites the rollup rows of that day. Returns rows written.
	UpsertDailyViews(ctx context.Context, dayStart time.Time) (int64, error)
}

// DailyViewAggregator rolls watch history up into per-content daily rows.
type DailyViewAggregator struct {
	store  DailyViewStore
	logger *slog.Logger
}

// NewDailyViewAggregator creates a new DailyViewAggregator.
func NewDailyViewAggregator(store DailyViewStore, logger *slog.Logger) *DailyViewAggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &DailyViewAggregator{store: store, logger: logger}
}

// PreviousUTCDay returns midnight UTC of the calendar day before now.
func PreviousUTCDay(now time.Time) time.Time {
	return startOfUTCDay(now).AddDate(0, 0, -1)
}

// BackfillWindow returns the [from, to) range of the given number of UTC
// calendar days, ending with yesterday relative to now.
func BackfillWindow(now time.Time, days int) (from, to time.Time) {
	to = startOfUTCDay(now)
	return to.AddDate(0, 0, -days), to
}

func startOfUTCDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// AggregateDay rolls up yesterday (UTC) relative to now. Any store error
// abandons the run; the next run recomputes the day from scratch.
func (a *DailyViewAggregator) AggregateDay(ctx context.Context, now time.Time) (int, error) {
	day := PreviousUTCDay(now)

	n, err := a.store.UpsertDailyViews(ctx, day)
	if err != nil {
		return 0, fmt.Errorf("aggregating views for %s: %w", day.Format(time.DateOnly), err)
	}

	a.logger.InfoContext(ctx, "daily view rollup complete",
		"date", day.Format(time.DateOnly),
		"rows", n,
	)
	return int(n), nil
}

// AggregateRange re-runs the rollup for every UTC day in [from, to),
// oldest first, and stops at the first failure. Returns rows written so far.
func (a *DailyViewAggregator) AggregateRange(ctx context.Context, from, to time.Time) (int, error) {
	total := 0
	for day := startOfUTCDay(from); day.Before(to); day = day.AddDate(0, 0, 1) {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := a.store.UpsertDailyViews(ctx, day)
		if err != nil {
			return total, fmt.Errorf("aggregating views for %s: %w", day.Format(time.DateOnly), err)
		}
		total += int(n)
		a.logger.DebugContext(ctx, "backfilled daily views", "date", day.Format(time.DateOnly), "rows", n)
	}

	a.logger.InfoContext(ctx, "daily view backfill complete",
		"from", startOfUTCDay(from).Format(time.DateOnly),
		"to", to.UTC().Format(time.DateOnly),
		"rows", total,
	)
	return total, nil
}
