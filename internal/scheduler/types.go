// Package scheduler implements the scheduled job services of the Tamasha
// platform: the daily view rollup, popularity scoring, TMDB metadata refresh
// and the housekeeping sweep.
//
// Every service takes a `now` argument instead of reading the clock, so a
// manual invocation can pin the reference time (TaskPayload.ReferenceTime)
// and tests stay deterministic. Services depend on narrow store interfaces
// satisfied by the repositories in internal/db.
package scheduler

import (
	"fmt"
	"time"

	"tamasha/internal/types"
)

// TaskType identifies which job a scheduled trigger runs.
type TaskType string

const (
	TaskAggregateDailyViews TaskType = "aggregate_daily_views"
	TaskRecomputePopularity TaskType = "recompute_popularity"
	TaskRefreshMetadata     TaskType = "refresh_metadata"
	TaskHousekeeping        TaskType = "housekeeping"
	// TaskDailyAnalytics runs the rollup and the popularity recompute back to
	// back on one connection.
	TaskDailyAnalytics TaskType = "daily_analytics"
)

// AllTasks lists every known task in dispatch order.
func AllTasks() []TaskType {
	return []TaskType{
		TaskAggregateDailyViews,
		TaskRecomputePopularity,
		TaskRefreshMetadata,
		TaskHousekeeping,
		TaskDailyAnalytics,
	}
}

// ParseTaskType validates s against the known tasks.
func ParseTaskType(s string) (TaskType, error) {
	for _, t := range AllTasks() {
		if string(t) == s {
			return t, nil
		}
	}
	return "", types.NewAppError(types.ErrCodeValidationTask, fmt.Sprintf("unknown task %q", s), nil)
}

// TaskPayload is the JSON event delivered by the scheduled trigger:
//
//	{
//	  "task": "refresh_metadata",
//	  "reference_time": "2026-03-15T03:00:00Z",  // optional
//	  "is_past_due": false,                        // optional
//	  "backfill_days": 14                          // aggregate_daily_views only
//	}
type TaskPayload struct {
	Task TaskType `json:"task"`
	// ReferenceTime pins "now" for manual runs and backfills. Nil means the
	// wall clock at invocation.
	ReferenceTime *time.Time `json:"reference_time,omitempty"`
	// IsPastDue is set by the trigger when the invocation fired late. It is
	// advisory and only logged.
	IsPastDue bool `json:"is_past_due,omitempty"`
	// BackfillDays re-runs the daily rollup for the N days before the
	// reference time instead of yesterday alone.
	BackfillDays int `json:"backfill_days,omitempty"`
}

// Validate checks the fields that only some tasks accept.
func (p TaskPayload) Validate() error {
	if p.BackfillDays < 0 {
		return types.NewAppError(types.ErrCodeValidationTask, "backfill_days must not be negative", nil)
	}
	if p.BackfillDays > 0 && p.Task != TaskAggregateDailyViews {
		return types.NewAppError(types.ErrCodeValidationTask,
			fmt.Sprintf("backfill_days only applies to %s", TaskAggregateDailyViews), nil)
	}
	return nil
}
