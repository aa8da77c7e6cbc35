// Package jobs runs one scheduled task per invocation: it leases a database
// connection, serializes the task through job_locks, records job_history,
// dispatches to the scheduler services and emits metrics. The Lambda
// entrypoint and the job-runner CLI share it.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"tamasha/internal/db"
	"tamasha/internal/metrics"
	"tamasha/internal/scheduler"
	"tamasha/internal/types"
)

// DefaultLockTTL bounds how long a crashed invocation can block the next one.
const DefaultLockTTL = 15 * time.Minute

// Job history statuses.
const (
	statusSuccess = "success"
	statusFailed  = "failed"
)

// ConnLeaser hands out one pooled connection per invocation.
type ConnLeaser interface {
	AcquireConn(ctx context.Context) (db.Conn, error)
}

// DailyViewService rolls up watch events into daily rows: yesterday on a
// scheduled run, a range of days on a backfill.
type DailyViewService interface {
	AggregateDay(ctx context.Context, now time.Time) (int, error)
	AggregateRange(ctx context.Context, from, to time.Time) (int, error)
}

// PopularityService recomputes popularity scores.
type PopularityService interface {
	Recompute(ctx context.Context, now time.Time) (int, error)
}

// MetadataService refreshes stale TMDB metadata.
type MetadataService interface {
	Refresh(ctx context.Context, now time.Time) (scheduler.RefreshReport, error)
}

// HousekeepingService purges expired rows.
type HousekeepingService interface {
	Sweep(ctx context.Context, now time.Time) (scheduler.HousekeepingReport, error)
}

// JobLocker serializes invocations of the same task.
type JobLocker interface {
	Acquire(ctx context.Context, lockID string, workerID string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, lockID string, workerID string) error
}

// JobHistorian records invocations. Runs that lose the lock race get a
// single 'skipped' row so contention is visible next to real runs.
type JobHistorian interface {
	Start(ctx context.Context, jobType string) (int64, error)
	Finish(ctx context.Context, id int64, status string, items int, err error) error
	RecordSkipped(ctx context.Context, jobType string) error
}

// Services are the per-invocation collaborators, all bound to the leased
// connection.
type Services struct {
	Aggregator   DailyViewService
	Popularity   PopularityService
	Refresher    MetadataService
	Housekeeping HousekeepingService
	JobLock      JobLocker
	JobHistory   JobHistorian
}

// Factory binds Services to a leased connection.
type Factory func(conn db.DBTX) Services

// Runner executes one TaskPayload per Handle call.
type Runner struct {
	Pool     ConnLeaser
	Build    Factory
	Metrics  metrics.JobMetrics
	WorkerID string
	LockTTL  time.Duration
	Logger   *slog.Logger

	// Disabled maps a task to the reason it is switched off. A disabled task
	// is acknowledged with that reason and never touches the database.
	Disabled map[scheduler.TaskType]string

	// Now defaults to time.Now; tests pin it.
	Now func() time.Time
}

// outcome is what a dispatched task reports back to the runner.
type outcome struct {
	attempted int
	succeeded int
	note      string
}

// Handle runs payload.Task:
//  1. Resolve the reference time and log the advisory late flag.
//  2. Return early for a disabled task, before any database access.
//  3. Lease one connection, released on every return path.
//  4. Take the per-task lock; if another worker holds it, record a skipped
//     history row and return without error.
//  5. Record job_history start and finish (best-effort).
//  6. Dispatch to the service and emit metrics.
//
// Failing to lease the connection or to query the lock is fatal to the
// invocation and returned so the scheduler's own retry and alerting apply.
func (r *Runner) Handle(ctx context.Context, payload scheduler.TaskPayload) (string, error) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	started := r.now()

	task, err := scheduler.ParseTaskType(string(payload.Task))
	if err == nil {
		err = payload.Validate()
	}
	if err != nil {
		logger.ErrorContext(ctx, "rejected task payload", "task", string(payload.Task), "error", err)
		return "", err
	}

	now := started.UTC()
	if payload.ReferenceTime != nil {
		now = payload.ReferenceTime.UTC()
	}

	taskStr := string(task)
	logger = logger.With("task", taskStr, "worker_id", r.WorkerID)
	ctx = types.WithTaskRun(ctx, types.TaskRun{Task: taskStr, WorkerID: r.WorkerID})

	logger.InfoContext(ctx, "job invoked",
		"reference_time", now.Format(time.RFC3339),
		"is_past_due", payload.IsPastDue,
	)
	if payload.IsPastDue {
		logger.WarnContext(ctx, "job invocation is running later than scheduled")
	}

	if reason, off := r.Disabled[task]; off {
		logger.WarnContext(ctx, "task is disabled, nothing to do", "reason", reason)
		r.record(ctx, metrics.JobResult{Task: taskStr, Duration: r.since(started)})
		return fmt.Sprintf("task %s complete: 0/0 items succeeded (%s)", taskStr, reason), nil
	}

	conn, err := r.Pool.AcquireConn(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "failed to lease database connection", "error", err)
		r.record(ctx, metrics.JobResult{Task: taskStr, Duration: r.since(started), Failed: true})
		return "", fmt.Errorf("leasing connection for %s: %w", taskStr, err)
	}
	defer conn.Release()

	svc := r.Build(conn)

	lockID := taskStr
	acquired, err := svc.JobLock.Acquire(ctx, lockID, r.WorkerID, r.lockTTL())
	if err != nil {
		logger.ErrorContext(ctx, "failed to acquire job lock", "lock_id", lockID, "error", err)
		r.record(ctx, metrics.JobResult{Task: taskStr, Duration: r.since(started), Failed: true})
		return "", fmt.Errorf("acquiring job lock %s: %w", lockID, err)
	}
	if !acquired {
		logger.InfoContext(ctx, "job lock not acquired, another worker is processing", "lock_id", lockID)
		if err := svc.JobHistory.RecordSkipped(ctx, taskStr); err != nil {
			logger.ErrorContext(ctx, "failed to record skipped run", "error", err)
		}
		r.record(ctx, metrics.JobResult{Task: taskStr, Duration: r.since(started), Skipped: true})
		return fmt.Sprintf("skipped: lock %s held by another worker", lockID), nil
	}
	defer func() {
		// The lock is released even when ctx is already cancelled.
		if err := svc.JobLock.Release(context.WithoutCancel(ctx), lockID, r.WorkerID); err != nil {
			logger.ErrorContext(ctx, "failed to release job lock", "lock_id", lockID, "error", err)
		}
	}()

	historyID, err := svc.JobHistory.Start(ctx, taskStr)
	if err != nil {
		logger.ErrorContext(ctx, "failed to start job history", "error", err)
		historyID = 0
	}

	out, execErr := r.dispatch(ctx, payload, task, now, svc)

	status := statusSuccess
	if execErr != nil {
		status = statusFailed
	}
	if historyID != 0 {
		if err := svc.JobHistory.Finish(context.WithoutCancel(ctx), historyID, status, out.succeeded, execErr); err != nil {
			logger.ErrorContext(ctx, "failed to finish job history", "job_id", historyID, "error", err)
		}
	}

	r.record(ctx, metrics.JobResult{
		Task:      taskStr,
		Attempted: out.attempted,
		Succeeded: out.succeeded,
		Duration:  r.since(started),
		Failed:    execErr != nil,
	})

	if execErr != nil {
		logger.ErrorContext(ctx, "task execution failed",
			"error", execErr,
			"attempted", out.attempted,
			"succeeded", out.succeeded,
		)
		return "", fmt.Errorf("task %s failed: %w", taskStr, execErr)
	}

	result := fmt.Sprintf("task %s complete: %d/%d items succeeded", taskStr, out.succeeded, out.attempted)
	if out.note != "" {
		result += " (" + out.note + ")"
	}
	logger.InfoContext(ctx, result, "attempted", out.attempted, "succeeded", out.succeeded)
	return result, nil
}

func (r *Runner) dispatch(ctx context.Context, payload scheduler.TaskPayload, task scheduler.TaskType, now time.Time, svc Services) (outcome, error) {
	switch task {
	case scheduler.TaskAggregateDailyViews:
		if payload.BackfillDays > 0 {
			from, to := scheduler.BackfillWindow(now, payload.BackfillDays)
			n, err := svc.Aggregator.AggregateRange(ctx, from, to)
			return outcome{
				attempted: n,
				succeeded: n,
				note:      fmt.Sprintf("backfilled %d days", payload.BackfillDays),
			}, err
		}
		n, err := svc.Aggregator.AggregateDay(ctx, now)
		return outcome{attempted: n, succeeded: n}, err

	case scheduler.TaskRecomputePopularity:
		n, err := svc.Popularity.Recompute(ctx, now)
		return outcome{attempted: n, succeeded: n}, err

	case scheduler.TaskRefreshMetadata:
		report, err := svc.Refresher.Refresh(ctx, now)
		out := outcome{attempted: report.Attempted, succeeded: report.Succeeded}
		if report.Disabled {
			out.note = refreshDisabledReason
		} else if report.Failed > 0 {
			out.note = fmt.Sprintf("%d items failed", report.Failed)
		}
		return out, err

	case scheduler.TaskHousekeeping:
		report, err := svc.Housekeeping.Sweep(ctx, now)
		n := int(report.Total())
		return outcome{attempted: n, succeeded: n}, err

	case scheduler.TaskDailyAnalytics:
		// Both steps run; a failed rollup does not stop the recompute.
		rolled, aggErr := svc.Aggregator.AggregateDay(ctx, now)
		scored, popErr := svc.Popularity.Recompute(ctx, now)
		n := rolled + scored
		return outcome{attempted: n, succeeded: n}, errors.Join(aggErr, popErr)

	default:
		return outcome{}, fmt.Errorf("unknown task type: %q", task)
	}
}

func (r *Runner) record(ctx context.Context, res metrics.JobResult) {
	if r.Metrics == nil {
		return
	}
	r.Metrics.RecordJob(context.WithoutCancel(ctx), res)
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Runner) since(t time.Time) time.Duration {
	return r.now().Sub(t)
}

func (r *Runner) lockTTL() time.Duration {
	if r.LockTTL > 0 {
		return r.LockTTL
	}
	return DefaultLockTTL
}
