package db

import (
	"context"
	"time"

	"tamasha/internal/types"
)

// JobLockRepository serializes job invocations through the job_locks table.
//
// EventBridge delivers at-least-once and a manual job-runner invocation can
// overlap a scheduled one, so every task takes a row keyed by its task type
// before touching data. The row carries the holder's worker id and an expiry;
// a worker that crashes without releasing blocks the task only until
// expires_at, after which any worker may take the row over. Release is scoped
// to the worker id so a run that outlived its TTL cannot delete the lock of
// the run that replaced it.
type JobLockRepository struct {
	db DBTX
}

// NewJobLockRepository creates a new JobLockRepository.
func NewJobLockRepository(db DBTX) *JobLockRepository {
	return &JobLockRepository{db: db}
}

// Acquire attempts to take lockID for workerID until now+ttl. It returns
// false without error when another worker holds an unexpired lock.
//
// SQL pattern:
//
//	INSERT INTO job_locks (id, worker_id, locked_at, expires_at)
//	VALUES ($1, $2, $3, $4)
//	ON CONFLICT (id) DO UPDATE
//	  SET worker_id = EXCLUDED.worker_id, ...
//	  WHERE job_locks.expires_at < $3
//
// Timestamps are computed in Go; Go duration strings are not valid
// PostgreSQL intervals.
func (r *JobLockRepository) Acquire(ctx context.Context, lockID string, workerID string, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(ttl)

	tag, err := r.db.Exec(ctx,
		`INSERT INTO job_locks (id, worker_id, locked_at, expires_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE
		   SET worker_id = EXCLUDED.worker_id,
		       locked_at = EXCLUDED.locked_at,
		       expires_at = EXCLUDED.expires_at
		   WHERE job_locks.expires_at < $3`,
		lockID,
		workerID,
		now,
		expiresAt,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to acquire job lock", err)
	}

	// 0 rows: the row exists and has not expired.
	return tag.RowsAffected() > 0, nil
}

// Release deletes lockID if workerID still owns it. Releasing a lock that
// expired and was taken over by another worker is a no-op.
func (r *JobLockRepository) Release(ctx context.Context, lockID string, workerID string) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM job_locks WHERE id = $1 AND worker_id = $2`,
		lockID,
		workerID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to release job lock", err)
	}
	return nil
}

// JobHistoryRepository records job invocations in job_history for
// operational visibility.
//
// A normal run is written twice: Start inserts a 'running' row before the
// task is dispatched and Finish stamps its outcome. A run that lost the lock
// race is written once by RecordSkipped. Rows left in 'running' belong to
// invocations that died mid-task; housekeeping does not touch them.
type JobHistoryRepository struct {
	db DBTX
}

// NewJobHistoryRepository creates a new JobHistoryRepository.
func NewJobHistoryRepository(db DBTX) *JobHistoryRepository {
	return &JobHistoryRepository{db: db}
}

// Start inserts a 'running' row and returns its id for Finish.
func (r *JobHistoryRepository) Start(ctx context.Context, jobType string) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx,
		`INSERT INTO job_history (job_type, started_at, status)
		 VALUES ($1, NOW(), 'running')
		 RETURNING id`,
		jobType,
	).Scan(&id)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to start job history entry", err)
	}
	return id, nil
}

// Finish stamps the row with its final status ('success', 'failed' or
// 'skipped'), the item count and the error text if any.
func (r *JobHistoryRepository) Finish(ctx context.Context, id int64, status string, items int, jobErr error) error {
	var errMsg *string
	if jobErr != nil {
		s := jobErr.Error()
		errMsg = &s
	}

	tag, err := r.db.Exec(ctx,
		`UPDATE job_history
		 SET finished_at = NOW(), status = $2, items_count = $3, error = $4
		 WHERE id = $1`,
		id,
		status,
		items,
		errMsg,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to finish job history entry", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "job history entry not found", nil)
	}
	return nil
}

// RecordSkipped inserts a finished 'skipped' row for an invocation that found
// the task locked by another worker.
func (r *JobHistoryRepository) RecordSkipped(ctx context.Context, jobType string) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO job_history (job_type, started_at, finished_at, status, items_count)
		 VALUES ($1, NOW(), NOW(), 'skipped', 0)`,
		jobType,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to record skipped job", err)
	}
	return nil
}
