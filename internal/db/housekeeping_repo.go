package db

import (
	"context"
	"time"

	"tamasha/internal/types"
)

// HousekeepingRepository runs the retention statements. Each method is a
// single autocommit statement; callers decide how to combine failures.
type HousekeepingRepository struct {
	db DBTX
}

// NewHousekeepingRepository creates a new HousekeepingRepository.
func NewHousekeepingRepository(db DBTX) *HousekeepingRepository {
	return &HousekeepingRepository{db: db}
}

// DeleteReadNotifications removes read notifications created before cutoff.
// Unread notifications are kept regardless of age.
func (r *HousekeepingRepository) DeleteReadNotifications(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM notification
		 WHERE is_read = true AND created_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to purge read notifications", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteFinishedJobs removes completed or failed job rows created before
// cutoff.
func (r *HousekeepingRepository) DeleteFinishedJobs(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM job
		 WHERE status IN ($2, $3) AND created_at < $1`,
		cutoff,
		types.JobStatusCompleted,
		types.JobStatusFailed,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to purge finished jobs", err)
	}
	return tag.RowsAffected(), nil
}

// AbandonIdleWatches moves watching sessions not updated since idleBefore to
// abandoned, stamping updated_at with now.
func (r *HousekeepingRepository) AbandonIdleWatches(ctx context.Context, idleBefore, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE watch_history
		 SET status = $3, updated_at = $4
		 WHERE status = $2 AND updated_at < $1`,
		idleBefore,
		string(types.WatchStatusWatching),
		string(types.WatchStatusAbandoned),
		now,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to abandon idle watch sessions", err)
	}
	return tag.RowsAffected(), nil
}
