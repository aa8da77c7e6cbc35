package db

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"tamasha/internal/types"
)

// ============================================================
// JobLockRepository Tests
// ============================================================

func TestJobLockRepository_Acquire_NewLock(t *testing.T) {
	db := new(mockDBTX)
	repo := NewJobLockRepository(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).
		Run(func(args mock.Arguments) {
			params := args.Get(2).([]any)
			require.Len(t, params, 4)
			assert.Equal(t, "refresh_metadata", params[0])
			lockedAt := params[2].(time.Time)
			expiresAt := params[3].(time.Time)
			assert.Equal(t, 15*time.Minute, expiresAt.Sub(lockedAt))
		}).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	acquired, err := repo.Acquire(ctx, "refresh_metadata", "worker-a", 15*time.Minute)
	require.NoError(t, err)
	assert.True(t, acquired)
	db.AssertExpectations(t)
}

func TestJobLockRepository_Acquire_HeldByAnotherWorker(t *testing.T) {
	db := new(mockDBTX)
	repo := NewJobLockRepository(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("INSERT 0 0"), nil)

	acquired, err := repo.Acquire(ctx, "refresh_metadata", "worker-b", 15*time.Minute)
	require.NoError(t, err)
	assert.False(t, acquired, "should not acquire lock when another worker holds it")
}

func TestJobLockRepository_Acquire_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewJobLockRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("connection refused"))

	acquired, err := repo.Acquire(context.Background(), "housekeeping", "worker-1", time.Minute)
	assert.False(t, acquired)
	assert.True(t, types.IsCode(err, types.ErrCodeInternalDB))
}

func TestJobLockRepository_Release_ScopedToWorker(t *testing.T) {
	db := new(mockDBTX)
	repo := NewJobLockRepository(db)

	db.On("Exec", mock.Anything, "DELETE FROM job_locks WHERE id = $1 AND worker_id = $2", []any{"housekeeping", "worker-1"}).
		Return(pgconn.NewCommandTag("DELETE 1"), nil)

	require.NoError(t, repo.Release(context.Background(), "housekeeping", "worker-1"))
	db.AssertExpectations(t)
}

func TestJobLockRepository_Release_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewJobLockRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("broken pipe"))

	err := repo.Release(context.Background(), "housekeeping", "worker-1")
	assert.True(t, types.IsCode(err, types.ErrCodeInternalDB))
}

// ============================================================
// JobHistoryRepository Tests
// ============================================================

func TestJobHistoryRepository_Start(t *testing.T) {
	db := new(mockDBTX)
	repo := NewJobHistoryRepository(db)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), []any{"aggregate_daily_views"}).
		Return(&mockRow{scanFn: func(dest ...any) error {
			*dest[0].(*int64) = 42
			return nil
		}})

	id, err := repo.Start(context.Background(), "aggregate_daily_views")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
}

func TestJobHistoryRepository_Start_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewJobHistoryRepository(db)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: errors.New("relation job_history does not exist")})

	_, err := repo.Start(context.Background(), "housekeeping")
	assert.True(t, types.IsCode(err, types.ErrCodeInternalDB))
}

func TestJobHistoryRepository_Finish_WithError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewJobHistoryRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Run(func(args mock.Arguments) {
			params := args.Get(2).([]any)
			assert.Equal(t, int64(42), params[0])
			assert.Equal(t, "failed", params[1])
			assert.Equal(t, 3, params[2])
			msg := params[3].(*string)
			require.NotNil(t, msg)
			assert.Equal(t, "tmdb down", *msg)
		}).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	require.NoError(t, repo.Finish(context.Background(), 42, "failed", 3, errors.New("tmdb down")))
}

func TestJobHistoryRepository_Finish_NotFound(t *testing.T) {
	db := new(mockDBTX)
	repo := NewJobHistoryRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil)

	err := repo.Finish(context.Background(), 99, "success", 0, nil)
	assert.True(t, types.IsCode(err, types.ErrCodeInternalUnexpected))
}

func TestJobHistoryRepository_RecordSkipped(t *testing.T) {
	db := new(mockDBTX)
	repo := NewJobHistoryRepository(db)

	db.On("Exec", mock.Anything, mock.MatchedBy(func(sql string) bool {
		return strings.Contains(sql, "'skipped'")
	}), []any{"refresh_metadata"}).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	require.NoError(t, repo.RecordSkipped(context.Background(), "refresh_metadata"))
	db.AssertExpectations(t)
}

func TestJobHistoryRepository_RecordSkipped_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewJobHistoryRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("connection reset"))

	err := repo.RecordSkipped(context.Background(), "housekeeping")
	assert.True(t, types.IsCode(err, types.ErrCodeInternalDB))
}
