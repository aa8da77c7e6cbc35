package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"tamasha/internal/types"
)

// AnalyticsRepository reads watch_history and writes the derived analytics:
// the analytics_daily rollup and content.popularity_score.
//
// Every write is a single set-based statement (or one pgx batch), so a run
// either lands all of its rows for a day or none of them. Rows are keyed on
// (content_id, date) and rewritten in place, which makes re-running a day or a
// backfill window safe. The repository never deletes rollups; retention of
// raw events is the housekeeping sweep's concern.
type AnalyticsRepository struct {
	db DBTX
}

// NewAnalyticsRepository creates a new AnalyticsRepository.
func NewAnalyticsRepository(db DBTX) *AnalyticsRepository {
	return &AnalyticsRepository{db: db}
}

// UpsertDailyViews rolls up the watch events of [dayStart, dayStart+24h) into
// analytics_daily in a single statement and returns the number of rows
// written. Existing rows for the day are overwritten with the recomputed
// values, so running it twice over unchanged events yields the same rows.
//
// SQL pattern:
//
//	INSERT INTO analytics_daily (...)
//	SELECT content_id, $3::date, COUNT(*), COUNT(DISTINCT user_id), AVG(progress)
//	FROM watch_history WHERE watched_at >= $1 AND watched_at < $2
//	GROUP BY content_id
//	ON CONFLICT (content_id, date) DO UPDATE SET col = EXCLUDED.col
func (r *AnalyticsRepository) UpsertDailyViews(ctx context.Context, dayStart time.Time) (int64, error) {
	dayStart = dayStart.UTC()
	dayEnd := dayStart.Add(24 * time.Hour)

	tag, err := r.db.Exec(ctx,
		`INSERT INTO analytics_daily (content_id, date, view_count, unique_viewers, avg_watch_duration)
		 SELECT content_id,
		        $3::date,
		        COUNT(*),
		        COUNT(DISTINCT user_id),
		        COALESCE(AVG(progress), 0)
		 FROM watch_history
		 WHERE watched_at >= $1 AND watched_at < $2
		 GROUP BY content_id
		 ON CONFLICT (content_id, date) DO UPDATE
		   SET view_count = EXCLUDED.view_count,
		       unique_viewers = EXCLUDED.unique_viewers,
		       avg_watch_duration = EXCLUDED.avg_watch_duration`,
		dayStart,
		dayEnd,
		dayStart,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to upsert daily view rollup", err).
			WithDetails(map[string]any{"date": dayStart.Format(time.DateOnly)})
	}
	return tag.RowsAffected(), nil
}

// ListViewStats returns, per content item with at least one watch event in
// [windowStart, windowEnd], the event count, the distinct viewer count and
// the earliest event time. Rows are ordered by content id.
func (r *AnalyticsRepository) ListViewStats(ctx context.Context, windowStart, windowEnd time.Time) ([]types.ContentViewStats, error) {
	rows, err := r.db.Query(ctx,
		`SELECT content_id, COUNT(*), COUNT(DISTINCT user_id), MIN(watched_at)
		 FROM watch_history
		 WHERE watched_at >= $1 AND watched_at <= $2
		 GROUP BY content_id
		 ORDER BY content_id`,
		windowStart,
		windowEnd,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query view stats", err)
	}
	defer rows.Close()

	var stats []types.ContentViewStats
	for rows.Next() {
		var s types.ContentViewStats
		if err := rows.Scan(&s.ContentID, &s.TotalEvents, &s.DistinctViewers, &s.FirstViewAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan view stats", err)
		}
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating view stats", err)
	}
	return stats, nil
}

// UpdatePopularityScores overwrites content.popularity_score for every entry
// in one round trip. It returns the number of content rows updated; ids that
// no longer exist are skipped silently.
func (r *AnalyticsRepository) UpdatePopularityScores(ctx context.Context, scores []types.ContentPopularity) (int64, error) {
	if len(scores) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, s := range scores {
		batch.Queue(`UPDATE content SET popularity_score = $2 WHERE id = $1`, s.ContentID, s.Score)
	}

	br := r.db.SendBatch(ctx, batch)
	var updated int64
	for range scores {
		tag, err := br.Exec()
		if err != nil {
			_ = br.Close()
			return updated, types.NewAppError(types.ErrCodeInternalDB, "failed to update popularity score", err)
		}
		updated += tag.RowsAffected()
	}
	if err := br.Close(); err != nil {
		return updated, types.NewAppError(types.ErrCodeInternalDB, "failed to close popularity batch", err)
	}
	return updated, nil
}
