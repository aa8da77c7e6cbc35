package db

import (
	"context"
	"fmt"
	"time"

	"tamasha/internal/types"
)

// ContentRepository provides the catalog reads and writes used by the
// metadata refresher.
//
// Only rating columns and tmdb_updated_at are written here. Titles, posters
// and the rest of the catalog belong to the admin API and are never touched
// by the jobs, so a refresh cannot clobber an editor's change.
type ContentRepository struct {
	db DBTX
}

// NewContentRepository creates a new ContentRepository.
func NewContentRepository(db DBTX) *ContentRepository {
	return &ContentRepository{db: db}
}

// ListStaleMetadata returns up to limit content rows that carry a TMDB id and
// were never refreshed or were last refreshed before cutoff. Never-refreshed
// rows come first, then the oldest refresh; id breaks ties so repeated runs
// over the same data pick the same rows.
func (r *ContentRepository) ListStaleMetadata(ctx context.Context, cutoff time.Time, limit int) ([]types.ContentMetadataRef, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, tmdb_id::text, type, COALESCE(title, ''), tmdb_updated_at
		 FROM content
		 WHERE tmdb_id IS NOT NULL
		   AND (tmdb_updated_at IS NULL OR tmdb_updated_at < $1)
		 ORDER BY tmdb_updated_at ASC NULLS FIRST, id
		 LIMIT $2`,
		cutoff,
		limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list stale metadata", err)
	}
	defer rows.Close()

	refs := make([]types.ContentMetadataRef, 0, limit)
	for rows.Next() {
		var (
			ref         types.ContentMetadataRef
			contentType string
		)
		if err := rows.Scan(&ref.ContentID, &ref.ExternalID, &contentType, &ref.Title, &ref.LastRefreshed); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan stale metadata row", err)
		}
		ref.Type = types.ContentType(contentType)
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating stale metadata", err)
	}
	return refs, nil
}

// UpdateMetadata writes rating, vote count and refresh time for a single
// content row, scoped to its primary key.
func (r *ContentRepository) UpdateMetadata(ctx context.Context, u types.ContentMetadataUpdate) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE content
		 SET rating = $2, vote_count = $3, tmdb_updated_at = $4
		 WHERE id = $1`,
		u.ContentID,
		u.Rating,
		u.VoteCount,
		u.RefreshedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update content metadata", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundContent, fmt.Sprintf("content %d not found", u.ContentID), nil)
	}
	return nil
}
