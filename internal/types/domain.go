package types

import (
	"fmt"
	"time"
)

// ContentType is the catalog's movie/series flag on a content row.
type ContentType string

const (
	ContentTypeMovie  ContentType = "movie"
	ContentTypeSeries ContentType = "series"
)

// ExternalEndpoint returns the TMDB path segment for the content type.
// TMDB calls series "tv"; rows imported straight from TMDB may already carry
// that spelling.
func (t ContentType) ExternalEndpoint() (string, error) {
	switch t {
	case ContentTypeMovie:
		return "movie", nil
	case ContentTypeSeries, "tv":
		return "tv", nil
	default:
		return "", NewAppError(ErrCodeValidationContentType, fmt.Sprintf("unsupported content type %q", string(t)), nil)
	}
}

// WatchStatus is the lifecycle of a watch_history row.
type WatchStatus string

const (
	WatchStatusWatching  WatchStatus = "watching"
	WatchStatusAbandoned WatchStatus = "abandoned"
)

// JobStatus values of the application's job table that count as terminal.
const (
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// WatchEvent is one row of watch_history. Rows are immutable once written
// except for Status, which the housekeeping sweep moves from watching to
// abandoned.
type WatchEvent struct {
	ContentID int64
	UserID    int64
	WatchedAt time.Time
	Progress  float64
	Status    WatchStatus
	UpdatedAt time.Time
}

// DailyViewRollup is one row of analytics_daily, keyed by (ContentID, Date).
type DailyViewRollup struct {
	ContentID        int64
	Date             time.Time
	ViewCount        int
	UniqueViewers    int
	AvgWatchDuration float64
}

// ContentViewStats summarizes the watch events of one content item inside
// the popularity window.
type ContentViewStats struct {
	ContentID       int64
	TotalEvents     int
	DistinctViewers int
	FirstViewAt     time.Time
}

// ContentPopularity is the derived score written to content.popularity_score.
type ContentPopularity struct {
	ContentID int64
	Score     float64
}

// ContentMetadataRef links a content row to its TMDB record.
// LastRefreshed is nil when the row has never been refreshed.
type ContentMetadataRef struct {
	ContentID     int64
	ExternalID    string
	Type          ContentType
	Title         string
	LastRefreshed *time.Time
}

// ExternalRating is the subset of TMDB metadata the refresher persists.
type ExternalRating struct {
	VoteAverage float64
	VoteCount   int
}

// ContentMetadataUpdate is the write-back for a single refreshed row.
type ContentMetadataUpdate struct {
	ContentID   int64
	Rating      float64
	VoteCount   int
	RefreshedAt time.Time
}

// ContentRefreshedEvent is published after a row's metadata is persisted so
// that catalog caches can drop the stale copy.
type ContentRefreshedEvent struct {
	EventID     string    `json:"event_id"`
	ContentID   int64     `json:"content_id"`
	ExternalID  string    `json:"external_id"`
	Rating      float64   `json:"rating"`
	VoteCount   int       `json:"vote_count"`
	RefreshedAt time.Time `json:"refreshed_at"`
}
