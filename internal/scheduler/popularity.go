package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"tamasha/internal/types"
)

// DefaultPopularityWindow is the trailing window of watch events scored.
const DefaultPopularityWindow = 30 * 24 * time.Hour

// PopularityStore reads windowed view stats and writes scores.
type PopularityStore interface {
	ListViewStats(ctx context.Context, windowStart, windowEnd time.Time) ([]types.ContentViewStats, error)
	UpdatePopularityScores(ctx context.Context, scores []types.ContentPopularity) (int64, error)
}

// PopularityConfig configures the PopularityScorer.
type PopularityConfig struct {
	Window time.Duration
}

// PopularityScorer recomputes content.popularity_score from scratch on every
// run; the previous score is never read.
type PopularityScorer struct {
	store  PopularityStore
	cfg    PopularityConfig
	logger *slog.Logger
}

// NewPopularityScorer creates a new PopularityScorer. A zero Window falls
// back to DefaultPopularityWindow.
func NewPopularityScorer(store PopularityStore, cfg PopularityConfig, logger *slog.Logger) *PopularityScorer {
	if cfg.Window <= 0 {
		cfg.Window = DefaultPopularityWindow
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PopularityScorer{store: store, cfg: cfg, logger: logger}
}

// PopularityScore is (total + 2*distinct) / max(whole days since first view, 1).
// It depends only on its arguments.
func PopularityScore(s types.ContentViewStats, now time.Time) float64 {
	days := math.Floor(now.Sub(s.FirstViewAt).Hours() / 24)
	if days < 1 {
		days = 1
	}
	return float64(s.TotalEvents+2*s.DistinctViewers) / days
}

// Recompute scores every content item with at least one watch event in
// [now-Window, now] and overwrites the stored scores. Items without events in
// the window keep their previous score.
func (p *PopularityScorer) Recompute(ctx context.Context, now time.Time) (int, error) {
	windowStart := now.Add(-p.cfg.Window)

	stats, err := p.store.ListViewStats(ctx, windowStart, now)
	if err != nil {
		return 0, fmt.Errorf("listing view stats: %w", err)
	}
	if len(stats) == 0 {
		p.logger.InfoContext(ctx, "no watch events in popularity window",
			"window_start", windowStart.Format(time.RFC3339),
		)
		return 0, nil
	}

	scores := make([]types.ContentPopularity, len(stats))
	for i, s := range stats {
		scores[i] = types.ContentPopularity{ContentID: s.ContentID, Score: PopularityScore(s, now)}
	}

	updated, err := p.store.UpdatePopularityScores(ctx, scores)
	if err != nil {
		return int(updated), fmt.Errorf("writing popularity scores: %w", err)
	}

	p.logger.InfoContext(ctx, "popularity recompute complete",
		"scored", len(scores),
		"updated", updated,
	)
	return int(updated), nil
}
