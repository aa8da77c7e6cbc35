package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"tamasha/internal/types"
)

// MaxRefreshBatch caps the rows refreshed per invocation regardless of
// configuration.
const MaxRefreshBatch = 50

// DefaultStalenessWindow is the age after which a row's metadata is stale.
const DefaultStalenessWindow = 7 * 24 * time.Hour

// MetadataStore selects stale rows and writes refreshed metadata.
type MetadataStore interface {
	ListStaleMetadata(ctx context.Context, cutoff time.Time, limit int) ([]types.ContentMetadataRef, error)
	UpdateMetadata(ctx context.Context, u types.ContentMetadataUpdate) error
}

// RatingFetcher looks up a content item at the external provider.
type RatingFetcher interface {
	FetchRating(ctx context.Context, ref types.ContentMetadataRef) (types.ExternalRating, error)
}

// RefreshPublisher announces persisted refreshes. Optional.
type RefreshPublisher interface {
	PublishContentRefreshed(ctx context.Context, evt types.ContentRefreshedEvent) error
}

// RefresherConfig configures the MetadataRefresher.
type RefresherConfig struct {
	// Enabled is false when no provider API key is configured; Refresh is
	// then a logged no-op.
	Enabled         bool
	BatchSize       int
	StalenessWindow time.Duration
	// RequestTimeout bounds each provider call. Zero leaves it to the
	// fetcher's HTTP client.
	RequestTimeout time.Duration
}

// ItemState is the refresh lifecycle of a single row within one run.
type ItemState string

const (
	ItemPending   ItemState = "pending"
	ItemFetched   ItemState = "fetched"
	ItemPersisted ItemState = "persisted"
	ItemFailed    ItemState = "failed"
)

// ItemOutcome records what happened to one selected row.
type ItemOutcome struct {
	ContentID  int64
	ExternalID string
	State      ItemState
	Err        error
}

// RefreshReport summarizes one Refresh run. Attempted counts rows that were
// processed; it equals Succeeded+Failed and is at most Selected, with
// the gap being rows left untouched when the context was cancelled. Items
// holds one outcome per selected row in selection order.
type RefreshReport struct {
	Disabled  bool
	Selected  int
	Attempted int
	Succeeded int
	Failed    int
	Items     []ItemOutcome
}

// MetadataRefresher refreshes ratings of stale content rows from TMDB,
// one row at a time. A row's failure is logged and skipped; it never aborts
// the batch and never touches the row.
//
// Lookups are spaced by the Pacer, and every selected row gets at most one
// lookup per run. A row that failed
// keeps its old tmdb_updated_at, so it stays at the front of the stale queue
// and is picked up again next time.
type MetadataRefresher struct {
	store     MetadataStore
	fetcher   RatingFetcher
	pacer     Pacer
	publisher RefreshPublisher
	cfg       RefresherConfig
	logger    *slog.Logger
	newID     func() string
}

// NewMetadataRefresher creates a new MetadataRefresher. pacer and publisher
// may be nil.
func NewMetadataRefresher(
	store MetadataStore,
	fetcher RatingFetcher,
	pacer Pacer,
	publisher RefreshPublisher,
	cfg RefresherConfig,
	logger *slog.Logger,
) *MetadataRefresher {
	if cfg.BatchSize <= 0 || cfg.BatchSize > MaxRefreshBatch {
		cfg.BatchSize = MaxRefreshBatch
	}
	if cfg.StalenessWindow <= 0 {
		cfg.StalenessWindow = DefaultStalenessWindow
	}
	if pacer == nil {
		pacer = NoopPacer{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MetadataRefresher{
		store:     store,
		fetcher:   fetcher,
		pacer:     pacer,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
		newID:     uuid.NewString,
	}
}

// Refresh selects up to BatchSize stale rows (never refreshed first, then
// oldest) and refreshes them sequentially.
//
// Only the selection query can fail the run. If ctx is cancelled mid-loop the
// remaining rows are left alone and the partial report is returned with the
// context error.
func (r *MetadataRefresher) Refresh(ctx context.Context, now time.Time) (RefreshReport, error) {
	if !r.cfg.Enabled {
		r.logger.WarnContext(ctx, "TMDB API key not configured, skipping metadata refresh")
		return RefreshReport{Disabled: true}, nil
	}

	cutoff := now.Add(-r.cfg.StalenessWindow)
	refs, err := r.store.ListStaleMetadata(ctx, cutoff, r.cfg.BatchSize)
	if err != nil {
		return RefreshReport{}, fmt.Errorf("selecting stale metadata: %w", err)
	}

	report := RefreshReport{
		Selected: len(refs),
		Items:    make([]ItemOutcome, len(refs)),
	}
	for i, ref := range refs {
		report.Items[i] = ItemOutcome{ContentID: ref.ContentID, ExternalID: ref.ExternalID, State: ItemPending}
	}

	if len(refs) == 0 {
		r.logger.InfoContext(ctx, "no stale metadata to refresh", "cutoff", cutoff.Format(time.RFC3339))
		return report, nil
	}

	r.logger.InfoContext(ctx, "refreshing stale metadata",
		"selected", len(refs),
		"cutoff", cutoff.Format(time.RFC3339),
	)

	for i, ref := range refs {
		if err := r.pacer.Wait(ctx); err != nil {
			r.logStopped(ctx, report, err)
			return report, err
		}

		report.Attempted++
		report.Items[i] = r.refreshOne(ctx, ref, now)
		if report.Items[i].State == ItemPersisted {
			report.Succeeded++
		} else {
			report.Failed++
		}

		if err := ctx.Err(); err != nil {
			r.logStopped(ctx, report, err)
			return report, err
		}
	}

	r.logger.InfoContext(ctx, "metadata refresh complete",
		"selected", report.Selected,
		"attempted", report.Attempted,
		"succeeded", report.Succeeded,
		"failed", report.Failed,
	)
	return report, nil
}

func (r *MetadataRefresher) refreshOne(ctx context.Context, ref types.ContentMetadataRef, now time.Time) ItemOutcome {
	out := ItemOutcome{ContentID: ref.ContentID, ExternalID: ref.ExternalID, State: ItemPending}

	fetchCtx := ctx
	if r.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, r.cfg.RequestTimeout)
		defer cancel()
	}

	rating, err := r.fetcher.FetchRating(fetchCtx, ref)
	if err != nil {
		return r.fail(ctx, out, "fetch", err)
	}
	out.State = ItemFetched

	update := types.ContentMetadataUpdate{
		ContentID:   ref.ContentID,
		Rating:      rating.VoteAverage,
		VoteCount:   rating.VoteCount,
		RefreshedAt: now,
	}
	if err := r.store.UpdateMetadata(ctx, update); err != nil {
		return r.fail(ctx, out, "persist", err)
	}
	out.State = ItemPersisted

	r.logger.DebugContext(ctx, "content metadata refreshed",
		"content_id", ref.ContentID,
		"rating", rating.VoteAverage,
		"vote_count", rating.VoteCount,
	)

	if r.publisher != nil {
		evt := types.ContentRefreshedEvent{
			EventID:     r.newID(),
			ContentID:   ref.ContentID,
			ExternalID:  ref.ExternalID,
			Rating:      rating.VoteAverage,
			VoteCount:   rating.VoteCount,
			RefreshedAt: now,
		}
		if err := r.publisher.PublishContentRefreshed(ctx, evt); err != nil {
			r.logger.WarnContext(ctx, "failed to publish content refreshed event",
				"content_id", ref.ContentID,
				"error", err,
			)
		}
	}

	return out
}

func (r *MetadataRefresher) fail(ctx context.Context, out ItemOutcome, stage string, err error) ItemOutcome {
	r.logger.ErrorContext(ctx, "metadata refresh failed for content",
		"content_id", out.ContentID,
		"external_id", out.ExternalID,
		"stage", stage,
		"error", err,
	)
	out.State = ItemFailed
	out.Err = err
	return out
}

func (r *MetadataRefresher) logStopped(ctx context.Context, report RefreshReport, err error) {
	r.logger.WarnContext(ctx, "metadata refresh stopped early",
		"selected", report.Selected,
		"attempted", report.Attempted,
		"succeeded", report.Succeeded,
		"error", err,
	)
}
