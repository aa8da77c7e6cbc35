package jobs

import (
	"log/slog"

	"tamasha/internal/config"
	"tamasha/internal/db"
	"tamasha/internal/scheduler"
)

// Settings are the process-level collaborators shared by every invocation.
// The pacer lives here so a warm Lambda keeps its request budget across
// invocations.
type Settings struct {
	Fetcher      scheduler.RatingFetcher
	Pacer        scheduler.Pacer
	Publisher    scheduler.RefreshPublisher
	Refresher    scheduler.RefresherConfig
	Popularity   scheduler.PopularityConfig
	Housekeeping scheduler.HousekeepingConfig
	Logger       *slog.Logger
}

// SettingsFromConfig derives the per-job config structs. Fetcher, Pacer and
// Publisher are left for the caller to wire.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		Refresher: scheduler.RefresherConfig{
			Enabled:         !cfg.TMDB.APIKey.IsZero(),
			BatchSize:       cfg.TMDB.BatchSize,
			StalenessWindow: cfg.TMDB.StalenessWindow,
			RequestTimeout:  cfg.TMDB.RequestTimeout,
		},
		Popularity: scheduler.PopularityConfig{
			Window: cfg.Jobs.PopularityWindow,
		},
		Housekeeping: scheduler.HousekeepingConfig{
			NotificationRetention: cfg.Jobs.NotificationRetention,
			JobRetention:          cfg.Jobs.JobRetention,
			WatchIdleAfter:        cfg.Jobs.WatchIdleAfter,
		},
	}
}

// refreshDisabledReason is reported for refresh_metadata without a TMDB key.
const refreshDisabledReason = "metadata refresh disabled"

// DisabledTasks lists the tasks the settings switch off, with the reason the
// runner reports for each.
func DisabledTasks(s Settings) map[scheduler.TaskType]string {
	disabled := make(map[scheduler.TaskType]string)
	if !s.Refresher.Enabled {
		disabled[scheduler.TaskRefreshMetadata] = refreshDisabledReason
	}
	return disabled
}

// NewFactory returns a Factory binding the repositories to each leased
// connection.
func NewFactory(s Settings) Factory {
	pacer := s.Pacer
	if pacer == nil {
		pacer = scheduler.NoopPacer{}
	}
	return func(conn db.DBTX) Services {
		analytics := db.NewAnalyticsRepository(conn)
		return Services{
			Aggregator: scheduler.NewDailyViewAggregator(analytics, s.Logger),
			Popularity: scheduler.NewPopularityScorer(analytics, s.Popularity, s.Logger),
			Refresher: scheduler.NewMetadataRefresher(
				db.NewContentRepository(conn),
				s.Fetcher,
				pacer,
				s.Publisher,
				s.Refresher,
				s.Logger,
			),
			Housekeeping: scheduler.NewHousekeepingSweeper(db.NewHousekeepingRepository(conn), s.Housekeeping, s.Logger),
			JobLock:      db.NewJobLockRepository(conn),
			JobHistory:   db.NewJobHistoryRepository(conn),
		}
	}
}
