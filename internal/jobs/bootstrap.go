package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"tamasha/internal/config"
	"tamasha/internal/db"
	"tamasha/internal/external"
	"tamasha/internal/metrics"
	"tamasha/internal/queue"
	"tamasha/internal/scheduler"
)

// Bootstrap wires a Runner from configuration: the Postgres pool, the TMDB
// client and pacer, the optional SQS publisher and CloudWatch metrics. The
// returned func closes the pool.
func Bootstrap(ctx context.Context, cfg *config.Config, workerID string, logger *slog.Logger) (*Runner, func(), error) {
	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("creating database pool: %w", err)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("loading AWS SDK config: %w", err)
	}

	settings := SettingsFromConfig(cfg)
	settings.Logger = logger
	settings.Pacer = scheduler.NewIntervalPacer(cfg.TMDB.RequestInterval)
	settings.Fetcher = external.NewTMDBClient(
		&http.Client{Timeout: cfg.TMDB.RequestTimeout},
		external.TMDBClientConfig{
			APIKey:   cfg.TMDB.APIKey,
			BaseURL:  cfg.TMDB.BaseURL,
			Language: cfg.TMDB.Language,
			Logger:   logger,
		},
	)

	// A nil *ContentEventPublisher must not be stored in the interface.
	sqsClient := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
		}
	})
	if publisher := queue.NewContentEventPublisher(sqsClient, cfg.AWS, logger); publisher != nil {
		settings.Publisher = publisher
	}

	var jobMetrics metrics.JobMetrics = metrics.NopJobMetrics{}
	if cfg.Observability.EnableMetrics {
		cwClient := cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
			if cfg.AWS.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
			}
		})
		jobMetrics = metrics.NewCloudWatchJobMetrics(cwClient, cfg.Observability.MetricNamespace, logger)
	}

	if !settings.Refresher.Enabled {
		logger.Warn("TMDB_API_KEY is not set; refresh_metadata will be a no-op")
	}

	runner := &Runner{
		Pool:     pool,
		Build:    NewFactory(settings),
		Metrics:  jobMetrics,
		WorkerID: workerID,
		LockTTL:  cfg.Jobs.LockTTL,
		Logger:   logger,
		Disabled: DisabledTasks(settings),
	}
	return runner, pool.Close, nil
}
