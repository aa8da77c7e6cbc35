// Package config defines the process configuration for the Tamasha jobs and
// the health API. Configuration is loaded once at process initialization
// (Lambda cold start or CLI startup) and is immutable thereafter; job services
// receive only the sub-struct they need and never read the environment.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
package config

import (
	"time"

	"tamasha/internal/types"
)

// SecretString is an alias for types.SecretString.
type SecretString = types.SecretString

// Config is the top-level configuration struct.
type Config struct {
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"tamasha-jobs"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Server        ServerConfig
	Database      DatabaseConfig
	TMDB          TMDBConfig
	Health        HealthConfig
	Jobs          JobsConfig
	AWS           AWSConfig
	Observability ObservabilityConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// ServerConfig holds HTTP server configuration for cmd/api.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8080"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required"`

	MaxConns          int32         `envconfig:"DB_MAX_CONNS" default:"4" validate:"min=1"`
	MinConns          int32         `envconfig:"DB_MIN_CONNS" default:"0" validate:"min=0"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"5s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// TMDBConfig configures the external metadata provider. An empty APIKey
// disables the metadata refresh job without failing startup.
type TMDBConfig struct {
	APIKey          SecretString  `envconfig:"TMDB_API_KEY"`
	BaseURL         string        `envconfig:"TMDB_BASE_URL" default:"https://api.themoviedb.org/3" validate:"required,url"`
	Language        string        `envconfig:"TMDB_LANGUAGE" default:"fa-IR" validate:"required"`
	RequestTimeout  time.Duration `envconfig:"TMDB_REQUEST_TIMEOUT" default:"5s" validate:"gt=0"`
	RequestInterval time.Duration `envconfig:"TMDB_REQUEST_INTERVAL" default:"300ms" validate:"gte=0"`
	BatchSize       int           `envconfig:"TMDB_BATCH_SIZE" default:"50" validate:"min=1,max=50"`
	StalenessWindow time.Duration `envconfig:"TMDB_STALENESS_WINDOW" default:"168h" validate:"gt=0"`
}

// HealthConfig configures the probes behind GET /health.
type HealthConfig struct {
	BackendAPIURL string        `envconfig:"BACKEND_API_URL" validate:"omitempty,url"`
	HealthPath    string        `envconfig:"BACKEND_API_HEALTH_PATH" default:"/health"`
	ProbeTimeout  time.Duration `envconfig:"HEALTH_PROBE_TIMEOUT" default:"2s" validate:"gt=0"`
}

// JobsConfig holds retention windows and the scheduling lock TTL.
type JobsConfig struct {
	LockTTL               time.Duration `envconfig:"JOB_LOCK_TTL" default:"15m" validate:"gt=0"`
	PopularityWindow      time.Duration `envconfig:"POPULARITY_WINDOW" default:"720h" validate:"gt=0"`
	NotificationRetention time.Duration `envconfig:"NOTIFICATION_RETENTION" default:"2160h" validate:"gt=0"`
	JobRetention          time.Duration `envconfig:"JOB_RETENTION" default:"720h" validate:"gt=0"`
	WatchIdleAfter        time.Duration `envconfig:"WATCH_IDLE_AFTER" default:"168h" validate:"gt=0"`
}

// AWSConfig holds AWS resource identifiers and regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"eu-central-1"`

	// ContentEventsQueueURL receives content.metadata_refreshed events.
	// Empty disables publishing.
	ContentEventsQueueURL string `envconfig:"SQS_CONTENT_EVENTS" validate:"omitempty,url"`

	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"Tamasha/Jobs"`
	EnableMetrics   bool   `envconfig:"ENABLE_METRICS" default:"true"`
}

// BuildInfo holds build-time metadata injected via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrSSMResolution indicates a failure when fetching secrets from AWS SSM.
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
