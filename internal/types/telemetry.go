package types

// Telemetry metric names for CloudWatch.
// All components MUST use these constants.
const (
	// Metric Names
	MetricJobItemsAttempted = "JobItemsAttempted"
	MetricJobItemsSucceeded = "JobItemsSucceeded"
	MetricJobDuration       = "JobDuration"
	MetricJobFailure        = "JobFailure"
	MetricJobSkipped        = "JobSkipped"

	// Dimension Keys
	DimTask = "Task"

	// MetricNamespace is the default CloudWatch namespace.
	MetricNamespace = "Tamasha/Jobs"
)
