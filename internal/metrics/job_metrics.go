// Package metrics emits per-invocation job metrics to CloudWatch.
package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"tamasha/internal/types"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// JobResult is what one task invocation reports.
type JobResult struct {
	Task      string
	Attempted int
	Succeeded int
	Duration  time.Duration
	Failed    bool
	Skipped   bool
}

// JobMetrics records the outcome of a job invocation. Implementations never
// fail the job; emission errors are logged.
type JobMetrics interface {
	RecordJob(ctx context.Context, r JobResult)
}

var _ JobMetrics = (*CloudWatchJobMetrics)(nil)
var _ JobMetrics = NopJobMetrics{}

// CloudWatchJobMetrics publishes one PutMetricData call per invocation,
// every datum carrying the Task dimension.
//
// Metrics emitted:
//   - JobItemsAttempted, JobItemsSucceeded (Count)
//   - JobDuration (Milliseconds)
//   - JobFailure, JobSkipped (Count, 0 or 1)
type CloudWatchJobMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

// NewCloudWatchJobMetrics creates a CloudWatchJobMetrics. An empty namespace
// falls back to types.MetricNamespace.
func NewCloudWatchJobMetrics(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchJobMetrics {
	if namespace == "" {
		namespace = types.MetricNamespace
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchJobMetrics{client: client, namespace: namespace, logger: logger}
}

// RecordJob implements JobMetrics.
func (m *CloudWatchJobMetrics) RecordJob(ctx context.Context, r JobResult) {
	dims := []cwtypes.Dimension{{
		Name:  aws.String(types.DimTask),
		Value: aws.String(r.Task),
	}}
	datum := func(name string, value float64, unit cwtypes.StandardUnit) cwtypes.MetricDatum {
		return cwtypes.MetricDatum{
			MetricName: aws.String(name),
			Value:      aws.Float64(value),
			Unit:       unit,
			Dimensions: dims,
		}
	}

	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			datum(types.MetricJobItemsAttempted, float64(r.Attempted), cwtypes.StandardUnitCount),
			datum(types.MetricJobItemsSucceeded, float64(r.Succeeded), cwtypes.StandardUnitCount),
			datum(types.MetricJobDuration, float64(r.Duration.Milliseconds()), cwtypes.StandardUnitMilliseconds),
			datum(types.MetricJobFailure, boolValue(r.Failed), cwtypes.StandardUnitCount),
			datum(types.MetricJobSkipped, boolValue(r.Skipped), cwtypes.StandardUnitCount),
		},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.ErrorContext(ctx, "failed to record job metrics",
			"error", err.Error(),
			"task", r.Task,
		)
	}
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// NopJobMetrics discards everything. Used locally and when metrics are
// disabled.
type NopJobMetrics struct{}

// RecordJob implements JobMetrics.
func (NopJobMetrics) RecordJob(context.Context, JobResult) {}
