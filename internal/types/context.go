package types

import "context"

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	taskRunKey   contextKey = "task_run"
)

// WithRequestID stores the request ID in the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// TaskRun identifies one scheduled job invocation. It travels in the context
// so outbound clients can tag requests and log lines with the run.
type TaskRun struct {
	Task     string
	WorkerID string
}

// WithTaskRun stores the TaskRun in the context.
func WithTaskRun(ctx context.Context, run TaskRun) context.Context {
	return context.WithValue(ctx, taskRunKey, run)
}

// GetTaskRun retrieves the TaskRun from the context.
func GetTaskRun(ctx context.Context) (TaskRun, bool) {
	run, ok := ctx.Value(taskRunKey).(TaskRun)
	return run, ok
}
