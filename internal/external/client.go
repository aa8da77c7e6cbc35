// Package external is the boundary between the Tamasha jobs and third-party
// HTTP APIs. Outbound calls go through BaseClient, which tags the request and
// maps transport and status failures to AppErrors, so provider clients only
// deal with URLs and payloads.
//
// BaseClient sends every request exactly once. The metadata refresher paces
// its own lookups against the provider budget and owes each selected row one
// GET, so neither retries nor a short-circuiting breaker belong at this layer.
package external

import (
	"fmt"
	"net/http"

	"tamasha/internal/types"
)

// BaseClient wraps an *http.Client. Provider clients hold a BaseClient and
// never call http.Client directly.
type BaseClient struct {
	client    *http.Client
	userAgent string
}

// NewBaseClient creates a BaseClient. The httpClient timeout bounds each call.
func NewBaseClient(httpClient *http.Client, userAgent string) *BaseClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &BaseClient{
		client:    httpClient,
		userAgent: userAgent,
	}
}

// Do executes a body-less request once.
//
// Responses with 2xx, 3xx or a 4xx other than 429 are returned as-is and the
// caller closes the body. A 429, a 5xx or a transport failure becomes an
// upstream AppError and no response is returned.
func (c *BaseClient) Do(req *http.Request) (*http.Response, error) {
	c.tag(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamUnavailable, "upstream request failed", err)
	}
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		resp.Body.Close()
		return nil, mapStatus(resp)
	}
	return resp, nil
}

func (c *BaseClient) tag(req *http.Request) {
	ctx := req.Context()
	if id := types.GetRequestID(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
	}
	if run, ok := types.GetTaskRun(ctx); ok {
		req.Header.Set("X-Tamasha-Task", run.Task)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
}

func mapStatus(resp *http.Response) *types.AppError {
	status := resp.StatusCode
	if status == http.StatusTooManyRequests {
		appErr := types.NewAppError(types.ErrCodeUpstreamRateLimited, "upstream rate limit exceeded", nil)
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			return appErr.WithDetails(map[string]any{"retry_after": ra})
		}
		return appErr
	}
	return types.NewAppError(types.ErrCodeUpstreamUnavailable, fmt.Sprintf("upstream returned %d", status), nil).
		WithDetails(map[string]any{"status": status})
}
