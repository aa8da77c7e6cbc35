package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Probe names as they appear in the health report.
const (
	ProbeDatabase   = "database"
	ProbeBackendAPI = "backendApi"
)

// Pinger is satisfied by *db.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// DatabaseProbe runs SELECT 1 through the pool.
type DatabaseProbe struct {
	DB Pinger
}

func (p DatabaseProbe) Name() string { return ProbeDatabase }

func (p DatabaseProbe) Check(ctx context.Context) error {
	if p.DB == nil {
		return errors.New("database not configured")
	}
	return p.DB.Ping(ctx)
}

// HTTPProbe issues one GET and treats any 2xx as healthy.
type HTTPProbe struct {
	ProbeName string
	URL       string
	Client    *http.Client
}

// NewBackendAPIProbe probes baseURL joined with healthPath. An empty baseURL
// yields a probe that always fails.
func NewBackendAPIProbe(client *http.Client, baseURL, healthPath string) HTTPProbe {
	url := ""
	if baseURL != "" {
		url = strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(healthPath, "/")
	}
	return HTTPProbe{ProbeName: ProbeBackendAPI, URL: url, Client: client}
}

func (p HTTPProbe) Name() string { return p.ProbeName }

func (p HTTPProbe) Check(ctx context.Context) error {
	if p.URL == "" {
		return errors.New("probe url not configured")
	}
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s returned status %d", p.URL, resp.StatusCode)
	}
	return nil
}
