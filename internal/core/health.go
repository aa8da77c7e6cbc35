package core

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

// defaultProbeTimeout applies when the config leaves ProbeTimeout unset.
const defaultProbeTimeout = 2 * time.Second

// Check values and aggregate statuses of the health report.
const (
	CheckOK    = "ok"
	CheckError = "error"

	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
)

// HealthProbe checks one dependency.
type HealthProbe interface {
	// Name is the key of the probe in the report's checks map.
	Name() string
	// Check returns nil when the dependency is usable. It must honour ctx.
	Check(ctx context.Context) error
}

// HealthReport is the body of GET /health:
//
//	{"status":"degraded","checks":{"database":"ok","backendApi":"error"}}
type HealthReport struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// HandleHealth runs every probe concurrently, each under its own timeout and
// panic guard. A failing probe marks only its own check; the response is 200
// when every check is ok and 503 otherwise. Nothing is retried.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.CheckHealth(r.Context())

	for name, status := range report.Checks {
		if status != CheckOK {
			s.Logger.WarnContext(r.Context(), "health check failed", "check", name)
		}
	}

	status := http.StatusOK
	if report.Status != StatusHealthy {
		status = http.StatusServiceUnavailable
	}
	JSON(w, r, status, report)
}

// CheckHealth runs the probes and aggregates their results.
func (s *Server) CheckHealth(ctx context.Context) HealthReport {
	timeout := s.probeTimeout()
	errs := make([]error, len(s.HealthProbes))

	// Probe failures are recorded, never returned, so one failure does not
	// cancel its siblings.
	var g errgroup.Group
	for i, probe := range s.HealthProbes {
		g.Go(func() error {
			errs[i] = runProbe(ctx, probe, timeout)
			return nil
		})
	}
	_ = g.Wait()

	report := HealthReport{
		Status: StatusHealthy,
		Checks: make(map[string]string, len(s.HealthProbes)),
	}
	for i, probe := range s.HealthProbes {
		if errs[i] != nil {
			s.Logger.DebugContext(ctx, "probe error", "check", probe.Name(), "error", errs[i])
			report.Checks[probe.Name()] = CheckError
			report.Status = StatusDegraded
			continue
		}
		report.Checks[probe.Name()] = CheckOK
	}
	return report
}

func runProbe(ctx context.Context, probe HealthProbe, timeout time.Duration) (err error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	defer func() {
		if rvr := recover(); rvr != nil {
			err = fmt.Errorf("probe %s panicked: %v", probe.Name(), rvr)
		}
	}()
	return probe.Check(ctx)
}

func (s *Server) probeTimeout() time.Duration {
	if s.Config != nil && s.Config.Health.ProbeTimeout > 0 {
		return s.Config.Health.ProbeTimeout
	}
	return defaultProbeTimeout
}
