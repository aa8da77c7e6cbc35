// Package core provides the HTTP chassis for the Tamasha jobs: a chi router
// with request correlation, panic recovery and request logging, serving the
// health report.
package core

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"tamasha/internal/config"
)

// Server holds the dependencies of the HTTP surface so tests can inject
// fakes.
type Server struct {
	Config *config.Config
	Logger *slog.Logger

	// HealthProbes run on every GET /health.
	HealthProbes []HealthProbe

	router *chi.Mux
}

// NewServer validates its dependencies and prepares an empty router. The
// caller mounts routes via MountRoutes.
func NewServer(cfg *config.Config, logger *slog.Logger, probes ...HealthProbe) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config:       cfg,
		Logger:       logger,
		HealthProbes: probes,
		router:       chi.NewRouter(),
	}, nil
}

// Handler returns the router as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router exposes the chi.Mux for tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}
