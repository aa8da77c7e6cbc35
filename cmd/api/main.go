// Package main is the entry point for the Tamasha health API.
//
// It serves GET /health, which probes the database and the backend API and
// reports 200 healthy or 503 degraded. Graceful shutdown is handled via
// SIGINT and SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tamasha/internal/config"
	"tamasha/internal/core"
	"tamasha/internal/db"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	provider := config.ProviderForEnvironment(os.Getenv("APP_ENV"), os.Getenv("AWS_REGION"))
	cfg, err := config.LoadConfig(provider)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("tamasha health API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)

	// The pool dials lazily so an unreachable database shows up as a
	// degraded check instead of a crash loop.
	pool, err := db.OpenPool(context.Background(), cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database pool: %w", err)
	}
	defer pool.Close()

	srv, err := newServer(cfg, pool, logger)
	if err != nil {
		return err
	}

	return runHTTPServer(srv, cfg, logger)
}

// newServer builds the core server with the database and backend API probes.
func newServer(cfg *config.Config, pinger core.Pinger, logger *slog.Logger) (*core.Server, error) {
	probeClient := &http.Client{Timeout: cfg.Health.ProbeTimeout}

	srv, err := core.NewServer(cfg, logger,
		core.DatabaseProbe{DB: pinger},
		core.NewBackendAPIProbe(probeClient, cfg.Health.BackendAPIURL, cfg.Health.HealthPath),
	)
	if err != nil {
		return nil, fmt.Errorf("creating server: %w", err)
	}
	srv.MountRoutes()
	return srv, nil
}

// runHTTPServer serves until SIGINT/SIGTERM, then drains in-flight requests.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
		return fmt.Errorf("shutting down: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
