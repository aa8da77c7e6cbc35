package core

import (
	"context"
	"net/http"
	"time"

	"tamasha/internal/types"
)

// defaultRequestTimeout bounds every request. Probes have their own shorter
// deadlines inside it.
const defaultRequestTimeout = 10 * time.Second

var defaultRedactedHeaders = []string{
	"Authorization",
	"Cookie",
}

// MountRoutes registers the middleware chain and routes.
//
// Middleware order:
//  1. Recoverer: outermost so every panic becomes a JSON 500.
//  2. ContextTimeout
//  3. RequestID: correlation id for logs and the response header.
//  4. RequestLogger
func (s *Server) MountRoutes() {
	s.router.Use(s.Recoverer)
	s.router.Use(ContextTimeoutMiddleware(defaultRequestTimeout))
	s.router.Use(RequestIDMiddleware)
	s.router.Use(RequestLogger(s.Logger, defaultRedactedHeaders))

	s.router.Get("/health", s.HandleHealth)
	s.router.Get("/version", s.HandleVersion)

	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		Error(w, r, types.NewAppError(types.ErrCodeNotFoundRoute, "route not found", nil))
	})
}

// ContextTimeoutMiddleware sets a deadline on the request context.
func ContextTimeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// versionResponse reports the ldflags build metadata.
type versionResponse struct {
	Service   string `json:"service"`
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

// HandleVersion serves GET /version.
func (s *Server) HandleVersion(w http.ResponseWriter, r *http.Request) {
	JSON(w, r, http.StatusOK, versionResponse{
		Service:   s.Config.Service,
		Version:   s.Config.Build.Version,
		Commit:    s.Config.Build.Commit,
		BuildTime: s.Config.Build.BuildTime,
	})
}
