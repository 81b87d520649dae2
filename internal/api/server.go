// Package api wires the HTTP surface of the tracking service: catalog CRUD,
// position lookups, conjunction sweeps, TLE imports, cache stats, and the SSE
// position stream.
package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Al3xBlack0ut/satelity/internal/auth"
	"github.com/Al3xBlack0ut/satelity/internal/catalog"
	"github.com/Al3xBlack0ut/satelity/internal/conjunction"
	"github.com/Al3xBlack0ut/satelity/internal/health"
	"github.com/Al3xBlack0ut/satelity/internal/metrics"
	"github.com/Al3xBlack0ut/satelity/internal/orbit"
	"github.com/Al3xBlack0ut/satelity/internal/registry"
	"github.com/Al3xBlack0ut/satelity/internal/stream"
	"github.com/Al3xBlack0ut/satelity/internal/trackcache"
)

// Deps bundles the components the HTTP handlers call into.
type Deps struct {
	Store    *registry.Store
	Cache    *trackcache.TrackCache
	Detector *conjunction.Detector
	Prop     orbit.Propagator
	Importer *catalog.Importer
	Stream   *stream.Handler
	Static   http.Handler // web UI root, optional
}

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	deps       Deps
	logger     *slog.Logger
}

// NewServer creates a configured HTTP server.
func NewServer(addr string, logger *slog.Logger, authCfg auth.Config, deps Deps) *Server {
	s := &Server{deps: deps, logger: logger}

	mux := http.NewServeMux()

	// Register routes.
	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.HandleFunc("GET /readyz", health.Readyz)
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("POST /api/v1/orbits", s.handleCreateOrbit)
	mux.HandleFunc("GET /api/v1/orbits", s.handleListOrbits)
	mux.HandleFunc("GET /api/v1/orbits/{id}", s.handleGetOrbit)
	mux.HandleFunc("PUT /api/v1/orbits/{id}", s.handleUpdateOrbit)
	mux.HandleFunc("DELETE /api/v1/orbits/{id}", s.handleDeleteOrbit)

	mux.HandleFunc("POST /api/v1/satellites", s.handleCreateSatellite)
	mux.HandleFunc("GET /api/v1/satellites", s.handleListSatellites)
	mux.HandleFunc("GET /api/v1/satellites/{id}", s.handleGetSatellite)
	mux.HandleFunc("PUT /api/v1/satellites/{id}", s.handleUpdateSatellite)
	mux.HandleFunc("DELETE /api/v1/satellites/{id}", s.handleDeleteSatellite)
	mux.HandleFunc("GET /api/v1/satellites/{id}/position", s.handlePosition)

	mux.HandleFunc("GET /api/v1/conjunctions", s.handleConjunctions)
	mux.HandleFunc("POST /api/v1/catalog/import", s.handleCatalogImport)
	mux.HandleFunc("GET /api/v1/cache/stats", s.handleCacheStats)

	if deps.Stream != nil {
		mux.HandleFunc("GET /api/v1/stream/positions", deps.Stream.HandlePositions)
	}
	if deps.Static != nil {
		mux.Handle("GET /", deps.Static)
	}

	// Build middleware chain: metrics -> logging -> auth -> mux.
	var handler http.Handler = mux
	handler = auth.Middleware(authCfg)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = metrics.Middleware(handler)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// HTTPServer returns the underlying *http.Server for external control (e.g. shutdown).
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// probePath returns true for health/readiness probe paths that should not log at INFO.
func probePath(path string) bool {
	return path == "/healthz" || path == "/readyz"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(sr, r)

			duration := time.Since(start)
			level := slog.LevelInfo
			if probePath(r.URL.Path) {
				level = slog.LevelDebug
			}

			logger.Log(r.Context(), level, "request",
				"component", "api",
				"method", r.Method,
				"path", r.URL.Path,
				"status", strconv.Itoa(sr.statusCode),
				"duration_ms", duration.Milliseconds(),
				"remote_ip", r.RemoteAddr,
			)
		})
	}
}
