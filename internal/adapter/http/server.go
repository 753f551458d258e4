package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/community-events/internal/domain"
	"github.com/couchcryptid/community-events/internal/entity"
	"github.com/couchcryptid/community-events/internal/review"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// ReadinessFunc adapts a function to ReadinessChecker.
type ReadinessFunc func(ctx context.Context) error

func (f ReadinessFunc) CheckReadiness(ctx context.Context) error { return f(ctx) }

// Library is the read side of an entity store.
type Library[T any] interface {
	List() []T
	Search(query string) []T
	Statistics() entity.Stats
}

// ContextBuilder builds the review context of a pending event.
type ContextBuilder interface {
	PendingContext(id string) (review.EventContext, error)
}

// Backend bundles what the read API serves.
type Backend struct {
	Ready      ReadinessChecker
	Locations  Library[domain.Location]
	Organizers Library[domain.Organizer]
	Review     ContextBuilder

	// Gatherer backs /metrics. Nil means the default Prometheus registry.
	Gatherer prometheus.Gatherer
}

// Server exposes health, readiness, metrics and the read-only desk API.
type Server struct {
	httpServer *http.Server
	backend    Backend
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics and the
// /api routes.
func NewServer(addr string, backend Backend, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		backend: backend,
		logger:  logger,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", handleReady(backend.Ready))
	mux.Handle("GET /metrics", metricsHandler(backend.Gatherer))
	mux.HandleFunc("GET /api/locations", handleLibrary(backend.Locations))
	mux.HandleFunc("GET /api/organizers", handleLibrary(backend.Organizers))
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /api/pending/{id}/context", s.handleContext)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleReady(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.CheckReadiness(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

// handleLibrary lists a library, or searches it when q is given.
func handleLibrary[T any](lib Library[T]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var recs []T
		if q := r.URL.Query().Get("q"); q != "" {
			recs = lib.Search(q)
		} else {
			recs = lib.List()
		}
		if recs == nil {
			recs = []T{}
		}
		writeJSON(w, http.StatusOK, recs)
	}
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]entity.Stats{
		"locations":  s.backend.Locations.Statistics(),
		"organizers": s.backend.Organizers.Statistics(),
	})
}

func (s *Server) handleContext(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	c, err := s.backend.Review.PendingContext(id)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case err != nil:
		s.logger.Error("build review context", "id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	default:
		writeJSON(w, http.StatusOK, c)
	}
}

func metricsHandler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
