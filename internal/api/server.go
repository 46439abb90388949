package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/docscribe/internal/auth"
	"github.com/mattjoyce/docscribe/internal/events"
	"github.com/mattjoyce/docscribe/internal/metrics"
	"github.com/mattjoyce/docscribe/internal/queue"
	"github.com/mattjoyce/docscribe/internal/webhook"
)

// JobStore is the queue surface used by the jobs API.
type JobStore interface {
	GetJobByID(ctx context.Context, jobID string) (*queue.JobResult, error)
	Dequeue(ctx context.Context, kinds ...string) (*queue.Job, error)
	Complete(ctx context.Context, jobID, claimToken string, status queue.Status, result []byte, lastError *string) error
	Depth(ctx context.Context) (int, error)
}

// Webhooks is the ingress router mounted at /webhooks.
type Webhooks interface {
	Routes() http.Handler
	SourceNames() []string
}

// Config holds API server configuration
type Config struct {
	Listen string
	// APIKey is the legacy single bearer token (admin/full access).
	APIKey string
	// Tokens is an optional list of scoped bearer tokens.
	Tokens []auth.TokenConfig
	// Prometheus serves /metrics/prometheus.
	Prometheus      bool
	ShutdownTimeout time.Duration
}

// Server represents the HTTP API server
type Server struct {
	config    Config
	jobs      JobStore
	metrics   *metrics.Collector
	webhooks  Webhooks
	events    *events.Hub
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// New creates a new API server instance. webhooks may be nil when no
// sources are configured.
func New(config Config, jobs JobStore, collector *metrics.Collector, webhooks Webhooks, hub *events.Hub, logger *slog.Logger) *Server {
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = 5 * time.Second
	}
	if hub == nil {
		hub = events.NewHub(256)
	}
	return &Server{
		config:    config,
		jobs:      jobs,
		metrics:   collector,
		webhooks:  webhooks,
		events:    hub,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Start starts the HTTP server (blocking)
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:        s.config.Listen,
		Handler:     s.Handler(),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	s.logger.Info("API server starting", "listen", s.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// Handler returns the routed handler with the full middleware chain.
//
// Recoverer sits outside the metrics collector so that a handler panic is
// observed as a failure before it is turned into a 500. CapturePeer runs
// ahead of RealIP so webhook rate limits key on the socket address.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(s.metrics.Middleware)
	r.Use(middleware.RequestID)
	r.Use(webhook.CapturePeer)
	r.Use(middleware.RealIP)

	// Unauthenticated ops endpoint.
	r.Get("/healthz", s.handleHealthz)

	// Signed by the provider, not by bearer token.
	if s.webhooks != nil {
		r.Mount("/webhooks", s.webhooks.Routes())
	}

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.With(s.requireScopes(auth.ScopeMetrics)).Get("/metrics", s.handleMetrics)
		if s.config.Prometheus {
			r.With(s.requireScopes(auth.ScopeMetrics)).Method(http.MethodGet, "/metrics/prometheus", s.metrics.Handler())
		}

		r.With(s.requireScopes(auth.ScopeJobsRead)).Get("/jobs/{jobID}", s.handleGetJob)
		r.With(s.requireScopes(auth.ScopeJobsWrite)).Post("/jobs/claim", s.handleClaimJob)
		r.With(s.requireScopes(auth.ScopeJobsWrite)).Post("/jobs/{jobID}/complete", s.handleCompleteJob)

		r.With(s.requireScopes(auth.ScopeEvents)).Get("/events", s.handleEvents)
	})

	return r
}

// respondJSON writes data as a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
