package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/brojonat/sfviz/service/config"
	"github.com/brojonat/sfviz/service/metrics"
	"github.com/brojonat/sfviz/service/subgraph"
	"github.com/brojonat/sfviz/service/temporal"
)

// Server is the HTTP API for flow diagrams and snapshot watches.
type Server struct {
	addr         string
	cfg          *config.Config
	fetcher      subgraph.Fetcher
	store        WatchStore
	scheduler    temporal.Scheduler
	ssePublisher *SSEPublisher
	metrics      *metrics.Metrics
	logger       *slog.Logger
	server       *http.Server
}

// New creates a new HTTP server with the given dependencies.
// The fetcher serves diagram requests and is required.
// The store and scheduler are optional - watch endpoints are only mounted when
// both are set. Pass untyped nils rather than nil pointers.
// The ssePublisher is optional - if nil, SSE endpoints won't be available.
// The metrics is optional - if nil, no metrics are recorded or exposed.
func New(addr string, cfg *config.Config, fetcher subgraph.Fetcher, store WatchStore, scheduler temporal.Scheduler, ssePublisher *SSEPublisher, m *metrics.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		addr:         addr,
		cfg:          cfg,
		fetcher:      fetcher,
		store:        store,
		scheduler:    scheduler,
		ssePublisher: ssePublisher,
		metrics:      m,
		logger:       logger,
	}
}

// Handler builds the routed handler, CORS included.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Diagram routes
	s.handle(mux, "GET /api/v1/graph", "/api/v1/graph", handleGraph(s.fetcher, s.cfg, s.metrics, s.logger))
	s.handle(mux, "GET /api/v1/networks", "/api/v1/networks", handleListNetworks())

	// Watch routes
	if s.store != nil && s.scheduler != nil {
		s.handle(mux, "POST /api/v1/watches", "/api/v1/watches", handleCreateWatch(s.store, s.scheduler, s.cfg, s.logger))
		s.handle(mux, "GET /api/v1/watches", "/api/v1/watches", handleListWatches(s.store, s.logger))
		s.handle(mux, "GET /api/v1/watches/{id}", "/api/v1/watches/{id}", handleGetWatch(s.store, s.logger))
		s.handle(mux, "DELETE /api/v1/watches/{id}", "/api/v1/watches/{id}", handleDeleteWatch(s.store, s.scheduler, s.logger))
		s.handle(mux, "GET /api/v1/watches/{id}/snapshots", "/api/v1/watches/{id}/snapshots", handleListSnapshots(s.store, s.logger))
		s.handle(mux, "GET /api/v1/watches/{id}/snapshots/latest", "/api/v1/watches/{id}/snapshots/latest", handleLatestSnapshot(s.store, s.logger))
	} else {
		s.logger.Warn("watch store or scheduler not configured, watch endpoints disabled")
	}

	// SSE streaming endpoints (if SSE publisher is configured)
	if s.ssePublisher != nil {
		s.handle(mux, "GET /api/v1/stream/snapshots/{id}", "/api/v1/stream/snapshots/{id}", handleStreamSnapshots(s.ssePublisher, s.metrics, s.logger))
		s.handle(mux, "GET /api/v1/stream/snapshots", "/api/v1/stream/snapshots", handleStreamSnapshots(s.ssePublisher, s.metrics, s.logger))
	} else {
		s.logger.Warn("SSE publisher not configured, streaming endpoints disabled")
	}

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	return corsMiddleware(mux)
}

func (s *Server) handle(mux *http.ServeMux, pattern, name string, h http.Handler) {
	mux.Handle(pattern, metrics.HTTPMetricsMiddleware(s.metrics, name)(h))
}

// Start starts the HTTP server and blocks until it is shut down.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	// Close SSE publisher first (disconnects all clients)
	if s.ssePublisher != nil {
		s.ssePublisher.Close()
	}

	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// corsMiddleware adds CORS headers to all responses and answers preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
