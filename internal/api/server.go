// SPDX-License-Identifier: MIT

// Package api provides the HTTP server for buildmetad.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/forgeci/buildmetad/internal/buildmeta"
	"github.com/forgeci/buildmetad/internal/config"
	"github.com/forgeci/buildmetad/internal/journal"
)

// HistoryReader returns the recorded resolutions for a build, oldest
// first. Implemented by journal.Journal.
type HistoryReader interface {
	History(ctx context.Context, buildID string) ([]journal.Entry, error)
}

// ReadinessCheck is an additional dependency probe run by /readyz.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Server is the HTTP API server for buildmetad.
type Server struct {
	cfg       config.AppConfig
	store     *buildmeta.Store
	service   *buildmeta.Service
	history   HistoryReader
	readiness []ReadinessCheck
	startTime time.Time
}

// ServerOption configures optional Server dependencies.
type ServerOption func(*Server)

// WithHistory wires the resolution journal for the history endpoint.
// Without it the endpoint answers 404.
func WithHistory(h HistoryReader) ServerOption {
	return func(s *Server) { s.history = h }
}

// WithReadinessCheck registers an extra probe for /readyz, for example
// the Redis settings cache.
func WithReadinessCheck(name string, check func(ctx context.Context) error) ServerOption {
	return func(s *Server) {
		s.readiness = append(s.readiness, ReadinessCheck{Name: name, Check: check})
	}
}

// New creates a Server with the given configuration and dependencies.
func New(cfg config.AppConfig, store *buildmeta.Store, service *buildmeta.Service, opts ...ServerOption) *Server {
	s := &Server{
		cfg:       cfg,
		store:     store,
		service:   service,
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the chi router with the full middleware stack applied.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Use(recoverer)
	r.Use(requestID)
	r.Use(metricsMiddleware)
	if s.cfg.Tracing.Enabled {
		r.Use(otelMiddleware(s.cfg.LogService))
	}
	r.Use(requestLogger)
	if s.cfg.RateLimitRequests > 0 {
		r.Use(rateLimit(s.cfg.RateLimitRequests, s.cfg.RateLimitWindow))
	}

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/builds/{buildID}", func(r chi.Router) {
			r.Put("/metadata", s.handleUpsertMetadata)
			r.Get("/metadata", s.handleGetMetadata)
			r.Post("/timeout", s.handleResolveTimeout)
			r.Get("/timeout/history", s.handleTimeoutHistory)
			r.Patch("/status", s.handleSetStatus)
		})
		r.Get("/projects/{projectID}/builds", s.handleListBuilds)
	})

	return r
}

// HTTPServer returns a configured http.Server listening on the
// configured address.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
