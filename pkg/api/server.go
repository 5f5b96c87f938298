package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/brace/pkg/httputil"
	"github.com/platinummonkey/brace/pkg/journal"
	"github.com/platinummonkey/brace/pkg/observability"
	"github.com/platinummonkey/brace/pkg/plugins"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// EventLister reads recorded lifecycle events
type EventLister interface {
	List(ctx context.Context, filter journal.Filter) ([]journal.Entry, error)
}

// Option configures a Server
type Option func(*Server)

// WithInspector enables GET /api/v1/candidates
func WithInspector(i *plugins.Inspector) Option {
	return func(s *Server) {
		s.inspector = i
	}
}

// WithJournal enables GET /api/v1/events
func WithJournal(events EventLister) Option {
	return func(s *Server) {
		s.events = events
	}
}

// WithHealth enables the /health endpoints
func WithHealth(h *observability.HealthChecker) Option {
	return func(s *Server) {
		s.health = h
	}
}

// WithMetrics instruments requests with m and serves gatherer on /metrics
func WithMetrics(m *observability.HTTPMetrics, gatherer prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metrics = m
		s.gatherer = gatherer
	}
}

// WithRateLimit throttles the mutating routes per client
func WithRateLimit(rl *httputil.RateLimiter) Option {
	return func(s *Server) {
		s.limiter = rl
	}
}

// WithLogger sets the request logger
func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// Server represents the admin API server
type Server struct {
	registry  *plugins.Registry
	inspector *plugins.Inspector
	events    EventLister
	health    *observability.HealthChecker
	metrics   *observability.HTTPMetrics
	gatherer  prometheus.Gatherer
	limiter   *httputil.RateLimiter
	log       logrus.FieldLogger
	router    *mux.Router
}

// NewServer creates an admin API server for registry
func NewServer(registry *plugins.Registry, opts ...Option) *Server {
	s := &Server{
		registry: registry,
		log:      logrus.StandardLogger(),
		router:   mux.NewRouter(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	if s.metrics != nil {
		s.router.Use(s.metrics.Middleware)
	}

	v1 := s.router.PathPrefix("/api/v1").Subrouter()

	// Plugin routes
	v1.HandleFunc("/plugins", s.listPlugins).Methods("GET")
	v1.Handle("/plugins/scan", s.throttle(s.scan)).Methods("POST")
	v1.HandleFunc("/plugins/{id}", s.getPlugin).Methods("GET")
	v1.Handle("/plugins/{id}/{action:init|activate|uninstall}", s.throttle(s.lifecycle)).Methods("POST")

	if s.inspector != nil {
		v1.HandleFunc("/candidates", s.listCandidates).Methods("GET")
	}
	if s.events != nil {
		v1.HandleFunc("/events", s.listEvents).Methods("GET")
	}

	if s.health != nil {
		s.router.HandleFunc("/health/live", s.health.Liveness).Methods("GET")
		s.router.HandleFunc("/health/ready", s.health.Readiness).Methods("GET")
	}
	if s.gatherer != nil {
		s.router.Handle("/metrics", observability.MetricsHandler(s.gatherer)).Methods("GET")
	}
}

func (s *Server) throttle(h http.HandlerFunc) http.Handler {
	if s.limiter == nil {
		return h
	}
	return s.limiter.Middleware(h)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the server wrapped in request IDs, logging, panic recovery and tracing
func (s *Server) Handler() http.Handler {
	chain := httputil.Chain(
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(s.log),
		httputil.RecoveryMiddleware(s.log),
	)
	return otelhttp.NewHandler(chain(s), "brace-admin")
}
