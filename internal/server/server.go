package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sushiva/omni-channel-ai-servicing/internal/evidence"
	"github.com/sushiva/omni-channel-ai-servicing/internal/intent"
	"github.com/sushiva/omni-channel-ai-servicing/internal/otel"
	"github.com/sushiva/omni-channel-ai-servicing/internal/pipeline"
	"github.com/sushiva/omni-channel-ai-servicing/internal/workflow"
)

const (
	defaultTimeout = 60 * time.Second
	processTimeout = 2 * time.Minute
	maxBodyBytes   = 1 << 20
)

// Processor runs one customer request through the servicing pipeline.
type Processor interface {
	Process(ctx context.Context, req pipeline.Request) pipeline.Response
}

// AuditReader is the read side of the audit evidence store.
type AuditReader interface {
	Get(ctx context.Context, id string) (*evidence.Evidence, error)
	List(ctx context.Context, f evidence.Filter) ([]evidence.Evidence, error)
	ListIndex(ctx context.Context, f evidence.Filter) ([]evidence.Index, error)
	Verify(ctx context.Context, id string) (bool, error)
}

// RouteLister reports which intents have a dedicated workflow.
type RouteLister interface {
	Routes() map[intent.Intent]workflow.Name
}

// Server holds all dependencies for the HTTP API.
type Server struct {
	router      *chi.Mux
	processor   Processor
	audit       AuditReader
	routes      RouteLister
	limiter     *RateLimiter
	apiKey      string
	corsOrigins []string
	startTime   time.Time
}

// Option configures the Server.
type Option func(*Server)

// WithRoutes exposes the workflow routing table on GET /v1/intents.
func WithRoutes(r RouteLister) Option {
	return func(s *Server) { s.routes = r }
}

// WithRateLimiter enables per-customer rate limiting on the API.
func WithRateLimiter(rl *RateLimiter) Option {
	return func(s *Server) { s.limiter = rl }
}

// WithCORSOrigins sets allowed CORS origins (e.g. ["*"]).
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) { s.corsOrigins = origins }
}

// NewServer builds a Server. An empty apiKey disables authentication, which
// is meant for local development only.
func NewServer(processor Processor, audit AuditReader, apiKey string, opts ...Option) *Server {
	s := &Server{
		router:      chi.NewRouter(),
		processor:   processor,
		audit:       audit,
		apiKey:      apiKey,
		corsOrigins: []string{"*"},
		startTime:   time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes returns the configured http.Handler (chi router with all middleware and routes).
// POST /v1/process gets a longer deadline than the read routes since it waits
// on the model and the downstream services.
func (s *Server) Routes() http.Handler {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(otel.Middleware())
	r.Use(CORSMiddleware(s.corsOrigins))
	r.Use(CorrelationMiddleware)

	// Unauthenticated
	r.Get("/health", s.handleHealth)
	r.Get("/v1/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.apiKey))
		r.Use(RateLimitMiddleware(s.limiter))

		r.With(middleware.Timeout(processTimeout)).Post("/v1/process", s.handleProcess)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(defaultTimeout))
			r.Get("/v1/intents", s.handleIntents)
			r.Get("/v1/audit", s.handleAuditList)
			r.Get("/v1/audit/{id}", s.handleAuditGet)
			r.Get("/v1/audit/{id}/verify", s.handleAuditVerify)
		})
	})

	return r
}
