// Package server provides the HTTP API server, middleware, and handlers for Cloak.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	cloakotel "github.com/dativo-io/cloak/internal/otel"
	"github.com/dativo-io/cloak/internal/pipeline"
)

const (
	defaultTimeout = 60 * time.Second

	// DefaultMaxBodyBytes caps the size of an /analyze request body.
	DefaultMaxBodyBytes int64 = 1 << 20

	readyTimeout = 2 * time.Second
)

// Analyzer runs the analysis pipeline. *pipeline.Pipeline satisfies it.
type Analyzer interface {
	Analyze(ctx context.Context, text string) (*pipeline.Result, error)
	Ready(ctx context.Context) error
}

// Server holds all dependencies for the HTTP API.
type Server struct {
	router       *chi.Mux
	analyzer     Analyzer
	provider     string
	model        string
	corsOrigins  []string
	limiter      *RateLimiter
	maxBodyBytes int64
	startTime    time.Time
}

// Option configures the Server.
type Option func(*Server)

// WithCORSOrigins sets allowed CORS origins (["*"] allows any).
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) { s.corsOrigins = origins }
}

// WithModel records the generation provider and model reported by /health.
func WithModel(provider, model string) Option {
	return func(s *Server) {
		s.provider = provider
		s.model = model
	}
}

// WithRateLimit limits /analyze to globalRPM requests per minute overall and
// perClientRPM per client address. Zero disables limiting.
func WithRateLimit(globalRPM, perClientRPM int) Option {
	return func(s *Server) {
		if globalRPM <= 0 && perClientRPM <= 0 {
			s.limiter = nil
			return
		}
		s.limiter = NewRateLimiter(globalRPM, perClientRPM)
	}
}

// WithMaxBodyBytes overrides DefaultMaxBodyBytes.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBodyBytes = n
		}
	}
}

// NewServer builds a Server around analyzer.
func NewServer(analyzer Analyzer, opts ...Option) *Server {
	s := &Server{
		router:       chi.NewRouter(),
		analyzer:     analyzer,
		corsOrigins:  []string{"*"},
		maxBodyBytes: DefaultMaxBodyBytes,
		startTime:    time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes returns the configured http.Handler (chi router with all middleware and routes).
func (s *Server) Routes() http.Handler {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cloakotel.Middleware())
	r.Use(CORSMiddleware(s.corsOrigins))

	r.Get("/health", s.handleHealth)
	r.Get("/v1/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(RateLimitMiddleware(s.limiter))
		r.Use(middleware.Timeout(defaultTimeout))
		r.Post("/analyze", s.handleAnalyze)
		r.Post("/v1/analyze", s.handleAnalyze)
	})

	return r
}
