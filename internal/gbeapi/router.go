package gbeapi

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"tankarena/internal/gbe"
)

// RouterConfig contains all dependencies needed to construct the HTTP
// router. This struct is designed for dependency injection and testability.
type RouterConfig struct {
	// Registry is the session registry (required).
	Registry *gbe.Registry

	// RateLimiter is an optional pre-configured rate limiter. If nil, a new
	// one is created using RateLimitConfig.
	RateLimiter *IPRateLimiter

	// RateLimitConfig is only used if RateLimiter is nil.
	RateLimitConfig *RateLimitConfig

	// CORSOrigins is an optional list of allowed CORS origins. If nil, uses
	// the default localhost-only origins.
	CORSOrigins []string

	// DisableLogging disables the request logger middleware (useful for
	// benchmarks and tests).
	DisableLogging bool
}

// NewRouter constructs the HTTP router with all middleware and routes.
//
// No listeners are opened, so it is safe to use in tests with
// httptest.NewServer. The only goroutine it can start is the cleanup loop
// of the rate limiter it creates when cfg.RateLimiter is nil.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	if !cfg.DisableLogging {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)

	rateLimiter := cfg.RateLimiter
	if rateLimiter == nil {
		rateLimitCfg := DefaultRateLimitConfig
		if cfg.RateLimitConfig != nil {
			rateLimitCfg = *cfg.RateLimitConfig
		}
		rateLimiter = NewIPRateLimiter(rateLimitCfg)
	}
	r.Use(rateLimiter.Middleware)

	corsOrigins := cfg.CORSOrigins
	if corsOrigins == nil {
		corsOrigins = []string{
			"http://localhost:*",
			"http://127.0.0.1:*",
		}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}))

	h := &routerHandlers{registry: cfg.Registry}

	r.Route("/session", func(r chi.Router) {
		r.Post("/", h.handleCreateSession)
		r.Post("/{id}/join", h.handleJoinSession)
		r.Post("/{id}/ai-input", h.handleAIInput)
	})
	r.Get("/sessions", h.handleListSessions)

	return r
}
