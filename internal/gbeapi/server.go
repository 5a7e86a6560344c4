package gbeapi

import (
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"tankarena/internal/gbe"
)

// Server is the GBE's HTTP API combined with the WebSocket duplex-stream
// endpoint.
type Server struct {
	registry    *gbe.Registry
	router      *chi.Mux
	hub         *wsHub
	rateLimiter *IPRateLimiter
}

// NewServer creates a new API server with default production configuration.
//
// The rate limiter's cleanup goroutine starts here; the gauge-reporting
// loop and the listener start only in Start(), so the router can be
// exercised directly in tests via httptest.NewServer(server.Router()).
func NewServer(registry *gbe.Registry) *Server {
	s := &Server{
		registry: registry,
		hub:      newWSHub(),
	}
	gbe.TickObserver = RecordTick
	s.rateLimiter = NewIPRateLimiter(DefaultRateLimitConfig)
	s.router = NewRouter(RouterConfig{
		Registry:    registry,
		RateLimiter: s.rateLimiter,
	})
	s.router.Get("/ws", s.handleWS)
	return s
}

// Start begins serving HTTP on addr. Call this only once; signal the
// process to stop.
func (s *Server) Start(addr string) error {
	go s.reportGaugesLoop()
	log.Printf("gbe: api server starting on %s", addr)
	return http.ListenAndServe(addr, s.router)
}

// reportGaugesLoop periodically samples session/tank counts into the
// prometheus gauges; the tick path itself only reports latency.
func (s *Server) reportGaugesLoop() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		summaries := s.registry.List()
		tanks := 0
		for _, sum := range summaries {
			tanks += sum.Players
		}
		UpdateSessionCount(len(summaries))
		UpdateTankCount(tanks)
	}
}

// Router returns the HTTP handler, for use with httptest.
func (s *Server) Router() http.Handler {
	return s.router
}

// Stop releases background workers.
func (s *Server) Stop() {
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
}
