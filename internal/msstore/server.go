package msstore

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Server is the model store's HTTP API, grounded on gbeapi.Server's
// constructor/Start/Router/Stop split so the router can be exercised
// directly in tests via httptest without opening a real listener.
type Server struct {
	store  *Store
	router *chi.Mux
}

// NewServer wires a router around an already-opened Store.
func NewServer(store *Store) *Server {
	s := &Server{store: store}
	s.router = NewRouter(RouterConfig{Store: store})
	return s
}

// Start begins serving HTTP on addr. Call this only once.
func (s *Server) Start(addr string) error {
	log.Printf("ms: api server starting on %s", addr)
	return http.ListenAndServe(addr, s.router)
}

// Router returns the HTTP handler, for use with httptest.
func (s *Server) Router() http.Handler {
	return s.router
}
