package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
)

// Server is the HTTP API server with WebSocket support.
// It combines the REST router with the websocket gateway for live sessions.
type Server struct {
	router      *chi.Mux
	gateway     *WebSocketGateway
	rateLimiter *IPRateLimiter

	mu         sync.Mutex
	httpServer *http.Server
}

// NewServer creates a new API server.
//
// No network listener is opened until Start() is called, so tests can
// construct the server and drive Router() with httptest.
func NewServer(cfg RouterConfig, ws WSConfig) *Server {
	s := &Server{}

	// Tracked here so Stop can end its cleanup loop
	s.rateLimiter = cfg.RateLimiter
	if s.rateLimiter == nil {
		s.rateLimiter = NewIPRateLimiter(rateLimitConfig(cfg))
		cfg.RateLimiter = s.rateLimiter
	}

	if ws.Origins == nil {
		ws.Origins = NewOriginPolicy(cfg.CORSOrigins)
	}
	s.gateway = NewWebSocketGateway(cfg.Registry, cfg.Identity, ws)

	s.router = NewRouter(cfg)
	s.setupWebSocketRoutes()

	return s
}

// setupWebSocketRoutes adds the routes that need the gateway instance
func (s *Server) setupWebSocketRoutes() {
	s.router.Get("/ws/sessions/{id}", s.gateway.HandleSession)
}

// Start serves HTTP on addr until Stop is called. It returns nil after a
// graceful stop.
func (s *Server) Start(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()

	log.Printf("🌐 API server starting on %s", addr)
	log.Printf("🎮 Sessions: http://localhost%s/api/sessions", addr)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Router returns the HTTP handler for use with httptest.
// Use this in integration tests instead of calling Start().
//
// Example:
//
//	server := api.NewServer(cfg, api.DefaultWSConfig())
//	ts := httptest.NewServer(server.Router())
//	defer ts.Close()
//	resp, _ := http.Get(ts.URL + "/api/sessions")
func (s *Server) Router() http.Handler {
	return s.router
}

// Gateway exposes the websocket gateway for connection stats
func (s *Server) Gateway() *WebSocketGateway {
	return s.gateway
}

// Stop shuts the listener down and stops background workers. Hijacked
// websocket connections are not tracked by http.Server; they close when
// the registry closes their sessions.
func (s *Server) Stop(ctx context.Context) error {
	s.rateLimiter.Stop()

	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
