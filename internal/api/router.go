package api

import (
	"net/http"
	"time"

	"paddle-arena/internal/hub"
	"paddle-arena/internal/identity"
	"paddle-arena/internal/render"
	"paddle-arena/internal/session"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// GuestIssuer mints tokens for anonymous players
type GuestIssuer interface {
	IssueGuest(displayName string) (identity.Identity, string, time.Time, error)
}

// StatsSource reports background worker statistics for /health
type StatsSource interface {
	GetStats() map[string]interface{}
}

// RouterConfig contains all dependencies needed to construct the HTTP router.
// This struct is designed for dependency injection and testability.
//
// Example usage in tests:
//
//	cfg := api.RouterConfig{
//	    Registry: session.NewRegistry(session.Config{Hub: h}),
//	    Identity: tokens,
//	    RateLimitConfig: &api.RateLimitConfig{
//	        RequestsPerSecond: 1000, // High limit for tests
//	        Burst:             1000,
//	    },
//	}
//	router := api.NewRouter(cfg)
//	ts := httptest.NewServer(router)
type RouterConfig struct {
	// Registry holds the live sessions (required)
	Registry *session.Registry

	// Identity authenticates mutating requests (required)
	Identity identity.Provider

	// Guests issues guest tokens. If nil, POST /api/identity/guest is disabled.
	Guests GuestIssuer

	// Hub is reported by /health (optional)
	Hub *hub.Hub

	// Outbox is reported by /health (optional)
	Outbox StatsSource

	// Court renders session previews. If nil, uses render.NewCourt().
	Court *render.Court

	// RateLimiter is an optional pre-configured rate limiter.
	// If nil, a new one will be created using RateLimitConfig.
	RateLimiter *IPRateLimiter

	// RateLimitConfig is optional configuration for the rate limiter.
	// Only used if RateLimiter is nil. If both are nil, uses DefaultRateLimitConfig.
	RateLimitConfig *RateLimitConfig

	// CORSOrigins is an optional list of allowed CORS origins.
	// If nil, uses DefaultCORSOrigins.
	CORSOrigins []string

	// DisableLogging disables the request logger middleware (useful for benchmarks).
	DisableLogging bool
}

// routerHandlers holds the handler dependencies
type routerHandlers struct {
	registry *session.Registry
	guests   GuestIssuer
	hub      *hub.Hub
	outbox   StatsSource
	court    *render.Court
}

// NewRouter constructs the HTTP router with all middleware and REST routes.
// The websocket route is added by Server.
//
// NewRouter starts no goroutines of its own and opens no listeners; only a
// rate limiter it creates runs its cleanup loop. Pass RateLimiter to control
// that lifetime.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware - Order matters!
	if !cfg.DisableLogging {
		r.Use(requestLogger())
	}
	r.Use(middleware.Recoverer)
	r.Use(metricsMiddleware)

	// Rate limiting (BEFORE CORS to reject early and save CPU)
	rateLimiter := cfg.RateLimiter
	if rateLimiter == nil {
		rateLimiter = NewIPRateLimiter(rateLimitConfig(cfg))
	}
	r.Use(rateLimiter.Middleware)

	corsOrigins := cfg.CORSOrigins
	if corsOrigins == nil {
		corsOrigins = DefaultCORSOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	court := cfg.Court
	if court == nil {
		court = render.NewCourt()
	}
	h := &routerHandlers{
		registry: cfg.Registry,
		guests:   cfg.Guests,
		hub:      cfg.Hub,
		outbox:   cfg.Outbox,
		court:    court,
	}

	r.Get("/health", h.handleHealth)

	r.Route("/api", func(r chi.Router) {
		// Public reads
		r.Get("/sessions", h.handleListSessions)
		r.Get("/sessions/{id}", h.handleGetSession)
		r.Get("/sessions/{id}/preview.png", h.handlePreview)
		r.Get("/protocol/schema", h.handleSchema)
		r.Post("/identity/guest", h.handleGuestIdentity)

		// Everything that acts as a participant needs an identity
		r.Group(func(r chi.Router) {
			r.Use(identity.Middleware(cfg.Identity))
			r.Post("/sessions", h.handleCreateSession)
			r.Post("/sessions/ai", h.handleCreateAISession)
			r.Post("/sessions/{id}/join", h.handleJoinSession)
			r.Post("/sessions/{id}/leave", h.handleLeaveSession)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, "Not found", http.StatusNotFound)
	})

	return r
}

func rateLimitConfig(cfg RouterConfig) RateLimitConfig {
	if cfg.RateLimitConfig != nil {
		return *cfg.RateLimitConfig
	}
	return DefaultRateLimitConfig
}
