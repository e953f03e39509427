package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/chatrelay/internal/api/middleware"
	"github.com/eldtechnologies/chatrelay/internal/auth"
	"github.com/eldtechnologies/chatrelay/internal/handlers"
	"github.com/eldtechnologies/chatrelay/internal/ratelimit"
	"github.com/eldtechnologies/chatrelay/internal/relay"
)

// RouterConfig carries everything NewRouter wires together.
type RouterConfig struct {
	Logger         zerolog.Logger
	Handlers       handlers.Deps
	Relay          *relay.Relay
	Verifier       auth.Verifier
	Limiter        *ratelimit.Limiter
	Blocks         middleware.BlockStore
	RateLimits     middleware.RateLimiterConfig
	AllowedOrigins []string
	// TrustProxy takes the client address from X-Forwarded-For and
	// X-Real-IP. Enable it only behind a proxy that sets them.
	TrustProxy bool
}

// NewRouter creates and configures the HTTP router.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()
	logger := cfg.Logger

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(8 * 1024)) // 8KB max body
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	if cfg.TrustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	limiter := middleware.NewRateLimiter(cfg.Limiter, cfg.Blocks, logger, cfg.RateLimits)
	r.Use(limiter.Middleware)

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h := handlers.NewHandler(cfg.Handlers)
	authMW := middleware.NewAuthMiddleware(cfg.Verifier)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/", h.Root)
	r.Get("/health", h.Health)
	r.Get("/stats", h.Stats)
	r.Get("/users", h.ListUsers)
	r.Get("/rooms", h.ListRooms)
	r.Get("/who/{id}", h.Who)

	// The relay authenticates its own handshake so it can answer 401
	// before upgrading.
	r.Get("/ws", cfg.Relay.Handler(relay.Upgrader(origins)))

	r.Group(func(r chi.Router) {
		r.Use(authMW.RequireAuth)

		r.Post("/message", h.CreateMessage)
	})

	return r
}
