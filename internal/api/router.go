package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/parley-ai/parley/internal/database"
	mw "github.com/parley-ai/parley/internal/middleware"
)

// HandlerSet holds handler functions injected from main.go to avoid import cycles.
type HandlerSet struct {
	// Auth handlers
	Register http.HandlerFunc
	Login    http.HandlerFunc
	Refresh  http.HandlerFunc
	Logout   http.HandlerFunc

	// Chat handlers
	Complete         http.HandlerFunc
	ListChats        http.HandlerFunc
	GetMessages      http.HandlerFunc
	DeleteChat       http.HandlerFunc
	UpdateVisibility http.HandlerFunc

	// Admin handlers
	UsageReport  http.HandlerFunc
	ListUsers    http.HandlerFunc
	UpdateUser   http.HandlerFunc
	ListPrompts  http.HandlerFunc
	CreatePrompt http.HandlerFunc
	DeletePrompt http.HandlerFunc

	// Middleware
	AdminOnly      func(http.Handler) http.Handler
	AuthMiddleware func(http.Handler) http.Handler
}

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	CORSAllowedOrigins []string
	AuthRateLimiter    func(http.Handler) http.Handler
}

func NewRouter(pool *pgxpool.Pool, redisClient *redis.Client, cfg RouterConfig, h HandlerSet) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.SecurityHeaders)
	r.Use(mw.Logging)
	r.Use(mw.Recovery)
	r.Use(mw.Metrics)
	r.Use(cors.Handler(mw.CORS(cfg.CORSAllowedOrigins)))

	// Liveness probe, always 200, no dependency checks
	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		JSON(w, http.StatusOK, map[string]string{"status": "alive"})
	})

	// Readiness probe checks DB and Redis
	readinessHandler := func(w http.ResponseWriter, r *http.Request) {
		health := map[string]string{
			"status":   "healthy",
			"database": "healthy",
			"redis":    "healthy",
		}

		status := http.StatusOK

		if err := database.HealthCheck(r.Context(), pool); err != nil {
			health["database"] = "unhealthy"
			health["status"] = "degraded"
			status = http.StatusServiceUnavailable
		}

		if redisClient != nil {
			if err := redisClient.Ping(r.Context()).Err(); err != nil {
				health["redis"] = "unhealthy"
				health["status"] = "degraded"
				status = http.StatusServiceUnavailable
			}
		} else {
			health["redis"] = "not configured"
		}

		JSON(w, status, health)
	}

	r.Get("/health/ready", readinessHandler)
	r.Get("/health", readinessHandler)

	// Prometheus metrics
	r.Handle("/metrics", promhttp.Handler())

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		// Auth routes (public), optionally rate-limited
		r.Route("/auth", func(r chi.Router) {
			if cfg.AuthRateLimiter != nil {
				r.Use(cfg.AuthRateLimiter)
			}
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)
			r.Post("/refresh", h.Refresh)

			// Protected auth routes
			r.Group(func(r chi.Router) {
				r.Use(h.AuthMiddleware)
				r.Post("/logout", h.Logout)
			})
		})

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(h.AuthMiddleware)

			// Chat routes
			r.Route("/chat", func(r chi.Router) {
				r.Post("/", h.Complete)
				r.Get("/", h.ListChats)

				r.Route("/{chatID}", func(r chi.Router) {
					r.Delete("/", h.DeleteChat)
					r.Get("/messages", h.GetMessages)
					r.Put("/visibility", h.UpdateVisibility)
				})
			})

			// Admin routes
			r.Route("/admin", func(r chi.Router) {
				r.Use(h.AdminOnly)

				r.Get("/usage", h.UsageReport)

				r.Route("/users", func(r chi.Router) {
					r.Get("/", h.ListUsers)
					r.Patch("/{userID}", h.UpdateUser)
				})

				r.Route("/prompts", func(r chi.Router) {
					r.Get("/", h.ListPrompts)
					r.Post("/", h.CreatePrompt)
					r.Delete("/{promptID}", h.DeletePrompt)
				})
			})
		})
	})

	return r
}
