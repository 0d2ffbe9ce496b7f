package main

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/parley-ai/parley/internal/api"
	"github.com/parley-ai/parley/internal/auth"
	"github.com/parley-ai/parley/internal/chat"
	"github.com/parley-ai/parley/internal/config"
	"github.com/parley-ai/parley/internal/database"
	"github.com/parley-ai/parley/internal/llm"
	"github.com/parley-ai/parley/internal/middleware"
	"github.com/parley-ai/parley/internal/orchestrator"
	"github.com/parley-ai/parley/internal/prompts"
	"github.com/parley-ai/parley/internal/quota"
	"github.com/parley-ai/parley/internal/ratelimit"
	iredis "github.com/parley-ai/parley/internal/redis"
	"github.com/parley-ai/parley/internal/server"
	"github.com/parley-ai/parley/internal/tokens"
	"github.com/parley-ai/parley/internal/usage"
	"github.com/parley-ai/parley/internal/users"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.Log)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// PostgreSQL
	pool, err := database.NewPostgresPool(ctx, cfg.DB)
	if err != nil {
		slog.Error("connecting to postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := database.RunMigrations(cfg.DB.DSN(), "migrations"); err != nil {
		slog.Error("running migrations", "error", err)
		os.Exit(1)
	}

	// Redis
	redisClient, err := iredis.NewClient(ctx, cfg.Redis)
	if err != nil {
		slog.Error("connecting to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	// Auth
	jwtManager := auth.NewJWTManager(
		cfg.JWT.AccessSecret,
		cfg.JWT.RefreshSecret,
		cfg.JWT.AccessExpiry,
		cfg.JWT.RefreshExpiry,
	)
	userRepo := users.NewRepository(pool)
	userSvc := users.NewService(userRepo)
	authSvc := auth.NewService(jwtManager, redisClient, func(ctx context.Context, userID string) (string, string, error) {
		id, err := uuid.Parse(userID)
		if err != nil {
			return "", "", err
		}
		u, err := userSvc.GetByID(ctx, id)
		if err != nil {
			return "", "", err
		}
		if u == nil {
			return "", "", errors.New("user not found")
		}
		return u.Email, u.Role, nil
	})
	authHandler := auth.NewHandler(authSvc, userSvc)

	// Rate limiting
	var limiter ratelimit.Limiter
	if cfg.RateLimit.Backend == "redis" {
		limiter = ratelimit.NewRedisLimiter(redisClient)
	} else {
		memLimiter := ratelimit.NewMemoryLimiter()
		memLimiter.Start(ctx, cfg.RateLimit.SweepInterval)
		limiter = memLimiter
	}

	// Usage ledger and quota
	usageRepo := usage.NewRepository(pool)
	usageSvc := usage.NewService(usageRepo)
	usageHandler := usage.NewHandler(usageSvc)
	guard := quota.NewGuard(usageSvc, userSvc, cfg.Quota.MaxTokensPerDay)

	// Model provider
	catalog := llm.NewCatalog(cfg.LLM.OpenAIOutputRatio, cfg.LLM.AnthropicOutputRatio)
	estimator := tokens.NewEstimator(catalog)
	provider := llm.NewOpenAIProvider(cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.RequestTimeout)

	// Chats and prompts
	chatSvc := chat.NewService(chat.NewRepository(pool))
	chatHandler := chat.NewHandler(chatSvc)
	promptSvc := prompts.NewService(prompts.NewRepository(pool))
	promptHandler := prompts.NewHandler(promptSvc)

	// Admin user management
	userHandler := users.NewHandler(userSvc)

	// Completion orchestrator
	completeHandler := orchestrator.NewHandler(
		limiter, guard, chatSvc, promptSvc, estimator, provider, usageSvc, cfg.RateLimit,
	)

	// Router
	authLimiter := middleware.NewRateLimiter(redisClient, cfg.RateLimit.AuthMax, cfg.RateLimit.AuthWindowSec)
	router := api.NewRouter(pool, redisClient, api.RouterConfig{
		CORSAllowedOrigins: cfg.CORS.AllowedOrigins,
		AuthRateLimiter:    authLimiter.Middleware,
	}, api.HandlerSet{
		Register: authHandler.Register,
		Login:    authHandler.Login,
		Refresh:  authHandler.Refresh,
		Logout:   authHandler.Logout,

		Complete:         completeHandler.Complete,
		ListChats:        chatHandler.List,
		GetMessages:      chatHandler.Messages,
		DeleteChat:       chatHandler.Delete,
		UpdateVisibility: chatHandler.UpdateVisibility,

		UsageReport:  usageHandler.Report,
		ListUsers:    userHandler.List,
		UpdateUser:   userHandler.Update,
		ListPrompts:  promptHandler.List,
		CreatePrompt: promptHandler.Create,
		DeletePrompt: promptHandler.Delete,

		AdminOnly:      auth.RequireAdmin,
		AuthMiddleware: auth.Middleware(authSvc),
	})

	// Start server
	srv := server.New(cfg.Server, router)
	if err := srv.Start(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func setupLogger(cfg config.LogConfig) {
	var handler slog.Handler

	opts := &slog.HandlerOptions{}
	switch cfg.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "info":
		opts.Level = slog.LevelInfo
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	default:
		opts.Level = slog.LevelInfo
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
