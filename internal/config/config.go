package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server    ServerConfig
	DB        DBConfig
	Redis     RedisConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	Quota     QuotaConfig
	LLM       LLMConfig
	CORS      CORSConfig
	Log       LogConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int32
}

func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type JWTConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
}

// RateLimitConfig controls per-IP and per-user request throttling on the
// chat endpoint. Backend selects the counter store: "memory" for a single
// instance, "redis" when several instances must share the limits.
type RateLimitConfig struct {
	Backend       string
	IPWindow      time.Duration
	IPMaxRequests int
	UserWindow    time.Duration
	UserMax       int
	SweepInterval time.Duration
	AuthMax       int
	AuthWindowSec int
}

type QuotaConfig struct {
	MaxTokensPerDay int
}

type LLMConfig struct {
	BaseURL        string
	APIKey         string
	RequestTimeout time.Duration
	// Per-family output/input estimate ratios; zero means use the
	// catalog's built-in default.
	OpenAIOutputRatio    float64
	AnthropicOutputRatio float64
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	k := koanf.New(".")

	// Load .env file if it exists (ignore error if missing)
	_ = k.Load(file.Provider(".env"), dotenv.Parser())

	// Load environment variables (override .env)
	err := k.Load(env.Provider("", ".", func(s string) string {
		return strings.ToLower(strings.ReplaceAll(s, "_", "."))
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: k.String("server.host"),
			Port: k.Int("server.port"),
		},
		DB: DBConfig{
			Host:     k.String("db.host"),
			Port:     k.Int("db.port"),
			User:     k.String("db.user"),
			Password: k.String("db.password"),
			Name:     k.String("db.name"),
			SSLMode:  k.String("db.sslmode"),
			MaxConns: int32(k.Int("db.max.conns")),
		},
		Redis: RedisConfig{
			Host:     k.String("redis.host"),
			Port:     k.Int("redis.port"),
			Password: k.String("redis.password"),
			DB:       k.Int("redis.db"),
		},
		JWT: JWTConfig{
			AccessSecret:  k.String("jwt.access.secret"),
			RefreshSecret: k.String("jwt.refresh.secret"),
		},
		RateLimit: RateLimitConfig{
			Backend:       k.String("ratelimit.backend"),
			IPMaxRequests: k.Int("ratelimit.ip.max"),
			UserMax:       k.Int("ratelimit.user.max"),
			AuthMax:       k.Int("ratelimit.auth.max"),
			AuthWindowSec: k.Int("ratelimit.auth.window.sec"),
		},
		Quota: QuotaConfig{
			MaxTokensPerDay: k.Int("quota.max.tokens.per.day"),
		},
		LLM: LLMConfig{
			BaseURL:              k.String("llm.base.url"),
			APIKey:               k.String("llm.api.key"),
			OpenAIOutputRatio:    k.Float64("llm.openai.output.ratio"),
			AnthropicOutputRatio: k.Float64("llm.anthropic.output.ratio"),
		},
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(k.String("cors.allowed.origins")),
		},
		Log: LogConfig{
			Level:  k.String("log.level"),
			Format: k.String("log.format"),
		},
	}

	// Apply defaults
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.DB.Host == "" {
		cfg.DB.Host = "localhost"
	}
	if cfg.DB.Port == 0 {
		cfg.DB.Port = 5432
	}
	if cfg.DB.User == "" {
		cfg.DB.User = "parley"
	}
	if cfg.DB.Name == "" {
		cfg.DB.Name = "parley"
	}
	if cfg.DB.SSLMode == "" {
		cfg.DB.SSLMode = "disable"
	}
	if cfg.DB.MaxConns == 0 {
		cfg.DB.MaxConns = 25
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.RateLimit.Backend == "" {
		cfg.RateLimit.Backend = "memory"
	}
	if cfg.RateLimit.IPMaxRequests == 0 {
		cfg.RateLimit.IPMaxRequests = 30
	}
	if cfg.RateLimit.UserMax == 0 {
		cfg.RateLimit.UserMax = 20
	}
	if cfg.RateLimit.AuthMax == 0 {
		cfg.RateLimit.AuthMax = 10
	}
	if cfg.RateLimit.AuthWindowSec == 0 {
		cfg.RateLimit.AuthWindowSec = 60
	}
	if cfg.Quota.MaxTokensPerDay == 0 {
		cfg.Quota.MaxTokensPerDay = 10000
	}
	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = "https://api.openai.com"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "debug"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}

	// Parse durations
	cfg.RateLimit.IPWindow, err = parseDuration(k.String("ratelimit.ip.window"), time.Minute)
	if err != nil {
		return nil, fmt.Errorf("parsing ratelimit ip window: %w", err)
	}
	cfg.RateLimit.UserWindow, err = parseDuration(k.String("ratelimit.user.window"), time.Minute)
	if err != nil {
		return nil, fmt.Errorf("parsing ratelimit user window: %w", err)
	}
	cfg.RateLimit.SweepInterval, err = parseDuration(k.String("ratelimit.sweep.interval"), time.Minute)
	if err != nil {
		return nil, fmt.Errorf("parsing ratelimit sweep interval: %w", err)
	}
	cfg.LLM.RequestTimeout, err = parseDuration(k.String("llm.request.timeout"), 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("parsing llm request timeout: %w", err)
	}
	cfg.JWT.AccessExpiry, err = parseDuration(k.String("jwt.access.expiry"), 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("parsing jwt access expiry: %w", err)
	}
	cfg.JWT.RefreshExpiry, err = parseDuration(k.String("jwt.refresh.expiry"), 168*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("parsing jwt refresh expiry: %w", err)
	}

	return cfg, nil
}

func parseDuration(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	return time.ParseDuration(s)
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
