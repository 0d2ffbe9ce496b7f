package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Validate checks Config for production-critical problems.
// It collects all errors into a single joined error.
func (c *Config) Validate() error {
	var errs []string

	// JWT secrets
	if len(c.JWT.AccessSecret) < 32 {
		errs = append(errs, "JWT_ACCESS_SECRET must be at least 32 characters")
	}
	if len(c.JWT.RefreshSecret) < 32 {
		errs = append(errs, "JWT_REFRESH_SECRET must be at least 32 characters")
	}
	if c.JWT.AccessSecret != "" && c.JWT.RefreshSecret != "" && c.JWT.AccessSecret == c.JWT.RefreshSecret {
		errs = append(errs, "JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ")
	}

	// DB password
	if c.DB.Password == "" {
		errs = append(errs, "DB_PASSWORD is required")
	}

	// Port ranges
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT must be 1–65535, got %d", c.Server.Port))
	}
	if c.DB.Port < 1 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Sprintf("DB_PORT must be 1–65535, got %d", c.DB.Port))
	}
	if c.Redis.Port < 1 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Sprintf("REDIS_PORT must be 1–65535, got %d", c.Redis.Port))
	}

	// Rate limiting
	if c.RateLimit.Backend != "memory" && c.RateLimit.Backend != "redis" {
		errs = append(errs, fmt.Sprintf("RATELIMIT_BACKEND must be \"memory\" or \"redis\", got %q", c.RateLimit.Backend))
	}
	if c.RateLimit.IPMaxRequests < 1 {
		errs = append(errs, "RATELIMIT_IP_MAX must be positive")
	}
	if c.RateLimit.UserMax < 1 {
		errs = append(errs, "RATELIMIT_USER_MAX must be positive")
	}
	if c.RateLimit.IPWindow <= 0 || c.RateLimit.UserWindow <= 0 {
		errs = append(errs, "rate limit windows must be positive durations")
	}

	// Quota
	if c.Quota.MaxTokensPerDay < 1 {
		errs = append(errs, "QUOTA_MAX_TOKENS_PER_DAY must be positive")
	}

	// Output ratios, when overridden, must be sane fractions
	if r := c.LLM.OpenAIOutputRatio; r < 0 || r > 1 {
		errs = append(errs, fmt.Sprintf("LLM_OPENAI_OUTPUT_RATIO must be in (0,1], got %g", r))
	}
	if r := c.LLM.AnthropicOutputRatio; r < 0 || r > 1 {
		errs = append(errs, fmt.Sprintf("LLM_ANTHROPIC_OUTPUT_RATIO must be in (0,1], got %g", r))
	}

	// Provider key: warn only, a local test provider may not need one
	if c.LLM.APIKey == "" {
		slog.Warn("LLM_API_KEY is empty, completion requests will be unauthenticated")
	}

	if len(errs) > 0 {
		return errors.New("config validation failed:\n  " + strings.Join(errs, "\n  "))
	}
	return nil
}
