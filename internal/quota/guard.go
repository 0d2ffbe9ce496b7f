package quota

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// UsageReader reports how many tokens a user has consumed on a calendar day.
type UsageReader interface {
	DailyTotal(ctx context.Context, userID uuid.UUID, day time.Time) (int, error)
}

// LimitReader resolves a user's per-day budget override, nil when the global
// default applies.
type LimitReader interface {
	TokenLimit(ctx context.Context, id uuid.UUID) (*int, error)
}

// Guard enforces the daily token budget. It fails open: if usage or limits
// cannot be read, the request is admitted rather than blocked on an
// infrastructure fault.
type Guard struct {
	usage        UsageReader
	limits       LimitReader
	defaultLimit int
	now          func() time.Time
}

func NewGuard(usage UsageReader, limits LimitReader, defaultLimit int) *Guard {
	return &Guard{
		usage:        usage,
		limits:       limits,
		defaultLimit: defaultLimit,
		now:          time.Now,
	}
}

// HasExceededDailyLimit reports whether the user's consumption so far today
// has reached their budget. Equal counts as exceeded.
func (g *Guard) HasExceededDailyLimit(ctx context.Context, userID uuid.UUID) bool {
	limit := g.defaultLimit

	override, err := g.limits.TokenLimit(ctx, userID)
	if err != nil {
		slog.Warn("reading token limit, admitting request", "error", err, "user_id", userID)
		return false
	}
	if override != nil {
		limit = *override
	}

	total, err := g.usage.DailyTotal(ctx, userID, g.now())
	if err != nil {
		slog.Warn("reading daily usage, admitting request", "error", err, "user_id", userID)
		return false
	}

	return total >= limit
}
