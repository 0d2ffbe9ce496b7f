package ratelimit

import (
	"context"
	"time"
)

// Limiter counts requests per scope within a fixed window. Allow reports
// whether the scope has exceeded max requests for the current window,
// consuming one request in the process.
//
// Scopes are opaque strings; the conventional forms are "ip:<addr>" and
// "user:<id>".
type Limiter interface {
	Allow(ctx context.Context, scope string, window time.Duration, max int) (exceeded bool, err error)
}

// IPScope builds the limiter scope for a client address.
func IPScope(addr string) string {
	return "ip:" + addr
}

// UserScope builds the limiter scope for an authenticated user.
func UserScope(id string) string {
	return "user:" + id
}
