package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "ratelimit:"

// RedisLimiter counts requests in Redis so the limit holds across every
// instance of the service. Each scope maps to one key incremented
// atomically; the first increment of a window sets the key's expiry.
type RedisLimiter struct {
	rdb redis.Cmdable
}

func NewRedisLimiter(rdb redis.Cmdable) *RedisLimiter {
	return &RedisLimiter{rdb: rdb}
}

func (l *RedisLimiter) Allow(ctx context.Context, scope string, window time.Duration, max int) (bool, error) {
	key := redisKeyPrefix + scope

	count, err := l.rdb.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("incrementing rate counter: %w", err)
	}

	if count == 1 {
		if err := l.rdb.Expire(ctx, key, window).Err(); err != nil {
			return false, fmt.Errorf("setting rate counter expiry: %w", err)
		}
	}

	return count > int64(max), nil
}
