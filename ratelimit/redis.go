// Package ratelimit implements a fixed-window request limiter on Redis.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter counts requests per key within a rolling fixed window. The
// counter and its expiry live in Redis so limits hold across replicas.
type Limiter struct {
	client *redis.Client
	prefix string
	limit  int
	window time.Duration
}

// New creates a limiter allowing limit requests per window.
func New(client *redis.Client, name string, limit int, window time.Duration) *Limiter {
	if limit <= 0 {
		limit = 100
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	return &Limiter{
		client: client,
		prefix: "ratelimit:" + name + ":",
		limit:  limit,
		window: window,
	}
}

// Allow records a hit for key and reports whether it is within the
// limit. On Redis failure it fails open: blocking all traffic during an
// outage is worse than briefly losing the limit.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := l.prefix + key

	count, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return true, fmt.Errorf("ratelimit: incr: %w", err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, redisKey, l.window).Err(); err != nil {
			return true, fmt.Errorf("ratelimit: expire: %w", err)
		}
	}

	return count <= int64(l.limit), nil
}

// RetryAfter reports the remaining window for a key, for the
// Retry-After response header.
func (l *Limiter) RetryAfter(ctx context.Context, key string) time.Duration {
	ttl, err := l.client.TTL(ctx, l.prefix+key).Result()
	if err != nil || ttl < 0 {
		return l.window
	}
	return ttl
}
