package middleware

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/turntable-ai/turntable/pkg/logger"
)

// RedisLimiter is a fixed-window limiter shared across replicas. Each hit
// increments a per-key counter whose TTL is the window.
type RedisLimiter struct {
	client *redis.Client
	window time.Duration
	limit  int
	log    *logger.Logger
}

var _ Limiter = (*RedisLimiter)(nil)

// NewRedisLimiter builds a limiter on the given client.
func NewRedisLimiter(client *redis.Client, window time.Duration, limit int, log *logger.Logger) *RedisLimiter {
	if log == nil {
		log = logger.NewDefault("ratelimit")
	}
	return &RedisLimiter{client: client, window: window, limit: limit, log: log}
}

// Allow increments the key's window counter. Redis outages fail open so a
// cache hiccup never takes the API down.
func (l *RedisLimiter) Allow(key string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	k := "ratelimit:" + key
	n, err := l.client.Incr(ctx, k).Result()
	if err != nil {
		l.log.WithError(err).Warn("rate limit check failed, allowing request")
		return true
	}
	if n == 1 {
		l.client.Expire(ctx, k, l.window)
	}
	return n <= int64(l.limit)
}
