package rest

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// RateLimiterConfig tunes the per-client request budget.
type RateLimiterConfig struct {
	RequestsPerMinute int
	// KeyFunc derives the limit bucket for a request. Defaults to client IP.
	KeyFunc func(*http.Request) string
}

// RedisRateLimiter enforces a fixed-window per-minute limit shared across
// API instances. When Redis is unreachable it degrades to a per-instance
// local limiter rather than failing requests.
type RedisRateLimiter struct {
	client *redis.Client
	config RateLimiterConfig
	logger *slog.Logger

	mu    sync.Mutex
	local map[string]*rate.Limiter
}

// NewRedisRateLimiter creates a distributed rate limiter.
func NewRedisRateLimiter(client *redis.Client, config RateLimiterConfig, logger *slog.Logger) *RedisRateLimiter {
	if config.RequestsPerMinute <= 0 {
		config.RequestsPerMinute = 300
	}
	if config.KeyFunc == nil {
		config.KeyFunc = clientIP
	}
	return &RedisRateLimiter{
		client: client,
		config: config,
		logger: logger,
		local:  make(map[string]*rate.Limiter),
	}
}

// Allow reports whether the caller identified by key has budget left in the
// current minute window, and how many requests remain.
func (l *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, int) {
	window := time.Now().Unix() / 60
	redisKey := fmt.Sprintf("ratelimit:%s:%d", key, window)

	count, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		l.logger.Warn("rate limiter falling back to local", "error", err)
		return l.allowLocal(key), 0
	}
	if count == 1 {
		l.client.Expire(ctx, redisKey, 2*time.Minute)
	}

	remaining := l.config.RequestsPerMinute - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return count <= int64(l.config.RequestsPerMinute), remaining
}

func (l *RedisRateLimiter) allowLocal(key string) bool {
	l.mu.Lock()
	limiter, ok := l.local[key]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(float64(l.config.RequestsPerMinute)/60), l.config.RequestsPerMinute)
		l.local[key] = limiter
	}
	l.mu.Unlock()
	return limiter.Allow()
}

// Middleware returns the rate limiting middleware.
func (l *RedisRateLimiter) Middleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, remaining := l.Allow(r.Context(), l.config.KeyFunc(r))

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.config.RequestsPerMinute))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

			if !allowed {
				w.Header().Set("Retry-After", "60")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":{"code":"RATE_LIMIT_EXCEEDED","message":"too many requests"}}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
