package middleware

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Decision is the outcome of one rate-limit check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetIn   time.Duration
}

type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// RedisLimiter is a fixed-window counter shared by every API instance.
type RedisLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	prefix string
}

func NewRedisLimiter(client *redis.Client, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, limit: limit, window: window, prefix: "ratelimit:"}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	k := l.prefix + key

	count, err := l.client.Incr(ctx, k).Result()

	if err != nil {
		return Decision{}, fmt.Errorf("incrementing %s: %w", k, err)
	}

	if count == 1 {
		if err := l.client.Expire(ctx, k, l.window).Err(); err != nil {
			return Decision{}, fmt.Errorf("setting expiry on %s: %w", k, err)
		}
	}

	ttl, err := l.client.PTTL(ctx, k).Result()

	if err != nil {
		return Decision{}, fmt.Errorf("reading ttl of %s: %w", k, err)
	}

	// A counter left without expiry (crash between INCR and EXPIRE) would block forever.
	if ttl < 0 {
		if err := l.client.Expire(ctx, k, l.window).Err(); err != nil {
			return Decision{}, fmt.Errorf("repairing expiry on %s: %w", k, err)
		}

		ttl = l.window
	}

	return decide(int(count), l.limit, ttl), nil
}

// MemoryLimiter is the single-process fallback used when no redis is configured.
type MemoryLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	now     func() time.Time
	windows map[string]*counter
}

type counter struct {
	hits    int
	resetAt time.Time
}

func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		limit:   limit,
		window:  window,
		now:     time.Now,
		windows: make(map[string]*counter),
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	if len(l.windows) > 10000 {
		for k, c := range l.windows {
			if !now.Before(c.resetAt) {
				delete(l.windows, k)
			}
		}
	}

	c, ok := l.windows[key]

	if !ok || !now.Before(c.resetAt) {
		c = &counter{resetAt: now.Add(l.window)}
		l.windows[key] = c
	}

	c.hits++

	return decide(c.hits, l.limit, c.resetAt.Sub(now)), nil
}

func decide(hits, limit int, resetIn time.Duration) Decision {
	remaining := limit - hits

	if remaining < 0 {
		remaining = 0
	}

	return Decision{
		Allowed:   hits <= limit,
		Limit:     limit,
		Remaining: remaining,
		ResetIn:   resetIn,
	}
}

// RateLimit throttles requests per client IP. Limiter errors let the request through.
func RateLimit(limiter Limiter, logger *zap.Logger) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		decision, err := limiter.Allow(ctx.Request.Context(), ctx.ClientIP())

		if err != nil {
			logger.Warn("rate limiter unavailable", zap.Error(err))
			ctx.Next()
			return
		}

		ctx.Header("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		ctx.Header("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))

		if !decision.Allowed {
			retryAfter := int(math.Ceil(decision.ResetIn.Seconds()))

			ctx.Header("Retry-After", strconv.Itoa(retryAfter))
			ctx.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"message": fmt.Sprintf("Rate limit exceeded, retry in %d seconds", retryAfter),
			})
			return
		}

		ctx.Next()
	}
}
