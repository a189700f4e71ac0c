package middleware

import (
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	redisStore "wallet-service/internal/adapter/storage/redis"
	"wallet-service/pkg/apperror"
	"wallet-service/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// RateLimitRule defines a rate limit for an endpoint group.
type RateLimitRule struct {
	Limit  int64
	Window time.Duration
}

// RuleFromRate converts a sustained rate (requests per second) into a
// one-second fixed window.
func RuleFromRate(rps float64) RateLimitRule {
	limit := int64(math.Ceil(rps))
	if limit < 1 {
		limit = 1
	}
	return RateLimitRule{Limit: limit, Window: time.Second}
}

// RateLimiter creates a Redis-backed rate-limiting middleware for an endpoint group.
// Counters are shared by every instance pointing at the same Redis.
func RateLimiter(store *redisStore.RateLimitStore, group string, rule RateLimitRule, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := fmt.Sprintf("%s:%s", c.ClientIP(), group)

		result, err := store.Allow(c.Request.Context(), key, rule.Limit, rule.Window)
		if err != nil {
			log.Warn().Err(err).Str("group", group).Msg("rate limit check failed, allowing request (degraded mode)")
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(result.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt, 10))

		if !result.Allowed {
			retryAfter := result.ResetAt - time.Now().Unix()
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
			response.AbortWithError(c, apperror.ErrRateLimitExceeded())
			return
		}

		c.Next()
	}
}

// LocalRateLimiter is a per-client token bucket kept in process memory.
// It is used when Redis is disabled, so limits apply per instance.
type LocalRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// NewLocalRateLimiter creates a limiter allowing rps sustained requests per
// client with bursts up to burst.
func NewLocalRateLimiter(rps float64, burst int) *LocalRateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &LocalRateLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(rps),
		burst:    burst,
	}
}

func (l *LocalRateLimiter) limiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.limiters[key]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[key] = lim
	}
	return lim
}

// Middleware returns the gin handler enforcing the limit for an endpoint group.
func (l *LocalRateLimiter) Middleware(group string) gin.HandlerFunc {
	return func(c *gin.Context) {
		lim := l.limiter(c.ClientIP() + ":" + group)

		c.Header("X-RateLimit-Limit", strconv.Itoa(l.burst))
		if !lim.Allow() {
			c.Header("Retry-After", "1")
			response.AbortWithError(c, apperror.ErrRateLimitExceeded())
			return
		}
		c.Next()
	}
}
