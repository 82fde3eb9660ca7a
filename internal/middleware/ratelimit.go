// ratelimit.go provides Gin middleware that enforces per-client limits with a
// Redis-backed GCRA limiter, returning 429 responses once the configured
// requests-per-minute budget is spent.
package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"

	"github.com/MURUGANQA/auth-service/internal/config"
	"github.com/MURUGANQA/auth-service/internal/domain"
	"github.com/MURUGANQA/auth-service/internal/telemetry"
)

const rateLimitKeyPrefix = "ratelimit:"

// RateLimitConfig holds configuration for rate limiting
type RateLimitConfig struct {
	// RequestsPerMinute is the sustained rate allowed per client
	RequestsPerMinute int
	// BurstSize is the maximum burst of requests allowed
	BurstSize int
}

// AuthRateLimitConfig returns the limits applied to credential endpoints
func AuthRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 10,
		BurstSize:         5,
	}
}

// RateLimitConfigFrom builds a RateLimitConfig from the security settings,
// falling back to AuthRateLimitConfig for unset values.
func RateLimitConfigFrom(cfg config.RateLimitingConfig) RateLimitConfig {
	out := AuthRateLimitConfig()
	if cfg.RequestsPerMinute > 0 {
		out.RequestsPerMinute = cfg.RequestsPerMinute
	}
	if cfg.Burst > 0 {
		out.BurstSize = cfg.Burst
	}
	return out
}

func (c RateLimitConfig) limit() redis_rate.Limit {
	burst := c.BurstSize
	if burst <= 0 {
		burst = c.RequestsPerMinute
	}
	return redis_rate.Limit{Rate: c.RequestsPerMinute, Burst: burst, Period: time.Minute}
}

// RateLimiter shares one Redis limiter between every limited route.
type RateLimiter struct {
	limiter *redis_rate.Limiter
}

// NewRateLimiter creates a RateLimiter backed by client.
func NewRateLimiter(client *redis.Client) *RateLimiter {
	return &RateLimiter{limiter: redis_rate.NewLimiter(client)}
}

// Middleware limits requests per route and client IP. When Redis cannot be
// reached the request is let through and the failure is logged.
func (rl *RateLimiter) Middleware(cfg RateLimitConfig) gin.HandlerFunc {
	limit := cfg.limit()
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}

		res, err := rl.limiter.Allow(c.Request.Context(), rateLimitKeyPrefix+route+":"+c.ClientIP(), limit)
		if err != nil {
			slog.WarnContext(c.Request.Context(), "rate limiter unavailable, allowing request",
				"route", route, "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(limit.Rate))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(res.ResetAfter).Unix(), 10))

		if res.Allowed == 0 {
			telemetry.RateLimitedTotal.WithLabelValues(route).Inc()
			retryAfter := int(res.RetryAfter.Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests,
				errorBody(domain.Kind("rate_limited"), "", "", "too many requests, retry later"))
			return
		}

		c.Next()
	}
}
