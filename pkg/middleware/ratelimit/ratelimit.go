// Package ratelimit throttles requests with per-key token buckets.
package ratelimit

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"github.com/nimburion/ssebroadcast/pkg/server/router"
)

// RateLimiter defines the interface for rate limiting implementations.
// Implementations must be safe for concurrent use.
type RateLimiter interface {
	Allow(key string) bool
}

// TokenBucketLimiter keeps one token bucket per key.
type TokenBucketLimiter struct {
	limiters sync.Map // map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

// NewTokenBucketLimiter creates a limiter allowing requestsPerSecond on
// average with bursts of up to burst requests per key.
func NewTokenBucketLimiter(requestsPerSecond float64, burst int) *TokenBucketLimiter {
	if burst < 1 {
		burst = 1
	}
	return &TokenBucketLimiter{
		rate:  rate.Limit(requestsPerSecond),
		burst: burst,
	}
}

// Allow reports whether a request for key fits its bucket.
func (l *TokenBucketLimiter) Allow(key string) bool {
	return l.getLimiter(key).Allow()
}

func (l *TokenBucketLimiter) getLimiter(key string) *rate.Limiter {
	if limiter, ok := l.limiters.Load(key); ok {
		return limiter.(*rate.Limiter)
	}
	limiter, _ := l.limiters.LoadOrStore(key, rate.NewLimiter(l.rate, l.burst))
	return limiter.(*rate.Limiter)
}

// Config defines the configuration for rate limiting middleware.
type Config struct {
	// KeyFunc extracts the rate limiting key, default client IP.
	KeyFunc func(router.Context) string
	// RetryAfterSeconds is sent with 429 responses, default 1.
	RetryAfterSeconds int
}

// RateLimit creates middleware that answers 429 with a Retry-After header
// once the key derived from the request exceeds its budget.
func RateLimit(limiter RateLimiter, cfg Config) router.MiddlewareFunc {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = func(c router.Context) string { return ExtractIPFromRequest(c.Request()) }
	}
	if cfg.RetryAfterSeconds <= 0 {
		cfg.RetryAfterSeconds = 1
	}
	retryAfter := strconv.Itoa(cfg.RetryAfterSeconds)

	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			if !limiter.Allow(cfg.KeyFunc(c)) {
				c.Response().Header().Set("Retry-After", retryAfter)
				return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
					"error": "rate limit exceeded",
				})
			}
			return next(c)
		}
	}
}

// ExtractIPFromRequest returns the client IP, preferring X-Forwarded-For and
// X-Real-IP over RemoteAddr.
func ExtractIPFromRequest(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
