package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

const (
	DefaultRateLimit       = 10              // requests per window
	DefaultRateLimitWindow = 1 * time.Minute // window duration
)

// Counter is the subset of the Redis client the limiter needs
type Counter interface {
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, expiration time.Duration) error
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimiter is a fixed-window limiter keyed by client IP and shared across
// instances through Redis. When Redis fails the request is allowed.
func RateLimiter(counter Counter, limit int, window time.Duration, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			key := fmt.Sprintf("ratelimit:%s:%s", r.URL.Path, clientIP(r))

			// Increment request count
			count, err := counter.Incr(ctx, key)
			if err != nil {
				logger.Warn("rate limiter unavailable", "error", err)
				next.ServeHTTP(w, r)
				return
			}

			// Set expiry on first request
			if count == 1 {
				if err := counter.Expire(ctx, key, window); err != nil {
					logger.Warn("rate limiter expire failed", "key", key, "error", err)
				}
			}

			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", limit))

			// Check if over limit
			if count > int64(limit) {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("X-RateLimit-Remaining", "0")
				w.Header().Set("Retry-After", fmt.Sprintf("%d", int(window.Seconds())))
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"success":false,"message":"Rate limit exceeded. Try again later."}`))
				return
			}

			remaining := int64(limit) - count
			w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))

			next.ServeHTTP(w, r)
		})
	}
}
