package middleware

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/oitdesk/oitdesk/pkg/errors"
	"github.com/oitdesk/oitdesk/pkg/response"
)

// RateStore coordinates rate limiting counters for a specific key.
type RateStore interface {
	Increment(ctx context.Context, key string, window time.Duration) (count int, ttl time.Duration, err error)
}

// RateLimit returns a middleware limiting requests per (clientIP, path) within
// a fixed window, backed by the supplied store.
func RateLimit(store RateStore, maxRequests int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if store == nil || maxRequests <= 0 || window <= 0 {
			c.Next()
			return
		}

		key := "ratelimit:" + c.ClientIP() + "|" + c.FullPath()
		count, ttl, err := store.Increment(c.Request.Context(), key, window)
		if err != nil {
			// Counter backend failures must not take the API down.
			c.Next()
			return
		}

		remaining := maxRequests - count
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(maxRequests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", strconv.Itoa(int(ttl.Seconds())))

		if count > maxRequests {
			response.Error(c, errors.ErrRateLimit)
			c.Abort()
			return
		}

		c.Next()
	}
}

// LoginLimiter throttles the credential endpoints: at most `limit`
// attempts per key within a rolling window. The key combines the submitted
// login and the client IP, so it is checked inside the handler once the body
// has been bound.
type LoginLimiter struct {
	store  RateStore
	limit  int
	window time.Duration
}

// NewLoginLimiter constructs a limiter with the provided limit and window.
func NewLoginLimiter(store RateStore, limit int, window time.Duration) *LoginLimiter {
	if limit <= 0 {
		limit = 5
	}
	if window <= 0 {
		window = 10 * time.Minute
	}
	return &LoginLimiter{store: store, limit: limit, window: window}
}

// Allow counts the attempt and reports whether it is within the limit.
// Store failures fail open: losing a counter backend must not lock everyone
// out of login.
func (l *LoginLimiter) Allow(ctx context.Context, key string) bool {
	if l == nil || l.store == nil {
		return true
	}
	count, _, err := l.store.Increment(ctx, "login:"+key, l.window)
	if err != nil {
		return true
	}
	return count <= l.limit
}
