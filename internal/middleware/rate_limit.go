package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// rateLimiter is a simple in-memory sliding-window limiter keyed by client IP
type rateLimiter struct {
	mu      sync.Mutex
	windows map[string][]time.Time
}

func newRateLimiter() *rateLimiter {
	return &rateLimiter{
		windows: make(map[string][]time.Time),
	}
}

// GlobalRateLimiter creates a middleware limiting requests per minute per IP
func GlobalRateLimiter(requestsPerMinute int) gin.HandlerFunc {
	limiter := newRateLimiter()
	return func(c *gin.Context) {
		ip := c.ClientIP()

		limiter.mu.Lock()
		defer limiter.mu.Unlock()

		now := time.Now()
		windowStart := now.Add(-time.Minute)

		// Remove timestamps older than 1 minute
		var validTimes []time.Time
		for _, t := range limiter.windows[ip] {
			if t.After(windowStart) {
				validTimes = append(validTimes, t)
			}
		}
		limiter.windows[ip] = validTimes

		if len(validTimes) >= requestsPerMinute {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":            "Rate limit exceeded",
				"limit":            requestsPerMinute,
				"per_minute":       1,
				"retry_after_secs": 60,
			})
			c.Abort()
			return
		}

		limiter.windows[ip] = append(limiter.windows[ip], now)

		c.Next()
	}
}
