package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// UserIDHeader identifies the caller. Real authentication belongs to a
// gateway in front of this service.
const UserIDHeader = "X-User-ID"

type RateLimiter struct {
	mu    sync.Mutex
	seen  map[string]time.Time
	limit time.Duration
}

func NewRateLimiter(limit time.Duration) *RateLimiter {
	return &RateLimiter{
		seen:  make(map[string]time.Time),
		limit: limit,
	}
}

func (r *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader(UserIDHeader)
		if userID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": UserIDHeader + " header required"})
			c.Abort()
			return
		}
		r.mu.Lock()
		last, exists := r.seen[userID]
		if exists && time.Since(last) < r.limit {
			r.mu.Unlock()
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			c.Abort()
			return
		}
		r.seen[userID] = time.Now()
		r.mu.Unlock()
		c.Next()
	}
}
