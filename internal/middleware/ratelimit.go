package middleware

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"market-chat/internal/apperrors"
	"market-chat/internal/logger"
)

// UserRateLimiter keeps one token bucket per caller.
type UserRateLimiter struct {
	mu      sync.Mutex
	entries map[string]*limiterEntry
	r       rate.Limit
	burst   int
	now     func() time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewUserRateLimiter allows perMinute requests per caller with a burst of
// burst.
func NewUserRateLimiter(perMinute, burst int) *UserRateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &UserRateLimiter{
		entries: make(map[string]*limiterEntry),
		r:       rate.Limit(float64(perMinute) / 60.0),
		burst:   burst,
		now:     time.Now,
	}
}

func (l *UserRateLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	entry, ok := l.entries[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(l.r, l.burst)}
		l.entries[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// Prune drops callers idle for longer than idle.
func (l *UserRateLimiter) Prune(idle time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-idle)
	for key, entry := range l.entries {
		if entry.lastSeen.Before(cutoff) {
			delete(l.entries, key)
		}
	}
}

// RunPruner prunes every minute until stop is closed.
func (l *UserRateLimiter) RunPruner(stop <-chan struct{}) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			l.Prune(3 * time.Minute)
		}
	}
}

// RateLimit limits by authenticated user, falling back to client IP.
func RateLimit(limiter *UserRateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if userID := c.GetInt64(UserIDKey); userID != 0 {
			key = "user:" + strconv.FormatInt(userID, 10)
		}

		if !limiter.Allow(key) {
			logger.Warn().Str("key", key).Str("path", c.Request.URL.Path).Msg("rate limit exceeded")
			abort(c, apperrors.ErrRateLimited, apperrors.ErrRateLimited.Message)
			return
		}
		c.Next()
	}
}
