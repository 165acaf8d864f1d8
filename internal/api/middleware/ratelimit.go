package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nexconsult/precatorios/internal/config"
	"github.com/nexconsult/precatorios/internal/models"
	"golang.org/x/time/rate"
)

// RateLimiter keeps one token bucket per client IP
type RateLimiter struct {
	config   config.RateLimitConfig
	limit    rate.Limit
	clients  map[string]*rate.Limiter
	lastSeen map[string]time.Time
	mu       sync.Mutex
}

// NewRateLimiter creates a rate limiter. Idle clients are forgotten until
// ctx is done.
func NewRateLimiter(ctx context.Context, cfg config.RateLimitConfig) *RateLimiter {
	if cfg.BurstSize < 1 {
		cfg.BurstSize = 1
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Minute
	}

	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Limit(float64(cfg.RequestsPerMinute) / 60.0)
	}

	rl := &RateLimiter{
		config:   cfg,
		limit:    limit,
		clients:  make(map[string]*rate.Limiter),
		lastSeen: make(map[string]time.Time),
	}
	go rl.cleanupClients(ctx)
	return rl
}

// Middleware returns the rate limiting middleware
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		limiter := rl.getLimiter(c.ClientIP())
		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.config.RequestsPerMinute))

		if !limiter.Allow() {
			retryAfter := rl.retryAfter()
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("Retry-After", fmt.Sprintf("%.0f", retryAfter.Seconds()))

			resp := models.NewErrorResponse(models.ErrorCodeRateLimit,
				fmt.Sprintf("Too many requests, try again in %s", retryAfter), nil)
			resp.SetRequestID(c.GetString("request_id"))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, resp)
			return
		}

		c.Header("X-RateLimit-Remaining", strconv.Itoa(int(limiter.Tokens())))
		c.Next()
	}
}

func (rl *RateLimiter) getLimiter(clientID string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.lastSeen[clientID] = time.Now()
	if limiter, exists := rl.clients[clientID]; exists {
		return limiter
	}

	limiter := rate.NewLimiter(rl.limit, rl.config.BurstSize)
	rl.clients[clientID] = limiter
	return limiter
}

// retryAfter is the time until one token is refilled, rounded up to a second
func (rl *RateLimiter) retryAfter() time.Duration {
	if rl.limit <= 0 || rl.limit == rate.Inf {
		return time.Second
	}
	interval := time.Duration(float64(time.Second) / float64(rl.limit))
	return interval.Truncate(time.Second) + time.Second
}

func (rl *RateLimiter) cleanupClients(ctx context.Context) {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.mu.Lock()
			cutoff := time.Now().Add(-rl.config.CleanupInterval * 2)
			for clientID, lastSeen := range rl.lastSeen {
				if lastSeen.Before(cutoff) {
					delete(rl.clients, clientID)
					delete(rl.lastSeen, clientID)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// GetStats returns rate limiter statistics
func (rl *RateLimiter) GetStats() map[string]interface{} {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	return map[string]interface{}{
		"active_clients":      len(rl.clients),
		"requests_per_minute": rl.config.RequestsPerMinute,
		"burst_size":          rl.config.BurstSize,
		"cleanup_interval":    rl.config.CleanupInterval.String(),
	}
}
