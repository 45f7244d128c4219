package httptransport

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"receipt-server-go/internal/platform/logging"
	"receipt-server-go/internal/platform/observability"
)

// RateLimiterConfig holds the per-client limits for credential endpoints.
type RateLimiterConfig struct {
	PerMinute       float64
	Burst           int
	CleanupInterval time.Duration
}

type clientLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter throttles requests per client IP.
type RateLimiter struct {
	limit    rate.Limit
	burst    int
	interval time.Duration
	logger   *logging.Logger
	metrics  observability.Recorder

	mu       sync.Mutex
	limiters map[string]*clientLimiter

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter creates a limiter and starts its cleanup loop.
func NewRateLimiter(cfg RateLimiterConfig, logger *logging.Logger, metrics observability.Recorder) *RateLimiter {
	if cfg.PerMinute <= 0 {
		cfg.PerMinute = 30
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 5 * time.Minute
	}
	if metrics == nil {
		metrics = observability.Nop{}
	}

	rl := &RateLimiter{
		limit:    rate.Limit(cfg.PerMinute / 60.0),
		burst:    cfg.Burst,
		interval: cfg.CleanupInterval,
		logger:   logger,
		metrics:  metrics,
		limiters: make(map[string]*clientLimiter),
		stopCh:   make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

// Stop ends the cleanup loop.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// Middleware rejects requests over the limit with 429.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if rl.limiterFor(ip).Allow() {
			c.Next()
			return
		}

		route := c.FullPath()
		rl.metrics.RecordRateLimited(route)
		if rl.logger != nil {
			rl.logger.WarnTag("HTTP", "rate limit exceeded for %s on %s", ip, route)
		}

		retryAfter := int(math.Ceil(1.0 / float64(rl.limit)))
		if retryAfter < 1 {
			retryAfter = 1
		}
		c.Header("Retry-After", strconv.Itoa(retryAfter))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, APIResponse{
			Success: false,
			Message: "Too many requests. Please try again later.",
			Code:    http.StatusTooManyRequests,
		})
	}
}

// Count returns the number of tracked clients.
func (rl *RateLimiter) Count() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

func (rl *RateLimiter) limiterFor(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if cl, ok := rl.limiters[key]; ok {
		cl.lastAccess = time.Now()
		return cl.limiter
	}
	limiter := rate.NewLimiter(rl.limit, rl.burst)
	rl.limiters[key] = &clientLimiter{limiter: limiter, lastAccess: time.Now()}
	return limiter
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup(time.Now())
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup drops clients idle for more than twice the cleanup interval.
func (rl *RateLimiter) cleanup(now time.Time) {
	ttl := rl.interval * 2

	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, cl := range rl.limiters {
		if now.Sub(cl.lastAccess) > ttl {
			delete(rl.limiters, key)
		}
	}
}
