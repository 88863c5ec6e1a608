package auth

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"

	"workspace-auth/internal/observability"
)

// LoginIPCounter counts login attempts per client IP inside a fixed window.
type LoginIPCounter interface {
	AllowLoginIP(ctx context.Context, ip string, maxHits int, window time.Duration, now time.Time) (bool, time.Duration, error)
}

type LoginRateLimiter struct {
	counter LoginIPCounter
	maxHits int
	window  time.Duration
	logger  *observability.Logger
	now     func() time.Time
}

func NewLoginRateLimiter(counter LoginIPCounter, maxHits int, window time.Duration, logger *observability.Logger) *LoginRateLimiter {
	if maxHits <= 0 {
		maxHits = 10
	}
	if window <= 0 {
		window = time.Minute
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	return &LoginRateLimiter{
		counter: counter,
		maxHits: maxHits,
		window:  window,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Middleware rejects over-limit IPs with 429. A failing counter lets the
// request through; account lockout still applies behind it.
func (l *LoginRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := observability.ClientIP(r)

		allowed, retryAfter, err := l.counter.AllowLoginIP(r.Context(), ip, l.maxHits, l.window, l.now())
		if err != nil {
			sentry.CaptureException(err)
			l.logger.Error("login_rate_limit_failed", map[string]any{
				"ip":    ip,
				"error": err.Error(),
			})
			next.ServeHTTP(w, r)
			return
		}
		if !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
			writeError(w, http.StatusTooManyRequests, "too many login attempts")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// MemoryLoginCounter is a per-process sliding window, for local runs and tests.
type MemoryLoginCounter struct {
	mu        sync.Mutex
	hitByIP   map[string][]time.Time
	maxMemory int
}

func NewMemoryLoginCounter() *MemoryLoginCounter {
	return &MemoryLoginCounter{
		hitByIP:   make(map[string][]time.Time),
		maxMemory: 5000,
	}
}

func (c *MemoryLoginCounter) AllowLoginIP(_ context.Context, ip string, maxHits int, window time.Duration, now time.Time) (bool, time.Duration, error) {
	threshold := now.Add(-window)

	c.mu.Lock()
	defer c.mu.Unlock()

	hits := c.hitByIP[ip]
	filtered := make([]time.Time, 0, len(hits)+1)
	for _, hit := range hits {
		if hit.After(threshold) {
			filtered = append(filtered, hit)
		}
	}

	if len(filtered) >= maxHits {
		retryAfter := filtered[0].Add(window).Sub(now)
		if retryAfter < time.Second {
			retryAfter = time.Second
		}
		c.hitByIP[ip] = filtered
		return false, retryAfter, nil
	}

	c.hitByIP[ip] = append(filtered, now)

	if len(c.hitByIP) > c.maxMemory {
		for key, value := range c.hitByIP {
			if len(value) == 0 || value[len(value)-1].Before(threshold) {
				delete(c.hitByIP, key)
			}
		}
	}

	return true, 0, nil
}
