package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	applogger "LagScope/pkg/logger"
)

// RateLimitConfig bounds requests per client IP with a token bucket.
type RateLimitConfig struct {
	RequestsPerSec float64
	Burst          int
	// IdleTTL evicts buckets of clients not seen for this long.
	IdleTTL time.Duration
	// Skip exempts requests, e.g. the metrics scrape.
	Skip func(c echo.Context) bool
	Now  func() time.Time
}

type clientBucket struct {
	lim  *rate.Limiter
	seen time.Time
}

type limiterSet struct {
	mu        sync.Mutex
	clients   map[string]*clientBucket
	cfg       RateLimitConfig
	lastSweep time.Time
}

func (s *limiterSet) allow(key string) bool {
	now := s.cfg.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	if now.Sub(s.lastSweep) > s.cfg.IdleTTL {
		for k, b := range s.clients {
			if now.Sub(b.seen) > s.cfg.IdleTTL {
				delete(s.clients, k)
			}
		}
		s.lastSweep = now
	}
	b, ok := s.clients[key]
	if !ok {
		b = &clientBucket{lim: rate.NewLimiter(rate.Limit(s.cfg.RequestsPerSec), s.cfg.Burst)}
		s.clients[key] = b
	}
	b.seen = now
	return b.lim.AllowN(now, 1)
}

// RateLimit answers 429 once a client IP exhausts its bucket. A
// non-positive rate disables limiting.
func RateLimit(cfg RateLimitConfig, l *applogger.Logger) echo.MiddlewareFunc {
	if cfg.RequestsPerSec <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	if cfg.Burst <= 0 {
		cfg.Burst = int(cfg.RequestsPerSec) + 1
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 10 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	set := &limiterSet{clients: make(map[string]*clientBucket), cfg: cfg, lastSweep: cfg.Now()}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Skip != nil && cfg.Skip(c) {
				return next(c)
			}
			ip := c.RealIP()
			if set.allow(ip) {
				return next(c)
			}
			l.Warn("rate limited", applogger.String("ip", ip), applogger.String("path", c.Path()))
			c.Response().Header().Set("Retry-After", "1")
			return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
				"status":  http.StatusTooManyRequests,
				"message": http.StatusText(http.StatusTooManyRequests),
			})
		}
	}
}
