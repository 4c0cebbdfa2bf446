package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	echo "github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

// MemoryRateLimitConfig configures the in-process token-bucket limiter used
// when requests are not limited through Redis (single instance, dev).
type MemoryRateLimitConfig struct {
	RPS          float64
	Burst        int
	IdleTTL      time.Duration // default 15m
	CleanupEvery time.Duration // default 2m
}

type limiterEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// originLimiters keeps one token bucket per origin and drops idle ones.
type originLimiters struct {
	mu          sync.Mutex
	entries     map[string]*limiterEntry
	cfg         MemoryRateLimitConfig
	lastCleanup time.Time
}

func (l *originLimiters) get(origin string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastCleanup) >= l.cfg.CleanupEvery {
		cutoff := now.Add(-l.cfg.IdleTTL)
		for k, ent := range l.entries {
			if ent.lastSeen.Before(cutoff) {
				delete(l.entries, k)
			}
		}
		l.lastCleanup = now
	}

	if ent, ok := l.entries[origin]; ok {
		ent.lastSeen = now
		return ent.lim
	}
	lim := rate.NewLimiter(rate.Limit(l.cfg.RPS), l.cfg.Burst)
	l.entries[origin] = &limiterEntry{lim: lim, lastSeen: now}
	return lim
}

// MemoryRateLimitMiddleware is the in-process counterpart of
// RateLimitMiddleware, keyed by the origin from OriginMiddleware.
func MemoryRateLimitMiddleware(cfg MemoryRateLimitConfig) echo.MiddlewareFunc {
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 15 * time.Minute
	}
	if cfg.CleanupEvery <= 0 {
		cfg.CleanupEvery = 2 * time.Minute
	}
	limiters := &originLimiters{entries: make(map[string]*limiterEntry), cfg: cfg}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			origin := OriginFromCtx(c)
			if origin == "" || cfg.RPS <= 0 {
				return next(c)
			}

			now := time.Now()
			res := limiters.get(origin, now).ReserveN(now, 1)
			if !res.OK() {
				return c.JSON(http.StatusTooManyRequests, map[string]string{"error": "rate limited"})
			}
			if delay := res.DelayFrom(now); delay > 0 {
				res.CancelAt(now)
				secs := int((delay + time.Second - 1) / time.Second)
				c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
				return c.JSON(http.StatusTooManyRequests, map[string]string{"error": "rate limited"})
			}
			return next(c)
		}
	}
}
