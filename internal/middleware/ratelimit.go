package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// RateLimit caps requests per caller (or client IP when unauthenticated) for
// the given scope using fixed one-minute windows in Redis. Without Redis each
// instance enforces the cap with a local token bucket per subject.
func RateLimit(cache redis.UniversalClient, scope string, maxPerMin int) fiber.Handler {
	if maxPerMin <= 0 {
		maxPerMin = 10
	}
	local := newLocalLimiter(maxPerMin)
	return func(c *fiber.Ctx) error {
		subject := c.IP()
		if caller, ok := CallerFrom(c); ok && caller.UserID != "" {
			subject = caller.UserID
		}
		if cache == nil {
			if !local.allow(subject) {
				return fiber.NewError(http.StatusTooManyRequests, "too many requests, try again later")
			}
			return c.Next()
		}
		key := "rl:" + scope + ":" + subject
		cnt, err := cache.Incr(c.UserContext(), key).Result()
		if err != nil {
			return c.Next() // fail-open on cache errors
		}
		if cnt == 1 {
			cache.Expire(c.UserContext(), key, time.Minute)
		}
		if cnt > int64(maxPerMin) {
			return fiber.NewError(http.StatusTooManyRequests, "too many requests, try again later")
		}
		return c.Next()
	}
}

// localLimiter keeps one token bucket per subject. A bucket idle for a full
// window has refilled, so it is dropped on the next sweep.
type localLimiter struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	idle      time.Duration
	lastSweep time.Time
	limiters  map[string]*localBucket
	now       func() time.Time
}

type localBucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func newLocalLimiter(maxPerMin int) *localLimiter {
	return &localLimiter{
		limit:    rate.Every(time.Minute / time.Duration(maxPerMin)),
		burst:    maxPerMin,
		idle:     time.Minute,
		limiters: make(map[string]*localBucket),
		now:      time.Now,
	}
}

func (l *localLimiter) allow(subject string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if now.Sub(l.lastSweep) >= l.idle {
		for key, b := range l.limiters {
			if now.Sub(b.lastSeen) >= l.idle {
				delete(l.limiters, key)
			}
		}
		l.lastSweep = now
	}
	b, ok := l.limiters[subject]
	if !ok {
		b = &localBucket{lim: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[subject] = b
	}
	b.lastSeen = now
	return b.lim.AllowN(now, 1)
}

func (l *localLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}
