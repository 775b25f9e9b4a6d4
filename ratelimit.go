package auth

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-errors"
	"golang.org/x/time/rate"
)

// ErrTooManyRequests is returned once a client spent its burst
var ErrTooManyRequests = errors.New("too many attempts, try again later", errors.CategoryRateLimit).
	WithCode(fiber.StatusTooManyRequests).
	WithTextCode("TOO_MANY_REQUESTS")

// KeyedLimiter keeps one token bucket per key, dropping buckets that
// were idle for longer than ttl. Idle buckets are swept at most once
// per ttl.
type KeyedLimiter struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	ttl       time.Duration
	now       func() time.Time
	lastSweep time.Time
	entries   map[string]*limBucket
}

type limBucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func NewKeyedLimiter(perSec float64, burst int, ttl time.Duration) *KeyedLimiter {
	return &KeyedLimiter{
		limit:   rate.Limit(perSec),
		burst:   burst,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]*limBucket),
	}
}

// Allow consumes a token for key
func (m *KeyedLimiter) Allow(key string) bool {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()

	b := m.entries[key]
	if b == nil {
		b = &limBucket{lim: rate.NewLimiter(m.limit, m.burst), lastSeen: now}
		m.entries[key] = b
	}
	b.lastSeen = now

	if m.ttl > 0 && now.Sub(m.lastSweep) >= m.ttl {
		m.sweep(now)
	}

	return b.lim.AllowN(now, 1)
}

func (m *KeyedLimiter) sweep(now time.Time) {
	for k, v := range m.entries {
		if now.Sub(v.lastSeen) > m.ttl {
			delete(m.entries, k)
		}
	}
	m.lastSweep = now
}

// Len is the number of tracked keys
func (m *KeyedLimiter) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// RateLimit rejects requests over the limit per client IP. Forwarded
// headers only count when the app trusts the sending proxy, see
// Config.Proxy.
func RateLimit(limiter *KeyedLimiter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if limiter == nil {
			return c.Next()
		}
		if !limiter.Allow(c.IP()) {
			c.Set(fiber.HeaderRetryAfter, "1")
			return ErrTooManyRequests
		}
		return c.Next()
	}
}
