package ratelimit

import (
	"context"
	"sync"
	"time"
)

const sweepThreshold = 4096

type counter struct {
	count       int
	windowStart time.Time
	lockedUntil time.Time
}

// MemoryLimiter is an in-process Limiter. Used when no REDIS_URL is configured and in tests.
type MemoryLimiter struct {
	mu     sync.Mutex
	policy Policy
	keys   map[string]*counter
	nowF   func() time.Time
}

// NewMemoryLimiter returns a MemoryLimiter enforcing policy.
func NewMemoryLimiter(policy Policy) *MemoryLimiter {
	return &MemoryLimiter{
		policy: policy,
		keys:   make(map[string]*counter),
		nowF:   func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the limiter clock. Intended for tests.
func (l *MemoryLimiter) WithClock(now func() time.Time) *MemoryLimiter {
	l.nowF = now
	return l
}

func (l *MemoryLimiter) Locked(ctx context.Context, key Key) (time.Time, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.keys[key.String()]
	if ok && l.nowF().Before(c.lockedUntil) {
		return c.lockedUntil, true, nil
	}
	return time.Time{}, false, nil
}

func (l *MemoryLimiter) Fail(ctx context.Context, key Key) (time.Time, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.nowF()
	if len(l.keys) > sweepThreshold {
		l.sweep(now)
	}
	k := key.String()
	c, ok := l.keys[k]
	if !ok {
		c = &counter{}
		l.keys[k] = c
	}
	if now.Before(c.lockedUntil) {
		return c.lockedUntil, true, nil
	}
	if c.windowStart.IsZero() || !now.Before(c.windowStart.Add(l.policy.Window)) {
		c.count = 0
		c.windowStart = now
	}
	c.count++
	if c.count >= l.policy.MaxAttempts {
		c.lockedUntil = now.Add(l.policy.Lockout)
		c.count = 0
		c.windowStart = time.Time{}
		return c.lockedUntil, true, nil
	}
	return time.Time{}, false, nil
}

func (l *MemoryLimiter) Reset(ctx context.Context, key Key) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.keys, key.String())
	return nil
}

// sweep drops counters with no live window and no live lock. Caller holds mu.
func (l *MemoryLimiter) sweep(now time.Time) {
	for k, c := range l.keys {
		if !now.Before(c.lockedUntil) && (c.windowStart.IsZero() || !now.Before(c.windowStart.Add(l.policy.Window))) {
			delete(l.keys, k)
		}
	}
}
