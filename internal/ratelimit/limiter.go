// Package ratelimit provides process-local burst damping. It only smooths
// rapid duplicate clicks from one visitor; the durable cooldown on the
// identity row is the authoritative anti-abuse control and this map resetting
// on restart is acceptable.
package ratelimit

import (
	"sync"
	"time"

	"fortuna/pkg/domain"
)

// defaultMaxEntries bounds the map before pruning kicks in.
const defaultMaxEntries = 16384

// IntervalLimiter tracks the last action time per identity and rejects
// actions arriving within the configured minimum interval. The map is bounded:
// once it crosses maxEntries, entries older than the interval are pruned in
// place (they can no longer influence an Allow decision).
type IntervalLimiter struct {
	mu         sync.Mutex
	interval   time.Duration
	maxEntries int
	last       map[domain.IdentityID]time.Time
	now        func() time.Time
}

// Option configures an IntervalLimiter.
type Option func(*IntervalLimiter)

// WithClock sets the clock function for testability.
func WithClock(now func() time.Time) Option {
	return func(l *IntervalLimiter) {
		if now != nil {
			l.now = now
		}
	}
}

// WithMaxEntries overrides the pruning watermark.
func WithMaxEntries(n int) Option {
	return func(l *IntervalLimiter) {
		if n > 0 {
			l.maxEntries = n
		}
	}
}

// NewIntervalLimiter builds a limiter enforcing the given minimum interval
// between actions per identity. A non-positive interval disables limiting.
func NewIntervalLimiter(interval time.Duration, opts ...Option) *IntervalLimiter {
	l := &IntervalLimiter{
		interval:   interval,
		maxEntries: defaultMaxEntries,
		last:       make(map[domain.IdentityID]time.Time),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow reports whether the identity may act now. A denied call leaves the
// recorded timestamp untouched so hammering does not push the window forward.
func (l *IntervalLimiter) Allow(id domain.IdentityID) bool {
	if l.interval <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if last, ok := l.last[id]; ok && now.Sub(last) < l.interval {
		return false
	}

	if len(l.last) >= l.maxEntries {
		l.prune(now)
	}
	l.last[id] = now
	return true
}

// Len reports the current number of tracked identities.
func (l *IntervalLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.last)
}

// prune drops entries outside the interval window. Caller holds l.mu.
func (l *IntervalLimiter) prune(now time.Time) {
	cutoff := now.Add(-l.interval)
	for id, last := range l.last {
		if last.Before(cutoff) {
			delete(l.last, id)
		}
	}
}
