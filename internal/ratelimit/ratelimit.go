// Package ratelimit admits tool calls per category over a sliding window.
package ratelimit

import (
	"sync"
	"time"

	"github.com/sgx-labs/scout/internal/config"
)

// Category groups tools that share a budget.
type Category string

const (
	Search Category = "search"
	Fetch  Category = "fetch"
	Notes  Category = "notes"
)

// Limiter tracks admitted calls per category. Safe for concurrent use.
type Limiter struct {
	mu     sync.Mutex
	window time.Duration
	limits map[Category]int
	stamps map[Category][]time.Time
	now    func() time.Time
}

// New creates a limiter from the rate_limit config section.
func New(cfg config.RateLimitConfig) *Limiter {
	return &Limiter{
		window: cfg.Window(),
		limits: map[Category]int{
			Search: cfg.Search,
			Fetch:  cfg.Fetch,
			Notes:  cfg.Notes,
		},
		stamps: make(map[Category][]time.Time),
		now:    time.Now,
	}
}

// SetClock replaces the time source. Tests only.
func (l *Limiter) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

// Allow records a call in category c if the budget permits. When it does not,
// retryAfter is how long until the oldest call in the window expires.
func (l *Limiter) Allow(c Category) (allowed bool, retryAfter time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	limit := l.limits[c]
	if limit <= 0 || l.window <= 0 {
		return true, 0
	}

	now := l.now()
	cutoff := now.Add(-l.window)
	kept := l.stamps[c][:0]
	for _, ts := range l.stamps[c] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= limit {
		l.stamps[c] = kept
		return false, kept[0].Add(l.window).Sub(now)
	}
	l.stamps[c] = append(kept, now)
	return true, 0
}

// Remaining reports how many calls category c may still make in the current
// window. -1 means unlimited.
func (l *Limiter) Remaining(c Category) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	limit := l.limits[c]
	if limit <= 0 || l.window <= 0 {
		return -1
	}
	cutoff := l.now().Add(-l.window)
	n := 0
	for _, ts := range l.stamps[c] {
		if ts.After(cutoff) {
			n++
		}
	}
	if n >= limit {
		return 0
	}
	return limit - n
}
