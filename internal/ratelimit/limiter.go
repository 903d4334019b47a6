// Package ratelimit tracks per-user AI-call counts over a rolling 24-hour
// window. Counters live in process memory only; a restart resets all
// free-tier windows, which is an accepted trade-off for this service.
package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/meridell/daybook/internal/tier"
)

// Window is the rolling quota period.
const Window = 24 * time.Hour

// Result reports the outcome of a quota check.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

type counter struct {
	count       int
	windowStart time.Time
}

// Limiter owns the counter map. All access goes through CheckAndIncrement;
// nothing else reads or writes the counters.
type Limiter struct {
	mu       sync.Mutex
	counters map[string]*counter
	now      func() time.Time
}

// New creates a Limiter using the real clock.
func New() *Limiter {
	return NewWithClock(time.Now)
}

// NewWithClock creates a Limiter with an injected clock, used by tests to
// control window expiry.
func NewWithClock(now func() time.Time) *Limiter {
	return &Limiter{
		counters: make(map[string]*counter),
		now:      now,
	}
}

// CheckAndIncrement consumes one quota slot for userID if any remain.
// Premium users are always allowed and never touch the counter map.
func (l *Limiter) CheckAndIncrement(userID string, t tier.Tier) Result {
	quota := tier.DailyQuota(t)
	if quota == tier.UnlimitedQuota {
		return Result{Allowed: true, Remaining: tier.UnlimitedQuota}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	c, ok := l.counters[userID]
	if !ok || now.Sub(c.windowStart) >= Window {
		c = &counter{windowStart: now}
		l.counters[userID] = c
	}

	resetAt := c.windowStart.Add(Window)
	if c.count >= quota {
		return Result{Allowed: false, Remaining: 0, ResetAt: resetAt}
	}

	c.count++
	return Result{Allowed: true, Remaining: quota - c.count, ResetAt: resetAt}
}

// Peek reports the current state for userID without consuming a slot.
func (l *Limiter) Peek(userID string, t tier.Tier) Result {
	quota := tier.DailyQuota(t)
	if quota == tier.UnlimitedQuota {
		return Result{Allowed: true, Remaining: tier.UnlimitedQuota}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	c, ok := l.counters[userID]
	if !ok || now.Sub(c.windowStart) >= Window {
		return Result{Allowed: true, Remaining: quota, ResetAt: now.Add(Window)}
	}

	remaining := quota - c.count
	return Result{
		Allowed:   remaining > 0,
		Remaining: remaining,
		ResetAt:   c.windowStart.Add(Window),
	}
}

// sweep drops counters whose window has fully elapsed so the map does not
// grow with one entry per user forever.
func (l *Limiter) sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for id, c := range l.counters {
		if now.Sub(c.windowStart) >= Window {
			delete(l.counters, id)
			removed++
		}
	}
	return removed
}

// Run sweeps expired counters on interval until ctx is cancelled.
// If interval <= 0 it defaults to one hour.
func (l *Limiter) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := l.sweep(); n > 0 {
				slog.Debug("rate limiter sweep", "expired_windows", n)
			}
		}
	}
}
