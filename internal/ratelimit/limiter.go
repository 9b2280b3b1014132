package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

// CheckResult is the outcome of a rate limit check.
type CheckResult struct {
	Exceeded bool
	Key      string
	Current  int
	Limit    int
	Reason   string
}

// Limiter counts events per key. A nil Limiter allows everything.
type Limiter struct {
	limit Limit

	mu       sync.Mutex
	counters map[string]*counter
	now      func() time.Time
}

// New returns a Limiter for l, or nil if l is not enabled.
func New(l Limit) *Limiter {
	if !l.Enabled() {
		return nil
	}
	return &Limiter{
		limit:    l,
		counters: make(map[string]*counter),
		now:      time.Now,
	}
}

// Check records an event for key unless the key is already at its limit.
func (l *Limiter) Check(key string) CheckResult {
	if l == nil {
		return CheckResult{Key: key}
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.prune(now)
	c := l.counters[key]
	if c == nil {
		c = &counter{start: now}
		l.counters[key] = c
	}
	count := c.snapshot(l.limit.Window, now)
	if count >= l.limit.MaxEvents {
		return CheckResult{
			Exceeded: true,
			Key:      key,
			Current:  count,
			Limit:    l.limit.MaxEvents,
			Reason: fmt.Sprintf("rate limit exceeded: %d/%d events in %s window",
				count, l.limit.MaxEvents, l.limit.Window),
		}
	}
	c.count++
	return CheckResult{Key: key, Current: c.count, Limit: l.limit.MaxEvents}
}

// Allow is Check reduced to a boolean.
func (l *Limiter) Allow(key string) bool {
	return !l.Check(key).Exceeded
}

// prune drops keys whose window expired. Caller holds mu.
func (l *Limiter) prune(now time.Time) {
	for k, c := range l.counters {
		if now.Sub(c.start) >= l.limit.Window {
			delete(l.counters, k)
		}
	}
}
