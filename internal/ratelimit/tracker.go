package ratelimit

import "time"

// counter is the fixed-window state of one key.
type counter struct {
	start time.Time
	count int
}

// snapshot returns the count for the current window, resetting it once the
// window has expired.
func (c *counter) snapshot(window time.Duration, now time.Time) int {
	if now.Sub(c.start) >= window {
		c.start = now
		c.count = 0
	}
	return c.count
}
