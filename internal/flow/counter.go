// Package flow accounts bytes exchanged between principals per taint tag
// over a decaying window.
package flow

import "github.com/ppiankov/flowgraph/internal/taint"

// DefaultWindow is the number of buckets in a counter. With a 10s tick this
// is a 60s rolling window.
const DefaultWindow = 6

// Counter is a fixed-width sliding-window byte accumulator for one tag.
// Index len-1 is the newest bucket. Counter is not safe for concurrent use;
// callers serialize access.
type Counter struct {
	tag     taint.Tag
	buckets []uint64
	total   uint64
}

// NewCounter creates a counter with initial deposited in the newest bucket.
// A width below 1 falls back to DefaultWindow.
func NewCounter(tag taint.Tag, width int, initial uint64) *Counter {
	if width < 1 {
		width = DefaultWindow
	}
	c := &Counter{tag: tag, buckets: make([]uint64, width)}
	c.Add(initial)
	return c
}

// Tag returns the label this counter tracks.
func (c *Counter) Tag() taint.Tag {
	return c.tag
}

// Width returns the number of buckets.
func (c *Counter) Width() int {
	return len(c.buckets)
}

// Add deposits bytes into the newest bucket.
func (c *Counter) Add(bytes uint64) {
	c.buckets[len(c.buckets)-1] += bytes
	c.total += bytes
}

// Advance shifts every bucket one step toward index 0, dropping the oldest,
// and zeroes the newest.
func (c *Counter) Advance() {
	c.total -= c.buckets[0]
	copy(c.buckets, c.buckets[1:])
	c.buckets[len(c.buckets)-1] = 0
}

// Total returns the sum of all buckets.
func (c *Counter) Total() uint64 {
	return c.total
}

// Buckets returns a copy of the bucket values, oldest first.
func (c *Counter) Buckets() []uint64 {
	out := make([]uint64, len(c.buckets))
	copy(out, c.buckets)
	return out
}
