// Package ratelimit throttles repeated events per key over a fixed window.
package ratelimit

import "time"

// Limit allows at most MaxEvents per key in each Window.
// Zero values mean no limit.
type Limit struct {
	MaxEvents int           `yaml:"max_events" json:"max_events"`
	Window    time.Duration `yaml:"window" json:"window"`
}

// Enabled reports whether the limit restricts anything.
func (l Limit) Enabled() bool {
	return l.MaxEvents > 0 && l.Window > 0
}
