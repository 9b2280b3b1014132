// Package monitor drives periodic flow table maintenance.
package monitor

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// DefaultInterval is the bucket width of the reference window.
const DefaultInterval = 10 * time.Second

// Tickable is advanced once per interval.
type Tickable interface {
	Tick()
}

// Config holds monitor configuration.
type Config struct {
	Interval time.Duration
	// OnTick, when set, runs after every tick.
	OnTick func()
}

// Monitor ticks a target at a fixed interval.
type Monitor struct {
	cfg    Config
	target Tickable
	logger *zap.Logger
}

// New creates a Monitor for target.
func New(cfg Config, target Tickable, logger *zap.Logger) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{cfg: cfg, target: target, logger: logger}
}

// Interval returns the tick period.
func (m *Monitor) Interval() time.Duration {
	return m.cfg.Interval
}

// Run ticks immediately and then every interval. Blocks until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	m.logger.Info("flow maintenance started", zap.Duration("interval", m.cfg.Interval))
	m.tick()
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("flow maintenance stopped")
			return nil
		case <-ticker.C:
			m.tick()
		}
	}
}

func (m *Monitor) tick() {
	m.target.Tick()
	if m.cfg.OnTick != nil {
		m.cfg.OnTick()
	}
}
