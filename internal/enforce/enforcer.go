// Package enforce carries out threshold violations: it terminates the
// offending principal's processes, journals the decision and raises alerts.
package enforce

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/flowgraph/internal/alert"
	"github.com/ppiankov/flowgraph/internal/audit"
	"github.com/ppiankov/flowgraph/internal/flowgraph"
	"github.com/ppiankov/flowgraph/internal/metrics"
	"github.com/ppiankov/flowgraph/internal/policy"
	"github.com/ppiankov/flowgraph/internal/ratelimit"
)

// Options configures an Enforcer. Mode defaults to policy.ModeKill and Killer
// to SignalKiller.
type Options struct {
	Mode       string
	PolicyHash string
	Killer     Killer
	Audit      audit.Sink
	Alerts     *alert.Dispatcher
	AlertLimit ratelimit.Limit
	Metrics    *metrics.Metrics
	Logger     *zap.Logger
}

// Enforcer implements flowgraph.Enforcer.
type Enforcer struct {
	killer  Killer
	audit   audit.Sink
	metrics *metrics.Metrics
	logger  *zap.Logger

	mu         sync.RWMutex
	mode       string
	policyHash string
	alerts     *alert.Dispatcher
	alertLimit ratelimit.Limit
	throttle   *ratelimit.Limiter
}

// New creates an Enforcer.
func New(opts Options) *Enforcer {
	if opts.Mode == "" {
		opts.Mode = policy.ModeKill
	}
	if opts.Killer == nil {
		opts.Killer = SignalKiller{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Enforcer{
		killer:     opts.Killer,
		audit:      opts.Audit,
		metrics:    opts.Metrics,
		logger:     opts.Logger,
		mode:       opts.Mode,
		policyHash: opts.PolicyHash,
		alerts:     opts.Alerts,
		alertLimit: opts.AlertLimit,
		throttle:   ratelimit.New(opts.AlertLimit),
	}
}

// SetPolicy swaps the enforcement mode, policy hash and alert routes.
func (e *Enforcer) SetPolicy(mode, hash string, alerts *alert.Dispatcher) {
	if mode == "" {
		mode = policy.ModeKill
	}
	e.mu.Lock()
	e.mode = mode
	e.policyHash = hash
	e.alerts = alerts
	e.mu.Unlock()
}

// SetAlertLimit bounds enforce alerts per target UID and tag. Counts are
// kept while the limit is unchanged.
func (e *Enforcer) SetAlertLimit(l ratelimit.Limit) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if l == e.alertLimit {
		return
	}
	e.alertLimit = l
	e.throttle = ratelimit.New(l)
}

// Mode returns the active enforcement mode.
func (e *Enforcer) Mode() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.mode
}

// Enforce terminates every process in req.PIDs (kill mode) and records the
// outcome. Individual kill failures are logged and do not stop the others.
// Kills always run to completion; ctx cancellation does not interrupt them.
// Each violation in req is metered, journaled and alerted on its own, all
// sharing the single kill pass.
func (e *Enforcer) Enforce(ctx context.Context, req flowgraph.Enforcement) {
	e.mu.RLock()
	mode, hash, alerts, throttle := e.mode, e.policyHash, e.alerts, e.throttle
	e.mu.RUnlock()

	target := req.Action.Target
	pids := make([]int32, len(req.PIDs))
	for i, p := range req.PIDs {
		pids[i] = int32(p)
	}

	killed := 0
	var failed []int32
	if mode == policy.ModeKill {
		for _, pid := range req.PIDs {
			cmd := Cmdline(pid)
			err := e.killer.Kill(pid)
			e.metrics.Kill(err)
			if err != nil {
				failed = append(failed, int32(pid))
				e.logger.Error("kill failed",
					zap.Int32("pid", int32(pid)), zap.Int32("uid", int32(target)), zap.Error(err))
				continue
			}
			killed++
			e.logger.Info("killed process",
				zap.Int32("pid", int32(pid)), zap.Int32("uid", int32(target)), zap.String("cmdline", cmd))
		}
	}

	ts := time.Now().UTC().Format(audit.TimestampFormat)
	for _, v := range req.Violations() {
		act := v.Action
		tag := act.Tag.String()
		e.metrics.Enforcement(tag, mode)

		e.logger.Warn("flow policy violation",
			zap.String("mode", mode),
			zap.Int32("source_uid", int32(act.Flow.From)),
			zap.Int32("target_uid", int32(act.Target)),
			zap.String("tag", tag),
			zap.Uint64("bytes", act.Total),
			zap.Uint64("threshold", act.Threshold),
			zap.Int("processes", len(pids)),
			zap.Int("killed", killed))

		e.record(audit.Entry{
			Timestamp:  ts,
			Event:      audit.EventEnforce,
			Mode:       mode,
			SourceUID:  int32(act.Flow.From),
			TargetUID:  int32(act.Target),
			Tag:        tag,
			Bytes:      act.Total,
			Threshold:  act.Threshold,
			PIDs:       pids,
			Killed:     killed,
			Reason:     act.Reason,
			PolicyID:   act.PolicyID,
			PolicyHash: hash,
		})

		if alerts == nil {
			continue
		}
		if r := throttle.Check(fmt.Sprintf("%d/%s", act.Target, tag)); r.Exceeded {
			e.logger.Debug("enforce alert throttled",
				zap.Int32("target_uid", int32(act.Target)), zap.String("tag", tag), zap.String("reason", r.Reason))
			continue
		}
		alerts.Dispatch(alertEvent(ts, alert.TypeEnforce, mode, hash, v, pids, killed))
	}

	if alerts != nil && len(failed) > 0 {
		primary := flowgraph.Violation{Action: req.Action, TagName: req.TagName}
		alerts.Dispatch(alertEvent(ts, alert.TypeKillFailed, mode, hash, primary, failed, killed))
	}
}

func alertEvent(ts, typ, mode, hash string, v flowgraph.Violation, pids []int32, killed int) alert.AlertEvent {
	act := v.Action
	return alert.AlertEvent{
		Timestamp:  ts,
		Type:       typ,
		Mode:       mode,
		Source:     int32(act.Flow.From),
		Target:     int32(act.Target),
		Tag:        act.Tag.String(),
		TagName:    v.TagName,
		Bytes:      act.Total,
		Threshold:  act.Threshold,
		PIDs:       pids,
		Killed:     killed,
		Reason:     act.Reason,
		PolicyHash: hash,
	}
}

func (e *Enforcer) record(entry audit.Entry) {
	if e.audit == nil {
		return
	}
	if err := e.audit.Record(entry); err != nil {
		e.logger.Error("audit record failed", zap.Error(err))
	}
}

var _ flowgraph.Enforcer = (*Enforcer)(nil)
