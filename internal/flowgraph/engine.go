// Package flowgraph is the flow accounting and policy enforcement engine.
//
// Engine composes the process registry, the decaying flow table and the
// policy engine behind a single mutex. Lifecycle and communication events
// arrive from the transport layer; Tick is driven by an external scheduler.
package flowgraph

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/flowgraph/internal/flow"
	"github.com/ppiankov/flowgraph/internal/metrics"
	"github.com/ppiankov/flowgraph/internal/model"
	"github.com/ppiankov/flowgraph/internal/policy"
	"github.com/ppiankov/flowgraph/internal/registry"
	"github.com/ppiankov/flowgraph/internal/taint"
)

// Violation is one exceeded (flow, tag) threshold.
type Violation struct {
	Action  policy.Action
	TagName string
}

// Enforcement is a request to terminate every process of a principal that
// exceeded a tag threshold. Action is the first exceeded tag of the event;
// Also holds any further tags the same event pushed over their thresholds
// for the same principal.
type Enforcement struct {
	Action  policy.Action
	TagName string
	Also    []Violation
	PIDs    []model.PID
}

// Violations returns every exceeded threshold of the request, first tag first.
func (e Enforcement) Violations() []Violation {
	out := make([]Violation, 0, 1+len(e.Also))
	out = append(out, Violation{Action: e.Action, TagName: e.TagName})
	return append(out, e.Also...)
}

// Enforcer carries out enforcement requests. It is called without the engine
// lock held, so it may call back into the engine. The context carries the
// caller's values but never its cancellation.
type Enforcer interface {
	Enforce(ctx context.Context, e Enforcement)
}

// Options configures an Engine. Zero values select defaults: the reference
// policy, a 6-bucket window of 10s buckets, the built-in tag labels and no
// enforcer. Interval only labels rendered throughput; ticking is external.
type Options struct {
	Policy   *policy.Engine
	Window   int
	Interval time.Duration
	Namer    taint.Namer
	Enforcer Enforcer
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
}

// Engine is the flow graph accounting engine. It is safe for concurrent use.
type Engine struct {
	mu     sync.Mutex
	procs  *registry.Registry
	flows  *flow.Table
	policy *policy.Engine
	namer  taint.Namer
	span   time.Duration

	enforcer Enforcer
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// New creates an Engine.
func New(opts Options) *Engine {
	if opts.Policy == nil {
		opts.Policy = policy.NewEngine(policy.DefaultConfig().Rules)
	}
	if opts.Window < 1 {
		opts.Window = flow.DefaultWindow
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Namer == nil {
		opts.Namer = taint.DefaultNames
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Engine{
		procs:    registry.New(),
		flows:    flow.NewTable(opts.Window),
		policy:   opts.Policy,
		namer:    opts.Namer,
		span:     time.Duration(opts.Window) * opts.Interval,
		enforcer: opts.Enforcer,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
	}
}

// SetPolicy swaps the threshold table and tag labels. Accumulated traffic is kept.
func (e *Engine) SetPolicy(p *policy.Engine, namer taint.Namer) {
	if namer == nil {
		namer = taint.DefaultNames
	}
	e.mu.Lock()
	e.policy = p
	e.namer = namer
	e.mu.Unlock()
}

// OnSpawn registers pid under uid.
func (e *Engine) OnSpawn(pid model.PID, uid model.Principal) {
	e.mu.Lock()
	defer e.mu.Unlock()

	res := e.procs.Spawn(pid, uid)
	e.logger.Debug("spawn process", zap.Int32("pid", int32(pid)), zap.Int32("uid", int32(uid)))
	if res.Moved {
		e.logger.Warn("process re-spawned under another uid",
			zap.Int32("pid", int32(pid)),
			zap.Int32("previous_uid", int32(res.Previous)),
			zap.Int32("uid", int32(uid)))
		if res.PreviousExtinct {
			e.dropPrincipal(res.Previous)
		}
	}
	e.updateGauges()
}

// OnExit removes pid from uid. When uid has no processes left, every flow
// it takes part in is dropped. Unknown pids are logged and ignored.
func (e *Engine) OnExit(pid model.PID, uid model.Principal) {
	e.mu.Lock()
	defer e.mu.Unlock()

	extinct, err := e.procs.Exit(pid, uid)
	if err != nil {
		e.metrics.Violation("exit")
		e.logger.Warn("exit for unknown process ignored",
			zap.Int32("pid", int32(pid)), zap.Int32("uid", int32(uid)), zap.Error(err))
		return
	}
	e.logger.Debug("exit process", zap.Int32("pid", int32(pid)), zap.Int32("uid", int32(uid)))
	if extinct {
		e.dropPrincipal(uid)
	}
	e.updateGauges()
}

// dropPrincipal removes all flows of an extinct principal. Caller holds e.mu.
func (e *Engine) dropPrincipal(uid model.Principal) {
	n := e.flows.RemoveFlowsFor(uid)
	e.logger.Debug("principal extinct", zap.Int32("uid", int32(uid)), zap.Int("counters_removed", n))
}

// OnSetName sets the display name of pid. Unknown pids are logged and ignored.
func (e *Engine) OnSetName(pid model.PID, name string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.procs.SetName(pid, name); err != nil {
		e.metrics.Violation("set_name")
		e.logger.Warn("name for unknown process ignored",
			zap.Int32("pid", int32(pid)), zap.String("name", name), zap.Error(err))
		return
	}
	e.logger.Debug("process name", zap.Int32("pid", int32(pid)), zap.String("name", name))
}

// Communication is one tagged transfer between two processes. PIDs are
// informational; accounting keys on the UID pair.
type Communication struct {
	FromPID model.PID
	FromUID model.Principal
	ToPID   model.PID
	ToUID   model.Principal
	Size    int32
	TagMask int32
}

// OnCommunication attributes c.Size bytes to every tag in c.TagMask on the
// (FromUID, ToUID) flow and evaluates each updated total. Enforcement requests
// are handed to the Enforcer after the engine lock is released, at most one
// per target principal per event. The issued requests are returned.
// Enforcement is not tied to the caller: a cancelled ctx still kills.
func (e *Engine) OnCommunication(ctx context.Context, c Communication) []Enforcement {
	e.metrics.Communication()
	e.logger.Debug("communication",
		zap.Int32("from_pid", int32(c.FromPID)), zap.Int32("from_uid", int32(c.FromUID)),
		zap.Int32("to_pid", int32(c.ToPID)), zap.Int32("to_uid", int32(c.ToUID)),
		zap.Int32("bytes", c.Size), zap.Int32("taint_tag", c.TagMask))

	if c.Size < 0 {
		e.metrics.Violation("communication")
		e.logger.Warn("communication with negative size ignored", zap.Int32("bytes", c.Size))
		return nil
	}
	tags := taint.Decompose(c.TagMask)
	if len(tags) == 0 || c.Size == 0 {
		return nil
	}

	key := model.FlowKey{From: c.FromUID, To: c.ToUID}
	size := uint64(c.Size)

	var pending []Enforcement
	e.mu.Lock()
	targets := make(map[model.Principal]int)
	for _, tag := range tags {
		total := e.flows.Record(key, tag, size)
		e.metrics.Accounted(tag.String(), size)

		action := e.policy.Evaluate(key, tag, total)
		if action.Kind != policy.Enforce {
			continue
		}
		if i, ok := targets[action.Target]; ok {
			pending[i].Also = append(pending[i].Also, Violation{Action: action, TagName: e.namer.Name(tag)})
			continue
		}
		targets[action.Target] = len(pending)
		pending = append(pending, Enforcement{
			Action:  action,
			TagName: e.namer.Name(tag),
			PIDs:    e.procs.ProcessesOf(action.Target),
		})
	}
	e.updateGauges()
	e.mu.Unlock()

	enforceCtx := context.WithoutCancel(ctx)
	for _, enf := range pending {
		for _, v := range enf.Violations() {
			e.logger.Info("threshold exceeded",
				zap.String("flow", v.Action.Flow.String()),
				zap.String("tag", v.Action.Tag.String()),
				zap.Uint64("bytes", v.Action.Total),
				zap.Uint64("threshold", v.Action.Threshold),
				zap.Int("processes", len(enf.PIDs)))
		}
		if e.enforcer != nil {
			e.enforcer.Enforce(enforceCtx, enf)
		}
	}
	return pending
}

// Tick advances every counter by one bucket and drops counters that decayed
// to zero. It must be called at the window interval by an external scheduler.
func (e *Engine) Tick() {
	e.mu.Lock()
	defer e.mu.Unlock()

	res := e.flows.AdvanceAll()
	for _, s := range res.Removed {
		e.logger.Debug("removing link",
			zap.Int32("from_uid", int32(s.Key.From)), zap.Int32("to_uid", int32(s.Key.To)),
			zap.String("tag", s.Tag.String()))
	}
	for _, s := range res.Live {
		e.logger.Debug("link throughput",
			zap.Int32("from_uid", int32(s.Key.From)), zap.Int32("to_uid", int32(s.Key.To)),
			zap.String("tag", s.Tag.String()), zap.Uint64("bytes_per_window", s.Bytes))
	}
	e.metrics.Tick()
	e.updateGauges()
}

// updateGauges publishes table and registry sizes. Caller holds e.mu.
func (e *Engine) updateGauges() {
	e.metrics.Live(e.flows.Len(), len(e.procs.Principals()), e.procs.Len())
}

// FlowInfo describes one live (flow, tag) counter.
type FlowInfo struct {
	From      model.Principal `json:"from_uid"`
	To        model.Principal `json:"to_uid"`
	Tag       taint.Tag       `json:"tag"`
	TagName   string          `json:"tag_name"`
	Bytes     uint64          `json:"bytes"`
	Threshold *uint64         `json:"threshold,omitempty"`
}

// Flows returns every live counter ordered by source, destination and tag.
func (e *Engine) Flows() []FlowInfo {
	e.mu.Lock()
	defer e.mu.Unlock()

	samples := e.flows.Snapshot()
	out := make([]FlowInfo, 0, len(samples))
	for _, s := range samples {
		info := FlowInfo{
			From:    s.Key.From,
			To:      s.Key.To,
			Tag:     s.Tag,
			TagName: e.namer.Name(s.Tag),
			Bytes:   s.Bytes,
		}
		if limit, ok := e.policy.Threshold(s.Tag); ok {
			info.Threshold = &limit
		}
		out = append(out, info)
	}
	return out
}

// Rules returns the active threshold table.
func (e *Engine) Rules() []policy.Rule {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.policy.Rules()
}

// Processes returns the processes registered under uid.
func (e *Engine) Processes(uid model.Principal) []model.PID {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.procs.ProcessesOf(uid)
}

// NameOf returns the display name of pid.
func (e *Engine) NameOf(pid model.PID) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.procs.NameOf(pid)
}

// Stats summarizes the engine state.
type Stats struct {
	Principals int `json:"principals"`
	Processes  int `json:"processes"`
	Flows      int `json:"flows"`
	Counters   int `json:"counters"`
}

// Stats returns current sizes.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Stats{
		Principals: len(e.procs.Principals()),
		Processes:  e.procs.Len(),
		Flows:      e.flows.Flows(),
		Counters:   e.flows.Len(),
	}
}

// Snapshot captures registry and flow state under one critical section.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Engine) snapshotLocked() Snapshot {
	snap := Snapshot{Flows: e.flows.Snapshot(), Window: e.span}
	for _, uid := range e.procs.Principals() {
		ps := PrincipalSnapshot{UID: uid}
		for _, pid := range e.procs.ProcessesOf(uid) {
			name, named := e.procs.NameOf(pid)
			ps.Processes = append(ps.Processes, ProcessSnapshot{PID: pid, Name: name, Named: named})
		}
		snap.Principals = append(snap.Principals, ps)
	}
	return snap
}

// Render returns the current flow graph as a DOT document.
func (e *Engine) Render() string {
	e.mu.Lock()
	snap := e.snapshotLocked()
	namer := e.namer
	e.mu.Unlock()

	return Render(snap, namer)
}
