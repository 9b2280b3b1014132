// Package scenario replays scripted process and communication events through
// an in-memory engine and checks the resulting enforcement and flow state.
package scenario

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/flowgraph/internal/enforce"
	"github.com/ppiankov/flowgraph/internal/flowgraph"
	"github.com/ppiankov/flowgraph/internal/model"
	"github.com/ppiankov/flowgraph/internal/policy"
)

// recordingKiller records kills instead of signalling.
type recordingKiller struct {
	mu     sync.Mutex
	killed []int32
}

func (k *recordingKiller) Kill(pid model.PID) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.killed = append(k.killed, int32(pid))
	return nil
}

func (k *recordingKiller) snapshot() []int32 {
	k.mu.Lock()
	defer k.mu.Unlock()
	return slices.Clone(k.killed)
}

// Validate checks that every step sets exactly one event.
func (s *Scenario) Validate() error {
	var errs []error
	for i, st := range s.Steps {
		n := 0
		if st.Spawn != nil {
			n++
		}
		if st.Exit != nil {
			n++
		}
		if st.Name != nil {
			n++
		}
		if st.Comm != nil {
			n++
		}
		if st.Tick > 0 {
			n++
		}
		if st.Expect != nil {
			n++
		}
		if n != 1 {
			errs = append(errs, fmt.Errorf("step %d: expected exactly one of spawn, exit, name, comm, tick, expect; got %d", i+1, n))
		}
	}
	return errors.Join(errs...)
}

// Run executes s against cfg with a recording killer. Steps run in order;
// expect steps are evaluated against the state at that point.
func Run(s *Scenario, cfg *policy.PolicyConfig) *RunResult {
	mode := cfg.Enforcement
	if s.Enforcement != "" {
		mode = s.Enforcement
	}
	killer := &recordingKiller{}
	enf := enforce.New(enforce.Options{Mode: mode, Killer: killer})
	eng := flowgraph.New(flowgraph.Options{
		Policy:   policy.NewEngine(cfg.Rules),
		Window:   cfg.Window.Buckets,
		Interval: cfg.Window.Interval,
		Namer:    cfg.Namer(),
		Enforcer: enf,
	})

	ctx := context.Background()
	result := &RunResult{Name: s.Name, Steps: len(s.Steps)}

	for i, st := range s.Steps {
		step := i + 1
		switch {
		case st.Spawn != nil:
			eng.OnSpawn(model.PID(st.Spawn.PID), model.Principal(st.Spawn.UID))
		case st.Exit != nil:
			eng.OnExit(model.PID(st.Exit.PID), model.Principal(st.Exit.UID))
		case st.Name != nil:
			eng.OnSetName(model.PID(st.Name.PID), st.Name.Name)
		case st.Comm != nil:
			c := st.Comm
			repeat := max(c.Repeat, 1)
			for r := 0; r < repeat; r++ {
				issued := eng.OnCommunication(ctx, flowgraph.Communication{
					FromPID: model.PID(c.FromPID),
					FromUID: model.Principal(c.FromUID),
					ToPID:   model.PID(c.ToPID),
					ToUID:   model.Principal(c.ToUID),
					Size:    c.Bytes,
					TagMask: c.TagMask(),
				})
				for _, e := range issued {
					result.Enforcements = append(result.Enforcements, record(step, e))
				}
			}
		case st.Tick > 0:
			for t := 0; t < st.Tick; t++ {
				eng.Tick()
			}
		case st.Expect != nil:
			checks := evaluate(step, st.Expect, eng, killer.snapshot(), len(result.Enforcements))
			for _, c := range checks {
				if c.Passed {
					result.Passed++
				} else {
					result.Failed++
				}
			}
			result.Checks = append(result.Checks, checks...)
		}
	}

	result.Total = len(result.Checks)
	result.Killed = killer.snapshot()
	result.DOT = eng.Render()
	return result
}

func record(step int, e flowgraph.Enforcement) EnforcementRecord {
	pids := make([]int32, len(e.PIDs))
	for i, p := range e.PIDs {
		pids[i] = int32(p)
	}
	return EnforcementRecord{
		Step:      step,
		SourceUID: int32(e.Action.Flow.From),
		TargetUID: int32(e.Action.Target),
		Tag:       e.Action.Tag.String(),
		Bytes:     e.Action.Total,
		Threshold: e.Action.Threshold,
		PIDs:      pids,
	}
}

func evaluate(step int, exp *Expect, eng *flowgraph.Engine, killed []int32, enforcements int) []CheckResult {
	var out []CheckResult
	add := func(check string, passed bool, expected, actual any) {
		out = append(out, CheckResult{
			Step:     step,
			Check:    check,
			Passed:   passed,
			Expected: fmt.Sprint(expected),
			Actual:   fmt.Sprint(actual),
		})
	}

	if exp.Killed != nil {
		want := slices.Sorted(slices.Values(exp.Killed))
		got := slices.Sorted(slices.Values(killed))
		add("killed", slices.Equal(want, got), want, got)
	}
	if exp.Enforcements != nil {
		add("enforcements", *exp.Enforcements == enforcements, *exp.Enforcements, enforcements)
	}
	if exp.Counters != nil {
		n := eng.Stats().Counters
		add("counters", *exp.Counters == n, *exp.Counters, n)
	}
	if len(exp.Flows) > 0 {
		flows := eng.Flows()
		for _, fe := range exp.Flows {
			var got uint64
			for _, f := range flows {
				if int32(f.From) == fe.From && int32(f.To) == fe.To && f.Tag == fe.Tag {
					got = f.Bytes
					break
				}
			}
			add(fmt.Sprintf("flow %d->%d %s", fe.From, fe.To, fe.Tag), got == fe.Bytes, fe.Bytes, got)
		}
	}
	if len(exp.DOTContains) > 0 {
		dot := eng.Render()
		for _, want := range exp.DOTContains {
			add("dot contains", strings.Contains(dot, want), want, strings.Contains(dot, want))
		}
	}
	return out
}

// Load reads and validates a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario %s: %w", path, err)
	}
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario %s: %w", path, err)
	}
	if s.Name == "" {
		s.Name = path
	}
	return &s, nil
}

// LoadAndRun loads a scenario file and the policy, and runs it.
func LoadAndRun(path, policyPath string) (*RunResult, error) {
	s, err := Load(path)
	if err != nil {
		return nil, err
	}
	cfg, err := policy.LoadConfig(policyPath)
	if err != nil {
		return nil, fmt.Errorf("load policy: %w", err)
	}
	result := Run(s, cfg)
	result.File = path
	return result, nil
}
