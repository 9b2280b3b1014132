package policy

import (
	"fmt"
	"sort"

	"github.com/ppiankov/flowgraph/internal/model"
	"github.com/ppiankov/flowgraph/internal/taint"
)

// Kind is the outcome of evaluating a traffic update.
type Kind int

const (
	None Kind = iota
	Enforce
)

func (k Kind) String() string {
	if k == Enforce {
		return "enforce"
	}
	return "none"
}

// Action is the decision for one (flow, tag) update.
type Action struct {
	Kind      Kind
	Target    model.Principal
	Flow      model.FlowKey
	Tag       taint.Tag
	Total     uint64
	Threshold uint64
	Reason    string
	PolicyID  string
}

// CheckResult is the outcome of comparing a window total against a rule.
type CheckResult struct {
	Exceeded bool
	Current  uint64
	Limit    uint64
}

// Check compares total against the rule's threshold. Only totals strictly
// above MaxBytes exceed.
func Check(total uint64, rule Rule) CheckResult {
	if total > rule.MaxBytes {
		return CheckResult{Exceeded: true, Current: total, Limit: rule.MaxBytes}
	}
	return CheckResult{Current: total, Limit: rule.MaxBytes}
}

// Engine evaluates traffic updates against a fixed threshold table.
// It holds no mutable state and is safe for concurrent use.
type Engine struct {
	rules map[taint.Tag]Rule
}

// NewEngine builds an engine from rules. For duplicate tags the last rule wins;
// use PolicyConfig.Validate to reject them up front.
func NewEngine(rules []Rule) *Engine {
	e := &Engine{rules: make(map[taint.Tag]Rule, len(rules))}
	for _, r := range rules {
		e.rules[r.Tag] = r
	}
	return e
}

// Evaluate decides whether the receiving principal of key must be punished
// for carrying total bytes of tag in the current window.
func (e *Engine) Evaluate(key model.FlowKey, tag taint.Tag, total uint64) Action {
	rule, ok := e.rules[tag]
	if !ok {
		return Action{}
	}
	result := Check(total, rule)
	if !result.Exceeded {
		return Action{}
	}
	return Action{
		Kind:      Enforce,
		Target:    key.To,
		Flow:      key,
		Tag:       tag,
		Total:     result.Current,
		Threshold: result.Limit,
		Reason: fmt.Sprintf("UID %d received %d bytes of %s from UID %d in window (limit %d)",
			key.To, result.Current, tag, key.From, result.Limit),
		PolicyID: fmt.Sprintf("flow.%s.max_bytes_exceeded", tag),
	}
}

// Threshold returns the configured limit for tag.
func (e *Engine) Threshold(tag taint.Tag) (uint64, bool) {
	r, ok := e.rules[tag]
	return r.MaxBytes, ok
}

// Rules returns the rule table ordered by tag.
func (e *Engine) Rules() []Rule {
	out := make([]Rule, 0, len(e.rules))
	for _, r := range e.rules {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tag < out[j].Tag })
	return out
}
