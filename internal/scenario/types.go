package scenario

import (
	"github.com/ppiankov/flowgraph/internal/taint"
)

// ProcStep identifies a process under a UID.
type ProcStep struct {
	PID int32 `yaml:"pid"`
	UID int32 `yaml:"uid"`
}

// NameStep sets a process display name.
type NameStep struct {
	PID  int32  `yaml:"pid"`
	Name string `yaml:"name"`
}

// CommStep is one tagged transfer. Tags and Mask are combined.
type CommStep struct {
	FromPID int32       `yaml:"from_pid"`
	FromUID int32       `yaml:"from_uid"`
	ToPID   int32       `yaml:"to_pid"`
	ToUID   int32       `yaml:"to_uid"`
	Bytes   int32       `yaml:"bytes"`
	Tags    []taint.Tag `yaml:"tags,omitempty"`
	Mask    int32       `yaml:"mask,omitempty"`
	// Repeat sends the transfer this many times (default 1).
	Repeat int `yaml:"repeat,omitempty"`
}

// TagMask returns the combined tag mask.
func (c CommStep) TagMask() int32 {
	mask := c.Mask
	for _, t := range c.Tags {
		mask |= int32(t.Mask())
	}
	return mask
}

// FlowExpect asserts the window total of one counter.
type FlowExpect struct {
	From  int32     `yaml:"from"`
	To    int32     `yaml:"to"`
	Tag   taint.Tag `yaml:"tag"`
	Bytes uint64    `yaml:"bytes"`
}

// Expect is a checkpoint. Killed and Enforcements are cumulative from the
// start of the script.
type Expect struct {
	Killed       []int32      `yaml:"killed,omitempty"`
	Enforcements *int         `yaml:"enforcements,omitempty"`
	Counters     *int         `yaml:"counters,omitempty"`
	Flows        []FlowExpect `yaml:"flows,omitempty"`
	DOTContains  []string     `yaml:"dot_contains,omitempty"`
}

// Step is one scripted event. Exactly one field is set.
type Step struct {
	Spawn  *ProcStep `yaml:"spawn,omitempty"`
	Exit   *ProcStep `yaml:"exit,omitempty"`
	Name   *NameStep `yaml:"name,omitempty"`
	Comm   *CommStep `yaml:"comm,omitempty"`
	Tick   int       `yaml:"tick,omitempty"`
	Expect *Expect   `yaml:"expect,omitempty"`
}

// Scenario is a named event script.
type Scenario struct {
	Name string `yaml:"name"`
	// Enforcement overrides the policy mode when set.
	Enforcement string `yaml:"enforcement,omitempty"`
	Steps       []Step `yaml:"steps"`
}

// CheckResult is the outcome of one expectation.
type CheckResult struct {
	Step     int    `json:"step"`
	Check    string `json:"check"`
	Passed   bool   `json:"passed"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
}

// EnforcementRecord describes one enforcement issued while running.
type EnforcementRecord struct {
	Step      int     `json:"step"`
	SourceUID int32   `json:"source_uid"`
	TargetUID int32   `json:"target_uid"`
	Tag       string  `json:"tag"`
	Bytes     uint64  `json:"bytes"`
	Threshold uint64  `json:"threshold"`
	PIDs      []int32 `json:"pids"`
}

// RunResult is the outcome of running one scenario file.
type RunResult struct {
	File         string              `json:"file"`
	Name         string              `json:"name"`
	Steps        int                 `json:"steps"`
	Total        int                 `json:"total"`
	Passed       int                 `json:"passed"`
	Failed       int                 `json:"failed"`
	Checks       []CheckResult       `json:"checks"`
	Enforcements []EnforcementRecord `json:"enforcements"`
	Killed       []int32             `json:"killed"`
	DOT          string              `json:"dot"`
}
