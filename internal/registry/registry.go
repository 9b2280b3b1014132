// Package registry tracks which processes are running under which principal
// and the display name of each process.
package registry

import (
	"errors"
	"sort"

	"github.com/ppiankov/flowgraph/internal/model"
)

// ErrUnknownProcess is returned when an operation references a process that
// is not registered (or not registered under the given principal).
var ErrUnknownProcess = errors.New("unknown process")

// Registry maps principals to their process sets and processes to names.
// A principal with no processes has no entry. Registry is not safe for
// concurrent use.
type Registry struct {
	procs map[model.Principal]map[model.PID]struct{}
	owner map[model.PID]model.Principal
	names map[model.PID]string
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		procs: make(map[model.Principal]map[model.PID]struct{}),
		owner: make(map[model.PID]model.Principal),
		names: make(map[model.PID]string),
	}
}

// SpawnResult describes side effects of Spawn.
type SpawnResult struct {
	// Moved is set when the process was registered under another principal.
	Moved    bool
	Previous model.Principal
	// PreviousExtinct is set when the move left Previous without processes.
	PreviousExtinct bool
}

// Spawn registers pid under p. Spawning an already registered pid under the
// same principal is a no-op. Spawning it under a different principal moves it;
// its display name is kept.
func (r *Registry) Spawn(pid model.PID, p model.Principal) SpawnResult {
	var res SpawnResult
	if prev, ok := r.owner[pid]; ok {
		if prev == p {
			return res
		}
		res.Moved = true
		res.Previous = prev
		res.PreviousExtinct = r.detach(pid, prev)
	}

	set, ok := r.procs[p]
	if !ok {
		set = make(map[model.PID]struct{})
		r.procs[p] = set
	}
	set[pid] = struct{}{}
	r.owner[pid] = p
	return res
}

// Exit removes pid from p and clears its name. It reports whether p became
// extinct. The registry is unchanged when pid is not registered under p.
func (r *Registry) Exit(pid model.PID, p model.Principal) (bool, error) {
	if owner, ok := r.owner[pid]; !ok || owner != p {
		return false, ErrUnknownProcess
	}
	delete(r.names, pid)
	return r.detach(pid, p), nil
}

// detach drops pid from p's set and reports whether p's entry was removed.
func (r *Registry) detach(pid model.PID, p model.Principal) bool {
	delete(r.owner, pid)
	set := r.procs[p]
	delete(set, pid)
	if len(set) == 0 {
		delete(r.procs, p)
		return true
	}
	return false
}

// SetName sets or overwrites the display name of a registered process.
func (r *Registry) SetName(pid model.PID, name string) error {
	if _, ok := r.owner[pid]; !ok {
		return ErrUnknownProcess
	}
	r.names[pid] = name
	return nil
}

// NameOf returns the display name of pid, if one was set.
func (r *Registry) NameOf(pid model.PID) (string, bool) {
	name, ok := r.names[pid]
	return name, ok
}

// OwnerOf returns the principal pid is registered under.
func (r *Registry) OwnerOf(pid model.PID) (model.Principal, bool) {
	p, ok := r.owner[pid]
	return p, ok
}

// ProcessesOf returns the processes of p in ascending order.
func (r *Registry) ProcessesOf(p model.Principal) []model.PID {
	set := r.procs[p]
	if len(set) == 0 {
		return nil
	}
	out := make([]model.PID, 0, len(set))
	for pid := range set {
		out = append(out, pid)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Principals returns every live principal in ascending order.
func (r *Registry) Principals() []model.Principal {
	out := make([]model.Principal, 0, len(r.procs))
	for p := range r.procs {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Has reports whether p has at least one registered process.
func (r *Registry) Has(p model.Principal) bool {
	_, ok := r.procs[p]
	return ok
}

// Len returns the number of registered processes.
func (r *Registry) Len() int {
	return len(r.owner)
}
