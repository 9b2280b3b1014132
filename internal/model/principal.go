package model

import "fmt"

// Principal identifies a security domain (a UID). It exists implicitly while
// at least one of its processes is registered.
type Principal int32

// PID identifies one running process.
type PID int32

// FlowKey is a directed (source, destination) principal pair.
// (A,B) and (B,A) are distinct keys.
type FlowKey struct {
	From Principal
	To   Principal
}

// Involves reports whether p is either endpoint of the flow.
func (k FlowKey) Involves(p Principal) bool {
	return k.From == p || k.To == p
}

func (k FlowKey) String() string {
	return fmt.Sprintf("%d->%d", k.From, k.To)
}
