package flow

import (
	"sort"

	"github.com/ppiankov/flowgraph/internal/model"
	"github.com/ppiankov/flowgraph/internal/taint"
)

// Sample is one (flow, tag) counter value at a point in time.
type Sample struct {
	Key   model.FlowKey `json:"key"`
	Tag   taint.Tag     `json:"tag"`
	Bytes uint64        `json:"bytes"`
}

// Table maps directed principal pairs to per-tag counters. It owns every
// counter. Table is not safe for concurrent use.
type Table struct {
	width int
	links map[model.FlowKey]map[taint.Tag]*Counter
	count int
}

// NewTable creates an empty table whose counters have the given width.
func NewTable(width int) *Table {
	if width < 1 {
		width = DefaultWindow
	}
	return &Table{
		width: width,
		links: make(map[model.FlowKey]map[taint.Tag]*Counter),
	}
}

// Record adds bytes to the (key, tag) counter, creating it on first traffic,
// and returns the counter's window total after the update.
func (t *Table) Record(key model.FlowKey, tag taint.Tag, bytes uint64) uint64 {
	tags, ok := t.links[key]
	if !ok {
		tags = make(map[taint.Tag]*Counter)
		t.links[key] = tags
	}
	c, ok := tags[tag]
	if !ok {
		c = NewCounter(tag, t.width, bytes)
		tags[tag] = c
		t.count++
		return c.Total()
	}
	c.Add(bytes)
	return c.Total()
}

// Total returns the current window total for (key, tag), or 0 if absent.
func (t *Table) Total(key model.FlowKey, tag taint.Tag) uint64 {
	if c, ok := t.links[key][tag]; ok {
		return c.Total()
	}
	return 0
}

// AdvanceResult reports what one maintenance step did to the table.
type AdvanceResult struct {
	Live    []Sample // counters still carrying traffic
	Removed []Sample // counters that decayed to zero and were dropped
}

// AdvanceAll advances every counter, drops counters whose total reached zero,
// and drops flow keys left without counters.
func (t *Table) AdvanceAll() AdvanceResult {
	var res AdvanceResult
	for key, tags := range t.links {
		for tag, c := range tags {
			c.Advance()
			if c.Total() == 0 {
				delete(tags, tag)
				t.count--
				res.Removed = append(res.Removed, Sample{Key: key, Tag: tag})
				continue
			}
			res.Live = append(res.Live, Sample{Key: key, Tag: tag, Bytes: c.Total()})
		}
		if len(tags) == 0 {
			delete(t.links, key)
		}
	}
	sortSamples(res.Live)
	sortSamples(res.Removed)
	return res
}

// RemoveFlowsFor drops every flow where p is source or destination, regardless
// of remaining traffic. Returns the number of counters removed.
func (t *Table) RemoveFlowsFor(p model.Principal) int {
	removed := 0
	for key, tags := range t.links {
		if key.Involves(p) {
			removed += len(tags)
			delete(t.links, key)
		}
	}
	t.count -= removed
	return removed
}

// Snapshot returns every live counter ordered by source, destination and tag.
func (t *Table) Snapshot() []Sample {
	out := make([]Sample, 0, t.count)
	for key, tags := range t.links {
		for tag, c := range tags {
			out = append(out, Sample{Key: key, Tag: tag, Bytes: c.Total()})
		}
	}
	sortSamples(out)
	return out
}

// Len returns the number of live counters.
func (t *Table) Len() int {
	return t.count
}

// Flows returns the number of live flow keys.
func (t *Table) Flows() int {
	return len(t.links)
}

func sortSamples(s []Sample) {
	sort.Slice(s, func(i, j int) bool {
		a, b := s[i], s[j]
		if a.Key.From != b.Key.From {
			return a.Key.From < b.Key.From
		}
		if a.Key.To != b.Key.To {
			return a.Key.To < b.Key.To
		}
		return a.Tag < b.Tag
	})
}
