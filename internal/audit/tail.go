package audit

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Filter selects journal entries. Zero fields match everything.
type Filter struct {
	TargetUID *int32
	Event     string
	From      time.Time
	To        time.Time
	// Limit keeps only the most recent matches when positive.
	Limit int
}

// Read returns the entries of the journal at path that match f, oldest first.
// Malformed lines are skipped.
func Read(path string, f Filter) ([]Entry, error) {
	lines, err := readLines(path)
	if err != nil {
		return nil, fmt.Errorf("audit: %w", err)
	}

	var out []Entry
	for _, line := range lines {
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			continue
		}
		if f.matches(e) {
			out = append(out, e)
		}
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[len(out)-f.Limit:]
	}
	return out, nil
}

func (f Filter) matches(e Entry) bool {
	if f.TargetUID != nil && e.TargetUID != *f.TargetUID {
		return false
	}
	if f.Event != "" && e.Event != f.Event {
		return false
	}
	if f.From.IsZero() && f.To.IsZero() {
		return true
	}
	ts, err := time.Parse(TimestampFormat, e.Timestamp)
	if err != nil {
		return false
	}
	if !f.From.IsZero() && ts.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && ts.After(f.To) {
		return false
	}
	return true
}

// FormatTimeline renders entries as a fixed-width table.
func FormatTimeline(entries []Entry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-24s %-12s %-5s %8s %8s %-14s %10s %10s %s\n",
		"TIME", "EVENT", "MODE", "FROM", "TO", "TAG", "BYTES", "LIMIT", "PIDS")
	for _, e := range entries {
		fmt.Fprintf(&b, "%-24s %-12s %-5s %8d %8d %-14s %10d %10d %s\n",
			e.Timestamp, e.Event, e.Mode, e.SourceUID, e.TargetUID, truncate(e.Tag, 14),
			e.Bytes, e.Threshold, formatPIDs(e.PIDs))
	}
	fmt.Fprintf(&b, "%d entries\n", len(entries))
	return b.String()
}

func formatPIDs(pids []int32) string {
	if len(pids) == 0 {
		return "-"
	}
	parts := make([]string, len(pids))
	for i, p := range pids {
		parts[i] = fmt.Sprint(p)
	}
	return strings.Join(parts, ",")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
