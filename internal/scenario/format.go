package scenario

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FormatText renders run results as human-readable text.
func FormatText(results []*RunResult) string {
	var b strings.Builder

	totalFiles := len(results)
	fmt.Fprintf(&b, "Running %d scenario file", totalFiles)
	if totalFiles != 1 {
		b.WriteString("s")
	}
	b.WriteString("...\n\n")

	totalChecks := 0
	totalPassed := 0
	failedScenarios := 0

	for _, r := range results {
		totalChecks += r.Total
		totalPassed += r.Passed

		verdict := "PASS"
		if r.Failed > 0 {
			verdict = "FAIL"
			failedScenarios++
		}
		fmt.Fprintf(&b, "  %s  %s (%d/%d checks, %d enforcements)\n",
			verdict, r.Name, r.Passed, r.Total, len(r.Enforcements))

		for _, e := range r.Enforcements {
			fmt.Fprintf(&b, "    ENFORCE step %d: uid %d -> uid %d %s %d/%d bytes, pids %v\n",
				e.Step, e.SourceUID, e.TargetUID, e.Tag, e.Bytes, e.Threshold, e.PIDs)
		}
		for _, c := range r.Checks {
			if !c.Passed {
				fmt.Fprintf(&b, "    FAIL  step %d: %-24s expected %s, got %s\n",
					c.Step, c.Check, c.Expected, c.Actual)
			}
		}
	}

	fmt.Fprintf(&b, "\n%d of %d checks passed.", totalPassed, totalChecks)
	if failedScenarios > 0 {
		fmt.Fprintf(&b, " %d of %d scenarios failed.", failedScenarios, totalFiles)
	}
	b.WriteString("\n")

	return b.String()
}

// FormatJSON renders run results as JSON.
func FormatJSON(results []*RunResult) (string, error) {
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal results: %w", err)
	}
	return string(data), nil
}
