package flowgraph

import (
	"fmt"
	"strings"
	"time"

	"github.com/ppiankov/flowgraph/internal/flow"
	"github.com/ppiankov/flowgraph/internal/model"
	"github.com/ppiankov/flowgraph/internal/taint"
)

// ProcessSnapshot is one registered process.
type ProcessSnapshot struct {
	PID   model.PID
	Name  string
	Named bool
}

// PrincipalSnapshot is one principal with its processes.
type PrincipalSnapshot struct {
	UID       model.Principal
	Processes []ProcessSnapshot
}

// DefaultInterval is the bucket width of the reference window, which spans
// one minute at flow.DefaultWindow buckets.
const DefaultInterval = 10 * time.Second

// Snapshot is a consistent copy of the engine state for rendering.
type Snapshot struct {
	Principals []PrincipalSnapshot
	Flows      []flow.Sample
	// Window is the span a counter total covers. Zero means one minute.
	Window time.Duration
}

// Render formats a snapshot as a DOT digraph. Output order follows the
// snapshot order, so equal snapshots render identically.
func Render(s Snapshot, namer taint.Namer) string {
	var b strings.Builder
	b.WriteString("digraph flowgraphdump {\n")

	for _, p := range s.Principals {
		fmt.Fprintf(&b, "sandbox_%d [label=\"UID %d\"];\n", p.UID, p.UID)
		for _, proc := range p.Processes {
			label := fmt.Sprintf("pid %d", proc.PID)
			if proc.Named {
				label = proc.Name
			}
			fmt.Fprintf(&b, "processname_%d [shape=box, label=\"%s\"];\n", proc.PID, escapeLabel(label))
			fmt.Fprintf(&b, "sandbox_%d -> processname_%d [dir=none];\n", p.UID, proc.PID)
		}
	}

	b.WriteString("\n// communication links\n")
	unit := throughputUnit(s.Window)
	for _, f := range s.Flows {
		fmt.Fprintf(&b, "sandbox_%d -> sandbox_%d[label=\" Tag: %s\\nThroughput: %d Bytes/%s\"];\n",
			f.Key.From, f.Key.To, escapeLabel(namer.Name(f.Tag)), f.Bytes, unit)
	}

	b.WriteString("}\n")
	return b.String()
}

// throughputUnit names the window a total covers: "min" for one minute,
// otherwise the duration ("Bytes/2m0s").
func throughputUnit(window time.Duration) string {
	if window <= 0 || window == time.Minute {
		return "min"
	}
	return window.String()
}

var labelEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)

func escapeLabel(s string) string {
	return labelEscaper.Replace(s)
}
