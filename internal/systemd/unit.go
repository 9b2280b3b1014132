// Package systemd renders the unit file that runs flowgraph serve.
package systemd

import (
	"fmt"
	"strings"
	"text/template"
)

// DefaultBinary is the install location assumed by the unit.
const DefaultBinary = "/usr/local/bin/flowgraph"

// UnitOptions parameterize the service unit. Empty fields are omitted from
// the serve command line.
type UnitOptions struct {
	Binary      string
	User        string
	Addr        string
	PolicyPath  string
	AuditLog    string
	MetricsAddr string
	DryRun      bool
}

var unitTemplate = template.Must(template.New("unit").Parse(`[Unit]
Description=flowgraph taint flow monitor
After=network-online.target
Wants=network-online.target

[Service]
Type=simple
{{- if .User}}
User={{.User}}
{{- end}}
ExecStart={{.ExecStart}}
ExecReload=/bin/kill -HUP $MAINPID
Restart=on-failure
RestartSec=2

# SIGKILL across UIDs needs CAP_KILL and nothing else.
AmbientCapabilities=CAP_KILL
CapabilityBoundingSet=CAP_KILL
NoNewPrivileges=true
PrivateTmp=true
ProtectSystem=strict
ProtectHome=read-only
ProtectKernelTunables=true
ProtectKernelModules=true
RestrictNamespaces=true
MemoryDenyWriteExecute=true
{{- if .StateDir}}
ReadWritePaths={{.StateDir}}
{{- end}}

[Install]
WantedBy=multi-user.target
`))

// Unit returns the systemd service unit for opts.
func Unit(opts UnitOptions) (string, error) {
	if opts.Binary == "" {
		opts.Binary = DefaultBinary
	}
	if strings.ContainsAny(opts.Binary, " \t\n") {
		return "", fmt.Errorf("binary path must not contain whitespace: %q", opts.Binary)
	}

	data := struct {
		User      string
		ExecStart string
		StateDir  string
	}{
		User:      opts.User,
		ExecStart: execStart(opts),
		StateDir:  stateDir(opts.AuditLog),
	}

	var b strings.Builder
	if err := unitTemplate.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render unit: %w", err)
	}
	return b.String(), nil
}

func execStart(opts UnitOptions) string {
	args := []string{opts.Binary}
	if opts.Addr != "" {
		args = append(args, "--addr", opts.Addr)
	}
	args = append(args, "serve")
	if opts.PolicyPath != "" {
		args = append(args, "--policy", opts.PolicyPath)
	}
	if opts.AuditLog != "" {
		args = append(args, "--audit-log", opts.AuditLog)
	}
	if opts.MetricsAddr != "" {
		args = append(args, "--metrics-addr", opts.MetricsAddr)
	}
	if opts.DryRun {
		args = append(args, "--dry-run")
	}
	return strings.Join(args, " ")
}

// stateDir is the directory the journal is written to.
func stateDir(auditLog string) string {
	i := strings.LastIndex(auditLog, "/")
	if i <= 0 {
		return ""
	}
	return auditLog[:i]
}
