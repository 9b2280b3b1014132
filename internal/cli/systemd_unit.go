package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/flowgraph/internal/server"
	"github.com/ppiankov/flowgraph/internal/systemd"
)

var unitOpts systemd.UnitOptions

func init() {
	rootCmd.AddCommand(systemdUnitCmd)
	f := systemdUnitCmd.Flags()
	f.StringVar(&unitOpts.Binary, "bin", systemd.DefaultBinary, "Installed flowgraph binary")
	f.StringVar(&unitOpts.User, "user", "", "Run the service as this user (needs CAP_KILL, granted by the unit)")
	f.StringVar(&unitOpts.PolicyPath, "policy", "/etc/flowgraph/policy.yaml", "Policy file passed to serve")
	f.StringVar(&unitOpts.AuditLog, "audit-log", "/var/lib/flowgraph/enforce.jsonl", "Enforcement journal passed to serve")
	f.StringVar(&unitOpts.MetricsAddr, "metrics-addr", "", "Metrics address passed to serve")
	f.BoolVar(&unitOpts.DryRun, "dry-run", false, "Generate a log-only unit")
}

var systemdUnitCmd = &cobra.Command{
	Use:   "systemd-unit",
	Short: "Print a systemd service unit for flowgraph serve",
	Long: "Writes a hardened unit to stdout:\n\n" +
		"  flowgraph systemd-unit > /etc/systemd/system/flowgraph.service\n" +
		"  systemctl daemon-reload && systemctl enable --now flowgraph",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := unitOpts
		if serviceAddr != server.DefaultAddr {
			opts.Addr = serviceAddr
		}
		unit, err := systemd.Unit(opts)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), unit)
		return nil
	},
}
