package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/flowgraph/internal/audit"
)

var (
	tailLines  int
	tailTarget int32
	tailFormat string
)

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditVerifyCmd)
	auditCmd.AddCommand(auditTailCmd)
	auditTailCmd.Flags().IntVarP(&tailLines, "lines", "n", 10, "Number of recent entries to show")
	auditTailCmd.Flags().Int32Var(&tailTarget, "target-uid", -1, "Only entries against this UID")
	auditTailCmd.Flags().StringVarP(&tailFormat, "format", "f", "text", "Output format (text|json)")
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Enforcement journal operations",
	Long:  "Commands for verifying and inspecting the hash-chained enforcement journal.",
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify <path>",
	Short: "Verify hash chain integrity of a journal",
	Long: "Walks the journal (JSONL or SQLite) and validates that every entry's prev_hash\n" +
		"matches the SHA-256 of the previous entry. Exits 0 if valid, 1 if tampered.",
	Args: cobra.ExactArgs(1),
	RunE: runAuditVerify,
}

var auditTailCmd = &cobra.Command{
	Use:   "tail <path>",
	Short: "Show recent journal entries",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuditTail,
}

func runAuditVerify(cmd *cobra.Command, args []string) error {
	result := audit.Verify(args[0])
	if result.Valid {
		fmt.Fprintf(cmd.OutOrStdout(), "OK: %d entries verified\n", result.Lines)
		return nil
	}
	fmt.Fprintf(os.Stderr, "FAILED at line %d: %s\n", result.ErrorLine, result.Error)
	return &ExitError{Code: ExitFailure, Err: fmt.Errorf("audit chain invalid")}
}

func runAuditTail(cmd *cobra.Command, args []string) error {
	filter := audit.Filter{Limit: tailLines}
	if tailTarget >= 0 {
		filter.TargetUID = &tailTarget
	}
	entries, err := audit.Read(args[0], filter)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if tailFormat == "json" {
		enc := json.NewEncoder(out)
		for _, e := range entries {
			if err := enc.Encode(e); err != nil {
				return err
			}
		}
		return nil
	}
	fmt.Fprint(out, audit.FormatTimeline(entries))
	return nil
}
