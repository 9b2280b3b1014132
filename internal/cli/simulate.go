package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/flowgraph/internal/scenario"
)

var (
	simPolicy string
	simFormat string
	simDOT    bool
)

func init() {
	rootCmd.AddCommand(simulateCmd)
	simulateCmd.Flags().StringVar(&simPolicy, "policy", "", "Path to policy YAML (default ~/.flowgraph/policy.yaml)")
	simulateCmd.Flags().StringVarP(&simFormat, "format", "f", "text", "Output format (text|json)")
	simulateCmd.Flags().BoolVar(&simDOT, "dot", false, "Print the final flow graph of each script")
}

var simulateCmd = &cobra.Command{
	Use:   "simulate <script.yaml>...",
	Short: "Replay event scripts through an in-memory engine",
	Long: "Runs scripted spawn, exit, name, comm and tick events against the policy\n" +
		"without killing anything, and checks the script's expectations.\n" +
		"Exits 1 if any expectation fails.",
	Args: cobra.MinimumNArgs(1),
	RunE: runSimulate,
}

func runSimulate(cmd *cobra.Command, args []string) error {
	var results []*scenario.RunResult
	failed := false
	for _, path := range args {
		r, err := scenario.LoadAndRun(path, simPolicy)
		if err != nil {
			return err
		}
		if r.Failed > 0 {
			failed = true
		}
		results = append(results, r)
	}

	out := cmd.OutOrStdout()
	switch simFormat {
	case "json":
		data, err := scenario.FormatJSON(results)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, data)
	default:
		fmt.Fprint(out, scenario.FormatText(results))
		if simDOT {
			for _, r := range results {
				fmt.Fprintf(out, "\n// %s\n%s", r.Name, r.DOT)
			}
		}
	}

	if failed {
		return &ExitError{Code: ExitFailure, Err: fmt.Errorf("scenario expectations failed")}
	}
	return nil
}
