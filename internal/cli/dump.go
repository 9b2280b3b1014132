package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/flowgraph/internal/client"
)

func init() {
	rootCmd.AddCommand(dumpCmd)
}

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Print the current flow graph as Graphviz DOT",
	Long: "Asks the running service to log its graph state and prints the DOT document.\n" +
		"Exits 10 when the service cannot be reached.\n\n" +
		"  flowgraph dump | dot -Tsvg > flows.svg",
	Args: cobra.NoArgs,
	RunE: runDump,
}

func runDump(cmd *cobra.Command, args []string) error {
	var dot string
	err := withClient(func(ctx context.Context, c *client.Client) error {
		var err error
		dot, err = c.Dump(ctx)
		return err
	})
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), dot)
	return nil
}
