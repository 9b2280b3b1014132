package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ppiankov/flowgraph/internal/client"
	"github.com/ppiankov/flowgraph/internal/server"
)

var flowsFormat string

func init() {
	rootCmd.AddCommand(flowsCmd)
	flowsCmd.Flags().StringVarP(&flowsFormat, "format", "f", "text", "Output format (text|json)")
}

var flowsCmd = &cobra.Command{
	Use:   "flows",
	Short: "List live flow counters",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var list server.FlowList
		err := withClient(func(ctx context.Context, c *client.Client) error {
			var err error
			list, err = c.Flows(ctx)
			return err
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if flowsFormat == "json" {
			data, err := json.MarshalIndent(list, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(data))
			return nil
		}

		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "FROM\tTO\tTAG\tBYTES\tLIMIT")
		for _, f := range list.Flows {
			limit := "-"
			if f.Threshold != nil {
				limit = fmt.Sprint(*f.Threshold)
			}
			fmt.Fprintf(w, "%d\t%d\t%s\t%d\t%s\n", f.From, f.To, f.TagName, f.Bytes, limit)
		}
		w.Flush()
		fmt.Fprintf(out, "\n%d principals, %d processes, %d flows, %d counters\n",
			list.Stats.Principals, list.Stats.Processes, list.Stats.Flows, list.Stats.Counters)
		return nil
	},
}
