package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ppiankov/flowgraph/internal/client"
	fgmcp "github.com/ppiankov/flowgraph/internal/mcp"
)

var mcpAuditLog string

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().StringVar(&mcpAuditLog, "audit-log", "", "Enforcement journal to expose through flowgraph_enforcements")
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP tool server for agent integration",
	Long: "Runs an MCP (Model Context Protocol) server over stdio that reads from a\n" +
		"running flowgraph service. Tools: flowgraph_dump, flowgraph_flows,\n" +
		"flowgraph_policy, and flowgraph_enforcements when --audit-log is set.",
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	c, err := client.New(serviceAddr)
	if err != nil {
		return err
	}
	defer c.Close()

	srv, err := fgmcp.New(fgmcp.Config{AuditLogPath: mcpAuditLog, Version: version}, c)
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return srv.Run(ctx)
}
