// Package mcp exposes a running flowgraph service to Model Context Protocol
// clients over stdio.
package mcp

import (
	"context"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/flowgraph/internal/server"
)

// Backend is the flowgraph service as seen by the tools. *client.Client
// satisfies it.
type Backend interface {
	Dump(ctx context.Context) (string, error)
	Flows(ctx context.Context) (server.FlowList, error)
	Policy(ctx context.Context) (server.PolicyInfo, error)
}

// Config holds MCP server configuration.
type Config struct {
	// AuditLogPath enables the flowgraph_enforcements tool when set.
	AuditLogPath string
	Version      string
}

// Server wraps the MCP SDK server with flowgraph tools.
type Server struct {
	mcpServer *mcpsdk.Server
	backend   Backend
	cfg       Config
}

// New creates an MCP server backed by b.
func New(cfg Config, b Backend) (*Server, error) {
	if b == nil {
		return nil, fmt.Errorf("mcp: nil backend")
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	s := &Server{backend: b, cfg: cfg}
	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "flowgraph",
			Version: cfg.Version,
		},
		nil,
	)
	s.registerTools()
	return s, nil
}

// Run starts the MCP server on stdio transport. Blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

// registerTools adds all flowgraph tools to the MCP server.
func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "flowgraph_dump",
		Description: "Return the current flow graph as a Graphviz DOT document: UIDs, their processes and tagged communication links with throughput.",
	}, s.handleDump)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "flowgraph_flows",
		Description: "List live (source UID, destination UID, tag) counters with bytes in the current window and the configured threshold.",
	}, s.handleFlows)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "flowgraph_policy",
		Description: "Show the active flow policy: window, enforcement mode and per-tag byte thresholds.",
	}, s.handlePolicy)

	if s.cfg.AuditLogPath != "" {
		mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
			Name:        "flowgraph_enforcements",
			Description: "List recent enforcement decisions from the audit journal.",
		}, s.handleEnforcements)
	}
}
