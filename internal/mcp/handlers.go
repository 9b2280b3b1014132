package mcp

import (
	"context"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/flowgraph/internal/audit"
	"github.com/ppiankov/flowgraph/internal/flowgraph"
	"github.com/ppiankov/flowgraph/internal/server"
)

// DumpInput takes no parameters.
type DumpInput struct{}

// DumpOutput carries the DOT document.
type DumpOutput struct {
	DOT string `json:"dot"`
}

// FlowsInput filters the flow list.
type FlowsInput struct {
	UID *int32 `json:"uid,omitempty" jsonschema:"only flows where this UID is the source or destination"`
	Tag string `json:"tag,omitempty" jsonschema:"only flows carrying this tag (e.g. contacts, sms)"`
}

// Flow is one live counter. Tag is the tag identifier.
type Flow struct {
	From      int32   `json:"from_uid"`
	To        int32   `json:"to_uid"`
	Tag       string  `json:"tag"`
	TagName   string  `json:"tag_name"`
	Bytes     uint64  `json:"bytes"`
	Threshold *uint64 `json:"threshold,omitempty"`
}

// FlowsOutput lists live counters and engine sizes.
type FlowsOutput struct {
	Flows []Flow          `json:"flows"`
	Stats flowgraph.Stats `json:"stats"`
}

// PolicyInput takes no parameters.
type PolicyInput struct{}

// EnforcementsInput selects journal entries.
type EnforcementsInput struct {
	TargetUID *int32 `json:"target_uid,omitempty" jsonschema:"only enforcements against this UID"`
	Limit     int    `json:"limit,omitempty" jsonschema:"maximum number of most recent entries (default 20)"`
}

// EnforcementsOutput lists journal entries, oldest first.
type EnforcementsOutput struct {
	Entries []audit.Entry `json:"entries"`
}

func (s *Server) handleDump(ctx context.Context, req *mcpsdk.CallToolRequest, input DumpInput) (*mcpsdk.CallToolResult, DumpOutput, error) {
	dot, err := s.backend.Dump(ctx)
	if err != nil {
		return nil, DumpOutput{}, err
	}
	return nil, DumpOutput{DOT: dot}, nil
}

func (s *Server) handleFlows(ctx context.Context, req *mcpsdk.CallToolRequest, input FlowsInput) (*mcpsdk.CallToolResult, FlowsOutput, error) {
	list, err := s.backend.Flows(ctx)
	if err != nil {
		return nil, FlowsOutput{}, err
	}

	out := FlowsOutput{Flows: make([]Flow, 0, len(list.Flows)), Stats: list.Stats}
	for _, f := range list.Flows {
		if input.UID != nil && int32(f.From) != *input.UID && int32(f.To) != *input.UID {
			continue
		}
		if input.Tag != "" && f.Tag.String() != input.Tag {
			continue
		}
		out.Flows = append(out.Flows, Flow{
			From:      int32(f.From),
			To:        int32(f.To),
			Tag:       f.Tag.String(),
			TagName:   f.TagName,
			Bytes:     f.Bytes,
			Threshold: f.Threshold,
		})
	}
	return nil, out, nil
}

func (s *Server) handlePolicy(ctx context.Context, req *mcpsdk.CallToolRequest, input PolicyInput) (*mcpsdk.CallToolResult, server.PolicyInfo, error) {
	info, err := s.backend.Policy(ctx)
	if err != nil {
		return nil, server.PolicyInfo{}, err
	}
	return nil, info, nil
}

func (s *Server) handleEnforcements(ctx context.Context, req *mcpsdk.CallToolRequest, input EnforcementsInput) (*mcpsdk.CallToolResult, EnforcementsOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = 20
	}
	entries, err := audit.Read(s.cfg.AuditLogPath, audit.Filter{
		TargetUID: input.TargetUID,
		Event:     audit.EventEnforce,
		Limit:     limit,
	})
	if err != nil {
		return nil, EnforcementsOutput{}, err
	}
	return nil, EnforcementsOutput{Entries: entries}, nil
}
