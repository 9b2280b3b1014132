// Package client talks to a running flowgraph service over gRPC.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	pb "github.com/ppiankov/flowgraph/api/flowgraph/v1"
	"github.com/ppiankov/flowgraph/internal/flowgraph"
	"github.com/ppiankov/flowgraph/internal/model"
	"github.com/ppiankov/flowgraph/internal/server"
)

// Timeout bounds every call.
const Timeout = 5 * time.Second

// Client connects to a flowgraph gRPC server.
type Client struct {
	conn   *grpc.ClientConn
	client pb.FlowGraphClient
}

// New creates a client for addr. The connection is established lazily.
func New(addr string) (*Client, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to flowgraph service: %w", err)
	}
	return &Client{conn: conn, client: pb.NewFlowGraphClient(conn)}, nil
}

// Unreachable reports whether err means the service could not be contacted.
func Unreachable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded:
		return true
	}
	return false
}

// Spawn reports a process start.
func (c *Client) Spawn(ctx context.Context, pid model.PID, uid model.Principal) error {
	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()
	_, err := c.client.SpawnProcess(ctx, pb.Int32Fields(map[string]int32{
		pb.FieldPID: int32(pid), pb.FieldUID: int32(uid),
	}))
	return err
}

// Exit reports a process exit.
func (c *Client) Exit(ctx context.Context, pid model.PID, uid model.Principal) error {
	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()
	_, err := c.client.ExitProcess(ctx, pb.Int32Fields(map[string]int32{
		pb.FieldPID: int32(pid), pb.FieldUID: int32(uid),
	}))
	return err
}

// SetName sets a process display name.
func (c *Client) SetName(ctx context.Context, pid model.PID, name string) error {
	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()
	_, err := c.client.SetProcessName(ctx, &structpb.Struct{Fields: map[string]*structpb.Value{
		pb.FieldPID:  structpb.NewNumberValue(float64(pid)),
		pb.FieldName: structpb.NewStringValue(name),
	}})
	return err
}

// Communicate reports a tagged transfer. It returns after any enforcement
// triggered by the transfer has run.
func (c *Client) Communicate(ctx context.Context, comm flowgraph.Communication) error {
	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()
	_, err := c.client.PreCommunication(ctx, pb.Int32Fields(map[string]int32{
		pb.FieldFromPID:  int32(comm.FromPID),
		pb.FieldFromUID:  int32(comm.FromUID),
		pb.FieldToPID:    int32(comm.ToPID),
		pb.FieldToUID:    int32(comm.ToUID),
		pb.FieldBytes:    comm.Size,
		pb.FieldTaintTag: comm.TagMask,
	}))
	return err
}

// Dump asks the service to log its graph state and returns the DOT text.
func (c *Client) Dump(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()
	resp, err := c.client.LogGraphState(ctx, &emptypb.Empty{})
	if err != nil {
		return "", err
	}
	return resp.GetValue(), nil
}

// Flows lists live flow counters.
func (c *Client) Flows(ctx context.Context) (server.FlowList, error) {
	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()

	var out server.FlowList
	resp, err := c.client.ListFlows(ctx, &emptypb.Empty{})
	if err != nil {
		return out, err
	}
	return out, fromStruct(resp, &out)
}

// Policy returns the active policy.
func (c *Client) Policy(ctx context.Context) (server.PolicyInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()

	var out server.PolicyInfo
	resp, err := c.client.GetPolicy(ctx, &emptypb.Empty{})
	if err != nil {
		return out, err
	}
	return out, fromStruct(resp, &out)
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func fromStruct(s *structpb.Struct, v any) error {
	data, err := s.MarshalJSON()
	if err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
