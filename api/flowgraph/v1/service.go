// Package flowgraphv1 defines the flowgraph.v1.FlowGraph gRPC service.
//
// Messages are protobuf well-known types: requests carry their fields in a
// structpb.Struct keyed by the Field* constants, LogGraphState answers with a
// wrapperspb.StringValue holding the DOT document.
package flowgraphv1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "flowgraph.v1.FlowGraph"

// Full method names.
const (
	FlowGraph_SpawnProcess_FullMethodName     = "/" + ServiceName + "/SpawnProcess"
	FlowGraph_ExitProcess_FullMethodName      = "/" + ServiceName + "/ExitProcess"
	FlowGraph_SetProcessName_FullMethodName   = "/" + ServiceName + "/SetProcessName"
	FlowGraph_PreCommunication_FullMethodName = "/" + ServiceName + "/PreCommunication"
	FlowGraph_LogGraphState_FullMethodName    = "/" + ServiceName + "/LogGraphState"
	FlowGraph_ListFlows_FullMethodName        = "/" + ServiceName + "/ListFlows"
	FlowGraph_GetPolicy_FullMethodName        = "/" + ServiceName + "/GetPolicy"
)

// FlowGraphClient is the client API for the FlowGraph service.
type FlowGraphClient interface {
	SpawnProcess(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error)
	ExitProcess(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error)
	SetProcessName(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error)
	PreCommunication(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error)
	LogGraphState(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*wrapperspb.StringValue, error)
	ListFlows(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error)
	GetPolicy(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type flowGraphClient struct {
	cc grpc.ClientConnInterface
}

// NewFlowGraphClient wraps a connection.
func NewFlowGraphClient(cc grpc.ClientConnInterface) FlowGraphClient {
	return &flowGraphClient{cc}
}

func (c *flowGraphClient) SpawnProcess(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, FlowGraph_SpawnProcess_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *flowGraphClient) ExitProcess(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, FlowGraph_ExitProcess_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *flowGraphClient) SetProcessName(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, FlowGraph_SetProcessName_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *flowGraphClient) PreCommunication(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, FlowGraph_PreCommunication_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *flowGraphClient) LogGraphState(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*wrapperspb.StringValue, error) {
	out := new(wrapperspb.StringValue)
	if err := c.cc.Invoke(ctx, FlowGraph_LogGraphState_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *flowGraphClient) ListFlows(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, FlowGraph_ListFlows_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *flowGraphClient) GetPolicy(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, FlowGraph_GetPolicy_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// FlowGraphServer is the server API for the FlowGraph service.
type FlowGraphServer interface {
	SpawnProcess(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	ExitProcess(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	SetProcessName(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	PreCommunication(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	LogGraphState(context.Context, *emptypb.Empty) (*wrapperspb.StringValue, error)
	ListFlows(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	GetPolicy(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// UnimplementedFlowGraphServer can be embedded for forward compatibility.
type UnimplementedFlowGraphServer struct{}

func (UnimplementedFlowGraphServer) SpawnProcess(context.Context, *structpb.Struct) (*emptypb.Empty, error) {
	return nil, status.Error(codes.Unimplemented, "method SpawnProcess not implemented")
}
func (UnimplementedFlowGraphServer) ExitProcess(context.Context, *structpb.Struct) (*emptypb.Empty, error) {
	return nil, status.Error(codes.Unimplemented, "method ExitProcess not implemented")
}
func (UnimplementedFlowGraphServer) SetProcessName(context.Context, *structpb.Struct) (*emptypb.Empty, error) {
	return nil, status.Error(codes.Unimplemented, "method SetProcessName not implemented")
}
func (UnimplementedFlowGraphServer) PreCommunication(context.Context, *structpb.Struct) (*emptypb.Empty, error) {
	return nil, status.Error(codes.Unimplemented, "method PreCommunication not implemented")
}
func (UnimplementedFlowGraphServer) LogGraphState(context.Context, *emptypb.Empty) (*wrapperspb.StringValue, error) {
	return nil, status.Error(codes.Unimplemented, "method LogGraphState not implemented")
}
func (UnimplementedFlowGraphServer) ListFlows(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method ListFlows not implemented")
}
func (UnimplementedFlowGraphServer) GetPolicy(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method GetPolicy not implemented")
}

// RegisterFlowGraphServer registers srv on s.
func RegisterFlowGraphServer(s grpc.ServiceRegistrar, srv FlowGraphServer) {
	s.RegisterService(&FlowGraph_ServiceDesc, srv)
}

// unary adapts a typed method to a grpc.MethodHandler.
func unary[In any, Out any](fullMethod string, newIn func() In, call func(FlowGraphServer, context.Context, In) (Out, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := newIn()
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(FlowGraphServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(FlowGraphServer), ctx, req.(In))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func newStruct() *structpb.Struct { return new(structpb.Struct) }
func newEmpty() *emptypb.Empty    { return new(emptypb.Empty) }

// FlowGraph_ServiceDesc is the grpc.ServiceDesc for the FlowGraph service.
var FlowGraph_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*FlowGraphServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SpawnProcess", Handler: unary(FlowGraph_SpawnProcess_FullMethodName, newStruct, FlowGraphServer.SpawnProcess)},
		{MethodName: "ExitProcess", Handler: unary(FlowGraph_ExitProcess_FullMethodName, newStruct, FlowGraphServer.ExitProcess)},
		{MethodName: "SetProcessName", Handler: unary(FlowGraph_SetProcessName_FullMethodName, newStruct, FlowGraphServer.SetProcessName)},
		{MethodName: "PreCommunication", Handler: unary(FlowGraph_PreCommunication_FullMethodName, newStruct, FlowGraphServer.PreCommunication)},
		{MethodName: "LogGraphState", Handler: unary(FlowGraph_LogGraphState_FullMethodName, newEmpty, FlowGraphServer.LogGraphState)},
		{MethodName: "ListFlows", Handler: unary(FlowGraph_ListFlows_FullMethodName, newEmpty, FlowGraphServer.ListFlows)},
		{MethodName: "GetPolicy", Handler: unary(FlowGraph_GetPolicy_FullMethodName, newEmpty, FlowGraphServer.GetPolicy)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "flowgraph/v1/flowgraph.proto",
}
