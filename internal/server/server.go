// Package server exposes the flow graph engine over gRPC.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	pb "github.com/ppiankov/flowgraph/api/flowgraph/v1"
	"github.com/ppiankov/flowgraph/internal/alert"
	"github.com/ppiankov/flowgraph/internal/enforce"
	"github.com/ppiankov/flowgraph/internal/flowgraph"
	"github.com/ppiankov/flowgraph/internal/model"
	"github.com/ppiankov/flowgraph/internal/policy"
)

// DefaultAddr is the default listen address.
const DefaultAddr = "127.0.0.1:50051"

// Config holds gRPC server configuration.
type Config struct {
	Addr       string
	PolicyPath string
	// DryRun forces log-only enforcement regardless of the policy file.
	DryRun bool
}

// Server implements the FlowGraph gRPC service on top of an engine.
type Server struct {
	pb.UnimplementedFlowGraphServer

	engine   *flowgraph.Engine
	enforcer *enforce.Enforcer
	logger   *zap.Logger
	cfg      Config

	mu         sync.RWMutex
	policyCfg  *policy.PolicyConfig
	policyHash string

	grpcServer *grpc.Server
	health     *health.Server
}

// New creates a server for engine. The policy at cfg.PolicyPath is loaded
// and applied to engine and enforcer; enforcer may be nil.
func New(cfg Config, engine *flowgraph.Engine, enforcer *enforce.Enforcer, logger *zap.Logger) (*Server, error) {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		engine:   engine,
		enforcer: enforcer,
		logger:   logger,
		cfg:      cfg,
		health:   health.NewServer(),
	}
	if err := s.ReloadPolicy(); err != nil {
		return nil, err
	}

	s.grpcServer = grpc.NewServer(grpc.ChainUnaryInterceptor(s.logUnary))
	pb.RegisterFlowGraphServer(s.grpcServer, s)
	healthpb.RegisterHealthServer(s.grpcServer, s.health)
	s.health.SetServingStatus(pb.ServiceName, healthpb.HealthCheckResponse_SERVING)
	return s, nil
}

// Serve listens on the configured address. Blocks until stopped.
func (s *Server) Serve() error {
	lis, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}
	return s.ServeOn(lis)
}

// ServeOn serves on the given listener.
func (s *Server) ServeOn(lis net.Listener) error {
	s.logger.Info("grpc server listening", zap.String("addr", lis.Addr().String()))
	return s.grpcServer.Serve(lis)
}

// GracefulStop marks the service not serving and drains in-flight calls.
func (s *Server) GracefulStop() {
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
}

// PolicyHash returns the hash of the active policy file.
func (s *Server) PolicyHash() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.policyHash
}

// ReloadPolicy re-reads the policy file and swaps thresholds, tag labels,
// enforcement mode and alert routes. The counter window is fixed at startup.
func (s *Server) ReloadPolicy() error {
	cfg, hash, err := policy.LoadConfigWithHash(s.cfg.PolicyPath)
	if err != nil {
		return fmt.Errorf("failed to load policy config: %w", err)
	}

	s.mu.Lock()
	prev := s.policyCfg
	s.policyCfg = cfg
	s.policyHash = hash
	s.mu.Unlock()

	if prev != nil && prev.Window != cfg.Window {
		s.logger.Warn("policy window change requires restart",
			zap.Int("buckets", prev.Window.Buckets), zap.Duration("interval", prev.Window.Interval))
	}

	s.engine.SetPolicy(policy.NewEngine(cfg.Rules), cfg.Namer())
	mode := cfg.Enforcement
	if s.cfg.DryRun {
		mode = policy.ModeLog
	}
	if s.enforcer != nil {
		s.enforcer.SetPolicy(mode, hash, alert.NewDispatcher(cfg.Alerts, s.logger))
		s.enforcer.SetAlertLimit(cfg.AlertLimit)
	}
	s.logger.Info("policy loaded",
		zap.String("path", s.cfg.PolicyPath),
		zap.String("hash", hash),
		zap.Int("rules", len(cfg.Rules)),
		zap.String("enforcement", mode))
	return nil
}

// Policy returns the active policy configuration.
func (s *Server) Policy() *policy.PolicyConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.policyCfg
}

func (s *Server) logUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	if err != nil {
		s.logger.Warn("rpc failed", zap.String("method", info.FullMethod), zap.Error(err))
	} else if ce := s.logger.Check(zap.DebugLevel, "rpc"); ce != nil {
		ce.Write(zap.String("method", info.FullMethod), zap.Duration("took", time.Since(start)))
	}
	return resp, err
}

// SpawnProcess implements the SpawnProcess RPC.
func (s *Server) SpawnProcess(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	pid, uid, err := pidUID(req)
	if err != nil {
		return nil, err
	}
	s.engine.OnSpawn(pid, uid)
	return &emptypb.Empty{}, nil
}

// ExitProcess implements the ExitProcess RPC. Unknown processes are not an
// error for the caller.
func (s *Server) ExitProcess(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	pid, uid, err := pidUID(req)
	if err != nil {
		return nil, err
	}
	s.engine.OnExit(pid, uid)
	return &emptypb.Empty{}, nil
}

// SetProcessName implements the SetProcessName RPC.
func (s *Server) SetProcessName(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	pid, err := pb.Int32(req, pb.FieldPID)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	name, err := pb.String(req, pb.FieldName)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	s.engine.OnSetName(model.PID(pid), name)
	return &emptypb.Empty{}, nil
}

// PreCommunication implements the PreCommunication RPC. Enforcement runs
// before the call returns.
func (s *Server) PreCommunication(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	var vals [6]int32
	names := [6]string{pb.FieldFromPID, pb.FieldFromUID, pb.FieldToPID, pb.FieldToUID, pb.FieldBytes, pb.FieldTaintTag}
	for i, name := range names {
		v, err := pb.Int32(req, name)
		if err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		vals[i] = v
	}
	s.engine.OnCommunication(ctx, flowgraph.Communication{
		FromPID: model.PID(vals[0]),
		FromUID: model.Principal(vals[1]),
		ToPID:   model.PID(vals[2]),
		ToUID:   model.Principal(vals[3]),
		Size:    vals[4],
		TagMask: vals[5],
	})
	return &emptypb.Empty{}, nil
}

// LogGraphState implements the LogGraphState RPC. The DOT document is both
// logged and returned.
func (s *Server) LogGraphState(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.StringValue, error) {
	dot := s.engine.Render()
	s.logger.Info("flow graph state", zap.String("dot", dot))
	return wrapperspb.String(dot), nil
}

// FlowList is the ListFlows payload.
type FlowList struct {
	Flows []flowgraph.FlowInfo `json:"flows"`
	Stats flowgraph.Stats      `json:"stats"`
}

// ListFlows implements the ListFlows RPC.
func (s *Server) ListFlows(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return toStruct(FlowList{Flows: s.engine.Flows(), Stats: s.engine.Stats()})
}

// PolicyRule is one threshold in the GetPolicy payload.
type PolicyRule struct {
	Tag      string `json:"tag"`
	TagName  string `json:"tag_name"`
	MaxBytes uint64 `json:"max_bytes"`
}

// PolicyInfo is the GetPolicy payload.
type PolicyInfo struct {
	Hash          string       `json:"hash"`
	Enforcement   string       `json:"enforcement"`
	WindowBuckets int          `json:"window_buckets"`
	WindowSeconds float64      `json:"window_seconds"`
	Rules         []PolicyRule `json:"rules"`
}

// GetPolicy implements the GetPolicy RPC.
func (s *Server) GetPolicy(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	s.mu.RLock()
	cfg, hash := s.policyCfg, s.policyHash
	s.mu.RUnlock()

	namer := cfg.Namer()
	info := PolicyInfo{
		Hash:          hash,
		Enforcement:   cfg.Enforcement,
		WindowBuckets: cfg.Window.Buckets,
		WindowSeconds: cfg.Window.Span().Seconds(),
	}
	if s.cfg.DryRun {
		info.Enforcement = policy.ModeLog
	}
	for _, r := range policy.NewEngine(cfg.Rules).Rules() {
		info.Rules = append(info.Rules, PolicyRule{Tag: r.Tag.String(), TagName: namer.Name(r.Tag), MaxBytes: r.MaxBytes})
	}
	return toStruct(info)
}

func pidUID(req *structpb.Struct) (model.PID, model.Principal, error) {
	pid, err := pb.Int32(req, pb.FieldPID)
	if err != nil {
		return 0, 0, status.Error(codes.InvalidArgument, err.Error())
	}
	uid, err := pb.Int32(req, pb.FieldUID)
	if err != nil {
		return 0, 0, status.Error(codes.InvalidArgument, err.Error())
	}
	return model.PID(pid), model.Principal(uid), nil
}

// toStruct converts a JSON-tagged value to a structpb.Struct.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	st, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return st, nil
}
