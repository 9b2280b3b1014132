package server

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	pb "github.com/ppiankov/flowgraph/api/flowgraph/v1"
	"github.com/ppiankov/flowgraph/internal/enforce"
	"github.com/ppiankov/flowgraph/internal/flowgraph"
	"github.com/ppiankov/flowgraph/internal/model"
	"github.com/ppiankov/flowgraph/internal/policy"
	"github.com/ppiankov/flowgraph/internal/taint"
)

type mockKiller struct {
	mu     sync.Mutex
	killed []model.PID
}

func (k *mockKiller) Kill(pid model.PID) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.killed = append(k.killed, pid)
	return nil
}

func (k *mockKiller) pids() []model.PID {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]model.PID(nil), k.killed...)
}

type harness struct {
	srv    *Server
	client pb.FlowGraphClient
	conn   *grpc.ClientConn
	engine *flowgraph.Engine
	killer *mockKiller
}

// testServer spins up an in-process gRPC server on a random port.
func testServer(t *testing.T, policyPath string) *harness {
	t.Helper()
	if policyPath == "" {
		policyPath = filepath.Join(t.TempDir(), "missing.yaml")
	}

	k := &mockKiller{}
	enf := enforce.New(enforce.Options{Killer: k})
	eng := flowgraph.New(flowgraph.Options{Enforcer: enf})

	srv, err := New(Config{PolicyPath: policyPath}, eng, enf, nil)
	require.NoError(t, err)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go srv.ServeOn(lis)

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)

	t.Cleanup(func() {
		conn.Close()
		srv.GracefulStop()
	})
	return &harness{srv: srv, client: pb.NewFlowGraphClient(conn), conn: conn, engine: eng, killer: k}
}

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func spawn(t *testing.T, h *harness, pid, uid int32) {
	t.Helper()
	_, err := h.client.SpawnProcess(context.Background(), pb.Int32Fields(map[string]int32{pb.FieldPID: pid, pb.FieldUID: uid}))
	require.NoError(t, err)
}

func communicate(t *testing.T, h *harness, fromUID, toUID, size int32, tag taint.Tag) {
	t.Helper()
	_, err := h.client.PreCommunication(context.Background(), pb.Int32Fields(map[string]int32{
		pb.FieldFromPID: 1, pb.FieldFromUID: fromUID,
		pb.FieldToPID: 2, pb.FieldToUID: toUID,
		pb.FieldBytes: size, pb.FieldTaintTag: int32(tag.Mask()),
	}))
	require.NoError(t, err)
}

func TestSpawnNameAndDump(t *testing.T) {
	h := testServer(t, "")
	ctx := context.Background()

	spawn(t, h, 310, 10001)
	_, err := h.client.SetProcessName(ctx, &structpb.Struct{Fields: map[string]*structpb.Value{
		pb.FieldPID:  structpb.NewNumberValue(310),
		pb.FieldName: structpb.NewStringValue("com.example.contacts"),
	}})
	require.NoError(t, err)

	dot, err := h.client.LogGraphState(ctx, &emptypb.Empty{})
	require.NoError(t, err)
	assert.Contains(t, dot.GetValue(), `processname_310 [shape=box, label="com.example.contacts"];`)
	assert.Equal(t, h.engine.Render(), dot.GetValue())
}

func TestThresholdKillsOverRPC(t *testing.T) {
	h := testServer(t, "")

	spawn(t, h, 200, 10002)
	spawn(t, h, 201, 10002)
	communicate(t, h, 10001, 10002, 600, taint.Contacts)
	assert.Empty(t, h.killer.pids())

	communicate(t, h, 10001, 10002, 500, taint.Contacts)
	assert.Equal(t, []model.PID{200, 201}, h.killer.pids())
}

func TestExitUnknownIsNotAnError(t *testing.T) {
	h := testServer(t, "")
	_, err := h.client.ExitProcess(context.Background(), pb.Int32Fields(map[string]int32{pb.FieldPID: 9, pb.FieldUID: 9}))
	assert.NoError(t, err)
}

func TestMalformedRequestIsInvalidArgument(t *testing.T) {
	h := testServer(t, "")
	_, err := h.client.SpawnProcess(context.Background(), pb.Int32Fields(map[string]int32{pb.FieldPID: 1}))
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = h.client.PreCommunication(context.Background(), &structpb.Struct{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestListFlows(t *testing.T) {
	h := testServer(t, "")
	communicate(t, h, 1, 2, 10, taint.SMS)

	st, err := h.client.ListFlows(context.Background(), &emptypb.Empty{})
	require.NoError(t, err)
	flows := st.AsMap()["flows"].([]any)
	require.Len(t, flows, 1)
	f := flows[0].(map[string]any)
	assert.Equal(t, "sms", f["tag"])
	assert.Equal(t, float64(10), f["bytes"])
	assert.Equal(t, float64(10000), f["threshold"])
}

func TestGetPolicyAndReload(t *testing.T) {
	path := writeTempFile(t, "policy.yaml", "rules:\n  - tag: camera\n    max_bytes: 5\ntag_names:\n  camera: Cam\n")
	h := testServer(t, path)
	ctx := context.Background()

	st, err := h.client.GetPolicy(ctx, &emptypb.Empty{})
	require.NoError(t, err)
	m := st.AsMap()
	assert.Equal(t, "kill", m["enforcement"])
	assert.Equal(t, float64(60), m["window_seconds"])
	rules := m["rules"].([]any)
	require.Len(t, rules, 1)
	assert.Equal(t, "Cam", rules[0].(map[string]any)["tag_name"])

	require.NoError(t, os.WriteFile(path, []byte("rules:\n  - tag: contacts\n    max_bytes: 1\nenforcement: log\n"), 0o644))
	require.NoError(t, h.srv.ReloadPolicy())
	assert.Equal(t, policy.ModeLog, h.srv.Policy().Enforcement)

	spawn(t, h, 5, 2)
	communicate(t, h, 1, 2, 10, taint.Contacts)
	assert.Empty(t, h.killer.pids())
}

func TestReloadKeepsPreviousPolicyOnError(t *testing.T) {
	path := writeTempFile(t, "policy.yaml", "rules:\n  - tag: sms\n    max_bytes: 5\n")
	h := testServer(t, path)
	hash := h.srv.PolicyHash()

	require.NoError(t, os.WriteFile(path, []byte("rules: [\n"), 0o644))
	assert.Error(t, h.srv.ReloadPolicy())
	assert.Equal(t, hash, h.srv.PolicyHash())
	assert.Equal(t, []policy.Rule{{Tag: taint.SMS, MaxBytes: 5}}, h.engine.Rules())
}

func TestHealthServing(t *testing.T) {
	h := testServer(t, "")
	resp, err := healthpb.NewHealthClient(h.conn).Check(context.Background(), &healthpb.HealthCheckRequest{Service: pb.ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}

func TestConcurrentRPCs(t *testing.T) {
	h := testServer(t, "")
	var wg sync.WaitGroup
	for w := int32(0); w < 8; w++ {
		wg.Add(1)
		go func(w int32) {
			defer wg.Done()
			for i := int32(0); i < 20; i++ {
				spawn(t, h, w*100+i, 1000+w)
				communicate(t, h, 1000+w, 2000, 1, taint.Camera)
			}
		}(w)
	}
	wg.Wait()
	assert.Equal(t, 160, h.engine.Stats().Processes)
}

type countingReloadable struct {
	n atomic.Int32
}

func (c *countingReloadable) ReloadPolicy() error {
	c.n.Add(1)
	return nil
}

func TestReloaderDebouncesWrites(t *testing.T) {
	path := writeTempFile(t, "policy.yaml", "rules: []\n")
	target := &countingReloadable{}
	r, err := NewReloader(target, []string{path, ""}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(path, []byte("rules: []\n"), 0o644))
		time.Sleep(20 * time.Millisecond)
	}
	assert.Eventually(t, func() bool { return target.n.Load() == 1 }, 3*time.Second, 50*time.Millisecond)
	time.Sleep(ReloadDebounce + 200*time.Millisecond)
	assert.Equal(t, int32(1), target.n.Load())
}

func TestReloaderIgnoresSiblingFiles(t *testing.T) {
	path := writeTempFile(t, "policy.yaml", "rules: []\n")
	target := &countingReloadable{}
	r, err := NewReloader(target, []string{path}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(path), "other.txt"), []byte("x"), 0o644))
	time.Sleep(ReloadDebounce + 300*time.Millisecond)
	assert.Zero(t, target.n.Load())
}

func TestDryRunForcesLogMode(t *testing.T) {
	k := &mockKiller{}
	enf := enforce.New(enforce.Options{Killer: k})
	eng := flowgraph.New(flowgraph.Options{Enforcer: enf})
	_, err := New(Config{PolicyPath: filepath.Join(t.TempDir(), "policy.yaml"), DryRun: true}, eng, enf, nil)
	require.NoError(t, err)
	assert.Equal(t, policy.ModeLog, enf.Mode())

	eng.OnSpawn(1, 2)
	eng.OnCommunication(context.Background(), flowgraph.Communication{FromUID: 1, ToUID: 2, Size: 5000, TagMask: int32(taint.Contacts.Mask())})
	assert.Empty(t, k.pids())
}
