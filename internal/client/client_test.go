package client

import (
	"context"
	"net"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/flowgraph/internal/enforce"
	"github.com/ppiankov/flowgraph/internal/flowgraph"
	"github.com/ppiankov/flowgraph/internal/model"
	"github.com/ppiankov/flowgraph/internal/server"
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

// startTestServer creates a server and returns a connected client.
func startTestServer(t *testing.T) (*Client, *mockKiller) {
	t.Helper()

	k := &mockKiller{}
	enf := enforce.New(enforce.Options{Killer: k})
	eng := flowgraph.New(flowgraph.Options{Enforcer: enf})
	srv, err := server.New(server.Config{PolicyPath: filepath.Join(t.TempDir(), "policy.yaml")}, eng, enf, nil)
	require.NoError(t, err)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go srv.ServeOn(lis)

	c, err := New(lis.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() {
		c.Close()
		srv.GracefulStop()
	})
	return c, k
}

func TestClientRoundTrip(t *testing.T) {
	c, k := startTestServer(t)
	ctx := context.Background()

	require.NoError(t, c.Spawn(ctx, 100, 10001))
	require.NoError(t, c.Spawn(ctx, 200, 10002))
	require.NoError(t, c.SetName(ctx, 100, "com.example.contacts"))

	comm := flowgraph.Communication{
		FromPID: 100, FromUID: 10001, ToPID: 200, ToUID: 10002,
		Size: 600, TagMask: int32(taint.Contacts.Mask() | taint.Location.Mask()),
	}
	require.NoError(t, c.Communicate(ctx, comm))

	list, err := c.Flows(ctx)
	require.NoError(t, err)
	require.Len(t, list.Flows, 2)
	assert.Equal(t, taint.Location, list.Flows[0].Tag)
	assert.Equal(t, taint.Contacts, list.Flows[1].Tag)
	assert.Equal(t, uint64(600), list.Flows[1].Bytes)
	require.NotNil(t, list.Flows[1].Threshold)
	assert.Equal(t, uint64(1000), *list.Flows[1].Threshold)
	assert.Equal(t, 2, list.Stats.Principals)

	dot, err := c.Dump(ctx)
	require.NoError(t, err)
	assert.Contains(t, dot, `label="com.example.contacts"`)
	assert.Contains(t, dot, "sandbox_10001 -> sandbox_10002")

	require.NoError(t, c.Communicate(ctx, comm))
	k.mu.Lock()
	assert.Equal(t, []model.PID{200}, k.killed)
	k.mu.Unlock()

	require.NoError(t, c.Exit(ctx, 100, 10001))
	list, err = c.Flows(ctx)
	require.NoError(t, err)
	assert.Empty(t, list.Flows)
}

func TestClientPolicy(t *testing.T) {
	c, _ := startTestServer(t)

	info, err := c.Policy(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "kill", info.Enforcement)
	assert.Equal(t, 6, info.WindowBuckets)
	require.Len(t, info.Rules, 2)
	assert.Equal(t, server.PolicyRule{Tag: "contacts", TagName: "Contacts", MaxBytes: 1000}, info.Rules[0])
}

func TestClientUnreachable(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()
	lis.Close()

	c, err := New(addr)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Dump(context.Background())
	require.Error(t, err)
	assert.True(t, Unreachable(err))
	assert.False(t, Unreachable(nil))
}
