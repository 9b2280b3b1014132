package enforce

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/flowgraph/internal/alert"
	"github.com/ppiankov/flowgraph/internal/audit"
	"github.com/ppiankov/flowgraph/internal/flowgraph"
	"github.com/ppiankov/flowgraph/internal/metrics"
	"github.com/ppiankov/flowgraph/internal/model"
	"github.com/ppiankov/flowgraph/internal/policy"
	"github.com/ppiankov/flowgraph/internal/ratelimit"
	"github.com/ppiankov/flowgraph/internal/taint"
)

type mockKiller struct {
	mu     sync.Mutex
	killed []model.PID
	fail   map[model.PID]error
}

func (k *mockKiller) Kill(pid model.PID) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if err := k.fail[pid]; err != nil {
		return err
	}
	k.killed = append(k.killed, pid)
	return nil
}

func (k *mockKiller) pids() []model.PID {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]model.PID(nil), k.killed...)
}

func sampleEnforcement() flowgraph.Enforcement {
	key := model.FlowKey{From: 10001, To: 10002}
	action := policy.NewEngine(policy.DefaultConfig().Rules).Evaluate(key, taint.Contacts, 1100)
	return flowgraph.Enforcement{Action: action, TagName: "Contacts", PIDs: []model.PID{200, 201}}
}

func TestKillModeKillsEveryProcess(t *testing.T) {
	k := &mockKiller{}
	e := New(Options{Killer: k})

	e.Enforce(context.Background(), sampleEnforcement())
	assert.Equal(t, []model.PID{200, 201}, k.pids())
}

func TestLogModeDoesNotKill(t *testing.T) {
	k := &mockKiller{}
	e := New(Options{Killer: k, Mode: policy.ModeLog})

	e.Enforce(context.Background(), sampleEnforcement())
	assert.Empty(t, k.pids())
}

func TestKillFailureDoesNotStopOthers(t *testing.T) {
	k := &mockKiller{fail: map[model.PID]error{200: errors.New("eperm")}}
	m := metrics.New()
	e := New(Options{Killer: k, Metrics: m})

	e.Enforce(context.Background(), sampleEnforcement())
	assert.Equal(t, []model.PID{201}, k.pids())

	n, err := testutil.GatherAndCount(m.Registry(), "flowgraph_kills_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestEnforcementIsJournaled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	sink, err := audit.Open(path)
	require.NoError(t, err)

	e := New(Options{Killer: &mockKiller{}, Audit: sink, PolicyHash: "sha256:p"})
	e.Enforce(context.Background(), sampleEnforcement())
	require.NoError(t, sink.Close())

	entries, err := audit.Read(path, audit.Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	got := entries[0]
	assert.Equal(t, audit.EventEnforce, got.Event)
	assert.Equal(t, int32(10002), got.TargetUID)
	assert.Equal(t, "contacts", got.Tag)
	assert.Equal(t, uint64(1100), got.Bytes)
	assert.Equal(t, uint64(1000), got.Threshold)
	assert.Equal(t, []int32{200, 201}, got.PIDs)
	assert.Equal(t, 2, got.Killed)
	assert.Equal(t, "sha256:p", got.PolicyHash)
	assert.Equal(t, "flow.contacts.max_bytes_exceeded", got.PolicyID)
	assert.True(t, audit.Verify(path).Valid)
}

func TestEnforcementRaisesAlerts(t *testing.T) {
	events := make(chan alert.AlertEvent, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ev alert.AlertEvent
		if err := json.NewDecoder(r.Body).Decode(&ev); err == nil {
			events <- ev
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	k := &mockKiller{fail: map[model.PID]error{201: errors.New("eperm")}}
	d := alert.NewDispatcher([]alert.AlertConfig{{URL: srv.URL, Events: []string{"*"}}}, nil)
	e := New(Options{Killer: k, Alerts: d})

	e.Enforce(context.Background(), sampleEnforcement())

	got := map[string]alert.AlertEvent{}
	for len(got) < 2 {
		select {
		case ev := <-events:
			got[ev.Type] = ev
		case <-time.After(2 * time.Second):
			t.Fatalf("expected 2 alerts, got %d", len(got))
		}
	}
	assert.Equal(t, 1, got[alert.TypeEnforce].Killed)
	assert.Equal(t, "Contacts", got[alert.TypeEnforce].TagName)
	assert.Equal(t, []int32{201}, got[alert.TypeKillFailed].PIDs)
}

func TestAlertLimitThrottlesRepeatedEnforcement(t *testing.T) {
	var called atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := alert.NewDispatcher([]alert.AlertConfig{{URL: srv.URL, Events: []string{alert.TypeEnforce}}}, nil)
	e := New(Options{
		Killer:     &mockKiller{},
		Alerts:     d,
		AlertLimit: ratelimit.Limit{MaxEvents: 2, Window: time.Hour},
	})

	for i := 0; i < 5; i++ {
		e.Enforce(context.Background(), sampleEnforcement())
	}
	assert.Eventually(t, func() bool { return called.Load() == 2 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(2), called.Load())

	e.SetAlertLimit(ratelimit.Limit{})
	e.Enforce(context.Background(), sampleEnforcement())
	assert.Eventually(t, func() bool { return called.Load() == 3 }, 2*time.Second, 10*time.Millisecond)
}

func TestSetPolicySwitchesMode(t *testing.T) {
	k := &mockKiller{}
	e := New(Options{Killer: k})
	assert.Equal(t, policy.ModeKill, e.Mode())

	e.SetPolicy(policy.ModeLog, "h", nil)
	assert.Equal(t, policy.ModeLog, e.Mode())
	e.Enforce(context.Background(), sampleEnforcement())
	assert.Empty(t, k.pids())

	e.SetPolicy("", "h", nil)
	assert.Equal(t, policy.ModeKill, e.Mode())
}

func TestEngineDrivesEnforcer(t *testing.T) {
	k := &mockKiller{}
	enf := New(Options{Killer: k})
	eng := flowgraph.New(flowgraph.Options{Enforcer: enf})

	eng.OnSpawn(300, 20)
	eng.OnSpawn(301, 20)
	eng.OnCommunication(context.Background(), flowgraph.Communication{
		FromUID: 10, ToUID: 20, Size: 20000, TagMask: int32(taint.SMS.Mask()),
	})
	assert.Equal(t, []model.PID{300, 301}, k.pids())
}

func TestCancelledContextStillKillsEveryProcess(t *testing.T) {
	k := &mockKiller{}
	e := New(Options{Killer: k})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e.Enforce(ctx, sampleEnforcement())
	assert.Equal(t, []model.PID{200, 201}, k.pids())
}

func TestCancelledCallerStillKillsThroughEngine(t *testing.T) {
	k := &mockKiller{}
	eng := flowgraph.New(flowgraph.Options{Enforcer: New(Options{Killer: k})})
	eng.OnSpawn(200, 2)
	eng.OnSpawn(201, 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	issued := eng.OnCommunication(ctx, flowgraph.Communication{
		FromUID: 1, ToUID: 2, Size: 5000, TagMask: int32(taint.Contacts.Mask()),
	})
	require.Len(t, issued, 1)
	assert.Equal(t, []model.PID{200, 201}, k.pids())
}

func TestEveryViolationIsJournaledWithOneKillPass(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	sink, err := audit.Open(path)
	require.NoError(t, err)

	k := &mockKiller{}
	m := metrics.New()
	enf := New(Options{Killer: k, Audit: sink, Metrics: m})
	eng := flowgraph.New(flowgraph.Options{Enforcer: enf})
	eng.OnSpawn(300, 20)

	eng.OnCommunication(context.Background(), flowgraph.Communication{
		FromUID: 10, ToUID: 20, Size: 20000, TagMask: int32(taint.Contacts.Mask() | taint.SMS.Mask()),
	})
	require.NoError(t, sink.Close())

	assert.Equal(t, []model.PID{300}, k.pids())

	entries, err := audit.Read(path, audit.Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "contacts", entries[0].Tag)
	assert.Equal(t, uint64(1000), entries[0].Threshold)
	assert.Equal(t, "sms", entries[1].Tag)
	assert.Equal(t, uint64(10000), entries[1].Threshold)
	for _, got := range entries {
		assert.Equal(t, []int32{300}, got.PIDs)
		assert.Equal(t, 1, got.Killed)
	}

	n, err := testutil.GatherAndCount(m.Registry(), "flowgraph_enforcements_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSignalKillerRejectsNonPositivePID(t *testing.T) {
	assert.Error(t, SignalKiller{}.Kill(0))
	assert.Error(t, SignalKiller{}.Kill(-1))
}

func TestCmdlineMissingProcess(t *testing.T) {
	assert.Empty(t, Cmdline(-1))
}
