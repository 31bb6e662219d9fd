package health

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"undercity/internal/recovery"
)

type fakeHandle struct {
	taskID      string
	mu          sync.Mutex
	hints       []string
	terminated  bool
}

func (f *fakeHandle) TaskID() string { return f.taskID }

func (f *fakeHandle) SendResumeHint(hint string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hints = append(f.hints, hint)
	return nil
}

func (f *fakeHandle) Terminate(ctx context.Context, timeout time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.terminated = true
	return nil
}

func TestMonitor_SweepIgnoresFreshCheckpoint(t *testing.T) {
	store, err := recovery.New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.WriteActiveTask(recovery.TaskRecord{TaskID: "t1", Status: "running"}))
	require.NoError(t, store.WriteCheckpoint(recovery.Checkpoint{TaskID: "t1", Phase: "execute"}))

	h := &fakeHandle{taskID: "t1"}
	mon := NewMonitor(store, Options{StuckThreshold: time.Hour, MaxRecoveryAttempts: 1}, nil)
	mon.RegisterWorker(h)

	mon.sweep(context.Background())

	h.mu.Lock()
	defer h.mu.Unlock()
	require.Empty(t, h.hints)
	require.False(t, h.terminated)
}

func TestMonitor_SweepSendsResumeHintThenTerminates(t *testing.T) {
	store, err := recovery.New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.WriteActiveTask(recovery.TaskRecord{TaskID: "t1", Status: "running"}))
	require.NoError(t, store.WriteCheckpoint(recovery.Checkpoint{TaskID: "t1", Phase: "verify"}))

	h := &fakeHandle{taskID: "t1"}
	mon := NewMonitor(store, Options{StuckThreshold: time.Nanosecond, MaxRecoveryAttempts: 1}, nil)
	mon.RegisterWorker(h)

	// Checkpoint is immediately "stale" since threshold is 1ns; first sweep
	// should only send a resume hint.
	mon.sweep(context.Background())
	h.mu.Lock()
	require.Len(t, h.hints, 1)
	require.False(t, h.terminated)
	h.mu.Unlock()

	// Second sweep past the single recovery attempt should terminate.
	mon.sweep(context.Background())
	h.mu.Lock()
	require.True(t, h.terminated)
	h.mu.Unlock()

	completed, err := store.GetCompletedTasks()
	require.NoError(t, err)
	require.Len(t, completed, 1)
	require.Equal(t, "failed", completed[0].Status)
	require.Equal(t, "stuck", completed[0].ErrorCategory)
}

func TestMonitor_IgnoresNonLiveCheckpointPhase(t *testing.T) {
	store, err := recovery.New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.WriteActiveTask(recovery.TaskRecord{TaskID: "t1", Status: "running"}))
	require.NoError(t, store.WriteCheckpoint(recovery.Checkpoint{TaskID: "t1", Phase: "plan"}))

	h := &fakeHandle{taskID: "t1"}
	mon := NewMonitor(store, Options{StuckThreshold: time.Nanosecond, MaxRecoveryAttempts: 1}, nil)
	mon.RegisterWorker(h)

	mon.sweep(context.Background())
	h.mu.Lock()
	defer h.mu.Unlock()
	require.Empty(t, h.hints)
	require.False(t, h.terminated)
}
