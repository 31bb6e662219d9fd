// Package health runs the periodic liveness sweep over active tasks: a
// checkpoint that hasn't advanced past a threshold marks a task stuck, which
// first tries a cooperative resume hint and, failing that, a hard
// termination that hands the task to the Recovery Store as failed.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"undercity/internal/recovery"
)

// stuckPhases are the Worker phases a stale checkpoint is meaningful in;
// a task parked in plan or terminal has no liveness expectation.
var stuckPhases = map[string]bool{
	"execute": true,
	"verify":  true,
	"review":  true,
}

// WorkerHandle is the liveness-control surface a running Worker exposes to
// the Health Monitor. The Worker package implements this.
type WorkerHandle interface {
	TaskID() string
	// SendResumeHint cooperatively nudges a stuck worker, e.g. reminding it
	// to commit progress or summarize where it left off.
	SendResumeHint(hint string) error
	// Terminate attempts a cooperative stop, escalating to a hard kill if
	// timeout elapses first.
	Terminate(ctx context.Context, timeout time.Duration) error
}

// Options configures a Monitor's thresholds.
type Options struct {
	TickInterval        time.Duration
	StuckThreshold      time.Duration
	MaxRecoveryAttempts int
	HardKillTimeout     time.Duration
}

func (o *Options) applyDefaults() {
	if o.TickInterval <= 0 {
		o.TickInterval = 60 * time.Second
	}
	if o.StuckThreshold <= 0 {
		o.StuckThreshold = 5 * time.Minute
	}
	if o.MaxRecoveryAttempts <= 0 {
		o.MaxRecoveryAttempts = 1
	}
	if o.HardKillTimeout <= 0 {
		o.HardKillTimeout = 30 * time.Second
	}
}

// Monitor periodically sweeps the Recovery Store's active tasks for stalled
// checkpoints. It never locks the worker itself — only Recovery Store files
// are inspected to decide whether a task looks stuck.
type Monitor struct {
	store   *recovery.Store
	opts    Options
	logger  *slog.Logger

	mu               sync.Mutex
	handles          map[string]WorkerHandle
	recoveryAttempts map[string]int
}

// NewMonitor builds a Monitor backed by store, ticking at opts.TickInterval.
func NewMonitor(store *recovery.Store, opts Options, logger *slog.Logger) *Monitor {
	opts.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		store:            store,
		opts:             opts,
		logger:           logger,
		handles:          make(map[string]WorkerHandle),
		recoveryAttempts: make(map[string]int),
	}
}

// RegisterWorker makes a live worker visible to the liveness sweep.
func (m *Monitor) RegisterWorker(h WorkerHandle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handles[h.TaskID()] = h
}

// UnregisterWorker removes a worker once it reaches a terminal state,
// clearing its recovery-attempt counter.
func (m *Monitor) UnregisterWorker(taskID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.handles, taskID)
	delete(m.recoveryAttempts, taskID)
}

// Run ticks every opts.TickInterval until ctx is canceled, sweeping active
// tasks for staleness on each tick.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.opts.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.sweep(ctx)
		}
	}
}

// sweep inspects every active task once. Split out as a method (rather than
// buried in Run) so tests can drive a single pass deterministically.
func (m *Monitor) sweep(ctx context.Context) {
	active, err := m.store.ScanActiveTasks()
	if err != nil {
		m.logger.Error("health sweep: scan active tasks", "error", err)
		return
	}

	for _, task := range active {
		m.checkTask(ctx, task.TaskID)
	}
}

func (m *Monitor) checkTask(ctx context.Context, taskID string) {
	cp, err := m.store.ReadCheckpoint(taskID)
	if err != nil || cp == nil {
		return
	}
	if !stuckPhases[cp.Phase] {
		return
	}

	age, err := m.store.CheckpointAge(taskID)
	if err != nil || age < m.opts.StuckThreshold {
		return
	}

	m.mu.Lock()
	handle := m.handles[taskID]
	attempts := m.recoveryAttempts[taskID]
	m.mu.Unlock()

	if attempts < m.opts.MaxRecoveryAttempts {
		m.mu.Lock()
		m.recoveryAttempts[taskID]++
		m.mu.Unlock()

		m.logger.Warn("stuck task: attempting recovery", "task", taskID, "phase", cp.Phase, "attempt", attempts+1)
		_ = m.store.UpdateActiveTaskStatus(taskID, "recovering", fmt.Sprintf("stuck in %s, recovery attempt %d", cp.Phase, attempts+1))

		if handle != nil {
			if err := handle.SendResumeHint(resumeHint(cp)); err != nil {
				m.logger.Error("health: send resume hint failed", "task", taskID, "error", err)
			}
		}
		return
	}

	m.logger.Error("stuck task: terminating after exhausted recovery attempts", "task", taskID, "phase", cp.Phase)
	if handle != nil {
		termCtx, cancel := context.WithTimeout(ctx, m.opts.HardKillTimeout)
		if err := handle.Terminate(termCtx, m.opts.HardKillTimeout); err != nil {
			m.logger.Error("health: terminate stuck worker failed", "task", taskID, "error", err)
		}
		cancel()
		m.UnregisterWorker(taskID)
	}
	if err := m.store.MarkTaskCompleted(taskID, "failed", "stuck"); err != nil {
		m.logger.Error("health: mark stuck task completed failed", "task", taskID, "error", err)
	}
}

func resumeHint(cp *recovery.Checkpoint) string {
	return fmt.Sprintf(
		"You appear stalled in phase %q (tier %s, attempt %d). Summarize what you've done so far, commit any working progress, and continue from where you left off.",
		cp.Phase, cp.Tier, cp.Attempts,
	)
}
