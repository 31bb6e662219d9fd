// Package recovery persists crash-survivable task and batch state to disk,
// so that after any crash scanning the active directory yields exactly the
// tasks whose workers did not reach a terminal status.
package recovery

import "time"

// TaskRecord is the recovery-layer view of one task's worker: which
// worktree and branch it owns, and its terminal outcome once it has one.
type TaskRecord struct {
	TaskID        string     `json:"taskId"`
	BatchID       string     `json:"batchId,omitempty"`
	WorktreePath  string     `json:"worktreePath"`
	Branch        string     `json:"branch"`
	Status        string     `json:"status"` // "running", "complete", "failed"
	ErrorCategory string     `json:"errorCategory,omitempty"`
	ErrorMessage  string     `json:"errorMessage,omitempty"`
	StartedAt     time.Time  `json:"startedAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
}

// Checkpoint is the per-phase-boundary liveness record the Worker writes and
// the Health Monitor reads to detect stuck tasks.
type Checkpoint struct {
	TaskID       string    `json:"taskId"`
	Phase        string    `json:"phase"` // plan, execute, verify, fix, review, escalate
	Tier         string    `json:"tier"`
	Attempts     int       `json:"attempts"`
	FilesTouched []string  `json:"filesTouched,omitempty"`
	LastError    string    `json:"lastError,omitempty"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// BatchMetadata records the set of tasks admitted together in one
// Orchestrator admission-loop iteration.
type BatchMetadata struct {
	BatchID   string    `json:"batchId"`
	TaskIDs   []string  `json:"taskIds"`
	CreatedAt time.Time `json:"createdAt"`
}
