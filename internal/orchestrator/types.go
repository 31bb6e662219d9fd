// Package orchestrator drives the top-level admission loop: selecting
// runnable tasks from the board, shaping them into a conflict-free batch,
// spawning a Worker per admitted task, and handing finished work to the
// Merge Pipeline.
package orchestrator

import (
	"time"

	"undercity/internal/merge"
	"undercity/internal/worker"
)

// Options configures an Orchestrator. Zero values are filled with the same
// defaults internal/config registers with viper.
type Options struct {
	MaxConcurrent               int
	SimilarityThreshold         float64
	ConflictConfidenceThreshold float64
	OpusBudgetPct               float64
	MaxEmergencyFixAttempts     int
	WorktreesRingSize           int
	StateDir                    string
	DecomposeEnabled            bool

	WorkerConfig worker.Config
	MergeOptions merge.Options
}

func (o *Options) applyDefaults() {
	if o.MaxConcurrent <= 0 {
		o.MaxConcurrent = 3
	}
	if o.SimilarityThreshold <= 0 {
		o.SimilarityThreshold = 0.7
	}
	if o.ConflictConfidenceThreshold <= 0 {
		o.ConflictConfidenceThreshold = 0.5
	}
	if o.OpusBudgetPct <= 0 {
		o.OpusBudgetPct = 0.10
	}
	if o.MaxEmergencyFixAttempts <= 0 {
		o.MaxEmergencyFixAttempts = 3
	}
	if o.WorktreesRingSize <= 0 {
		o.WorktreesRingSize = 20
	}
	if o.StateDir == "" {
		o.StateDir = ".undercity"
	}
}

// TaskOutcome is the Orchestrator's post-batch bookkeeping record for one
// admitted task, folding the Worker's Result together with its eventual
// Merge Pipeline outcome (nil until the task has gone through a merge
// pass).
type TaskOutcome struct {
	TaskID       string
	WorkerResult *worker.Result
	MergeOutcome *merge.Outcome
}

// BatchSummary is returned from one admission-loop iteration.
type BatchSummary struct {
	BatchID          string
	Admitted         []string
	Deferred         []string
	Outcomes         []TaskOutcome
	RateLimitPaused  bool
	EmergencyBlocked bool
	Drained          bool
	StartedAt        time.Time
	EndedAt          time.Time
}

// Recommendation is a meta-task's structured proposal for a board mutation.
// The Orchestrator is the single point of board mutation for these — no
// other component writes to the board as a side effect of a meta-task.
type Recommendation struct {
	Kind       string // add, remove, prioritize, fix_status, merge, review
	TaskID     string // nullable for "add"
	Payload    map[string]string
	Confidence float64
	Rationale  string
}
