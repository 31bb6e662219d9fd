// Package board implements the durable task board: the ordered set of
// engineering tasks the Orchestrator admits workers against.
package board

import "time"

// Status is the lifecycle state of a Task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusComplete   Status = "complete"
	StatusFailed     Status = "failed"
	StatusBlocked    Status = "blocked"
	StatusDecomposed Status = "decomposed"
)

// Ticket is the structured description attached to a Task.
type Ticket struct {
	Description        string   `json:"description"`
	AcceptanceCriteria []string `json:"acceptance_criteria"`
	TestPlan           string   `json:"test_plan"`
	Rationale          string   `json:"rationale"`
}

// HandoffContext carries context forward across retries and escalations.
type HandoffContext struct {
	PriorAttemptSummary string `json:"prior_attempt_summary,omitempty"`
	HumanGuidance       string `json:"human_guidance,omitempty"`
	Retry               bool   `json:"retry"`
}

// LastAttempt records the outcome of the most recent worker run on a Task.
type LastAttempt struct {
	Model        string `json:"model,omitempty"`
	Error        string `json:"error,omitempty"`
	AttemptCount int    `json:"attempt_count"`
}

// Task is a unit of engineering work on the board.
type Task struct {
	ID              string          `json:"id"`
	Objective       string          `json:"objective"`
	Status          Status          `json:"status"`
	Priority        int             `json:"priority"`
	Tags            []string        `json:"tags,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	StartedAt       *time.Time      `json:"started_at,omitempty"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
	ParentID        string          `json:"parent_id,omitempty"`
	SubtaskIDs      []string        `json:"subtask_ids,omitempty"`
	IsDecomposed    bool            `json:"is_decomposed"`
	EstimatedFiles  []string        `json:"estimated_files,omitempty"`
	Ticket          *Ticket         `json:"ticket,omitempty"`
	HandoffContext  *HandoffContext `json:"handoff_context,omitempty"`
	LastAttempt     LastAttempt     `json:"last_attempt"`
	NeedsHumanInput bool            `json:"needs_human_input"`
}

// Filter narrows List results. Zero-value Status/Tag are ignored; ParentID
// is only applied when non-nil (distinguishing "no filter" from "root tasks").
type Filter struct {
	Status   Status
	Tag      string
	ParentID *string
}
