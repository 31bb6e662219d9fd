// Package worker drives one task through its phase state machine: plan,
// execute, verify, fix, review, escalate, and a terminal outcome. One
// Worker owns one task end to end, checkpointing at every phase boundary
// so the Health Monitor and Recovery Store agree on its liveness.
package worker

import (
	"time"

	"undercity/internal/orcherrors"
)

// Phase is one state in the Worker's state machine.
type Phase string

const (
	PhasePlan     Phase = "plan"
	PhaseExecute  Phase = "execute"
	PhaseVerify   Phase = "verify"
	PhaseFix      Phase = "fix"
	PhaseReview   Phase = "review"
	PhaseEscalate Phase = "escalate"
	PhaseTerminal Phase = "terminal"
)

// Outcome is a Worker's terminal result.
type Outcome string

const (
	OutcomeComplete              Outcome = "complete"
	OutcomeFailed                Outcome = "failed"
	OutcomeDecompositionRequested Outcome = "decomposition-requested"
)

// tierOrder is the escalation ladder, cheapest first.
var tierOrder = []string{"haiku", "sonnet", "opus"}

func tierRank(tier string) int {
	for i, t := range tierOrder {
		if t == tier {
			return i
		}
	}
	return -1
}

// Config are the tunables spec.md §4.7 names, resolved from the operator's
// configuration before a Worker starts.
type Config struct {
	StartingTier           string
	MaxTier                string
	MaxAttempts            int
	MaxRetriesPerTier      int
	MaxReviewPassesPerTier int
	MaxOpusReviewPasses    int
	ReviewPassesEnabled    bool
	AutoCommit             bool
	VerifyTimeout          time.Duration

	// OpusBudgetAllowed gates a haiku/sonnet->opus escalation against the
	// Orchestrator's opus-budget accounting. Nil means unconstrained, which
	// is what direct Worker tests want; the Orchestrator always sets it.
	OpusBudgetAllowed func() bool
}

// TaskInput is everything a Worker needs to know about the task it owns.
type TaskInput struct {
	TaskID            string
	Objective         string
	TicketContext     string
	WorktreePath      string
	Branch            string
	PredictedFiles    []string
	SiblingBoundaries []string
}

// Result is a Worker's final report to the Orchestrator.
type Result struct {
	TaskID             string
	Outcome            Outcome
	TaskErr            *orcherrors.TaskError
	FilesTouched       []string
	FinalTier          string
	TotalAttempts      int
	NeedsHumanInput    bool
	ScopeCreepFlags    []string
	DecompositionPlan  string
	InputTokens        int64
	OutputTokens       int64
	DurationMs         int64
}
