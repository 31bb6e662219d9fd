// Package agent defines the opaque language-model transport the Worker
// state machine drives: a single capability, RunAgent, that takes a prompt,
// a model tier, and a working directory, and returns what the agent did.
// The concrete transport (which CLI or API actually backs a tier) is
// configured out-of-band via UNDERCITY_AGENT_CREDENTIALS and is not this
// core's concern.
package agent

import "context"

// Signal is a structured out-of-band response a phase prompt may request,
// distinct from ordinary prose output.
type Signal string

const (
	SignalNone              Signal = ""
	SignalNeedsDecomposition Signal = "NEEDS_DECOMPOSITION"
	SignalAlreadyComplete   Signal = "already_complete"
	SignalPlanRejected      Signal = "PLAN_REJECTED"
)

// Result is everything the Worker needs from one agent invocation: the raw
// output, any structured signal it carries, and the token/latency
// accounting the Rate-Limit Tracker consumes.
type Result struct {
	Output       string
	Signal       Signal
	InputTokens  int64
	OutputTokens int64
	DurationMs   int64
}

// Runner is the capability the Worker state machine depends on. A prompt
// plus the tier to run it at plus the worktree it should operate in is
// enough to drive a phase transition.
type Runner interface {
	RunAgent(ctx context.Context, prompt, model, cwd string) (*Result, error)
}
