package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"undercity/internal/agent"
	"undercity/internal/agent/prompts"
	"undercity/internal/orcherrors"
	"undercity/internal/recovery"
)

// Worker runs one task through the plan→execute→verify→fix→review→escalate
// state machine to a terminal outcome, checkpointing at every phase
// boundary via the Recovery Store.
type Worker struct {
	cfg    Config
	task   TaskInput
	runner agent.Runner
	store  *recovery.Store
	logger *slog.Logger

	mu               sync.Mutex
	tier             string
	phase            Phase
	attemptsAtTier   int
	totalAttempts    int
	reviewPassesDone int
	lastError        string
	lastVerify       *VerifyReport
	filesTouched     map[string]bool
	scopeCreepFlags  map[string]bool
	lastPlan         string
	lastFailureSummary string

	inputTokens  int64
	outputTokens int64
	durationMs   int64

	resumeHints  chan string
	terminateReq chan struct{}
	terminated   bool
}

// recordUsage folds one agent invocation's token/latency accounting into
// the task's running totals, for the Orchestrator to hand to the
// Rate-Limit Tracker once the worker reaches a terminal result.
func (w *Worker) recordUsage(r *agent.Result) {
	if r == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.inputTokens += r.InputTokens
	w.outputTokens += r.OutputTokens
	w.durationMs += r.DurationMs
}

// New builds a Worker for task, starting at cfg.StartingTier.
func New(cfg Config, task TaskInput, runner agent.Runner, store *recovery.Store, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		cfg:             cfg,
		task:            task,
		runner:          runner,
		store:           store,
		logger:          logger,
		tier:            cfg.StartingTier,
		phase:           PhasePlan,
		filesTouched:    make(map[string]bool),
		scopeCreepFlags: make(map[string]bool),
		resumeHints:     make(chan string, 4),
		terminateReq:    make(chan struct{}),
	}
}

// TaskID implements health.WorkerHandle.
func (w *Worker) TaskID() string { return w.task.TaskID }

// SendResumeHint implements health.WorkerHandle: queues a cooperative nudge
// the next phase transition will fold into its prompt.
func (w *Worker) SendResumeHint(hint string) error {
	select {
	case w.resumeHints <- hint:
	default:
		// Already has a pending hint; the worker hasn't consumed it yet.
	}
	return nil
}

// Terminate implements health.WorkerHandle: requests cooperative stop and
// waits up to timeout before giving up.
func (w *Worker) Terminate(ctx context.Context, timeout time.Duration) error {
	w.mu.Lock()
	if w.terminated {
		w.mu.Unlock()
		return nil
	}
	w.terminated = true
	close(w.terminateReq)
	w.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(timeout):
		return fmt.Errorf("worker %s did not stop within %s", w.task.TaskID, timeout)
	}
}

func (w *Worker) isTerminating() bool {
	select {
	case <-w.terminateReq:
		return true
	default:
		return false
	}
}

// Run drives the state machine to completion. It returns a Result even on
// failure; the error return is non-nil only on context cancellation. A
// cooperative termination returns a failed Result with a nil error.
func (w *Worker) Run(ctx context.Context) (*Result, error) {
	for {
		if w.isTerminating() {
			return w.terminalResult(orcherrors.New(orcherrors.CategoryWorkerCrashed, orcherrors.ErrStuckWorker)), nil
		}
		select {
		case <-ctx.Done():
			return w.terminalResult(orcherrors.New(orcherrors.CategoryWorkerCrashed, ctx.Err())), ctx.Err()
		default:
		}

		w.checkpoint()

		var (
			result *Result
			done   bool
			err    error
		)
		switch w.phase {
		case PhasePlan:
			result, done, err = w.runPlan(ctx)
		case PhaseExecute:
			result, done, err = w.runExecute(ctx)
		case PhaseVerify:
			result, done, err = w.runVerify(ctx)
		case PhaseFix:
			result, done, err = w.runFix(ctx)
		case PhaseReview:
			result, done, err = w.runReview(ctx)
		case PhaseEscalate:
			result, done, err = w.runEscalate(ctx)
		default:
			return w.terminalResult(orcherrors.New(orcherrors.CategoryInternal, fmt.Errorf("unknown phase %q", w.phase))), nil
		}
		if err != nil {
			return result, err
		}
		if done {
			return result, nil
		}
	}
}

func (w *Worker) checkpoint() {
	w.mu.Lock()
	cp := recovery.Checkpoint{
		TaskID:       w.task.TaskID,
		Phase:        string(w.phase),
		Tier:         w.tier,
		Attempts:     w.totalAttempts,
		FilesTouched: w.sortedFiles(),
		LastError:    w.lastError,
	}
	w.mu.Unlock()
	if w.store != nil {
		_ = w.store.WriteCheckpoint(cp)
	}
}

func (w *Worker) sortedFiles() []string {
	out := make([]string, 0, len(w.filesTouched))
	for f := range w.filesTouched {
		out = append(out, f)
	}
	return out
}

func (w *Worker) drainResumeHint() string {
	select {
	case h := <-w.resumeHints:
		return h
	default:
		return ""
	}
}

func (w *Worker) runPlan(ctx context.Context) (*Result, bool, error) {
	vars := map[string]string{
		"objective":      w.task.Objective,
		"ticket_context": truncateForTier(w.task.TicketContext, w.tier),
		"briefing":       truncateForTier(strings.Join(w.task.PredictedFiles, "\n"), w.tier),
	}
	prompt, err := prompts.GetPrompt(prompts.Plan, vars)
	if err != nil {
		return w.terminalResult(orcherrors.New(orcherrors.CategoryInternal, err)), true, nil
	}

	res, err := w.runner.RunAgent(ctx, prompt, w.tier, w.task.WorktreePath)
	if err != nil {
		return w.terminalResult(orcherrors.New(orcherrors.CategoryPlanning, err)), true, nil
	}
	w.recordUsage(res)

	switch res.Signal {
	case agent.SignalNeedsDecomposition:
		w.mu.Lock()
		in, out, dur := w.inputTokens, w.outputTokens, w.durationMs
		w.mu.Unlock()
		return &Result{
			TaskID:            w.task.TaskID,
			Outcome:           OutcomeDecompositionRequested,
			TaskErr:           orcherrors.New(orcherrors.CategoryDecompositionRequested, orcherrors.ErrNeedsDecomposition),
			DecompositionPlan: res.Output,
			FinalTier:         w.tier,
			InputTokens:       in,
			OutputTokens:      out,
			DurationMs:        dur,
		}, true, nil
	case agent.SignalAlreadyComplete:
		return &Result{
			TaskID:    w.task.TaskID,
			Outcome:   OutcomeComplete,
			FinalTier: w.tier,
		}, true, nil
	case agent.SignalPlanRejected:
		return w.terminalResult(orcherrors.New(orcherrors.CategoryPlanning, orcherrors.ErrPlanRejected)), true, nil
	}

	w.mu.Lock()
	w.lastPlan = res.Output
	w.phase = PhaseExecute
	w.mu.Unlock()
	return nil, false, nil
}

func (w *Worker) runExecute(ctx context.Context) (*Result, bool, error) {
	briefing, siblingBlock := buildBriefing(w.task.PredictedFiles, w.task.SiblingBoundaries, w.tier)

	vars := map[string]string{
		"tier":               w.tier,
		"objective":          w.task.Objective,
		"plan":               truncateForTier(w.lastPlan, w.tier),
		"ticket_context":     truncateForTier(w.task.TicketContext, w.tier),
		"briefing":           briefing,
		"sibling_boundaries": siblingBlock,
	}
	if hint := w.drainResumeHint(); hint != "" {
		vars["plan"] = truncateForTier(w.lastPlan+"\n\nOperator note: "+hint, w.tier)
	}

	prompt, err := prompts.GetPrompt(prompts.Execute, vars)
	if err != nil {
		return w.terminalResult(orcherrors.New(orcherrors.CategoryInternal, err)), true, nil
	}

	w.mu.Lock()
	w.totalAttempts++
	attempts := w.totalAttempts
	w.mu.Unlock()

	if w.cfg.MaxAttempts > 0 && attempts > w.cfg.MaxAttempts {
		return w.terminalResult(orcherrors.New(orcherrors.CategoryTierCapExhausted, orcherrors.ErrMaxAttemptsExhausted)), true, nil
	}

	res, err := w.runner.RunAgent(ctx, prompt, w.tier, w.task.WorktreePath)
	if err != nil {
		w.mu.Lock()
		w.lastError = err.Error()
		w.mu.Unlock()
		return w.transitionOnFailure(orcherrors.New(orcherrors.CategoryInternal, err))
	}
	w.recordUsage(res)

	touched, gitErr := gitTouchedFiles(w.task.WorktreePath)
	if gitErr == nil {
		w.mu.Lock()
		for _, f := range touched {
			w.filesTouched[f] = true
		}
		w.mu.Unlock()
		w.flagScopeCreep(touched)
	}

	_ = res // execute's prose output isn't itself consumed further; verify phase judges the result
	w.mu.Lock()
	w.phase = PhaseVerify
	w.mu.Unlock()
	return nil, false, nil
}

func (w *Worker) flagScopeCreep(touched []string) {
	if len(w.task.SiblingBoundaries) == 0 {
		return
	}
	boundary := make(map[string]bool, len(w.task.SiblingBoundaries))
	for _, b := range w.task.SiblingBoundaries {
		boundary[b] = true
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, f := range touched {
		if boundary[f] {
			w.scopeCreepFlags[f] = true
		}
	}
}

func (w *Worker) runVerify(ctx context.Context) (*Result, bool, error) {
	timeout := w.cfg.VerifyTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	report := DetectAndRun(ctx, w.task.WorktreePath, timeout)

	w.mu.Lock()
	w.lastVerify = report
	w.mu.Unlock()

	if report.Passed() {
		w.mu.Lock()
		if w.cfg.ReviewPassesEnabled {
			w.phase = PhaseReview
		} else {
			w.phase = PhaseTerminal
		}
		w.mu.Unlock()
		if !w.cfg.ReviewPassesEnabled {
			return w.completeResult(), true, nil
		}
		return nil, false, nil
	}

	fail := report.FirstFailure()
	w.mu.Lock()
	w.lastError = summarizeFailures(report)
	w.mu.Unlock()

	return w.transitionOnFailure(orcherrors.NewVerify(fail.Kind, fmt.Errorf("%s", fail.Output)))
}

// transitionOnFailure routes a verify (or agent) failure into fix if the
// tier's retry budget allows, otherwise into escalate.
func (w *Worker) transitionOnFailure(taskErr *orcherrors.TaskError) (*Result, bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.attemptsAtTier < w.cfg.MaxRetriesPerTier {
		w.phase = PhaseFix
		return nil, false, nil
	}
	w.lastFailureSummary = taskErr.Error()
	w.phase = PhaseEscalate
	return nil, false, nil
}

func (w *Worker) runFix(ctx context.Context) (*Result, bool, error) {
	w.mu.Lock()
	w.attemptsAtTier++
	attempt := w.attemptsAtTier
	verifyOutput := w.lastError
	w.mu.Unlock()

	vars := map[string]string{
		"tier":          w.tier,
		"objective":     w.task.Objective,
		"verify_output": truncateForTier(verifyOutput, w.tier),
		"attempt":       strconv.Itoa(attempt),
		"max_attempts":  strconv.Itoa(w.cfg.MaxRetriesPerTier),
	}
	prompt, err := prompts.GetPrompt(prompts.Fix, vars)
	if err != nil {
		return w.terminalResult(orcherrors.New(orcherrors.CategoryInternal, err)), true, nil
	}

	fixRes, err := w.runner.RunAgent(ctx, prompt, w.tier, w.task.WorktreePath)
	if err != nil {
		w.mu.Lock()
		w.lastError = err.Error()
		w.mu.Unlock()
	}
	w.recordUsage(fixRes)

	if touched, gitErr := gitTouchedFiles(w.task.WorktreePath); gitErr == nil {
		w.mu.Lock()
		for _, f := range touched {
			w.filesTouched[f] = true
		}
		w.mu.Unlock()
		w.flagScopeCreep(touched)
	}

	w.mu.Lock()
	w.phase = PhaseVerify
	w.mu.Unlock()
	return nil, false, nil
}

func (w *Worker) runReview(ctx context.Context) (*Result, bool, error) {
	w.mu.Lock()
	w.reviewPassesDone++
	pass := w.reviewPassesDone
	passCap := w.cfg.MaxReviewPassesPerTier
	if w.tier == "opus" {
		passCap = w.cfg.MaxOpusReviewPasses
	}
	w.mu.Unlock()

	if pass > passCap {
		return w.completeResult(), true, nil
	}

	diff, _ := gitDiff(w.task.WorktreePath)
	vars := map[string]string{
		"tier":       w.tier,
		"objective":  w.task.Objective,
		"pass":       strconv.Itoa(pass),
		"max_passes": strconv.Itoa(passCap),
		"diff":       truncateForTier(diff, w.tier),
	}
	prompt, err := prompts.GetPrompt(prompts.Review, vars)
	if err != nil {
		return w.terminalResult(orcherrors.New(orcherrors.CategoryInternal, err)), true, nil
	}

	res, err := w.runner.RunAgent(ctx, prompt, w.tier, w.task.WorktreePath)
	if err != nil {
		return w.completeResult(), true, nil
	}
	w.recordUsage(res)

	if strings.Contains(strings.ToUpper(res.Output), "APPROVED") {
		return w.completeResult(), true, nil
	}

	w.mu.Lock()
	w.lastError = res.Output
	w.phase = PhaseFix
	w.mu.Unlock()
	return nil, false, nil
}

func (w *Worker) runEscalate(ctx context.Context) (*Result, bool, error) {
	w.mu.Lock()
	currentRank := tierRank(w.tier)
	capRank := tierRank(w.cfg.MaxTier)
	w.mu.Unlock()

	if currentRank < 0 || capRank < 0 || currentRank >= capRank {
		return w.terminalResult(orcherrors.New(orcherrors.CategoryTierCapExhausted, orcherrors.ErrTierCapExhausted)), true, nil
	}
	if w.cfg.MaxAttempts > 0 {
		w.mu.Lock()
		exhausted := w.totalAttempts >= w.cfg.MaxAttempts
		w.mu.Unlock()
		if exhausted {
			return w.terminalResult(orcherrors.New(orcherrors.CategoryTierCapExhausted, orcherrors.ErrMaxAttemptsExhausted)), true, nil
		}
	}

	nextTier := tierOrder[currentRank+1]
	if nextTier == "opus" && w.cfg.OpusBudgetAllowed != nil && !w.cfg.OpusBudgetAllowed() {
		return w.terminalResult(orcherrors.New(orcherrors.CategoryBudgetExceeded, orcherrors.ErrBudgetExceeded)), true, nil
	}

	w.mu.Lock()
	w.tier = nextTier
	w.attemptsAtTier = 0
	w.reviewPassesDone = 0
	failureSummary := w.lastFailureSummary
	w.mu.Unlock()

	briefing, _ := buildBriefing(w.task.PredictedFiles, nil, w.tier)
	vars := map[string]string{
		"tier":            w.tier,
		"objective":       w.task.Objective,
		"failure_summary": truncateForTier(failureSummary, w.tier),
		"briefing":        briefing,
	}
	prompt, err := prompts.GetPrompt(prompts.Escalate, vars)
	if err != nil {
		return w.terminalResult(orcherrors.New(orcherrors.CategoryInternal, err)), true, nil
	}

	res, err := w.runner.RunAgent(ctx, prompt, w.tier, w.task.WorktreePath)
	if err != nil {
		return w.terminalResult(orcherrors.New(orcherrors.CategoryPlanning, err)), true, nil
	}
	w.recordUsage(res)

	w.mu.Lock()
	w.lastPlan = res.Output
	w.phase = PhaseExecute
	w.mu.Unlock()
	return nil, false, nil
}

func (w *Worker) completeResult() *Result {
	if w.cfg.AutoCommit {
		if err := gitAutoCommit(w.task.WorktreePath, w.task.Objective); err != nil {
			w.logger.Warn("auto-commit failed", "task", w.task.TaskID, "error", err)
		}
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return &Result{
		TaskID:          w.task.TaskID,
		Outcome:         OutcomeComplete,
		FilesTouched:    w.sortedFiles(),
		FinalTier:       w.tier,
		TotalAttempts:   w.totalAttempts,
		ScopeCreepFlags: w.sortedScopeCreepFlags(),
		InputTokens:     w.inputTokens,
		OutputTokens:    w.outputTokens,
		DurationMs:      w.durationMs,
	}
}

func (w *Worker) terminalResult(taskErr *orcherrors.TaskError) *Result {
	w.mu.Lock()
	defer w.mu.Unlock()
	needsHuman := taskErr.Category == orcherrors.CategoryTierCapExhausted
	return &Result{
		TaskID:          w.task.TaskID,
		Outcome:         OutcomeFailed,
		TaskErr:         taskErr,
		FilesTouched:    w.sortedFiles(),
		FinalTier:       w.tier,
		TotalAttempts:   w.totalAttempts,
		NeedsHumanInput: needsHuman,
		ScopeCreepFlags: w.sortedScopeCreepFlags(),
		InputTokens:     w.inputTokens,
		OutputTokens:    w.outputTokens,
		DurationMs:      w.durationMs,
	}
}

func (w *Worker) sortedScopeCreepFlags() []string {
	out := make([]string, 0, len(w.scopeCreepFlags))
	for f := range w.scopeCreepFlags {
		out = append(out, f)
	}
	return out
}

func gitTouchedFiles(dir string) ([]string, error) {
	out, err := exec.Command("git", "-C", dir, "status", "--porcelain").CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("git status: %w: %s", err, strings.TrimSpace(string(out)))
	}
	var files []string
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		files = append(files, fields[len(fields)-1])
	}
	return files, nil
}

func gitDiff(dir string) (string, error) {
	out, err := exec.Command("git", "-C", dir, "diff", "HEAD").CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git diff: %w", err)
	}
	return string(out), nil
}

func gitAutoCommit(dir, objective string) error {
	add := exec.Command("git", "-C", dir, "add", "-A")
	if out, err := add.CombinedOutput(); err != nil {
		return fmt.Errorf("git add: %w: %s", err, strings.TrimSpace(string(out)))
	}
	msg := objective
	if len(msg) > 72 {
		msg = msg[:72]
	}
	commit := exec.Command("git", "-C", dir, "commit", "-m", msg, "--allow-empty")
	if out, err := commit.CombinedOutput(); err != nil {
		return fmt.Errorf("git commit: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}
