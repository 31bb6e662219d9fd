package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"undercity/internal/agent"
	"undercity/internal/board"
	"undercity/internal/emergency"
	"undercity/internal/filetracker"
	"undercity/internal/health"
	"undercity/internal/merge"
	"undercity/internal/notify"
	"undercity/internal/orcherrors"
	"undercity/internal/ratelimit"
	"undercity/internal/recovery"
	"undercity/internal/telemetry"
	"undercity/internal/worker"
	"undercity/internal/worktree"
)

// Deps bundles every collaborator the Orchestrator admits tasks against.
// Each is itself a standalone, independently testable component; the
// Orchestrator's job is purely to sequence calls across them correctly.
type Deps struct {
	Board         board.Store
	Worktrees     *worktree.Manager
	Files         *filetracker.Tracker
	RateLimit     *ratelimit.Tracker
	Emergency     *emergency.Guard
	Health        *health.Monitor
	MergePipeline *merge.Pipeline
	Recovery      *recovery.Store
	Runner        agent.Runner
	Notifier      *notify.Manager
	Project       string
}

// Orchestrator is the single point of board mutation and the top-level
// driver of the admission loop (spec.md §4.10).
type Orchestrator struct {
	opts Options
	deps Deps
	log  *slog.Logger
	ev   *eventLog

	mu             sync.Mutex
	draining       bool
	drainDoneCh    chan struct{}
	opusTasksUsed  int
	totalProcessed int

	preserved *preservedRing
}

// New builds an Orchestrator. deps must be fully constructed — the
// Orchestrator never lazily initializes a collaborator.
func New(opts Options, deps Deps, logger *slog.Logger) *Orchestrator {
	opts.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		opts:      opts,
		deps:      deps,
		log:       logger,
		ev:        newEventLog(opts.StateDir),
		preserved: newPreservedRing(opts.StateDir, opts.WorktreesRingSize),
	}
}

// Drain freezes admission; in-flight workers finish their current batch.
// It takes no completion callback; the next RunOne call reports Drained
// without admitting anything.
func (o *Orchestrator) Drain() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.draining = true
}

func (o *Orchestrator) isDraining() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.draining {
		return true
	}
	if _, err := os.Stat(o.DrainFlagPath()); err == nil {
		o.draining = true
		return true
	}
	return false
}

// Preview runs the selection-and-shaping step (steps 3-4 of the admission
// loop) without admitting anything, for `grind --dry-run`.
func (o *Orchestrator) Preview(ctx context.Context) (admitted, deferred []string, err error) {
	a, d, err := o.selectAndShapeBatch(ctx)
	if err != nil {
		return nil, nil, err
	}
	for _, t := range a {
		admitted = append(admitted, t.ID)
	}
	for _, t := range d {
		deferred = append(deferred, t.ID)
	}
	return admitted, deferred, nil
}

// DrainFlagPath is the sentinel file a separate `drain` CLI invocation
// creates to ask an already-running `grind` loop to stop admitting new
// work. Grind polls for it once per admission-loop iteration.
func (o *Orchestrator) DrainFlagPath() string {
	return filepath.Join(o.opts.StateDir, "drain.flag")
}

// RunOne executes a single admission-loop iteration: steps 1-8 of
// spec.md §4.10. Callers that want to "grind" a whole session loop this
// until it reports Drained or an empty admitted/deferred set.
func (o *Orchestrator) RunOne(ctx context.Context) (*BatchSummary, error) {
	telemetry.TrackOrchestratorLoop(o.deps.Project)
	summary := &BatchSummary{BatchID: fmt.Sprintf("batch-%d", time.Now().UnixNano()), StartedAt: time.Now()}

	if o.isDraining() {
		summary.Drained = true
		summary.EndedAt = time.Now()
		return summary, nil
	}

	// 1. Sync with external usage observation, consult Rate-Limit Tracker.
	if o.deps.RateLimit != nil {
		o.deps.RateLimit.CheckAutoResume()
		if o.deps.RateLimit.IsPaused() {
			summary.RateLimitPaused = true
			summary.EndedAt = time.Now()
			return summary, nil
		}
	}

	// 2. Check Emergency Mode.
	if o.deps.Emergency != nil {
		if err := o.deps.Emergency.CheckAdmission(); err != nil {
			summary.EmergencyBlocked = true
			o.maybeSeedEmergencyFix(ctx)
			summary.EndedAt = time.Now()
			return summary, nil
		}
	}

	// 3-4. Select and shape the batch.
	admitted, deferred, err := o.selectAndShapeBatch(ctx)
	if err != nil {
		return summary, fmt.Errorf("select batch: %w", err)
	}
	for _, t := range deferred {
		summary.Deferred = append(summary.Deferred, t.ID)
		telemetry.TrackTaskDeferred(o.deps.Project)
	}
	if len(admitted) == 0 {
		summary.EndedAt = time.Now()
		return summary, nil
	}

	// Meta-tasks bypass worktree creation and the worker phase loop entirely:
	// run them in the main checkout right here, fold their recommendations
	// into the board, and drop them from the batch before any worktree work
	// starts.
	var worktreeTasks []*board.Task
	for _, t := range admitted {
		if kind, ok := isMetaTask(t); ok {
			telemetry.TrackTaskAdmitted(o.deps.Project)
			o.runMetaTask(ctx, t, kind)
			summary.Admitted = append(summary.Admitted, t.ID)
			continue
		}
		worktreeTasks = append(worktreeTasks, t)
	}
	admitted = worktreeTasks
	if len(admitted) == 0 {
		summary.EndedAt = time.Now()
		return summary, nil
	}

	// 5. Admit: worktree, active record, assignment file, spawn worker.
	type admittedTask struct {
		task      *board.Task
		wt        *worktree.Worktree
		w         *worker.Worker
		startTier string
	}
	var toRun []admittedTask
	for _, t := range admitted {
		wt, err := o.deps.Worktrees.CreateWorktree(ctx, t.ID)
		if err != nil {
			o.log.Warn("orchestrator: worktree creation failed, deferring task", "task", t.ID, "error", err)
			continue
		}
		if err := o.writeAssignment(wt, t); err != nil {
			o.log.Warn("orchestrator: assignment write failed", "task", t.ID, "error", err)
		}
		if o.deps.Recovery != nil {
			_ = o.deps.Recovery.WriteActiveTask(recovery.TaskRecord{
				TaskID:       t.ID,
				BatchID:      summary.BatchID,
				WorktreePath: wt.Path,
				Branch:       wt.Branch,
				Status:       "running",
			})
		}
		if o.deps.Files != nil {
			o.deps.Files.StartTaskTracking(t.ID, wt.Path)
		}
		_ = o.deps.Board.UpdateStatus(ctx, t.ID, board.StatusInProgress, "")

		cfg := o.tieredConfig(t)
		input := worker.TaskInput{
			TaskID:            t.ID,
			Objective:         t.Objective,
			TicketContext:     ticketText(t),
			WorktreePath:      wt.Path,
			Branch:            wt.Branch,
			PredictedFiles:    o.predictedFiles(t),
			SiblingBoundaries: o.siblingBoundaries(ctx, t),
		}
		w := worker.New(cfg, input, o.deps.Runner, o.deps.Recovery, o.log)
		if o.deps.Health != nil {
			o.deps.Health.RegisterWorker(w)
		}
		toRun = append(toRun, admittedTask{task: t, wt: wt, w: w, startTier: cfg.StartingTier})
		summary.Admitted = append(summary.Admitted, t.ID)
		telemetry.TrackTaskAdmitted(o.deps.Project)
		o.ev.record(event{Type: "task_started", TaskID: t.ID, BatchID: summary.BatchID})
	}

	if len(toRun) == 0 {
		summary.EndedAt = time.Now()
		return summary, nil
	}
	if o.deps.Recovery != nil {
		ids := make([]string, len(toRun))
		for i, at := range toRun {
			ids[i] = at.task.ID
		}
		_ = o.deps.Recovery.SaveBatchMetadata(recovery.BatchMetadata{BatchID: summary.BatchID, TaskIDs: ids})
	}

	// 6. Await the batch concurrently.
	results := make([]*worker.Result, len(toRun))
	var wg sync.WaitGroup
	for i, at := range toRun {
		wg.Add(1)
		go func(i int, at admittedTask) {
			defer wg.Done()
			res, runErr := at.w.Run(ctx)
			if res == nil {
				res = &worker.Result{TaskID: at.task.ID, Outcome: worker.OutcomeFailed,
					TaskErr: orcherrors.New(orcherrors.CategoryWorkerCrashed, runErr)}
			}
			results[i] = res
		}(i, at)
	}
	wg.Wait()

	if o.deps.Health != nil {
		for _, at := range toRun {
			o.deps.Health.UnregisterWorker(at.task.ID)
		}
	}

	// 7. Record results: files, board status, rate-limit, board completion.
	var toMerge []merge.Task
	for i, at := range toRun {
		res := results[i]
		o.ingestWorkerResult(ctx, at.task, at.wt, res, at.startTier)
		summary.Outcomes = append(summary.Outcomes, TaskOutcome{TaskID: at.task.ID, WorkerResult: res})

		o.mu.Lock()
		o.totalProcessed++
		o.mu.Unlock()

		switch res.Outcome {
		case worker.OutcomeComplete:
			toMerge = append(toMerge, merge.Task{
				TaskID:         at.task.ID,
				ParentID:       at.task.ParentID,
				WorktreePath:   at.wt.Path,
				Branch:         at.wt.Branch,
				EstimatedFiles: at.task.EstimatedFiles,
			})
		case worker.OutcomeDecompositionRequested:
			if !o.opts.DecomposeEnabled {
				o.ev.record(event{Type: "task_failed", TaskID: at.task.ID, BatchID: summary.BatchID, Category: string(orcherrors.CategoryScopeCreep)})
				res.Outcome = worker.OutcomeFailed
				res.TaskErr = orcherrors.New(orcherrors.CategoryScopeCreep, errors.New("worker requested decomposition but decompose_on is disabled for this run"))
				o.finalizeFailed(ctx, at.task, res)
				o.preservePreferred(at.task.ID, at.wt.Path, "decompose-disabled")
				continue
			}
			o.handleDecomposition(ctx, at.task, res)
			o.preservePreferred(at.task.ID, at.wt.Path, "decomposed")
		default:
			o.ev.record(event{Type: "task_failed", TaskID: at.task.ID, BatchID: summary.BatchID, Category: categoryOf(res.TaskErr)})
			o.finalizeFailed(ctx, at.task, res)
			o.preservePreferred(at.task.ID, at.wt.Path, "worker-failed")
		}
	}

	if o.deps.Files != nil && len(toRun) > 1 {
		ids := make([]string, len(toRun))
		for i, at := range toRun {
			ids[i] = at.task.ID
		}
		if conflicts := o.deps.Files.DetectConflicts(ids); len(conflicts) > 0 {
			o.log.Warn("orchestrator: batch touched overlapping files despite pre-admission shaping", "conflicts", conflicts)
		}
	}

	// 8. Enqueue into the Merge Pipeline, then cleanup worktrees.
	if len(toMerge) > 0 && o.deps.MergePipeline != nil {
		mergeOutcomes := o.deps.MergePipeline.RunBatch(ctx, toMerge)
		byID := make(map[string]merge.Outcome, len(mergeOutcomes))
		for _, mo := range mergeOutcomes {
			byID[mo.TaskID] = mo
		}
		for i := range summary.Outcomes {
			if mo, ok := byID[summary.Outcomes[i].TaskID]; ok {
				m := mo
				summary.Outcomes[i].MergeOutcome = &m
			}
		}
		for _, at := range toRun {
			mo, ok := byID[at.task.ID]
			if !ok {
				continue
			}
			o.finalizeMerged(ctx, at.task, at.wt, mo)
		}
	}

	if o.deps.Recovery != nil {
		_ = o.deps.Recovery.ClearBatch(summary.BatchID)
	}
	summary.EndedAt = time.Now()
	return summary, nil
}

// Grind runs RunOne repeatedly until the board has no more admittable work,
// the tracker pauses admission, emergency mode blocks it, or the
// Orchestrator has been asked to drain.
func (o *Orchestrator) Grind(ctx context.Context, maxBatches int) ([]*BatchSummary, error) {
	o.ev.record(event{Type: "grind_start"})
	var out []*BatchSummary
	for i := 0; maxBatches <= 0 || i < maxBatches; i++ {
		if ctx.Err() != nil {
			break
		}
		summary, err := o.RunOne(ctx)
		if err != nil {
			return out, err
		}
		out = append(out, summary)
		if summary.Drained || summary.RateLimitPaused || summary.EmergencyBlocked {
			break
		}
		if len(summary.Admitted) == 0 && len(summary.Deferred) == 0 {
			break
		}
	}
	o.ev.record(event{Type: "grind_end"})
	return out, nil
}

// opusBudgetAllows reports whether starting one more opus-tier task
// would stay within opts.OpusBudgetPct of totalProcessed.
func (o *Orchestrator) opusBudgetAllows() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.totalProcessed == 0 {
		return true
	}
	cap := int(float64(o.totalProcessed+1) * o.opts.OpusBudgetPct)
	if cap < 1 {
		cap = 1
	}
	return o.opusTasksUsed < cap
}

// tieredConfig downgrades a task's starting tier from opus to sonnet when
// the opus budget is exhausted, per spec.md §4.10's opus-budget rule.
func (o *Orchestrator) tieredConfig(t *board.Task) worker.Config {
	cfg := o.opts.WorkerConfig
	cfg.OpusBudgetAllowed = o.opusBudgetAllows
	if cfg.StartingTier == "opus" {
		if o.opusBudgetAllows() {
			o.mu.Lock()
			o.opusTasksUsed++
			o.mu.Unlock()
			telemetry.TrackOpusStart(o.deps.Project)
		} else {
			cfg.StartingTier = "sonnet"
		}
	}
	return cfg
}

func categoryOf(taskErr *orcherrors.TaskError) string {
	if taskErr == nil {
		return ""
	}
	return string(taskErr.Category)
}

func ticketText(t *board.Task) string {
	if t.Ticket == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(t.Ticket.Description)
	if t.Ticket.Rationale != "" {
		b.WriteString("\n\nRationale: " + t.Ticket.Rationale)
	}
	if len(t.Ticket.AcceptanceCriteria) > 0 {
		b.WriteString("\n\nAcceptance criteria:\n- " + strings.Join(t.Ticket.AcceptanceCriteria, "\n- "))
	}
	return b.String()
}

// writeAssignment writes .undercity-assignment.json inside the worktree so
// the worker (and the health monitor) agree on the task's identity.
func (o *Orchestrator) writeAssignment(wt *worktree.Worktree, t *board.Task) error {
	type assignment struct {
		TaskID      string `json:"taskId"`
		Objective   string `json:"objective"`
		Model       string `json:"model"`
		Branch      string `json:"branch"`
		MaxAttempts int    `json:"maxAttempts"`
	}
	a := assignment{
		TaskID:      t.ID,
		Objective:   t.Objective,
		Model:       o.opts.WorkerConfig.StartingTier,
		Branch:      wt.Branch,
		MaxAttempts: o.opts.WorkerConfig.MaxAttempts,
	}
	raw, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(wt.Path, ".undercity-assignment.json"), raw, 0o644)
}

// predictedFiles returns a task's declared estimated files if it has any
// (set at decomposition time), otherwise the File Tracker's best guess.
func (o *Orchestrator) predictedFiles(t *board.Task) []string {
	if len(t.EstimatedFiles) > 0 {
		return t.EstimatedFiles
	}
	if o.deps.Files == nil {
		return nil
	}
	preds := o.deps.Files.PredictRelevantFiles(t.Objective, 20)
	var out []string
	for _, p := range preds {
		if p.Confidence >= o.opts.ConflictConfidenceThreshold {
			out = append(out, p.Path)
		}
	}
	if len(out) == 0 {
		out = filetracker.ExtractPathsFromText(t.Objective)
	}
	return out
}

// siblingBoundaries returns the union of estimated files of every other
// subtask sharing t's parent, for scope-creep flagging during execution.
func (o *Orchestrator) siblingBoundaries(ctx context.Context, t *board.Task) []string {
	if t.ParentID == "" {
		return nil
	}
	parentID := t.ParentID
	siblings, err := o.deps.Board.List(ctx, board.Filter{ParentID: &parentID})
	if err != nil {
		return nil
	}
	var out []string
	for _, s := range siblings {
		if s.ID == t.ID {
			continue
		}
		out = append(out, s.EstimatedFiles...)
	}
	return out
}

// selectAndShapeBatch implements spec.md §4.10 steps 3-4: filter then
// greedily shape a conflict-free batch.
func (o *Orchestrator) selectAndShapeBatch(ctx context.Context) (admitted, deferred []*board.Task, err error) {
	pending, err := o.deps.Board.ListPending(ctx)
	if err != nil {
		return nil, nil, err
	}

	var candidates []*board.Task
	var inProgress []*board.Task
	for _, t := range pending {
		if t.IsDecomposed {
			continue
		}
		switch t.Status {
		case board.StatusPending:
			candidates = append(candidates, t)
		case board.StatusInProgress:
			inProgress = append(inProgress, t)
		}
	}

	sortTasksByPriority(candidates)

	var runnable []*board.Task
	for _, t := range candidates {
		if len(board.FindSimilarInProgress(inProgress, t.Objective, o.opts.SimilarityThreshold)) > 0 {
			deferred = append(deferred, t)
			continue
		}
		runnable = append(runnable, t)
	}

	claimed := make(map[string]string)
	for _, t := range runnable {
		if len(admitted) >= o.opts.MaxConcurrent {
			deferred = append(deferred, t)
			continue
		}
		files := o.predictedFiles(t)
		collision := ""
		for _, f := range files {
			f = filepath.Clean(f)
			if owner, ok := claimed[f]; ok {
				collision = owner
				break
			}
		}
		if collision != "" {
			deferred = append(deferred, t)
			continue
		}
		for _, f := range files {
			claimed[filepath.Clean(f)] = t.ID
		}
		admitted = append(admitted, t)
	}
	return admitted, deferred, nil
}

// ingestWorkerResult folds a finished worker's file/rate-limit/telemetry
// bookkeeping into the Orchestrator. startTier is the tier the worker
// started at (after tieredConfig's downgrade, if any): if the worker
// escalated past it all the way to opus, that opus start was never counted
// by tieredConfig, so it's counted here instead.
func (o *Orchestrator) ingestWorkerResult(ctx context.Context, t *board.Task, wt *worktree.Worktree, res *worker.Result, startTier string) {
	if o.deps.Files != nil {
		for _, f := range res.FilesTouched {
			o.deps.Files.RecordAccess(t.ID, f, filetracker.AccessEdit)
		}
		o.deps.Files.StopTaskTracking(t.ID, t.Objective)
	}
	if o.deps.RateLimit != nil {
		_ = o.deps.RateLimit.RecordTask(t.ID, res.FinalTier, res.InputTokens, res.OutputTokens, res.DurationMs)
	}
	if res.FinalTier == "opus" && startTier != "opus" {
		o.mu.Lock()
		o.opusTasksUsed++
		o.mu.Unlock()
		telemetry.TrackOpusStart(o.deps.Project)
	}
	telemetry.TrackTaskCompleted(o.deps.Project, string(res.Outcome))
	if len(res.ScopeCreepFlags) > 0 {
		o.log.Warn("orchestrator: scope creep flagged during execution", "task", t.ID, "files", res.ScopeCreepFlags)
	}
}

func (o *Orchestrator) handleDecomposition(ctx context.Context, t *board.Task, res *worker.Result) {
	subtasks, err := parseDecompositionPlan(t.ID, res.DecompositionPlan)
	if err != nil || len(subtasks) == 0 {
		o.log.Warn("orchestrator: could not parse decomposition plan, marking blocked", "task", t.ID, "error", err)
		_ = o.deps.Board.UpdateStatus(ctx, t.ID, board.StatusBlocked, "unparseable decomposition plan")
		return
	}
	if err := o.deps.Board.Decompose(ctx, t.ID, subtasks); err != nil {
		o.log.Warn("orchestrator: decompose failed", "task", t.ID, "error", err)
		_ = o.deps.Board.UpdateStatus(ctx, t.ID, board.StatusBlocked, err.Error())
		return
	}
	o.ev.record(event{Type: "task_queued", TaskID: t.ID, Fields: map[string]string{"subtasks": fmt.Sprint(len(subtasks))}})
}

func (o *Orchestrator) finalizeFailed(ctx context.Context, t *board.Task, res *worker.Result) {
	errMsg := ""
	category := ""
	if res.TaskErr != nil {
		errMsg = res.TaskErr.Error()
		category = string(res.TaskErr.Category)
	}
	_ = o.deps.Board.UpdateStatus(ctx, t.ID, board.StatusFailed, errMsg)
	if o.deps.Recovery != nil {
		_ = o.deps.Recovery.MarkTaskCompleted(t.ID, "failed", category)
	}
	telemetry.TrackError(o.deps.Project, category)
	if res.NeedsHumanInput && o.deps.Notifier != nil {
		_, _ = o.deps.Notifier.Notify(ctx, notify.EventTaskFailed,
			fmt.Sprintf("task %s needs human input: %s", t.ID, errMsg), "")
	}
}

func (o *Orchestrator) finalizeMerged(ctx context.Context, t *board.Task, wt *worktree.Worktree, mo merge.Outcome) {
	if mo.Success {
		_ = o.deps.Board.UpdateStatus(ctx, t.ID, board.StatusComplete, "")
		if o.deps.Recovery != nil {
			_ = o.deps.Recovery.MarkTaskCompleted(t.ID, "complete", "")
		}
		if t.ParentID != "" {
			_ = o.deps.Board.CompleteParentIfAllSubtasksDone(ctx, t.ParentID)
		}
		telemetry.TrackMergeSucceeded(o.deps.Project)
		o.ev.record(event{Type: "task_complete", TaskID: t.ID})
		_ = o.deps.Worktrees.RemoveWorktree(ctx, t.ID, false)
		return
	}

	errMsg := ""
	category := ""
	if mo.TaskErr != nil {
		errMsg = mo.TaskErr.Error()
		category = string(mo.TaskErr.Category)
	}
	_ = o.deps.Board.UpdateStatus(ctx, t.ID, board.StatusFailed, errMsg)
	if o.deps.Recovery != nil {
		_ = o.deps.Recovery.MarkTaskCompleted(t.ID, "failed", category)
	}
	telemetry.TrackMergeFailed(o.deps.Project, category)
	o.ev.record(event{Type: "task_failed", TaskID: t.ID, Category: category})
	reason := "failed-merge"
	if mo.SiblingConflict {
		reason = "scope-creep"
	}
	o.preservePreferred(t.ID, wt.Path, reason)
}

// preservePreferred keeps a worktree on disk for investigation rather than
// deleting it, recording it in the preserved-failure ring buffer.
func (o *Orchestrator) preservePreferred(taskID, path, reason string) {
	o.preserved.add(preservedEntry{TaskID: taskID, Path: path, Reason: reason, At: time.Now()})
}

func (o *Orchestrator) maybeSeedEmergencyFix(ctx context.Context) {
	if o.deps.Emergency == nil {
		return
	}
	if o.deps.Emergency.FixAttemptsExhausted() {
		o.log.Warn("orchestrator: emergency fix attempts exhausted, requires explicit human clear")
		return
	}
	status := o.deps.Emergency.Status()
	fixTask := &board.Task{
		ID:        fmt.Sprintf("emergency-fix-%d", time.Now().UnixNano()),
		Objective: fmt.Sprintf("Restore mainline health: %s", status.Reason),
		Status:    board.StatusPending,
		Priority:  1 << 30,
	}
	if err := o.deps.Board.Add(ctx, fixTask); err != nil {
		o.log.Warn("orchestrator: failed to seed emergency fix task", "error", err)
		return
	}
	_ = o.deps.Emergency.RecordFixAttempt()
	telemetry.TrackEmergencyActivation(o.deps.Project)
	o.ev.record(event{Type: "task_queued", TaskID: fixTask.ID, Fields: map[string]string{"reason": "emergency-fix"}})
}

// sortTasksByPriority orders candidates highest-priority-first (oldest first
// on a tie) so selectAndShapeBatch's MaxConcurrent cutoff and file-collision
// deferral favor the most important pending work, e.g. an emergency fix task.
func sortTasksByPriority(tasks []*board.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].Priority != tasks[j].Priority {
			return tasks[i].Priority > tasks[j].Priority
		}
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
}
