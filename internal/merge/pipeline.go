// Package merge lands a batch of finished workers' branches onto mainline:
// serial, per-batch, parent-group ordered, with bounded automated retries
// for both transient non-fast-forward races and verify failures surfaced
// by a rebase.
package merge

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"time"

	"undercity/internal/agent"
	"undercity/internal/agent/prompts"
	"undercity/internal/git"
	"undercity/internal/orcherrors"
	"undercity/internal/worker"
)

// Task is one worker's finished branch, ready for the pipeline to land.
type Task struct {
	TaskID         string
	ParentID       string
	WorktreePath   string
	Branch         string
	EstimatedFiles []string
}

// Outcome is the pipeline's final verdict for one Task.
type Outcome struct {
	TaskID          string
	Success         bool
	TaskErr         *orcherrors.TaskError
	SiblingConflict bool
	Pass            int
}

// Options configures a Pipeline.
type Options struct {
	MainRepoDir        string
	MainlineBranch     string
	Remote             string
	VerifyTimeout      time.Duration
	MergeVerifyFixCap  int // per-pass verify-fix attempts before giving up on a task this pass
	MaxMergeRetryCount int // non-fast-forward re-fetch/re-rebase retries
	PushOnSuccess      bool
}

func (o *Options) applyDefaults() {
	if o.MainlineBranch == "" {
		o.MainlineBranch = "main"
	}
	if o.Remote == "" {
		o.Remote = "origin"
	}
	if o.VerifyTimeout <= 0 {
		o.VerifyTimeout = 5 * time.Minute
	}
	if o.MergeVerifyFixCap <= 0 {
		o.MergeVerifyFixCap = 2
	}
	if o.MaxMergeRetryCount <= 0 {
		o.MaxMergeRetryCount = 3
	}
}

// Pipeline lands a batch of Tasks onto mainline.
type Pipeline struct {
	git    git.Client
	runner agent.Runner
	opts   Options
	logger *slog.Logger
}

// New builds a Pipeline. runner backs attemptMergeVerificationFix; pass a
// agent.MockRunner in tests or when no fix-on-verify-failure agent is
// configured.
func New(gitClient git.Client, runner agent.Runner, opts Options, logger *slog.Logger) *Pipeline {
	opts.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{git: gitClient, runner: runner, opts: opts, logger: logger}
}

// maxMergeFixAttempts is the ceiling on a task's total merge-time agent
// invocations across all passes: the product of MaxMergeRetryCount and
// MergeVerifyFixCap, so it grows with either knob.
func (p *Pipeline) maxMergeFixAttempts() int {
	return p.opts.MaxMergeRetryCount * p.opts.MergeVerifyFixCap
}

// RunBatch lands every Task, orphans first, then each parent's sibling
// group together. Multiple passes are attempted: if any merge succeeded in
// a pass, remaining rebase-conflict and fast-forward failures are retried in
// the next pass, since the conflict landscape changed; other failures are
// not retried, and a pass that makes no progress ends the loop.
func (p *Pipeline) RunBatch(ctx context.Context, tasks []Task) []Outcome {
	ordered := orderByParentGroup(tasks)
	siblingFiles := buildSiblingBoundaries(tasks)

	remaining := make([]Task, len(ordered))
	copy(remaining, ordered)

	outcomes := make(map[string]Outcome, len(tasks))
	fixAttempts := make(map[string]int, len(tasks))

	pass := 1
	for len(remaining) > 0 {
		var next []Task
		progressed := false

		for _, t := range remaining {
			res := p.mergeOne(ctx, t, siblingFiles[t.TaskID], fixAttempts)
			res.Pass = pass
			outcomes[t.TaskID] = res
			if res.Success {
				progressed = true
				continue
			}
			if retryableNextPass(res.TaskErr) {
				next = append(next, t)
			}
		}

		if !progressed {
			// The conflict landscape won't change without another task
			// landing first; stop retrying and report each remaining
			// task's most recent failure rather than masking it.
			break
		}

		remaining = next
		pass++
	}

	out := make([]Outcome, 0, len(tasks))
	for _, t := range ordered {
		if o, ok := outcomes[t.TaskID]; ok {
			out = append(out, o)
		}
	}
	return out
}

func (p *Pipeline) mergeOne(ctx context.Context, t Task, siblingBoundary []string, fixAttempts map[string]int) Outcome {
	if strings.TrimSpace(t.WorktreePath) == "" || strings.TrimSpace(t.Branch) == "" {
		return fail(t.TaskID, orcherrors.CategoryWorktreeCreateFailed, fmt.Errorf("empty worktree path or branch"))
	}

	if err := p.git.DiscardTrackedChanges(t.WorktreePath); err != nil {
		p.logger.Warn("merge: discard tracked changes failed", "task", t.TaskID, "error", err)
	}

	if err := p.git.Fetch(ctx, t.WorktreePath, p.opts.Remote, p.opts.MainlineBranch); err != nil {
		return fail(t.TaskID, orcherrors.CategoryRebaseConflict, fmt.Errorf("fetch mainline: %w", err))
	}

	if err := p.git.Rebase(t.WorktreePath, "FETCH_HEAD"); err != nil {
		_ = p.git.AbortRebase(t.WorktreePath)
		return fail(t.TaskID, orcherrors.CategoryRebaseConflict, orcherrors.ErrRebaseConflict)
	}

	report := worker.DetectAndRun(ctx, t.WorktreePath, p.opts.VerifyTimeout)
	for !report.Passed() {
		if fixAttempts[t.TaskID] >= p.opts.MergeVerifyFixCap || fixAttempts[t.TaskID] >= p.maxMergeFixAttempts() {
			failure := report.FirstFailure()
			return failVerify(t.TaskID, failure.Kind, fmt.Errorf("%s", failure.Output))
		}
		fixAttempts[t.TaskID]++
		if err := p.attemptMergeVerificationFix(ctx, t, report); err != nil {
			p.logger.Warn("merge: verification fix attempt errored", "task", t.TaskID, "error", err)
		}
		report = worker.DetectAndRun(ctx, t.WorktreePath, p.opts.VerifyTimeout)
	}

	if len(siblingBoundary) > 0 {
		touched, err := diffNames(t.WorktreePath, "FETCH_HEAD")
		if err == nil {
			if conflict := firstOverlap(touched, siblingBoundary); conflict != "" {
				return Outcome{
					TaskID:          t.TaskID,
					Success:         false,
					SiblingConflict: true,
					TaskErr:         orcherrors.New(orcherrors.CategoryScopeCreep, fmt.Errorf("branch touches sibling-reserved file %q", conflict)),
				}
			}
		}
	}

	if err := p.fastForwardWithRetry(ctx, t); err != nil {
		return fail(t.TaskID, orcherrors.CategoryFFFailed, err)
	}

	if p.opts.PushOnSuccess {
		if err := p.git.Push(p.opts.MainRepoDir, p.opts.MainlineBranch); err != nil {
			p.logger.Warn("merge: push to origin failed", "task", t.TaskID, "error", err)
		}
	}

	return Outcome{TaskID: t.TaskID, Success: true}
}

// fastForwardWithRetry fast-forwards the task branch into mainline in the
// main repo; on a non-fast-forward race (another task merged meanwhile) it
// re-fetches and re-rebases up to MaxMergeRetryCount times.
func (p *Pipeline) fastForwardWithRetry(ctx context.Context, t Task) error {
	var lastErr error
	for attempt := 0; attempt < p.opts.MaxMergeRetryCount; attempt++ {
		err := p.git.FastForwardMerge(p.opts.MainRepoDir, t.Branch)
		if err == nil {
			return nil
		}
		lastErr = err

		if err := p.git.Fetch(ctx, t.WorktreePath, p.opts.Remote, p.opts.MainlineBranch); err != nil {
			return fmt.Errorf("re-fetch during ff retry: %w", err)
		}
		if err := p.git.Rebase(t.WorktreePath, "FETCH_HEAD"); err != nil {
			_ = p.git.AbortRebase(t.WorktreePath)
			return orcherrors.ErrRebaseConflict
		}
	}
	return fmt.Errorf("%w: %v", orcherrors.ErrMergeRetryExhausted, lastErr)
}

// attemptMergeVerificationFix is a short, single-shot agent invocation in
// the worktree asked to clear a post-rebase verification failure.
func (p *Pipeline) attemptMergeVerificationFix(ctx context.Context, t Task, report *worker.VerifyReport) error {
	failure := report.FirstFailure()
	prompt, err := prompts.GetPrompt(prompts.Fix, map[string]string{
		"tier":          "sonnet",
		"objective":     "resolve the post-rebase verification failure without reintroducing the original conflict",
		"verify_output": fmt.Sprintf("%s:\n%s", failure.Kind, failure.Output),
		"attempt":       strconv.Itoa(1),
		"max_attempts":  strconv.Itoa(p.opts.MergeVerifyFixCap),
	})
	if err != nil {
		return err
	}
	_, err = p.runner.RunAgent(ctx, prompt, "sonnet", t.WorktreePath)
	return err
}

// retryableNextPass reports whether a failure category represents a
// transient condition worth retrying once the batch's conflict landscape
// has changed — a rebase conflict or a non-fast-forward race, neither of
// which necessarily recurs once other tasks in the batch have landed.
func retryableNextPass(taskErr *orcherrors.TaskError) bool {
	if taskErr == nil {
		return false
	}
	return taskErr.Category == orcherrors.CategoryRebaseConflict || taskErr.Category == orcherrors.CategoryFFFailed
}

func fail(taskID string, category orcherrors.Category, err error) Outcome {
	return Outcome{TaskID: taskID, Success: false, TaskErr: orcherrors.New(category, err)}
}

func failVerify(taskID string, kind orcherrors.VerifyKind, err error) Outcome {
	return Outcome{TaskID: taskID, Success: false, TaskErr: orcherrors.NewVerify(kind, err)}
}

// orderByParentGroup places orphan tasks first, then each parent's sibling
// group together, preserving input order within each group.
func orderByParentGroup(tasks []Task) []Task {
	var orphans []Task
	groups := make(map[string][]Task)
	var groupOrder []string

	for _, t := range tasks {
		if t.ParentID == "" {
			orphans = append(orphans, t)
			continue
		}
		if _, seen := groups[t.ParentID]; !seen {
			groupOrder = append(groupOrder, t.ParentID)
		}
		groups[t.ParentID] = append(groups[t.ParentID], t)
	}
	sort.Strings(groupOrder)

	out := make([]Task, 0, len(tasks))
	out = append(out, orphans...)
	for _, pid := range groupOrder {
		out = append(out, groups[pid]...)
	}
	return out
}

// buildSiblingBoundaries maps each decomposed task to the union of its
// siblings' estimated files, for scope-creep enforcement at merge time.
func buildSiblingBoundaries(tasks []Task) map[string][]string {
	byParent := make(map[string][]Task)
	for _, t := range tasks {
		if t.ParentID == "" {
			continue
		}
		byParent[t.ParentID] = append(byParent[t.ParentID], t)
	}

	out := make(map[string][]string)
	for _, siblings := range byParent {
		for _, self := range siblings {
			var boundary []string
			for _, other := range siblings {
				if other.TaskID == self.TaskID {
					continue
				}
				boundary = append(boundary, other.EstimatedFiles...)
			}
			out[self.TaskID] = boundary
		}
	}
	return out
}

func diffNames(dir, against string) ([]string, error) {
	out, err := exec.Command("git", "-C", dir, "diff", "--name-only", against).CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("git diff --name-only: %w", err)
	}
	var files []string
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			files = append(files, line)
		}
	}
	return files, nil
}

func firstOverlap(touched, boundary []string) string {
	set := make(map[string]bool, len(boundary))
	for _, b := range boundary {
		set[b] = true
	}
	for _, f := range touched {
		if set[f] {
			return f
		}
	}
	return ""
}
