package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"undercity/internal/board"
	"undercity/internal/telemetry"
)

// metaObjectiveRe matches the `[meta:<type>]` prefix a meta-task's objective
// carries, e.g. "[meta:audit] flag stale blocked tasks".
var metaObjectiveRe = regexp.MustCompile(`^\[meta:(\w+)\]`)

func isMetaTask(t *board.Task) (kind string, ok bool) {
	m := metaObjectiveRe.FindStringSubmatch(strings.TrimSpace(t.Objective))
	if m == nil {
		return "", false
	}
	return m[1], true
}

const (
	maxRecommendationAdds       = 20
	maxRecommendationRemovals   = 0.5
	minRecommendationConfidence = 0.8
)

// runMetaTask runs a meta-task's analysis prompt in the main checkout (no
// worktree, no worker phase loop — meta-tasks inspect/mutate the board
// itself, not a codebase) and applies its resulting Recommendations as board
// mutations. It is the only codepath besides the regular worker/merge flow
// that mutates the board, and it validates every recommendation before
// applying it so a single bad meta-task run can't wreck the board.
func (o *Orchestrator) runMetaTask(ctx context.Context, t *board.Task, kind string) {
	_ = o.deps.Board.UpdateStatus(ctx, t.ID, board.StatusInProgress, "")
	o.ev.record(event{Type: "meta_task_started", TaskID: t.ID, Category: kind})

	mainRepoDir := ""
	if o.deps.Worktrees != nil {
		mainRepoDir = o.deps.Worktrees.GetMainRepoPath()
	}

	prompt := metaTaskPrompt(t)
	res, err := o.deps.Runner.RunAgent(ctx, prompt, o.opts.WorkerConfig.StartingTier, mainRepoDir)
	if err != nil {
		o.log.Warn("orchestrator: meta-task run failed", "task", t.ID, "error", err)
		_ = o.deps.Board.UpdateStatus(ctx, t.ID, board.StatusFailed, err.Error())
		return
	}

	recs, err := parseRecommendations(res.Output)
	if err != nil {
		o.log.Warn("orchestrator: meta-task produced no usable recommendations", "task", t.ID, "error", err)
		_ = o.deps.Board.UpdateStatus(ctx, t.ID, board.StatusFailed, err.Error())
		return
	}

	applied, dropped := o.applyRecommendations(ctx, recs)
	o.ev.record(event{Type: "meta_task_completed", TaskID: t.ID, Category: kind,
		Fields: map[string]string{"applied": strconv.Itoa(applied), "dropped": strconv.Itoa(dropped)}})
	_ = o.deps.Board.UpdateStatus(ctx, t.ID, board.StatusComplete, "")
	telemetry.TrackTaskCompleted(o.deps.Project, string(board.StatusComplete))
}

func metaTaskPrompt(t *board.Task) string {
	return fmt.Sprintf(
		"%s\n\nRespond with a fenced json array of recommendations, each shaped as "+
			"{\"kind\": \"add|remove|prioritize|fix_status|merge|review\", \"taskId\": \"...\", "+
			"\"payload\": {...}, \"confidence\": 0.0-1.0, \"rationale\": \"...\"}.",
		t.Objective)
}

// parseRecommendations mirrors parseDecompositionPlan's fenced-then-bare
// JSON array extraction, applied to Recommendation objects instead of
// subtask proposals.
func parseRecommendations(raw string) ([]Recommendation, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("empty meta-task output")
	}
	var recs []Recommendation
	for _, candidate := range extractJSONArrays(raw) {
		if err := json.Unmarshal([]byte(candidate), &recs); err == nil && len(recs) > 0 {
			return recs, nil
		}
	}
	return nil, fmt.Errorf("could not find a recommendation list in meta-task output")
}

// applyRecommendations enforces the safety caps (confidence floor, removal
// ratio, add count) before mutating the board. When a cap is exceeded, the
// recommendations past it are dropped in the order the meta-task listed
// them; they are not ranked by confidence. It returns how many
// recommendations were applied vs dropped.
func (o *Orchestrator) applyRecommendations(ctx context.Context, recs []Recommendation) (applied, dropped int) {
	var confident []Recommendation
	for _, r := range recs {
		if r.Confidence < minRecommendationConfidence {
			dropped++
			continue
		}
		confident = append(confident, r)
	}

	var adds, removes, rest []Recommendation
	for _, r := range confident {
		switch r.Kind {
		case "add":
			adds = append(adds, r)
		case "remove":
			removes = append(removes, r)
		default:
			rest = append(rest, r)
		}
	}

	if len(adds) > maxRecommendationAdds {
		dropped += len(adds) - maxRecommendationAdds
		adds = adds[:maxRecommendationAdds]
	}
	if total := len(adds) + len(removes) + len(rest); total > 0 {
		if removeCap := int(float64(total) * maxRecommendationRemovals); len(removes) > removeCap {
			dropped += len(removes) - removeCap
			removes = removes[:removeCap]
		}
	}

	for _, r := range append(append(adds, removes...), rest...) {
		if err := o.applyRecommendation(ctx, r); err != nil {
			o.log.Warn("orchestrator: recommendation rejected", "kind", r.Kind, "task", r.TaskID, "error", err)
			dropped++
			continue
		}
		applied++
	}
	return applied, dropped
}

func (o *Orchestrator) applyRecommendation(ctx context.Context, r Recommendation) error {
	switch r.Kind {
	case "add":
		objective := r.Payload["objective"]
		if strings.TrimSpace(objective) == "" {
			return fmt.Errorf("add recommendation missing objective")
		}
		priority, _ := strconv.Atoi(r.Payload["priority"])
		return o.deps.Board.Add(ctx, &board.Task{
			ID:        fmt.Sprintf("meta-add-%s", uuid.NewString()),
			Objective: objective,
			Status:    board.StatusPending,
			Priority:  priority,
		})

	case "remove":
		if r.TaskID == "" {
			return fmt.Errorf("remove recommendation missing taskId")
		}
		if _, err := o.deps.Board.Get(ctx, r.TaskID); err != nil {
			return fmt.Errorf("target task does not exist: %w", err)
		}
		return o.deps.Board.UpdateStatus(ctx, r.TaskID, board.StatusBlocked, "removed by meta-task recommendation: "+r.Rationale)

	case "prioritize":
		if r.TaskID == "" {
			return fmt.Errorf("prioritize recommendation missing taskId")
		}
		task, err := o.deps.Board.Get(ctx, r.TaskID)
		if err != nil {
			return fmt.Errorf("target task does not exist: %w", err)
		}
		priority, err := strconv.Atoi(r.Payload["priority"])
		if err != nil {
			return fmt.Errorf("prioritize recommendation missing numeric priority: %w", err)
		}
		task.Priority = priority
		return o.deps.Board.Add(ctx, task)

	case "fix_status":
		if r.TaskID == "" {
			return fmt.Errorf("fix_status recommendation missing taskId")
		}
		if _, err := o.deps.Board.Get(ctx, r.TaskID); err != nil {
			return fmt.Errorf("target task does not exist: %w", err)
		}
		status := board.Status(r.Payload["status"])
		switch status {
		case board.StatusPending, board.StatusInProgress, board.StatusComplete, board.StatusFailed, board.StatusBlocked:
			return o.deps.Board.UpdateStatus(ctx, r.TaskID, status, "fixed by meta-task recommendation: "+r.Rationale)
		default:
			return fmt.Errorf("fix_status recommendation has unrecognized status %q", r.Payload["status"])
		}

	case "merge", "review":
		// Both require a live worktree and a verify/review pass the
		// Recommendation payload doesn't carry one of. Mutating git state
		// blind from an advisory string would break "single point of board
		// mutation" discipline, so these are recorded for operator
		// visibility instead of auto-executed.
		if r.TaskID == "" {
			return fmt.Errorf("%s recommendation missing taskId", r.Kind)
		}
		if _, err := o.deps.Board.Get(ctx, r.TaskID); err != nil {
			return fmt.Errorf("target task does not exist: %w", err)
		}
		o.ev.record(event{Type: "recommendation_advisory", TaskID: r.TaskID, Category: r.Kind,
			Fields: map[string]string{"rationale": r.Rationale}})
		return nil

	default:
		return fmt.Errorf("unknown recommendation kind %q", r.Kind)
	}
}
