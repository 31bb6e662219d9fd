package orchestrator

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"undercity/internal/board"
)

// decompositionProposal is the shape an agent's decomposition response is
// asked to emit as a fenced json block: one entry per subtask, each naming
// its own non-overlapping estimated file set.
type decompositionProposal struct {
	Objective      string   `json:"objective"`
	EstimatedFiles []string `json:"estimated_files"`
	Priority       int      `json:"priority,omitempty"`
}

var jsonFenceRe = regexp.MustCompile("(?s)```(?:json)?\\s*(\\[.*?\\])\\s*```")

// parseDecompositionPlan turns a worker's raw decomposition output into
// board subtasks. It first looks for a fenced JSON array, then falls back
// to a bare JSON array anywhere in the text, and finally to a numbered or
// bulleted list of objectives (with no file predictions, left for the File
// Tracker to guess at admission time).
func parseDecompositionPlan(parentID, raw string) ([]*board.Task, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("empty decomposition plan")
	}

	var proposals []decompositionProposal
	for _, candidate := range extractJSONArrays(raw) {
		if err := json.Unmarshal([]byte(candidate), &proposals); err == nil && len(proposals) > 0 {
			return proposalsToTasks(parentID, proposals), nil
		}
	}

	if objectives := parseListedObjectives(raw); len(objectives) > 0 {
		proposals = proposals[:0]
		for _, o := range objectives {
			proposals = append(proposals, decompositionProposal{Objective: o})
		}
		return proposalsToTasks(parentID, proposals), nil
	}

	return nil, fmt.Errorf("could not find a subtask list in decomposition output")
}

// extractJSONArrays returns candidate JSON-array substrings found in raw
// agent output, fenced blocks first, then the outermost bare `[...]` span.
// Callers try each in order since a fenced block that fails to parse
// (truncated output, trailing prose inside the fence) shouldn't rule out
// the bare fallback.
func extractJSONArrays(raw string) []string {
	var candidates []string
	if m := jsonFenceRe.FindStringSubmatch(raw); m != nil {
		candidates = append(candidates, m[1])
	}
	if start := strings.Index(raw, "["); start >= 0 {
		if end := strings.LastIndex(raw, "]"); end > start {
			candidates = append(candidates, raw[start:end+1])
		}
	}
	return candidates
}

var listLineRe = regexp.MustCompile(`^\s*(?:[-*]|\d+[.)])\s+(.+)$`)

func parseListedObjectives(raw string) []string {
	var out []string
	for _, line := range strings.Split(raw, "\n") {
		m := listLineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		objective := strings.TrimSpace(m[1])
		if objective != "" {
			out = append(out, objective)
		}
	}
	return out
}

func proposalsToTasks(parentID string, proposals []decompositionProposal) []*board.Task {
	tasks := make([]*board.Task, 0, len(proposals))
	for i, p := range proposals {
		if strings.TrimSpace(p.Objective) == "" {
			continue
		}
		priority := p.Priority
		if priority == 0 {
			priority = len(proposals) - i
		}
		tasks = append(tasks, &board.Task{
			ID:             fmt.Sprintf("%s-sub-%d", parentID, i+1),
			Objective:      p.Objective,
			Status:         board.StatusPending,
			Priority:       priority,
			EstimatedFiles: p.EstimatedFiles,
			ParentID:       parentID,
		})
	}
	return tasks
}
