// Package filetracker records per-task file accesses and detects cross-task
// conflicts, falling back to regex path extraction when the learned
// predictor has no history for an objective yet.
package filetracker

import (
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
)

// AccessKind is the nature of a recorded file access.
type AccessKind string

const (
	AccessRead AccessKind = "read"
	AccessEdit AccessKind = "edit"
)

// Entry is one recorded access by a task.
type Entry struct {
	TaskID string
	Path   string
	Kind   AccessKind
}

// filePathPattern matches file paths with common source extensions, mirroring
// the "cold predictor" fallback spec.md §4.3 names.
var filePathPattern = regexp.MustCompile(`\b((?:[\w\-]+/)+[\w\-]+\.(?:go|py|ts|tsx|js|jsx|rs|java|rb|css|scss|html|yaml|yml|json|toml|sql|sh|md))\b`)

// ExtractPathsFromText regex-extracts file paths mentioned in free text. Used
// when the weighted predictor has no history for the relevant keywords.
func ExtractPathsFromText(text string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range filePathPattern.FindAllStringSubmatch(text, -1) {
		path := filepath.Clean(m[1])
		if !seen[path] {
			seen[path] = true
			out = append(out, path)
		}
	}
	sort.Strings(out)
	return out
}

// Tracker records per-task accesses and maintains the keyword→path weight
// table the predictor learns from completed tasks' actual modifications.
type Tracker struct {
	mu         sync.Mutex
	worktree   map[string]string            // taskID -> worktree root
	entries    map[string][]Entry           // taskID -> entries
	weights    map[string]map[string]float64 // keyword -> path -> weight
	objectives map[string]string            // taskID -> objective, set once the task finishes
}

// New builds an empty Tracker.
func New() *Tracker {
	return &Tracker{
		worktree:   make(map[string]string),
		entries:    make(map[string][]Entry),
		weights:    make(map[string]map[string]float64),
		objectives: make(map[string]string),
	}
}

// StartTaskTracking registers a task as actively tracked in worktreeRoot.
func (t *Tracker) StartTaskTracking(taskID, worktreeRoot string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.worktree[taskID] = worktreeRoot
	if _, ok := t.entries[taskID]; !ok {
		t.entries[taskID] = nil
	}
}

// RecordAccess appends one access for taskID.
func (t *Tracker) RecordAccess(taskID, path string, kind AccessKind) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[taskID] = append(t.entries[taskID], Entry{TaskID: taskID, Path: filepath.Clean(path), Kind: kind})
}

// StopTaskTracking finalizes taskID's accesses into the keyword→path weight
// table, learning from its actual modifications, then drops its worktree
// binding (the entries themselves are kept for conflict analytics).
func (t *Tracker) StopTaskTracking(taskID, objective string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.worktree, taskID)
	t.objectives[taskID] = objective

	keywords := keywordsOf(objective)
	for _, e := range t.entries[taskID] {
		if e.Kind != AccessEdit {
			continue
		}
		for _, kw := range keywords {
			if t.weights[kw] == nil {
				t.weights[kw] = make(map[string]float64)
			}
			t.weights[kw][e.Path] += 1.0
		}
	}
}

// conflictPredictionConfidence is the floor a task's own predicted-relevant
// confidence for a path must clear before that task is treated as a conflict
// participant on a path it never actually touched.
const conflictPredictionConfidence = 0.5

// DetectConflicts returns, for every path in conflict among taskIDs, the set
// of tasks in conflict on it: two or more recorded an edit, or one edited
// while another (one of taskIDs that finished via StopTaskTracking) predicts
// that path relevant with confidence >= conflictPredictionConfidence.
func (t *Tracker) DetectConflicts(taskIDs []string) map[string][]string {
	t.mu.Lock()
	defer t.mu.Unlock()

	editors := make(map[string]map[string]bool) // path -> set of editing tasks
	for _, id := range taskIDs {
		for _, e := range t.entries[id] {
			if e.Kind != AccessEdit {
				continue
			}
			if editors[e.Path] == nil {
				editors[e.Path] = make(map[string]bool)
			}
			editors[e.Path][id] = true
		}
	}

	predicted := make(map[string]map[string]bool) // path -> set of tasks predicting it confidently
	for _, id := range taskIDs {
		objective, ok := t.objectives[id]
		if !ok {
			continue
		}
		for _, pred := range t.predictRelevantFilesLocked(objective, 0) {
			if pred.Confidence < conflictPredictionConfidence {
				continue
			}
			if predicted[pred.Path] == nil {
				predicted[pred.Path] = make(map[string]bool)
			}
			predicted[pred.Path][id] = true
		}
	}

	conflicts := make(map[string][]string)
	paths := make(map[string]bool, len(editors)+len(predicted))
	for path := range editors {
		paths[path] = true
	}
	for path := range predicted {
		paths[path] = true
	}
	for path := range paths {
		tasks := editors[path]
		if len(tasks) == 0 {
			// No actual edit on this path: prediction-only overlap isn't a
			// conflict, only "one edited while another predicts" is.
			continue
		}
		participants := make(map[string]bool, len(tasks))
		for id := range tasks {
			participants[id] = true
		}
		for id := range predicted[path] {
			participants[id] = true
		}
		if len(participants) > 1 {
			ids := make([]string, 0, len(participants))
			for id := range participants {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			conflicts[path] = ids
		}
	}
	return conflicts
}

// PredictRelevantFiles returns up to limit paths predicted relevant to
// objective, highest-weight first, falling back to regex extraction when the
// predictor has no learned weight for any of objective's keywords.
func (t *Tracker) PredictRelevantFiles(objective string, limit int) []PathPrediction {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.predictRelevantFilesLocked(objective, limit)
}

// predictRelevantFilesLocked is PredictRelevantFiles' body, callable by
// DetectConflicts while t.mu is already held.
func (t *Tracker) predictRelevantFilesLocked(objective string, limit int) []PathPrediction {
	scores := make(map[string]float64)
	for _, kw := range keywordsOf(objective) {
		for path, weight := range t.weights[kw] {
			scores[path] += weight
		}
	}

	if len(scores) == 0 {
		var preds []PathPrediction
		for _, path := range ExtractPathsFromText(objective) {
			preds = append(preds, PathPrediction{Path: path, Confidence: 1.0})
		}
		if limit > 0 && len(preds) > limit {
			preds = preds[:limit]
		}
		return preds
	}

	total := 0.0
	for _, w := range scores {
		total += w
	}
	preds := make([]PathPrediction, 0, len(scores))
	for path, w := range scores {
		preds = append(preds, PathPrediction{Path: path, Confidence: w / total})
	}
	sort.Slice(preds, func(i, j int) bool { return preds[i].Confidence > preds[j].Confidence })
	if limit > 0 && len(preds) > limit {
		preds = preds[:limit]
	}
	return preds
}

// PathPrediction is one predicted-relevant file with a confidence in [0,1].
type PathPrediction struct {
	Path       string
	Confidence float64
}

func keywordsOf(objective string) []string {
	lower := strings.ToLower(objective)
	fields := strings.FieldsFunc(lower, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	var out []string
	for _, f := range fields {
		if len(f) >= 3 {
			out = append(out, f)
		}
	}
	return out
}
