package orchestrator

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"undercity/internal/recovery"
)

// preservedEntry records one worktree kept on disk for investigation
// instead of being removed after a failed or inconclusive task.
type preservedEntry struct {
	TaskID string    `json:"taskId"`
	Path   string    `json:"path"`
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}

// preservedRing is a fixed-capacity, disk-persisted ring of preservedEntry
// records. When full, adding a new entry evicts the oldest one.
type preservedRing struct {
	mu       sync.Mutex
	path     string
	capacity int
	entries  []preservedEntry
}

func newPreservedRing(stateDir string, capacity int) *preservedRing {
	r := &preservedRing{path: filepath.Join(stateDir, "worktrees-ring.json"), capacity: capacity}
	r.load()
	return r
}

func (r *preservedRing) load() {
	raw, err := os.ReadFile(r.path)
	if err != nil {
		return
	}
	var entries []preservedEntry
	if json.Unmarshal(raw, &entries) == nil {
		r.entries = entries
	}
}

func (r *preservedRing) add(e preservedEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	if over := len(r.entries) - r.capacity; over > 0 {
		r.entries = r.entries[over:]
	}
	raw, err := json.MarshalIndent(r.entries, "", "  ")
	if err != nil {
		return
	}
	_ = recovery.AtomicWrite(r.path, raw)
}

func (r *preservedRing) list() []preservedEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]preservedEntry, len(r.entries))
	copy(out, r.entries)
	return out
}
