package board

import (
	"context"

	"gopkg.in/yaml.v3"
)

// Snapshot is a human-readable YAML rendering of the board. The `status`
// and `tasks` commands print their own views and do not render it.
type Snapshot struct {
	GeneratedAt string      `yaml:"generated_at"`
	Tasks       []snapEntry `yaml:"tasks"`
}

type snapEntry struct {
	ID        string `yaml:"id"`
	Objective string `yaml:"objective"`
	Status    string `yaml:"status"`
	Priority  int    `yaml:"priority"`
	ParentID  string `yaml:"parent_id,omitempty"`
}

// RenderSnapshotYAML lists every task via store and renders it as YAML.
func RenderSnapshotYAML(ctx context.Context, store Store, generatedAt string) (string, error) {
	tasks, err := store.List(ctx, Filter{})
	if err != nil {
		return "", err
	}
	snap := Snapshot{GeneratedAt: generatedAt}
	for _, t := range tasks {
		snap.Tasks = append(snap.Tasks, snapEntry{
			ID:        t.ID,
			Objective: t.Objective,
			Status:    string(t.Status),
			Priority:  t.Priority,
			ParentID:  t.ParentID,
		})
	}
	out, err := yaml.Marshal(snap)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
