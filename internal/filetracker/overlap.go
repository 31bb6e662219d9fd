package filetracker

import (
	"fmt"
	"path/filepath"
)

// TaskFiles is one task's high-confidence predicted or regex-extracted
// write paths, as consumed by batch shaping.
type TaskFiles struct {
	TaskID string
	Files  []string
}

// ValidateBatchOverlaps checks that no two tasks within the same batch claim
// the same file. Tasks across different batches are allowed to overlap —
// the conflict only matters for tasks that would run concurrently.
func ValidateBatchOverlaps(batch []TaskFiles) error {
	owners := make(map[string]string)
	for _, tf := range batch {
		for _, f := range tf.Files {
			normalized := filepath.Clean(f)
			if owner, exists := owners[normalized]; exists {
				if owner == tf.TaskID {
					continue
				}
				return fmt.Errorf("file %q claimed by both task %s and task %s in the same batch", normalized, owner, tf.TaskID)
			}
			owners[normalized] = tf.TaskID
		}
	}
	return nil
}
