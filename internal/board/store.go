package board

import "context"

// Store is the durable backing for the task board. Implementations must make
// every mutation durable before returning, and must never let a reader
// observe a partially-decomposed parent (a parent with IsDecomposed=true but
// not all of its children yet inserted).
type Store interface {
	Add(ctx context.Context, t *Task) error
	Get(ctx context.Context, id string) (*Task, error)
	List(ctx context.Context, f Filter) ([]*Task, error)
	// ListPending returns pending and in_progress, non-decomposed tasks
	// ordered by priority descending, then createdAt ascending.
	ListPending(ctx context.Context) ([]*Task, error)
	UpdateStatus(ctx context.Context, id string, status Status, errMsg string) error
	// Decompose atomically flips parent.IsDecomposed and inserts subtasks
	// with ParentID back-references.
	Decompose(ctx context.Context, parentID string, subtasks []*Task) error
	CompleteParentIfAllSubtasksDone(ctx context.Context, parentID string) error
	Close() error
}

// ErrNotFound is returned when a task id does not exist on the board.
type ErrNotFound struct{ ID string }

func (e *ErrNotFound) Error() string { return "task not found: " + e.ID }
