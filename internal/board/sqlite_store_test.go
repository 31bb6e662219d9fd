package board

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tasks.db")
	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore_AddGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	task := &Task{ID: "t1", Objective: "add function foo", Status: StatusPending, Priority: 10}
	require.NoError(t, store.Add(ctx, task))

	got, err := store.Get(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, "add function foo", got.Objective)
	require.Equal(t, StatusPending, got.Status)
}

func TestSQLiteStore_GetNotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Get(context.Background(), "missing")
	require.Error(t, err)
	var nf *ErrNotFound
	require.ErrorAs(t, err, &nf)
}

func TestSQLiteStore_ListPendingOrdering(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	low := &Task{ID: "low", Objective: "low priority", Status: StatusPending, Priority: 1}
	high := &Task{ID: "high", Objective: "high priority", Status: StatusPending, Priority: 10}
	decomposed := &Task{ID: "decomposed", Objective: "parent task", Status: StatusPending, Priority: 20, IsDecomposed: true}
	require.NoError(t, store.Add(ctx, low))
	require.NoError(t, store.Add(ctx, high))
	require.NoError(t, store.Add(ctx, decomposed))

	pending, err := store.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	require.Equal(t, "high", pending[0].ID)
	require.Equal(t, "low", pending[1].ID)
}

func TestSQLiteStore_DecomposeAtomicity(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	parent := &Task{ID: "parent", Objective: "parent objective", Status: StatusPending, Priority: 5}
	require.NoError(t, store.Add(ctx, parent))

	subtasks := []*Task{
		{ID: "child-a", Objective: "touch a.rs", Status: StatusPending, Priority: 5},
		{ID: "child-b", Objective: "touch b.rs", Status: StatusPending, Priority: 5},
	}
	require.NoError(t, store.Decompose(ctx, "parent", subtasks))

	got, err := store.Get(ctx, "parent")
	require.NoError(t, err)
	require.True(t, got.IsDecomposed)
	require.ElementsMatch(t, []string{"child-a", "child-b"}, got.SubtaskIDs)

	childA, err := store.Get(ctx, "child-a")
	require.NoError(t, err)
	require.Equal(t, "parent", childA.ParentID)
}

func TestSQLiteStore_CompleteParentIfAllSubtasksDone(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	parent := &Task{ID: "parent", Objective: "parent", Status: StatusPending, Priority: 5}
	require.NoError(t, store.Add(ctx, parent))
	require.NoError(t, store.Decompose(ctx, "parent", []*Task{
		{ID: "child-a", Status: StatusPending, Priority: 5},
		{ID: "child-b", Status: StatusPending, Priority: 5},
	}))

	require.NoError(t, store.UpdateStatus(ctx, "child-a", StatusComplete, ""))
	require.NoError(t, store.CompleteParentIfAllSubtasksDone(ctx, "parent"))

	got, _ := store.Get(ctx, "parent")
	require.NotEqual(t, StatusComplete, got.Status, "parent must not complete until every subtask is done")

	require.NoError(t, store.UpdateStatus(ctx, "child-b", StatusComplete, ""))
	require.NoError(t, store.CompleteParentIfAllSubtasksDone(ctx, "parent"))

	got, _ = store.Get(ctx, "parent")
	require.Equal(t, StatusComplete, got.Status)
}
