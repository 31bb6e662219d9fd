package recovery

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStore_WriteAndScanActive(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.WriteActiveTask(TaskRecord{TaskID: "t1", WorktreePath: "/wt1", Branch: "undercity/t1", Status: "running"}))
	require.NoError(t, s.WriteActiveTask(TaskRecord{TaskID: "t2", WorktreePath: "/wt2", Branch: "undercity/t2", Status: "running"}))

	active, err := s.ScanActiveTasks()
	require.NoError(t, err)
	require.Len(t, active, 2)

	has, err := s.HasActiveTasks()
	require.NoError(t, err)
	require.True(t, has)
}

func TestStore_MarkTaskCompletedMovesRecord(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.WriteActiveTask(TaskRecord{TaskID: "t1", WorktreePath: "/wt1", Branch: "undercity/t1", Status: "running"}))
	require.NoError(t, s.MarkTaskCompleted("t1", "complete", ""))

	active, err := s.ScanActiveTasks()
	require.NoError(t, err)
	require.Empty(t, active)

	completed, err := s.GetCompletedTasks()
	require.NoError(t, err)
	require.Len(t, completed, 1)
	require.Equal(t, "complete", completed[0].Status)
	require.NotNil(t, completed[0].CompletedAt)
}

func TestStore_UpdateActiveTaskStatus(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.WriteActiveTask(TaskRecord{TaskID: "t1", Status: "running"}))
	require.NoError(t, s.UpdateActiveTaskStatus("t1", "fixing", "typecheck failed"))

	active, err := s.ScanActiveTasks()
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, "fixing", active[0].Status)
	require.Equal(t, "typecheck failed", active[0].ErrorMessage)
}

func TestStore_BatchMetadataRoundTrip(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.SaveBatchMetadata(BatchMetadata{BatchID: "b1", TaskIDs: []string{"t1", "t2"}}))

	meta, err := s.GetBatchMetadata("b1")
	require.NoError(t, err)
	require.NotNil(t, meta)
	require.ElementsMatch(t, []string{"t1", "t2"}, meta.TaskIDs)

	require.NoError(t, s.ClearBatch("b1"))
	meta, err = s.GetBatchMetadata("b1")
	require.NoError(t, err)
	require.Nil(t, meta)
}

func TestStore_CheckpointRoundTrip(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.WriteCheckpoint(Checkpoint{TaskID: "t1", Phase: "execute", Tier: "sonnet", Attempts: 1}))

	cp, err := s.ReadCheckpoint("t1")
	require.NoError(t, err)
	require.NotNil(t, cp)
	require.Equal(t, "execute", cp.Phase)

	age, err := s.CheckpointAge("t1")
	require.NoError(t, err)
	require.GreaterOrEqual(t, age.Seconds(), 0.0)
}

func TestStore_GetCompletedTasksEmptyWhenNoneExist(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	completed, err := s.GetCompletedTasks()
	require.NoError(t, err)
	require.Empty(t, completed)
}
