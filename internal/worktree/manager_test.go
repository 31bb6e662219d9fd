package worktree

import (
	"context"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, string(out))
	}
	run("init", "-b", "main")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "test")
	require.NoError(t, exec.Command("git", "-C", dir, "commit", "--allow-empty", "-m", "init").Run())
	return dir
}

func TestManager_CreateAndRemoveWorktree(t *testing.T) {
	repo := initRepo(t)
	mgr := NewManager(repo)
	ctx := context.Background()

	wt, err := mgr.CreateWorktree(ctx, "task-1")
	require.NoError(t, err)
	require.Equal(t, "undercity/task-1", wt.Branch)
	require.Equal(t, filepath.Join(repo, ".undercity", "siblings", "task-1"), wt.Path)
	require.NotEmpty(t, wt.MainBranchBase)

	require.Len(t, mgr.ListActiveWorktrees(), 1)

	require.NoError(t, mgr.RemoveWorktree(ctx, "task-1", true))
	require.Len(t, mgr.ListActiveWorktrees(), 0)
}

func TestManager_CreateWorktree_DisjointPaths(t *testing.T) {
	repo := initRepo(t)
	mgr := NewManager(repo)
	ctx := context.Background()

	wt1, err := mgr.CreateWorktree(ctx, "task-1")
	require.NoError(t, err)
	wt2, err := mgr.CreateWorktree(ctx, "task-2")
	require.NoError(t, err)

	require.NotEqual(t, wt1.Path, wt2.Path)
	require.NotEqual(t, wt1.Branch, wt2.Branch)
}

func TestManager_CreateWorktree_InvalidTaskID(t *testing.T) {
	repo := initRepo(t)
	mgr := NewManager(repo)
	_, err := mgr.CreateWorktree(context.Background(), "../escape")
	require.Error(t, err)
}
