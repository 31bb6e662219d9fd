package git

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
}

func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
		require.NoError(t, cmd.Run())
	}
	run("init")
	run("config", "user.email", "git-test@example.com")
	run("config", "user.name", "Git Test")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("one\n"), 0644))
	run("add", ".")
	run("commit", "-m", "initial")
	return dir
}

func TestExec_RepoExists(t *testing.T) {
	requireGit(t)
	dir := initRepo(t)
	c := NewClient()

	require.True(t, c.RepoExists(dir))
	require.False(t, c.RepoExists(t.TempDir()))
}

func TestExec_CurrentBranchAndLocalBranchExists(t *testing.T) {
	requireGit(t)
	dir := initRepo(t)
	c := NewClient()

	branch, err := c.CurrentBranch(dir)
	require.NoError(t, err)
	require.NotEmpty(t, branch)

	exists, err := c.LocalBranchExists(dir, branch)
	require.NoError(t, err)
	require.True(t, exists)

	exists, err = c.LocalBranchExists(dir, "does-not-exist")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestExec_DiscardTrackedChangesPreservesUntracked(t *testing.T) {
	requireGit(t)
	dir := initRepo(t)
	c := NewClient()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("modified\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "untracked.txt"), []byte("new\n"), 0644))

	require.NoError(t, c.DiscardTrackedChanges(dir))

	content, err := os.ReadFile(filepath.Join(dir, "a.txt"))
	require.NoError(t, err)
	require.Equal(t, "one\n", string(content))

	_, err = os.Stat(filepath.Join(dir, "untracked.txt"))
	require.NoError(t, err)
}

func TestExec_FastForwardMergeAndFetch(t *testing.T) {
	requireGit(t)
	mainRepo := initRepo(t)
	c := NewClient()

	run := func(dir string, args ...string) {
		cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
		require.NoError(t, cmd.Run())
	}

	mainline, err := c.CurrentBranch(mainRepo)
	require.NoError(t, err)

	run(mainRepo, "checkout", "-b", "feature")
	require.NoError(t, os.WriteFile(filepath.Join(mainRepo, "b.txt"), []byte("feature\n"), 0644))
	run(mainRepo, "add", ".")
	run(mainRepo, "commit", "-m", "feature work")

	run(mainRepo, "checkout", mainline)
	require.NoError(t, c.FastForwardMerge(mainRepo, "feature"))

	content, readErr := os.ReadFile(filepath.Join(mainRepo, "b.txt"))
	require.NoError(t, readErr)
	require.Equal(t, "feature\n", string(content))

	ctx := context.Background()
	require.NoError(t, c.Fetch(ctx, mainRepo, ".", mainline))
}

func TestExec_AbortRebaseOnConflict(t *testing.T) {
	requireGit(t)
	dir := initRepo(t)
	c := NewClient()

	run := func(args ...string) {
		cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
		require.NoError(t, cmd.Run())
	}

	mainline, err := c.CurrentBranch(dir)
	require.NoError(t, err)

	run("checkout", "-b", "conflict-branch")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("branch version\n"), 0644))
	run("commit", "-am", "branch change")

	run("checkout", mainline)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("mainline version\n"), 0644))
	run("commit", "-am", "mainline change")

	run("checkout", "conflict-branch")
	require.Error(t, c.Rebase(dir, mainline))
	require.NoError(t, c.AbortRebase(dir))
}
