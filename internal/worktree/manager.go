// Package worktree creates and destroys isolated per-task git worktrees off
// mainline HEAD.
package worktree

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"
)

// branchPrefix namespaces task branches so they never collide with a human's
// own local branches.
const branchPrefix = "undercity/"

var validTaskID = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Worktree describes a created sibling checkout.
type Worktree struct {
	TaskID         string
	Path           string
	Branch         string
	MainBranchBase string // SHA mainline pointed to at creation time
}

// Manager creates and destroys per-task worktrees under a dedicated siblings
// directory, never inside the main checkout.
type Manager struct {
	repoPath     string
	siblingsRoot string

	mu       sync.Mutex // guards active
	active   map[string]*Worktree
	createMu sync.Mutex // serializes `git worktree add` to dodge git's commondir race
}

// NewManager builds a Manager rooted at repoPath, with worktrees created
// under repoPath/.undercity/siblings.
func NewManager(repoPath string) *Manager {
	return &Manager{
		repoPath:     repoPath,
		siblingsRoot: filepath.Join(repoPath, ".undercity", "siblings"),
		active:       make(map[string]*Worktree),
	}
}

// GetMainBranch auto-detects mainline as the main checkout's current branch.
// It does not consult the remote's default branch.
func (m *Manager) GetMainBranch(ctx context.Context) (string, error) {
	out, err := m.git(ctx, "symbolic-ref", "--short", "HEAD")
	if err != nil {
		return "", fmt.Errorf("detect main branch: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// GetMainRepoPath returns the main checkout's filesystem path.
func (m *Manager) GetMainRepoPath() string { return m.repoPath }

// CreateWorktree creates a new worktree for taskID, branching off mainline
// HEAD. It fails fast if the repository is bare or in a detached-HEAD state
// that would corrupt siblings.
func (m *Manager) CreateWorktree(ctx context.Context, taskID string) (*Worktree, error) {
	if !validTaskID.MatchString(taskID) {
		return nil, fmt.Errorf("invalid task id for worktree: %q", taskID)
	}

	if err := m.selfHeal(ctx); err != nil {
		return nil, fmt.Errorf("repository in unusable state: %w", err)
	}
	if _, err := m.git(ctx, "symbolic-ref", "-q", "HEAD"); err != nil {
		return nil, fmt.Errorf("repository in unusable state: detached HEAD at %s: %w", m.repoPath, err)
	}

	branch := branchPrefix + taskID
	path := filepath.Join(m.siblingsRoot, taskID)

	if err := os.MkdirAll(m.siblingsRoot, 0o755); err != nil {
		return nil, fmt.Errorf("create siblings directory: %w", err)
	}

	baseSHA, err := m.git(ctx, "rev-parse", "HEAD")
	if err != nil {
		return nil, fmt.Errorf("resolve mainline HEAD: %w", err)
	}
	baseSHA = strings.TrimSpace(baseSHA)

	// git's worktree implementation has an internal race on
	// .git/worktrees/*/commondir when several are added concurrently; serialize
	// creation and retry transient failures with backoff.
	m.createMu.Lock()
	var createErr error
	for attempt := 0; attempt < 3; attempt++ {
		_, createErr = m.git(ctx, "worktree", "add", "-b", branch, path, baseSHA)
		if createErr == nil {
			break
		}
		msg := createErr.Error()
		if strings.Contains(msg, "commondir") || strings.Contains(msg, "gitdir") {
			time.Sleep(time.Duration(10*(attempt+1)) * time.Millisecond)
			continue
		}
		break
	}
	m.createMu.Unlock()
	if createErr != nil {
		return nil, fmt.Errorf("create worktree for %s: %w", taskID, createErr)
	}

	wt := &Worktree{TaskID: taskID, Path: path, Branch: branch, MainBranchBase: baseSHA}
	m.mu.Lock()
	m.active[taskID] = wt
	m.mu.Unlock()
	return wt, nil
}

// selfHeal rejects a bare repository with an error, so siblings are never
// created against a corrupt main checkout. It does not convert the
// repository back into a working tree.
func (m *Manager) selfHeal(ctx context.Context) error {
	out, err := m.git(ctx, "rev-parse", "--is-bare-repository")
	if err != nil {
		return err
	}
	if strings.TrimSpace(out) == "true" {
		return fmt.Errorf("repository at %s is bare; cannot host worktree siblings", m.repoPath)
	}
	return nil
}

// RemoveWorktree detaches and deletes a worktree, optionally forcing removal
// of uncommitted changes.
func (m *Manager) RemoveWorktree(ctx context.Context, taskID string, force bool) error {
	m.mu.Lock()
	wt, ok := m.active[taskID]
	m.mu.Unlock()
	if !ok {
		return nil
	}

	args := []string{"worktree", "remove"}
	if force {
		args = append(args, "--force")
	}
	args = append(args, wt.Path)
	if _, err := m.git(ctx, args...); err != nil {
		// belt and suspenders: remove the directory directly, then prune
		_ = os.RemoveAll(wt.Path)
	}
	_, _ = m.git(ctx, "worktree", "prune")

	m.mu.Lock()
	delete(m.active, taskID)
	m.mu.Unlock()
	return nil
}

// ListActiveWorktrees returns all worktrees this Manager currently tracks.
func (m *Manager) ListActiveWorktrees() []*Worktree {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Worktree, 0, len(m.active))
	for _, wt := range m.active {
		out = append(out, wt)
	}
	return out
}

func (m *Manager) git(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = m.repoPath
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}
