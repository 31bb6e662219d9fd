package git

import "context"

// Client is the subset of git plumbing the Merge Pipeline drives against a
// task's worktree and the shared main repository.
type Client interface {
	RepoExists(dir string) bool
	CurrentBranch(dir string) (string, error)
	LocalBranchExists(dir, branch string) (bool, error)
	RemoteBranchExists(dir, remote, branch string) (bool, error)

	DiscardTrackedChanges(dir string) error
	Fetch(ctx context.Context, dir, remote, branch string) error
	Rebase(dir, onto string) error
	AbortRebase(dir string) error

	FastForwardMerge(dir, branch string) error
	Push(dir, branch string) error

	DeleteLocalBranch(dir, branch string) error
	DeleteRemoteBranch(dir, remote, branch string) error
}
