package orchestrator

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"undercity/internal/agent"
	"undercity/internal/board"
	"undercity/internal/emergency"
	"undercity/internal/filetracker"
	"undercity/internal/git"
	"undercity/internal/merge"
	"undercity/internal/ratelimit"
	"undercity/internal/recovery"
	"undercity/internal/worker"
	"undercity/internal/worktree"
)

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
}

func runGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
	out, err := cmd.CombinedOutput()
	require.NoErrorf(t, err, "git %v: %s", args, out)
}

func newMainRepo(t *testing.T) (repo, mainline string) {
	t.Helper()
	repo = t.TempDir()
	runGit(t, repo, "init")
	runGit(t, repo, "config", "user.email", "orchestrator-test@example.com")
	runGit(t, repo, "config", "user.name", "Orchestrator Test")
	require.NoError(t, os.WriteFile(filepath.Join(repo, "README.md"), []byte("seed\n"), 0644))
	runGit(t, repo, "add", ".")
	runGit(t, repo, "commit", "-m", "seed")

	out, err := exec.Command("git", "-C", repo, "branch", "--show-current").Output()
	require.NoError(t, err)
	mainline = string(out)
	for len(mainline) > 0 && (mainline[len(mainline)-1] == '\n' || mainline[len(mainline)-1] == '\r') {
		mainline = mainline[:len(mainline)-1]
	}
	return repo, mainline
}

func baseWorkerConfig() worker.Config {
	return worker.Config{
		StartingTier:        "haiku",
		MaxTier:             "opus",
		MaxAttempts:         5,
		MaxRetriesPerTier:   1,
		ReviewPassesEnabled: false,
		AutoCommit:          true,
		VerifyTimeout:       5 * time.Second,
	}
}

func newTestOrchestrator(t *testing.T, repo, mainline string) (*Orchestrator, board.Store) {
	t.Helper()
	stateDir := t.TempDir()

	store, err := board.NewSQLiteStore(filepath.Join(stateDir, "board.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	rec, err := recovery.New(stateDir)
	require.NoError(t, err)

	rl, err := ratelimit.New(stateDir, ratelimit.Options{})
	require.NoError(t, err)

	guard, err := emergency.New(stateDir, 3)
	require.NoError(t, err)

	pipeline := merge.New(git.NewClient(), agent.NewMockRunner(), merge.Options{
		MainRepoDir:    repo,
		MainlineBranch: mainline,
		Remote:         repo,
		VerifyTimeout:  5 * time.Second,
	}, nil)

	opts := Options{
		MaxConcurrent:       2,
		SimilarityThreshold: 0.7,
		StateDir:            stateDir,
		WorkerConfig:        baseWorkerConfig(),
	}
	deps := Deps{
		Board:         store,
		Worktrees:     worktree.NewManager(repo),
		Files:         filetracker.New(),
		RateLimit:     rl,
		Emergency:     guard,
		MergePipeline: pipeline,
		Recovery:      rec,
		Runner:        agent.NewMockRunner(),
		Project:       "test",
	}
	return New(opts, deps, nil), store
}

func TestOrchestrator_HappyPathMergesAndCompletes(t *testing.T) {
	requireGit(t)
	repo, mainline := newMainRepo(t)
	o, store := newTestOrchestrator(t, repo, mainline)

	ctx := context.Background()
	require.NoError(t, store.Add(ctx, &board.Task{ID: "task-1", Objective: "add a greeting", Status: board.StatusPending, Priority: 10}))

	summary, err := o.RunOne(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"task-1"}, summary.Admitted)
	require.Len(t, summary.Outcomes, 1)

	got, err := store.Get(ctx, "task-1")
	require.NoError(t, err)
	require.Equal(t, board.StatusComplete, got.Status)
}

func TestOrchestrator_ConflictingPredictedFilesDeferSecondTask(t *testing.T) {
	requireGit(t)
	repo, mainline := newMainRepo(t)
	o, store := newTestOrchestrator(t, repo, mainline)
	o.opts.MaxConcurrent = 2

	ctx := context.Background()
	require.NoError(t, store.Add(ctx, &board.Task{
		ID: "task-a", Objective: "edit shared.go for feature A", Status: board.StatusPending, Priority: 20,
		EstimatedFiles: []string{"shared.go"},
	}))
	require.NoError(t, store.Add(ctx, &board.Task{
		ID: "task-b", Objective: "edit shared.go for feature B", Status: board.StatusPending, Priority: 10,
		EstimatedFiles: []string{"shared.go"},
	}))

	admitted, deferred, err := o.selectAndShapeBatch(ctx)
	require.NoError(t, err)
	require.Len(t, admitted, 1)
	require.Equal(t, "task-a", admitted[0].ID)
	require.Len(t, deferred, 1)
	require.Equal(t, "task-b", deferred[0].ID)
}

func TestOrchestrator_SimilarInProgressTaskIsDeferred(t *testing.T) {
	requireGit(t)
	repo, mainline := newMainRepo(t)
	o, store := newTestOrchestrator(t, repo, mainline)

	ctx := context.Background()
	require.NoError(t, store.Add(ctx, &board.Task{ID: "task-running", Objective: "refactor the payment gateway integration", Status: board.StatusInProgress, Priority: 10}))
	require.NoError(t, store.Add(ctx, &board.Task{ID: "task-dup", Objective: "refactor the payment gateway integration", Status: board.StatusPending, Priority: 5}))

	admitted, deferred, err := o.selectAndShapeBatch(ctx)
	require.NoError(t, err)
	require.Empty(t, admitted)
	require.Len(t, deferred, 1)
	require.Equal(t, "task-dup", deferred[0].ID)
}

func TestOrchestrator_EmergencyModeBlocksAdmissionAndSeedsFixTask(t *testing.T) {
	requireGit(t)
	repo, mainline := newMainRepo(t)
	o, store := newTestOrchestrator(t, repo, mainline)

	ctx := context.Background()
	require.NoError(t, o.deps.Emergency.Activate("mainline build is broken"))
	require.NoError(t, store.Add(ctx, &board.Task{ID: "task-1", Objective: "anything", Status: board.StatusPending, Priority: 10}))

	summary, err := o.RunOne(ctx)
	require.NoError(t, err)
	require.True(t, summary.EmergencyBlocked)
	require.Empty(t, summary.Admitted)

	pending, err := store.ListPending(ctx)
	require.NoError(t, err)
	var sawFixTask bool
	for _, p := range pending {
		if p.ID != "task-1" {
			sawFixTask = true
		}
	}
	require.True(t, sawFixTask, "expected an emergency fix task to be seeded onto the board")
}

func TestOrchestrator_RateLimitPauseShortCircuitsBeforeBoardRead(t *testing.T) {
	requireGit(t)
	repo, mainline := newMainRepo(t)
	o, _ := newTestOrchestrator(t, repo, mainline)

	require.NoError(t, o.deps.RateLimit.Pause("hit a 429", time.Now().Add(time.Hour)))

	summary, err := o.RunOne(context.Background())
	require.NoError(t, err)
	require.True(t, summary.RateLimitPaused)
	require.Empty(t, summary.Admitted)
}

func TestOrchestrator_DrainStopsAdmission(t *testing.T) {
	requireGit(t)
	repo, mainline := newMainRepo(t)
	o, store := newTestOrchestrator(t, repo, mainline)

	ctx := context.Background()
	require.NoError(t, store.Add(ctx, &board.Task{ID: "task-1", Objective: "anything", Status: board.StatusPending, Priority: 10}))

	o.Drain()
	summary, err := o.RunOne(ctx)
	require.NoError(t, err)
	require.True(t, summary.Drained)
	require.Empty(t, summary.Admitted)
}

func TestOrchestrator_OpusBudgetDowngradesWhenExhausted(t *testing.T) {
	requireGit(t)
	repo, mainline := newMainRepo(t)
	o, _ := newTestOrchestrator(t, repo, mainline)
	o.opts.OpusBudgetPct = 0.10
	o.totalProcessed = 9
	o.opusTasksUsed = 1

	cfg := o.tieredConfig(&board.Task{ID: "t"})
	require.Equal(t, "haiku", cfg.StartingTier, "non-opus starting tier should pass through untouched")

	o.opts.WorkerConfig.StartingTier = "opus"
	cfg = o.tieredConfig(&board.Task{ID: "t2"})
	require.Equal(t, "sonnet", cfg.StartingTier, "opus budget already at cap should downgrade to sonnet")
}

func TestOrchestrator_TieredConfigWiresOpusBudgetGate(t *testing.T) {
	requireGit(t)
	repo, mainline := newMainRepo(t)
	o, _ := newTestOrchestrator(t, repo, mainline)
	o.opts.OpusBudgetPct = 0.10
	o.totalProcessed = 9
	o.opusTasksUsed = 1

	cfg := o.tieredConfig(&board.Task{ID: "t"})
	require.NotNil(t, cfg.OpusBudgetAllowed)
	require.False(t, cfg.OpusBudgetAllowed(), "gate should reflect the exhausted opus budget")

	o.opusTasksUsed = 0
	require.True(t, cfg.OpusBudgetAllowed(), "gate closes over the Orchestrator, so it reflects live state")
}

func TestOrchestrator_IngestWorkerResultCountsSelfEscalatedOpus(t *testing.T) {
	requireGit(t)
	repo, mainline := newMainRepo(t)
	o, _ := newTestOrchestrator(t, repo, mainline)

	task := &board.Task{ID: "t"}
	res := &worker.Result{TaskID: "t", Outcome: worker.OutcomeFailed, FinalTier: "opus"}

	o.ingestWorkerResult(context.Background(), task, nil, res, "haiku")
	require.Equal(t, 1, o.opusTasksUsed, "worker-driven escalation to opus should count, since tieredConfig never saw it")

	o.ingestWorkerResult(context.Background(), task, nil, res, "opus")
	require.Equal(t, 1, o.opusTasksUsed, "a task that already started at opus was counted by tieredConfig, not counted again here")
}

func TestParseDecompositionPlan_FencedJSON(t *testing.T) {
	raw := "Splitting this up:\n```json\n[{\"objective\":\"build the API\",\"estimated_files\":[\"api.go\"]},{\"objective\":\"build the CLI\",\"estimated_files\":[\"cli.go\"]}]\n```\n"
	tasks, err := parseDecompositionPlan("parent-1", raw)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	require.Equal(t, "parent-1", tasks[0].ParentID)
	require.Equal(t, []string{"api.go"}, tasks[0].EstimatedFiles)
}

func TestParseDecompositionPlan_BulletedFallback(t *testing.T) {
	raw := "I'd split this into:\n- build the API layer\n- build the CLI layer\n"
	tasks, err := parseDecompositionPlan("parent-2", raw)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	require.Equal(t, "build the API layer", tasks[0].Objective)
}

func TestParseDecompositionPlan_UnparseableReturnsError(t *testing.T) {
	_, err := parseDecompositionPlan("parent-3", "no structure here at all")
	require.Error(t, err)
}

func TestOrchestrator_MetaTaskAppliesAddRecommendationWithoutWorktree(t *testing.T) {
	requireGit(t)
	repo, mainline := newMainRepo(t)
	o, store := newTestOrchestrator(t, repo, mainline)

	runner := o.deps.Runner.(*agent.MockRunner)
	runner.SetResponse(&agent.Result{Output: `
` + "```json" + `
[{"kind":"add","payload":{"objective":"follow up on flaky test","priority":"7"},"confidence":0.9,"rationale":"seen twice this week"}]
` + "```" + `
`})

	ctx := context.Background()
	require.NoError(t, store.Add(ctx, &board.Task{ID: "meta-1", Objective: "[meta:audit] scan for flaky tests", Status: board.StatusPending, Priority: 10}))

	summary, err := o.RunOne(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"meta-1"}, summary.Admitted)
	require.Empty(t, summary.Outcomes, "meta-tasks bypass the worker phase loop entirely")

	got, err := store.Get(ctx, "meta-1")
	require.NoError(t, err)
	require.Equal(t, board.StatusComplete, got.Status)

	all, err := store.List(ctx, board.Filter{})
	require.NoError(t, err)
	var sawNewTask bool
	for _, task := range all {
		if task.ID != "meta-1" && task.Objective == "follow up on flaky test" {
			sawNewTask = true
			require.Equal(t, 7, task.Priority)
		}
	}
	require.True(t, sawNewTask, "expected the add recommendation to create a new board task")

	entries, err := os.ReadDir(filepath.Join(repo, ".undercity", "siblings"))
	if err == nil {
		require.Empty(t, entries, "meta-task should never create a worktree")
	}
}

func TestOrchestrator_MetaTaskDropsLowConfidenceRecommendation(t *testing.T) {
	requireGit(t)
	repo, mainline := newMainRepo(t)
	o, store := newTestOrchestrator(t, repo, mainline)

	runner := o.deps.Runner.(*agent.MockRunner)
	runner.SetResponse(&agent.Result{Output: `[{"kind":"add","payload":{"objective":"low confidence add"},"confidence":0.2,"rationale":"guess"}]`})

	ctx := context.Background()
	require.NoError(t, store.Add(ctx, &board.Task{ID: "meta-2", Objective: "[meta:audit] propose cleanup", Status: board.StatusPending, Priority: 10}))

	_, err := o.RunOne(ctx)
	require.NoError(t, err)

	all, err := store.List(ctx, board.Filter{})
	require.NoError(t, err)
	for _, task := range all {
		require.NotEqual(t, "low confidence add", task.Objective, "recommendation below the confidence floor must not be applied")
	}
}

func TestPreservedRing_EvictsOldestPastCapacity(t *testing.T) {
	dir := t.TempDir()
	r := newPreservedRing(dir, 2)
	r.add(preservedEntry{TaskID: "a", At: time.Now()})
	r.add(preservedEntry{TaskID: "b", At: time.Now()})
	r.add(preservedEntry{TaskID: "c", At: time.Now()})

	entries := r.list()
	require.Len(t, entries, 2)
	require.Equal(t, "b", entries[0].TaskID)
	require.Equal(t, "c", entries[1].TaskID)

	reloaded := newPreservedRing(dir, 2)
	require.Len(t, reloaded.list(), 2)
}
