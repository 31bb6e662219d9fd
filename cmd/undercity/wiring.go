package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"undercity/internal/agent"
	"undercity/internal/board"
	"undercity/internal/config"
	"undercity/internal/emergency"
	"undercity/internal/filetracker"
	"undercity/internal/git"
	"undercity/internal/health"
	"undercity/internal/merge"
	"undercity/internal/notify"
	"undercity/internal/orchestrator"
	"undercity/internal/ratelimit"
	"undercity/internal/recovery"
	"undercity/internal/worker"
	"undercity/internal/worktree"
)

func resolvedStateDir() string {
	sd := viper.GetString("state_dir")
	if sd == "" {
		sd = ".undercity"
	}
	return sd
}

func projectName() string {
	wd, err := os.Getwd()
	if err != nil {
		return "undercity"
	}
	return filepath.Base(wd)
}

// openBoard is the narrow wiring path for commands that only read/write the
// task board (add, tasks, status) without spinning up a worker fleet.
func openBoard() (board.Store, error) {
	stateDir := resolvedStateDir()
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	return board.Open(stateDir)
}

// wiring bundles everything buildOrchestrator constructs, so callers can
// close/flush the pieces that need it after a run.
type wiring struct {
	Orchestrator *orchestrator.Orchestrator
	Board        board.Store
	Recovery     *recovery.Store
	RateLimit    *ratelimit.Tracker
	Emergency    *emergency.Guard
	Health       *health.Monitor
	Notifier     *notify.Manager
}

// buildOrchestrator constructs a fully wired Orchestrator from the current
// viper configuration. Every collaborator reads the same .undercity.yaml-
// sourced tunables the rest of the CLI surface validates against.
func buildOrchestrator() (*wiring, error) {
	stateDir := resolvedStateDir()
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}

	repoPath, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolve repository path: %w", err)
	}

	boardStore, err := board.Open(stateDir)
	if err != nil {
		return nil, fmt.Errorf("open task board: %w", err)
	}

	rec, err := recovery.New(stateDir)
	if err != nil {
		return nil, fmt.Errorf("open recovery store: %w", err)
	}

	rl, err := ratelimit.New(stateDir, ratelimit.Options{
		FiveHourPausePct: viper.GetFloat64("rate_limit_five_hour_pause_pct"),
		WeeklyPausePct:   viper.GetFloat64("rate_limit_weekly_pause_pct"),
	})
	if err != nil {
		return nil, fmt.Errorf("open rate-limit tracker: %w", err)
	}

	guard, err := emergency.New(stateDir, viper.GetInt("max_emergency_fix_attempts"))
	if err != nil {
		return nil, fmt.Errorf("open emergency guard: %w", err)
	}
	if os.Getenv(config.SkipEmergencyGateEnv) != "" {
		_ = guard.Clear()
	}

	monitor := health.NewMonitor(rec, health.Options{
		TickInterval:        time.Duration(viper.GetInt("health_tick_seconds")) * time.Second,
		StuckThreshold:      time.Duration(viper.GetInt("stuck_threshold_seconds")) * time.Second,
		MaxRecoveryAttempts: viper.GetInt("max_recovery_attempts"),
	}, slog.Default())

	notifier := notify.NewManager(func(msg string, args ...interface{}) {
		slog.Info(msg, args...)
	})

	pipeline := merge.New(git.NewClient(), agent.NewMockRunner(), merge.Options{
		MainRepoDir:        repoPath,
		MainlineBranch:     viper.GetString("main_branch"),
		VerifyTimeout:      time.Duration(viper.GetInt("verify_timeout_seconds")) * time.Second,
		MaxMergeRetryCount: viper.GetInt("max_merge_retry_count"),
		PushOnSuccess:      viper.GetBool("push_on_success"),
	}, slog.Default())

	opts := orchestrator.Options{
		MaxConcurrent:               viper.GetInt("max_concurrent"),
		SimilarityThreshold:         viper.GetFloat64("similarity_threshold"),
		ConflictConfidenceThreshold: viper.GetFloat64("conflict_confidence_threshold"),
		OpusBudgetPct:               viper.GetFloat64("opus_budget_pct"),
		MaxEmergencyFixAttempts:     viper.GetInt("max_emergency_fix_attempts"),
		WorktreesRingSize:           viper.GetInt("worktrees_ring_size"),
		StateDir:                    stateDir,
		DecomposeEnabled:            viper.GetBool("decompose_on"),
		WorkerConfig: worker.Config{
			StartingTier:           viper.GetString("starting_tier"),
			MaxTier:                viper.GetString("max_tier"),
			MaxAttempts:            viper.GetInt("max_attempts"),
			MaxRetriesPerTier:      viper.GetInt("max_retries_per_tier"),
			MaxReviewPassesPerTier: viper.GetInt("max_review_passes_per_tier"),
			MaxOpusReviewPasses:    viper.GetInt("max_opus_review_passes"),
			ReviewPassesEnabled:    viper.GetBool("review_passes_enabled"),
			AutoCommit:             viper.GetBool("auto_commit"),
			VerifyTimeout:          time.Duration(viper.GetInt("verify_timeout_seconds")) * time.Second,
		},
	}

	deps := orchestrator.Deps{
		Board:         boardStore,
		Worktrees:     worktree.NewManager(repoPath),
		Files:         filetracker.New(),
		RateLimit:     rl,
		Emergency:     guard,
		Health:        monitor,
		MergePipeline: pipeline,
		Recovery:      rec,
		Runner:        agent.NewMockRunner(),
		Notifier:      notifier,
		Project:       projectName(),
	}

	orch := orchestrator.New(opts, deps, slog.Default())
	return &wiring{
		Orchestrator: orch,
		Board:        boardStore,
		Recovery:     rec,
		RateLimit:    rl,
		Emergency:    guard,
		Health:       monitor,
		Notifier:     notifier,
	}, nil
}
