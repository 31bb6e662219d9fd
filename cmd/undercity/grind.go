package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"undercity/internal/telemetry"
)

var grindCmd = &cobra.Command{
	Use:   "grind",
	Short: "Run an admission-loop batch against the task board",
	RunE: func(cmd *cobra.Command, args []string) error {
		parallelism, _ := cmd.Flags().GetInt("parallelism")
		count, _ := cmd.Flags().GetInt("count")
		startingModel, _ := cmd.Flags().GetString("starting-model")
		pushOnSuccess, _ := cmd.Flags().GetBool("push-on-success")
		decomposeOn, _ := cmd.Flags().GetBool("decompose-on")
		verifyRetries, _ := cmd.Flags().GetInt("verify-retry")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		if parallelism > 0 {
			viper.Set("max_concurrent", parallelism)
		}
		if startingModel != "" {
			viper.Set("starting_tier", startingModel)
		}
		if verifyRetries > 0 {
			viper.Set("max_retries_per_tier", verifyRetries)
		}
		viper.Set("push_on_success", pushOnSuccess)
		viper.Set("decompose_on", decomposeOn)

		w, err := buildOrchestrator()
		if err != nil {
			return err
		}
		defer w.Board.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if dryRun {
			admitted, deferred, err := w.Orchestrator.Preview(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "would admit: %v\nwould defer: %v\n", admitted, deferred)
			return nil
		}

		if port := viper.GetInt("metrics_port"); port > 0 {
			go func() {
				if err := telemetry.StartMetricsServer(port); err != nil {
					telemetry.LogError("metrics server stopped", err)
				}
			}()
		}
		go func() {
			if err := w.Health.Run(ctx); err != nil && ctx.Err() == nil {
				telemetry.LogError("health monitor stopped unexpectedly", err)
			}
		}()

		summaries, err := w.Orchestrator.Grind(ctx, count)
		if err != nil {
			return err
		}

		for _, s := range summaries {
			if s.RateLimitPaused {
				fmt.Fprintln(cmd.ErrOrStderr(), "paused: rate limit reached")
				exit(exitRateLimited)
			}
			if s.EmergencyBlocked {
				fmt.Fprintln(cmd.ErrOrStderr(), "blocked: emergency mode is active")
				exit(exitEmergencyMode)
			}
		}

		fmt.Fprintf(cmd.OutOrStdout(), "ran %d batch(es)\n", len(summaries))
		return nil
	},
}

func init() {
	grindCmd.Flags().Int("parallelism", 0, "override max_concurrent for this run")
	grindCmd.Flags().Int("count", 0, "maximum number of batches to run (0 = until drained)")
	grindCmd.Flags().String("starting-model", "", "override starting_tier for this run")
	grindCmd.Flags().Bool("push-on-success", false, "push mainline after a successful merge")
	grindCmd.Flags().Bool("decompose-on", true, "allow workers to request decomposition")
	grindCmd.Flags().Int("verify-retry", 0, "override max_retries_per_tier for this run")
	grindCmd.Flags().Bool("dry-run", false, "show what would be admitted without running any workers")
	rootCmd.AddCommand(grindCmd)
}
