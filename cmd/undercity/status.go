package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"undercity/internal/board"
	"undercity/internal/emergency"
	"undercity/internal/ratelimit"
)

type statusReport struct {
	TaskCounts map[string]int    `json:"taskCounts"`
	Usage      ratelimit.Summary `json:"usage"`
	Emergency  emergency.State   `json:"emergency"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show a snapshot of the board, rate-limit budget, and emergency state",
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		stateDir := resolvedStateDir()

		store, err := openBoard()
		if err != nil {
			return err
		}
		defer store.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		tasks, err := store.List(ctx, board.Filter{})
		if err != nil {
			return fmt.Errorf("list tasks: %w", err)
		}
		counts := map[string]int{}
		for _, t := range tasks {
			counts[string(t.Status)]++
		}

		tracker, err := ratelimit.New(stateDir, ratelimit.Options{
			FiveHourPausePct: viper.GetFloat64("rate_limit_five_hour_pause_pct"),
			WeeklyPausePct:   viper.GetFloat64("rate_limit_weekly_pause_pct"),
		})
		if err != nil {
			return fmt.Errorf("open rate-limit tracker: %w", err)
		}

		guard, err := emergency.New(stateDir, viper.GetInt("max_emergency_fix_attempts"))
		if err != nil {
			return fmt.Errorf("open emergency guard: %w", err)
		}

		report := statusReport{
			TaskCounts: counts,
			Usage:      tracker.GetUsageSummary(),
			Emergency:  guard.Status(),
		}

		if asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		}

		fmt.Fprintln(cmd.OutOrStdout(), "tasks:")
		for _, s := range []board.Status{board.StatusPending, board.StatusInProgress, board.StatusComplete, board.StatusFailed, board.StatusBlocked, board.StatusDecomposed} {
			fmt.Fprintf(cmd.OutOrStdout(), "  %-12s %d\n", s, counts[string(s)])
		}
		fmt.Fprintf(cmd.OutOrStdout(), "rate limit: 5h %.1f%%, weekly %.1f%% (paused=%v)\n",
			report.Usage.FiveHourPct, report.Usage.WeeklyPct, report.Usage.Paused)
		fmt.Fprintf(cmd.OutOrStdout(), "emergency mode: active=%v reason=%q\n", report.Emergency.Active, report.Emergency.Reason)
		return nil
	},
}

func init() {
	statusCmd.Flags().Bool("json", false, "print as JSON")
	rootCmd.AddCommand(statusCmd)
}
