package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"undercity/internal/ratelimit"
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show rate-limit budget usage",
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		stateDir := resolvedStateDir()
		tracker, err := ratelimit.New(stateDir, ratelimit.Options{
			FiveHourPausePct: viper.GetFloat64("rate_limit_five_hour_pause_pct"),
			WeeklyPausePct:   viper.GetFloat64("rate_limit_weekly_pause_pct"),
		})
		if err != nil {
			return fmt.Errorf("open rate-limit tracker: %w", err)
		}

		summary := tracker.GetUsageSummary()
		if asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(summary)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "5h window:     %.1f%% (%d tokens)\n", summary.FiveHourPct, summary.FiveHourTokens)
		fmt.Fprintf(cmd.OutOrStdout(), "weekly window: %.1f%% (%d tokens)\n", summary.WeeklyPct, summary.WeeklyTokens)
		fmt.Fprintf(cmd.OutOrStdout(), "rate-limit hits: %d\n", summary.RateLimitHits)
		if summary.Paused {
			fmt.Fprintf(cmd.OutOrStdout(), "paused: %s\n", summary.PauseReason)
		}
		for _, model := range summary.SortedModels() {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s: %d tokens\n", model, summary.PerModel[model])
		}
		return nil
	},
}

func init() {
	usageCmd.Flags().Bool("json", false, "print as JSON")
	rootCmd.AddCommand(usageCmd)
}
