package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"undercity/internal/emergency"
)

var emergencyCmd = &cobra.Command{
	Use:   "emergency",
	Short: "Inspect or clear emergency mode",
	RunE: func(cmd *cobra.Command, args []string) error {
		statusFlag, _ := cmd.Flags().GetBool("status")
		checkFlag, _ := cmd.Flags().GetBool("check")
		clearFlag, _ := cmd.Flags().GetBool("clear")

		stateDir := resolvedStateDir()
		guard, err := emergency.New(stateDir, viper.GetInt("max_emergency_fix_attempts"))
		if err != nil {
			return fmt.Errorf("open emergency guard: %w", err)
		}

		switch {
		case clearFlag:
			if err := guard.Clear(); err != nil {
				return fmt.Errorf("clear emergency mode: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "emergency mode cleared")
			return nil
		case checkFlag:
			repoPath, err := os.Getwd()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), time.Duration(viper.GetInt("verify_timeout_seconds"))*time.Second)
			defer cancel()
			if err := guard.PreMergeHealthCheck(ctx, repoPath, time.Duration(viper.GetInt("verify_timeout_seconds"))*time.Second); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "mainline health check failed: %v\n", err)
				exit(exitEmergencyMode)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "mainline health check passed")
			return nil
		case statusFlag:
			fallthrough
		default:
			st := guard.Status()
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(st)
		}
	},
}

func init() {
	emergencyCmd.Flags().Bool("status", true, "print current emergency state")
	emergencyCmd.Flags().Bool("check", false, "run mainline's health check now")
	emergencyCmd.Flags().Bool("clear", false, "clear emergency mode")
	rootCmd.AddCommand(emergencyCmd)
}
