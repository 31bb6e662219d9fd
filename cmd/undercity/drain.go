package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"undercity/internal/recovery"
)

var drainCmd = &cobra.Command{
	Use:   "drain",
	Short: "Signal a running grind loop to stop admitting new work",
	RunE: func(cmd *cobra.Command, args []string) error {
		stateDir := resolvedStateDir()
		if err := os.MkdirAll(stateDir, 0o755); err != nil {
			return fmt.Errorf("create state dir: %w", err)
		}
		flagPath := filepath.Join(stateDir, "drain.flag")
		if err := recovery.AtomicWrite(flagPath, []byte("drain\n")); err != nil {
			return fmt.Errorf("write drain flag: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "drain requested: %s\n", flagPath)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(drainCmd)
}
