package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"undercity/internal/board"
)

var addCmd = &cobra.Command{
	Use:   "add <objective>",
	Short: "Add a new task to the board",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		priority, _ := cmd.Flags().GetInt("priority")
		tags, _ := cmd.Flags().GetStringSlice("tags")

		store, err := openBoard()
		if err != nil {
			return err
		}
		defer store.Close()

		objective := strings.Join(args, " ")
		t := &board.Task{
			ID:        fmt.Sprintf("task-%d", time.Now().UnixNano()),
			Objective: objective,
			Status:    board.StatusPending,
			Priority:  priority,
			Tags:      tags,
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()
		if err := store.Add(ctx, t); err != nil {
			return fmt.Errorf("add task: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "added %s: %s\n", t.ID, t.Objective)
		return nil
	},
}

func init() {
	addCmd.Flags().Int("priority", 0, "task priority (higher runs first)")
	addCmd.Flags().StringSlice("tags", nil, "tags to attach to the task")
	rootCmd.AddCommand(addCmd)
}
