package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"undercity/internal/board"
)

var humanInputCmd = &cobra.Command{
	Use:   "human-input",
	Short: "List, provide guidance for, or retry tasks stuck on human input",
	RunE: func(cmd *cobra.Command, args []string) error {
		listFlag, _ := cmd.Flags().GetBool("list")
		taskID, _ := cmd.Flags().GetString("provide")
		guidance, _ := cmd.Flags().GetString("guidance")
		retryID, _ := cmd.Flags().GetString("retry")

		store, err := openBoard()
		if err != nil {
			return err
		}
		defer store.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		switch {
		case taskID != "":
			t, err := store.Get(ctx, taskID)
			if err != nil {
				return fmt.Errorf("get task %s: %w", taskID, err)
			}
			if t.HandoffContext == nil {
				t.HandoffContext = &board.HandoffContext{}
			}
			t.HandoffContext.HumanGuidance = guidance
			t.HandoffContext.Retry = true
			t.NeedsHumanInput = false
			t.Status = board.StatusPending
			if err := store.Add(ctx, t); err != nil {
				return fmt.Errorf("update task %s: %w", taskID, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "guidance recorded for %s, requeued as pending\n", taskID)
			return nil

		case retryID != "":
			t, err := store.Get(ctx, retryID)
			if err != nil {
				return fmt.Errorf("get task %s: %w", retryID, err)
			}
			t.NeedsHumanInput = false
			t.Status = board.StatusPending
			if t.HandoffContext != nil {
				t.HandoffContext.Retry = true
			}
			if err := store.Add(ctx, t); err != nil {
				return fmt.Errorf("update task %s: %w", retryID, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "requeued %s as pending\n", retryID)
			return nil

		case listFlag:
			fallthrough
		default:
			tasks, err := store.List(ctx, board.Filter{})
			if err != nil {
				return fmt.Errorf("list tasks: %w", err)
			}
			for _, t := range tasks {
				if !t.NeedsHumanInput {
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", t.ID, t.Status, t.Objective)
			}
			return nil
		}
	},
}

func init() {
	humanInputCmd.Flags().Bool("list", true, "list tasks needing human input")
	humanInputCmd.Flags().String("provide", "", "task ID to provide guidance for")
	humanInputCmd.Flags().String("guidance", "", "guidance text to attach (used with --provide)")
	humanInputCmd.Flags().String("retry", "", "task ID to requeue without changing guidance")
	rootCmd.AddCommand(humanInputCmd)
}
