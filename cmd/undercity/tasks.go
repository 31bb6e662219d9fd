package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"undercity/internal/board"
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List tasks on the board",
	RunE: func(cmd *cobra.Command, args []string) error {
		statusFlag, _ := cmd.Flags().GetString("status")

		store, err := openBoard()
		if err != nil {
			return err
		}
		defer store.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		tasks, err := store.List(ctx, board.Filter{Status: board.Status(statusFlag)})
		if err != nil {
			return fmt.Errorf("list tasks: %w", err)
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tSTATUS\tPRIORITY\tPARENT\tOBJECTIVE")
		for _, t := range tasks {
			objective := t.Objective
			if len(objective) > 60 {
				objective = objective[:57] + "..."
			}
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", t.ID, t.Status, t.Priority, t.ParentID, objective)
		}
		return tw.Flush()
	},
}

func init() {
	tasksCmd.Flags().String("status", "", "filter by status (pending, in_progress, complete, failed, blocked, decomposed)")
	rootCmd.AddCommand(tasksCmd)
}
