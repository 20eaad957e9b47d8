package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Manage the research corpus",
}

var sourcesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List ingested sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rt, err := openRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.Close(context.Background())

		sources, err := rt.store.ListSources(ctx)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), map[string]any{"sources": sources})
	},
}

var sourcesDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a source and its chunks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid source id %q: %w", args[0], err)
		}

		ctx := cmd.Context()
		rt, err := openRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.Close(context.Background())

		if err := rt.store.DeleteSource(ctx, id); err != nil {
			return fmt.Errorf("delete source %s: %w", id, err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "deleted", id)
		return nil
	},
}

func init() {
	sourcesCmd.AddCommand(sourcesListCmd, sourcesDeleteCmd)
	rootCmd.AddCommand(sourcesCmd)
}
