package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/cuemby/booster/pkg/storage"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show journaled executions",
	Long: `History reads the execution journal from the configured data directory.
The manager does not need to be running.

Examples:
  booster history --data-dir ./booster-data
  booster history --booster game-mode --limit 5
  booster history --batches
  booster history --prune 720h`,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().String("booster", "", "Only show this booster")
	historyCmd.Flags().Int("limit", 20, "Maximum entries, 0 for all")
	historyCmd.Flags().Bool("batches", false, "List batches instead of executions")
	historyCmd.Flags().Duration("prune", 0, "Delete entries older than this before listing")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	boosterID, _ := cmd.Flags().GetString("booster")
	limit, _ := cmd.Flags().GetInt("limit")
	batches, _ := cmd.Flags().GetBool("batches")
	prune, _ := cmd.Flags().GetDuration("prune")

	if cfg.DataDir == "" {
		return fmt.Errorf("no data directory configured: pass --data-dir or set dataDir")
	}

	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to open history: %w", err)
	}
	defer store.Close()

	if prune > 0 {
		removed, err := store.Prune(time.Now().Add(-prune))
		if err != nil {
			return fmt.Errorf("failed to prune history: %w", err)
		}
		fmt.Printf("✓ Pruned %d entries\n", removed)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	if batches {
		entries, err := store.ListBatches(limit)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "RECORDED\tBATCH\tSTATUS\tITEMS\tERROR")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
				e.RecordedAt.Format(time.RFC3339), e.Batch.ID, e.Batch.Status, len(e.Batch.BoosterIDs), e.Batch.Error)
		}
		return nil
	}

	var entries []*storage.ExecutionEntry
	if boosterID != "" {
		entries, err = store.ListExecutionsByBooster(boosterID, limit)
	} else {
		entries, err = store.ListExecutions(limit)
	}
	if err != nil {
		return err
	}

	fmt.Fprintln(w, "RECORDED\tBOOSTER\tOPERATION\tSTATUS\tBATCH\tERROR")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.RecordedAt.Format(time.RFC3339), e.Record.BoosterID, e.Record.Operation, e.Record.Status, e.BatchID, e.Record.Error)
	}
	return nil
}
