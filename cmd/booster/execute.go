package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/cuemby/booster/pkg/types"
	"github.com/spf13/cobra"
)

var executeCmd = &cobra.Command{
	Use:   "execute",
	Short: "Stage operations, submit them as one batch and wait for the outcome",
	Long: `Execute stages the given operations, submits them as one batch and waits
until every execution reaches a terminal status.

Examples:
  # Apply one booster and revert another
  booster execute --apply game-mode --revert disable-telemetry

  # Flip the current state of a booster
  booster execute --toggle clear-temp`,
	RunE: runExecute,
}

func init() {
	executeCmd.Flags().StringSlice("apply", nil, "Booster ids to apply")
	executeCmd.Flags().StringSlice("revert", nil, "Booster ids to revert")
	executeCmd.Flags().StringSlice("toggle", nil, "Booster ids to toggle")
	executeCmd.Flags().Duration("wait", 2*time.Minute, "How long to wait for the batch to settle")
	rootCmd.AddCommand(executeCmd)
}

func runExecute(cmd *cobra.Command, args []string) error {
	applyIDs, _ := cmd.Flags().GetStringSlice("apply")
	revertIDs, _ := cmd.Flags().GetStringSlice("revert")
	toggleIDs, _ := cmd.Flags().GetStringSlice("toggle")
	wait, _ := cmd.Flags().GetDuration("wait")

	if len(applyIDs)+len(revertIDs)+len(toggleIDs) == 0 {
		return fmt.Errorf("nothing to do: pass --apply, --revert or --toggle")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mgr, shutdown, err := startManager(ctx)
	if err != nil {
		return err
	}
	defer shutdown()

	ops := make(map[string]types.Operation)
	for _, id := range applyIDs {
		ops[id] = types.OperationApply
	}
	for _, id := range revertIDs {
		ops[id] = types.OperationRevert
	}
	if err := mgr.StageBatch(ops); err != nil {
		return fmt.Errorf("failed to stage: %w", err)
	}
	for _, id := range toggleIDs {
		if _, err := mgr.Toggle(id); err != nil {
			return fmt.Errorf("failed to toggle %s: %w", id, err)
		}
	}

	view := mgr.View()
	if len(view.Staged) == 0 {
		fmt.Println("Nothing staged: every requested operation matches the current state")
		return nil
	}
	for _, issue := range view.Issues {
		fmt.Printf("%-7s %s: %s\n", issue.Severity, issue.BoosterID, issue.Message)
	}

	report, err := mgr.Execute(ctx)
	if err != nil {
		return fmt.Errorf("batch failed: %w", err)
	}
	fmt.Printf("✓ Batch %s submitted (%d sent, %d failed)\n", report.Batch.ID, report.Submitted, report.Failed)

	waitCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	if err := mgr.WaitIdle(waitCtx, 200*time.Millisecond); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: batch did not settle: %v\n", err)
	}

	printExecutions(mgr.View().Executions)
	return nil
}

func printExecutions(records []*types.ExecutionRecord) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "BOOSTER\tOPERATION\tSTATUS\tPROGRESS\tERROR")
	for _, rec := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d%%\t%s\n", rec.BoosterID, rec.Operation, rec.Status, rec.Progress, rec.Error)
	}
	w.Flush()
}
