package main

import (
	"fmt"

	"github.com/cuemby/booster/pkg/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the booster configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init PATH",
	Short: "Write a configuration file with the defaults",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Default().Write(args[0]); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
		fmt.Printf("✓ Wrote %s\n", args[0])
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("Backend:     %s %s\n", cfg.Backend.Kind, cfg.Backend.URL)
		fmt.Printf("Categories:  %v (%s)\n", cfg.Catalog.Categories, cfg.Catalog.Language)
		fmt.Printf("Ingest:      gap %s, max pending %d, retention %s\n",
			cfg.Ingest.GapTimeout, cfg.Ingest.MaxPending, cfg.Ingest.Retention)
		fmt.Printf("Reconciler:  every %s, timeout %s\n", cfg.Reconciler.Interval, cfg.Reconciler.Timeout)
		fmt.Printf("Executor:    call delay %s\n", cfg.Executor.CallDelay)
		fmt.Printf("Data dir:    %s\n", cfg.DataDir)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}
