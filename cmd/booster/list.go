package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the booster catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		category, _ := cmd.Flags().GetString("category")

		mgr, shutdown, err := startManager(cmd.Context())
		if err != nil {
			return err
		}
		defer shutdown()

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tCATEGORY\tRISK\tAPPLIED\tNAME")
		for _, item := range mgr.View().Items {
			if category != "" && item.Category != category {
				continue
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\n", item.ID, item.Category, item.RiskLevel, item.IsApplied, item.Name)
		}
		return w.Flush()
	},
}

func init() {
	listCmd.Flags().String("category", "", "Only show this category")
	rootCmd.AddCommand(listCmd)
}
