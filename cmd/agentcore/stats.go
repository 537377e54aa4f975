package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show what is stored in memory for the user",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		stats, err := a.orchestrator.GetMemoryStats(ctx, userID)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOut {
			return printJSON(out, stats)
		}
		fmt.Fprintf(out, "user:               %s\n", stats.UserID)
		fmt.Fprintf(out, "episodes:           %d in %d sessions\n", stats.EpisodicCount, stats.SessionCount)
		fmt.Fprintf(out, "concepts:           %d\n", stats.SemanticCount)
		fmt.Fprintf(out, "average importance: %.2f\n", stats.AverageImportance)
		if !stats.LastExtraction.IsZero() {
			fmt.Fprintf(out, "last extraction:    %s\n", stats.LastExtraction.Format("2006-01-02 15:04:05"))
		}
		categories := make([]string, 0, len(stats.ConceptsByCategory))
		for c := range stats.ConceptsByCategory {
			categories = append(categories, c)
		}
		sort.Strings(categories)
		for _, c := range categories {
			fmt.Fprintf(out, "  %-18s %d\n", c, stats.ConceptsByCategory[c])
		}
		return nil
	},
}
