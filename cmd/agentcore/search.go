package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hrygo/agentcore/plugin/ai"
)

var searchLimit int

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search episodic and semantic memory",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.orchestrator.SearchMemories(ctx, userID, strings.Join(args, " "), searchLimit)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOut {
			return printJSON(out, res)
		}
		fmt.Fprintf(out, "episodes (%d)\n", len(res.Episodes))
		for _, e := range res.Episodes {
			fmt.Fprintf(out, "  %.2f  %s  %s: %s\n", e.Score,
				e.Memory.Timestamp.Format("2006-01-02 15:04"), e.Memory.Metadata.Source, ai.Truncate(e.Memory.Content, 120))
		}
		fmt.Fprintf(out, "concepts (%d)\n", len(res.Concepts))
		for _, c := range res.Concepts {
			fmt.Fprintf(out, "  %.2f  %s: %s\n", c.Similarity, c.Memory.Concept, ai.Truncate(c.Memory.Description, 120))
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().IntVar(&searchLimit, "limit", 10, "maximum hits per memory layer")
}
