package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var classifyCmd = &cobra.Command{
	Use:   "classify <query>",
	Short: "Classify a query without running it",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		intent, err := a.orchestrator.ClassifyQuery(ctx, userID, currentSession(), strings.Join(args, " "))
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOut {
			return printJSON(out, intent)
		}
		fmt.Fprintf(out, "intent:     %s\n", intent.Type)
		fmt.Fprintf(out, "confidence: %.2f\n", intent.Confidence)
		fmt.Fprintf(out, "source:     %s\n", intent.Source)
		if len(intent.RequiredTools) > 0 {
			fmt.Fprintf(out, "tools:      %s\n", strings.Join(intent.RequiredTools, ", "))
		}
		if intent.Override != "" {
			fmt.Fprintf(out, "override:   %s\n", intent.Override)
		}
		if intent.Reasoning != "" {
			fmt.Fprintf(out, "reasoning:  %s\n", intent.Reasoning)
		}
		return nil
	},
}
