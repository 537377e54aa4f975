package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hrygo/agentcore/plugin/ai/agent"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive session",
	Long: `Start an interactive session. Each line is one turn.

  /yes, /no   answer a pending confirmation explicitly
  /stats      print request metrics of this process
  /quit       leave`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "session %s (type /quit to leave)\n", currentSession())
		return chatLoop(ctx, a, cmd.InOrStdin(), out)
	},
}

func chatLoop(ctx context.Context, a *app, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		req := agent.TurnRequest{Query: line, UserID: userID, SessionID: currentSession()}
		switch line {
		case "/quit", "/exit":
			return nil
		case "/stats":
			stats, err := a.metrics.GetStats(ctx)
			if err != nil {
				return err
			}
			if err := printJSON(out, stats); err != nil {
				return err
			}
			continue
		case "/yes", "/no":
			affirm := line == "/yes"
			req.Query, req.ConfirmationReply = "", &affirm
		}

		resp, err := a.orchestrator.ExecuteTurn(ctx, req)
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		if err := printTurn(out, resp); err != nil {
			return err
		}
	}
}

func printTurn(w io.Writer, resp *agent.TurnResponse) error {
	if jsonOut {
		return printJSON(w, resp)
	}
	var tags []string
	if resp.Intent != nil {
		tags = append(tags, string(resp.Intent.Type))
	}
	if resp.LowConfidence {
		tags = append(tags, "low confidence")
	}
	if resp.State != "" {
		tags = append(tags, string(resp.State))
	}
	for _, d := range resp.Degraded {
		tags = append(tags, "degraded:"+d)
	}
	_, err := fmt.Fprintf(w, "%s\n  [%s, %dms]\n", resp.Response, strings.Join(tags, ", "), resp.LatencyMs)
	return err
}
