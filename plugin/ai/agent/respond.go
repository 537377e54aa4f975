package agent

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hrygo/agentcore/plugin/ai"
	"github.com/hrygo/agentcore/plugin/ai/agent/tools"
	aicontext "github.com/hrygo/agentcore/plugin/ai/context"
	"github.com/hrygo/agentcore/plugin/ai/router"
)

const (
	nothingPendingResponse = "There is nothing waiting for your confirmation."
	sessionFailureResponse = "I couldn't access this conversation's state, so nothing was executed. Please try again."
	cancelledResponse      = "Okay, I cancelled it. Nothing was changed."
	unavailableResponse    = "I'm having trouble reaching the language model right now. Please try again in a moment."

	maxResultChars = 1500
)

func confirmationIntent(affirm bool) *router.QueryIntent {
	c := router.ConfirmDeny
	if affirm {
		c = router.ConfirmAffirm
	}
	return &router.QueryIntent{
		Type:         router.IntentToolExecution,
		Confidence:   1,
		Reasoning:    "explicit confirmation reply",
		Confirmation: c,
		Source:       router.SourceRule,
	}
}

func confirmationText(affirm bool) string {
	if affirm {
		return "yes"
	}
	return "no"
}

// confirmationQuestion describes the gated plan deterministically.
func confirmationQuestion(p *tools.PendingConfirmation) string {
	if p == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString("Before I continue, please confirm. I'm about to run:\n")
	for _, s := range p.Plan.Executable() {
		fmt.Fprintf(&b, "- %s(%s)\n", s.ToolName, formatArgs(s.Args))
	}
	fmt.Fprintf(&b, "%s changes data. Reply yes to proceed or no to cancel.", strings.Join(p.Tools, ", "))
	return b.String()
}

func formatArgs(args map[string]any) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + tools.ArgString(args[k])
	}
	return strings.Join(parts, ", ")
}

// formatResults renders step outcomes for the synthesis prompt.
func formatResults(resp *TurnResponse) string {
	if len(resp.Results) == 0 {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Execution state: %s\n", resp.State)
	for _, r := range resp.Results {
		fmt.Fprintf(&b, "- %s %s: %s", r.StepID, r.ToolName, r.Status)
		switch {
		case r.Success:
			fmt.Fprintf(&b, "\n  result: %s", ai.Truncate(string(r.Result), maxResultChars))
		case r.Error != "":
			fmt.Fprintf(&b, " (%s)", r.Error)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// synthesisInput is the final user message of the synthesis call.
func synthesisInput(query string, resp *TurnResponse) string {
	var b strings.Builder
	b.WriteString(section("What I remember about the user", aicontext.Serialize(resp.MemoryContext)))
	b.WriteString(section("Tool results", formatResults(resp)))
	if resp.Intent != nil {
		fmt.Fprintf(&b, "Detected intent: %s\n\n", resp.Intent.Type)
	}
	fmt.Fprintf(&b, "User: %s", query)
	return b.String()
}

// fallbackResponse answers without the model.
func fallbackResponse(resp *TurnResponse) string {
	if len(resp.Results) == 0 {
		return unavailableResponse
	}
	var b strings.Builder
	switch resp.State {
	case tools.StateCompleted:
		b.WriteString("All steps completed.\n")
	case tools.StatePartial:
		b.WriteString("Some steps completed, others did not.\n")
	default:
		b.WriteString("The requested actions did not complete.\n")
	}
	for _, r := range resp.Results {
		fmt.Fprintf(&b, "- %s: %s", r.ToolName, r.Status)
		switch {
		case r.Success:
			fmt.Fprintf(&b, " %s", ai.Truncate(string(r.Result), 300))
		case r.Error != "":
			fmt.Fprintf(&b, " (%s)", r.Error)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
