package context

import (
	"fmt"
	"strings"

	"github.com/hrygo/agentcore/plugin/ai/memory"
)

// item is one candidate for the assembled context.
type item struct {
	episodic *memory.EpisodicMemory
	semantic *memory.ScoredConcept
	score    float64
	order    int // position within its section
}

func (it item) text() string {
	if it.semantic != nil {
		c := it.semantic.Memory
		line := "- " + c.Concept
		if c.Metadata.Category != "" {
			line += " (" + c.Metadata.Category + ")"
		}
		if c.Description != "" {
			line += ": " + c.Description
		}
		return line
	}
	ep := it.episodic
	role := ep.Metadata.Source
	if role == "" {
		role = memory.SourceUser
	}
	return fmt.Sprintf("[%s] %s: %s", ep.Timestamp.Format("2006-01-02 15:04"), role, ep.Content)
}

// Serialize renders a context in the fixed section order:
// semantic concepts, episodic memories oldest first, then the summary.
func Serialize(mc *MemoryContext) string {
	if mc == nil {
		return ""
	}
	var sb strings.Builder
	if len(mc.SemanticMemories) > 0 {
		sb.WriteString("## Known facts\n")
		for i := range mc.SemanticMemories {
			sb.WriteString(item{semantic: &mc.SemanticMemories[i]}.text())
			sb.WriteString("\n")
		}
	}
	if len(mc.EpisodicMemories) > 0 {
		sb.WriteString("## Conversation history\n")
		for i := range mc.EpisodicMemories {
			sb.WriteString(item{episodic: &mc.EpisodicMemories[i]}.text())
			sb.WriteString("\n")
		}
	}
	if mc.Summary != "" {
		sb.WriteString("## Earlier context (summary)\n")
		sb.WriteString(mc.Summary)
		sb.WriteString("\n")
	}
	return sb.String()
}
