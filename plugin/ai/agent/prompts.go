// Package agent plans tool chains and runs one agent turn end to end.
package agent

import (
	"fmt"
	"strings"
	"time"
)

// PromptVersion identifies a specific version of a prompt template.
type PromptVersion string

const (
	// PromptV1 is the baseline prompt version.
	PromptV1 PromptVersion = "v1"
	// PromptV2 asks the synthesizer for shorter answers.
	PromptV2 PromptVersion = "v2"
)

// PromptConfig holds versioned templates of one prompt.
type PromptConfig struct {
	Version   PromptVersion
	Templates map[PromptVersion]string
}

// Template returns the active template, falling back to v1.
func (c *PromptConfig) Template() string {
	if t, ok := c.Templates[c.Version]; ok {
		return t
	}
	return c.Templates[PromptV1]
}

// SetVersion selects the active version.
func (c *PromptConfig) SetVersion(v PromptVersion) error {
	if _, ok := c.Templates[v]; !ok {
		return fmt.Errorf("prompt version %s not found", v)
	}
	c.Version = v
	return nil
}

// Prompts holds the planner and synthesizer prompts.
type Prompts struct {
	Planning  *PromptConfig
	Synthesis *PromptConfig
}

// DefaultPrompts returns the v1 prompts.
func DefaultPrompts() *Prompts {
	return &Prompts{
		Planning: &PromptConfig{
			Version:   PromptV1,
			Templates: map[PromptVersion]string{PromptV1: planningPromptV1},
		},
		Synthesis: &PromptConfig{
			Version: PromptV1,
			Templates: map[PromptVersion]string{
				PromptV1: synthesisPromptV1,
				PromptV2: synthesisPromptV2,
			},
		},
	}
}

const planningPromptV1 = `You turn a user request into a plan of tool calls.

Current time: %s

Available tools:
%s

Rules:
- Use only the tools listed above, with their exact parameter names.
- Give every step a short unique id such as "step1".
- A step that needs the output of another step lists that step in "depends_on"
  and refers to the value with a binding: "{{step1.path}}", where path is a
  JSON path into the earlier result, e.g. "{{step1.0.id}}" for the id of the
  first element of an array result.
- Steps without dependencies between them run in parallel.
- Never invent values the user did not give and no earlier step produces.
  Leave such parameters out.
- If the request cannot be planned, return no steps and ask one short question
  in "clarification".

Respond with a single JSON object and nothing else:
{"steps": [{"id": "step1", "tool": "<tool name>", "args": {"<param>": <value>}, "depends_on": []}], "clarification": ""}`

const synthesisPromptV1 = `You are a helpful assistant with long-term memory and access to tools.
Answer the user's latest message using the material below. Refer to remembered
facts and earlier conversation naturally when they are relevant. When tools ran,
report what they returned; when a tool failed, say plainly what did not work.
Do not claim actions that did not happen.%s`

const synthesisPromptV2 = `You are a concise assistant with long-term memory and access to tools.
Answer in at most three sentences using the material below. Report tool results
faithfully and mention failed tools.%s`

const lowConfidenceNote = `

The request was ambiguous. Give your best answer and briefly say what you assumed.`

// planningPrompt fills the planning template.
func (p *Prompts) planningPrompt(toolCatalog string, now time.Time) string {
	return fmt.Sprintf(p.Planning.Template(), now.Format(time.RFC3339), toolCatalog)
}

// synthesisPrompt fills the synthesis template.
func (p *Prompts) synthesisPrompt(lowConfidence bool) string {
	note := ""
	if lowConfidence {
		note = lowConfidenceNote
	}
	return fmt.Sprintf(p.Synthesis.Template(), note)
}

// section renders a titled block, or nothing when body is blank.
func section(title, body string) string {
	body = strings.TrimSpace(body)
	if body == "" {
		return ""
	}
	return "## " + title + "\n" + body + "\n\n"
}
