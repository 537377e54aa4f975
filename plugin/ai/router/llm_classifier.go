package router

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/hrygo/agentcore/internal/observability"
	"github.com/hrygo/agentcore/plugin/ai"
)

const classificationPrompt = `You classify requests for an assistant that can chat, recall the user's
conversation memory, and call tools.

Intent types:
- conversation: small talk or general questions that need neither memory nor tools
- memory_chat: questions about what the user said or did earlier in this or past conversations
- tool_execution: requests that need one or more of the available tools
- hybrid: requests that need tools AND the user's remembered context
- knowledge_search: questions about facts the user taught the assistant
- unknown: none of the above

Available tools:
%s

Respond with a single JSON object and nothing else:
{"type": "<intent type>", "confidence": <0..1>, "required_tools": ["<tool name>"], "reasoning": "<one sentence>", "memory_context": <true|false>}`

// llmIntent is the response shape requested from the model.
type llmIntent struct {
	Type          string   `json:"type"`
	Confidence    float64  `json:"confidence"`
	RequiredTools []string `json:"required_tools"`
	Reasoning     string   `json:"reasoning"`
	MemoryContext *bool    `json:"memory_context"`
}

// LLMClassifier is the model-based classification stage.
type LLMClassifier struct {
	llm   ai.LLMService
	model string
}

// NewLLMClassifier creates the model stage. model may be empty to use the service default.
func NewLLMClassifier(llm ai.LLMService, model string) *LLMClassifier {
	return &LLMClassifier{llm: llm, model: model}
}

// Classify asks the model for an intent. Transient failures are retried by
// the LLM service, so the returned error is final; parse failures are not
// errors and yield an unknown intent.
func (c *LLMClassifier) Classify(ctx context.Context, req ClassifyRequest) (*QueryIntent, error) {
	messages := c.buildMessages(req)
	opts := []ai.ChatOption{
		ai.WithOperation("classify"),
		ai.WithJSONMode(),
		ai.WithTemperature(0.1),
		ai.WithMaxTokens(256),
	}
	if c.model != "" {
		opts = append(opts, ai.WithModel(c.model))
	}

	content, err := c.llm.Chat(ctx, messages, opts...)
	if err != nil {
		return nil, err
	}

	return c.parseResponse(ctx, content, req.Tools), nil
}

func (c *LLMClassifier) buildMessages(req ClassifyRequest) []ai.Message {
	var tools strings.Builder
	if len(req.Tools) == 0 {
		tools.WriteString("(none)\n")
	}
	for _, t := range req.Tools {
		fmt.Fprintf(&tools, "- %s: %s\n", t.Name, t.Description)
	}

	var user strings.Builder
	if len(req.Tail) > 0 {
		user.WriteString("Recent conversation:\n")
		for _, m := range req.Tail {
			fmt.Fprintf(&user, "%s: %s\n", m.Role, ai.Truncate(m.Content, 300))
		}
		user.WriteString("\n")
	}
	if req.Prior != nil {
		fmt.Fprintf(&user, "Previous turn was classified as: %s\n\n", req.Prior.IntentType)
	}
	fmt.Fprintf(&user, "Request: %s", req.Query)

	return []ai.Message{
		ai.SystemPrompt(fmt.Sprintf(classificationPrompt, strings.TrimRight(tools.String(), "\n"))),
		ai.UserMessage(user.String()),
	}
}

// parseResponse applies the layered parse and validates the result.
func (c *LLMClassifier) parseResponse(ctx context.Context, content string, tools []ToolInfo) *QueryIntent {
	var resp llmIntent
	if _, err := ai.ParseJSON(content, &resp); err != nil {
		observability.LoggerFrom(ctx).Warn("failed to parse classification", "error", err)
		return &QueryIntent{
			Type:      IntentUnknown,
			Reasoning: "parse failure",
			Source:    SourceFallback,
		}
	}

	intent := &QueryIntent{
		Type:       toIntentType(resp.Type),
		Confidence: clamp01(resp.Confidence),
		Reasoning:  strings.TrimSpace(resp.Reasoning),
		Source:     SourceLLM,
	}

	// Tools the registry does not know are dropped here; the planner re-checks.
	for _, name := range resp.RequiredTools {
		if hasTool(tools, name) && !slices.Contains(intent.RequiredTools, name) {
			intent.RequiredTools = append(intent.RequiredTools, name)
		}
	}

	if resp.MemoryContext != nil {
		intent.MemoryContext = *resp.MemoryContext
	}
	switch intent.Type {
	case IntentMemoryChat, IntentHybrid, IntentKnowledgeSearch:
		intent.MemoryContext = true
	}
	return intent
}

func toIntentType(s string) IntentType {
	t := IntentType(strings.ToLower(strings.TrimSpace(s)))
	switch t {
	case IntentConversation, IntentMemoryChat, IntentToolExecution, IntentHybrid, IntentKnowledgeSearch:
		return t
	default:
		return IntentUnknown
	}
}

func hasTool(tools []ToolInfo, name string) bool {
	return slices.ContainsFunc(tools, func(t ToolInfo) bool { return t.Name == name })
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
