// Package router classifies user queries into agent intents.
//
// Classification runs in two stages: a model-based stage (a keyword fast path
// for trivial chatter, then the LLM) and a deterministic override table that
// handles follow-ups of tool turns and replies to pending confirmations.
package router

import (
	"context"

	"github.com/hrygo/agentcore/plugin/ai/session"
)

// IntentType is the kind of handling a query needs.
type IntentType string

const (
	IntentConversation    IntentType = "conversation"
	IntentMemoryChat      IntentType = "memory_chat"
	IntentToolExecution   IntentType = "tool_execution"
	IntentHybrid          IntentType = "hybrid"
	IntentKnowledgeSearch IntentType = "knowledge_search"
	IntentUnknown         IntentType = "unknown"
)

// NeedsTools reports whether the intent requires planning and execution.
func (t IntentType) NeedsTools() bool {
	return t == IntentToolExecution || t == IntentHybrid
}

// Confirmation is a reply to a pending confirmation carried by a query.
type Confirmation string

const (
	ConfirmNone   Confirmation = ""
	ConfirmAffirm Confirmation = "affirm"
	ConfirmDeny   Confirmation = "deny"
)

// Intent sources.
const (
	SourceRule     = "rule"
	SourceLLM      = "llm"
	SourceFallback = "fallback"
)

// QueryIntent is the immutable classification of one query.
type QueryIntent struct {
	Type          IntentType `json:"type"`
	Confidence    float64    `json:"confidence"`
	RequiredTools []string   `json:"required_tools"`
	Reasoning     string     `json:"reasoning"`
	MemoryContext bool       `json:"memory_context"`

	// Confirmation is set when the query resolves a pending confirmation.
	Confirmation Confirmation `json:"confirmation,omitempty"`
	// Source names the stage that produced Type.
	Source string `json:"source"`
	// Override names the override rule that fired, if any.
	Override string `json:"override,omitempty"`
	// Degraded is true when the LLM stage failed and a fallback was used.
	Degraded bool `json:"degraded,omitempty"`
}

// ToolInfo describes a tool the classifier may route to.
type ToolInfo struct {
	Name        string
	Description string
}

// ClassifyRequest carries a query and what is known about its session.
type ClassifyRequest struct {
	Query string
	// Prior is the previous turn of the session, nil for the first turn.
	Prior *session.PriorTurn
	// Tail is a short window of the conversation before Query.
	Tail []session.Message
	// PendingConfirmation is true while a mutating plan awaits a yes/no reply.
	PendingConfirmation bool
	Tools               []ToolInfo
}

// IntentClassifier classifies queries. Classify always returns a well-typed
// intent; failures of the model stage degrade to IntentUnknown.
type IntentClassifier interface {
	Classify(ctx context.Context, req ClassifyRequest) *QueryIntent
}
