package router

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	aierrors "github.com/hrygo/agentcore/internal/errors"
	"github.com/hrygo/agentcore/plugin/ai"
	"github.com/hrygo/agentcore/plugin/ai/metrics"
	"github.com/hrygo/agentcore/plugin/ai/session"
)

var testTools = []ToolInfo{
	{Name: "get_user_posts", Description: "List the posts of a user"},
	{Name: "get_post_comments", Description: "List the comments of a post"},
	{Name: "get_user", Description: "Fetch a user profile"},
	{Name: "create_post", Description: "Create a post"},
	{Name: "delete_post", Description: "Delete a post"},
	{Name: "search_memories", Description: "Search the user's memories"},
}

func newTestService(llm ai.LLMService) *Service {
	return NewService(llm, Config{}, metrics.Noop())
}

func TestClassify_LLMResult(t *testing.T) {
	llm := ai.NewMockLLMService(nil).Enqueue("classify",
		`{"type":"tool_execution","confidence":0.9,"required_tools":["get_user_posts","hallucinated_api"],"reasoning":"needs posts","memory_context":false}`)
	s := newTestService(llm)

	intent := s.Classify(context.Background(), ClassifyRequest{Query: "Get posts for user 1", Tools: testTools})
	assert.Equal(t, IntentToolExecution, intent.Type)
	assert.InDelta(t, 0.9, intent.Confidence, 1e-9)
	assert.Equal(t, []string{"get_user_posts"}, intent.RequiredTools)
	assert.Equal(t, SourceLLM, intent.Source)
	assert.Empty(t, intent.Override)
	assert.Contains(t, llm.LastUserMessage("classify"), "Get posts for user 1")
}

func TestClassify_LayeredParse(t *testing.T) {
	tests := []struct {
		name       string
		response   string
		wantType   IntentType
		wantReason string
		wantMemory bool
	}{
		{
			name:     "strict json",
			response: `{"type":"memory_chat","confidence":0.8,"reasoning":"recall"}`,
			wantType: IntentMemoryChat, wantReason: "recall", wantMemory: true,
		},
		{
			name:     "json inside prose and fences",
			response: "Sure!\n```json\n{\"type\": \"conversation\", \"confidence\": 0.7, \"reasoning\": \"chat {x}\"}\n```",
			wantType: IntentConversation, wantReason: "chat {x}",
		},
		{
			name:     "unparseable",
			response: "I think the user wants posts.",
			wantType: IntentUnknown, wantReason: "parse failure",
		},
		{
			name:     "unknown intent label",
			response: `{"type":"shopping","confidence":0.99}`,
			wantType: IntentUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestService(ai.NewMockLLMService(nil).Enqueue("classify", tt.response))
			intent := s.Classify(context.Background(), ClassifyRequest{Query: "what about it", Tools: testTools})
			assert.Equal(t, tt.wantType, intent.Type)
			assert.Equal(t, tt.wantReason, intent.Reasoning)
			assert.Equal(t, tt.wantMemory, intent.MemoryContext)
			if tt.wantReason == "parse failure" {
				assert.Zero(t, intent.Confidence)
			}
		})
	}
}

func TestClassify_FollowUpOverride(t *testing.T) {
	// The model misreads the elliptical follow-up as memory chat.
	llm := ai.NewMockLLMService(nil).Enqueue("classify",
		`{"type":"memory_chat","confidence":0.85,"required_tools":[],"reasoning":"refers to earlier conversation"}`)
	s := newTestService(llm)

	intent := s.Classify(context.Background(), ClassifyRequest{
		Query: "now get me all posts of user two",
		Prior: &session.PriorTurn{
			Query:         "get me user one",
			IntentType:    string(IntentToolExecution),
			RequiredTools: []string{"get_user"},
		},
		Tools: testTools,
	})

	assert.Equal(t, IntentToolExecution, intent.Type)
	assert.Equal(t, "tool_followup", intent.Override)
	assert.Equal(t, []string{"get_user_posts"}, intent.RequiredTools)
	assert.GreaterOrEqual(t, intent.Confidence, 0.8)
}

func TestClassify_FollowUpKeepsModelTools(t *testing.T) {
	llm := ai.NewMockLLMService(nil).Enqueue("classify",
		`{"type":"conversation","confidence":0.6,"required_tools":["get_post_comments"]}`)
	s := newTestService(llm)

	intent := s.Classify(context.Background(), ClassifyRequest{
		Query: "Then the comments of the first one",
		Prior: &session.PriorTurn{IntentType: string(IntentToolExecution)},
		Tools: testTools,
	})
	assert.Equal(t, IntentToolExecution, intent.Type)
	assert.Equal(t, []string{"get_post_comments"}, intent.RequiredTools)
}

func TestClassify_FollowUpNeedsToolPrior(t *testing.T) {
	llm := ai.NewMockLLMService(nil).Enqueue("classify", `{"type":"memory_chat","confidence":0.85}`)
	s := newTestService(llm)

	intent := s.Classify(context.Background(), ClassifyRequest{
		Query: "now tell me what I said",
		Prior: &session.PriorTurn{IntentType: string(IntentMemoryChat)},
		Tools: testTools,
	})
	assert.Equal(t, IntentMemoryChat, intent.Type)
	assert.Empty(t, intent.Override)
}

func TestClassify_FollowUpSurvivesLLMFailure(t *testing.T) {
	llm := ai.NewMockLLMService(nil).EnqueueError("classify", errors.New("boom"))
	s := newTestService(llm)

	intent := s.Classify(context.Background(), ClassifyRequest{
		Query: "also the posts of user 3",
		Prior: &session.PriorTurn{IntentType: string(IntentToolExecution), RequiredTools: []string{"get_user_posts"}},
		Tools: testTools,
	})
	assert.Equal(t, IntentToolExecution, intent.Type)
	assert.True(t, intent.Degraded)
	assert.Equal(t, []string{"get_user_posts"}, intent.RequiredTools)
}

func TestClassify_PendingConfirmation(t *testing.T) {
	tests := []struct {
		query   string
		pending bool
		want    Confirmation
	}{
		{query: "yes", pending: true, want: ConfirmAffirm},
		{query: "Yes, please!", pending: true, want: ConfirmAffirm},
		{query: "go ahead", pending: true, want: ConfirmAffirm},
		{query: "no", pending: true, want: ConfirmDeny},
		{query: "No thanks.", pending: true, want: ConfirmDeny},
		{query: "don't", pending: true, want: ConfirmDeny},
		{query: "yes", pending: false, want: ConfirmNone},
		{query: "now list my posts", pending: true, want: ConfirmNone},
		{query: "okay now delete the other one", pending: true, want: ConfirmNone},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			llm := ai.NewMockLLMService(func(context.Context, []ai.Message, ai.ChatOptions) (string, error) {
				return `{"type":"conversation","confidence":0.7}`, nil
			})
			s := newTestService(llm)

			intent := s.Classify(context.Background(), ClassifyRequest{
				Query:               tt.query,
				PendingConfirmation: tt.pending,
				Tools:               testTools,
			})
			assert.Equal(t, tt.want, intent.Confirmation)
			if tt.want != ConfirmNone {
				assert.Equal(t, IntentToolExecution, intent.Type)
				assert.InDelta(t, 1.0, intent.Confidence, 1e-9)
			}
		})
	}
}

// Retries belong to the LLM service; the classifier calls it once.
func TestClassify_TransientErrorDegradesWithoutRetry(t *testing.T) {
	llm := ai.NewMockLLMService(nil).
		EnqueueError("classify", aierrors.LLMTimeout("slow", nil)).
		Enqueue("classify", `{"type":"knowledge_search","confidence":0.75}`)
	s := newTestService(llm)

	intent := s.Classify(context.Background(), ClassifyRequest{Query: "get posts", Tools: testTools})
	require.NotNil(t, intent)
	assert.Equal(t, IntentUnknown, intent.Type)
	assert.True(t, intent.Degraded)
	assert.Equal(t, 1, llm.CallCount("classify"))

	intent = s.Classify(context.Background(), ClassifyRequest{Query: "what is my favourite city", Tools: testTools})
	assert.Equal(t, IntentKnowledgeSearch, intent.Type)
	assert.Equal(t, 2, llm.CallCount("classify"))
}

func TestClassify_NonRetryableError(t *testing.T) {
	llm := ai.NewMockLLMService(nil).EnqueueError("classify", aierrors.CircuitOpen(errors.New("open")))
	s := newTestService(llm)

	intent := s.Classify(context.Background(), ClassifyRequest{Query: "get posts", Tools: testTools})
	assert.Equal(t, IntentUnknown, intent.Type)
	assert.Equal(t, 1, llm.CallCount("classify"))
}

func TestClassify_RuleFastPath(t *testing.T) {
	llm := ai.NewMockLLMService(nil)
	s := newTestService(llm)

	intent := s.Classify(context.Background(), ClassifyRequest{Query: "Hello there!"})
	assert.Equal(t, IntentConversation, intent.Type)
	assert.Equal(t, SourceRule, intent.Source)
	assert.Zero(t, llm.CallCount("classify"))
}

func TestClassify_NoLLM(t *testing.T) {
	s := NewService(nil, Config{}, nil)
	intent := s.Classify(context.Background(), ClassifyRequest{Query: "get posts of user 1", Tools: testTools})
	assert.Equal(t, IntentUnknown, intent.Type)
	assert.True(t, intent.Degraded)
}

func TestDeriveTools(t *testing.T) {
	assert.Equal(t, []string{"get_post_comments"}, deriveTools(words("then show the comments for that post"), testTools))
	assert.Equal(t, []string{"search_memories"}, deriveTools(words("also search my memory"), testTools))
	assert.Empty(t, deriveTools(words("now do something else"), testTools))
}

func TestIntentType_NeedsTools(t *testing.T) {
	assert.True(t, IntentToolExecution.NeedsTools())
	assert.True(t, IntentHybrid.NeedsTools())
	assert.False(t, IntentMemoryChat.NeedsTools())
	assert.False(t, IntentUnknown.NeedsTools())
}
