package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/agentcore/plugin/ai"
	"github.com/hrygo/agentcore/plugin/ai/agent/tools"
	aicontext "github.com/hrygo/agentcore/plugin/ai/context"
	"github.com/hrygo/agentcore/plugin/ai/memory"
	"github.com/hrygo/agentcore/plugin/ai/metrics"
	"github.com/hrygo/agentcore/plugin/ai/router"
	"github.com/hrygo/agentcore/plugin/ai/session"
)

type orchestratorFixture struct {
	o        *Orchestrator
	llm      *ai.MockLLMService
	episodic *memory.MockEpisodicManager
	semantic *memory.MockSemanticManager
	state    *session.MockStateService
	metrics  *metrics.Service
	posts    *tools.MockTool
	comments *tools.MockTool
	user     *tools.MockTool
	del      *tools.MockTool

	// synthesize answers the "synthesize" operation; nil echoes a fixed reply.
	synthesize func(prompt string) (string, error)
}

func newOrchestratorFixture(t *testing.T, cfg Config) *orchestratorFixture {
	t.Helper()
	f := &orchestratorFixture{
		episodic: &memory.MockEpisodicManager{},
		semantic: &memory.MockSemanticManager{},
		state:    session.NewMockStateService(),
		metrics:  metrics.NewService(100, 0),
		posts: tools.NewMockTool("get_user_posts", `[{"id": 11, "title": "a"}, {"id": 12, "title": "b"}]`,
			tools.Parameter{Name: "user_id", Type: tools.TypeInteger, Required: true}),
		comments: tools.NewMockTool("get_post_comments", `[{"id": 1, "body": "nice"}]`,
			tools.Parameter{Name: "post_id", Type: tools.TypeInteger, Required: true}),
		user: tools.NewMockTool("get_user", `{"id": 1, "name": "Leanne"}`,
			tools.Parameter{Name: "user_id", Type: tools.TypeInteger, Required: true}),
		del: tools.NewMockTool("delete_post", `{}`,
			tools.Parameter{Name: "post_id", Type: tools.TypeInteger, Required: true}).Mutating(),
	}
	f.llm = ai.NewMockLLMService(func(_ context.Context, messages []ai.Message, o ai.ChatOptions) (string, error) {
		switch o.Operation {
		case "classify":
			return `{"type": "conversation", "confidence": 0.9, "reasoning": "chat"}`, nil
		case "synthesize":
			if f.synthesize != nil {
				return f.synthesize(ai.JoinContent(messages))
			}
			return "done", nil
		}
		return "", nil
	})

	registry := tools.NewRegistry()
	registry.MustRegister(f.posts, f.comments, f.user, f.del)
	executor := tools.NewResilientToolExecutor(f.metrics, tools.WithRetryDelay(time.Millisecond), tools.WithTimeout(time.Second))
	engine := tools.NewEngine(registry, executor, f.state, tools.DefaultEngineConfig())
	planner := NewPlanner(f.llm, registry, nil, PlannerConfig{})

	o, err := NewOrchestrator(Components{
		LLM:        f.llm,
		Classifier: router.NewService(f.llm, router.Config{}, f.metrics),
		Assembler:  aicontext.NewAssembler(f.episodic, f.semantic, nil, aicontext.DefaultConfig()),
		Planner:    planner,
		Engine:     engine,
		Registry:   registry,
		Episodic:   f.episodic,
		Semantic:   f.semantic,
		Turns:      session.NewTurnLog(f.state),
		Metrics:    f.metrics,
	}, cfg)
	require.NoError(t, err)
	f.o = o
	return f
}

func (f *orchestratorFixture) turn(t *testing.T, query string) *TurnResponse {
	t.Helper()
	resp, err := f.o.ExecuteTurn(context.Background(), TurnRequest{Query: query, UserID: "u1", SessionID: "s1"})
	require.NoError(t, err)
	require.NotNil(t, resp.Intent)
	return resp
}

func TestOrchestrator_MemoryRecall(t *testing.T) {
	f := newOrchestratorFixture(t, Config{})
	f.episodic.Memories = []memory.EpisodicMemory{{
		ID: "t1", UserID: "u1", SessionID: "s1",
		Timestamp: time.Now().Add(-time.Hour),
		Content:   "Berlin weather query",
		Metadata:  memory.EpisodicMetadata{Source: memory.SourceUser, Importance: 0.5},
	}}
	f.llm.Enqueue("classify", `{"type": "memory_chat", "confidence": 0.92, "memory_context": true}`)
	f.synthesize = func(prompt string) (string, error) {
		if strings.Contains(prompt, "Berlin weather query") {
			return "Earlier you asked about the weather in Berlin.", nil
		}
		return "I don't remember.", nil
	}

	resp := f.turn(t, "What did I ask about earlier?")

	assert.Equal(t, router.IntentMemoryChat, resp.Intent.Type)
	require.NotNil(t, resp.MemoryContext)
	require.Len(t, resp.MemoryContext.EpisodicMemories, 1)
	assert.Equal(t, "t1", resp.MemoryContext.EpisodicMemories[0].ID)
	assert.Contains(t, resp.Response, "Berlin")
	assert.Zero(t, f.llm.CallCount("plan"))
	assert.Empty(t, resp.Degraded)

	require.Len(t, f.episodic.Memories, 3)
	assert.Equal(t, "What did I ask about earlier?", f.episodic.Memories[1].Content)
	assert.Equal(t, memory.SourceUser, f.episodic.Memories[1].Metadata.Source)
	assert.Equal(t, resp.Response, f.episodic.Memories[2].Content)
	assert.Equal(t, memory.SourceAgent, f.episodic.Memories[2].Metadata.Source)

	turns, err := session.NewTurnLog(f.state).Load(context.Background(), session.Key{UserID: "u1", SessionID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, 1, turns.Count)
	assert.Equal(t, "memory_chat", turns.Last.IntentType)
}

func TestOrchestrator_ConversationSkipsPlanning(t *testing.T) {
	f := newOrchestratorFixture(t, Config{})

	resp := f.turn(t, "hello")

	assert.Equal(t, router.IntentConversation, resp.Intent.Type)
	assert.Equal(t, router.SourceRule, resp.Intent.Source)
	assert.Nil(t, resp.MemoryContext)
	assert.Nil(t, resp.Plan)
	assert.Empty(t, resp.State)
	assert.Zero(t, f.llm.CallCount("plan"))
	assert.Equal(t, "done", resp.Response)
}

func TestOrchestrator_ToolChain(t *testing.T) {
	f := newOrchestratorFixture(t, Config{})
	f.llm.Enqueue("classify", `{"type": "tool_execution", "confidence": 0.9, "required_tools": ["get_user_posts", "get_post_comments"]}`)
	f.llm.Enqueue("plan", `{"steps": [
		{"id": "step1", "tool": "get_user_posts", "args": {"user_id": 1}},
		{"id": "step2", "tool": "get_post_comments", "args": {"post_id": "{{step1[0].id}}"}, "depends_on": ["step1"]}
	]}`)
	f.synthesize = func(prompt string) (string, error) {
		assert.Contains(t, prompt, "nice")
		return "The first post has one comment: nice.", nil
	}

	resp := f.turn(t, "Get posts for user 1, then get comments for the first post")

	assert.Equal(t, tools.StateCompleted, resp.State)
	require.Len(t, resp.Results, 2)
	require.Len(t, f.comments.Calls(), 1)
	assert.EqualValues(t, 11, f.comments.Calls()[0]["post_id"])
	assert.Equal(t, "The first post has one comment: nice.", resp.Response)

	stats, err := f.metrics.GetStats(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.RequestCount)
	assert.EqualValues(t, 1, stats.SuccessCount)
	require.Contains(t, stats.ToolStats, "get_post_comments")
}

func (f *orchestratorFixture) planDelete() {
	f.llm.Enqueue("classify", `{"type": "tool_execution", "confidence": 0.95, "required_tools": ["delete_post"]}`)
	f.llm.Enqueue("plan", `{"steps": [{"id": "del", "tool": "delete_post", "args": {"post_id": 12}}]}`)
}

func TestOrchestrator_ConfirmationGateAffirm(t *testing.T) {
	f := newOrchestratorFixture(t, Config{})
	f.planDelete()

	first := f.turn(t, "delete post 12")
	assert.Equal(t, tools.StateConfirming, first.State)
	require.NotNil(t, first.Pending)
	assert.Contains(t, first.Response, "delete_post(post_id=12)")
	assert.Empty(t, f.del.Calls())
	assert.Zero(t, f.llm.CallCount("synthesize"))

	second := f.turn(t, "yes")
	assert.Equal(t, router.ConfirmAffirm, second.Intent.Confirmation)
	assert.Equal(t, tools.StateCompleted, second.State)
	require.Len(t, f.del.Calls(), 1)
	assert.Equal(t, 1, f.llm.CallCount("plan"))

	pending, err := f.o.c.Engine.Pending(context.Background(), session.Key{UserID: "u1", SessionID: "s1"})
	require.NoError(t, err)
	assert.Nil(t, pending)
}

func TestOrchestrator_ConfirmationGateDeny(t *testing.T) {
	f := newOrchestratorFixture(t, Config{})
	f.planDelete()
	f.turn(t, "delete post 12")

	resp := f.turn(t, "no")

	assert.Equal(t, router.ConfirmDeny, resp.Intent.Confirmation)
	assert.Equal(t, tools.StateFailed, resp.State)
	assert.Equal(t, tools.ReasonUserCancelled, resp.Reason)
	assert.Equal(t, cancelledResponse, resp.Response)
	assert.True(t, resp.Succeeded())
	assert.Empty(t, f.del.Calls())
}

func TestOrchestrator_ExplicitConfirmationReply(t *testing.T) {
	f := newOrchestratorFixture(t, Config{})
	f.planDelete()
	f.turn(t, "delete post 12")

	yes := true
	resp, err := f.o.ExecuteTurn(context.Background(), TurnRequest{UserID: "u1", SessionID: "s1", ConfirmationReply: &yes})
	require.NoError(t, err)
	assert.Equal(t, tools.StateCompleted, resp.State)
	require.Len(t, f.del.Calls(), 1)
	assert.Equal(t, 1, f.llm.CallCount("classify"))

	resp, err = f.o.ExecuteTurn(context.Background(), TurnRequest{UserID: "u1", SessionID: "s1", ConfirmationReply: &yes})
	require.NoError(t, err)
	assert.Equal(t, nothingPendingResponse, resp.Response)
	assert.Len(t, f.del.Calls(), 1)
}

func TestOrchestrator_FollowUpToolTurn(t *testing.T) {
	f := newOrchestratorFixture(t, Config{})
	f.llm.Enqueue("classify", `{"type": "tool_execution", "confidence": 0.9, "required_tools": ["get_user"]}`)
	f.llm.Enqueue("plan", `{"steps": [{"id": "s1", "tool": "get_user", "args": {"user_id": 1}}]}`)
	f.turn(t, "show me user one")

	f.llm.Enqueue("classify", `{"type": "conversation", "confidence": 0.6}`)
	f.llm.Enqueue("plan", `{"steps": [{"id": "s1", "tool": "get_user_posts", "args": {"user_id": 2}}]}`)
	resp := f.turn(t, "now get me all posts of user two")

	assert.Equal(t, router.IntentToolExecution, resp.Intent.Type)
	assert.Equal(t, "tool_followup", resp.Intent.Override)
	assert.Contains(t, resp.Intent.RequiredTools, "get_user_posts")
	assert.Equal(t, tools.StateCompleted, resp.State)
	require.Len(t, f.posts.Calls(), 1)
	assert.Contains(t, f.llm.LastUserMessage("plan"), "show me user one")
}

func TestOrchestrator_NeedsMoreInfo(t *testing.T) {
	f := newOrchestratorFixture(t, Config{})
	f.llm.Enqueue("classify", `{"type": "tool_execution", "confidence": 0.9}`)
	f.llm.Enqueue("plan", `{"steps": [{"id": "s1", "tool": "get_user_posts", "args": {}}]}`)

	resp := f.turn(t, "show me the posts")

	require.NotNil(t, resp.Plan)
	assert.True(t, resp.Plan.NeedsMoreInfo)
	assert.Contains(t, resp.Response, "user_id")
	assert.Empty(t, f.posts.Calls())
	assert.Zero(t, f.llm.CallCount("synthesize"))
}

func TestOrchestrator_MemoryUnavailable(t *testing.T) {
	f := newOrchestratorFixture(t, Config{})
	f.episodic.Err = errors.New("graph down")
	f.semantic.Err = errors.New("vectors down")
	f.llm.Enqueue("classify", `{"type": "memory_chat", "confidence": 0.9, "memory_context": true}`)

	resp := f.turn(t, "what did I say yesterday?")

	assert.Nil(t, resp.MemoryContext)
	assert.Contains(t, resp.Degraded, DegradedMemory)
	assert.Contains(t, resp.Degraded, DegradedMemoryWrite)
	assert.Equal(t, "done", resp.Response)
}

func TestOrchestrator_SynthesisFallback(t *testing.T) {
	f := newOrchestratorFixture(t, Config{})
	f.synthesize = func(string) (string, error) { return "", errors.New("provider down") }
	f.llm.Enqueue("classify", `{"type": "tool_execution", "confidence": 0.9}`)
	f.llm.Enqueue("plan", `{"steps": [{"id": "s1", "tool": "get_user", "args": {"user_id": 1}}]}`)

	resp := f.turn(t, "who is user 1")

	assert.Contains(t, resp.Degraded, DegradedSynthesis)
	assert.Contains(t, resp.Response, "All steps completed.")
	assert.Contains(t, resp.Response, "Leanne")

	resp = f.turn(t, "hello")
	assert.Equal(t, unavailableResponse, resp.Response)
}

func TestOrchestrator_PartialFailure(t *testing.T) {
	f := newOrchestratorFixture(t, Config{})
	f.user.FailWith(errors.New("bad request"), errors.New("bad request"), errors.New("bad request"))
	f.llm.Enqueue("classify", `{"type": "tool_execution", "confidence": 0.9}`)
	f.llm.Enqueue("plan", `[
		{"id": "a", "tool": "get_user", "args": {"user_id": 1}},
		{"id": "b", "tool": "get_user_posts", "args": {"user_id": 1}}
	]`)

	resp := f.turn(t, "user 1 and their posts")

	assert.Equal(t, tools.StatePartial, resp.State)
	assert.True(t, resp.Succeeded())
}

func TestOrchestrator_LowConfidence(t *testing.T) {
	f := newOrchestratorFixture(t, Config{ConfidenceFloor: 0.7})
	f.llm.Enqueue("classify", `{"type": "conversation", "confidence": 0.3}`)
	var system string
	f.synthesize = func(prompt string) (string, error) {
		system = prompt
		return "my best guess", nil
	}

	resp := f.turn(t, "the thing from before")

	assert.True(t, resp.LowConfidence)
	assert.Equal(t, "my best guess", resp.Response)
	assert.Contains(t, system, "ambiguous")
}

func TestOrchestrator_TriggersExtraction(t *testing.T) {
	f := newOrchestratorFixture(t, Config{ExtractEveryTurns: 2})

	f.turn(t, "hello")
	f.o.Wait()
	assert.Zero(t, f.semantic.Extracts)

	f.turn(t, "thanks")
	f.o.Wait()
	assert.Equal(t, 1, f.semantic.Extracts)
}

func TestOrchestrator_InvalidRequest(t *testing.T) {
	f := newOrchestratorFixture(t, Config{})

	_, err := f.o.ExecuteTurn(context.Background(), TurnRequest{Query: "hi", UserID: "u1"})
	assert.Error(t, err)
	_, err = f.o.ExecuteTurn(context.Background(), TurnRequest{UserID: "u1", SessionID: "s1"})
	assert.Error(t, err)
}

func TestNewOrchestrator_RequiresComponents(t *testing.T) {
	_, err := NewOrchestrator(Components{}, Config{})
	assert.Error(t, err)
}

func TestOrchestrator_ClassifyQuery(t *testing.T) {
	f := newOrchestratorFixture(t, Config{})
	f.planDelete()
	f.turn(t, "delete post 12")

	intent, err := f.o.ClassifyQuery(context.Background(), "u1", "s1", "yes")
	require.NoError(t, err)
	assert.Equal(t, router.ConfirmAffirm, intent.Confirmation)
	assert.Len(t, f.del.Calls(), 0)
}

func TestOrchestrator_SearchMemories(t *testing.T) {
	f := newOrchestratorFixture(t, Config{})
	f.episodic.Memories = []memory.EpisodicMemory{
		{ID: "a", UserID: "u1", SessionID: "s1", Content: "Berlin weather query"},
		{ID: "b", UserID: "u1", SessionID: "s1", Content: "pizza recipes"},
	}
	f.semantic.Results = []memory.ScoredConcept{{Memory: memory.SemanticMemory{Concept: "Berlin"}, Similarity: 0.9}}

	res, err := f.o.SearchMemories(context.Background(), "u1", "berlin", 10)
	require.NoError(t, err)
	require.Len(t, res.Episodes, 1)
	assert.Equal(t, "a", res.Episodes[0].Memory.ID)
	assert.Len(t, res.Concepts, 1)

	f.semantic.Err = errors.New("down")
	res, err = f.o.SearchMemories(context.Background(), "u1", "berlin", 10)
	require.NoError(t, err)
	assert.Len(t, res.Episodes, 1)

	f.episodic.Err = errors.New("down")
	_, err = f.o.SearchMemories(context.Background(), "u1", "berlin", 10)
	assert.Error(t, err)
}

func TestOrchestrator_MemoryContextAndStats(t *testing.T) {
	f := newOrchestratorFixture(t, Config{})
	f.episodic.Memories = []memory.EpisodicMemory{{ID: "a", UserID: "u1", SessionID: "s1", Content: "hello"}}

	mc, err := f.o.GetMemoryContext(context.Background(), "u1", "s1", "hello", 500)
	require.NoError(t, err)
	assert.Len(t, mc.EpisodicMemories, 1)

	mc, err = f.o.GetMemoryContext(context.Background(), "u1", "s1", "hello", 0)
	require.NoError(t, err)
	assert.Empty(t, mc.EpisodicMemories)
	assert.Zero(t, mc.TokenCount)

	_, err = f.o.GetMemoryStats(context.Background(), "u1")
	assert.Error(t, err)
}
