package agent

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	aierrors "github.com/hrygo/agentcore/internal/errors"
	"github.com/hrygo/agentcore/plugin/ai"
	"github.com/hrygo/agentcore/plugin/ai/agent/tools"
)

func newTestRegistry() *tools.Registry {
	r := tools.NewRegistry()
	r.MustRegister(
		tools.NewMockTool("get_user", `{"id": 1, "name": "Leanne"}`,
			tools.Parameter{Name: "user_id", Type: tools.TypeInteger, Required: true}),
		tools.NewMockTool("get_user_posts", `[{"id": 11, "title": "a"}, {"id": 12, "title": "b"}]`,
			tools.Parameter{Name: "user_id", Type: tools.TypeInteger, Required: true}),
		tools.NewMockTool("get_post_comments", `[{"id": 1, "body": "nice"}]`,
			tools.Parameter{Name: "post_id", Type: tools.TypeInteger, Required: true}),
		tools.NewMockTool("delete_post", `{}`,
			tools.Parameter{Name: "post_id", Type: tools.TypeInteger, Required: true}).Mutating(),
	)
	return r
}

func newTestPlanner(llm ai.LLMService) *Planner {
	return NewPlanner(llm, newTestRegistry(), nil, PlannerConfig{})
}

func TestPlanner_PostsThenComments(t *testing.T) {
	llm := ai.NewMockLLMService(nil).Enqueue("plan", `{
		"steps": [
			{"id": "step1", "tool": "get_user_posts", "args": {"user_id": 1}, "depends_on": []},
			{"id": "step2", "tool": "get_post_comments", "args": {"post_id": "{{step1[0].id}}"}, "depends_on": ["step1"]}
		]
	}`)
	p := newTestPlanner(llm)

	plan, err := p.Plan(context.Background(), PlanRequest{Query: "Get posts for user 1, then get comments for the first post"})
	require.NoError(t, err)
	require.Len(t, plan.Steps, 2)
	assert.False(t, plan.NeedsMoreInfo)
	assert.Equal(t, "get_user_posts", plan.Steps[0].ToolName)
	assert.Equal(t, "get_post_comments", plan.Steps[1].ToolName)
	assert.Equal(t, []string{"step1"}, plan.Steps[1].DependsOn)
	assert.False(t, plan.Steps[0].Parallel)
	require.NoError(t, plan.Validate(p.registry))

	resolved, err := tools.ResolveArgs(plan.Steps[1].Args, map[string]json.RawMessage{
		"step1": json.RawMessage(`[{"id": 11}, {"id": 12}]`),
	})
	require.NoError(t, err)
	assert.EqualValues(t, 11, resolved["post_id"])

	assert.Contains(t, llm.LastUserMessage("plan"), "Get posts for user 1")
}

func TestPlanner_IndependentStepsAreParallel(t *testing.T) {
	llm := ai.NewMockLLMService(nil).Enqueue("plan", `[
		{"id": "a", "tool": "get_user", "args": {"user_id": 1}},
		{"id": "b", "tool": "get_user", "args": {"user_id": 2}}
	]`)
	plan, err := newTestPlanner(llm).Plan(context.Background(), PlanRequest{Query: "users 1 and 2"})
	require.NoError(t, err)
	require.Len(t, plan.Steps, 2)
	assert.True(t, plan.Steps[0].Parallel)
	assert.True(t, plan.Steps[1].Parallel)
}

func TestPlanner_InfersDependencyFromBinding(t *testing.T) {
	llm := ai.NewMockLLMService(nil).Enqueue("plan", `{"steps": [
		{"id": "s1", "tool": "get_user_posts", "args": {"user_id": 1}},
		{"id": "s2", "tool": "get_post_comments", "args": {"post_id": "{{s1.0.id}}"}}
	]}`)
	plan, err := newTestPlanner(llm).Plan(context.Background(), PlanRequest{Query: "q"})
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, plan.Steps[1].DependsOn)
}

func TestPlanner_StripsUnknownTools(t *testing.T) {
	llm := ai.NewMockLLMService(nil).Enqueue("plan", `{"steps": [
		{"id": "s1", "tool": "send_email", "args": {"to": "x"}},
		{"id": "s2", "tool": "get_user", "args": {"user_id": 2}},
		{"id": "s3", "tool": "get_post_comments", "args": {"post_id": "{{s1.id}}"}, "depends_on": ["s1"]}
	]}`)
	plan, err := newTestPlanner(llm).Plan(context.Background(), PlanRequest{Query: "q"})
	require.NoError(t, err)

	require.Len(t, plan.Steps, 2)
	assert.Equal(t, "s2", plan.Steps[0].ID)
	s3 := plan.Steps[1]
	assert.True(t, s3.NeedsMoreInfo)
	assert.Equal(t, []string{"depends on removed step s1", "post_id"}, s3.Missing)
	assert.Empty(t, s3.DependsOn)
	assert.False(t, plan.NeedsMoreInfo)
	require.NoError(t, plan.Validate(newTestRegistry()))
}

func TestPlanner_StripsCycles(t *testing.T) {
	llm := ai.NewMockLLMService(nil).Enqueue("plan", `{"steps": [
		{"id": "a", "tool": "get_user", "args": {"user_id": "{{b.id}}"}, "depends_on": ["b"]},
		{"id": "b", "tool": "get_user", "args": {"user_id": "{{a.id}}"}, "depends_on": ["a"]},
		{"id": "c", "tool": "get_user", "args": {"user_id": 3}}
	]}`)
	plan, err := newTestPlanner(llm).Plan(context.Background(), PlanRequest{Query: "q"})
	require.NoError(t, err)
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, "c", plan.Steps[0].ID)
	assert.Nil(t, plan.Cycle())
}

func TestPlanner_MissingRequiredParameter(t *testing.T) {
	llm := ai.NewMockLLMService(nil).Enqueue("plan", `{"steps": [
		{"id": "s1", "tool": "get_user_posts", "args": {}}
	]}`)
	plan, err := newTestPlanner(llm).Plan(context.Background(), PlanRequest{Query: "show me the posts"})
	require.NoError(t, err)
	require.Len(t, plan.Steps, 1)
	assert.True(t, plan.Steps[0].NeedsMoreInfo)
	assert.Equal(t, []string{"user_id"}, plan.Steps[0].Missing)
	assert.True(t, plan.NeedsMoreInfo)
	assert.Contains(t, plan.Clarification, "user_id for get_user_posts")
}

func TestPlanner_DependentOfIncompleteStepNeedsMoreInfo(t *testing.T) {
	llm := ai.NewMockLLMService(nil).Enqueue("plan", `{"steps": [
		{"id": "step1", "tool": "get_user_posts", "args": {}},
		{"id": "step2", "tool": "get_post_comments", "args": {"post_id": "{{step1[0].id}}"}, "depends_on": ["step1"]},
		{"id": "step3", "tool": "delete_post", "args": {"post_id": "{{step2[0].id}}"}, "depends_on": ["step2"]}
	]}`)
	plan, err := newTestPlanner(llm).Plan(context.Background(), PlanRequest{Query: "comments on the first post"})
	require.NoError(t, err)
	require.Len(t, plan.Steps, 3)

	assert.Equal(t, []string{"user_id"}, plan.Steps[0].Missing)
	assert.True(t, plan.Steps[1].NeedsMoreInfo)
	assert.Equal(t, []string{"needs step1"}, plan.Steps[1].Missing)
	assert.True(t, plan.Steps[2].NeedsMoreInfo)
	assert.Equal(t, []string{"needs step2"}, plan.Steps[2].Missing)

	assert.Empty(t, plan.Executable())
	assert.True(t, plan.NeedsMoreInfo)
	assert.Equal(t, "I need a bit more information: user_id for get_user_posts.", plan.Clarification)
	require.NoError(t, plan.Validate(newTestRegistry()))
}

func TestPlanner_DependsOnRemovedStep(t *testing.T) {
	llm := ai.NewMockLLMService(nil).Enqueue("plan", `{"steps": [
		{"id": "s1", "tool": "send_email", "args": {}},
		{"id": "s2", "tool": "get_user", "args": {"user_id": 2}, "depends_on": ["s1"]}
	]}`)
	plan, err := newTestPlanner(llm).Plan(context.Background(), PlanRequest{Query: "q"})
	require.NoError(t, err)
	require.Len(t, plan.Steps, 1)

	s2 := plan.Steps[0]
	assert.True(t, s2.NeedsMoreInfo)
	assert.Equal(t, []string{"depends on removed step s1"}, s2.Missing)
	assert.Empty(t, s2.DependsOn)
	assert.True(t, plan.NeedsMoreInfo)
	assert.NotContains(t, plan.Clarification, "removed step")
}

func TestPlanner_ModelClarification(t *testing.T) {
	llm := ai.NewMockLLMService(nil).Enqueue("plan", `{"steps": [], "clarification": "Which user?"}`)
	plan, err := newTestPlanner(llm).Plan(context.Background(), PlanRequest{Query: "posts"})
	require.NoError(t, err)
	assert.Empty(t, plan.Steps)
	assert.True(t, plan.NeedsMoreInfo)
	assert.Equal(t, "Which user?", plan.Clarification)
}

func TestPlanner_StepLimit(t *testing.T) {
	llm := ai.NewMockLLMService(nil).Enqueue("plan", `{"steps": [
		{"id": "a", "tool": "get_user", "args": {"user_id": 1}},
		{"id": "b", "tool": "get_user", "args": {"user_id": 2}},
		{"id": "c", "tool": "get_user", "args": {"user_id": 3}}
	]}`)
	p := NewPlanner(llm, newTestRegistry(), nil, PlannerConfig{MaxSteps: 2})
	plan, err := p.Plan(context.Background(), PlanRequest{Query: "q"})
	require.NoError(t, err)
	assert.Len(t, plan.Steps, 2)
}

func TestPlanner_AssignsMissingAndDuplicateIDs(t *testing.T) {
	llm := ai.NewMockLLMService(nil).Enqueue("plan", `{"steps": [
		{"tool": "get_user", "args": {"user_id": 1}},
		{"id": "x", "tool": "get_user", "args": {"user_id": 2}},
		{"id": "x", "tool_name": "get_user", "args": {"user_id": 3}}
	]}`)
	plan, err := newTestPlanner(llm).Plan(context.Background(), PlanRequest{Query: "q"})
	require.NoError(t, err)
	require.Len(t, plan.Steps, 3)
	assert.NotEmpty(t, plan.Steps[0].ID)
	assert.Equal(t, "x", plan.Steps[1].ID)
	assert.NotEqual(t, "x", plan.Steps[2].ID)
	require.NoError(t, plan.Validate(newTestRegistry()))
}

func TestPlanner_UnparseableResponse(t *testing.T) {
	llm := ai.NewMockLLMService(nil).Enqueue("plan", "I would call get_user first.")
	plan, err := newTestPlanner(llm).Plan(context.Background(), PlanRequest{Query: "q"})
	require.NoError(t, err)
	assert.Empty(t, plan.Steps)
	assert.True(t, plan.NeedsMoreInfo)
	assert.NotEmpty(t, plan.Clarification)
}

func TestPlanner_LLMFailureDegradesWithoutRetry(t *testing.T) {
	llm := ai.NewMockLLMService(nil).
		EnqueueError("plan", aierrors.LLMTimeout("slow", nil)).
		Enqueue("plan", `{"steps": [{"id": "s1", "tool": "get_user", "args": {"user_id": 1}}]}`)
	plan, err := newTestPlanner(llm).Plan(context.Background(), PlanRequest{Query: "q"})
	require.Error(t, err)
	assert.Equal(t, 1, llm.CallCount("plan"))
	require.NotNil(t, plan)
	assert.True(t, plan.NeedsMoreInfo)
	assert.Empty(t, plan.Steps)
}

func TestPlanner_PromptIncludesContext(t *testing.T) {
	llm := ai.NewMockLLMService(nil).Enqueue("plan", `{"steps": []}`)
	_, err := newTestPlanner(llm).Plan(context.Background(), PlanRequest{
		Query:         "delete my last post",
		RequiredTools: []string{"delete_post"},
		MemoryContext: "- favorite user: 7",
	})
	require.NoError(t, err)

	calls := llm.Calls()
	require.Len(t, calls, 1)
	all := ai.JoinContent(calls[0].Messages)
	assert.Contains(t, all, "delete_post")
	assert.Contains(t, all, "favorite user: 7")
	assert.Contains(t, all, "post_id (integer, required)")
}

func TestPromptConfig_SetVersion(t *testing.T) {
	p := DefaultPrompts()
	require.NoError(t, p.Synthesis.SetVersion(PromptV2))
	assert.Contains(t, p.synthesisPrompt(false), "at most three sentences")
	assert.Error(t, p.Planning.SetVersion(PromptV2))
	assert.Contains(t, p.synthesisPrompt(true), "ambiguous")
}
