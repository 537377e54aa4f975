package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/agentcore/plugin/ai"
)

// TestService_Stats 测试统计信息
func TestService_Stats(t *testing.T) {
	ctx := context.Background()
	llm := ai.NewMockLLMService(nil)
	llm.Enqueue("extract", `{"concepts":[{"concept":"Ada","description":"colleague","category":"person","confidence":0.9}]}`)
	svc := newTestService(llm)

	for _, ep := range []EpisodicMemory{
		{UserID: "u1", SessionID: "s1", Content: "met Ada", Metadata: EpisodicMetadata{Importance: 0.8}},
		{UserID: "u1", SessionID: "s2", Content: "lunch", Metadata: EpisodicMetadata{Importance: 0.4}},
		{UserID: "u2", SessionID: "s1", Content: "other user"},
	} {
		_, err := svc.Episodic.Store(ctx, ep)
		require.NoError(t, err)
	}
	_, err := svc.Semantic.Store(ctx, SemanticMemory{UserID: "u1", Concept: "Berlin", Metadata: SemanticMetadata{Category: "place"}})
	require.NoError(t, err)

	stats, err := svc.Stats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.EpisodicCount)
	assert.Equal(t, 2, stats.SessionCount)
	assert.InDelta(t, 0.6, stats.AverageImportance, 1e-9)
	assert.Equal(t, 1, stats.SemanticCount)
	assert.True(t, stats.LastExtraction.IsZero())

	_, err = svc.Semantic.ExtractFromEpisodic(ctx, "u1", "")
	require.NoError(t, err)

	stats, err = svc.Stats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.SemanticCount)
	assert.Equal(t, map[string]int{"place": 1, "person": 1}, stats.ConceptsByCategory)
	assert.False(t, stats.LastExtraction.IsZero())
}
