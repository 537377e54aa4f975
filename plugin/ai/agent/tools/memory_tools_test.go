package tools

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	aierrors "github.com/hrygo/agentcore/internal/errors"
	"github.com/hrygo/agentcore/internal/observability"
	"github.com/hrygo/agentcore/plugin/ai/memory"
)

func TestMemoryTools(t *testing.T) {
	episodic := &memory.MockEpisodicManager{Memories: []memory.EpisodicMemory{
		{ID: "e1", UserID: "u1", SessionID: "s1", Content: "Berlin weather query", Timestamp: time.Now()},
		{ID: "e2", UserID: "u2", SessionID: "s9", Content: "Berlin trip", Timestamp: time.Now()},
	}}
	semantic := &memory.MockSemanticManager{Results: []memory.ScoredConcept{
		{Memory: memory.SemanticMemory{ID: "c1", Concept: "home city", Description: "lives in Berlin"}, Similarity: 0.9},
	}}
	r := NewRegistry()
	r.MustRegister(MemoryTools(episodic, semantic)...)

	ctx := observability.WithRequestContext(context.Background(),
		observability.NewRequestContext(nil, "u1", "s1"))

	search, err := r.Get("search_memories")
	require.NoError(t, err)
	out, err := search.Execute(ctx, map[string]any{"query": "berlin"})
	require.NoError(t, err)

	var got struct {
		Episodes []struct{ ID string } `json:"episodes"`
		Concepts []struct{ Concept string } `json:"concepts"`
	}
	require.NoError(t, json.Unmarshal(out, &got))
	require.Len(t, got.Episodes, 1)
	assert.Equal(t, "e1", got.Episodes[0].ID)
	require.Len(t, got.Concepts, 1)
	assert.Equal(t, "home city", got.Concepts[0].Concept)

	store, err := r.Get("store_knowledge")
	require.NoError(t, err)
	_, err = store.Execute(ctx, map[string]any{"concept": "favourite food", "description": "ramen"})
	require.NoError(t, err)
	require.Len(t, semantic.Stored, 1)
	assert.Equal(t, "u1", semantic.Stored[0].UserID)
	assert.Equal(t, memory.SourceUser, semantic.Stored[0].Metadata.Source)

	_, err = store.Execute(context.Background(), map[string]any{"concept": "x", "description": "y"})
	require.Error(t, err)
	assert.True(t, aierrors.IsCode(err, aierrors.ErrCodeInvalidArgument))
}
