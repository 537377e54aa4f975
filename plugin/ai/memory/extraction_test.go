package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/agentcore/plugin/ai"
	"github.com/hrygo/agentcore/plugin/ai/graph"
	"github.com/hrygo/agentcore/plugin/ai/vector"
)

const extractReply = `Here you go:
{"concepts":[
  {"concept":"Germany","description":"country the user travels to","category":"Place","confidence":0.9},
  {"concept":"Berlin","description":"city the user asks weather for","category":"place","confidence":0.8},
  {"concept":"Rain","description":"maybe","category":"weather","confidence":0.2}
 ],
 "relationships":[{"parent":"germany","child":"Berlin"},{"parent":"Germany","child":"Atlantis"}]}`

func newTestService(llm ai.LLMService) *Service {
	return NewService(graph.NewMemoryStore(), vector.NewMemoryStore(0), ai.NewHashEmbeddingService(1024), llm, DefaultConfig())
}

func TestExtractFromEpisodic(t *testing.T) {
	ctx := context.Background()
	llm := ai.NewMockLLMService(nil)
	llm.Enqueue("extract", extractReply)
	svc := newTestService(llm)

	for i, c := range []string{"What's the weather in Berlin?", "It is sunny in Berlin."} {
		_, err := svc.Episodic.Store(ctx, EpisodicMemory{UserID: "u1", SessionID: "s1", Content: c, Timestamp: t0.Add(time.Duration(i) * time.Minute)})
		require.NoError(t, err)
	}

	report, err := svc.Semantic.ExtractFromEpisodic(ctx, "u1", "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, report.Episodes)
	assert.Equal(t, 1, report.Batches)
	assert.Equal(t, 2, report.Concepts)
	assert.Equal(t, 1, report.Discarded)
	assert.Equal(t, 1, report.Relationships)
	assert.Contains(t, llm.LastUserMessage("extract"), "weather in Berlin")

	concepts, err := svc.Semantic.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, concepts, 2)
	assert.Equal(t, "Berlin", concepts[0].Concept)
	assert.Equal(t, "place", concepts[1].Metadata.Category)
	assert.Equal(t, concepts[1].ID, concepts[0].Relationships.Parent)

	// Nothing new since the last run.
	report, err = svc.Semantic.ExtractFromEpisodic(ctx, "u1", "s1")
	require.NoError(t, err)
	assert.Zero(t, report.Episodes)
	assert.Equal(t, 1, llm.CallCount("extract"))
}

func TestExtractFromEpisodic_FailedBatch(t *testing.T) {
	ctx := context.Background()
	llm := ai.NewMockLLMService(nil)
	llm.EnqueueError("extract", errors.New("provider down"))
	llm.Enqueue("extract", "not json at all")
	svc := newTestService(llm)

	_, err := svc.Episodic.Store(ctx, EpisodicMemory{UserID: "u1", SessionID: "s1", Content: "hello", Timestamp: t0})
	require.NoError(t, err)

	report, err := svc.Semantic.ExtractFromEpisodic(ctx, "u1", "")
	require.NoError(t, err)
	assert.Equal(t, 1, report.FailedBatches)

	// The failed batch is retried on the next run; this time the reply does not parse.
	report, err = svc.Semantic.ExtractFromEpisodic(ctx, "u1", "")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Episodes)
	assert.Equal(t, 1, report.FailedBatches)
}

func TestExtractFromEpisodic_WatermarkStopsAtFailedBatch(t *testing.T) {
	ctx := context.Background()
	const empty = `{"concepts":[],"relationships":[]}`
	llm := ai.NewMockLLMService(nil).
		Enqueue("extract", empty).
		EnqueueError("extract", errors.New("provider down")).
		Enqueue("extract", empty)
	cfg := DefaultConfig()
	cfg.ExtractionBatchSize = 1
	svc := NewService(graph.NewMemoryStore(), vector.NewMemoryStore(0), ai.NewHashEmbeddingService(1024), llm, cfg)

	for i, c := range []string{"first turn", "second turn", "third turn"} {
		_, err := svc.Episodic.Store(ctx, EpisodicMemory{UserID: "u1", SessionID: "s1", Content: c, Timestamp: t0.Add(time.Duration(i) * time.Minute)})
		require.NoError(t, err)
	}

	report, err := svc.Semantic.ExtractFromEpisodic(ctx, "u1", "s1")
	require.NoError(t, err)
	assert.Equal(t, 3, report.Batches)
	assert.Equal(t, 1, report.FailedBatches)

	// The second and third turns come back although the third batch succeeded.
	llm.Enqueue("extract", empty).Enqueue("extract", empty)
	report, err = svc.Semantic.ExtractFromEpisodic(ctx, "u1", "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, report.Episodes)
	assert.Zero(t, report.FailedBatches)
	assert.Contains(t, llm.Calls()[3].Messages[1].Content, "second turn")

	report, err = svc.Semantic.ExtractFromEpisodic(ctx, "u1", "s1")
	require.NoError(t, err)
	assert.Zero(t, report.Episodes)
	assert.Equal(t, 5, llm.CallCount("extract"))
}

func TestExtractFromEpisodic_NotConfigured(t *testing.T) {
	svc := newTestService(nil)
	_, err := svc.Semantic.ExtractFromEpisodic(context.Background(), "u1", "")
	assert.Error(t, err)
}
