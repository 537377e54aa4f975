package memory

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	aierrors "github.com/hrygo/agentcore/internal/errors"
	"github.com/hrygo/agentcore/internal/observability"
	"github.com/hrygo/agentcore/plugin/ai/graph"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestEpisodic() *Episodic {
	return NewEpisodic(graph.NewMemoryStore(), DefaultConfig())
}

func storeAt(t *testing.T, e *Episodic, user, session, content string, at time.Time, importance float64, tags ...string) string {
	t.Helper()
	id, err := e.Store(context.Background(), EpisodicMemory{
		UserID:    user,
		SessionID: session,
		Timestamp: at,
		Content:   content,
		Metadata:  EpisodicMetadata{Importance: importance, Tags: tags},
	})
	require.NoError(t, err)
	return id
}

func TestEpisodic_StoreLinksSession(t *testing.T) {
	ctx := context.Background()
	e := newTestEpisodic()

	a := storeAt(t, e, "u1", "s1", "first", t0, 0.5)
	b := storeAt(t, e, "u1", "s1", "second", t0.Add(time.Minute), 0.5)
	c := storeAt(t, e, "u1", "s1", "third", t0.Add(2*time.Minute), 0.5)
	other := storeAt(t, e, "u1", "s2", "elsewhere", t0.Add(3*time.Minute), 0.5)

	mid, err := e.Get(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, a, mid.Relationships.Previous)
	assert.Equal(t, c, mid.Relationships.Next)
	assert.Equal(t, "second", mid.Content)
	assert.Equal(t, SourceUser, mid.Metadata.Source)

	first, err := e.Get(ctx, a)
	require.NoError(t, err)
	assert.Empty(t, first.Relationships.Previous)

	o, err := e.Get(ctx, other)
	require.NoError(t, err)
	assert.Empty(t, o.Relationships.Previous, "sessions are linked independently")
}

func TestEpisodic_StoreValidation(t *testing.T) {
	ctx := context.Background()
	e := newTestEpisodic()

	_, err := e.Store(ctx, EpisodicMemory{Content: "x"})
	assert.True(t, aierrors.IsCode(err, aierrors.ErrCodeInvalidArgument))

	_, err = e.Store(ctx, EpisodicMemory{UserID: "u1", Content: "  "})
	assert.True(t, aierrors.IsCode(err, aierrors.ErrCodeInvalidArgument))

	id, err := e.Store(ctx, EpisodicMemory{UserID: "u1", SessionID: "s", Content: "x", Metadata: EpisodicMetadata{Importance: 3}})
	require.NoError(t, err)
	m, err := e.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1.0, m.Metadata.Importance)
}

func TestEpisodic_SearchRanking(t *testing.T) {
	ctx := context.Background()
	e := newTestEpisodic()

	berlin := storeAt(t, e, "u1", "s1", "Berlin weather query", t0, 0.5)
	storeAt(t, e, "u1", "s1", "Lunch plans with Ada", t0.Add(time.Hour), 0.5)
	storeAt(t, e, "u2", "s1", "Berlin trip", t0.Add(time.Hour), 0.9)

	got, err := e.Search(ctx, EpisodicQuery{UserID: "u1", SessionID: "s1", Query: "weather in Berlin", Limit: 5})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, berlin, got[0].Memory.ID)
	assert.Greater(t, got[0].Score, got[1].Score)

	again, err := e.Search(ctx, EpisodicQuery{UserID: "u1", SessionID: "s1", Query: "weather in Berlin", Limit: 5})
	require.NoError(t, err)
	assert.Equal(t, got, again)
}

func TestEpisodic_SearchTiesUseInsertionOrder(t *testing.T) {
	ctx := context.Background()
	e := newTestEpisodic()
	a := storeAt(t, e, "u1", "s1", "alpha", t0, 0.5)
	b := storeAt(t, e, "u1", "s1", "beta", t0, 0.5)

	got, err := e.Search(ctx, EpisodicQuery{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, []string{a, b}, []string{got[0].Memory.ID, got[1].Memory.ID})
}

func TestEpisodic_SearchFilters(t *testing.T) {
	ctx := context.Background()
	e := newTestEpisodic()
	storeAt(t, e, "u1", "s1", "old note", t0, 0.2, "work")
	keep := storeAt(t, e, "u1", "s1", "important work", t0.Add(2*time.Hour), 0.8, "work", "urgent")
	storeAt(t, e, "u1", "s1", "late", t0.Add(5*time.Hour), 0.9)

	tests := []struct {
		name  string
		query EpisodicQuery
		want  int
	}{
		{"tags", EpisodicQuery{UserID: "u1", Tags: []string{"work", "urgent"}}, 1},
		{"importance", EpisodicQuery{UserID: "u1", MinImportance: 0.5}, 2},
		{"time range", EpisodicQuery{UserID: "u1", From: t0.Add(time.Hour), To: t0.Add(3 * time.Hour)}, 1},
		{"limit", EpisodicQuery{UserID: "u1", Limit: 2}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Search(ctx, tt.query)
			require.NoError(t, err)
			assert.Len(t, got, tt.want)
		})
	}

	got, err := e.Search(ctx, EpisodicQuery{UserID: "u1", Tags: []string{"urgent"}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, keep, got[0].Memory.ID)
}

func TestEpisodic_GetContext(t *testing.T) {
	ctx := context.Background()
	e := NewEpisodic(graph.NewMemoryStore(), Config{ContextCap: 3})
	for i, c := range []string{"a", "b", "c", "d", "e"} {
		storeAt(t, e, "u1", "s1", c, t0.Add(time.Duration(i)*time.Minute), 0.5)
	}

	got, err := e.GetContext(ctx, "u1", "s1", 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"c", "d", "e"}, []string{got[0].Content, got[1].Content, got[2].Content})

	got, err = e.GetContext(ctx, "u1", "s1", 2)
	require.NoError(t, err)
	assert.Equal(t, "d", got[0].Content)
}

func TestEpisodic_UpdateMetadataAndLink(t *testing.T) {
	ctx := context.Background()
	e := newTestEpisodic()
	a := storeAt(t, e, "u1", "s1", "keep me", t0, 0.1)
	b := storeAt(t, e, "u1", "s2", "related", t0, 0.1)

	require.NoError(t, e.UpdateMetadata(ctx, a, EpisodicMetadata{Source: SourceAgent, Importance: 0.9, Tags: []string{"pinned"}}))
	m, err := e.Get(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, "keep me", m.Content)
	assert.Equal(t, 0.9, m.Metadata.Importance)
	assert.Equal(t, []string{"pinned"}, m.Metadata.Tags)

	require.ErrorIs(t, e.UpdateMetadata(ctx, "missing", EpisodicMetadata{}), ErrMemoryNotFound)

	require.NoError(t, e.Link(ctx, a, b))
	m, err = e.Get(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, []string{a}, m.Relationships.Related)

	_, err = e.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrMemoryNotFound)
}

func TestEpisodic_Clear(t *testing.T) {
	ctx := context.Background()
	e := newTestEpisodic()
	storeAt(t, e, "u1", "s1", "a", t0, 0.5)
	storeAt(t, e, "u1", "s2", "b", t0, 0.5)
	storeAt(t, e, "u2", "s1", "c", t0, 0.5)

	n, err := e.Clear(ctx, "u1", "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = e.Clear(ctx, "u1", "")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	left, err := e.Search(ctx, EpisodicQuery{UserID: "u2"})
	require.NoError(t, err)
	assert.Len(t, left, 1)
}

func TestEpisodic_ClearLogsWithRequestFields(t *testing.T) {
	var buf bytes.Buffer
	rc := observability.NewRequestContext(slog.New(slog.NewTextHandler(&buf, nil)), "u1", "s1")
	ctx := observability.WithRequestContext(context.Background(), rc)
	e := newTestEpisodic()
	storeAt(t, e, "u1", "s1", "a", t0, 0.5)

	_, err := e.Clear(ctx, "u1", "s1")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "episodic memory cleared")
	assert.Contains(t, buf.String(), "request_id="+rc.RequestID)
}

type failingGraph struct {
	graph.GraphStore
	err error
}

func (f failingGraph) Query(context.Context, graph.Pattern, map[string]any) ([]graph.Node, error) {
	return nil, f.err
}

func TestEpisodic_StoreErrorsAreTyped(t *testing.T) {
	e := NewEpisodic(failingGraph{GraphStore: graph.NewMemoryStore(), err: errors.New("connection refused")}, DefaultConfig())

	_, err := e.Store(context.Background(), EpisodicMemory{UserID: "u1", SessionID: "s1", Content: "x"})
	assert.True(t, aierrors.IsCode(err, aierrors.ErrCodeMemoryStoreError))

	_, err = e.Search(context.Background(), EpisodicQuery{UserID: "u1"})
	assert.True(t, aierrors.IsCode(err, aierrors.ErrCodeMemoryStoreError))
}
