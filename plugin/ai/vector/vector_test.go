package vector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 2, 3}, []float32{2, 4, 6}), 1e-6)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-6)
	assert.Zero(t, CosineSimilarity([]float32{1}, []float32{1, 2}))
	assert.Zero(t, CosineSimilarity([]float32{0, 0}, []float32{1, 1}))
}

func TestMatchesFilter(t *testing.T) {
	meta := map[string]any{"user_id": "u1", "count": float64(2)}
	assert.True(t, MatchesFilter(meta, nil))
	assert.True(t, MatchesFilter(meta, map[string]any{"user_id": "u1", "count": 2}))
	assert.False(t, MatchesFilter(meta, map[string]any{"user_id": "u2"}))
	assert.False(t, MatchesFilter(meta, map[string]any{"missing": "x"}))
}

// storeContract runs the same behaviour checks against every implementation.
func storeContract(t *testing.T, s VectorStore) {
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, "a", []float32{1, 0, 0}, map[string]any{"user_id": "u1", "concept": "Berlin"}))
	require.NoError(t, s.Upsert(ctx, "b", []float32{0.9, 0.1, 0}, map[string]any{"user_id": "u1", "concept": "Munich"}))
	require.NoError(t, s.Upsert(ctx, "c", []float32{0, 1, 0}, map[string]any{"user_id": "u1", "concept": "Tax"}))
	require.NoError(t, s.Upsert(ctx, "d", []float32{1, 0, 0}, map[string]any{"user_id": "u2", "concept": "Berlin"}))

	matches, err := s.Query(ctx, []float32{1, 0, 0}, 2, map[string]any{"user_id": "u1"})
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "a", matches[0].ID)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-5)
	assert.Equal(t, "b", matches[1].ID)
	assert.Equal(t, "Berlin", matches[0].Metadata["concept"])

	// Upsert replaces metadata.
	require.NoError(t, s.Upsert(ctx, "a", []float32{1, 0, 0}, map[string]any{"user_id": "u1", "concept": "Berlin", "access_count": 2}))
	r, err := s.Get(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, 2, r.Metadata["access_count"])
	assert.Equal(t, []float32{1, 0, 0}, r.Embedding)

	missing, err := s.Get(ctx, "zzz")
	require.NoError(t, err)
	assert.Nil(t, missing)

	list, err := s.List(ctx, map[string]any{"user_id": "u1"}, 0)
	require.NoError(t, err)
	assert.Len(t, list, 3)

	_, err = s.Query(ctx, []float32{1, 0}, 1, nil)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestMemoryStore_Contract(t *testing.T) {
	storeContract(t, NewMemoryStore(3))
}

func TestHNSWStore_Contract(t *testing.T) {
	storeContract(t, NewHNSWStore(3))
}

func TestHNSWStore_UnfilteredSearch(t *testing.T) {
	ctx := context.Background()
	s := NewHNSWStore(2)

	got, err := s.Query(ctx, []float32{1, 0}, 3, nil)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, s.Upsert(ctx, "x", []float32{1, 0}, nil))
	require.NoError(t, s.Upsert(ctx, "y", []float32{0, 1}, nil))
	got, err = s.Query(ctx, []float32{1, 0.1}, 1, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "x", got[0].ID)
	assert.Equal(t, 2, s.Len())
}
