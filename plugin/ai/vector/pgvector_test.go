package vector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/agentcore/store"
	storetest "github.com/hrygo/agentcore/store/test"
)

func TestPGVectorStore(t *testing.T) {
	ctx := context.Background()
	s := storetest.NewTestingStore(ctx, t)
	if !s.SupportsVectors() {
		_, err := NewPGVectorStore(s, 3)
		require.ErrorIs(t, err, store.ErrVectorNotSupported)
		return
	}

	vs, err := NewPGVectorStore(s, 3)
	require.NoError(t, err)
	require.NoError(t, vs.Upsert(ctx, "c1", []float32{1, 0, 0}, map[string]any{"user_id": "u1", "type": "place", "name": "Berlin"}))
	require.NoError(t, vs.Upsert(ctx, "c2", []float32{0.8, 0.2, 0}, map[string]any{"user_id": "u1", "type": "person", "name": "Ada"}))
	require.NoError(t, vs.Upsert(ctx, "c3", []float32{1, 0, 0}, map[string]any{"user_id": "u2", "type": "place"}))

	got, err := vs.Query(ctx, []float32{1, 0, 0}, 5, map[string]any{"user_id": "u1", "type": "place"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "c1", got[0].ID)
	assert.InDelta(t, 1.0, got[0].Score, 1e-5)

	rec, err := vs.Get(ctx, "c2")
	require.NoError(t, err)
	assert.Equal(t, "Ada", rec.Metadata["name"])

	list, err := vs.List(ctx, map[string]any{"user_id": "u1"}, 0)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	require.ErrorIs(t, vs.Upsert(ctx, "bad", []float32{1}, nil), ErrDimensionMismatch)
}
