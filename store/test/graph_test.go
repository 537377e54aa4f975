package test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hrygo/agentcore/store"
)

func TestGraphNodeStore(t *testing.T) {
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)
	user, label := "u-graph", "Episode"
	prefix := t.Name()

	for i := 0; i < 3; i++ {
		node, err := ts.CreateGraphNode(ctx, &store.GraphNode{
			ID:        fmt.Sprintf("%s-%d", prefix, i),
			Label:     label,
			UserID:    user,
			SessionID: "s1",
			Props:     fmt.Sprintf(`{"n":%d}`, i),
		})
		require.NoError(t, err)
		require.NotZero(t, node.Seq)
	}

	all, err := ts.ListGraphNodes(ctx, &store.FindGraphNode{Label: &label, UserID: &user})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Less(t, all[0].Seq, all[2].Seq)

	recent, err := ts.ListGraphNodes(ctx, &store.FindGraphNode{Label: &label, UserID: &user, Limit: 2})
	require.NoError(t, err)
	require.Len(t, recent, 2)
	require.Equal(t, prefix+"-1", recent[0].ID)
	require.Equal(t, prefix+"-2", recent[1].ID)

	require.NoError(t, ts.UpdateGraphNode(ctx, &store.UpdateGraphNode{ID: prefix + "-0", Props: `{"n":42}`}))
	node, err := ts.GetGraphNode(ctx, prefix+"-0")
	require.NoError(t, err)
	require.JSONEq(t, `{"n":42}`, node.Props)

	missing, err := ts.GetGraphNode(ctx, "nope")
	require.NoError(t, err)
	require.Nil(t, missing)
	require.Error(t, ts.UpdateGraphNode(ctx, &store.UpdateGraphNode{ID: "nope", Props: "{}"}))
}

func TestGraphEdgeStore(t *testing.T) {
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)
	user := "u-edge"

	for _, id := range []string{"a", "b", "c"} {
		_, err := ts.CreateGraphNode(ctx, &store.GraphNode{ID: id, Label: "Concept", UserID: user})
		require.NoError(t, err)
	}
	require.NoError(t, ts.CreateGraphEdge(ctx, &store.GraphEdge{FromID: "a", ToID: "b", RelType: "RELATED_TO"}))
	require.NoError(t, ts.CreateGraphEdge(ctx, &store.GraphEdge{FromID: "a", ToID: "c", RelType: "RELATED_TO"}))
	// Duplicate edges are ignored.
	require.NoError(t, ts.CreateGraphEdge(ctx, &store.GraphEdge{FromID: "a", ToID: "b", RelType: "RELATED_TO"}))

	from := "a"
	edges, err := ts.ListGraphEdges(ctx, &store.FindGraphEdge{FromID: &from})
	require.NoError(t, err)
	require.Len(t, edges, 2)

	deleted, err := ts.DeleteGraphNodes(ctx, &store.DeleteGraphNode{Label: "Concept", UserID: user})
	require.NoError(t, err)
	require.EqualValues(t, 3, deleted)

	edges, err = ts.ListGraphEdges(ctx, &store.FindGraphEdge{FromID: &from})
	require.NoError(t, err)
	require.Empty(t, edges)
}
