package sqlitestore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vthunder/distill/internal/graph"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "graph", "graph.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close(context.Background()) })
	return s
}

func knows(from, to string) graph.EdgeSpec {
	return graph.EdgeSpec{
		Relation: graph.Relation{From: graph.LabelPerson, Type: graph.RelKnows, To: graph.LabelPerson},
		FromKey:  from,
		ToKey:    to,
	}
}

func TestUpsertNodeMergesProps(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	require.NoError(t, s.EnsureConstraint(ctx, graph.LabelPerson))
	require.NoError(t, s.UpsertNode(ctx, graph.LabelPerson, "anton", map[string]any{"rolle": "Förster", "kontext": "wald"}))
	require.NoError(t, s.UpsertNode(ctx, graph.LabelPerson, "anton", map[string]any{"rolle": "Gärtner"}))

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Nodes, 1)
	assert.Equal(t, map[string]any{"name": "anton", "rolle": "Gärtner", "kontext": "wald"}, snap.Nodes[0].Props)
}

func TestQuestionKeyedByText(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertNode(ctx, graph.LabelQuestion, "wer pflegt den garten?", nil))
	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Nodes, 1)
	assert.Equal(t, "wer pflegt den garten?", snap.Nodes[0].Props["text"])
}

func TestMergeEdge(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertNode(ctx, graph.LabelPerson, "anton", nil))
	require.NoError(t, s.UpsertNode(ctx, graph.LabelPerson, "timo", nil))

	ok, err := s.MergeEdge(ctx, knows("anton", "timo"))
	require.NoError(t, err)
	assert.True(t, ok)

	// merging again is a no-op
	ok, err = s.MergeEdge(ctx, knows("anton", "timo"))
	require.NoError(t, err)
	assert.True(t, ok)

	// a missing endpoint is reported, not an error
	ok, err = s.MergeEdge(ctx, knows("anton", "kuno"))
	require.NoError(t, err)
	assert.False(t, ok)

	nodes, edges, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, nodes)
	assert.Equal(t, 1, edges)
}

func TestMergeEdgeRejectsUnknownRelation(t *testing.T) {
	s := setupStore(t)
	bad := graph.EdgeSpec{
		Relation: graph.Relation{From: graph.LabelTheme, Type: graph.RelKnows, To: graph.LabelPerson},
		FromKey:  "wald",
		ToKey:    "anton",
	}
	_, err := s.MergeEdge(context.Background(), bad)
	assert.True(t, errors.Is(err, graph.ErrUnknownRelation), "got %v", err)
}

func TestClearRemovesEverything(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertNode(ctx, graph.LabelPerson, "anton", nil))
	require.NoError(t, s.UpsertNode(ctx, graph.LabelPerson, "timo", nil))
	_, err := s.MergeEdge(ctx, knows("timo", "anton"))
	require.NoError(t, err)

	require.NoError(t, s.Clear(ctx))
	nodes, edges, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Zero(t, nodes)
	assert.Zero(t, edges)

	assert.Error(t, s.UpsertNode(ctx, graph.Label("Place"), "wien", nil))
}
