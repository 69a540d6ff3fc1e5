package neo4jstore

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vthunder/distill/internal/graph"
)

func TestQueriesCoverTaxonomy(t *testing.T) {
	q := buildQueries()
	assert.Len(t, q.constraint, len(graph.Labels))
	assert.Len(t, q.upsert, len(graph.Labels))
	assert.Len(t, q.edge, len(graph.Relations))

	assert.Equal(t, "MERGE (n:Question {text: $key}) SET n += $props", q.upsert[graph.LabelQuestion])
	assert.Contains(t, q.constraint[graph.LabelPerson], "FOR (n:Person) REQUIRE n.name IS UNIQUE")

	knows := q.edge[graph.Relation{From: graph.LabelPerson, Type: graph.RelKnows, To: graph.LabelPerson}]
	require.NotEmpty(t, knows)
	assert.Contains(t, knows, "MERGE (a)-[r:KNOWS]->(b)")
	for _, stmt := range q.edge {
		assert.True(t, strings.Contains(stmt, "$from") && strings.Contains(stmt, "$to"))
	}
}

func TestValueNarrowsLists(t *testing.T) {
	assert.Nil(t, value(""))
	assert.Nil(t, value([]string{}))
	assert.Equal(t, []int64{3, 7}, value([]int{3, 7}))
	assert.Equal(t, []int64{3, 7}, value([]any{float64(3), float64(7)}))
	assert.Equal(t, []string{"a1", "a2"}, value([]any{"a1", "a2"}))
	assert.Equal(t, int64(2), value(float64(2)))
	assert.Equal(t, "visionär", value("visionär"))
}

func TestKeyOfFallsBack(t *testing.T) {
	assert.Equal(t, "wie geht es weiter?", keyOf(graph.LabelQuestion, map[string]any{"text": "wie geht es weiter?"}))
	assert.Equal(t, "timo", keyOf(graph.Label("Thema"), map[string]any{"name": "timo"}))
	assert.Equal(t, "", keyOf(graph.LabelPerson, map[string]any{}))
}
