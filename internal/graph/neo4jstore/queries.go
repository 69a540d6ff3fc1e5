package neo4jstore

import (
	"fmt"
	"strings"

	"github.com/vthunder/distill/internal/graph"
)

const (
	queryClear  = `MATCH (n) DETACH DELETE n`
	queryCounts = `
CALL { MATCH (n) RETURN count(n) AS nodes }
CALL { MATCH ()-[r]->() RETURN count(r) AS edges }
RETURN nodes, edges`
	querySnapshotNodes = `
MATCH (n)
RETURN labels(n) AS labels, properties(n) AS props
ORDER BY elementId(n)`
	querySnapshotEdges = `
MATCH (a)-[r]->(b)
RETURN type(r) AS type,
       labels(a) AS from_labels, properties(a) AS from_props,
       labels(b) AS to_labels, properties(b) AS to_props
ORDER BY elementId(r)`
)

// queries holds one prepared statement per label and per relation. Labels
// and relationship types come from the taxonomy only; everything that
// originates in extracted data is a parameter.
type queries struct {
	constraint map[graph.Label]string
	upsert     map[graph.Label]string
	edge       map[graph.Relation]string
}

func buildQueries() queries {
	q := queries{
		constraint: map[graph.Label]string{},
		upsert:     map[graph.Label]string{},
		edge:       map[graph.Relation]string{},
	}
	for _, l := range graph.Labels {
		key := l.KeyProp()
		q.constraint[l] = fmt.Sprintf(
			"CREATE CONSTRAINT %s_%s_unique IF NOT EXISTS FOR (n:%s) REQUIRE n.%s IS UNIQUE",
			strings.ToLower(string(l)), key, l, key)
		q.upsert[l] = fmt.Sprintf(
			"MERGE (n:%s {%s: $key}) SET n += $props", l, key)
	}
	for _, r := range graph.Relations {
		q.edge[r] = fmt.Sprintf(`
MATCH (a:%s {%s: $from})
MATCH (b:%s {%s: $to})
MERGE (a)-[r:%s]->(b)
RETURN count(r) AS c`, r.From, r.From.KeyProp(), r.To, r.To.KeyProp(), r.Type)
	}
	return q
}
