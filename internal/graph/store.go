// Package graph rebuilds the property graph from the canonical collections
// written by the merge stage. The graph itself lives behind Store; see the
// neo4jstore and sqlitestore packages for the backends.
package graph

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnknownRelation is returned by a store asked to create a relationship
// outside the taxonomy.
var ErrUnknownRelation = errors.New("relation not in taxonomy")

// Node is one node as it is written and as it appears in a snapshot.
type Node struct {
	Label Label          `json:"label"`
	Key   string         `json:"key"`
	Props map[string]any `json:"props"`
}

// EdgeSpec identifies a relationship by its endpoints' keys.
type EdgeSpec struct {
	Relation
	FromKey string `json:"from"`
	ToKey   string `json:"to"`
}

func (e EdgeSpec) String() string {
	return fmt.Sprintf("(%s %q)-[%s]->(%s %q)", e.From, e.FromKey, e.Type, e.To, e.ToKey)
}

// Snapshot is a full dump of the graph, used for backups and restore.
type Snapshot struct {
	TaxonomyVersion string     `json:"taxonomy_version"`
	Timestamp       string     `json:"timestamp"`
	Nodes           []Node     `json:"nodes"`
	Edges           []EdgeSpec `json:"edges"`
}

// Store is a property-graph backend. Implementations only ever run
// statements prepared from the taxonomy; keys and properties are passed as
// parameters.
type Store interface {
	// Snapshot dumps every node and relationship.
	Snapshot(ctx context.Context) (*Snapshot, error)
	// Clear deletes every node and relationship.
	Clear(ctx context.Context) error
	// EnsureConstraint makes the label's key property unique. An existing
	// constraint is not an error.
	EnsureConstraint(ctx context.Context, l Label) error
	// UpsertNode creates the node or adds props to the existing one.
	UpsertNode(ctx context.Context, l Label, key string, props map[string]any) error
	// MergeEdge creates the relationship unless it exists. It reports false
	// without error when either endpoint is missing.
	MergeEdge(ctx context.Context, e EdgeSpec) (bool, error)
	// Counts returns the number of nodes and relationships.
	Counts(ctx context.Context) (nodes, edges int, err error)
	Close(ctx context.Context) error
}
