// Package neo4jstore writes the property graph to Neo4j.
package neo4jstore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/vthunder/distill/internal/graph"
	"github.com/vthunder/distill/internal/logging"
)

// Config holds the connection settings.
type Config struct {
	URI      string
	User     string
	Password string
	Database string
	Timeout  time.Duration
	MaxPool  int
}

// Store is a graph.Store backed by a Neo4j database.
type Store struct {
	driver   neo4j.DriverWithContext
	database string
	q        queries
}

var _ graph.Store = (*Store)(nil)

// Open connects and verifies connectivity.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.URI == "" {
		return nil, errors.New("neo4jstore: URI required")
	}
	if cfg.User == "" {
		cfg.User = "neo4j"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxPool <= 0 {
		cfg.MaxPool = 10
	}

	auth := neo4j.BasicAuth(cfg.User, cfg.Password, "")
	driver, err := neo4j.NewDriverWithContext(cfg.URI, auth, func(c *neo4j.Config) {
		c.MaxConnectionPoolSize = cfg.MaxPool
		c.SocketConnectTimeout = cfg.Timeout
	})
	if err != nil {
		return nil, fmt.Errorf("neo4jstore: init driver: %w", err)
	}

	vctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := driver.VerifyConnectivity(vctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("neo4jstore: verify connectivity: %w", err)
	}
	logging.Info("graph", "connected to %s", cfg.URI)

	return &Store{driver: driver, database: cfg.Database, q: buildQueries()}, nil
}

func (s *Store) Close(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}
	err := s.driver.Close(ctx)
	s.driver = nil
	return err
}

// write runs one statement in a write transaction and returns its records.
func (s *Store) write(ctx context.Context, query string, params map[string]any) ([]*neo4j.Record, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: s.database,
	})
	defer session.Close(ctx)

	out, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, err
	}
	return out.([]*neo4j.Record), nil
}

func (s *Store) read(ctx context.Context, query string) ([]*neo4j.Record, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: s.database,
	})
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, nil)
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, err
	}
	return out.([]*neo4j.Record), nil
}

func (s *Store) Clear(ctx context.Context) error {
	_, err := s.write(ctx, queryClear, nil)
	return err
}

func (s *Store) EnsureConstraint(ctx context.Context, l graph.Label) error {
	stmt, ok := s.q.constraint[l]
	if !ok {
		return fmt.Errorf("unknown label %q", l)
	}
	_, err := s.write(ctx, stmt, nil)
	var nerr *neo4j.Neo4jError
	if errors.As(err, &nerr) && strings.Contains(nerr.Code, "AlreadyExists") {
		return nil
	}
	return err
}

func (s *Store) UpsertNode(ctx context.Context, l graph.Label, key string, props map[string]any) error {
	stmt, ok := s.q.upsert[l]
	if !ok {
		return fmt.Errorf("unknown label %q", l)
	}
	clean := make(map[string]any, len(props))
	for k, v := range props {
		if v = value(v); v != nil {
			clean[k] = v
		}
	}
	_, err := s.write(ctx, stmt, map[string]any{"key": key, "props": clean})
	return err
}

func (s *Store) MergeEdge(ctx context.Context, e graph.EdgeSpec) (bool, error) {
	stmt, ok := s.q.edge[e.Relation]
	if !ok {
		return false, fmt.Errorf("%s: %w", e.Relation, graph.ErrUnknownRelation)
	}
	recs, err := s.write(ctx, stmt, map[string]any{"from": e.FromKey, "to": e.ToKey})
	if err != nil {
		return false, err
	}
	return len(recs) > 0 && count(recs[0], "c") > 0, nil
}

func (s *Store) Counts(ctx context.Context) (int, int, error) {
	recs, err := s.read(ctx, queryCounts)
	if err != nil {
		return 0, 0, err
	}
	if len(recs) == 0 {
		return 0, 0, nil
	}
	return count(recs[0], "nodes"), count(recs[0], "edges"), nil
}

func (s *Store) Snapshot(ctx context.Context) (*graph.Snapshot, error) {
	snap := &graph.Snapshot{Nodes: []graph.Node{}, Edges: []graph.EdgeSpec{}}

	recs, err := s.read(ctx, querySnapshotNodes)
	if err != nil {
		return nil, fmt.Errorf("snapshot nodes: %w", err)
	}
	for _, r := range recs {
		label, props := labelAndProps(r, "labels", "props")
		snap.Nodes = append(snap.Nodes, graph.Node{Label: label, Key: keyOf(label, props), Props: props})
	}

	recs, err = s.read(ctx, querySnapshotEdges)
	if err != nil {
		return nil, fmt.Errorf("snapshot relationships: %w", err)
	}
	for _, r := range recs {
		fromLabel, fromProps := labelAndProps(r, "from_labels", "from_props")
		toLabel, toProps := labelAndProps(r, "to_labels", "to_props")
		typ, _ := r.Get("type")
		t, _ := typ.(string)
		snap.Edges = append(snap.Edges, graph.EdgeSpec{
			Relation: graph.Relation{From: fromLabel, Type: graph.RelType(t), To: toLabel},
			FromKey:  keyOf(fromLabel, fromProps),
			ToKey:    keyOf(toLabel, toProps),
		})
	}
	return snap, nil
}

func labelAndProps(r *neo4j.Record, labelsKey, propsKey string) (graph.Label, map[string]any) {
	var label graph.Label
	if v, ok := r.Get(labelsKey); ok {
		if labels, ok := v.([]any); ok && len(labels) > 0 {
			s, _ := labels[0].(string)
			label = graph.Label(s)
		}
	}
	props := map[string]any{}
	if v, ok := r.Get(propsKey); ok {
		if m, ok := v.(map[string]any); ok {
			props = m
		}
	}
	return label, props
}

// keyOf finds the identifying property, falling back to name and text for
// labels written under an older taxonomy.
func keyOf(l graph.Label, props map[string]any) string {
	for _, k := range []string{l.KeyProp(), "name", "text"} {
		if s, ok := props[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func count(r *neo4j.Record, key string) int {
	v, ok := r.Get(key)
	if !ok {
		return 0
	}
	n, _ := v.(int64)
	return int(n)
}

// value converts a property to a type the driver can send. Lists decoded
// from JSON arrive as []any and are narrowed to homogeneous lists.
func value(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		if x == "" {
			return nil
		}
		return x
	case []string:
		if len(x) == 0 {
			return nil
		}
		return x
	case []int:
		out := make([]int64, len(x))
		for i, n := range x {
			out[i] = int64(n)
		}
		return out
	case float64:
		if x == math.Trunc(x) {
			return int64(x)
		}
		return x
	case []any:
		if len(x) == 0 {
			return nil
		}
		strs := make([]string, 0, len(x))
		ints := make([]int64, 0, len(x))
		for _, item := range x {
			switch it := item.(type) {
			case string:
				strs = append(strs, it)
			case float64:
				ints = append(ints, int64(it))
			case int64:
				ints = append(ints, it)
			}
		}
		if len(strs) == len(x) {
			return strs
		}
		if len(ints) == len(x) {
			return ints
		}
		return fmt.Sprint(x)
	}
	return v
}
