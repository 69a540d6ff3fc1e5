// Package sqlitestore keeps the property graph in a single SQLite file. It
// is used for offline runs and tests; production graphs live in Neo4j.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure Go driver, registers "sqlite"

	"github.com/vthunder/distill/internal/graph"
)

const schema = `
CREATE TABLE IF NOT EXISTS nodes (
	id    INTEGER PRIMARY KEY AUTOINCREMENT,
	label TEXT NOT NULL,
	key   TEXT NOT NULL,
	props TEXT NOT NULL DEFAULT '{}',
	UNIQUE(label, key)
);

CREATE TABLE IF NOT EXISTS edges (
	from_id INTEGER NOT NULL,
	type    TEXT NOT NULL,
	to_id   INTEGER NOT NULL,
	PRIMARY KEY (from_id, type, to_id),
	FOREIGN KEY (from_id) REFERENCES nodes(id) ON DELETE CASCADE,
	FOREIGN KEY (to_id) REFERENCES nodes(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_edges_to ON edges(to_id);
`

// Store is a graph.Store backed by SQLite.
type Store struct {
	db   *sql.DB
	path string

	// constraint DDL per label, built from the taxonomy
	constraints map[graph.Label]string
}

var _ graph.Store = (*Store)(nil)

// Open opens or creates the graph database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open graph database: %w", err)
	}
	// one connection keeps the pragmas in effect for every statement
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	s := &Store{db: db, path: path, constraints: map[graph.Label]string{}}
	for _, l := range graph.Labels {
		s.constraints[l] = fmt.Sprintf(
			"CREATE UNIQUE INDEX IF NOT EXISTS uniq_%s_%s ON nodes(key) WHERE label = '%s'",
			l, l.KeyProp(), l)
	}
	return s, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.db.Close()
}

func (s *Store) Clear(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM edges`); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM nodes`); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) EnsureConstraint(ctx context.Context, l graph.Label) error {
	stmt, ok := s.constraints[l]
	if !ok {
		return fmt.Errorf("unknown label %q", l)
	}
	_, err := s.db.ExecContext(ctx, stmt)
	return err
}

// UpsertNode merges props into the stored properties; keys present in
// props overwrite, others are kept.
func (s *Store) UpsertNode(ctx context.Context, l graph.Label, key string, props map[string]any) error {
	if !l.Valid() {
		return fmt.Errorf("unknown label %q", l)
	}
	merged := map[string]any{}
	var existing string
	err := s.db.QueryRowContext(ctx, `SELECT props FROM nodes WHERE label = ? AND key = ?`, string(l), key).Scan(&existing)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("failed to read node: %w", err)
	default:
		if err := json.Unmarshal([]byte(existing), &merged); err != nil {
			return fmt.Errorf("corrupt props for %s %q: %w", l, key, err)
		}
	}
	for k, v := range props {
		merged[k] = v
	}
	merged[l.KeyProp()] = key

	data, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("marshal props: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO nodes (label, key, props) VALUES (?, ?, ?)
		ON CONFLICT(label, key) DO UPDATE SET props = excluded.props
	`, string(l), key, string(data))
	if err != nil {
		return fmt.Errorf("failed to upsert node: %w", err)
	}
	return nil
}

func (s *Store) nodeID(ctx context.Context, l graph.Label, key string) (int64, bool, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM nodes WHERE label = ? AND key = ?`, string(l), key).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

func (s *Store) MergeEdge(ctx context.Context, e graph.EdgeSpec) (bool, error) {
	if !e.Relation.Valid() {
		return false, fmt.Errorf("%s: %w", e.Relation, graph.ErrUnknownRelation)
	}
	from, ok, err := s.nodeID(ctx, e.From, e.FromKey)
	if err != nil || !ok {
		return false, err
	}
	to, ok, err := s.nodeID(ctx, e.To, e.ToKey)
	if err != nil || !ok {
		return false, err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO edges (from_id, type, to_id) VALUES (?, ?, ?)`,
		from, string(e.Type), to)
	if err != nil {
		return false, fmt.Errorf("failed to insert edge: %w", err)
	}
	return true, nil
}

func (s *Store) Counts(ctx context.Context) (int, int, error) {
	var nodes, edges int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM nodes`).Scan(&nodes); err != nil {
		return 0, 0, err
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM edges`).Scan(&edges); err != nil {
		return 0, 0, err
	}
	return nodes, edges, nil
}

func (s *Store) Snapshot(ctx context.Context) (*graph.Snapshot, error) {
	snap := &graph.Snapshot{Nodes: []graph.Node{}, Edges: []graph.EdgeSpec{}}

	rows, err := s.db.QueryContext(ctx, `SELECT label, key, props FROM nodes ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query nodes: %w", err)
	}
	for rows.Next() {
		var label, key, props string
		if err := rows.Scan(&label, &key, &props); err != nil {
			rows.Close()
			return nil, err
		}
		n := graph.Node{Label: graph.Label(label), Key: key, Props: map[string]any{}}
		if err := json.Unmarshal([]byte(props), &n.Props); err != nil {
			rows.Close()
			return nil, fmt.Errorf("corrupt props for %s %q: %w", label, key, err)
		}
		snap.Nodes = append(snap.Nodes, n)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT a.label, a.key, e.type, b.label, b.key
		FROM edges e
		JOIN nodes a ON a.id = e.from_id
		JOIN nodes b ON b.id = e.to_id
		ORDER BY e.rowid
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query edges: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var fromLabel, fromKey, typ, toLabel, toKey string
		if err := rows.Scan(&fromLabel, &fromKey, &typ, &toLabel, &toKey); err != nil {
			return nil, err
		}
		snap.Edges = append(snap.Edges, graph.EdgeSpec{
			Relation: graph.Relation{From: graph.Label(fromLabel), Type: graph.RelType(typ), To: graph.Label(toLabel)},
			FromKey:  fromKey,
			ToKey:    toKey,
		})
	}
	return snap, rows.Err()
}
