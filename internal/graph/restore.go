package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/vthunder/distill/internal/logging"
)

// ReadSnapshot loads a backup written by Builder.Backup.
func ReadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse snapshot %s: %w", path, err)
	}
	return &snap, nil
}

// Restore replaces the graph with the snapshot at path. Nodes and
// relationships outside the current taxonomy cannot be written and are
// counted as skipped.
func Restore(ctx context.Context, s Store, path string) (*Report, error) {
	snap, err := ReadSnapshot(path)
	if err != nil {
		return nil, err
	}
	if snap.TaxonomyVersion != TaxonomyVersion {
		logging.Warn("graph", "snapshot taxonomy %q differs from %q", snap.TaxonomyVersion, TaxonomyVersion)
	}

	plan := &Plan{}
	dropped := 0
	for _, n := range snap.Nodes {
		if !n.Label.Valid() || n.Key == "" {
			dropped++
			continue
		}
		plan.Nodes = append(plan.Nodes, n)
	}
	for _, e := range snap.Edges {
		if !e.Relation.Valid() {
			dropped++
			continue
		}
		plan.Edges = append(plan.Edges, e)
	}
	if dropped > 0 {
		logging.Warn("graph", "%d snapshot entries outside the taxonomy not restored", dropped)
	}

	rep := &Report{Backup: path, PlannedNodes: len(plan.Nodes), PlannedEdges: len(plan.Edges)}
	if err := s.Clear(ctx); err != nil {
		return rep, fmt.Errorf("clear graph: %w", err)
	}
	b := NewBuilder(s)
	if err := b.apply(ctx, plan, rep); err != nil {
		return rep, err
	}
	rep.Skipped += dropped

	rep.Nodes, rep.Relations, err = s.Counts(ctx)
	if err != nil {
		return rep, fmt.Errorf("count graph: %w", err)
	}
	logging.Info("graph", "restored %s: %d nodes, %d relationships", path, rep.Nodes, rep.Relations)
	return rep, nil
}
