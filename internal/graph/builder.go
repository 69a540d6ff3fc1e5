package graph

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/vthunder/distill/internal/entity"
	"github.com/vthunder/distill/internal/logging"
)

// Options controls one rebuild.
type Options struct {
	MergedDir  string
	BackupDir  string
	DryRun     bool // report planned counts, write nothing but the backup
	BackupOnly bool
	NoClear    bool
}

// Report describes what a rebuild did.
type Report struct {
	Backup       string
	PlannedNodes int
	PlannedEdges int
	Edges        int // relationships created or already present
	Skipped      int // relationships whose endpoint does not exist
	Nodes        int // final graph counts
	Relations    int
}

// Builder rebuilds a Store from merged collections.
type Builder struct {
	store Store
	now   func() time.Time
}

func NewBuilder(s Store) *Builder {
	return &Builder{store: s, now: time.Now}
}

// Run performs backup, clear, constraints, node upsert and edge creation
// in that order. The rebuild is not atomic: a failure after the clear
// leaves a partial graph, and Restore with the backup written here brings
// the old one back.
func (b *Builder) Run(ctx context.Context, opts Options) (*Report, error) {
	rep := &Report{}

	path, err := b.Backup(ctx, opts.BackupDir)
	if err != nil {
		return rep, err
	}
	rep.Backup = path
	if opts.BackupOnly {
		return rep, nil
	}

	merged, err := LoadMerged(opts.MergedDir)
	if err != nil {
		return rep, err
	}
	for _, t := range entity.Mergeable {
		logging.Info("graph", "  %s: %d", t, len(merged.Records[t]))
	}
	logging.Info("graph", "  %s: %d", entity.Themes, len(merged.Themes))

	plan := BuildPlan(merged)
	rep.PlannedNodes, rep.PlannedEdges = len(plan.Nodes), len(plan.Edges)
	logging.Info("graph", "planned: %d nodes, %d relationships", rep.PlannedNodes, rep.PlannedEdges)
	if opts.DryRun {
		logging.Info("graph", "dry run, graph left untouched")
		return rep, nil
	}

	if !opts.NoClear {
		before, _, err := b.store.Counts(ctx)
		if err != nil {
			return rep, fmt.Errorf("count nodes: %w", err)
		}
		logging.Info("graph", "clearing %d nodes", before)
		if err := b.store.Clear(ctx); err != nil {
			return rep, fmt.Errorf("clear graph: %w", err)
		}
	}

	if err := b.apply(ctx, plan, rep); err != nil {
		return rep, err
	}

	rep.Nodes, rep.Relations, err = b.store.Counts(ctx)
	if err != nil {
		return rep, fmt.Errorf("count graph: %w", err)
	}
	logging.Info("graph", "graph: %d nodes, %d relationships (%d skipped, endpoint missing)",
		rep.Nodes, rep.Relations, rep.Skipped)
	return rep, nil
}

// apply writes constraints, nodes and edges of plan.
func (b *Builder) apply(ctx context.Context, plan *Plan, rep *Report) error {
	for _, l := range Labels {
		if err := b.store.EnsureConstraint(ctx, l); err != nil {
			return fmt.Errorf("constraint %s: %w", l, err)
		}
	}
	for _, n := range plan.Nodes {
		if err := b.store.UpsertNode(ctx, n.Label, n.Key, n.Props); err != nil {
			return fmt.Errorf("upsert %s %q: %w", n.Label, n.Key, err)
		}
	}
	for _, e := range plan.Edges {
		ok, err := b.store.MergeEdge(ctx, e)
		if err != nil {
			return fmt.Errorf("merge %s: %w", e, err)
		}
		if !ok {
			logging.Debug("graph", "skipped %s", e)
			rep.Skipped++
			continue
		}
		rep.Edges++
	}
	return nil
}

// Backup writes a snapshot to dir/graph_backup_<YYYYMMDD_HHMMSS>.json and
// returns its path.
func (b *Builder) Backup(ctx context.Context, dir string) (string, error) {
	snap, err := b.store.Snapshot(ctx)
	if err != nil {
		return "", fmt.Errorf("snapshot graph: %w", err)
	}
	ts := b.now().Format("20060102_150405")
	snap.TaxonomyVersion = TaxonomyVersion
	snap.Timestamp = ts

	path := filepath.Join(dir, "graph_backup_"+ts+".json")
	if err := entity.WriteJSON(path, snap); err != nil {
		return "", fmt.Errorf("write backup: %w", err)
	}
	logging.Info("graph", "backup: %s (%d nodes, %d relationships)", path, len(snap.Nodes), len(snap.Edges))
	return path, nil
}
