package graph_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vthunder/distill/internal/graph"
	"github.com/vthunder/distill/internal/graph/sqlitestore"
)

var mergedFixture = map[string]string{
	"personen.json": `[
		{"name": "anton", "kennt": ["timo"], "mitglied_von": ["yoga vidya"], "interessiert_an": ["vertrauen"], "session_ids": ["a1"]},
		{"name": "timo", "rolle": "visionär", "arbeitet_mit": ["anton", "kuno"]}
	]`,
	"organisationen.json": `[{"name": "yoga vidya", "mitglieder": ["timo"], "foerdert": ["web-of-trust"], "themen": ["gemeinschaft"]}]`,
	"projekte.json":       `[{"name": "web-of-trust", "personen": ["anton"], "gehoert_zu": ["yoga vidya"], "themen": ["vertrauen"]}]`,
	"erkenntnisse.json":   `[{"name": "vertrauen braucht zeit", "personen": ["timo"], "themen": ["vertrauen"], "msg_refs": [3], "session_ids": ["a1"]}]`,
	"fragen.json":         `[{"text": "wie finanzieren wir das?", "status": "offen", "projekt": "web-of-trust", "personen": ["anton"]}]`,
	"themen.json":         `["vertrauen", "gemeinschaft"]`,
}

const (
	fixtureNodes = 8
	fixtureEdges = 14 // timo WORKS_WITH kuno has no target
)

type env struct {
	store   *sqlitestore.Store
	merged  string
	backups string
}

func setup(t *testing.T) *env {
	t.Helper()
	dir := t.TempDir()
	merged := filepath.Join(dir, "merged")
	require.NoError(t, os.MkdirAll(merged, 0755))
	for name, content := range mergedFixture {
		require.NoError(t, os.WriteFile(filepath.Join(merged, name), []byte(content), 0644))
	}
	s, err := sqlitestore.Open(filepath.Join(dir, "graph.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close(context.Background()) })
	return &env{store: s, merged: merged, backups: filepath.Join(dir, "backups")}
}

func (e *env) opts() graph.Options {
	return graph.Options{MergedDir: e.merged, BackupDir: e.backups}
}

func TestRunBuildsGraph(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	rep, err := graph.NewBuilder(e.store).Run(ctx, e.opts())
	require.NoError(t, err)
	assert.Equal(t, fixtureNodes, rep.PlannedNodes)
	assert.Equal(t, fixtureEdges+1, rep.PlannedEdges)
	assert.Equal(t, fixtureNodes, rep.Nodes)
	assert.Equal(t, fixtureEdges, rep.Relations)
	assert.Equal(t, 1, rep.Skipped)
	assert.FileExists(t, rep.Backup)

	snap, err := e.store.Snapshot(ctx)
	require.NoError(t, err)
	var insight *graph.Node
	for i := range snap.Nodes {
		if snap.Nodes[i].Label == graph.LabelInsight {
			insight = &snap.Nodes[i]
		}
	}
	require.NotNil(t, insight)
	assert.Equal(t, []any{float64(3)}, insight.Props["msg_refs"])
	assert.Equal(t, []any{"a1"}, insight.Props["session_ids"])
	assert.NotContains(t, insight.Props, "personen")
}

func TestRunDeterministic(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	b := graph.NewBuilder(e.store)

	first, err := b.Run(ctx, e.opts())
	require.NoError(t, err)
	second, err := b.Run(ctx, e.opts())
	require.NoError(t, err)

	assert.Equal(t, first.Nodes, second.Nodes)
	assert.Equal(t, first.Relations, second.Relations)
	assert.Equal(t, first.Skipped, second.Skipped)
}

func TestRunBackupOnly(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	require.NoError(t, e.store.UpsertNode(ctx, graph.LabelPerson, "alt", nil))

	opts := e.opts()
	opts.BackupOnly = true
	rep, err := graph.NewBuilder(e.store).Run(ctx, opts)
	require.NoError(t, err)

	nodes, _, err := e.store.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, nodes, "backup-only must not touch the graph")

	snap, err := graph.ReadSnapshot(rep.Backup)
	require.NoError(t, err)
	assert.Equal(t, graph.TaxonomyVersion, snap.TaxonomyVersion)
	require.Len(t, snap.Nodes, 1)
	assert.Equal(t, "alt", snap.Nodes[0].Key)

	matches, _ := filepath.Glob(filepath.Join(e.backups, "graph_backup_*.json"))
	assert.Len(t, matches, 1)
}

func TestRunDryRun(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	require.NoError(t, e.store.UpsertNode(ctx, graph.LabelPerson, "alt", nil))

	opts := e.opts()
	opts.DryRun = true
	rep, err := graph.NewBuilder(e.store).Run(ctx, opts)
	require.NoError(t, err)
	assert.Equal(t, fixtureNodes, rep.PlannedNodes)
	assert.Equal(t, fixtureEdges+1, rep.PlannedEdges)

	nodes, edges, err := e.store.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, nodes)
	assert.Equal(t, 0, edges)
}

func TestRunNoClear(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	require.NoError(t, e.store.UpsertNode(ctx, graph.LabelPerson, "alt", map[string]any{"rolle": "gast"}))

	opts := e.opts()
	opts.NoClear = true
	rep, err := graph.NewBuilder(e.store).Run(ctx, opts)
	require.NoError(t, err)
	assert.Equal(t, fixtureNodes+1, rep.Nodes)
}

func TestRunMissingMergedDir(t *testing.T) {
	e := setup(t)
	opts := e.opts()
	opts.MergedDir = filepath.Join(t.TempDir(), "merged")
	_, err := graph.NewBuilder(e.store).Run(context.Background(), opts)
	assert.Error(t, err)
}

func TestRestoreFromBackup(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	b := graph.NewBuilder(e.store)

	_, err := b.Run(ctx, e.opts())
	require.NoError(t, err)
	path, err := b.Backup(ctx, e.backups)
	require.NoError(t, err)

	// a failed rebuild leaves a partial graph behind
	require.NoError(t, e.store.Clear(ctx))
	require.NoError(t, e.store.UpsertNode(ctx, graph.LabelTheme, "halb", nil))

	rep, err := graph.Restore(ctx, e.store, path)
	require.NoError(t, err)
	assert.Equal(t, fixtureNodes, rep.Nodes)
	assert.Equal(t, fixtureEdges, rep.Relations)
	assert.Equal(t, 0, rep.Skipped)

	snap, err := e.store.Snapshot(ctx)
	require.NoError(t, err)
	for _, n := range snap.Nodes {
		assert.NotEqual(t, "halb", n.Key)
	}
}

func TestRestoreSkipsUnknownLabels(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "old.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"taxonomy_version": "v1",
		"nodes": [
			{"label": "Person", "key": "anton", "props": {"name": "anton"}},
			{"label": "Thema", "key": "vertrauen", "props": {"name": "vertrauen"}}
		],
		"edges": [
			{"from_label": "Person", "type": "KENNT", "to_label": "Person", "from": "anton", "to": "anton"}
		]
	}`), 0644))

	rep, err := graph.Restore(ctx, e.store, path)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Nodes)
	assert.Equal(t, 0, rep.Relations)
	assert.Equal(t, 2, rep.Skipped)
}
