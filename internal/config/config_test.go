package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	dir := t.TempDir()
	wd, _ := os.Getwd()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(wd)

	t.Setenv("DATA_DIR", "")
	t.Setenv("NEO4J_URI", "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Extract.Name != "claude-haiku-4-5-20251001" {
		t.Errorf("unexpected extract model %q", cfg.Extract.Name)
	}
	if cfg.Extract.ChunkSize != 500 || cfg.Extract.ChunkChars != 160_000 {
		t.Errorf("unexpected chunk limits %d/%d", cfg.Extract.ChunkSize, cfg.Extract.ChunkChars)
	}
	if cfg.Merge.BatchSize("erkenntnisse") != 25 {
		t.Errorf("expected insight batch 25, got %d", cfg.Merge.BatchSize("erkenntnisse"))
	}
	if cfg.Merge.BatchSize("unknown") != 50 {
		t.Errorf("expected fallback batch 50, got %d", cfg.Merge.BatchSize("unknown"))
	}
	for _, m := range []Model{cfg.Extract.Model, cfg.Merge.Model} {
		if m.RetryAttempts != 3 || m.RetryBackoff() != 30*time.Second {
			t.Errorf("unexpected overload retry %d/%s", m.RetryAttempts, m.RetryBackoff())
		}
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "distill.yaml")
	yml := `
data_dir: /srv/distill
extract:
  model: test-model
  budget_stop_usd: 2.5
merge:
  batch_sizes:
    fragen: 10
vocabulary:
  themes: [vertrauen, heilung]
`
	if err := os.WriteFile(path, []byte(yml), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("NEO4J_URI", "sqlite:///tmp/graph.db")
	t.Setenv("DATA_DIR", "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DataDir != "/srv/distill" {
		t.Errorf("data dir = %q", cfg.DataDir)
	}
	if cfg.Extract.Name != "test-model" || cfg.Extract.BudgetStop != 2.5 {
		t.Errorf("extract override not applied: %+v", cfg.Extract.Model)
	}
	// untouched defaults survive a partial file
	if cfg.Extract.MaxTokens != 8000 {
		t.Errorf("max tokens = %d", cfg.Extract.MaxTokens)
	}
	if cfg.Merge.BatchSize("fragen") != 10 {
		t.Errorf("fragen batch = %d", cfg.Merge.BatchSize("fragen"))
	}
	if cfg.Graph.URI != "sqlite:///tmp/graph.db" {
		t.Errorf("env override not applied: %q", cfg.Graph.URI)
	}
	if got := cfg.ManifestPath(); got != "/srv/distill/extraction_manifest.json" {
		t.Errorf("manifest path = %q", got)
	}
	if err := cfg.RequireGraph(); err != nil {
		t.Errorf("sqlite graph needs no password: %v", err)
	}
}

func TestLoadExplicitMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for explicit missing config")
	}
}

func TestRequireCompletion(t *testing.T) {
	cfg := Default()
	if err := cfg.RequireCompletion(); err == nil {
		t.Error("expected missing API key error")
	}
	cfg.AnthropicAPIKey = "k"
	if err := cfg.RequireCompletion(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
