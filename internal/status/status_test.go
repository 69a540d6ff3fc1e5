package status

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/vthunder/distill/internal/config"
	"github.com/vthunder/distill/internal/entity"
	"github.com/vthunder/distill/internal/manifest"
)

func TestCollect(t *testing.T) {
	cfg := config.Default()
	cfg.DataDir = t.TempDir()

	m := manifest.New(cfg.ManifestPath())
	m.MarkSession("abcdef1234", manifest.Session{Status: manifest.StatusOK, Chunks: 2})
	m.MarkSession("bbbbbbbb99", manifest.Session{Status: manifest.StatusFailed})
	m.MarkSource("telegram", manifest.Source{Status: manifest.StatusOK, CostUSD: 0.2})
	m.SetSpend(1.25, 3)
	if err := m.Save(); err != nil {
		t.Fatal(err)
	}

	os.MkdirAll(cfg.ExtractionsDir(), 0755)
	os.WriteFile(filepath.Join(cfg.ExtractionsDir(), "abcdef12.json"), []byte(`{}`), 0644)
	os.WriteFile(filepath.Join(cfg.ExtractionsDir(), "notes.txt"), []byte(`x`), 0644)
	if err := entity.WriteJSON(filepath.Join(cfg.MergedDir(), "personen.json"), []map[string]any{{"name": "anton"}, {"name": "timo"}}); err != nil {
		t.Fatal(err)
	}
	if err := entity.WriteJSON(filepath.Join(cfg.MergedDir(), "themen.json"), []string{"vertrauen"}); err != nil {
		t.Fatal(err)
	}

	s, err := Collect(cfg)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if s.SessionsOK != 1 || len(s.Failed) != 1 || s.Failed[0] != "bbbbbbbb99" {
		t.Errorf("unexpected session summary: ok=%d failed=%v", s.SessionsOK, s.Failed)
	}
	if s.Totals.TotalCostUSD != 1.25 || s.Totals.ChunksProcessed != 3 {
		t.Errorf("unexpected totals: %+v", s.Totals)
	}
	if s.Extractions != 1 {
		t.Errorf("expected 1 extraction file, got %d", s.Extractions)
	}
	if s.Merged[entity.Persons] != 2 || s.Merged[entity.Themes] != 1 {
		t.Errorf("unexpected merged counts: %v", s.Merged)
	}
	if s.Raw != nil {
		t.Errorf("no raw files were written, got %v", s.Raw)
	}
	if s.Lock != nil {
		t.Errorf("no lock expected, got %+v", s.Lock)
	}
}
