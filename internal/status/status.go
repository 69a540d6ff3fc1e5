// Package status summarizes the pipeline's on-disk state for the CLI and the
// MCP server.
package status

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/vthunder/distill/internal/config"
	"github.com/vthunder/distill/internal/entity"
	"github.com/vthunder/distill/internal/lock"
	"github.com/vthunder/distill/internal/manifest"
)

// Summary is a snapshot of the data directory.
type Summary struct {
	DataDir     string                     `json:"data_dir"`
	LastUpdated string                     `json:"last_updated,omitempty"`
	SessionsOK  int                        `json:"sessions_ok"`
	Failed      []string                   `json:"sessions_failed,omitempty"`
	Sources     map[string]manifest.Source `json:"sources,omitempty"`
	Totals      manifest.Totals            `json:"totals"`
	Extractions int                        `json:"extraction_files"`
	Raw         map[entity.Type]int        `json:"merged_raw,omitempty"`
	Merged      map[entity.Type]int        `json:"merged,omitempty"`
	Backups     []string                   `json:"backups,omitempty"`
	Lock        *lock.Info                 `json:"lock,omitempty"`
}

// Collect reads the manifest and counts the artifacts of every stage.
func Collect(cfg *config.Config) (*Summary, error) {
	m, err := manifest.Load(cfg.ManifestPath())
	if err != nil {
		return nil, err
	}
	s := &Summary{
		DataDir: cfg.DataDir,
		Failed:  m.Failed(),
		Sources: m.Sources,
		Totals:  m.Totals,
		Raw:     countTypes(cfg.RawDir()),
		Merged:  countTypes(cfg.MergedDir()),
	}
	if m.LastUpdated != nil {
		s.LastUpdated = *m.LastUpdated
	}
	for _, sess := range m.Sessions {
		if sess.Status == manifest.StatusOK {
			s.SessionsOK++
		}
	}

	if entries, err := os.ReadDir(cfg.ExtractionsDir()); err == nil {
		for _, e := range entries {
			if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
				s.Extractions++
			}
		}
	}
	s.Backups, _ = filepath.Glob(filepath.Join(cfg.BackupDir(), "graph_backup_*.json"))
	sort.Strings(s.Backups)

	info, alive, err := lock.Inspect(cfg.LockPath())
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if alive {
		s.Lock = info
	}
	return s, nil
}

// countTypes returns the record count per type file in dir; types without a
// file are left out.
func countTypes(dir string) map[entity.Type]int {
	counts := map[entity.Type]int{}
	for _, t := range entity.All {
		path := filepath.Join(dir, string(t)+".json")
		if t == entity.Themes {
			if themes, err := entity.ReadThemes(path); err == nil {
				counts[t] = len(themes)
			}
			continue
		}
		if recs, _, err := entity.ReadRecords(t, path); err == nil {
			counts[t] = len(recs)
		}
	}
	if len(counts) == 0 {
		return nil
	}
	return counts
}
