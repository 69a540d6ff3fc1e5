// Package consolidate is the semantic merge stage: it turns the raw,
// per-type collections written by normalize into canonical collections in
// which every real-world entity appears once.
package consolidate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/vthunder/distill/internal/budget"
	"github.com/vthunder/distill/internal/entity"
	"github.com/vthunder/distill/internal/logging"
)

// Options selects what Run merges.
type Options struct {
	RawDir string
	OutDir string
	// Types limits the run. Empty means every type, themes included.
	Types []entity.Type
}

// Result summarizes a run.
type Result struct {
	Types map[entity.Type]Stats
}

// Run merges each selected type from RawDir into OutDir. A budget stop or a
// configuration error aborts the run; types finished before that keep their
// output.
func Run(ctx context.Context, m *Merger, opts Options) (*Result, error) {
	if _, err := os.Stat(opts.RawDir); err != nil {
		return nil, fmt.Errorf("%s not found (run normalize first): %w", opts.RawDir, err)
	}
	if err := os.MkdirAll(opts.OutDir, 0755); err != nil {
		return nil, fmt.Errorf("create merge dir: %w", err)
	}

	types := opts.Types
	if len(types) == 0 {
		types = entity.All
	}
	res := &Result{Types: map[entity.Type]Stats{}}

	for _, t := range types {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if t == entity.Themes {
			if err := copyThemes(opts.RawDir, opts.OutDir); err != nil {
				return res, err
			}
			continue
		}

		path := filepath.Join(opts.RawDir, string(t)+".json")
		raw, skipped, err := entity.ReadRecords(t, path)
		if errors.Is(err, os.ErrNotExist) {
			logging.Info("consolidate", "%s: no raw file, skipping", t)
			continue
		}
		if err != nil {
			return res, err
		}
		if skipped > 0 {
			logging.Warn("consolidate", "%s: %d invalid raw entries dropped", t, skipped)
		}

		merged, st, err := m.MergeType(ctx, t, raw)
		if err != nil {
			if errors.Is(err, budget.ErrBudgetExceeded) {
				m.governor.NotifyStop(context.WithoutCancel(ctx))
			}
			return res, fmt.Errorf("merge %s: %w", t, err)
		}
		if err := entity.WriteJSON(filepath.Join(opts.OutDir, string(t)+".json"), merged); err != nil {
			return res, err
		}
		res.Types[t] = st
		logging.Info("consolidate", "%s: %d -> %d entries (%d batches, %d kept unchanged)",
			t, st.In, st.Out, st.Batches, st.Failed)
	}

	logging.Info("consolidate", "merge cost: $%.2f", m.governor.Tracker.Total())
	return res, nil
}

// copyThemes deduplicates the theme list without a model call.
func copyThemes(rawDir, outDir string) error {
	themes, err := entity.ReadThemes(filepath.Join(rawDir, string(entity.Themes)+".json"))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	seen := make(map[string]bool, len(themes))
	out := make([]string, 0, len(themes))
	for _, th := range themes {
		if !seen[th] {
			seen[th] = true
			out = append(out, th)
		}
	}
	sort.Strings(out)
	logging.Info("consolidate", "themen: %d (copied)", len(out))
	return entity.WriteJSON(filepath.Join(outDir, string(entity.Themes)+".json"), out)
}
