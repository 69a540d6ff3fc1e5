package normalize

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/vthunder/distill/internal/entity"
	"github.com/vthunder/distill/internal/logging"
	"github.com/vthunder/distill/internal/sessions"
)

// SessionSource is the source label of session transcripts. Only their
// records are tagged with a session id.
const SessionSource = "session"

// Options configures a normalization run.
type Options struct {
	ExtractionsDir string
	OutDir         string
	Aliases        *Table
}

// Result summarizes a run.
type Result struct {
	Files   int
	Failed  int // artifacts that could not be read
	Dropped int // records removed by the alias table
	Sources []string
	Counts  map[entity.Type]int
}

// Run reads every extraction artifact, normalizes its records and writes one
// raw collection per type. The collections are concatenations, not yet
// deduplicated.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if _, err := os.Stat(opts.ExtractionsDir); err != nil {
		return nil, fmt.Errorf("extractions not found (run extract first): %w", err)
	}
	tb := opts.Aliases
	if tb == nil {
		tb = Identity()
	}

	files, err := filepath.Glob(filepath.Join(opts.ExtractionsDir, "*.json"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	logging.Info("normalize", "loading %d extraction files", len(files))

	res := &Result{Counts: map[entity.Type]int{}}
	collected := make(map[entity.Type][]entity.Entity, len(entity.Mergeable))
	var themes []string
	sourcesSeen := map[string]bool{}

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		x, err := entity.ReadExtraction(path)
		if err != nil {
			logging.Error("normalize", "skipping %s: %v", filepath.Base(path), err)
			res.Failed++
			continue
		}
		res.Files++

		stem := strings.TrimSuffix(filepath.Base(path), ".json")
		source, sessionID := stem, stem
		if x.Meta != nil {
			if x.Meta.Source != "" {
				source = x.Meta.Source
			}
			if x.Meta.SessionID != "" {
				sessionID = x.Meta.SessionID
			}
		}
		sourcesSeen[source] = true

		for _, t := range entity.Mergeable {
			for _, rec := range x.Records[t] {
				n, ok := tb.Entity(t, rec)
				if !ok {
					res.Dropped++
					continue
				}
				n.Source = source
				if source == SessionSource {
					n.SessionIDs = entity.Union(n.SessionIDs, []string{sessions.ShortID(sessionID)})
				}
				collected[t] = append(collected[t], n)
			}
		}
		themes = append(themes, x.Themes...)
	}

	for s := range sourcesSeen {
		res.Sources = append(res.Sources, s)
	}
	sort.Strings(res.Sources)

	for _, t := range entity.Mergeable {
		recs := collected[t]
		if recs == nil {
			recs = []entity.Entity{}
		}
		if err := entity.WriteJSON(filepath.Join(opts.OutDir, string(t)+".json"), recs); err != nil {
			return nil, err
		}
		res.Counts[t] = len(recs)
	}
	themes = Themes(themes)
	sort.Strings(themes)
	if themes == nil {
		themes = []string{}
	}
	if err := entity.WriteJSON(filepath.Join(opts.OutDir, string(entity.Themes)+".json"), themes); err != nil {
		return nil, err
	}
	res.Counts[entity.Themes] = len(themes)

	total := 0
	for _, t := range entity.All {
		total += res.Counts[t]
		logging.Debug("normalize", "%-20s %4d", t, res.Counts[t])
	}
	logging.Info("normalize", "%d entities from %s (%d dropped, %d unreadable files)",
		total, strings.Join(res.Sources, ", "), res.Dropped, res.Failed)
	return res, nil
}
