package main

import (
	"context"
	"fmt"

	"github.com/vthunder/distill/internal/budget"
	"github.com/vthunder/distill/internal/completion"
	"github.com/vthunder/distill/internal/consolidate"
	"github.com/vthunder/distill/internal/entity"
	"github.com/vthunder/distill/internal/extract"
	"github.com/vthunder/distill/internal/graph"
	"github.com/vthunder/distill/internal/graph/backend"
	"github.com/vthunder/distill/internal/logging"
	"github.com/vthunder/distill/internal/manifest"
	"github.com/vthunder/distill/internal/normalize"
	"github.com/vthunder/distill/internal/notify"
	"github.com/vthunder/distill/internal/sessions"
)

type extractParams struct {
	source    string
	sessionID string
	dryRun    bool
}

func stageExtract(ctx context.Context, runID string, p extractParams) error {
	if !p.dryRun {
		if err := cfg.RequireCompletion(); err != nil {
			return err
		}
	}
	m, err := manifest.Load(cfg.ManifestPath())
	if err != nil {
		return err
	}
	m.RunID = runID

	// spend carries over from earlier runs
	tracker := budget.NewTracker(cfg.Extract.BudgetWarn, cfg.Extract.BudgetStop, m.Totals.TotalCostUSD, m.Totals.ChunksProcessed)
	gov := budget.NewGovernor("extract", tracker, notify.FromConfig(cfg.Notify))
	logging.Info("extract", "budget: $%.2f spent, warn $%.2f, stop $%.2f",
		tracker.Total(), cfg.Extract.BudgetWarn, cfg.Extract.BudgetStop)

	client := completion.NewClient(cfg.AnthropicBaseURL, cfg.AnthropicAPIKey, cfg.Extract.Timeout())
	vocab := extract.DefaultVocabulary().Override(extract.Vocabulary{
		Themes:   cfg.Vocabulary.Themes,
		Projects: cfg.Vocabulary.Projects,
		Glossary: cfg.Vocabulary.Glossary,
	})
	x := extract.NewExtractor(client, gov, extract.Settings{
		Model:     cfg.Extract.Name,
		MaxTokens: cfg.Extract.MaxTokens,
		Pricing:   completion.Pricing{InputPerMTok: cfg.Extract.InputPerMTok, OutputPerMTok: cfg.Extract.OutputPerMTok},
		Retry:     completion.OverloadPolicy("extract", cfg.Extract.RetryAttempts, cfg.Extract.RetryBackoff()),
		Limits: extract.Limits{
			MaxMessages: cfg.Extract.ChunkSize,
			MaxChars:    cfg.Extract.ChunkChars,
		},
		Renderer: extract.Renderer{
			Vocabulary:  vocab,
			MessageMax:  cfg.Extract.MessageMax,
			MessageKeep: cfg.Extract.MessageKeep,
			MaxChars:    cfg.Extract.ChunkChars,
		},
	})

	var store extract.SessionSource
	if p.source == "" || p.source == extract.SourceAll || p.source == extract.SourceSession {
		s, err := sessions.Open(cfg.SessionDBPath())
		if err != nil {
			logging.Warn("extract", "%v", err)
		} else {
			defer s.Close()
			store = s
		}
	}

	rep, err := extract.NewRunner(x, gov, m, store).Run(ctx, extract.Options{
		Source:          p.source,
		SessionPrefix:   p.sessionID,
		DryRun:          p.dryRun,
		OutDir:          cfg.ExtractionsDir(),
		ChatPath:        cfg.ChatPath(),
		ReflectionsPath: cfg.ReflectionsPath(),
	})
	if rep != nil && p.dryRun {
		logging.Info("extract", "dry run: %d to process", len(rep.Planned))
		for _, id := range rep.Planned {
			logging.Info("extract", "  %s", id)
		}
	}
	return err
}

func stageNormalize(ctx context.Context) error {
	aliases, err := normalize.LoadAliases(cfg.AliasesFile())
	if err != nil {
		return err
	}
	res, err := normalize.Run(ctx, normalize.Options{
		ExtractionsDir: cfg.ExtractionsDir(),
		OutDir:         cfg.RawDir(),
		Aliases:        aliases,
	})
	if err != nil {
		return err
	}
	logging.Info("normalize", "%d artifacts (%d unreadable), %d entries dropped by aliases, sources %v",
		res.Files, res.Failed, res.Dropped, res.Sources)
	return nil
}

func stageMerge(ctx context.Context, types []entity.Type) error {
	if err := cfg.RequireCompletion(); err != nil {
		return err
	}
	tracker := budget.NewTracker(cfg.Merge.BudgetWarn, cfg.Merge.BudgetStop, 0, 0)
	gov := budget.NewGovernor("merge", tracker, notify.FromConfig(cfg.Notify))
	client := completion.NewClient(cfg.AnthropicBaseURL, cfg.AnthropicAPIKey, cfg.Merge.Timeout())

	m := consolidate.NewMerger(client, gov, consolidate.Settings{
		Model:     cfg.Merge.Name,
		MaxTokens: cfg.Merge.MaxTokens,
		Pricing:   completion.Pricing{InputPerMTok: cfg.Merge.InputPerMTok, OutputPerMTok: cfg.Merge.OutputPerMTok},
		BatchSize: func(t entity.Type) int { return cfg.Merge.BatchSize(string(t)) },
		Retry:     completion.OverloadPolicy("consolidate", cfg.Merge.RetryAttempts, cfg.Merge.RetryBackoff()),
	})
	res, err := consolidate.Run(ctx, m, consolidate.Options{
		RawDir: cfg.RawDir(),
		OutDir: cfg.MergedDir(),
		Types:  types,
	})
	if res != nil {
		in, out := 0, 0
		for _, st := range res.Types {
			in += st.In
			out += st.Out
		}
		logging.Info("consolidate", "merged %d raw entries into %d", in, out)
	}
	return err
}

func openGraph(ctx context.Context) (graph.Store, error) {
	if err := cfg.RequireGraph(); err != nil {
		return nil, err
	}
	return backend.Open(ctx, backend.Config{
		URI:      cfg.Graph.URI,
		User:     cfg.Graph.User,
		Password: cfg.Graph.Password,
		Database: cfg.Graph.Database,
	})
}

func stageImport(ctx context.Context, opts graph.Options) error {
	store, err := openGraph(ctx)
	if err != nil {
		return err
	}
	defer store.Close(context.WithoutCancel(ctx))

	opts.MergedDir = cfg.MergedDir()
	opts.BackupDir = cfg.BackupDir()
	rep, err := graph.NewBuilder(store).Run(ctx, opts)
	if err != nil {
		if rep != nil && rep.Backup != "" {
			return fmt.Errorf("%w (restore with: distill restore %s)", err, rep.Backup)
		}
		return err
	}
	return nil
}
