package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vthunder/distill/internal/budget"
	"github.com/vthunder/distill/internal/entity"
	"github.com/vthunder/distill/internal/logging"
	"github.com/vthunder/distill/internal/manifest"
	"github.com/vthunder/distill/internal/sessions"
	"github.com/vthunder/distill/internal/sources"
)

// Source selectors.
const (
	SourceSession = "session"
	SourceAll     = "all"
)

// SessionSource lists and loads transcripts. *sessions.Store implements it.
type SessionSource interface {
	List(ctx context.Context, prefix string) ([]sessions.Summary, error)
	Get(ctx context.Context, id string) (*sessions.Transcript, error)
}

// Options selects what a run processes.
type Options struct {
	Source        string // session, telegram, stimme or all
	SessionPrefix string
	DryRun        bool

	OutDir          string
	ChatPath        string
	ReflectionsPath string
}

func (o Options) wants(source string) bool {
	return o.Source == "" || o.Source == SourceAll || o.Source == source
}

// Report summarizes a run.
type Report struct {
	Processed int
	Skipped   int
	Failed    int
	Planned   []string // dry run only
}

// Runner drives the extractor over sessions and auxiliary sources and keeps
// the manifest current.
type Runner struct {
	extractor *Extractor
	governor  *budget.Governor
	manifest  *manifest.Manifest
	sessions  SessionSource
}

// NewRunner creates a runner. store may be nil when only auxiliary sources
// are extracted.
func NewRunner(x *Extractor, g *budget.Governor, m *manifest.Manifest, store SessionSource) *Runner {
	return &Runner{extractor: x, governor: g, manifest: m, sessions: store}
}

// Run processes everything selected by opts that the manifest does not
// already mark as done. The manifest is saved after every transcript and
// before any run-level error is returned.
func (r *Runner) Run(ctx context.Context, opts Options) (*Report, error) {
	rep := &Report{}
	if !opts.DryRun {
		if err := os.MkdirAll(opts.OutDir, 0755); err != nil {
			return rep, fmt.Errorf("create extraction dir: %w", err)
		}
	}

	if opts.wants(SourceSession) {
		if err := r.runSessions(ctx, opts, rep); err != nil {
			return rep, r.abort(ctx, err)
		}
	}
	for _, aux := range []struct {
		label string
		path  string
		load  func(string) (*sessions.Transcript, error)
	}{
		{sources.ChatLabel, opts.ChatPath, sources.LoadChat},
		{sources.ReflectionsLabel, opts.ReflectionsPath, sources.LoadReflections},
	} {
		if !opts.wants(aux.label) {
			continue
		}
		if err := r.runSource(ctx, opts, rep, aux.label, aux.path, aux.load); err != nil {
			return rep, r.abort(ctx, err)
		}
	}

	if opts.DryRun {
		return rep, nil
	}
	r.manifest.SetSpend(r.governor.Tracker.Total(), r.governor.Tracker.Calls())
	r.manifest.RecountSessions()
	if err := r.manifest.Save(); err != nil {
		return rep, err
	}
	logging.Info("extract", "done: %d processed, %d skipped, %d failed, $%.2f total",
		rep.Processed, rep.Skipped, rep.Failed, r.governor.Tracker.Total())
	return rep, nil
}

// abort persists the manifest before a run-level error propagates.
func (r *Runner) abort(ctx context.Context, err error) error {
	r.manifest.SetSpend(r.governor.Tracker.Total(), r.governor.Tracker.Calls())
	if saveErr := r.manifest.Save(); saveErr != nil {
		logging.Error("extract", "failed to save manifest: %v", saveErr)
	}
	if errors.Is(err, budget.ErrBudgetExceeded) {
		r.governor.NotifyStop(context.WithoutCancel(ctx))
	}
	return err
}

func (r *Runner) runSessions(ctx context.Context, opts Options, rep *Report) error {
	if r.sessions == nil {
		if opts.Source == SourceSession {
			return errors.New("no session archive available")
		}
		logging.Warn("extract", "no session archive, skipping sessions")
		return nil
	}
	list, err := r.sessions.List(ctx, opts.SessionPrefix)
	if err != nil {
		return err
	}
	logging.Info("extract", "sessions: %d", len(list))

	for _, s := range list {
		if r.manifest.SessionDone(s.ID) {
			logging.Debug("extract", "%s skipped (already extracted)", sessions.ShortID(s.ID))
			rep.Skipped++
			continue
		}
		if opts.DryRun {
			rep.Planned = append(rep.Planned, fmt.Sprintf("%s (%d msgs) %s", sessions.ShortID(s.ID), s.MsgCount, s.Title))
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		t, err := r.sessions.Get(ctx, s.ID)
		if err != nil {
			logging.Error("extract", "failed to load %s: %v", sessions.ShortID(s.ID), err)
			r.manifest.MarkSession(s.ID, manifest.Session{Status: manifest.StatusFailed})
			rep.Failed++
			if err := r.saveProgress(); err != nil {
				return err
			}
			continue
		}

		out, err := r.extractor.ExtractTranscript(ctx, t)
		if err != nil {
			return err
		}
		if !out.OK() {
			r.manifest.MarkSession(s.ID, manifest.Session{Status: manifest.StatusFailed})
			rep.Failed++
		} else {
			path := filepath.Join(opts.OutDir, sessions.ShortID(s.ID)+".json")
			if err := entity.WriteJSON(path, out.Extraction); err != nil {
				return fmt.Errorf("write artifact: %w", err)
			}
			meta := out.Extraction.Meta
			r.manifest.MarkSession(s.ID, manifest.Session{
				Status:      manifest.StatusOK,
				Chunks:      meta.Chunks,
				CostUSD:     meta.CostUSD,
				ExtractedAt: meta.ExtractedAt,
			})
			rep.Processed++
		}
		if err := r.saveProgress(); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) runSource(ctx context.Context, opts Options, rep *Report, label, path string, load func(string) (*sessions.Transcript, error)) error {
	if r.manifest.SourceDone(label) {
		logging.Debug("extract", "%s skipped (already extracted)", label)
		rep.Skipped++
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		logging.Warn("extract", "%s not found, skipping %s", path, label)
		return nil
	}
	if opts.DryRun {
		rep.Planned = append(rep.Planned, label)
		return nil
	}

	t, err := load(path)
	if err != nil {
		logging.Error("extract", "failed to load %s: %v", label, err)
		rep.Failed++
		return nil
	}
	out, err := r.extractor.ExtractTranscript(ctx, t)
	if err != nil {
		return err
	}
	if !out.OK() {
		r.manifest.MarkSource(label, manifest.Source{Status: manifest.StatusFailed})
		rep.Failed++
	} else {
		if err := entity.WriteJSON(filepath.Join(opts.OutDir, label+".json"), out.Extraction); err != nil {
			return fmt.Errorf("write artifact: %w", err)
		}
		r.manifest.MarkSource(label, manifest.Source{Status: manifest.StatusOK, CostUSD: out.Extraction.Meta.CostUSD})
		rep.Processed++
	}
	return r.saveProgress()
}

func (r *Runner) saveProgress() error {
	r.manifest.SetSpend(r.governor.Tracker.Total(), r.governor.Tracker.Calls())
	return r.manifest.Save()
}
