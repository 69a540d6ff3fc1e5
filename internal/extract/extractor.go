// Package extract runs the first pipeline stage: it cuts transcripts into
// chunks, asks the completion service for structured entities per chunk and
// writes one extraction artifact per transcript.
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/vthunder/distill/internal/budget"
	"github.com/vthunder/distill/internal/completion"
	"github.com/vthunder/distill/internal/entity"
	"github.com/vthunder/distill/internal/logging"
	"github.com/vthunder/distill/internal/retry"
	"github.com/vthunder/distill/internal/sessions"
)

// Settings configures an Extractor.
type Settings struct {
	Model     string
	MaxTokens int
	Pricing   completion.Pricing
	Retry     retry.Policy
	Limits    Limits
	Renderer  Renderer
}

// Extractor turns transcripts into extractions.
type Extractor struct {
	completer completion.Completer
	governor  *budget.Governor
	settings  Settings
	now       func() time.Time
}

// NewExtractor creates an extractor. The governor is shared by every
// transcript of a run.
func NewExtractor(c completion.Completer, g *budget.Governor, s Settings) *Extractor {
	return &Extractor{completer: c, governor: g, settings: s, now: time.Now}
}

// Outcome is the result of one transcript.
type Outcome struct {
	Extraction *entity.Extraction // nil when no chunk succeeded
	Chunks     int
	Succeeded  int
	CostUSD    float64
}

// OK reports whether at least one chunk produced a result.
func (o *Outcome) OK() bool {
	return o.Succeeded > 0
}

// ExtractTranscript processes the chunks of t in order. Chunk failures are
// logged and skipped. The returned error is non-nil only for run-level
// failures: budget.ErrBudgetExceeded, completion.ErrModelNotFound, an
// overload that outlasted the retry policy and cancellation of ctx.
func (e *Extractor) ExtractTranscript(ctx context.Context, t *sessions.Transcript) (*Outcome, error) {
	chunks := Split(t.Messages, e.settings.Limits, e.settings.Renderer.Sizer(t.UserID))
	out := &Outcome{Chunks: len(chunks)}
	merged := entity.NewExtraction()

	logging.Info("extract", "%s | %s | %d msgs -> %d chunks",
		sessions.ShortID(t.ID), logging.Truncate(t.Title, 50), len(t.Messages), len(chunks))

	for i, c := range chunks {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		if err := e.governor.Allow(); err != nil {
			return out, err
		}

		prompt := e.settings.Renderer.Build(c, t, Position{Index: i + 1, Total: len(chunks)})
		logging.Debug("extract", "chunk %d/%d (%d msgs, ~%d tokens)", i+1, len(chunks), len(c.Messages), len(prompt)/4)

		x, cost, err := e.extractChunk(ctx, prompt)
		out.CostUSD += cost
		if err != nil {
			if isFatal(err) || ctx.Err() != nil {
				return out, err
			}
			logging.Warn("extract", "chunk %d/%d of %s failed: %v", i+1, len(chunks), sessions.ShortID(t.ID), err)
			continue
		}
		merged.Append(x)
		out.Succeeded++
	}

	if out.Succeeded == 0 {
		return out, nil
	}
	merged.Meta = e.meta(t, out)
	out.Extraction = merged
	return out, nil
}

func (e *Extractor) meta(t *sessions.Transcript, o *Outcome) *entity.Meta {
	m := &entity.Meta{
		Source:      t.Source,
		CostUSD:     math.Round(o.CostUSD*10000) / 10000,
		ExtractedAt: e.now().Format("2006-01-02T15:04:05.000000"),
	}
	if t.Source == "session" {
		m.SessionID = t.ID
		m.Title = t.Title
		m.Chunks = o.Chunks
	} else if o.Chunks > 1 {
		m.Chunks = o.Chunks
	}
	if t.DocCount > 0 {
		m.DocCount = t.DocCount
	} else {
		m.MsgCount = len(t.Messages)
	}
	return m
}

// errTruncated and errUnparseable mark per-chunk failures.
var (
	errTruncated   = errors.New("output truncated (stop_reason=max_tokens)")
	errUnparseable = errors.New("output is not valid JSON")
)

// extractChunk makes one call and charges its cost. A budget stop is
// returned even when the call itself succeeded: the chunk's result is not
// trusted past the stop.
func (e *Extractor) extractChunk(ctx context.Context, prompt string) (*entity.Extraction, float64, error) {
	resp, err := retry.DoWithResult(ctx, e.settings.Retry, func() (*completion.Response, error) {
		return e.completer.Complete(ctx, completion.Request{
			Model:     e.settings.Model,
			MaxTokens: e.settings.MaxTokens,
			Prompt:    prompt,
		})
	})
	if err != nil {
		if errors.Is(err, completion.ErrModelNotFound) {
			logging.Error("extract", "model %q not found, aborting without retry", e.settings.Model)
		}
		return nil, 0, err
	}

	cost := e.settings.Pricing.Cost(resp)
	logging.Info("extract", "$%.3f (in:%d out:%d)", cost, resp.InputTokens, resp.OutputTokens)
	if err := e.governor.Charge(ctx, cost); err != nil {
		return nil, cost, err
	}

	if resp.Truncated() {
		return nil, cost, errTruncated
	}
	payload := completion.Payload(resp.Text, "{")
	var x entity.Extraction
	if err := json.Unmarshal([]byte(payload), &x); err != nil {
		return nil, cost, fmt.Errorf("%w (%d chars): %v", errUnparseable, len(payload), err)
	}
	if x.Skipped > 0 {
		logging.Debug("extract", "dropped %d malformed items", x.Skipped)
	}
	return &x, cost, nil
}

// isFatal reports errors that end the run rather than the chunk.
func isFatal(err error) bool {
	var exhausted *retry.ExhaustedError
	return errors.Is(err, budget.ErrBudgetExceeded) ||
		errors.Is(err, completion.ErrModelNotFound) ||
		errors.As(err, &exhausted)
}
