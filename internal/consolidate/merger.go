package consolidate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/vthunder/distill/internal/budget"
	"github.com/vthunder/distill/internal/completion"
	"github.com/vthunder/distill/internal/entity"
	"github.com/vthunder/distill/internal/logging"
	"github.com/vthunder/distill/internal/retry"
)

// Settings configures a Merger.
type Settings struct {
	Model     string
	MaxTokens int
	Pricing   completion.Pricing
	BatchSize func(t entity.Type) int
	Retry     retry.Policy
}

// Merger folds raw per-type collections into canonical ones, asking the
// completion service to judge which entries describe the same thing.
type Merger struct {
	completer completion.Completer
	governor  *budget.Governor
	settings  Settings
}

func NewMerger(c completion.Completer, g *budget.Governor, s Settings) *Merger {
	return &Merger{completer: c, governor: g, settings: s}
}

// Stats describes the merge of one type.
type Stats struct {
	In      int
	Folded  int // after the exact-key fold
	Out     int
	Batches int
	Failed  int // batches returned unchanged
	Passes  int
}

func (m *Merger) batchSize(t entity.Type) int {
	if m.settings.BatchSize != nil {
		if n := m.settings.BatchSize(t); n > 0 {
			return n
		}
	}
	return 50
}

// MergeType returns the canonical collection for raw. Batch failures leave
// their input in the result; only run-level errors are returned.
func (m *Merger) MergeType(ctx context.Context, t entity.Type, raw []entity.Entity) ([]entity.Entity, Stats, error) {
	st := Stats{In: len(raw)}
	if len(raw) == 0 {
		return []entity.Entity{}, st, nil
	}

	folded := entity.FoldSameKey(t, raw)
	st.Folded = len(folded)
	size := m.batchSize(t)

	out, err := m.pass(ctx, t, sortedByKey(t, folded), size, &st)
	if err != nil {
		return nil, st, err
	}
	if st.Batches > 1 {
		// duplicates split across batches only meet in a second pass
		logging.Info("consolidate", "%s: consolidation pass over %d entries", t, len(out))
		out, err = m.pass(ctx, t, sortedByKey(t, out), size, &st)
		if err != nil {
			return nil, st, err
		}
	}

	out = finish(t, out, raw)
	st.Out = len(out)
	return out, st, nil
}

// pass merges entries batch by batch and concatenates the results.
func (m *Merger) pass(ctx context.Context, t entity.Type, entries []entity.Entity, size int, st *Stats) ([]entity.Entity, error) {
	st.Passes++
	n := (len(entries) + size - 1) / size
	if n > 1 {
		logging.Info("consolidate", "%s: %d entries -> %d batches of %d", t, len(entries), n, size)
	}
	var out []entity.Entity
	for i := 0; i < len(entries); i += size {
		end := min(i+size, len(entries))
		batch := entries[i:end]
		st.Batches++

		merged, err := m.mergeBatch(ctx, t, batch)
		if err != nil {
			if fatal(err) || ctx.Err() != nil {
				return nil, err
			}
			logging.Warn("consolidate", "%s batch %d/%d kept unchanged: %v", t, i/size+1, n, err)
			st.Failed++
			merged = batch
		}
		out = append(out, merged...)
	}
	return out, nil
}

var (
	errTruncated   = errors.New("output truncated")
	errUnparseable = errors.New("output is not a JSON array")
	errEmpty       = errors.New("merge returned no entries")
)

// fatal reports errors that abort the stage.
func fatal(err error) bool {
	var exhausted *retry.ExhaustedError
	return errors.Is(err, budget.ErrBudgetExceeded) ||
		errors.Is(err, completion.ErrModelNotFound) ||
		errors.As(err, &exhausted)
}

func (m *Merger) mergeBatch(ctx context.Context, t entity.Type, batch []entity.Entity) ([]entity.Entity, error) {
	if err := m.governor.Allow(); err != nil {
		return nil, err
	}
	prompt, err := buildPrompt(t, batch)
	if err != nil {
		return nil, err
	}
	logging.Debug("consolidate", "%s: %d entries, ~%d tokens", t, len(batch), len(prompt)/4)

	resp, err := retry.DoWithResult(ctx, m.settings.Retry, func() (*completion.Response, error) {
		return m.completer.Complete(ctx, completion.Request{
			Model:     m.settings.Model,
			MaxTokens: m.settings.MaxTokens,
			Prompt:    prompt,
		})
	})
	if err != nil {
		return nil, err
	}

	cost := m.settings.Pricing.Cost(resp)
	logging.Info("consolidate", "%s: $%.3f (in:%d out:%d)", t, cost, resp.InputTokens, resp.OutputTokens)
	if err := m.governor.Charge(ctx, cost); err != nil {
		return nil, err
	}
	if resp.Truncated() {
		return nil, errTruncated
	}
	return parseBatch(t, resp.Text)
}

// parseBatch decodes the model's array, logging and removing the hint
// element. A bare object is accepted as a one-element array.
func parseBatch(t entity.Type, text string) ([]entity.Entity, error) {
	payload := completion.Payload(text, "[", "{")
	var items []json.RawMessage
	if err := json.Unmarshal([]byte(payload), &items); err != nil {
		var single map[string]json.RawMessage
		if json.Unmarshal([]byte(payload), &single) != nil {
			return nil, fmt.Errorf("%w (%d chars)", errUnparseable, len(payload))
		}
		items = []json.RawMessage{json.RawMessage(payload)}
	}

	out := make([]entity.Entity, 0, len(items))
	skipped := 0
	for _, item := range items {
		var fields map[string]json.RawMessage
		if json.Unmarshal(item, &fields) == nil {
			if hint, ok := fields[hintKey]; ok {
				logging.Info("consolidate", "%s duplicate hints: %s", t, logging.Truncate(string(hint), 500))
				continue
			}
		}
		e, err := entity.Decode(t, item)
		if err != nil {
			skipped++
			continue
		}
		out = append(out, e)
	}
	if skipped > 0 {
		logging.Debug("consolidate", "%s: dropped %d invalid entries from model output", t, skipped)
	}
	if len(out) == 0 {
		return nil, errEmpty
	}
	return out, nil
}

// finish strips source tags, folds entries the model left with identical
// keys and unions the provenance of every raw entry into the canonical entry
// with the same key.
func finish(t entity.Type, out, raw []entity.Entity) []entity.Entity {
	for i := range out {
		out[i].Source = ""
	}
	out = entity.FoldSameKey(t, out)

	index := make(map[string]int, len(out))
	for i, e := range out {
		index[e.Key(t)] = i
	}
	for _, r := range raw {
		if i, ok := index[r.Key(t)]; ok {
			entity.AddProvenance(&out[i], r)
		}
	}
	return out
}

func sortedByKey(t entity.Type, entries []entity.Entity) []entity.Entity {
	s := append([]entity.Entity(nil), entries...)
	sort.SliceStable(s, func(i, j int) bool { return s[i].Key(t) < s[j].Key(t) })
	return s
}
