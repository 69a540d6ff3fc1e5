package extract

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vthunder/distill/internal/budget"
	"github.com/vthunder/distill/internal/completion"
	"github.com/vthunder/distill/internal/entity"
	"github.com/vthunder/distill/internal/logging"
	"github.com/vthunder/distill/internal/manifest"
	"github.com/vthunder/distill/internal/retry"
	"github.com/vthunder/distill/internal/sessions"
)

type recordingNotifier struct {
	messages []string
}

func (n *recordingNotifier) Notify(ctx context.Context, text string) error {
	n.messages = append(n.messages, text)
	return nil
}

type memorySessions struct {
	transcripts []*sessions.Transcript
	gets        int
}

func (m *memorySessions) List(ctx context.Context, prefix string) ([]sessions.Summary, error) {
	var out []sessions.Summary
	for _, t := range m.transcripts {
		if strings.HasPrefix(t.ID, prefix) {
			out = append(out, sessions.Summary{ID: t.ID, Title: t.Title, MsgCount: len(t.Messages)})
		}
	}
	return out, nil
}

func (m *memorySessions) Get(ctx context.Context, id string) (*sessions.Transcript, error) {
	m.gets++
	for _, t := range m.transcripts {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, sessions.ErrNotFound
}

func messages(n int) []sessions.Message {
	msgs := make([]sessions.Message, n)
	for i := range msgs {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		msgs[i] = sessions.Message{Role: role, Text: fmt.Sprintf("Nachricht Nummer %d", i)}
	}
	return msgs
}

func transcript(id string, n int) *sessions.Transcript {
	return &sessions.Transcript{ID: id, Title: "Test " + id, UserID: "anton", Source: "session", Describe: "session", Messages: messages(n)}
}

// newTestExtractor charges $1 per million input tokens and retries
// overloads three times without waiting.
func newTestExtractor(script *completion.Script, warn, stop float64, n budget.Notifier) (*Extractor, *budget.Governor) {
	g := budget.NewGovernor("extract", budget.NewTracker(warn, stop, 0, 0), n)
	x := NewExtractor(script, g, Settings{
		Model:     "test-model",
		MaxTokens: 1000,
		Pricing:   completion.Pricing{InputPerMTok: 1},
		Retry:     retry.Policy{MaxAttempts: 3, Retryable: completion.IsOverloaded},
		Limits:    Limits{MaxMessages: 2, MaxChars: 10_000},
		Renderer:  Renderer{Vocabulary: DefaultVocabulary(), MessageMax: 2000, MessageKeep: 1800, MaxChars: 10_000},
	})
	return x, g
}

const antonJSON = "```json\n{\"personen\": [{\"name\": \"anton\", \"rolle\": \"entwickler\"}], \"themen\": [\"vertrauen\"]}\n```"

func TestSplitRespectsLimits(t *testing.T) {
	msgs := messages(7)
	chunks := Split(msgs, Limits{MaxMessages: 3}, nil)
	if len(chunks) != 3 || len(chunks[2].Messages) != 1 || chunks[2].Offset != 6 {
		t.Fatalf("unexpected chunks: %+v", chunks)
	}

	big := []sessions.Message{
		{Role: "user", Text: strings.Repeat("a", 60)},
		{Role: "user", Text: strings.Repeat("b", 60)},
		{Role: "user", Text: strings.Repeat("c", 500)},
		{Role: "user", Text: "d"},
	}
	chunks = Split(big, Limits{MaxMessages: 10, MaxChars: 100}, nil)
	if len(chunks) != 4 {
		t.Fatalf("expected every message in its own chunk, got %d", len(chunks))
	}
	if chunks[2].Offset != 2 || len(chunks[2].Messages) != 1 {
		t.Errorf("oversized message should form its own chunk: %+v", chunks[2])
	}

	if Split(nil, Limits{MaxMessages: 3}, nil) != nil {
		t.Error("empty transcript should give no chunks")
	}
}

func TestSplitRenderedChunksCoverEveryMessage(t *testing.T) {
	r := &Renderer{MessageMax: 2000, MessageKeep: 1800, MaxChars: 160_000}
	msgs := make([]sessions.Message, 80)
	for i := range msgs {
		msgs[i] = sessions.Message{Role: "user", Text: strings.Repeat("w", 1999)}
	}
	msgs[40].Text = strings.Repeat("Ein langer Satz. ", 300)

	chunks := Split(msgs, Limits{MaxMessages: 500, MaxChars: r.MaxChars}, r.Sizer("anton"))
	if len(chunks) < 2 {
		t.Fatalf("expected the rendered size to force a second chunk, got %d", len(chunks))
	}
	var all strings.Builder
	for _, c := range chunks {
		out := r.Transcript(c, "anton")
		if strings.Contains(out, restMarker) {
			t.Errorf("chunk at offset %d hit the rendering ceiling", c.Offset)
		}
		if n := len([]rune(out)); n > r.MaxChars {
			t.Errorf("chunk at offset %d renders %d chars", c.Offset, n)
		}
		all.WriteString(out)
		all.WriteString(separator)
	}
	for i := range msgs {
		if !strings.Contains(all.String(), fmt.Sprintf("[%d] ANTON: ", i)) {
			t.Errorf("message %d never reaches the model", i)
		}
	}
}

func TestSpeaker(t *testing.T) {
	tests := []struct {
		role, user, want string
	}{
		{"user", "anton", "ANTON"},
		{"human", "", "MENSCH"},
		{"assistant", "anton", "ELI"},
		{"eli", "", "ELI"},
		{"timo", "", "TIMO"},
		{"kuno", "", "KUNO"},
		{"tool", "", "SYSTEM"},
	}
	for _, tt := range tests {
		if got := Speaker(tt.role, tt.user); got != tt.want {
			t.Errorf("Speaker(%q, %q) = %q, want %q", tt.role, tt.user, got, tt.want)
		}
	}
}

func TestTranscriptShortensAndCaps(t *testing.T) {
	long := strings.Repeat("Das ist ein Satz. ", 200)
	r := &Renderer{MessageMax: 2000, MessageKeep: 1800, MaxChars: 5000}
	c := Chunk{Offset: 10, Messages: []sessions.Message{
		{Role: "user", Text: long},
		{Role: "assistant", Text: "kurz"},
		{Role: "user", Text: strings.Repeat("x", 1900)},
		{Role: "user", Text: strings.Repeat("y", 1900)},
	}}
	out := r.Transcript(c, "timo")

	if !strings.HasPrefix(out, "[10] TIMO: ") {
		t.Errorf("index should be transcript-global: %q", out[:20])
	}
	if !strings.Contains(out, shortenedMarker) {
		t.Error("long message should be shortened")
	}
	first := strings.SplitN(out, "\n\n[11]", 2)[0]
	if len([]rune(first)) > 1800+len("[10] TIMO: ")+len(shortenedMarker)+1 {
		t.Errorf("shortened message too long: %d", len([]rune(first)))
	}
	if !strings.Contains(out, "[11] ELI: kurz") {
		t.Error("short message missing")
	}
	if !strings.HasSuffix(out, restMarker) || strings.Contains(out, "[13]") {
		t.Errorf("ceiling not applied: ...%q", out[len(out)-40:])
	}
}

func TestBuildIncludesVocabularyAndHint(t *testing.T) {
	r := &Renderer{Vocabulary: DefaultVocabulary(), MessageMax: 2000, MessageKeep: 1800, MaxChars: 160_000}
	tr := transcript("abcdef123456", 4)
	c := Split(tr.Messages, Limits{MaxMessages: 2}, nil)[1]

	prompt := r.Build(c, tr, Position{Index: 2, Total: 2})
	for _, want := range []string{"chunk 2 of 2", "web-of-trust", "echte-begegnung", "GUIDING QUESTION", "(2 messages)", "[2] ANTON:"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}

	single := r.Build(Chunk{Messages: tr.Messages}, tr, Position{Index: 1, Total: 1})
	if strings.Contains(single, "chunk 1 of 1") {
		t.Error("single chunk should carry no position hint")
	}
}

func TestExtractTranscriptKeepsSucceededChunks(t *testing.T) {
	script := &completion.Script{Steps: []completion.Step{
		completion.Reply(antonJSON, 1000, 500),
		{Response: &completion.Response{Text: `{"personen": [{"name": "ti`, InputTokens: 1000, OutputTokens: 1000, StopReason: completion.StopMaxTokens}},
	}}
	x, g := newTestExtractor(script, 5, 15, nil)

	out, err := x.ExtractTranscript(context.Background(), transcript("session-two-chunks", 4))
	if err != nil {
		t.Fatalf("ExtractTranscript: %v", err)
	}
	if out.Chunks != 2 || out.Succeeded != 1 || !out.OK() {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	recs := out.Extraction.Records[entity.Persons]
	if len(recs) != 1 || recs[0].Name != "anton" {
		t.Errorf("expected only chunk 1's entities, got %+v", recs)
	}
	if out.Extraction.Meta.Chunks != 2 || out.Extraction.Meta.SessionID != "session-two-chunks" {
		t.Errorf("unexpected meta: %+v", out.Extraction.Meta)
	}
	if g.Tracker.Calls() != 2 {
		t.Errorf("truncated chunk must be charged but not retried, calls=%d", g.Tracker.Calls())
	}
}

func TestExtractTranscriptParseFailure(t *testing.T) {
	script := &completion.Script{Steps: []completion.Step{
		completion.Reply("I could not find anything.", 10, 10),
		completion.Reply("{not json", 10, 10),
	}}
	x, _ := newTestExtractor(script, 5, 15, nil)

	out, err := x.ExtractTranscript(context.Background(), transcript("broken", 4))
	if err != nil {
		t.Fatal(err)
	}
	if out.OK() || out.Extraction != nil {
		t.Errorf("expected failed outcome, got %+v", out)
	}
}

func newRunner(t *testing.T, script *completion.Script, stop float64, store SessionSource) (*Runner, *manifest.Manifest, *recordingNotifier, Options) {
	t.Helper()
	dir := t.TempDir()
	m, err := manifest.Load(filepath.Join(dir, "extraction_manifest.json"))
	if err != nil {
		t.Fatal(err)
	}
	n := &recordingNotifier{}
	x, g := newTestExtractor(script, 0.5, stop, n)
	opts := Options{
		Source:          SourceAll,
		OutDir:          filepath.Join(dir, "extractions_v2"),
		ChatPath:        filepath.Join(dir, "telegram_parsed.json"),
		ReflectionsPath: filepath.Join(dir, "stimme_parsed.json"),
	}
	return NewRunner(x, g, m, store), m, n, opts
}

func TestRunnerResumable(t *testing.T) {
	store := &memorySessions{transcripts: []*sessions.Transcript{transcript("aaaaaaaa-1", 2)}}
	script := &completion.Script{Steps: []completion.Step{completion.Reply(antonJSON, 1000, 100)}}
	runner, m, _, opts := newRunner(t, script, 15, store)

	rep, err := runner.Run(context.Background(), opts)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if rep.Processed != 1 {
		t.Fatalf("expected 1 processed, got %+v", rep)
	}
	x, err := entity.ReadExtraction(filepath.Join(opts.OutDir, "aaaaaaaa.json"))
	if err != nil {
		t.Fatalf("artifact not written: %v", err)
	}
	if x.Meta.Source != "session" || x.Count(entity.Persons) != 1 {
		t.Errorf("unexpected artifact: %+v", x)
	}
	totals := m.Totals

	reloaded, err := manifest.Load(m.Path())
	if err != nil {
		t.Fatal(err)
	}
	second := NewRunner(runner.extractor, runner.governor, reloaded, store)
	rep, err = second.Run(context.Background(), opts)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if rep.Processed != 0 || rep.Skipped != 1 {
		t.Errorf("second run should process nothing: %+v", rep)
	}
	if len(script.Requests) != 1 {
		t.Errorf("second run made calls: %d", len(script.Requests))
	}
	if reloaded.Totals != totals {
		t.Errorf("totals changed: %+v -> %+v", totals, reloaded.Totals)
	}
}

func TestRunnerBudgetStop(t *testing.T) {
	store := &memorySessions{transcripts: []*sessions.Transcript{
		transcript("aaaaaaaa-1", 2),
		transcript("bbbbbbbb-2", 2),
	}}
	script := &completion.Script{Steps: []completion.Step{
		completion.Reply(antonJSON, 2_000_000, 0), // $2 crosses the $1 stop
		completion.Reply(antonJSON, 10, 10),
	}}
	runner, m, n, opts := newRunner(t, script, 1, store)

	_, err := runner.Run(context.Background(), opts)
	if !errors.Is(err, budget.ErrBudgetExceeded) {
		t.Fatalf("expected ErrBudgetExceeded, got %v", err)
	}
	if len(script.Requests) != 1 {
		t.Errorf("no call may follow the stop, got %d", len(script.Requests))
	}
	if store.gets != 1 {
		t.Errorf("second session should not be loaded, gets=%d", store.gets)
	}

	saved, err := manifest.Load(m.Path())
	if err != nil {
		t.Fatal(err)
	}
	if saved.LastUpdated == nil || saved.Totals.TotalCostUSD < 2 {
		t.Errorf("manifest not persisted before abort: %+v", saved.Totals)
	}
	if saved.SessionDone("aaaaaaaa-1") {
		t.Error("the session cut off by the stop must be redone")
	}

	stops := 0
	for _, msg := range n.messages {
		if strings.Contains(msg, "HARD STOP") {
			stops++
		}
	}
	if stops != 1 {
		t.Errorf("expected one stop notification, got %v", n.messages)
	}
}

func TestRunnerModelNotFound(t *testing.T) {
	store := &memorySessions{transcripts: []*sessions.Transcript{transcript("aaaaaaaa-1", 2)}}
	script := &completion.Script{Steps: []completion.Step{
		{Err: &completion.StatusError{StatusCode: 404, Body: "model: not_found"}},
	}}
	runner, m, n, opts := newRunner(t, script, 15, store)

	_, err := runner.Run(context.Background(), opts)
	if !errors.Is(err, completion.ErrModelNotFound) {
		t.Fatalf("expected ErrModelNotFound, got %v", err)
	}
	if saved, _ := manifest.Load(m.Path()); saved.LastUpdated == nil {
		t.Error("manifest should be saved on abort")
	}
	if len(n.messages) != 0 {
		t.Errorf("no notification expected, got %v", n.messages)
	}
}

func overloaded() completion.Step {
	return completion.Step{Err: &completion.StatusError{StatusCode: 529, Body: "overloaded_error"}}
}

func TestRunnerRetriesOverload(t *testing.T) {
	store := &memorySessions{transcripts: []*sessions.Transcript{transcript("aaaaaaaa-1", 4)}}
	script := &completion.Script{Steps: []completion.Step{
		completion.Reply(antonJSON, 1000, 100),
		overloaded(),
		completion.Reply(antonJSON, 1000, 100),
	}}
	runner, m, _, opts := newRunner(t, script, 15, store)

	rep, err := runner.Run(context.Background(), opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(script.Requests) != 3 {
		t.Errorf("expected the overloaded chunk to be retried once, got %d calls", len(script.Requests))
	}
	if rep.Processed != 1 || !m.SessionDone("aaaaaaaa-1") {
		t.Fatalf("session should be done: %+v", rep)
	}
	x, err := entity.ReadExtraction(filepath.Join(opts.OutDir, "aaaaaaaa.json"))
	if err != nil {
		t.Fatal(err)
	}
	if x.Meta.Chunks != 2 || x.Count(entity.Persons) != 2 {
		t.Errorf("both chunks should contribute: chunks=%d persons=%d", x.Meta.Chunks, x.Count(entity.Persons))
	}
}

func TestRunnerOverloadExhaustedIsFatal(t *testing.T) {
	store := &memorySessions{transcripts: []*sessions.Transcript{
		transcript("aaaaaaaa-1", 4),
		transcript("bbbbbbbb-2", 2),
	}}
	script := &completion.Script{Steps: []completion.Step{
		completion.Reply(antonJSON, 1000, 100),
		overloaded(),
		overloaded(),
		overloaded(),
		completion.Reply(antonJSON, 10, 10),
	}}
	runner, m, _, opts := newRunner(t, script, 15, store)

	_, err := runner.Run(context.Background(), opts)
	var exhausted *retry.ExhaustedError
	if !errors.As(err, &exhausted) || !errors.Is(err, completion.ErrOverloaded) {
		t.Fatalf("expected exhausted overload, got %v", err)
	}
	if len(script.Requests) != 4 {
		t.Errorf("expected 1 + 3 calls before giving up, got %d", len(script.Requests))
	}
	if store.gets != 1 {
		t.Errorf("the run should stop at the first session, gets=%d", store.gets)
	}

	saved, err := manifest.Load(m.Path())
	if err != nil {
		t.Fatal(err)
	}
	if saved.LastUpdated == nil {
		t.Error("manifest should be saved on abort")
	}
	if _, ok := saved.Sessions["aaaaaaaa-1"]; ok {
		t.Error("the interrupted session must stay unmarked so the next run redoes it")
	}
}

func TestRunnerLogsSummaryOnce(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	logging.Use(zap.New(core))
	defer logging.Init("console", false)

	store := &memorySessions{transcripts: []*sessions.Transcript{transcript("aaaaaaaa-1", 2)}}
	script := &completion.Script{Steps: []completion.Step{completion.Reply(antonJSON, 1000, 100)}}
	runner, _, _, opts := newRunner(t, script, 15, store)

	if _, err := runner.Run(context.Background(), opts); err != nil {
		t.Fatalf("Run: %v", err)
	}
	done := logs.FilterMessageSnippet("done:").All()
	if len(done) != 1 {
		t.Fatalf("expected one summary line, got %d", len(done))
	}
	if want := "done: 1 processed, 0 skipped, 0 failed"; !strings.HasPrefix(done[0].Message, want) {
		t.Errorf("summary = %q", done[0].Message)
	}
}

func TestRunnerDryRun(t *testing.T) {
	store := &memorySessions{transcripts: []*sessions.Transcript{transcript("aaaaaaaa-1", 2), transcript("bbbbbbbb-2", 3)}}
	script := &completion.Script{}
	runner, _, _, opts := newRunner(t, script, 15, store)
	opts.DryRun = true
	opts.SessionPrefix = "bbb"

	rep, err := runner.Run(context.Background(), opts)
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.Planned) != 1 || !strings.HasPrefix(rep.Planned[0], "bbbbbbbb") {
		t.Errorf("unexpected plan: %v", rep.Planned)
	}
	if len(script.Requests) != 0 {
		t.Error("dry run must not call the service")
	}
}
