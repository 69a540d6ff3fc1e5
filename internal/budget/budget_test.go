package budget

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type recordingNotifier struct {
	messages []string
}

func (r *recordingNotifier) Notify(ctx context.Context, text string) error {
	r.messages = append(r.messages, text)
	return nil
}

func TestTrackerMonotonic(t *testing.T) {
	tr := NewTracker(5, 15, 0, 0)
	costs := []float64{0.5, -3, 1.2, 0, 2.25}
	prev := tr.Total()
	for _, c := range costs {
		tr.Record(c)
		if tr.Total() < prev {
			t.Fatalf("total decreased from %f to %f", prev, tr.Total())
		}
		prev = tr.Total()
	}
	if tr.Calls() != len(costs) {
		t.Errorf("calls = %d", tr.Calls())
	}
}

func TestTrackerWarnOnce(t *testing.T) {
	tr := NewTracker(1, 10, 0, 0)
	if ev := tr.Record(0.6); ev != EventNone {
		t.Errorf("expected no event, got %v", ev)
	}
	if ev := tr.Record(0.6); ev != EventWarn {
		t.Errorf("expected warn, got %v", ev)
	}
	if ev := tr.Record(0.6); ev != EventNone {
		t.Errorf("warn must fire once, got %v", ev)
	}
}

func TestTrackerStopsFurtherCalls(t *testing.T) {
	tr := NewTracker(1, 2, 0, 0)
	if err := tr.Allow(); err != nil {
		t.Fatalf("fresh tracker should allow: %v", err)
	}
	if ev := tr.Record(2.5); ev != EventStop {
		t.Fatalf("expected stop, got %v", ev)
	}
	if err := tr.Allow(); !errors.Is(err, ErrBudgetExceeded) {
		t.Errorf("expected ErrBudgetExceeded, got %v", err)
	}
	// stays stopped
	if err := tr.Allow(); err == nil {
		t.Error("tracker must remain stopped")
	}
}

func TestTrackerResumedOverBudget(t *testing.T) {
	tr := NewTracker(5, 15, 15.3, 120)
	if err := tr.Allow(); !errors.Is(err, ErrBudgetExceeded) {
		t.Errorf("prior spend over hard stop must block calls, got %v", err)
	}
}

func TestGovernorNotifications(t *testing.T) {
	n := &recordingNotifier{}
	g := NewGovernor("extract", NewTracker(1, 2, 0, 0), n)
	ctx := context.Background()

	if err := g.Charge(ctx, 1.1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := g.Charge(ctx, 1.0)
	if !errors.Is(err, ErrBudgetExceeded) {
		t.Fatalf("expected ErrBudgetExceeded, got %v", err)
	}
	g.NotifyStop(ctx)
	g.NotifyStop(ctx)

	if len(n.messages) != 2 {
		t.Fatalf("expected warn and stop messages, got %v", n.messages)
	}
	if !strings.Contains(n.messages[0], "warning") || !strings.Contains(n.messages[1], "HARD STOP") {
		t.Errorf("unexpected messages: %v", n.messages)
	}
}
