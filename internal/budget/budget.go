package budget

import (
	"context"
	"errors"
	"fmt"

	"github.com/vthunder/distill/internal/logging"
)

// ErrBudgetExceeded means the hard-stop threshold was reached. No further
// completion call may be made in this run.
var ErrBudgetExceeded = errors.New("budget exceeded")

// Event is what a recorded cost crossed.
type Event int

const (
	EventNone Event = iota
	EventWarn
	EventStop
)

// Tracker accumulates completion-call cost for one stage of one run.
// Callers own it and pass it where calls are made.
type Tracker struct {
	Warn     float64 // USD, first crossing is reported once
	HardStop float64 // USD, reaching it ends the run

	total   float64
	calls   int
	warned  bool
	stopped bool
}

// NewTracker starts a tracker at a prior total, e.g. from a manifest.
func NewTracker(warn, hardStop, startTotal float64, startCalls int) *Tracker {
	if startTotal < 0 {
		startTotal = 0
	}
	t := &Tracker{Warn: warn, HardStop: hardStop, total: startTotal, calls: startCalls}
	if hardStop > 0 && startTotal >= hardStop {
		t.stopped = true
	}
	return t
}

// Allow reports whether another call may be attempted.
func (t *Tracker) Allow() error {
	if t.stopped {
		return fmt.Errorf("%w: $%.2f of $%.2f spent", ErrBudgetExceeded, t.total, t.HardStop)
	}
	return nil
}

// Record adds the cost of one finished call. Negative costs are ignored.
func (t *Tracker) Record(cost float64) Event {
	if cost > 0 {
		t.total += cost
	}
	t.calls++
	if t.HardStop > 0 && t.total >= t.HardStop {
		t.stopped = true
		return EventStop
	}
	if t.Warn > 0 && t.total >= t.Warn && !t.warned {
		t.warned = true
		return EventWarn
	}
	return EventNone
}

func (t *Tracker) Total() float64 { return t.total }
func (t *Tracker) Calls() int { return t.calls }
func (t *Tracker) Stopped() bool { return t.stopped }

// Notifier receives the warn and stop messages.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// Governor couples a tracker with a notification sink. It sends at most one
// warn and one stop message per run.
type Governor struct {
	Stage    string
	Tracker  *Tracker
	Notifier Notifier

	stopSent bool
}

func NewGovernor(stage string, t *Tracker, n Notifier) *Governor {
	return &Governor{Stage: stage, Tracker: t, Notifier: n}
}

// Allow checks the tracker before a call.
func (g *Governor) Allow() error {
	return g.Tracker.Allow()
}

// Charge records the cost of a call. It returns ErrBudgetExceeded when the
// hard stop was reached; the caller persists its state and then calls
// NotifyStop.
func (g *Governor) Charge(ctx context.Context, cost float64) error {
	switch g.Tracker.Record(cost) {
	case EventWarn:
		g.send(ctx, fmt.Sprintf("⚠️ Budget warning (%s): $%.2f of $%.2f", g.Stage, g.Tracker.Total(), g.Tracker.HardStop))
	case EventStop:
		logging.Warn("budget", "%s: hard stop at $%.2f after %d calls", g.Stage, g.Tracker.Total(), g.Tracker.Calls())
		return fmt.Errorf("%w: $%.2f of $%.2f spent", ErrBudgetExceeded, g.Tracker.Total(), g.Tracker.HardStop)
	}
	return nil
}

// NotifyStop sends the stop message once.
func (g *Governor) NotifyStop(ctx context.Context) {
	if g.stopSent {
		return
	}
	g.stopSent = true
	g.send(ctx, fmt.Sprintf("⛔ HARD STOP (%s): $%.2f reached after %d calls. State saved.",
		g.Stage, g.Tracker.Total(), g.Tracker.Calls()))
}

func (g *Governor) send(ctx context.Context, text string) {
	logging.Info("budget", "%s", text)
	if g.Notifier == nil {
		return
	}
	if err := g.Notifier.Notify(ctx, text); err != nil {
		logging.Error("budget", "notification failed: %v", err)
	}
}
