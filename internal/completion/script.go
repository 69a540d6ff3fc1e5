package completion

import (
	"context"
	"fmt"
)

// Step is one scripted reply.
type Step struct {
	Response *Response
	Err      error
}

// Script is a Completer that replays fixed steps in order and records the
// requests it saw. Stage tests use it in place of the real service.
type Script struct {
	Steps    []Step
	Requests []Request
}

func (s *Script) Complete(ctx context.Context, req Request) (*Response, error) {
	s.Requests = append(s.Requests, req)
	i := len(s.Requests) - 1
	if i >= len(s.Steps) {
		return nil, fmt.Errorf("script exhausted after %d calls", len(s.Steps))
	}
	return s.Steps[i].Response, s.Steps[i].Err
}

// Reply is a convenience for a successful step.
func Reply(text string, in, out int) Step {
	return Step{Response: &Response{Text: text, InputTokens: in, OutputTokens: out, StopReason: "end_turn"}}
}
