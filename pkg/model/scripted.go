package model

import (
	"context"
	"errors"
	"sync"

	"github.com/kadirpekel/fosrc/pkg/tool"
)

// ErrScriptExhausted is returned by Scripted once every step was consumed and
// no fallback is set.
var ErrScriptExhausted = errors.New("scripted model: no more responses")

// Step is one scripted reply.
type Step struct {
	Response *Response
	Err      error
}

// Reply scripts a plain text answer.
func Reply(text string) Step {
	return Step{Response: &Response{Text: text, FinishReason: FinishReasonStop}}
}

// CallTools scripts a tool-call request.
func CallTools(calls ...tool.Call) Step {
	return Step{Response: &Response{ToolCalls: calls, FinishReason: FinishReasonToolCalls}}
}

// Fail scripts a provider failure.
func Fail(err error) Step {
	return Step{Err: err}
}

// Scripted is an LLM that replays a fixed sequence of steps. It records every
// request so tests can assert on what the model was shown. Safe for
// concurrent use.
type Scripted struct {
	mu       sync.Mutex
	steps    []Step
	fallback func(*Request) Step
	requests []Request
}

func NewScripted(steps ...Step) *Scripted {
	return &Scripted{steps: steps}
}

// WithFallback answers requests once the scripted steps run out.
func (s *Scripted) WithFallback(fn func(*Request) Step) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fallback = fn
	return s
}

func (s *Scripted) Name() string       { return "scripted" }
func (s *Scripted) Provider() Provider { return ProviderScripted }
func (s *Scripted) Close() error       { return nil }

func (s *Scripted) Generate(ctx context.Context, req *Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	recorded := Request{
		Messages: append([]Message(nil), req.Messages...),
		Tools:    append([]tool.Definition(nil), req.Tools...),
		Config:   req.Config,
	}
	s.requests = append(s.requests, recorded)

	var step Step
	switch {
	case len(s.steps) > 0:
		step = s.steps[0]
		s.steps = s.steps[1:]
	case s.fallback != nil:
		fn := s.fallback
		s.mu.Unlock()
		step = fn(&recorded)
		s.mu.Lock()
	default:
		step = Fail(ErrScriptExhausted)
	}
	s.mu.Unlock()

	if step.Err != nil {
		return nil, step.Err
	}
	resp := *step.Response
	resp.ToolCalls = append([]tool.Call(nil), step.Response.ToolCalls...)
	return &resp, nil
}

// Requests returns a copy of every request received so far.
func (s *Scripted) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// Calls returns how many times Generate was invoked.
func (s *Scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

var _ LLM = (*Scripted)(nil)
