// Package agent runs the tool-dispatch loop: the model is called with the
// conversation and tool declarations, requested tools are executed and their
// results fed back, until the model answers in plain text.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/kadirpekel/fosrc/pkg/model"
	"github.com/kadirpekel/fosrc/pkg/observability"
	"github.com/kadirpekel/fosrc/pkg/tool"
)

const (
	DefaultMaxIterations   = 6
	DefaultToolConcurrency = 4
)

// DegradedAnswer is returned when the iteration cap stops a turn.
const DegradedAnswer = "I'm sorry, I was unable to complete this request. Please try rephrasing your question or narrowing the search."

// Config bounds a turn.
type Config struct {
	// MaxIterations caps model calls per turn.
	MaxIterations int `yaml:"max_iterations,omitempty"`
	// ToolConcurrency caps tools running at once within one iteration.
	ToolConcurrency int `yaml:"tool_concurrency,omitempty"`
}

func (c *Config) SetDefaults() {
	if c.MaxIterations == 0 {
		c.MaxIterations = DefaultMaxIterations
	}
	if c.ToolConcurrency == 0 {
		c.ToolConcurrency = DefaultToolConcurrency
	}
}

func (c *Config) Validate() error {
	if c.MaxIterations < 1 {
		return fmt.Errorf("agent max_iterations must be at least 1, got %d", c.MaxIterations)
	}
	if c.ToolConcurrency < 1 {
		return fmt.Errorf("agent tool_concurrency must be at least 1, got %d", c.ToolConcurrency)
	}
	return nil
}

// Dispatcher executes tool calls by name. *tool.Registry satisfies it.
type Dispatcher interface {
	Definitions() []tool.Definition
	Dispatch(ctx context.Context, call tool.Call) (string, error)
}

// Loop drives turns against one model and one tool set. It holds no
// per-turn state and is safe for concurrent use.
type Loop struct {
	llm   model.LLM
	tools Dispatcher
	cfg   Config
}

// NewLoop builds a loop. tools may be nil for a tool-less model.
func NewLoop(llm model.LLM, tools Dispatcher, cfg Config) *Loop {
	cfg.SetDefaults()
	return &Loop{llm: llm, tools: tools, cfg: cfg}
}

// Answer runs a stateless turn for question under the given system prompt.
func (l *Loop) Answer(ctx context.Context, system, question string) (*Turn, error) {
	return l.Run(ctx, []model.Message{model.SystemMessage(system), model.UserMessage(question)})
}

// Run drives a new turn from prompt until it is DONE or FAILED.
//
// A DONE turn always carries an answer; when the iteration cap was hit the
// answer is DegradedAnswer and Turn.Exhausted records why.
// A FAILED turn is returned together with the model or context error.
func (l *Loop) Run(ctx context.Context, prompt []model.Message) (*Turn, error) {
	return l.Resume(ctx, NewTurn(prompt))
}

// Resume continues turn from its recorded state.
func (l *Loop) Resume(ctx context.Context, turn *Turn) (*Turn, error) {
	ctx, span := observability.StartSpan(ctx, observability.SpanTurn,
		trace.WithAttributes(attribute.String(observability.AttrLLMModel, l.llm.Name())))
	start := time.Now()

	var err error
	for !turn.State.Terminal() && err == nil {
		switch turn.State {
		case StateAwaitingModel:
			err = l.awaitModel(ctx, turn)
		case StateExecutingTools:
			err = l.executeTools(ctx, turn)
		default:
			err = fmt.Errorf("turn in unknown state %q", turn.State)
		}
	}

	outcome := "done"
	if err != nil {
		turn.State = StateFailed
		turn.Error = err.Error()
		outcome = "failed"
	} else if turn.Exhausted != nil {
		outcome = "exhausted"
	}

	span.SetAttributes(
		attribute.Int(observability.AttrIteration, turn.Iteration),
		attribute.String(observability.AttrFinish, outcome),
	)
	observability.EndSpan(span, err)
	observability.GetGlobalMetrics().RecordTurn(ctx, time.Since(start), turn.Iteration, outcome)

	slog.Debug("Turn finished", "outcome", outcome, "iterations", turn.Iteration, "tokens", turn.Usage.TotalTokens)
	return turn, err
}

func (l *Loop) awaitModel(ctx context.Context, turn *Turn) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	turn.Iteration++

	req := &model.Request{Messages: turn.Messages}
	if l.tools != nil {
		req.Tools = l.tools.Definitions()
	}

	resp, err := l.llm.Generate(ctx, req)
	if err != nil {
		return fmt.Errorf("model call failed on iteration %d: %w", turn.Iteration, err)
	}
	turn.addUsage(resp.Usage)

	if !resp.HasToolCalls() {
		turn.Answer = resp.Text
		turn.Messages = append(turn.Messages, model.AssistantMessage(resp.Text))
		turn.State = StateDone
		return nil
	}

	if turn.Iteration >= l.cfg.MaxIterations {
		exhausted := &LoopExhaustedError{Iterations: turn.Iteration}
		for _, c := range resp.ToolCalls {
			exhausted.Pending = append(exhausted.Pending, c.Name)
		}
		slog.Warn("Tool loop hit iteration cap", "iterations", turn.Iteration, "pending", exhausted.Pending)

		turn.Exhausted = exhausted
		turn.Answer = DegradedAnswer
		turn.Messages = append(turn.Messages, model.AssistantMessage(DegradedAnswer))
		turn.State = StateDone
		return nil
	}

	// Results are matched to calls by id, so ids must be unique within a
	// message.
	calls := make([]tool.Call, len(resp.ToolCalls))
	seen := make(map[string]bool, len(resp.ToolCalls))
	for i, c := range resp.ToolCalls {
		if c.ID == "" || seen[c.ID] {
			c.ID = "call_" + uuid.NewString()
		}
		seen[c.ID] = true
		calls[i] = c
	}
	turn.Messages = append(turn.Messages, model.AssistantMessage(resp.Text, calls...))
	turn.State = StateExecutingTools
	return nil
}

// executeTools runs the calls of the last assistant message and appends one
// tool message per call, in request order.
func (l *Loop) executeTools(ctx context.Context, turn *Turn) error {
	last := turn.Messages[len(turn.Messages)-1]
	calls := last.ToolCalls
	results := make([]string, len(calls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.cfg.ToolConcurrency)
	for i, call := range calls {
		g.Go(func() error {
			results[i] = l.dispatch(gctx, turn.Iteration, call)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}

	for i, call := range calls {
		turn.Messages = append(turn.Messages, model.ToolMessage(call.ID, call.Name, results[i]))
	}
	turn.State = StateAwaitingModel
	return nil
}

// dispatch never fails: errors become a placeholder the model can read.
func (l *Loop) dispatch(ctx context.Context, iteration int, call tool.Call) string {
	if l.tools == nil {
		return fmt.Sprintf("Error: tool %q is not available", call.Name)
	}
	slog.Debug("Dispatching tool", "tool", call.Name, "call_id", call.ID, "iteration", iteration)

	out, err := l.tools.Dispatch(ctx, call)
	if err != nil {
		slog.Warn("Tool call failed", "tool", call.Name, "call_id", call.ID, "iteration", iteration, "error", err)
		return "Error: " + err.Error()
	}
	return out
}
