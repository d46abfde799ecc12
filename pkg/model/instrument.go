package model

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kadirpekel/fosrc/pkg/observability"
)

// Observe runs one provider call inside an LLM span and records call metrics.
func Observe(ctx context.Context, provider Provider, modelName string, call func(context.Context) (*Response, error)) (*Response, error) {
	ctx, span := observability.StartSpan(ctx, observability.SpanLLMRequest,
		trace.WithAttributes(
			attribute.String(observability.AttrLLMModel, modelName),
			attribute.String("gen_ai.system", string(provider)),
		))

	start := time.Now()
	resp, err := call(ctx)
	elapsed := time.Since(start)

	var usage Usage
	if resp != nil {
		usage = resp.Usage
		span.SetAttributes(
			attribute.Int(observability.AttrLLMInput, usage.PromptTokens),
			attribute.Int(observability.AttrLLMOutput, usage.CompletionTokens),
			attribute.String(observability.AttrFinish, string(resp.FinishReason)),
			attribute.Int("gen_ai.tool_calls", len(resp.ToolCalls)),
		)
	}
	observability.GetGlobalMetrics().RecordLLMCall(ctx, modelName, elapsed, usage.PromptTokens, usage.CompletionTokens, err)
	observability.EndSpan(span, err)

	if err != nil {
		slog.Debug("LLM call failed", "provider", provider, "model", modelName, "duration", elapsed, "error", err)
		return nil, err
	}
	slog.Debug("LLM call finished", "provider", provider, "model", modelName, "duration", elapsed,
		"finish", resp.FinishReason, "tool_calls", len(resp.ToolCalls), "tokens", usage.TotalTokens)
	return resp, nil
}
