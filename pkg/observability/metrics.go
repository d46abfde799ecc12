// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package observability

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics records assistant activity. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry
	provider *sdkmetric.MeterProvider

	turnDuration    metric.Float64Histogram
	turnsTotal      metric.Int64Counter
	loopIterations  metric.Int64Histogram
	toolDuration    metric.Float64Histogram
	toolCallsTotal  metric.Int64Counter
	llmDuration     metric.Float64Histogram
	llmInputTokens  metric.Int64Counter
	llmOutputTokens metric.Int64Counter
	llmErrorsTotal  metric.Int64Counter
	backendErrors   metric.Int64Counter
	compactions     metric.Int64Counter
	summaryTokens   metric.Int64Histogram
	chunksIngested  metric.Int64Counter
	httpDuration    metric.Float64Histogram
	httpRequests    metric.Int64Counter
}

var (
	metricsMu     sync.RWMutex
	globalMetrics *Metrics
)

// InitMetrics builds an OpenTelemetry meter provider backed by a dedicated
// Prometheus registry. Disabled config yields a nil *Metrics.
func InitMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	registry := prometheus.NewRegistry()
	exporter, err := otelprom.New(
		otelprom.WithRegisterer(registry),
		otelprom.WithNamespace(cfg.Namespace),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter("github.com/kadirpekel/fosrc")

	m := &Metrics{registry: registry, provider: provider}
	b := &builder{meter: meter}

	m.turnDuration = b.histogram("turn_duration_seconds", "Duration of one assistant turn")
	m.turnsTotal = b.counter("turns_total", "Assistant turns by outcome")
	m.loopIterations = b.intHistogram("loop_iterations", "Model calls per turn")
	m.toolDuration = b.histogram("tool_execution_duration_seconds", "Tool execution duration")
	m.toolCallsTotal = b.counter("tool_calls_total", "Tool calls by tool and outcome")
	m.llmDuration = b.histogram("llm_request_duration_seconds", "Model request duration")
	m.llmInputTokens = b.counter("llm_tokens_input_total", "Prompt tokens sent to the model")
	m.llmOutputTokens = b.counter("llm_tokens_output_total", "Completion tokens received")
	m.llmErrorsTotal = b.counter("llm_errors_total", "Failed model requests")
	m.backendErrors = b.counter("backend_errors_total", "Non-success responses from search backends")
	m.compactions = b.counter("compactions_total", "Rolling summary rewrites")
	m.summaryTokens = b.intHistogram("summary_tokens", "Token size of the rolling summary")
	m.chunksIngested = b.counter("chunks_ingested_total", "Chunks upserted into the vector index")
	m.httpDuration = b.histogram("http_request_duration_seconds", "HTTP request duration by route")
	m.httpRequests = b.counter("http_requests_total", "HTTP requests by route and status")

	if b.err != nil {
		return nil, b.err
	}
	return m, nil
}

type builder struct {
	meter metric.Meter
	err   error
}

func (b *builder) histogram(name, desc string) metric.Float64Histogram {
	h, err := b.meter.Float64Histogram(name, metric.WithDescription(desc), metric.WithUnit("s"))
	if err != nil && b.err == nil {
		b.err = fmt.Errorf("failed to create %s: %w", name, err)
	}
	return h
}

func (b *builder) intHistogram(name, desc string) metric.Int64Histogram {
	h, err := b.meter.Int64Histogram(name, metric.WithDescription(desc))
	if err != nil && b.err == nil {
		b.err = fmt.Errorf("failed to create %s: %w", name, err)
	}
	return h
}

func (b *builder) counter(name, desc string) metric.Int64Counter {
	c, err := b.meter.Int64Counter(name, metric.WithDescription(desc))
	if err != nil && b.err == nil {
		b.err = fmt.Errorf("failed to create %s: %w", name, err)
	}
	return c
}

// Handler serves the Prometheus exposition format for this registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Shutdown flushes and stops the meter provider.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m == nil {
		return nil
	}
	return m.provider.Shutdown(ctx)
}

func (m *Metrics) RecordTurn(ctx context.Context, duration time.Duration, iterations int, outcome string) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.turnDuration.Record(ctx, duration.Seconds(), attrs)
	m.turnsTotal.Add(ctx, 1, attrs)
	m.loopIterations.Record(ctx, int64(iterations))
}

func (m *Metrics) RecordToolExecution(ctx context.Context, tool string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.toolDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("tool", tool)))
	m.toolCallsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("outcome", outcome),
	))
}

func (m *Metrics) RecordLLMCall(ctx context.Context, model string, duration time.Duration, inputTokens, outputTokens int, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("model", model))
	m.llmDuration.Record(ctx, duration.Seconds(), attrs)
	m.llmInputTokens.Add(ctx, int64(inputTokens), attrs)
	m.llmOutputTokens.Add(ctx, int64(outputTokens), attrs)
	if err != nil {
		m.llmErrorsTotal.Add(ctx, 1, attrs)
	}
}

func (m *Metrics) RecordBackendError(ctx context.Context, backend string, statusCode int) {
	if m == nil {
		return
	}
	m.backendErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("backend", backend),
		attribute.String("status", strconv.Itoa(statusCode)),
	))
}

func (m *Metrics) RecordCompaction(ctx context.Context, summaryTokens int) {
	if m == nil {
		return
	}
	m.compactions.Add(ctx, 1)
	m.summaryTokens.Record(ctx, int64(summaryTokens))
}

func (m *Metrics) RecordIngest(ctx context.Context, source string, chunks int) {
	if m == nil {
		return
	}
	m.chunksIngested.Add(ctx, int64(chunks), metric.WithAttributes(attribute.String("source", source)))
}

// RecordHTTPRequest records one API request. route must be the router
// pattern, never the raw path.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
	))
	m.httpRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.String("status", strconv.Itoa(status)),
	))
}

func SetGlobalMetrics(m *Metrics) {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	globalMetrics = m
}

// GetGlobalMetrics returns the process metrics, or nil when metrics are off.
func GetGlobalMetrics() *Metrics {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return globalMetrics
}
