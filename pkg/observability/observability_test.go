package observability

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	ctx := context.Background()

	assert.NotPanics(t, func() {
		m.RecordTurn(ctx, time.Second, 2, "done")
		m.RecordToolExecution(ctx, "get_search_results", time.Millisecond, nil)
		m.RecordLLMCall(ctx, "gpt-4o-mini", time.Second, 10, 5, nil)
		m.RecordBackendError(ctx, "catalog", 500)
		m.RecordCompaction(ctx, 120)
		m.RecordIngest(ctx, "pdf", 3)
	})
	assert.NoError(t, m.Shutdown(ctx))
}

func TestDisabledMetricsReturnsNil(t *testing.T) {
	m, err := InitMetrics(MetricsConfig{Enabled: false})
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestMetricsExposition(t *testing.T) {
	m, err := InitMetrics(MetricsConfig{Enabled: true, Namespace: "fosrc"})
	require.NoError(t, err)
	ctx := context.Background()
	defer m.Shutdown(ctx)

	m.RecordToolExecution(ctx, "get_search_results_count", 20*time.Millisecond, nil)
	m.RecordToolExecution(ctx, "get_rag_response", 20*time.Millisecond, errors.New("boom"))
	m.RecordBackendError(ctx, "catalog", 500)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	out := string(body)

	assert.True(t, strings.Contains(out, "fosrc_tool_calls_total"), out)
	assert.Contains(t, out, `tool="get_rag_response"`)
	assert.Contains(t, out, `outcome="error"`)
	assert.Contains(t, out, "fosrc_backend_errors_total")
}

func TestConfigDefaultsAndValidate(t *testing.T) {
	cfg := Config{}
	cfg.SetDefaults()
	assert.Equal(t, "otlp", cfg.Tracing.Exporter)
	assert.Equal(t, 1.0, cfg.Tracing.SamplingRate)
	assert.Equal(t, "fosrc", cfg.Metrics.Namespace)
	assert.NoError(t, cfg.Validate())

	cfg.Tracing.Enabled = true
	cfg.Tracing.Exporter = "zipkin"
	assert.Error(t, cfg.Validate())
}

func TestInitTracerDisabled(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), TracingConfig{})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))

	_, span := StartSpan(context.Background(), SpanTurn)
	EndSpan(span, errors.New("ignored by noop span"))
}
