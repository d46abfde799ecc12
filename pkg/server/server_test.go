package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/fosrc/pkg/auth"
	"github.com/kadirpekel/fosrc/pkg/builder"
	"github.com/kadirpekel/fosrc/pkg/config"
	"github.com/kadirpekel/fosrc/pkg/conversation"
	"github.com/kadirpekel/fosrc/pkg/model"
	"github.com/kadirpekel/fosrc/pkg/ratelimit"
)

type constEmbedder struct{}

func (constEmbedder) Embed(context.Context, string) ([]float32, error) { return []float32{1, 0}, nil }
func (constEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}
func (constEmbedder) Dimension() int { return 2 }
func (constEmbedder) Model() string  { return "const" }

func newApp(t *testing.T, llm model.LLM) *builder.App {
	t.Helper()
	catalog := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"_embedded": map[string]any{"searchResult": map[string]any{"page": map[string]any{"totalElements": 7}}},
		})
	}))
	t.Cleanup(catalog.Close)

	cfg := &config.Config{}
	cfg.LLM.APIKey = "sk-test"
	cfg.Catalog.Server = catalog.URL
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())

	app, err := builder.Build(context.Background(), cfg, builder.WithLLM(llm), builder.WithEmbedder(constEmbedder{}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close(context.Background()) })
	return app
}

func newTestServer(t *testing.T, llm model.LLM) (*Server, *httptest.Server) {
	t.Helper()
	s := NewServer(config.ServerConfig{}, newApp(t, llm))
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func upload(t *testing.T, url, filename, content string, fields map[string]string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(url, mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHealth(t *testing.T) {
	_, ts := newTestServer(t, model.NewScripted())

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", decode[map[string]string](t, resp)["status"])
}

func TestAskRendersMarkdown(t *testing.T) {
	llm := model.NewScripted(model.Reply("1. *Coral Reefs*\n   **Link**: https://example.org/items/1"))
	_, ts := newTestServer(t, llm)

	resp := postJSON(t, ts.URL+"/api/v1/ask", map[string]string{"question": "coral papers?"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	out := decode[AnswerResponse](t, resp)
	assert.Contains(t, out.Answer, "*Coral Reefs*")
	assert.Contains(t, out.HTML, "<em>Coral Reefs</em>")
	assert.Contains(t, out.HTML, "<strong>Link</strong>")
	assert.Equal(t, 1, out.Iterations)
	assert.False(t, out.Exhausted)
}

func TestAskValidation(t *testing.T) {
	_, ts := newTestServer(t, model.NewScripted())

	resp := postJSON(t, ts.URL+"/api/v1/ask", map[string]string{"question": "  "})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postJSON(t, ts.URL+"/api/v1/ask", map[string]string{"query": "x"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSessionLifecycle(t *testing.T) {
	llm := model.NewScripted(model.Reply("Hi there.")).
		WithFallback(func(*model.Request) model.Step { return model.Reply("summary") })
	_, ts := newTestServer(t, llm)

	resp := postJSON(t, ts.URL+"/api/v1/sessions", struct{}{})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	snap := decode[conversation.Snapshot](t, resp)
	require.NotEmpty(t, snap.ID)
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, conversation.Greeting, snap.Messages[0].Content)

	base := ts.URL + "/api/v1/sessions/" + snap.ID

	resp = postJSON(t, base+"/messages", map[string]string{"question": "hello"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decode[AnswerResponse](t, resp)
	assert.Equal(t, snap.ID, out.SessionID)
	assert.Equal(t, "Hi there.", out.Answer)

	got, err := http.Get(base)
	require.NoError(t, err)
	defer got.Body.Close()
	snap = decode[conversation.Snapshot](t, got)
	assert.Len(t, snap.Messages, 3)

	list, err := http.Get(ts.URL + "/api/v1/sessions")
	require.NoError(t, err)
	defer list.Body.Close()
	assert.Len(t, decode[map[string][]conversation.Snapshot](t, list)["sessions"], 1)

	resp = postJSON(t, base+"/reset", struct{}{})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	snap = decode[conversation.Snapshot](t, resp)
	assert.Len(t, snap.Messages, 1)
	assert.Empty(t, snap.Summary)

	req, err := http.NewRequest(http.MethodDelete, base, nil)
	require.NoError(t, err)
	del, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer del.Body.Close()
	assert.Equal(t, http.StatusNoContent, del.StatusCode)

	missing, err := http.Get(base)
	require.NoError(t, err)
	defer missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestSessionMessageErrors(t *testing.T) {
	_, ts := newTestServer(t, model.NewScripted())

	resp := postJSON(t, ts.URL+"/api/v1/sessions/nope/messages", map[string]string{"question": "hi"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = postJSON(t, ts.URL+"/api/v1/sessions", struct{}{})
	snap := decode[conversation.Snapshot](t, resp)
	resp = postJSON(t, ts.URL+"/api/v1/sessions/"+snap.ID+"/messages", map[string]string{"question": ""})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDocumentEndpoints(t *testing.T) {
	const paper = "Corals bleach under heat stress. Recovery takes years."

	t.Run("citation", func(t *testing.T) {
		llm := model.NewScripted(model.Reply("Doe, J. (2020). Corals."))
		_, ts := newTestServer(t, llm)

		resp := upload(t, ts.URL+"/api/v1/documents/citation", "paper.txt", paper, map[string]string{"style": "MLA"})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		out := decode[map[string]string](t, resp)
		assert.Equal(t, "MLA", out["style"])
		assert.Equal(t, "Doe, J. (2020). Corals.", out["citation"])
		assert.Contains(t, llm.Requests()[0].Messages[0].Content, "MLA")
	})

	t.Run("summary defaults to English", func(t *testing.T) {
		llm := model.NewScripted(model.Reply("Heat **bleaches** corals."))
		_, ts := newTestServer(t, llm)

		resp := upload(t, ts.URL+"/api/v1/documents/summary", "paper.md", paper, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		out := decode[map[string]string](t, resp)
		assert.Equal(t, "English", out["language"])
		assert.Contains(t, out["html"], "<strong>bleaches</strong>")
	})

	t.Run("unsupported language", func(t *testing.T) {
		_, ts := newTestServer(t, model.NewScripted())
		resp := upload(t, ts.URL+"/api/v1/documents/summary", "paper.txt", paper, map[string]string{"language": "Klingon"})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("unsupported extension", func(t *testing.T) {
		_, ts := newTestServer(t, model.NewScripted())
		resp := upload(t, ts.URL+"/api/v1/documents/citation", "paper.exe", paper, nil)
		assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
	})

	t.Run("ingest with citation", func(t *testing.T) {
		llm := model.NewScripted()
		_, ts := newTestServer(t, llm)

		resp := upload(t, ts.URL+"/api/v1/documents", "paper.txt", paper, map[string]string{"citation": "Doe 2020"})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		out := decode[map[string]any](t, resp)
		assert.Equal(t, "paper.txt", out["source"])
		assert.Equal(t, "Doe 2020", out["citation"])
		assert.EqualValues(t, 1, out["chunks"])
		assert.Zero(t, llm.Calls())
	})

	t.Run("upload too large", func(t *testing.T) {
		s := NewServer(config.ServerConfig{MaxUploadBytes: 64}, newApp(t, model.NewScripted()))
		ts := httptest.NewServer(s.Handler())
		defer ts.Close()

		resp := upload(t, ts.URL+"/api/v1/documents", "paper.txt", strings.Repeat(paper, 10), nil)
		assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	})
}

func TestAuthProtectsAPIOnly(t *testing.T) {
	v := auth.NewValidator(auth.StaticKeys(jwk.NewSet()), "https://issuer", "fosrc")
	s := NewServer(config.ServerConfig{}, newApp(t, model.NewScripted()), WithAuth(v))
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/api/v1/ask", map[string]string{"question": "hi"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	health, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode)
}

func TestRateLimitAPI(t *testing.T) {
	limiter, err := ratelimit.New(ratelimit.Config{
		Enabled: true,
		Limits:  []ratelimit.Limit{{Kind: ratelimit.KindRequests, Window: ratelimit.WindowMinute, Max: 2}},
	})
	require.NoError(t, err)
	s := NewServer(config.ServerConfig{}, newApp(t, model.NewScripted()), WithRateLimit(limiter))
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	for i, remaining := range []string{"1", "0"} {
		resp, err := http.Get(ts.URL + "/api/v1/sessions")
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode, "request %d", i)
		assert.Equal(t, "2", resp.Header.Get("X-RateLimit-Limit"))
		assert.Equal(t, remaining, resp.Header.Get("X-RateLimit-Remaining"))
	}

	resp, err := http.Get(ts.URL + "/api/v1/sessions")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))

	health, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode)
}

func TestCORS(t *testing.T) {
	s := NewServer(config.ServerConfig{CORSOrigins: []string{"https://app.example"}}, newApp(t, model.NewScripted()))
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	tests := []struct {
		origin string
		want   string
	}{
		{"https://app.example", "https://app.example"},
		{"https://evil.example", ""},
	}
	for _, tt := range tests {
		req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/v1/ask", nil)
		require.NoError(t, err)
		req.Header.Set("Origin", tt.origin)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		assert.Equal(t, tt.want, resp.Header.Get("Access-Control-Allow-Origin"))
	}
}

func TestSwapServesNewApp(t *testing.T) {
	s, ts := newTestServer(t, model.NewScripted(model.Reply("old")))
	next := newApp(t, model.NewScripted(model.Reply("new")))

	old := s.Swap(next)
	assert.NotSame(t, next, old)
	assert.Same(t, next, s.App())

	resp := postJSON(t, ts.URL+"/api/v1/ask", map[string]string{"question": "which?"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "new", decode[AnswerResponse](t, resp).Answer)
}

func TestMetricsDisabled(t *testing.T) {
	_, ts := newTestServer(t, model.NewScripted())
	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRendererSanitizes(t *testing.T) {
	r := NewRenderer()

	out := r.HTML("hello <script>alert(1)</script> [x](javascript:alert(1))")
	assert.NotContains(t, out, "<script>")
	assert.NotContains(t, out, "javascript:")

	out = r.HTML("[FOSRC](https://open-science.canada.ca/items/1)")
	assert.Contains(t, out, `href="https://open-science.canada.ca/items/1"`)
	assert.Contains(t, out, "nofollow")

	assert.Empty(t, r.HTML(""))
}
