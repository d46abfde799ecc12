package builder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/fosrc/pkg/config"
	"github.com/kadirpekel/fosrc/pkg/model"
	"github.com/kadirpekel/fosrc/pkg/repotools"
	"github.com/kadirpekel/fosrc/pkg/tool"
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

func catalogServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"_embedded": map[string]any{"searchResult": map[string]any{"page": map[string]any{"totalElements": 42}}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, server string) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.LLM.APIKey = "sk-test"
	cfg.Catalog.Server = server
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestBuildWiresRepositoryTools(t *testing.T) {
	srv := catalogServer(t)
	llm := model.NewScripted(
		model.CallTools(tool.Call{ID: "c1", Name: string(repotools.CountResults), Arguments: json.RawMessage(`{"search_query":"coral"}`)}),
		model.Reply("There are 42 results."),
	)

	app, err := Build(context.Background(), testConfig(t, srv.URL), WithLLM(llm), WithEmbedder(constEmbedder{}))
	require.NoError(t, err)
	defer app.Close(context.Background())

	assert.ElementsMatch(t, []string{
		string(repotools.CountResults), string(repotools.SearchResults), string(repotools.GroundedAnswer),
	}, app.Tools.Names())
	assert.Equal(t, "chromem", app.Store.Name())

	turn, err := app.Answer(context.Background(), "how many coral papers?")
	require.NoError(t, err)
	assert.Equal(t, "There are 42 results.", turn.Answer)

	reqs := llm.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, repotools.SystemPrompt, reqs[0].Messages[0].Content)
	last := reqs[1].Messages[len(reqs[1].Messages)-1]
	assert.Equal(t, model.RoleTool, last.Role)
	assert.Equal(t, "42", last.Content)
}

func TestBuildSessionsUseLoop(t *testing.T) {
	srv := catalogServer(t)
	llm := model.NewScripted(model.Reply("Hi!"))

	app, err := Build(context.Background(), testConfig(t, srv.URL), WithLLM(llm), WithEmbedder(constEmbedder{}))
	require.NoError(t, err)
	defer app.Close(context.Background())

	snap, err := app.Sessions.Create()
	require.NoError(t, err)
	reply, err := app.Sessions.Ask(context.Background(), snap.ID, "hello")
	require.NoError(t, err)
	assert.Equal(t, "Hi!", reply.Answer)
}

func TestLLMBuilder(t *testing.T) {
	_, err := NewLLM(model.ProviderOpenAI).Build()
	assert.Error(t, err, "api key is required")

	llm, err := NewLLM(model.ProviderOpenAI).APIKey("sk").Model("gpt-4o").Temperature(0.5).MaxTokens(200).Build()
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", llm.Name())
	assert.Equal(t, model.ProviderOpenAI, llm.Provider())

	llm, err = NewLLM(model.ProviderAnthropic).APIKey("ak").Build()
	require.NoError(t, err)
	assert.Equal(t, model.ProviderAnthropic, llm.Provider())

	_, err = NewLLM("cohere").APIKey("x").Build()
	assert.Error(t, err)

	assert.Panics(t, func() { NewLLM(model.ProviderGemini).MustBuild() })
}
