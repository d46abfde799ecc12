package repotools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/fosrc/pkg/catalog"
	"github.com/kadirpekel/fosrc/pkg/model"
	"github.com/kadirpekel/fosrc/pkg/retrieval"
	"github.com/kadirpekel/fosrc/pkg/tool"
)

type fakeRetriever struct {
	count      string
	items      []catalog.Item
	context    *retrieval.Context
	ctxErr     error
	lastFilter catalog.Filter
	lastSize   int
}

func (f *fakeRetriever) CountResults(_ context.Context, flt catalog.Filter) string {
	f.lastFilter = flt
	return f.count
}

func (f *fakeRetriever) FetchResults(_ context.Context, size int, flt catalog.Filter) []catalog.Item {
	f.lastFilter, f.lastSize = flt, size
	return f.items
}

func (f *fakeRetriever) RetrieveContext(context.Context, string) (*retrieval.Context, error) {
	return f.context, f.ctxErr
}

func newRegistry(t *testing.T, r Retriever, llm model.LLM) *tool.Registry {
	t.Helper()
	reg := tool.NewRegistry()
	require.NoError(t, Register(reg, r, llm))
	return reg
}

func call(name Name, args string) tool.Call {
	return tool.Call{ID: "call_1", Name: string(name), Arguments: json.RawMessage(args)}
}

func TestRegisterDeclaresAllTools(t *testing.T) {
	reg := newRegistry(t, &fakeRetriever{}, model.NewScripted())

	var names []string
	for _, n := range Names() {
		names = append(names, string(n))
	}
	assert.ElementsMatch(t, names, reg.Names())

	for _, def := range reg.Definitions() {
		assert.Equal(t, false, def.Parameters["additionalProperties"], def.Name)
	}

	search, ok := reg.Get(string(SearchResults))
	require.True(t, ok)
	props := search.Definition().Parameters["properties"].(map[string]any)
	for _, key := range []string{"size", "search_query", "authors", "subjects", "min_date", "max_date", "item_types", "communities"} {
		assert.Contains(t, props, key)
	}
	items := props["item_types"].(map[string]any)["items"].(map[string]any)
	assert.Len(t, items["enum"], len(ItemTypes))
	assert.Equal(t, "An item type.", items["description"])
}

func TestCountTool(t *testing.T) {
	r := &fakeRetriever{count: "42"}
	reg := newRegistry(t, r, model.NewScripted())

	out, err := reg.Dispatch(context.Background(), call(CountResults,
		`{"search_query":"climate","authors":["jane doe"],"min_date":"2020","max_date":null}`))
	require.NoError(t, err)
	assert.Equal(t, "42", out)
	assert.Equal(t, "climate", r.lastFilter.Query)
	assert.Equal(t, "2020", r.lastFilter.MinDate)
	assert.Empty(t, r.lastFilter.MaxDate)
	assert.Equal(t, []string{"jane doe"}, r.lastFilter.Authors)
}

func TestCountToolBackendFailure(t *testing.T) {
	reg := newRegistry(t, &fakeRetriever{}, model.NewScripted())

	out, err := reg.Dispatch(context.Background(), call(CountResults, `{"search_query":"climate"}`))
	require.NoError(t, err)
	assert.Equal(t, NoData, out)
}

func TestCountToolRejectsUnknownItemType(t *testing.T) {
	reg := newRegistry(t, &fakeRetriever{}, model.NewScripted())

	_, err := reg.Dispatch(context.Background(), call(CountResults, `{"item_types":["Poem"]}`))
	var invalid *tool.InvalidArgumentsError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, []string{"item_types[0]"}, invalid.FieldNames())
}

func TestSearchTool(t *testing.T) {
	r := &fakeRetriever{items: []catalog.Item{{Title: "Arctic ice", Link: "https://fosrc.example/items/1"}, {Title: "No id"}}}
	reg := newRegistry(t, r, model.NewScripted())

	_, err := reg.Dispatch(context.Background(), call(SearchResults, `{"size":"3","item_types":["report"]}`))
	require.Error(t, err, "enum values are case sensitive")

	out, err := reg.Dispatch(context.Background(), call(SearchResults, `{"size":"3","item_types":["Report"]}`))
	require.NoError(t, err)
	assert.JSONEq(t, `[{"title":"Arctic ice","link":"https://fosrc.example/items/1"},{"title":"No id","link":""}]`, out)
	assert.Equal(t, 3, r.lastSize)
	assert.Equal(t, []string{"Report"}, r.lastFilter.ItemTypes)
}

func TestSearchToolDefaultsAndFailures(t *testing.T) {
	r := &fakeRetriever{}
	reg := newRegistry(t, r, model.NewScripted())

	out, err := reg.Dispatch(context.Background(), call(SearchResults, `{"size":"lots"}`))
	require.NoError(t, err)
	assert.Equal(t, NoData, out, "backend failure yields the no-data notice")
	assert.Equal(t, catalog.DefaultPageSize, r.lastSize)

	r.items = []catalog.Item{}
	out, err = reg.Dispatch(context.Background(), call(SearchResults, `{}`))
	require.NoError(t, err)
	assert.Equal(t, "[]", out)
}

func TestGroundedAnswerTool(t *testing.T) {
	r := &fakeRetriever{context: &retrieval.Context{Passages: []retrieval.Passage{
		{Content: "Sea ice declined 13% per decade.", Citation: "Doe, J. (2020). Ice."},
	}}}
	llm := model.NewScripted(model.Reply("Sea ice is declining.\n\nFOSRC References:\n\n1. Doe, J. (2020). Ice."))
	reg := newRegistry(t, r, llm)

	out, err := reg.Dispatch(context.Background(), call(GroundedAnswer, `{"user_question":"Is sea ice declining?"}`))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, RepeatPrefix))
	assert.Contains(t, out, "Sea ice is declining.")

	reqs := llm.Requests()
	require.Len(t, reqs, 1)
	require.Len(t, reqs[0].Messages, 1)
	prompt := reqs[0].Messages[0]
	assert.Equal(t, model.RoleSystem, prompt.Role)
	assert.Contains(t, prompt.Content, "Is sea ice declining?")
	assert.Contains(t, prompt.Content, "Citation: Doe, J. (2020). Ice.")
	assert.Empty(t, reqs[0].Tools, "grounded generation runs without tools")
}

func TestGroundedAnswerFallback(t *testing.T) {
	r := &fakeRetriever{context: &retrieval.Context{}}
	reg := newRegistry(t, r, model.NewScripted(model.Reply("   ")))

	out, err := reg.Dispatch(context.Background(), call(GroundedAnswer, `{"user_question":"Unknown topic?"}`))
	require.NoError(t, err)
	assert.Equal(t, RepeatPrefix+NotAvailable, out)

	out, err = reg.Dispatch(context.Background(), call(GroundedAnswer, `{"user_question":null}`))
	require.NoError(t, err)
	assert.Equal(t, RepeatPrefix+NotAvailable, out)
}

func TestGroundedAnswerRetrievalFailure(t *testing.T) {
	r := &fakeRetriever{ctxErr: errors.New("index unreachable")}
	reg := newRegistry(t, r, model.NewScripted())

	_, err := reg.Dispatch(context.Background(), call(GroundedAnswer, `{"user_question":"q"}`))
	var execErr *tool.ToolExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Contains(t, execErr.Error(), "index unreachable")
}

func TestGroundedPrompt(t *testing.T) {
	p := GroundedPrompt("What is FOSRC?", "[1] A repository.")
	assert.Contains(t, p, "Provide a detailed answer for the following question:\nWhat is FOSRC?\n")
	assert.Contains(t, p, "otherwise, say \"The information is not available in FOSRC\":\n[1] A repository.\n")
	assert.NotContains(t, p, "{question}")
}

func TestToolsRequireDependencies(t *testing.T) {
	_, err := Tools(nil, model.NewScripted())
	assert.Error(t, err)
	_, err = Tools(&fakeRetriever{}, nil)
	assert.Error(t, err)
}
