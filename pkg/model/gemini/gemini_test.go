package gemini

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/kadirpekel/fosrc/pkg/model"
	"github.com/kadirpekel/fosrc/pkg/tool"
)

func TestToGenaiSchema(t *testing.T) {
	s := toGenaiSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"search_query": map[string]any{"type": []any{"string", "null"}, "description": "query"},
			"itemtypes": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string", "enum": []any{"Book", "Report"}},
			},
		},
		"required": []any{"search_query"},
	})

	require.NotNil(t, s)
	assert.Equal(t, genai.TypeObject, s.Type)
	assert.Equal(t, []string{"search_query"}, s.Required)

	q := s.Properties["search_query"]
	require.NotNil(t, q)
	assert.Equal(t, genai.TypeString, q.Type)
	require.NotNil(t, q.Nullable)
	assert.True(t, *q.Nullable)
	assert.Equal(t, "query", q.Description)

	items := s.Properties["itemtypes"].Items
	require.NotNil(t, items)
	assert.Equal(t, []string{"Book", "Report"}, items.Enum)
}

func TestToGenaiSchemaAnyOf(t *testing.T) {
	s := toGenaiSchema(map[string]any{
		"description": "size",
		"anyOf":       []any{map[string]any{"type": "integer"}, map[string]any{"type": "null"}},
	})
	assert.Equal(t, genai.TypeInteger, s.Type)
	assert.Equal(t, "size", s.Description)
}

func TestBuildContents(t *testing.T) {
	system, contents := buildContents([]model.Message{
		model.SystemMessage("sys"),
		model.UserMessage("hi"),
		model.AssistantMessage("", tool.Call{ID: "1", Name: "get_search_results_count", Arguments: json.RawMessage(`{"search_query":"x"}`)}, tool.Call{ID: "2", Name: "get_search_results"}),
		model.ToolMessage("1", "get_search_results_count", "4"),
		model.ToolMessage("2", "get_search_results", "[]"),
	})

	require.NotNil(t, system)
	assert.Equal(t, "sys", system.Parts[0].Text)
	require.Len(t, contents, 3)
	assert.Equal(t, "model", string(contents[1].Role))
	assert.Equal(t, "x", contents[1].Parts[0].FunctionCall.Args["search_query"])
	require.Len(t, contents[2].Parts, 2)
	assert.Equal(t, "get_search_results", contents[2].Parts[1].FunctionResponse.Name)
}

func TestBuildContentsSystemOnly(t *testing.T) {
	system, contents := buildContents([]model.Message{model.SystemMessage("Answer using this context: soil studies")})

	assert.Nil(t, system)
	require.Len(t, contents, 1)
	assert.Equal(t, "user", string(contents[0].Role))
	assert.Equal(t, "Answer using this context: soil studies", contents[0].Parts[0].Text)
}

func TestBuildContentsFillsEmptyText(t *testing.T) {
	_, contents := buildContents([]model.Message{
		model.UserMessage(""),
		model.AssistantMessage(""),
		model.ToolMessage("1", "get_search_results", ""),
	})

	require.Len(t, contents, 3)
	assert.Equal(t, model.EmptyContent, contents[0].Parts[0].Text)
	require.Len(t, contents[1].Parts, 1)
	assert.Equal(t, model.EmptyContent, contents[1].Parts[0].Text)
	assert.Equal(t, model.EmptyContent, contents[2].Parts[0].FunctionResponse.Response["output"])
}

func TestParseResponseAssignsMissingIDs(t *testing.T) {
	resp, err := parseResponse(&genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			FinishReason: genai.FinishReasonStop,
			Content: &genai.Content{Parts: []*genai.Part{
				{Text: "thinking", Thought: true},
				{Text: "ok"},
				{FunctionCall: &genai.FunctionCall{Name: "get_search_results_count", Args: map[string]any{"search_query": "y"}}},
			}},
		}},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{TotalTokenCount: 11},
	})
	require.NoError(t, err)

	assert.Equal(t, "ok", resp.Text)
	assert.Equal(t, model.FinishReasonToolCalls, resp.FinishReason)
	require.Len(t, resp.ToolCalls, 1)
	assert.NotEmpty(t, resp.ToolCalls[0].ID)
	assert.JSONEq(t, `{"search_query":"y"}`, string(resp.ToolCalls[0].Arguments))
	assert.Equal(t, 11, resp.Usage.TotalTokens)

	_, err = parseResponse(&genai.GenerateContentResponse{})
	assert.ErrorIs(t, err, model.ErrEmptyResponse)
}
