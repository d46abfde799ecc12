package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/fosrc/pkg/model"
	"github.com/kadirpekel/fosrc/pkg/tool"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(model.Config{APIKey: "sk-test", BaseURL: srv.URL, MaxRetries: -1})
	require.NoError(t, err)
	return c
}

func TestGenerateToolCallRoundTrip(t *testing.T) {
	var got chatRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"choices": [{
				"message": {"role": "assistant", "content": null, "tool_calls": [
					{"id": "call_1", "type": "function", "function": {"name": "get_search_results_count", "arguments": "{\"search_query\":\"climate\"}"}},
					{"id": "call_2", "type": "function", "function": {"name": "get_search_results", "arguments": ""}}
				]},
				"finish_reason": "tool_calls"
			}],
			"usage": {"prompt_tokens": 42, "completion_tokens": 7, "total_tokens": 49}
		}`))
	})

	req := &model.Request{
		Messages: []model.Message{
			model.SystemMessage("be brief"),
			model.UserMessage("how many?"),
			model.AssistantMessage("", tool.Call{ID: "call_0", Name: "get_search_results_count"}),
			model.ToolMessage("call_0", "get_search_results_count", "12"),
		},
		Tools: []tool.Definition{{
			Name:        "get_search_results_count",
			Description: "count",
			Parameters:  map[string]any{"type": "object"},
		}},
	}

	resp, err := c.Generate(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o-mini", got.Model)
	assert.Equal(t, model.DefaultMaxTokens, got.MaxTokens)
	require.Len(t, got.Messages, 4)
	assert.Nil(t, got.Messages[2].Content, "tool-only assistant turn sends null content")
	require.Len(t, got.Messages[2].ToolCalls, 1)
	assert.Equal(t, "{}", got.Messages[2].ToolCalls[0].Function.Arguments)
	assert.Equal(t, "call_0", got.Messages[3].ToolCallID)
	require.Len(t, got.Tools, 1)
	assert.Equal(t, "function", got.Tools[0].Type)

	assert.Equal(t, model.FinishReasonToolCalls, resp.FinishReason)
	assert.Empty(t, resp.Text)
	require.Len(t, resp.ToolCalls, 2)
	assert.JSONEq(t, `{"search_query":"climate"}`, string(resp.ToolCalls[0].Arguments))
	assert.Equal(t, "{}", string(resp.ToolCalls[1].Arguments))
	assert.Equal(t, 49, resp.Usage.TotalTokens)
}

func TestGenerateTextAnswer(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"There are 12 documents."},"finish_reason":"stop"}]}`))
	})

	resp, err := c.Generate(context.Background(), &model.Request{Messages: []model.Message{model.UserMessage("hi")}})
	require.NoError(t, err)
	assert.Equal(t, "There are 12 documents.", resp.Text)
	assert.Equal(t, model.FinishReasonStop, resp.FinishReason)
	assert.False(t, resp.HasToolCalls())
}

func TestGenerateAPIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	})

	_, err := c.Generate(context.Background(), &model.Request{Messages: []model.Message{model.UserMessage("hi")}})
	var apiErr *model.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "bad key", apiErr.Message)
	assert.Equal(t, "invalid_request_error", apiErr.Type)
}

func TestGenerateEmptyChoices(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	})

	_, err := c.Generate(context.Background(), &model.Request{})
	assert.ErrorIs(t, err, model.ErrEmptyResponse)
}

func TestMapFinishReason(t *testing.T) {
	assert.Equal(t, model.FinishReasonLength, mapFinishReason("length"))
	assert.Equal(t, model.FinishReasonContent, mapFinishReason("content_filter"))
	assert.Equal(t, model.FinishReasonOther, mapFinishReason("weird"))
}
