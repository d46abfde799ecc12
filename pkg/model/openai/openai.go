// Package openai implements model.LLM over the Chat Completions API.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/kadirpekel/fosrc/pkg/httpclient"
	"github.com/kadirpekel/fosrc/pkg/model"
	"github.com/kadirpekel/fosrc/pkg/tool"
)

const defaultBaseURL = "https://api.openai.com/v1"

// Client talks to an OpenAI-compatible /chat/completions endpoint.
type Client struct {
	cfg     model.Config
	baseURL string
	http    *httpclient.Client
}

func New(cfg model.Config) (*Client, error) {
	cfg.Provider = model.ProviderOpenAI
	cfg.SetDefaults()
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: API key is required")
	}

	hc, err := httpclient.NewHTTPClient(cfg.Timeout, cfg.TLS)
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &Client{
		cfg:     cfg,
		baseURL: baseURL,
		http: httpclient.New(
			httpclient.WithHTTPClient(hc),
			httpclient.WithMaxRetries(max(cfg.MaxRetries, 0)),
			httpclient.WithHeaderParser(httpclient.ParseOpenAIHeaders),
			httpclient.WithName("openai"),
		),
	}, nil
}

func (c *Client) Name() string             { return c.cfg.Model }
func (c *Client) Provider() model.Provider { return model.ProviderOpenAI }
func (c *Client) Close() error             { return nil }

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
	Tools       []chatTool    `json:"tools,omitempty"`
}

type chatMessage struct {
	Role       string     `json:"role"`
	Content    *string    `json:"content"`
	ToolCalls  []toolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

type toolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function functionCall `json:"function"`
}

type functionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type chatTool struct {
	Type     string       `json:"type"`
	Function chatFunction `json:"function"`
}

type chatFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type chatChoice struct {
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
	Usage   model.Usage  `json:"usage"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (c *Client) Generate(ctx context.Context, req *model.Request) (*model.Response, error) {
	return model.Observe(ctx, model.ProviderOpenAI, c.cfg.Model, func(ctx context.Context) (*model.Response, error) {
		return c.generate(ctx, req)
	})
}

func (c *Client) generate(ctx context.Context, req *model.Request) (*model.Response, error) {
	body, err := json.Marshal(c.buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("openai: failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("openai: failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openai: request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openai: failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &model.APIError{Provider: model.ProviderOpenAI, StatusCode: resp.StatusCode, Message: string(data)}
		var er errorResponse
		if json.Unmarshal(data, &er) == nil && er.Error.Message != "" {
			apiErr.Message, apiErr.Type = er.Error.Message, er.Error.Type
		}
		return nil, apiErr
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("openai: failed to decode response: %w", err)
	}
	return parseResponse(&parsed)
}

func (c *Client) buildRequest(req *model.Request) *chatRequest {
	temperature, maxTokens := c.cfg.Resolve(req.Config)

	out := &chatRequest{
		Model:       c.cfg.Model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		Messages:    make([]chatMessage, 0, len(req.Messages)),
	}

	for _, m := range req.Messages {
		msg := chatMessage{Role: string(m.Role), ToolCallID: m.ToolCallID}
		// Assistant turns that only call tools send a null content.
		if m.Content != "" || len(m.ToolCalls) == 0 {
			content := m.Content
			msg.Content = &content
		}
		for _, call := range m.ToolCalls {
			args := string(call.Arguments)
			if strings.TrimSpace(args) == "" {
				args = "{}"
			}
			msg.ToolCalls = append(msg.ToolCalls, toolCall{
				ID:       call.ID,
				Type:     "function",
				Function: functionCall{Name: call.Name, Arguments: args},
			})
		}
		out.Messages = append(out.Messages, msg)
	}

	for _, def := range req.Tools {
		out.Tools = append(out.Tools, chatTool{
			Type: "function",
			Function: chatFunction{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.Parameters,
			},
		})
	}
	return out
}

func parseResponse(parsed *chatResponse) (*model.Response, error) {
	if len(parsed.Choices) == 0 {
		return nil, model.ErrEmptyResponse
	}
	choice := parsed.Choices[0]

	resp := &model.Response{
		FinishReason: mapFinishReason(choice.FinishReason),
		Usage:        parsed.Usage,
	}
	if choice.Message.Content != nil {
		resp.Text = *choice.Message.Content
	}
	for _, tc := range choice.Message.ToolCalls {
		args := json.RawMessage(tc.Function.Arguments)
		if len(bytes.TrimSpace(args)) == 0 {
			args = json.RawMessage("{}")
		}
		resp.ToolCalls = append(resp.ToolCalls, tool.Call{ID: tc.ID, Name: tc.Function.Name, Arguments: args})
	}
	if len(resp.ToolCalls) > 0 {
		resp.FinishReason = model.FinishReasonToolCalls
	}
	return resp, nil
}

func mapFinishReason(reason string) model.FinishReason {
	switch reason {
	case "stop":
		return model.FinishReasonStop
	case "tool_calls", "function_call":
		return model.FinishReasonToolCalls
	case "length":
		return model.FinishReasonLength
	case "content_filter":
		return model.FinishReasonContent
	default:
		return model.FinishReasonOther
	}
}

var _ model.LLM = (*Client)(nil)
