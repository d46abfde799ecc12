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

// Package anthropic implements model.LLM over the Anthropic Messages API.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/kadirpekel/fosrc/pkg/httpclient"
	"github.com/kadirpekel/fosrc/pkg/model"
	"github.com/kadirpekel/fosrc/pkg/tool"
)

// Client wraps the official SDK client.
type Client struct {
	cfg    model.Config
	client anthropic.Client
}

func New(cfg model.Config) (*Client, error) {
	cfg.Provider = model.ProviderAnthropic
	cfg.SetDefaults()
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic: API key is required")
	}

	hc, err := httpclient.NewHTTPClient(cfg.Timeout, cfg.TLS)
	if err != nil {
		return nil, fmt.Errorf("anthropic: %w", err)
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(hc),
		option.WithMaxRetries(max(cfg.MaxRetries, 0)),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")+"/"))
	}

	return &Client{cfg: cfg, client: anthropic.NewClient(opts...)}, nil
}

func (c *Client) Name() string             { return c.cfg.Model }
func (c *Client) Provider() model.Provider { return model.ProviderAnthropic }
func (c *Client) Close() error             { return nil }

func (c *Client) Generate(ctx context.Context, req *model.Request) (*model.Response, error) {
	return model.Observe(ctx, model.ProviderAnthropic, c.cfg.Model, func(ctx context.Context) (*model.Response, error) {
		params, err := c.buildParams(req)
		if err != nil {
			return nil, err
		}
		msg, err := c.client.Messages.New(ctx, params)
		if err != nil {
			return nil, convertError(err)
		}
		return parseMessage(msg), nil
	})
}

func (c *Client) buildParams(req *model.Request) (anthropic.MessageNewParams, error) {
	temperature, maxTokens := c.cfg.Resolve(req.Config)
	system, rest := model.SplitSystem(req.Messages)

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.cfg.Model),
		MaxTokens:   int64(maxTokens),
		Temperature: anthropic.Float(temperature),
		Messages:    convertMessages(rest),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: system}}
	}

	for _, def := range req.Tools {
		schema, err := inputSchema(def.Parameters)
		if err != nil {
			return params, fmt.Errorf("anthropic: tool %s: %w", def.Name, err)
		}
		param := anthropic.ToolParam{
			Name:        def.Name,
			Description: anthropic.String(def.Description),
			InputSchema: schema,
		}
		params.Tools = append(params.Tools, anthropic.ToolUnionParam{OfTool: &param})
	}
	return params, nil
}

// convertMessages maps the conversation to Anthropic turns. Consecutive tool
// messages are folded into one user turn of tool_result blocks.
func convertMessages(msgs []model.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(msgs))

	for _, m := range msgs {
		switch m.Role {
		case model.RoleTool:
			block := anthropic.NewToolResultBlock(m.ToolCallID, model.NonEmpty(m.Content), strings.HasPrefix(m.Content, "Error:"))
			if n := len(out); n > 0 && out[n-1].Role == anthropic.MessageParamRoleUser && isToolResultTurn(out[n-1]) {
				out[n-1].Content = append(out[n-1].Content, block)
				continue
			}
			out = append(out, anthropic.NewUserMessage(block))

		case model.RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if strings.TrimSpace(m.Content) != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, call := range m.ToolCalls {
				input, err := call.ArgumentsMap()
				if err != nil || input == nil {
					input = map[string]any{}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(call.ID, input, call.Name))
			}
			if len(blocks) == 0 {
				blocks = append(blocks, anthropic.NewTextBlock(model.EmptyContent))
			}
			out = append(out, anthropic.NewAssistantMessage(blocks...))

		default:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(model.NonEmpty(m.Content))))
		}
	}
	return out
}

func isToolResultTurn(m anthropic.MessageParam) bool {
	for _, b := range m.Content {
		if b.OfToolResult == nil {
			return false
		}
	}
	return len(m.Content) > 0
}

func inputSchema(params map[string]any) (anthropic.ToolInputSchemaParam, error) {
	schema := anthropic.ToolInputSchemaParam{Properties: map[string]any{}}
	if params == nil {
		return schema, nil
	}
	if props, ok := params["properties"]; ok {
		schema.Properties = props
	}
	switch req := params["required"].(type) {
	case []string:
		schema.Required = req
	case []any:
		for _, r := range req {
			name, ok := r.(string)
			if !ok {
				return schema, fmt.Errorf("required entry %v is not a string", r)
			}
			schema.Required = append(schema.Required, name)
		}
	}
	return schema, nil
}

func parseMessage(msg *anthropic.Message) *model.Response {
	resp := &model.Response{
		FinishReason: mapStopReason(msg.StopReason),
		Usage: model.Usage{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
			TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
	}

	var text strings.Builder
	for _, block := range msg.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			text.WriteString(b.Text)
		case anthropic.ToolUseBlock:
			args := json.RawMessage(b.Input)
			if len(args) == 0 {
				args = json.RawMessage("{}")
			}
			resp.ToolCalls = append(resp.ToolCalls, tool.Call{ID: b.ID, Name: b.Name, Arguments: args})
		}
	}
	resp.Text = text.String()
	return resp
}

func mapStopReason(reason anthropic.StopReason) model.FinishReason {
	switch reason {
	case anthropic.StopReasonEndTurn, anthropic.StopReasonStopSequence:
		return model.FinishReasonStop
	case anthropic.StopReasonToolUse:
		return model.FinishReasonToolCalls
	case anthropic.StopReasonMaxTokens:
		return model.FinishReasonLength
	case anthropic.StopReasonRefusal:
		return model.FinishReasonContent
	default:
		return model.FinishReasonOther
	}
}

func convertError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return &model.APIError{
			Provider:   model.ProviderAnthropic,
			StatusCode: apiErr.StatusCode,
			Message:    apiErr.Error(),
		}
	}
	return fmt.Errorf("anthropic: %w", err)
}

var _ model.LLM = (*Client)(nil)
