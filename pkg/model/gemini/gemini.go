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

// Package gemini implements model.LLM over the Google Gen AI SDK.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/kadirpekel/fosrc/pkg/httpclient"
	"github.com/kadirpekel/fosrc/pkg/model"
	"github.com/kadirpekel/fosrc/pkg/tool"
)

type geminiModel struct {
	client *genai.Client
	cfg    model.Config
}

// New creates a Gemini-backed LLM.
func New(cfg model.Config) (model.LLM, error) {
	cfg.Provider = model.ProviderGemini
	cfg.SetDefaults()
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: API key is required")
	}

	hc, err := httpclient.NewHTTPClient(cfg.Timeout, cfg.TLS)
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}

	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: hc,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	// Constructors don't take a context; the client does no I/O here.
	client, err := genai.NewClient(context.Background(), cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &geminiModel{client: client, cfg: cfg}, nil
}

func (m *geminiModel) Name() string             { return m.cfg.Model }
func (m *geminiModel) Provider() model.Provider { return model.ProviderGemini }
func (m *geminiModel) Close() error             { return nil }

func (m *geminiModel) Generate(ctx context.Context, req *model.Request) (*model.Response, error) {
	return model.Observe(ctx, model.ProviderGemini, m.cfg.Model, func(ctx context.Context) (*model.Response, error) {
		system, contents := buildContents(req.Messages)
		genResp, err := m.client.Models.GenerateContent(ctx, m.cfg.Model, contents, m.buildConfig(req, system))
		if err != nil {
			return nil, convertError(err)
		}
		return parseResponse(genResp)
	})
}

// buildContents maps the conversation to Gemini contents. Tool results travel
// as function responses in a user turn.
func buildContents(msgs []model.Message) (*genai.Content, []*genai.Content) {
	system, rest := model.SplitSystem(msgs)

	var instruction *genai.Content
	if system != "" {
		instruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	contents := make([]*genai.Content, 0, len(rest))
	for _, msg := range rest {
		switch msg.Role {
		case model.RoleAssistant:
			c := &genai.Content{Role: genai.RoleModel}
			if strings.TrimSpace(msg.Content) != "" {
				c.Parts = append(c.Parts, &genai.Part{Text: msg.Content})
			}
			for _, call := range msg.ToolCalls {
				args, err := call.ArgumentsMap()
				if err != nil {
					args = map[string]any{}
				}
				c.Parts = append(c.Parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{ID: call.ID, Name: call.Name, Args: args},
				})
			}
			if len(c.Parts) == 0 {
				c.Parts = append(c.Parts, &genai.Part{Text: model.EmptyContent})
			}
			contents = append(contents, c)

		case model.RoleTool:
			part := &genai.Part{FunctionResponse: &genai.FunctionResponse{
				ID:       msg.ToolCallID,
				Name:     msg.ToolName,
				Response: map[string]any{"output": model.NonEmpty(msg.Content)},
			}}
			if n := len(contents); n > 0 && contents[n-1].Role == genai.RoleUser && onlyFunctionResponses(contents[n-1]) {
				contents[n-1].Parts = append(contents[n-1].Parts, part)
				continue
			}
			contents = append(contents, &genai.Content{Role: genai.RoleUser, Parts: []*genai.Part{part}})

		default:
			contents = append(contents, genai.NewContentFromText(model.NonEmpty(msg.Content), genai.RoleUser))
		}
	}
	return instruction, contents
}

func onlyFunctionResponses(c *genai.Content) bool {
	for _, p := range c.Parts {
		if p.FunctionResponse == nil {
			return false
		}
	}
	return len(c.Parts) > 0
}

func (m *geminiModel) buildConfig(req *model.Request, system *genai.Content) *genai.GenerateContentConfig {
	temperature, maxTokens := m.cfg.Resolve(req.Config)

	config := &genai.GenerateContentConfig{
		SystemInstruction: system,
		Temperature:       genai.Ptr(float32(temperature)),
		MaxOutputTokens:   int32(maxTokens),
	}
	if len(req.Tools) > 0 {
		config.Tools = buildTools(req.Tools)
	}
	return config
}

func buildTools(tools []tool.Definition) []*genai.Tool {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  toGenaiSchema(t.Parameters),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

// toGenaiSchema converts a JSON schema to the OpenAPI subset Gemini accepts.
// Union types collapse to their first non-null member and mark the field
// nullable.
func toGenaiSchema(schema map[string]any) *genai.Schema {
	if schema == nil {
		return nil
	}

	s := &genai.Schema{}

	switch t := schema["type"].(type) {
	case string:
		s.Type = genai.Type(strings.ToUpper(t))
	case []any:
		for _, v := range t {
			name, _ := v.(string)
			if name == "null" {
				s.Nullable = genai.Ptr(true)
				continue
			}
			if s.Type == "" && name != "" {
				s.Type = genai.Type(strings.ToUpper(name))
			}
		}
	}
	if anyOf, ok := schema["anyOf"].([]any); ok && s.Type == "" {
		for _, alt := range anyOf {
			altMap, ok := alt.(map[string]any)
			if !ok {
				continue
			}
			if altMap["type"] == "null" {
				s.Nullable = genai.Ptr(true)
				continue
			}
			if inner := toGenaiSchema(altMap); inner != nil && s.Type == "" {
				inner.Nullable = s.Nullable
				if d, ok := schema["description"].(string); ok {
					inner.Description = d
				}
				s = inner
			}
		}
	}

	if desc, ok := schema["description"].(string); ok {
		s.Description = desc
	}
	if props, ok := schema["properties"].(map[string]any); ok {
		s.Properties = make(map[string]*genai.Schema, len(props))
		for name, prop := range props {
			if propMap, ok := prop.(map[string]any); ok {
				s.Properties[name] = toGenaiSchema(propMap)
			}
		}
	}
	switch required := schema["required"].(type) {
	case []string:
		s.Required = append(s.Required, required...)
	case []any:
		for _, r := range required {
			if rs, ok := r.(string); ok {
				s.Required = append(s.Required, rs)
			}
		}
	}
	if items, ok := schema["items"].(map[string]any); ok {
		s.Items = toGenaiSchema(items)
	}
	switch enum := schema["enum"].(type) {
	case []string:
		s.Enum = append(s.Enum, enum...)
	case []any:
		for _, e := range enum {
			if es, ok := e.(string); ok {
				s.Enum = append(s.Enum, es)
			}
		}
	}
	return s
}

func parseResponse(genResp *genai.GenerateContentResponse) (*model.Response, error) {
	if genResp == nil || len(genResp.Candidates) == 0 {
		return nil, model.ErrEmptyResponse
	}
	candidate := genResp.Candidates[0]

	resp := &model.Response{FinishReason: mapFinishReason(candidate.FinishReason)}

	if candidate.Content != nil {
		var text strings.Builder
		for _, part := range candidate.Content.Parts {
			if part.Text != "" && !part.Thought {
				text.WriteString(part.Text)
			}
			if fc := part.FunctionCall; fc != nil {
				id := fc.ID
				if id == "" {
					id = "call_" + uuid.NewString()
				}
				args, err := json.Marshal(fc.Args)
				if err != nil || fc.Args == nil {
					args = []byte("{}")
				}
				resp.ToolCalls = append(resp.ToolCalls, tool.Call{ID: id, Name: fc.Name, Arguments: args})
			}
		}
		resp.Text = text.String()
	}
	if len(resp.ToolCalls) > 0 {
		resp.FinishReason = model.FinishReasonToolCalls
	}

	if u := genResp.UsageMetadata; u != nil {
		resp.Usage = model.Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return resp, nil
}

func mapFinishReason(reason genai.FinishReason) model.FinishReason {
	switch reason {
	case genai.FinishReasonStop, "":
		return model.FinishReasonStop
	case genai.FinishReasonMaxTokens:
		return model.FinishReasonLength
	case genai.FinishReasonSafety, genai.FinishReasonProhibitedContent, genai.FinishReasonBlocklist:
		return model.FinishReasonContent
	default:
		return model.FinishReasonOther
	}
}

func convertError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &model.APIError{Provider: model.ProviderGemini, StatusCode: apiErr.Code, Type: apiErr.Status, Message: apiErr.Message}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return &model.APIError{Provider: model.ProviderGemini, StatusCode: apiErrPtr.Code, Type: apiErrPtr.Status, Message: apiErrPtr.Message}
	}
	return fmt.Errorf("gemini generation failed: %w", err)
}

var _ model.LLM = (*geminiModel)(nil)
