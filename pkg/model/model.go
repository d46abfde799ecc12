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

// Package model defines the language model capability the assistant consumes:
// an ordered message list plus tool declarations in, either text or tool
// calls out.
package model

import (
	"context"
	"strings"

	"github.com/kadirpekel/fosrc/pkg/tool"
)

// LLM generates the next assistant message.
type LLM interface {
	// Name returns the model identifier.
	Name() string

	Provider() Provider

	// Generate produces one assistant message for req. Implementations must
	// honour ctx cancellation.
	Generate(ctx context.Context, req *Request) (*Response, error)

	Close() error
}

// Provider identifies the API family behind an LLM.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderGemini    Provider = "gemini"
	ProviderScripted  Provider = "scripted"
)

// Role is the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry of a conversation. Assistant messages may carry tool
// calls; tool messages answer exactly one of them through ToolCallID.
type Message struct {
	Role       Role        `json:"role"`
	Content    string      `json:"content"`
	ToolCalls  []tool.Call `json:"tool_calls,omitempty"`
	ToolCallID string      `json:"tool_call_id,omitempty"`

	// ToolName names the tool a tool message answers. Gemini requires it.
	ToolName string `json:"tool_name,omitempty"`
}

func SystemMessage(text string) Message {
	return Message{Role: RoleSystem, Content: text}
}

func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: text}
}

func AssistantMessage(text string, calls ...tool.Call) Message {
	return Message{Role: RoleAssistant, Content: text, ToolCalls: calls}
}

func ToolMessage(callID, toolName, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: callID, ToolName: toolName}
}

// Request is the input to Generate.
type Request struct {
	Messages []Message
	Tools    []tool.Definition
	Config   *GenerateConfig
}

// GenerateConfig overrides the model defaults for one call.
type GenerateConfig struct {
	Temperature *float64
	MaxTokens   *int
}

// EmptyContent stands in for blank message text on APIs that reject empty
// text blocks.
const EmptyContent = "(no content)"

// NonEmpty returns s, or EmptyContent when s is blank.
func NonEmpty(s string) string {
	if strings.TrimSpace(s) == "" {
		return EmptyContent
	}
	return s
}

// SplitSystem separates leading and interleaved system messages from the rest,
// for APIs that take the system prompt out of band. Those APIs need at least
// one turn, so a prompt made only of system text comes back as a single user
// message and an empty system string.
func SplitSystem(msgs []Message) (system string, rest []Message) {
	var parts []string
	for _, m := range msgs {
		if m.Role == RoleSystem {
			if m.Content != "" {
				parts = append(parts, m.Content)
			}
			continue
		}
		rest = append(rest, m)
	}
	system = strings.Join(parts, "\n\n")
	if len(rest) == 0 && system != "" {
		return "", []Message{UserMessage(system)}
	}
	return system, rest
}

// FinishReason reports why generation stopped.
type FinishReason string

const (
	FinishReasonStop      FinishReason = "stop"
	FinishReasonToolCalls FinishReason = "tool_calls"
	FinishReasonLength    FinishReason = "length"
	FinishReasonContent   FinishReason = "content_filter"
	FinishReasonOther     FinishReason = "other"
)

// Usage is token accounting for one call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is one generated assistant message.
type Response struct {
	Text         string
	ToolCalls    []tool.Call
	FinishReason FinishReason
	Usage        Usage
}

// HasToolCalls reports whether the model asked for tool execution.
func (r *Response) HasToolCalls() bool {
	return r != nil && len(r.ToolCalls) > 0
}

// Message converts the response into the assistant message to append to the
// conversation.
func (r *Response) Message() Message {
	return AssistantMessage(r.Text, r.ToolCalls...)
}
