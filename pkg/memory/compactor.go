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

// Package memory keeps a conversation's context bounded by folding old turns
// into a single rolling summary.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kadirpekel/fosrc/pkg/model"
	"github.com/kadirpekel/fosrc/pkg/observability"
	"github.com/kadirpekel/fosrc/pkg/tokens"
)

const (
	// DefaultThreshold is the session length above which a summary is
	// (re)written.
	DefaultThreshold = 5
	// DefaultWindow is how many raw messages accompany the summary.
	DefaultWindow = 5
)

const summaryTemplate = `Create a chat history summary as an ordered list of past user questions with the summarized assistant responses.  The chat history summary should repeat the previous chat history summary below if present, and new list items should be added according to the new chat history below.  Do not include headings.

Previous Chat History Summary:
%s

New chat history:
%s
`

// Config controls when compaction runs and what the next turn sees.
type Config struct {
	Threshold int `yaml:"threshold,omitempty"`
	Window    int `yaml:"window,omitempty"`
}

func (c *Config) SetDefaults() {
	if c.Threshold == 0 {
		c.Threshold = DefaultThreshold
	}
	if c.Window == 0 {
		c.Window = DefaultWindow
	}
}

func (c *Config) Validate() error {
	if c.Threshold < 1 {
		return fmt.Errorf("memory threshold must be at least 1, got %d", c.Threshold)
	}
	if c.Window < 1 {
		return fmt.Errorf("memory window must be at least 1, got %d", c.Window)
	}
	return nil
}

// Compactor rewrites the rolling summary with the model.
type Compactor struct {
	llm     model.LLM
	cfg     Config
	counter *tokens.Counter
}

// NewCompactor builds a compactor. counter may be nil.
func NewCompactor(llm model.LLM, cfg Config, counter *tokens.Counter) *Compactor {
	cfg.SetDefaults()
	return &Compactor{llm: llm, cfg: cfg, counter: counter}
}

// Window is the number of raw messages sent alongside the summary.
func (c *Compactor) Window() int { return c.cfg.Window }

// ShouldCompact reports whether a session of n messages needs a summary.
func (c *Compactor) ShouldCompact(n int) bool {
	return n > c.cfg.Threshold
}

// Input renders the new chat history to fold into summary. With no summary
// yet the whole history is rendered; otherwise only the newest user and
// assistant pair.
func Input(summary string, history []model.Message) string {
	var b strings.Builder
	if summary == "" {
		for _, m := range history {
			fmt.Fprintf(&b, "%s: %s\n\n", m.Role, m.Content)
		}
		return b.String()
	}

	question, answer := lastPair(history)
	fmt.Fprintf(&b, "user: %s\n\nassistant: %s\n\n", question, answer)
	return b.String()
}

func lastPair(history []model.Message) (question, answer string) {
	for i := len(history) - 1; i >= 0; i-- {
		m := history[i]
		switch {
		case m.Role == model.RoleAssistant && answer == "" && question == "":
			answer = m.Content
		case m.Role == model.RoleUser && question == "":
			return m.Content, answer
		}
	}
	return question, answer
}

// Prompt builds the summarization instructions.
func Prompt(summary string, history []model.Message) string {
	return fmt.Sprintf(summaryTemplate, summary, Input(summary, history))
}

// Compact returns the summary that replaces summary once history (which
// ends with the newest pair) is folded in.
func (c *Compactor) Compact(ctx context.Context, summary string, history []model.Message) (string, error) {
	ctx, span := observability.StartSpan(ctx, observability.SpanCompaction,
		trace.WithAttributes(
			attribute.Int("memory.messages", len(history)),
			attribute.Bool("memory.first", summary == ""),
		))

	resp, err := c.llm.Generate(ctx, &model.Request{
		Messages: []model.Message{model.UserMessage(Prompt(summary, history))},
	})
	if err != nil {
		observability.EndSpan(span, err)
		return "", fmt.Errorf("summary generation failed: %w", err)
	}

	next := strings.TrimSpace(resp.Text)
	if next == "" {
		slog.Warn("Model returned an empty summary; keeping the previous one")
		next = summary
	}

	n := c.counter.Count(next)
	span.SetAttributes(attribute.Int("memory.summary_tokens", n))
	observability.EndSpan(span, nil)
	observability.GetGlobalMetrics().RecordCompaction(ctx, n)

	slog.Debug("Conversation compacted", "messages", len(history), "summary_tokens", n)
	return next, nil
}
