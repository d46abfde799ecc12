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

package builder

import (
	"fmt"
	"os"
	"time"

	"github.com/kadirpekel/fosrc/pkg/model"
	"github.com/kadirpekel/fosrc/pkg/model/anthropic"
	"github.com/kadirpekel/fosrc/pkg/model/gemini"
	"github.com/kadirpekel/fosrc/pkg/model/openai"
)

// LLMBuilder provides a fluent API for building model providers.
//
//	llm, err := builder.NewLLM(model.ProviderOpenAI).
//	    APIKeyFromEnv("OPENAI_API_KEY").
//	    Temperature(1).
//	    Build()
type LLMBuilder struct {
	cfg model.Config
}

func NewLLM(provider model.Provider) *LLMBuilder {
	return &LLMBuilder{cfg: model.Config{Provider: provider}}
}

// LLMFromConfig starts a builder from an existing config section.
func LLMFromConfig(cfg model.Config) *LLMBuilder {
	return &LLMBuilder{cfg: cfg}
}

func (b *LLMBuilder) Model(name string) *LLMBuilder {
	b.cfg.Model = name
	return b
}

func (b *LLMBuilder) APIKey(key string) *LLMBuilder {
	b.cfg.APIKey = key
	return b
}

func (b *LLMBuilder) APIKeyFromEnv(envVar string) *LLMBuilder {
	b.cfg.APIKey = os.Getenv(envVar)
	return b
}

func (b *LLMBuilder) BaseURL(url string) *LLMBuilder {
	b.cfg.BaseURL = url
	return b
}

func (b *LLMBuilder) Temperature(t float64) *LLMBuilder {
	b.cfg.Temperature = &t
	return b
}

func (b *LLMBuilder) MaxTokens(n int) *LLMBuilder {
	b.cfg.MaxTokens = n
	return b
}

func (b *LLMBuilder) Timeout(d time.Duration) *LLMBuilder {
	b.cfg.Timeout = d
	return b
}

// MaxRetries sets retry attempts; -1 disables retries.
func (b *LLMBuilder) MaxRetries(n int) *LLMBuilder {
	b.cfg.MaxRetries = n
	return b
}

// Build validates the config and constructs the provider client.
func (b *LLMBuilder) Build() (model.LLM, error) {
	cfg := b.cfg
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		llm model.LLM
		err error
	)
	switch cfg.Provider {
	case model.ProviderOpenAI:
		var c *openai.Client
		if c, err = openai.New(cfg); err == nil {
			llm = c
		}
	case model.ProviderAnthropic:
		var c *anthropic.Client
		if c, err = anthropic.New(cfg); err == nil {
			llm = c
		}
	case model.ProviderGemini:
		llm, err = gemini.New(cfg)
	default:
		err = fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %w", cfg.Provider, err)
	}
	return llm, nil
}

// MustBuild panics on error.
func (b *LLMBuilder) MustBuild() model.LLM {
	llm, err := b.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to build LLM: %v", err))
	}
	return llm
}
