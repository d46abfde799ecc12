package model

import (
	"fmt"
	"time"

	"github.com/kadirpekel/fosrc/pkg/httpclient"
)

// Generation defaults shared by every provider.
const (
	DefaultMaxTokens   = 1000
	DefaultTemperature = 1.0
)

// Config selects and tunes a provider.
type Config struct {
	Provider Provider `yaml:"provider"`
	Model    string   `yaml:"model"`
	APIKey   string   `yaml:"api_key"`
	BaseURL  string   `yaml:"base_url,omitempty"`

	MaxTokens   int      `yaml:"max_tokens,omitempty"`
	Temperature *float64 `yaml:"temperature,omitempty"`

	Timeout    time.Duration         `yaml:"timeout,omitempty"`
	MaxRetries int                   `yaml:"max_retries,omitempty"`
	TLS        *httpclient.TLSConfig `yaml:"tls,omitempty"`
}

// DefaultModel returns the model used when none is configured.
func DefaultModel(p Provider) string {
	switch p {
	case ProviderAnthropic:
		return "claude-sonnet-4-5"
	case ProviderGemini:
		return "gemini-2.0-flash"
	default:
		return "gpt-4o-mini"
	}
}

func (c *Config) SetDefaults() {
	if c.Provider == "" {
		c.Provider = ProviderOpenAI
	}
	if c.Model == "" {
		c.Model = DefaultModel(c.Provider)
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.Temperature == nil {
		t := DefaultTemperature
		c.Temperature = &t
	}
	if c.Timeout == 0 {
		c.Timeout = 120 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
}

func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderOpenAI, ProviderAnthropic, ProviderGemini:
	default:
		return fmt.Errorf("unknown llm provider %q (want openai, anthropic or gemini)", c.Provider)
	}
	if c.APIKey == "" {
		return fmt.Errorf("llm api_key is required for provider %s", c.Provider)
	}
	if c.MaxTokens < 0 {
		return fmt.Errorf("llm max_tokens must be positive")
	}
	if c.Temperature != nil && (*c.Temperature < 0 || *c.Temperature > 2) {
		return fmt.Errorf("llm temperature must be between 0 and 2, got %v", *c.Temperature)
	}
	return nil
}

// Resolve merges per-call overrides over the configured defaults.
func (c *Config) Resolve(override *GenerateConfig) (temperature float64, maxTokens int) {
	temperature, maxTokens = DefaultTemperature, c.MaxTokens
	if c.Temperature != nil {
		temperature = *c.Temperature
	}
	if override != nil {
		if override.Temperature != nil {
			temperature = *override.Temperature
		}
		if override.MaxTokens != nil {
			maxTokens = *override.MaxTokens
		}
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return temperature, maxTokens
}
