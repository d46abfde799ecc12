package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/fosrc/pkg/model"
	"github.com/kadirpekel/fosrc/pkg/ratelimit"
	"github.com/kadirpekel/fosrc/pkg/vector"
)

const sampleYAML = `
llm:
  provider: openai
  api_key: ${TEST_FOSRC_KEY}
  model: ${TEST_FOSRC_MODEL:-gpt-4o-mini}
  temperature: 0.2
  timeout: 45s
catalog:
  server: https://repo.example.org
vector:
  type: chromem
  index: pdf-index
agent:
  max_iterations: 4
memory:
  threshold: 7
server:
  port: "9090"
  cors_origins: "https://a.example.org,https://b.example.org"
`

func TestParseYAML(t *testing.T) {
	t.Setenv("TEST_FOSRC_KEY", "sk-test")

	cfg, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, model.ProviderOpenAI, cfg.LLM.Provider)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	require.NotNil(t, cfg.LLM.Temperature)
	assert.InDelta(t, 0.2, *cfg.LLM.Temperature, 1e-9)
	assert.Equal(t, 45*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, "sk-test", cfg.Embedder.APIKey)
	assert.Equal(t, 4, cfg.Agent.MaxIterations)
	assert.Equal(t, 7, cfg.Memory.Threshold)
	assert.Equal(t, 5, cfg.Memory.Window)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"https://a.example.org", "https://b.example.org"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "https://repo.example.org/sitemap_index.html", cfg.SitemapIndexURL())
}

func TestParseJSON(t *testing.T) {
	cfg, err := Parse([]byte(`{"llm": {"provider": "gemini", "api_key": "g"}, "embedder": {"api_key": "e"},
		"catalog": {"server": "http://localhost:8080"}}`))
	require.NoError(t, err)
	assert.Equal(t, model.ProviderGemini, cfg.LLM.Provider)
	assert.Equal(t, "gemini-2.0-flash", cfg.LLM.Model)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"missing llm key", "catalog:\n  server: https://r\n", "llm"},
		{"missing catalog", "llm:\n  api_key: k\n", "catalog"},
		{"unknown field", "llm:\n  api_key: k\n  bogus: 1\ncatalog:\n  server: https://r\n", "bogus"},
		{"bad provider", "llm:\n  provider: cohere\n  api_key: k\ncatalog:\n  server: https://r\n", "cohere"},
		{"not yaml", "llm: [", "parse"},
		{"bad rate window", "llm:\n  api_key: k\ncatalog:\n  server: https://r\nrate_limit:\n  enabled: true\n  limits:\n    - kind: requests\n      window: week\n      max: 3\n", "rate_limit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseRateLimit(t *testing.T) {
	cfg, err := Parse([]byte(`
llm:
  api_key: k
catalog:
  server: https://r
rate_limit:
  enabled: true
  limits:
    - kind: tokens
      window: hour
      max: 5000
`))
	require.NoError(t, err)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, []ratelimit.Limit{{Kind: ratelimit.KindTokens, Window: ratelimit.WindowHour, Max: 5000}}, cfg.RateLimit.Limits)

	cfg, err = Parse([]byte("llm:\n  api_key: k\ncatalog:\n  server: https://r\nrate_limit:\n  enabled: true\n"))
	require.NoError(t, err)
	assert.Len(t, cfg.RateLimit.Limits, 2, "defaults apply when enabled without limits")
}

func TestExpand(t *testing.T) {
	t.Setenv("FOSRC_A", "alpha")
	assert.Equal(t, "alpha-alpha", expand("${FOSRC_A}-$FOSRC_A"))
	assert.Equal(t, "fallback", expand("${FOSRC_UNSET_VAR:-fallback}"))
	assert.Equal(t, "", expand("$FOSRC_UNSET_VAR"))
	assert.Equal(t, "plain", expand("plain"))
	assert.Equal(t, "costs $5", expand("costs $5"))

	doc := expand(map[string]any{"list": []any{"$FOSRC_A", 3}, "nested": map[string]any{"k": "${FOSRC_A}"}})
	assert.Equal(t, map[string]any{"list": []any{"alpha", 3}, "nested": map[string]any{"k": "alpha"}}, doc)
}

func TestResolveFromEnvironment(t *testing.T) {
	t.Setenv(EnvProvider, "")
	t.Setenv(EnvOpenAIKey, "sk-env")
	t.Setenv(EnvAnthropicKey, "")
	t.Setenv(EnvGeminiKey, "")
	t.Setenv(EnvServerLink, "https://repo.example.org")
	t.Setenv(EnvPineconeKey, "")
	t.Setenv(EnvQdrantHost, "")

	cfg, loader, err := Resolve(context.Background(), "")
	require.NoError(t, err)
	assert.Nil(t, loader)
	assert.Equal(t, model.ProviderOpenAI, cfg.LLM.Provider)
	assert.Equal(t, vector.ProviderChromem, cfg.Vector.Type)

	t.Setenv(EnvServerLink, "")
	_, _, err = Resolve(context.Background(), "  ")
	require.Error(t, err)
	assert.Contains(t, err.Error(), SourceEnvironment)
}

func TestResolveFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fosrc.yaml")
	require.NoError(t, os.WriteFile(path, []byte("llm:\n  api_key: k\ncatalog:\n  server: https://r\n"), 0o644))

	cfg, loader, err := Resolve(context.Background(), path)
	require.NoError(t, err)
	require.NotNil(t, loader)
	defer loader.Close()
	assert.Equal(t, path, loader.Source())
	assert.Equal(t, "https://r", cfg.Catalog.Server)

	require.NoError(t, os.WriteFile(path, []byte("llm: [unclosed"), 0o644))
	_, _, err = Resolve(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), path)
}

func TestFromEnv(t *testing.T) {
	t.Setenv(EnvProvider, "")
	t.Setenv(EnvOpenAIKey, "sk-env")
	t.Setenv(EnvAnthropicKey, "")
	t.Setenv(EnvGeminiKey, "")
	t.Setenv(EnvModel, "gpt-4o")
	t.Setenv(EnvServerLink, "https://repo.example.org/")
	t.Setenv(EnvPineconeKey, "pc-key")
	t.Setenv(EnvPineconeIndex, "")

	cfg := FromEnv()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, model.ProviderOpenAI, cfg.LLM.Provider)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.Equal(t, "sk-env", cfg.Embedder.APIKey)
	assert.Equal(t, "https://repo.example.org", cfg.Catalog.Server)
	assert.Equal(t, vector.ProviderPinecone, cfg.Vector.Type)
	assert.Equal(t, vector.DefaultIndex, cfg.Vector.Index)
	assert.Equal(t, 1000, cfg.LLM.MaxTokens)
}

func TestFromEnvPrefersConfiguredProvider(t *testing.T) {
	t.Setenv(EnvProvider, "anthropic")
	t.Setenv(EnvOpenAIKey, "sk-env")
	t.Setenv(EnvAnthropicKey, "ak-env")
	t.Setenv(EnvModel, "gpt-4o")
	t.Setenv(EnvPineconeKey, "")
	t.Setenv(EnvQdrantHost, "")

	cfg := FromEnv()
	assert.Equal(t, model.ProviderAnthropic, cfg.LLM.Provider)
	assert.Equal(t, "ak-env", cfg.LLM.APIKey)
	assert.Equal(t, model.DefaultModel(model.ProviderAnthropic), cfg.LLM.Model)
	assert.Equal(t, "sk-env", cfg.Embedder.APIKey)
	assert.Equal(t, vector.ProviderChromem, cfg.Vector.Type)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("FOSRC_DOTENV_A=from-file\nFOSRC_DOTENV_B=from-file\n"), 0o644))

	t.Setenv(EnvDeployment, "development")
	t.Setenv("FOSRC_DOTENV_B", "from-env")
	require.NoError(t, LoadDotEnv(path, filepath.Join(dir, "missing.env")))
	t.Cleanup(func() { os.Unsetenv("FOSRC_DOTENV_A") })

	assert.Equal(t, "from-file", os.Getenv("FOSRC_DOTENV_A"))
	assert.Equal(t, "from-env", os.Getenv("FOSRC_DOTENV_B"))
}

func TestLoadDotEnvSkippedInProduction(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("FOSRC_DOTENV_PROD=1\n"), 0o644))

	t.Setenv(EnvDeployment, "production")
	require.NoError(t, LoadDotEnv(path))
	_, set := os.LookupEnv("FOSRC_DOTENV_PROD")
	assert.False(t, set)
}

func TestLoaderWatchReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fosrc.yaml")
	write := func(iterations int) {
		body := "llm:\n  api_key: k\ncatalog:\n  server: https://r\nagent:\n  max_iterations: " +
			string(rune('0'+iterations)) + "\n"
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	}
	write(3)

	reloaded := make(chan *Config, 4)
	cfg, loader, err := LoadFile(context.Background(), path, WithOnChange(func(c *Config) { reloaded <- c }))
	require.NoError(t, err)
	defer loader.Close()
	assert.Equal(t, 3, cfg.Agent.MaxIterations)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = loader.Watch(ctx) }()

	// Give the watcher a moment to register before editing.
	time.Sleep(200 * time.Millisecond)
	write(5)

	select {
	case c := <-reloaded:
		assert.Equal(t, 5, c.Agent.MaxIterations)
	case <-time.After(5 * time.Second):
		t.Fatal("config was not reloaded")
	}
}

func TestLoaderReloadSkipsUnchangedConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fosrc.yaml")
	require.NoError(t, os.WriteFile(path, []byte("llm:\n  api_key: k\ncatalog:\n  server: https://r\n"), 0o644))

	var calls int
	_, loader, err := LoadFile(context.Background(), path, WithOnChange(func(*Config) { calls++ }))
	require.NoError(t, err)
	defer loader.Close()

	// Same content, different formatting.
	require.NoError(t, os.WriteFile(path, []byte("catalog: {server: \"https://r\"}\nllm: {api_key: k}\n"), 0o644))
	loader.reload(context.Background())
	assert.Equal(t, 0, calls)

	require.NoError(t, os.WriteFile(path, []byte("llm: [broken"), 0o644))
	loader.reload(context.Background())
	assert.Equal(t, 0, calls)

	require.NoError(t, os.WriteFile(path, []byte("llm:\n  api_key: k2\ncatalog:\n  server: https://r\n"), 0o644))
	loader.reload(context.Background())
	assert.Equal(t, 1, calls)
}
