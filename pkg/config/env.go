package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/kadirpekel/fosrc/pkg/model"
	"github.com/kadirpekel/fosrc/pkg/vector"
)

// Environment variables read in zero-config mode.
const (
	EnvDeployment     = "DEPLOYMENT_ENVIRONMENT"
	EnvOpenAIKey      = "OPENAI_API_KEY"
	EnvAnthropicKey   = "ANTHROPIC_API_KEY"
	EnvGeminiKey      = "GEMINI_API_KEY"
	EnvProvider       = "LLM_PROVIDER"
	EnvModel          = "GPT_MODEL"
	EnvServerLink     = "FOSRC_SERVER_LINK"
	EnvPineconeKey    = "PINECONE_API_KEY"
	EnvPineconeIndex  = "PINECONE_INDEX"
	EnvQdrantHost     = "QDRANT_HOST"
	EnvChromemPersist = "CHROMEM_PATH"
)

// LoadDotEnv loads .env files into the process environment unless
// DEPLOYMENT_ENVIRONMENT is "production". Existing variables always win.
func LoadDotEnv(files ...string) error {
	if strings.EqualFold(os.Getenv(EnvDeployment), "production") {
		return nil
	}
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return err
		}
		slog.Debug("Loaded environment file", "path", f)
	}
	return nil
}

// FromEnv assembles a config from environment variables alone. The model
// provider is LLM_PROVIDER when set, otherwise the first of OpenAI,
// Anthropic and Gemini with a key. The result has defaults applied but is
// not validated.
func FromEnv() *Config {
	cfg := &Config{}

	keys := map[model.Provider]string{
		model.ProviderOpenAI:    os.Getenv(EnvOpenAIKey),
		model.ProviderAnthropic: os.Getenv(EnvAnthropicKey),
		model.ProviderGemini:    os.Getenv(EnvGeminiKey),
	}
	provider := model.Provider(strings.ToLower(os.Getenv(EnvProvider)))
	if provider == "" {
		for _, p := range []model.Provider{model.ProviderOpenAI, model.ProviderAnthropic, model.ProviderGemini} {
			if keys[p] != "" {
				provider = p
				break
			}
		}
	}
	cfg.LLM.Provider = provider
	cfg.LLM.APIKey = keys[provider]
	if provider == model.ProviderOpenAI || provider == "" {
		cfg.LLM.Model = os.Getenv(EnvModel)
	}

	cfg.Embedder.APIKey = keys[model.ProviderOpenAI]
	cfg.Catalog.Server = strings.TrimRight(os.Getenv(EnvServerLink), "/")

	cfg.Vector.Index = os.Getenv(EnvPineconeIndex)
	switch {
	case os.Getenv(EnvPineconeKey) != "":
		cfg.Vector.Type = vector.ProviderPinecone
		cfg.Vector.Pinecone = &vector.PineconeConfig{APIKey: os.Getenv(EnvPineconeKey)}
	case os.Getenv(EnvQdrantHost) != "":
		cfg.Vector.Type = vector.ProviderQdrant
		cfg.Vector.Qdrant = &vector.QdrantConfig{Host: os.Getenv(EnvQdrantHost)}
	default:
		cfg.Vector.Type = vector.ProviderChromem
		cfg.Vector.Chromem = &vector.ChromemConfig{PersistPath: os.Getenv(EnvChromemPersist)}
	}

	cfg.SetDefaults()
	return cfg
}
