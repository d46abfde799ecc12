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

// Package config loads the fosrc configuration from YAML (or JSON) with
// environment variable expansion, or assembles it from the environment alone.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kadirpekel/fosrc/pkg/agent"
	"github.com/kadirpekel/fosrc/pkg/auth"
	"github.com/kadirpekel/fosrc/pkg/catalog"
	"github.com/kadirpekel/fosrc/pkg/conversation"
	"github.com/kadirpekel/fosrc/pkg/embedder"
	"github.com/kadirpekel/fosrc/pkg/ingest"
	"github.com/kadirpekel/fosrc/pkg/memory"
	"github.com/kadirpekel/fosrc/pkg/model"
	"github.com/kadirpekel/fosrc/pkg/observability"
	"github.com/kadirpekel/fosrc/pkg/ratelimit"
	"github.com/kadirpekel/fosrc/pkg/retrieval"
	"github.com/kadirpekel/fosrc/pkg/vector"
)

// Config is the root configuration.
type Config struct {
	LLM       model.Config          `yaml:"llm"`
	Embedder  embedder.Config       `yaml:"embedder"`
	Vector    vector.ProviderConfig `yaml:"vector"`
	Catalog   catalog.Config        `yaml:"catalog"`
	Retrieval retrieval.Config      `yaml:"retrieval,omitempty"`
	Agent     agent.Config          `yaml:"agent,omitempty"`
	Memory    memory.Config         `yaml:"memory,omitempty"`
	Session   conversation.Config   `yaml:"session,omitempty"`
	Ingest    ingest.Config         `yaml:"ingest,omitempty"`
	Server    ServerConfig          `yaml:"server,omitempty"`
	Auth      auth.Config           `yaml:"auth,omitempty"`
	RateLimit ratelimit.Config      `yaml:"rate_limit,omitempty"`
	Logging   LoggingConfig         `yaml:"logging,omitempty"`

	Observability observability.Config `yaml:"observability,omitempty"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host            string        `yaml:"host,omitempty"`
	Port            int           `yaml:"port,omitempty"`
	ReadTimeout     time.Duration `yaml:"read_timeout,omitempty"`
	WriteTimeout    time.Duration `yaml:"write_timeout,omitempty"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout,omitempty"`

	// MaxUploadBytes bounds document uploads.
	MaxUploadBytes int64    `yaml:"max_upload_bytes,omitempty"`
	CORSOrigins    []string `yaml:"cors_origins,omitempty"`
}

func (c *ServerConfig) SetDefaults() {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 5 * time.Minute
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 15 * time.Second
	}
	if c.MaxUploadBytes == 0 {
		c.MaxUploadBytes = 32 << 20
	}
}

func (c *ServerConfig) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Port)
	}
	if c.MaxUploadBytes < 0 {
		return fmt.Errorf("server.max_upload_bytes must not be negative")
	}
	return nil
}

// Address returns host:port.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LoggingConfig mirrors the --log-* flags; flags win over file values.
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
	File   string `yaml:"file,omitempty"`
}

// SetDefaults fills every section's defaults. The embedder borrows the LLM
// key when both talk to OpenAI.
func (c *Config) SetDefaults() {
	c.LLM.SetDefaults()
	if c.Embedder.APIKey == "" && c.LLM.Provider == model.ProviderOpenAI {
		c.Embedder.APIKey = c.LLM.APIKey
	}
	c.Embedder.SetDefaults()
	c.Vector.SetDefaults()
	c.Catalog.SetDefaults()
	c.Retrieval.SetDefaults()
	c.Agent.SetDefaults()
	c.Memory.SetDefaults()
	c.Session.SetDefaults()
	c.Ingest.SetDefaults()
	c.Server.SetDefaults()
	c.Auth.SetDefaults()
	c.RateLimit.SetDefaults()
	c.Observability.SetDefaults()
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "simple"
	}
}

// Validate checks every section and reports the first problem, prefixed
// with its section name.
func (c *Config) Validate() error {
	sections := []struct {
		name string
		v    interface{ Validate() error }
	}{
		{"llm", &c.LLM},
		{"embedder", &c.Embedder},
		{"vector", &c.Vector},
		{"catalog", &c.Catalog},
		{"retrieval", &c.Retrieval},
		{"agent", &c.Agent},
		{"memory", &c.Memory},
		{"session", &c.Session},
		{"ingest", &c.Ingest},
		{"server", &c.Server},
		{"auth", &c.Auth},
		{"rate_limit", &c.RateLimit},
		{"observability", &c.Observability},
	}
	for _, s := range sections {
		if err := s.v.Validate(); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	return nil
}

// SitemapIndexURL is where the crawler starts.
func (c *Config) SitemapIndexURL() string {
	return strings.TrimRight(c.Catalog.Server, "/") + ingest.SitemapIndexPath
}
