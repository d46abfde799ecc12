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

package vector

import (
	"fmt"
)

// ProviderType identifies a vector backend.
type ProviderType string

const (
	// ProviderPinecone is the hosted index the assistant answers from in production.
	ProviderPinecone ProviderType = "pinecone"

	ProviderQdrant ProviderType = "qdrant"

	// ProviderChromem is embedded and needs no external service.
	ProviderChromem ProviderType = "chromem"
)

// DefaultIndex is the index name documents are ingested into.
const DefaultIndex = "pdf-index"

// ProviderConfig selects and configures a backend.
type ProviderConfig struct {
	Type  ProviderType `yaml:"type"`
	Index string       `yaml:"index"`

	Chromem  *ChromemConfig  `yaml:"chromem,omitempty"`
	Qdrant   *QdrantConfig   `yaml:"qdrant,omitempty"`
	Pinecone *PineconeConfig `yaml:"pinecone,omitempty"`
}

// SetDefaults picks Pinecone when an API key is configured and the embedded
// store otherwise.
func (c *ProviderConfig) SetDefaults() {
	if c.Index == "" {
		c.Index = DefaultIndex
	}
	if c.Type == "" {
		if c.Pinecone != nil && c.Pinecone.APIKey != "" {
			c.Type = ProviderPinecone
		} else {
			c.Type = ProviderChromem
		}
	}
	if c.Type == ProviderChromem && c.Chromem == nil {
		c.Chromem = &ChromemConfig{}
	}
}

func (c *ProviderConfig) Validate() error {
	switch c.Type {
	case ProviderChromem:
		return nil
	case ProviderQdrant:
		if c.Qdrant == nil || c.Qdrant.Host == "" {
			return fmt.Errorf("qdrant host is required")
		}
		return nil
	case ProviderPinecone:
		if c.Pinecone == nil || c.Pinecone.APIKey == "" {
			return fmt.Errorf("pinecone api_key is required")
		}
		return nil
	case "":
		return fmt.Errorf("vector provider type is required")
	default:
		return fmt.Errorf("unknown vector provider type: %q", c.Type)
	}
}

// NewProvider builds the configured backend.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	index := cfg.Index
	if index == "" {
		index = DefaultIndex
	}

	switch cfg.Type {
	case ProviderChromem, "":
		var cc ChromemConfig
		if cfg.Chromem != nil {
			cc = *cfg.Chromem
		}
		return NewChromemProvider(index, cc)
	case ProviderQdrant:
		if cfg.Qdrant == nil {
			return nil, fmt.Errorf("qdrant configuration is required")
		}
		return NewQdrantProvider(index, *cfg.Qdrant)
	case ProviderPinecone:
		if cfg.Pinecone == nil {
			return nil, fmt.Errorf("pinecone configuration is required")
		}
		return NewPineconeProvider(index, *cfg.Pinecone)
	default:
		return nil, fmt.Errorf("unknown vector provider type: %q", cfg.Type)
	}
}
