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
	"context"
	"fmt"
	"sync"

	"github.com/pinecone-io/go-pinecone/pinecone"
	"google.golang.org/protobuf/types/known/structpb"
)

// PineconeConfig configures the Pinecone provider.
type PineconeConfig struct {
	APIKey string `yaml:"api_key"`

	// Host overrides the control plane URL (defaults to https://api.pinecone.io).
	Host      string `yaml:"host,omitempty"`
	Namespace string `yaml:"namespace,omitempty"`

	// TextKey is the metadata field holding chunk text. Indexes populated by
	// LangChain use "text".
	TextKey string `yaml:"text_key,omitempty"`
}

// PineconeProvider reads and writes one existing serverless index. Index
// creation is left to the Pinecone console.
type PineconeProvider struct {
	client  *pinecone.Client
	index   string
	cfg     PineconeConfig
	textKey string

	mu   sync.Mutex
	conn *pinecone.IndexConnection
}

func NewPineconeProvider(index string, cfg PineconeConfig) (*PineconeProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("pinecone api_key is required")
	}

	params := pinecone.NewClientParams{ApiKey: cfg.APIKey}
	if cfg.Host != "" {
		params.Host = cfg.Host
	}
	client, err := pinecone.NewClient(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create pinecone client: %w", err)
	}

	textKey := cfg.TextKey
	if textKey == "" {
		textKey = "text"
	}

	return &PineconeProvider{client: client, index: index, cfg: cfg, textKey: textKey}, nil
}

func (p *PineconeProvider) Name() string { return "pinecone" }

// connection resolves the index host once and reuses the data plane connection.
func (p *PineconeProvider) connection(ctx context.Context) (*pinecone.IndexConnection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn != nil {
		return p.conn, nil
	}

	idx, err := p.client.DescribeIndex(ctx, p.index)
	if err != nil {
		return nil, fmt.Errorf("failed to describe index %s: %w", p.index, err)
	}
	conn, err := p.client.Index(pinecone.NewIndexConnParams{
		Host:      idx.Host,
		Namespace: p.cfg.Namespace,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to index %s: %w", p.index, err)
	}
	p.conn = conn
	return conn, nil
}

func (p *PineconeProvider) Upsert(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	conn, err := p.connection(ctx)
	if err != nil {
		return err
	}

	vectors := make([]*pinecone.Vector, 0, len(docs))
	for _, d := range docs {
		fields := make(map[string]any, len(d.Metadata)+1)
		for k, v := range d.Metadata {
			fields[k] = v
		}
		fields[p.textKey] = d.Content

		meta, err := structpb.NewStruct(fields)
		if err != nil {
			return fmt.Errorf("metadata of %s: %w", d.ID, err)
		}
		vectors = append(vectors, &pinecone.Vector{Id: d.ID, Values: d.Vector, Metadata: meta})
	}

	if _, err := conn.UpsertVectors(ctx, vectors); err != nil {
		return fmt.Errorf("failed to upsert %d vector(s): %w", len(vectors), err)
	}
	return nil
}

func (p *PineconeProvider) Query(ctx context.Context, vector []float32, topK int) ([]Match, error) {
	conn, err := p.connection(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := conn.QueryByVectorValues(ctx, &pinecone.QueryByVectorValuesRequest{
		Vector:          vector,
		TopK:            uint32(topK),
		IncludeMetadata: true,
		IncludeValues:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("pinecone query failed: %w", err)
	}

	out := make([]Match, 0, len(resp.Matches))
	for _, sv := range resp.Matches {
		if sv == nil || sv.Vector == nil {
			continue
		}
		m := Match{
			ID:       sv.Vector.Id,
			Vector:   sv.Vector.Values,
			Metadata: map[string]string{},
			Score:    sv.Score,
		}
		if sv.Vector.Metadata != nil {
			for k, v := range sv.Vector.Metadata.AsMap() {
				if k == p.textKey {
					m.Content = fmt.Sprint(v)
					continue
				}
				m.Metadata[k] = fmt.Sprint(v)
			}
		}
		out = append(out, m)
	}
	return out, nil
}

func (p *PineconeProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return nil
	}
	err := p.conn.Close()
	p.conn = nil
	return err
}

var _ Provider = (*PineconeProvider)(nil)
