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
	"strconv"
	"strings"
	"sync"

	"github.com/qdrant/go-client/qdrant"
)

// QdrantConfig configures the Qdrant provider.
type QdrantConfig struct {
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key,omitempty"`
	UseTLS bool   `yaml:"use_tls,omitempty"`
}

// QdrantProvider stores chunks as points in one Qdrant collection. Point ids
// must be UUIDs; chunk text lives in the "content" payload field.
type QdrantProvider struct {
	client     *qdrant.Client
	collection string

	ensureOnce sync.Once
	ensureErr  error
}

// NewQdrantProvider connects over gRPC (default port 6334).
func NewQdrantProvider(collection string, cfg QdrantConfig) (*QdrantProvider, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client for %s:%d: %w", cfg.Host, cfg.Port, err)
	}

	return &QdrantProvider{client: client, collection: collection}, nil
}

func (p *QdrantProvider) Name() string { return "qdrant" }

func (p *QdrantProvider) ensureCollection(ctx context.Context, dim int) error {
	p.ensureOnce.Do(func() {
		exists, err := p.client.CollectionExists(ctx, p.collection)
		if err != nil {
			p.ensureErr = fmt.Errorf("failed to check collection %s: %w", p.collection, err)
			return
		}
		if exists {
			return
		}
		err = p.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: p.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dim),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil && !strings.Contains(err.Error(), "already exists") {
			p.ensureErr = fmt.Errorf("failed to create collection %s: %w", p.collection, err)
		}
	})
	return p.ensureErr
}

func (p *QdrantProvider) Upsert(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	if err := p.ensureCollection(ctx, len(docs[0].Vector)); err != nil {
		return err
	}

	points := make([]*qdrant.PointStruct, 0, len(docs))
	for _, d := range docs {
		payload := make(map[string]*qdrant.Value, len(d.Metadata)+1)
		for k, v := range d.Metadata {
			val, err := qdrant.NewValue(v)
			if err != nil {
				return fmt.Errorf("payload %s of %s: %w", k, d.ID, err)
			}
			payload[k] = val
		}
		content, err := qdrant.NewValue(d.Content)
		if err != nil {
			return fmt.Errorf("payload content of %s: %w", d.ID, err)
		}
		payload[MetaContent] = content

		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(d.ID),
			Vectors: qdrant.NewVectors(d.Vector...),
			Payload: payload,
		})
	}

	if _, err := p.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: p.collection,
		Points:         points,
	}); err != nil {
		return fmt.Errorf("failed to upsert %d point(s): %w", len(points), err)
	}
	return nil
}

func (p *QdrantProvider) Query(ctx context.Context, vector []float32, topK int) ([]Match, error) {
	resp, err := p.client.GetPointsClient().Search(ctx, &qdrant.SearchPoints{
		CollectionName: p.collection,
		Vector:         vector,
		Limit:          uint64(topK),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant search failed: %w", err)
	}

	out := make([]Match, 0, len(resp.Result))
	for _, point := range resp.Result {
		m := Match{
			ID:       qdrantPointID(point.Id),
			Metadata: make(map[string]string, len(point.Payload)),
			Score:    point.Score,
		}
		if vo := point.GetVectors().GetVector(); vo != nil {
			if dense, ok := vo.Vector.(*qdrant.VectorOutput_Dense); ok && dense.Dense != nil {
				m.Vector = dense.Dense.Data
			}
		}
		for k, v := range point.Payload {
			m.Metadata[k] = qdrantString(v)
		}
		m.Content = m.Metadata[MetaContent]
		delete(m.Metadata, MetaContent)
		out = append(out, m)
	}
	return out, nil
}

func (p *QdrantProvider) Close() error {
	return p.client.Close()
}

func qdrantPointID(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	switch v := id.PointIdOptions.(type) {
	case *qdrant.PointId_Uuid:
		return v.Uuid
	case *qdrant.PointId_Num:
		return strconv.FormatUint(v.Num, 10)
	}
	return ""
}

func qdrantString(v *qdrant.Value) string {
	switch k := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return k.StringValue
	case *qdrant.Value_IntegerValue:
		return strconv.FormatInt(k.IntegerValue, 10)
	case *qdrant.Value_DoubleValue:
		return strconv.FormatFloat(k.DoubleValue, 'f', -1, 64)
	case *qdrant.Value_BoolValue:
		return strconv.FormatBool(k.BoolValue)
	}
	return ""
}

var _ Provider = (*QdrantProvider)(nil)
