package vector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChromemProvider(t *testing.T) {
	ctx := context.Background()
	p, err := NewChromemProvider("test-index", ChromemConfig{})
	require.NoError(t, err)
	defer p.Close()

	empty, err := p.Query(ctx, []float32{1, 0, 0}, 4)
	require.NoError(t, err)
	assert.Empty(t, empty)

	docs := []Document{
		{ID: "1", Content: "ocean temperature", Vector: []float32{1, 0, 0}, Metadata: map[string]string{MetaCitation: "Doe, J. (2020). Oceans."}},
		{ID: "2", Content: "forest fires", Vector: []float32{0, 1, 0}, Metadata: map[string]string{MetaCitation: "Roe, R. (2019). Forests."}},
		{ID: "3", Content: "sea ice", Vector: []float32{0.9, 0.1, 0}, Metadata: map[string]string{MetaCitation: "Poe, P. (2021). Ice."}},
	}
	require.NoError(t, p.Upsert(ctx, docs))

	matches, err := p.Query(ctx, []float32{1, 0, 0}, 20)
	require.NoError(t, err)
	require.Len(t, matches, 3)

	assert.Equal(t, "1", matches[0].ID)
	assert.Equal(t, "ocean temperature", matches[0].Content)
	assert.Equal(t, "Doe, J. (2020). Oceans.", matches[0].Metadata[MetaCitation])
	assert.NotEmpty(t, matches[0].Vector)
	assert.Equal(t, "3", matches[1].ID)
	assert.Equal(t, "2", matches[2].ID)
}

func TestChromemProviderRejectsMissingVector(t *testing.T) {
	p, err := NewChromemProvider("test-index", ChromemConfig{})
	require.NoError(t, err)

	err = p.Upsert(context.Background(), []Document{{ID: "x", Content: "no vector"}})
	assert.Error(t, err)
}

func TestProviderConfigDefaults(t *testing.T) {
	cfg := ProviderConfig{}
	cfg.SetDefaults()
	assert.Equal(t, ProviderChromem, cfg.Type)
	assert.Equal(t, DefaultIndex, cfg.Index)
	require.NoError(t, cfg.Validate())

	cfg = ProviderConfig{Pinecone: &PineconeConfig{APIKey: "pc-key"}}
	cfg.SetDefaults()
	assert.Equal(t, ProviderPinecone, cfg.Type)

	cfg = ProviderConfig{Type: ProviderQdrant}
	assert.Error(t, cfg.Validate())
}
