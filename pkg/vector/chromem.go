package vector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	"github.com/philippgille/chromem-go"
)

// ChromemConfig configures the embedded index.
type ChromemConfig struct {
	// PersistPath enables on-disk persistence. Empty keeps vectors in memory.
	PersistPath string `yaml:"persist_path,omitempty"`
	Compress    bool   `yaml:"compress,omitempty"`
}

// ChromemProvider keeps vectors in process using chromem-go.
type ChromemProvider struct {
	db         *chromem.DB
	collection *chromem.Collection
}

// NewChromemProvider opens (or creates) the collection named index.
func NewChromemProvider(index string, cfg ChromemConfig) (*ChromemProvider, error) {
	var db *chromem.DB
	if cfg.PersistPath != "" {
		if err := os.MkdirAll(filepath.Clean(cfg.PersistPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create persist directory: %w", err)
		}
		var err error
		db, err = chromem.NewPersistentDB(cfg.PersistPath, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("failed to open vector database at %s: %w", cfg.PersistPath, err)
		}
		slog.Info("Opened persistent vector database", "path", cfg.PersistPath)
	} else {
		db = chromem.NewDB()
		slog.Debug("Created in-memory vector database")
	}

	// Embeddings are always computed by the caller.
	noEmbed := func(context.Context, string) ([]float32, error) {
		return nil, errors.New("chromem: documents must carry precomputed embeddings")
	}

	col, err := db.GetOrCreateCollection(index, nil, noEmbed)
	if err != nil {
		return nil, fmt.Errorf("failed to open collection %q: %w", index, err)
	}

	return &ChromemProvider{db: db, collection: col}, nil
}

func (p *ChromemProvider) Name() string { return "chromem" }

func (p *ChromemProvider) Upsert(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	batch := make([]chromem.Document, 0, len(docs))
	for _, d := range docs {
		if len(d.Vector) == 0 {
			return fmt.Errorf("document %s has no embedding", d.ID)
		}
		batch = append(batch, chromem.Document{
			ID:        d.ID,
			Content:   d.Content,
			Metadata:  d.Metadata,
			Embedding: d.Vector,
		})
	}
	if err := p.collection.AddDocuments(ctx, batch, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to upsert %d document(s): %w", len(batch), err)
	}
	return nil
}

func (p *ChromemProvider) Query(ctx context.Context, vector []float32, topK int) ([]Match, error) {
	// chromem rejects a result count larger than the collection.
	n := min(topK, p.collection.Count())
	if n <= 0 {
		return nil, nil
	}

	hits, err := p.collection.QueryEmbedding(ctx, vector, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query failed: %w", err)
	}

	out := make([]Match, 0, len(hits))
	for _, h := range hits {
		out = append(out, Match{
			ID:       h.ID,
			Content:  h.Content,
			Vector:   h.Embedding,
			Metadata: h.Metadata,
			Score:    h.Similarity,
		})
	}
	return out, nil
}

// Close is a no-op: persistent chromem databases write through on every change.
func (p *ChromemProvider) Close() error { return nil }

var _ Provider = (*ChromemProvider)(nil)
