// Package vector stores document chunks with their embeddings and answers
// nearest-neighbour queries over them.
//
// Three backends are available: Pinecone (the hosted "pdf-index" the
// repository assistant was built on), Qdrant, and an embedded chromem
// database for development and tests.
package vector

import (
	"context"
)

// Well-known metadata keys written by ingestion and read back by retrieval.
const (
	MetaContent  = "content"
	MetaCitation = "citation"
	MetaTitle    = "title"
	MetaURL      = "url"
	MetaSource   = "source"
)

// Document is a chunk ready to be written to an index.
type Document struct {
	ID       string
	Content  string
	Vector   []float32
	Metadata map[string]string
}

// Match is one query hit. Vector is populated when the backend returns it,
// which diversity reranking relies on.
type Match struct {
	ID       string
	Content  string
	Vector   []float32
	Metadata map[string]string
	Score    float32
}

// Provider is a vector index bound to a single collection.
type Provider interface {
	Name() string
	Upsert(ctx context.Context, docs []Document) error
	Query(ctx context.Context, vector []float32, topK int) ([]Match, error)
	Close() error
}
