// Package retrieval answers the repository tools' data needs: filtered
// catalog queries and diversity-aware passage retrieval from the vector
// index.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kadirpekel/fosrc/pkg/catalog"
	"github.com/kadirpekel/fosrc/pkg/embedder"
	"github.com/kadirpekel/fosrc/pkg/observability"
	"github.com/kadirpekel/fosrc/pkg/vector"
)

const (
	DefaultTopK   = 4
	DefaultFetchK = 20
	DefaultLambda = 0.7
)

// Config tunes MMR retrieval.
type Config struct {
	// TopK is the number of passages returned.
	TopK int `yaml:"top_k,omitempty"`
	// FetchK is the candidate pool MMR selects from.
	FetchK int `yaml:"fetch_k,omitempty"`
	// Lambda trades relevance (1) against diversity (0).
	Lambda *float64 `yaml:"lambda,omitempty"`
}

func (c *Config) SetDefaults() {
	if c.TopK == 0 {
		c.TopK = DefaultTopK
	}
	if c.FetchK == 0 {
		c.FetchK = DefaultFetchK
	}
	if c.FetchK < c.TopK {
		c.FetchK = c.TopK
	}
	if c.Lambda == nil {
		l := DefaultLambda
		c.Lambda = &l
	}
}

func (c *Config) Validate() error {
	if c.TopK < 1 {
		return fmt.Errorf("retrieval top_k must be at least 1, got %d", c.TopK)
	}
	if c.Lambda != nil && (*c.Lambda < 0 || *c.Lambda > 1) {
		return fmt.Errorf("retrieval lambda must be between 0 and 1, got %v", *c.Lambda)
	}
	return nil
}

// Catalog is the slice of the catalog client the adapter needs.
type Catalog interface {
	Count(ctx context.Context, f catalog.Filter) (int64, error)
	Search(ctx context.Context, f catalog.Filter, size int) ([]catalog.Item, error)
}

// Adapter combines the catalog and the vector index.
type Adapter struct {
	catalog  Catalog
	embedder embedder.Embedder
	store    vector.Provider
	cfg      Config
}

// NewAdapter wires the backends. embed and store may be nil when only
// catalog search is needed; RetrieveContext then fails.
func NewAdapter(cat Catalog, embed embedder.Embedder, store vector.Provider, cfg Config) *Adapter {
	cfg.SetDefaults()
	return &Adapter{catalog: cat, embedder: embed, store: store, cfg: cfg}
}

// CountResults returns the total number of catalog items matching f as
// text. Backend failures are logged and counted, and yield "".
func (a *Adapter) CountResults(ctx context.Context, f catalog.Filter) string {
	total, err := a.catalog.Count(ctx, f)
	if err != nil {
		a.recordBackendError(ctx, "count", err)
		return ""
	}
	return strconv.FormatInt(total, 10)
}

// FetchResults returns up to size catalog items matching f. Backend
// failures are logged and counted, and yield nil.
func (a *Adapter) FetchResults(ctx context.Context, size int, f catalog.Filter) []catalog.Item {
	items, err := a.catalog.Search(ctx, f, size)
	if err != nil {
		a.recordBackendError(ctx, "search", err)
		return nil
	}
	return items
}

func (a *Adapter) recordBackendError(ctx context.Context, op string, err error) {
	status := 0
	var be *catalog.BackendError
	if errors.As(err, &be) {
		status = be.StatusCode
	}
	slog.Warn("Catalog request failed", "op", op, "status", status, "error", err)
	observability.GetGlobalMetrics().RecordBackendError(ctx, "catalog", status)
}

// Passage is one retrieved chunk with its provenance.
type Passage struct {
	ID       string
	Content  string
	Citation string
	Title    string
	URL      string
	Score    float32
}

// Context is the grounding material for one question.
type Context struct {
	Passages []Passage
}

// Text renders the passages for a prompt, each followed by its source.
func (c *Context) Text() string {
	if c == nil {
		return ""
	}
	var b strings.Builder
	for i, p := range c.Passages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d] %s", i+1, strings.TrimSpace(p.Content))
		switch {
		case p.Citation != "":
			fmt.Fprintf(&b, "\nCitation: %s", p.Citation)
		case p.Title != "" && p.URL != "":
			fmt.Fprintf(&b, "\nSource: %s (%s)", p.Title, p.URL)
		case p.URL != "":
			fmt.Fprintf(&b, "\nSource: %s", p.URL)
		}
	}
	return b.String()
}

// Citations returns the distinct citations, alphabetically.
func (c *Context) Citations() []string {
	if c == nil {
		return nil
	}
	seen := make(map[string]struct{})
	var out []string
	for _, p := range c.Passages {
		if p.Citation == "" {
			continue
		}
		if _, ok := seen[p.Citation]; ok {
			continue
		}
		seen[p.Citation] = struct{}{}
		out = append(out, p.Citation)
	}
	sort.Strings(out)
	return out
}

// RetrieveContext embeds question, pulls FetchK candidates and keeps TopK of
// them by maximal marginal relevance.
func (a *Adapter) RetrieveContext(ctx context.Context, question string) (*Context, error) {
	if a.embedder == nil || a.store == nil {
		return nil, errors.New("vector retrieval is not configured")
	}

	ctx, span := observability.StartSpan(ctx, observability.SpanVectorSearch,
		trace.WithAttributes(attribute.String(observability.AttrBackend, a.store.Name())))
	var spanErr error
	defer func() { observability.EndSpan(span, spanErr) }()

	query, err := a.embedder.Embed(ctx, question)
	if err != nil {
		spanErr = err
		return nil, fmt.Errorf("failed to embed question: %w", err)
	}

	candidates, err := a.store.Query(ctx, query, a.cfg.FetchK)
	if err != nil {
		spanErr = err
		return nil, fmt.Errorf("vector query failed: %w", err)
	}

	selected := vector.MMR(query, candidates, a.cfg.TopK, *a.cfg.Lambda)
	span.SetAttributes(attribute.Int(observability.AttrResults, len(selected)))
	slog.Debug("Retrieved context", "candidates", len(candidates), "selected", len(selected))

	out := &Context{Passages: make([]Passage, 0, len(selected))}
	for _, m := range selected {
		out.Passages = append(out.Passages, Passage{
			ID:       m.ID,
			Content:  m.Content,
			Citation: m.Metadata[vector.MetaCitation],
			Title:    m.Metadata[vector.MetaTitle],
			URL:      m.Metadata[vector.MetaURL],
			Score:    m.Score,
		})
	}
	return out, nil
}
