// Package ingest turns documents and repository web pages into vector index
// chunks, and answers one-shot document questions (summary, citation).
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kadirpekel/fosrc/pkg/embedder"
	"github.com/kadirpekel/fosrc/pkg/httpclient"
	"github.com/kadirpekel/fosrc/pkg/model"
	"github.com/kadirpekel/fosrc/pkg/observability"
	"github.com/kadirpekel/fosrc/pkg/tokens"
	"github.com/kadirpekel/fosrc/pkg/vector"
)

const (
	LanguageEnglish = "English"
	LanguageFrench  = "Français"

	StyleAPA = "APA"
	StyleMLA = "MLA"
)

var (
	Languages = []string{LanguageEnglish, LanguageFrench}
	Styles    = []string{StyleAPA, StyleMLA}

	ErrUnsupportedLanguage = errors.New("unsupported summary language")
	ErrUnsupportedStyle    = errors.New("unsupported citation style")
)

const summaryTemplate = `
You are a scientific expert that can communicate simply, clearly, and concisely.  Provide a detailed summary of the following text in layman's terms in %s:
%s
`

const citationTemplate = `
You are an expert at creating academic citations.  Create a %s citation for the following text, and only output the citation:
%s
`

// SummaryPrompt builds the plain-language summary instruction.
func SummaryPrompt(language, text string) string {
	return fmt.Sprintf(summaryTemplate, language, text)
}

// CitationPrompt builds the citation instruction for the given style.
func CitationPrompt(style, text string) string {
	return fmt.Sprintf(citationTemplate, style, text)
}

const (
	DefaultCrawlLimit       = 50
	DefaultCrawlConcurrency = 5
	DefaultBatchSize        = 100
	DefaultMaxInputTokens   = 100000
	DefaultTimeout          = 30 * time.Second
	DefaultUserAgent        = "fosrc-ingest/1.0"
)

// Config controls chunking and crawling.
type Config struct {
	Document         SplitterConfig `yaml:"document,omitempty"`
	Web              SplitterConfig `yaml:"web,omitempty"`
	CrawlLimit       int            `yaml:"crawl_limit,omitempty"`
	CrawlConcurrency int            `yaml:"crawl_concurrency,omitempty"`
	BatchSize        int            `yaml:"batch_size,omitempty"`

	// MaxInputTokens caps the document text sent in summary and citation
	// prompts.
	MaxInputTokens int           `yaml:"max_input_tokens,omitempty"`
	Timeout        time.Duration `yaml:"timeout,omitempty"`
	UserAgent      string        `yaml:"user_agent,omitempty"`
}

func (c *Config) SetDefaults() {
	if c.Document.Size == 0 {
		c.Document = SplitterConfig{Separator: ".", Size: 1000, Overlap: 20}
	}
	if c.Web.Size == 0 {
		c.Web = SplitterConfig{Separator: ".", Size: 10000, Overlap: 0}
	}
	if c.CrawlLimit == 0 {
		c.CrawlLimit = DefaultCrawlLimit
	}
	if c.CrawlConcurrency == 0 {
		c.CrawlConcurrency = DefaultCrawlConcurrency
	}
	if c.BatchSize == 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.MaxInputTokens == 0 {
		c.MaxInputTokens = DefaultMaxInputTokens
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
}

func (c *Config) Validate() error {
	if err := c.Document.Validate(); err != nil {
		return fmt.Errorf("ingest.document: %w", err)
	}
	if err := c.Web.Validate(); err != nil {
		return fmt.Errorf("ingest.web: %w", err)
	}
	if c.CrawlLimit < 1 {
		return fmt.Errorf("ingest.crawl_limit must be at least 1, got %d", c.CrawlLimit)
	}
	if c.CrawlConcurrency < 1 {
		return fmt.Errorf("ingest.crawl_concurrency must be at least 1, got %d", c.CrawlConcurrency)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("ingest.batch_size must be at least 1, got %d", c.BatchSize)
	}
	return nil
}

// Result describes one ingested source.
type Result struct {
	Source   string `json:"source"`
	Citation string `json:"citation,omitempty"`
	Chunks   int    `json:"chunks"`
}

// Service runs document operations against a model and a vector index.
// embed and store may be nil when only Summarize and Cite are used.
type Service struct {
	llm     model.LLM
	embed   embedder.Embedder
	store   vector.Provider
	counter *tokens.Counter
	cfg     Config

	http     *httpclient.Client
	docSplit *Splitter
	webSplit *Splitter
}

func New(llm model.LLM, embed embedder.Embedder, store vector.Provider, counter *tokens.Counter, cfg Config) (*Service, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	docSplit, err := NewSplitter(cfg.Document)
	if err != nil {
		return nil, err
	}
	webSplit, err := NewSplitter(cfg.Web)
	if err != nil {
		return nil, err
	}
	hc, err := httpclient.NewHTTPClient(cfg.Timeout, nil)
	if err != nil {
		return nil, err
	}
	return &Service{
		llm:      llm,
		embed:    embed,
		store:    store,
		counter:  counter,
		cfg:      cfg,
		http:     httpclient.New(httpclient.WithHTTPClient(hc), httpclient.WithName("crawler")),
		docSplit: docSplit,
		webSplit: webSplit,
	}, nil
}

// Summarize returns a plain-language summary of the whole document.
func (s *Service) Summarize(ctx context.Context, path, language string) (string, error) {
	if !slices.Contains(Languages, language) {
		return "", fmt.Errorf("%w: %q (supported: %s)", ErrUnsupportedLanguage, language, strings.Join(Languages, ", "))
	}
	doc, err := Extract(ctx, path)
	if err != nil {
		return "", err
	}
	return s.generate(ctx, SummaryPrompt(language, s.clip(doc.Text())))
}

// Cite returns a citation built from the first page of the document.
func (s *Service) Cite(ctx context.Context, path, style string) (string, error) {
	if !slices.Contains(Styles, style) {
		return "", fmt.Errorf("%w: %q (supported: %s)", ErrUnsupportedStyle, style, strings.Join(Styles, ", "))
	}
	doc, err := Extract(ctx, path)
	if err != nil {
		return "", err
	}
	return s.cite(ctx, doc, style)
}

func (s *Service) cite(ctx context.Context, doc *Extracted, style string) (string, error) {
	return s.generate(ctx, CitationPrompt(style, s.clip(doc.FirstPage())))
}

func (s *Service) clip(text string) string {
	if s.cfg.MaxInputTokens <= 0 {
		return text
	}
	return s.counter.Truncate(text, s.cfg.MaxInputTokens)
}

func (s *Service) generate(ctx context.Context, prompt string) (string, error) {
	resp, err := s.llm.Generate(ctx, &model.Request{
		Messages: []model.Message{model.SystemMessage(prompt)},
	})
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", model.ErrEmptyResponse
	}
	return text, nil
}

// Ingest chunks the document and writes it to the index. Every chunk carries
// the citation; when citation is empty an APA citation is generated first.
func (s *Service) Ingest(ctx context.Context, path, citation string) (*Result, error) {
	doc, err := Extract(ctx, path)
	if err != nil {
		return nil, err
	}

	citation = strings.TrimSpace(citation)
	if citation == "" {
		if citation, err = s.cite(ctx, doc, StyleAPA); err != nil {
			return nil, fmt.Errorf("failed to generate citation: %w", err)
		}
	}

	source := filepath.Base(path)
	chunks := s.docSplit.Split(doc.Text())
	meta := map[string]string{
		vector.MetaCitation: citation,
		vector.MetaSource:   source,
	}
	if err := s.write(ctx, "document", source, chunks, meta); err != nil {
		return nil, err
	}
	slog.Info("Ingested document", "source", source, "chunks", len(chunks))
	return &Result{Source: source, Citation: citation, Chunks: len(chunks)}, nil
}

// write embeds chunks batch by batch and upserts them with meta attached.
func (s *Service) write(ctx context.Context, kind, source string, chunks []string, meta map[string]string) (err error) {
	if s.embed == nil || s.store == nil {
		return errors.New("ingestion requires an embedder and a vector store")
	}

	ctx, span := observability.StartSpan(ctx, observability.SpanIngest,
		trace.WithAttributes(
			attribute.String("fosrc.ingest.kind", kind),
			attribute.String("fosrc.ingest.source", source),
			attribute.Int("fosrc.ingest.chunks", len(chunks)),
			attribute.String(observability.AttrBackend, s.store.Name()),
		))
	defer func() { observability.EndSpan(span, err) }()

	for start := 0; start < len(chunks); start += s.cfg.BatchSize {
		end := min(start+s.cfg.BatchSize, len(chunks))
		batch := chunks[start:end]

		vectors, err := s.embed.EmbedBatch(ctx, batch)
		if err != nil {
			return fmt.Errorf("failed to embed chunks %d-%d of %s: %w", start, end, source, err)
		}
		if len(vectors) != len(batch) {
			return fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(batch))
		}

		docs := make([]vector.Document, len(batch))
		for i, text := range batch {
			md := make(map[string]string, len(meta)+1)
			for k, v := range meta {
				md[k] = v
			}
			md[vector.MetaContent] = text
			docs[i] = vector.Document{ID: uuid.NewString(), Content: text, Vector: vectors[i], Metadata: md}
		}
		if err := s.store.Upsert(ctx, docs); err != nil {
			return fmt.Errorf("failed to upsert chunks of %s: %w", source, err)
		}
	}

	observability.GetGlobalMetrics().RecordIngest(ctx, kind, len(chunks))
	return nil
}
