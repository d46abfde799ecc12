package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/kadirpekel/fosrc"
	"github.com/kadirpekel/fosrc/pkg/mcpserver"
)

// AskCmd answers one question without conversation memory.
type AskCmd struct {
	Question []string `arg:"" help:"The question."`
	JSON     bool     `help:"Print the full turn as JSON."`
}

func (c *AskCmd) Run(ctx context.Context, cli *CLI) error {
	question := strings.TrimSpace(strings.Join(c.Question, " "))
	if question == "" {
		return errors.New("question must not be empty")
	}

	rt, err := start(ctx, cli)
	if err != nil {
		return err
	}
	defer rt.close()

	turn, err := rt.app.Answer(ctx, question)
	if err != nil {
		return err
	}
	if c.JSON {
		return printJSON(turn)
	}
	fmt.Println(turn.Answer)
	return nil
}

// IngestCmd chunks documents into the vector index.
type IngestCmd struct {
	Paths    []string `arg:"" type:"existingfile" help:"Documents to ingest (.pdf, .docx, .xlsx, .txt, .md)."`
	Citation string   `help:"Citation stored with every chunk (default: generate an APA citation per document)."`
}

func (c *IngestCmd) Run(ctx context.Context, cli *CLI) error {
	rt, err := start(ctx, cli)
	if err != nil {
		return err
	}
	defer rt.close()

	var failed int
	for _, path := range c.Paths {
		res, err := rt.app.Ingest.Ingest(ctx, path, c.Citation)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			failed++
			continue
		}
		fmt.Printf("%s: %d chunk(s)\n   %s\n", res.Source, res.Chunks, res.Citation)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d document(s) failed", failed, len(c.Paths))
	}
	return nil
}

// CrawlCmd indexes the repository's public web pages.
type CrawlCmd struct {
	URL   string `help:"Sitemap index URL (default: the catalog server's sitemap index)."`
	Limit int    `help:"Number of newest pages to index (default: ingest.crawl_limit)."`
}

func (c *CrawlCmd) Run(ctx context.Context, cli *CLI) error {
	rt, err := start(ctx, cli)
	if err != nil {
		return err
	}
	defer rt.close()

	url := c.URL
	if url == "" {
		url = rt.cfg.SitemapIndexURL()
	}
	res, err := rt.app.Ingest.Crawl(ctx, url, c.Limit)
	if err != nil {
		return err
	}
	fmt.Printf("Indexed %d page(s) as %d chunk(s)\n", res.Pages, res.Chunks)
	for _, u := range res.Failed {
		fmt.Fprintf(os.Stderr, "   failed: %s\n", u)
	}
	return nil
}

// SummarizeCmd prints a plain-language summary of a document.
type SummarizeCmd struct {
	Path     string `arg:"" type:"existingfile" help:"Document to summarize."`
	Language string `short:"l" help:"Summary language." default:"English" enum:"English,Français"`
}

func (c *SummarizeCmd) Run(ctx context.Context, cli *CLI) error {
	rt, err := start(ctx, cli)
	if err != nil {
		return err
	}
	defer rt.close()

	summary, err := rt.app.Ingest.Summarize(ctx, c.Path, c.Language)
	if err != nil {
		return err
	}
	fmt.Println(summary)
	return nil
}

// CiteCmd prints a citation built from the document's first page.
type CiteCmd struct {
	Path  string `arg:"" type:"existingfile" help:"Document to cite."`
	Style string `short:"s" help:"Citation style." default:"APA" enum:"APA,MLA"`
}

func (c *CiteCmd) Run(ctx context.Context, cli *CLI) error {
	rt, err := start(ctx, cli)
	if err != nil {
		return err
	}
	defer rt.close()

	citation, err := rt.app.Ingest.Cite(ctx, c.Path, c.Style)
	if err != nil {
		return err
	}
	fmt.Println(citation)
	return nil
}

// MCPCmd serves the repository tools over stdio.
type MCPCmd struct{}

func (c *MCPCmd) Run(ctx context.Context, cli *CLI) error {
	rt, err := start(ctx, cli)
	if err != nil {
		return err
	}
	defer rt.close()

	s, err := mcpserver.New(rt.app.Tools, fosrc.GetVersion().Version)
	if err != nil {
		return err
	}
	return mcpserver.ServeStdio(ctx, s, os.Stdin, os.Stdout)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
