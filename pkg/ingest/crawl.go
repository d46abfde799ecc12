package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/sync/errgroup"

	"github.com/kadirpekel/fosrc/pkg/vector"
)

// SitemapIndexPath is appended to the repository server link to find the
// sitemap index.
const SitemapIndexPath = "/sitemap_index.html"

const maxPageBytes = 10 << 20

// NoTitle is used for pages with neither an h1 nor a title element.
const NoTitle = "No title"

// skipped elements never contribute page text.
var skipped = map[string]bool{
	"script": true, "style": true, "img": true, "input": true,
	"footer": true, "header": true, "nav": true, "ds-search-results": true,
}

// Page is the text scraped from one repository web page.
type Page struct {
	URL   string
	Title string
	Text  string
}

// CrawlResult summarizes a crawl run.
type CrawlResult struct {
	Pages  int      `json:"pages"`
	Chunks int      `json:"chunks"`
	Failed []string `json:"failed,omitempty"`
}

// Crawl walks the sitemap index, scrapes the newest limit pages and indexes
// their text. Pages that fail to load are reported, not fatal.
func (s *Service) Crawl(ctx context.Context, sitemapIndexURL string, limit int) (*CrawlResult, error) {
	if limit <= 0 {
		limit = s.cfg.CrawlLimit
	}

	sitemaps, err := s.links(ctx, sitemapIndexURL)
	if err != nil {
		return nil, fmt.Errorf("failed to read sitemap index: %w", err)
	}

	children := make([][]string, len(sitemaps))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.CrawlConcurrency)
	for i, sm := range sitemaps {
		g.Go(func() error {
			links, err := s.links(gctx, sm)
			if err != nil {
				slog.Warn("Skipping unreadable sitemap", "url", sm, "error", err)
				return nil
			}
			children[i] = links
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var urls []string
	for _, links := range children {
		urls = append(urls, links...)
	}
	if len(urls) > limit {
		urls = urls[len(urls)-limit:]
	}
	slog.Info("Crawling repository pages", "sitemaps", len(sitemaps), "pages", len(urls))

	pages := make([]*Page, len(urls))
	var (
		mu     sync.Mutex
		failed []string
	)
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.CrawlConcurrency)
	for i, u := range urls {
		g.Go(func() error {
			page, err := s.Scrape(gctx, u)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				slog.Warn("Failed to scrape page", "url", u, "error", err)
				mu.Lock()
				failed = append(failed, u)
				mu.Unlock()
				return nil
			}
			pages[i] = page
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &CrawlResult{Failed: failed}
	for _, page := range pages {
		if page == nil {
			continue
		}
		chunks := s.webSplit.Split(page.Text)
		if len(chunks) == 0 {
			continue
		}
		meta := map[string]string{vector.MetaURL: page.URL, vector.MetaTitle: page.Title}
		if err := s.write(ctx, "web", page.URL, chunks, meta); err != nil {
			return nil, err
		}
		result.Pages++
		result.Chunks += len(chunks)
	}
	slog.Info("Crawl finished", "pages", result.Pages, "chunks", result.Chunks, "failed", len(result.Failed))
	return result, nil
}

// Scrape fetches one page and extracts its title and visible text.
func (s *Service) Scrape(ctx context.Context, pageURL string) (*Page, error) {
	doc, err := s.fetch(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	return &Page{URL: pageURL, Title: Title(doc), Text: BodyText(doc)}, nil
}

func (s *Service) links(ctx context.Context, pageURL string) ([]string, error) {
	doc, err := s.fetch(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, err
	}
	return Links(doc, base), nil
}

func (s *Service) fetch(ctx context.Context, pageURL string) (*html.Node, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", s.cfg.UserAgent)
	req.Header.Set("Accept", "text/html")

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: unexpected status %d", pageURL, resp.StatusCode)
	}
	return html.Parse(io.LimitReader(resp.Body, maxPageBytes))
}

// Links returns the absolute href of every anchor in document order.
func Links(doc *html.Node, base *url.URL) []string {
	var out []string
	for n := range doc.Descendants() {
		if n.Type != html.ElementNode || n.DataAtom != atom.A {
			continue
		}
		href := strings.TrimSpace(attr(n, "href"))
		if href == "" || strings.HasPrefix(href, "#") {
			continue
		}
		ref, err := url.Parse(href)
		if err != nil {
			continue
		}
		abs := base.ResolveReference(ref)
		if abs.Scheme != "http" && abs.Scheme != "https" {
			continue
		}
		out = append(out, abs.String())
	}
	return out
}

// Title returns the first h1 text, falling back to the title element.
func Title(doc *html.Node) string {
	if h1 := find(doc, atom.H1); h1 != nil {
		if t := strings.TrimSpace(textOf(h1)); t != "" {
			return t
		}
	}
	if title := find(doc, atom.Title); title != nil {
		if t := strings.TrimSpace(textOf(title)); t != "" {
			return t
		}
	}
	return NoTitle
}

// BodyText returns the visible body text, one trimmed text run per line.
// Paragraphs are flattened to a single line and chrome elements (navigation,
// headers, footers, scripts, search widgets) are dropped.
func BodyText(doc *html.Node) string {
	body := find(doc, atom.Body)
	if body == nil {
		return ""
	}
	var lines []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			switch c.Type {
			case html.TextNode:
				if t := strings.TrimSpace(c.Data); t != "" {
					lines = append(lines, t)
				}
			case html.ElementNode:
				if skipped[c.Data] {
					continue
				}
				if c.DataAtom == atom.P {
					if t := paragraph(c); t != "" {
						lines = append(lines, t)
					}
					continue
				}
				walk(c)
			}
		}
	}
	walk(body)
	return strings.Join(lines, "\n")
}

func paragraph(p *html.Node) string {
	var parts []string
	for n := range p.Descendants() {
		if n.Type == html.ElementNode && skipped[n.Data] {
			continue
		}
		if n.Type == html.TextNode && !insideSkipped(n, p) {
			if t := strings.TrimSpace(n.Data); t != "" {
				parts = append(parts, t)
			}
		}
	}
	return strings.Join(parts, " ")
}

func insideSkipped(n, root *html.Node) bool {
	for p := n.Parent; p != nil && p != root; p = p.Parent {
		if p.Type == html.ElementNode && skipped[p.Data] {
			return true
		}
	}
	return false
}

func find(doc *html.Node, a atom.Atom) *html.Node {
	for n := range doc.Descendants() {
		if n.Type == html.ElementNode && n.DataAtom == a {
			return n
		}
	}
	return nil
}

func textOf(n *html.Node) string {
	var b strings.Builder
	for d := range n.Descendants() {
		if d.Type == html.TextNode {
			b.WriteString(d.Data)
		}
	}
	return b.String()
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
