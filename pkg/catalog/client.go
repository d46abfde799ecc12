package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kadirpekel/fosrc/pkg/httpclient"
	"github.com/kadirpekel/fosrc/pkg/observability"
)

const searchPath = "/server/api/discover/search/objects"

// DefaultPageSize is used when a search does not ask for a size.
const DefaultPageSize = 10

// Config points the client at a DSpace server.
type Config struct {
	// Server is the repository base URL, e.g. https://open-science.canada.ca.
	Server  string        `yaml:"server"`
	Timeout time.Duration `yaml:"timeout,omitempty"`

	// MaxRetries bounds retries of transient failures. Negative disables them.
	MaxRetries int                   `yaml:"max_retries,omitempty"`
	TLS        *httpclient.TLSConfig `yaml:"tls,omitempty"`
}

func (c *Config) SetDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 2
	}
}

func (c *Config) Validate() error {
	if c.Server == "" {
		return fmt.Errorf("catalog server is required (set FOSRC_SERVER_LINK)")
	}
	if !strings.HasPrefix(c.Server, "http://") && !strings.HasPrefix(c.Server, "https://") {
		return fmt.Errorf("catalog server must be an http(s) URL, got %q", c.Server)
	}
	return nil
}

// Item is one search hit. Link is empty when the backend gave no id.
type Item struct {
	Title string `json:"title"`
	Link  string `json:"link"`
}

// Client runs discovery searches.
type Client struct {
	server string
	http   *httpclient.Client
}

func NewClient(cfg Config) (*Client, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	hc, err := httpclient.NewHTTPClient(cfg.Timeout, cfg.TLS)
	if err != nil {
		return nil, err
	}
	return &Client{
		server: strings.TrimRight(cfg.Server, "/"),
		http: httpclient.New(
			httpclient.WithHTTPClient(hc),
			httpclient.WithMaxRetries(max(cfg.MaxRetries, 0)),
			httpclient.WithName("catalog"),
		),
	}, nil
}

// Server returns the base URL links are built from.
func (c *Client) Server() string { return c.server }

// SearchURL returns the full discovery URL for f at the given page size.
func (c *Client) SearchURL(f Filter, size int) string {
	return c.server + searchPath + "?" + f.Encode(size)
}

type searchResponse struct {
	Embedded struct {
		SearchResult struct {
			Page struct {
				TotalElements int64 `json:"totalElements"`
			} `json:"page"`
			Embedded struct {
				Objects []struct {
					Embedded struct {
						IndexableObject struct {
							ID   string `json:"id"`
							Name string `json:"name"`
						} `json:"indexableObject"`
					} `json:"_embedded"`
				} `json:"objects"`
			} `json:"_embedded"`
		} `json:"searchResult"`
	} `json:"_embedded"`
}

// Count returns the total number of items matching f.
func (c *Client) Count(ctx context.Context, f Filter) (int64, error) {
	resp, err := c.search(ctx, f, 0)
	if err != nil {
		return 0, err
	}
	return resp.Embedded.SearchResult.Page.TotalElements, nil
}

// Search returns the first page of items matching f. A non-positive size
// falls back to DefaultPageSize.
func (c *Client) Search(ctx context.Context, f Filter, size int) ([]Item, error) {
	if size <= 0 {
		size = DefaultPageSize
	}
	resp, err := c.search(ctx, f, size)
	if err != nil {
		return nil, err
	}

	objects := resp.Embedded.SearchResult.Embedded.Objects
	items := make([]Item, 0, len(objects))
	for _, o := range objects {
		obj := o.Embedded.IndexableObject
		item := Item{Title: obj.Name}
		if obj.ID != "" {
			item.Link = c.server + "/items/" + obj.ID
		}
		items = append(items, item)
	}
	return items, nil
}

func (c *Client) search(ctx context.Context, f Filter, size int) (*searchResponse, error) {
	endpoint := c.SearchURL(f, size)

	ctx, span := observability.StartSpan(ctx, observability.SpanCatalogSearch,
		trace.WithAttributes(attribute.Int(observability.AttrResults, size)))
	var spanErr error
	defer func() { observability.EndSpan(span, spanErr) }()

	slog.Debug("Catalog search", "url", endpoint)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		spanErr = err
		return nil, fmt.Errorf("failed to build catalog request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		spanErr = err
		return nil, &BackendError{StatusCode: httpclient.StatusCode(err), URL: endpoint, Err: err}
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int(observability.AttrStatusCode, resp.StatusCode))
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		be := &BackendError{StatusCode: resp.StatusCode, URL: endpoint}
		spanErr = be
		return nil, be
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		spanErr = err
		return nil, &BackendError{StatusCode: resp.StatusCode, URL: endpoint, Err: fmt.Errorf("decode response: %w", err)}
	}
	return &parsed, nil
}
