// Package tokens counts model tokens with tiktoken.
//
// Encodings are fetched lazily and cached per encoding name. When an encoding
// cannot be loaded (for instance offline, where tiktoken cannot download its
// BPE ranks) counts fall back to a four-characters-per-token estimate.
package tokens

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	cacheMu sync.Mutex
	cache   = map[string]*tiktoken.Tiktoken{}
	failed  = map[string]bool{}
)

// Counter counts tokens for one model.
type Counter struct {
	model    string
	encoding string

	once sync.Once
	enc  *tiktoken.Tiktoken
}

// NewCounter returns a counter for model. It never fails; see package doc.
func NewCounter(model string) *Counter {
	return &Counter{model: model, encoding: EncodingForModel(model)}
}

// Model returns the model the counter was built for.
func (c *Counter) Model() string { return c.model }

// Count returns the number of tokens in text. A nil Counter estimates.
func (c *Counter) Count(text string) int {
	if text == "" {
		return 0
	}
	if c == nil {
		return Estimate(text)
	}
	c.once.Do(func() { c.enc = load(c.encoding) })
	if c.enc == nil {
		return Estimate(text)
	}
	return len(c.enc.Encode(text, nil, nil))
}

// Truncate cuts text to at most limit tokens.
func (c *Counter) Truncate(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if c.Count(text) <= limit {
		return text
	}
	if c != nil && c.enc != nil {
		ids := c.enc.Encode(text, nil, nil)
		return c.enc.Decode(ids[:limit])
	}
	if n := limit * 4; n < len(text) {
		return strings.ToValidUTF8(text[:n], "")
	}
	return text
}

// Estimate is the offline approximation: one token per four bytes, rounded up.
func Estimate(text string) int {
	return (len(text) + 3) / 4
}

// EncodingForModel maps a model name to a tiktoken encoding. Non-OpenAI
// models are approximated with cl100k_base.
func EncodingForModel(model string) string {
	m := strings.ToLower(model)
	switch {
	case strings.HasPrefix(m, "gpt-4o"), strings.HasPrefix(m, "gpt-4.1"),
		strings.HasPrefix(m, "gpt-5"), strings.HasPrefix(m, "o1"), strings.HasPrefix(m, "o3"), strings.HasPrefix(m, "o4"):
		return "o200k_base"
	default:
		return "cl100k_base"
	}
}

func load(encoding string) *tiktoken.Tiktoken {
	cacheMu.Lock()
	defer cacheMu.Unlock()

	if enc, ok := cache[encoding]; ok {
		return enc
	}
	if failed[encoding] {
		return nil
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		failed[encoding] = true
		slog.Debug("Token encoding unavailable, estimating", "encoding", encoding, "error", err)
		return nil
	}
	cache[encoding] = enc
	return enc
}
