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

package ingest

import (
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"
)

// SplitterConfig configures the character splitter. Size and Overlap are in
// characters, not bytes.
type SplitterConfig struct {
	Separator string `yaml:"separator,omitempty"`
	Size      int    `yaml:"size,omitempty"`
	Overlap   int    `yaml:"overlap,omitempty"`
}

func (c *SplitterConfig) Validate() error {
	if c.Size <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", c.Size)
	}
	if c.Overlap < 0 || c.Overlap >= c.Size {
		return fmt.Errorf("chunk overlap must be in [0, %d), got %d", c.Size, c.Overlap)
	}
	return nil
}

// Splitter cuts text on a separator and greedily packs the pieces into chunks
// of at most Size characters, carrying up to Overlap characters of trailing
// pieces into the next chunk. A single piece longer than Size becomes its own
// oversized chunk.
type Splitter struct {
	cfg SplitterConfig
}

func NewSplitter(cfg SplitterConfig) (*Splitter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Splitter{cfg: cfg}, nil
}

// Split returns the chunks of text in order. The separator is consumed at the
// split points and re-inserted between pieces that share a chunk.
func (s *Splitter) Split(text string) []string {
	var pieces []string
	if s.cfg.Separator == "" {
		for _, r := range text {
			pieces = append(pieces, string(r))
		}
	} else {
		for _, p := range strings.Split(text, s.cfg.Separator) {
			if p != "" {
				pieces = append(pieces, p)
			}
		}
	}
	return s.merge(pieces)
}

func (s *Splitter) merge(pieces []string) []string {
	sep := s.cfg.Separator
	sepLen := utf8.RuneCountInString(sep)

	var (
		chunks  []string
		current []string
		total   int
	)
	joinLen := func() int {
		if len(current) > 0 {
			return sepLen
		}
		return 0
	}

	for _, p := range pieces {
		n := utf8.RuneCountInString(p)
		if total+n+joinLen() > s.cfg.Size {
			if total > s.cfg.Size {
				slog.Debug("Created chunk longer than the configured size", "size", total, "limit", s.cfg.Size)
			}
			if len(current) > 0 {
				if chunk := strings.TrimSpace(strings.Join(current, sep)); chunk != "" {
					chunks = append(chunks, chunk)
				}
				for total > s.cfg.Overlap || (total > 0 && total+n+joinLen() > s.cfg.Size) {
					drop := utf8.RuneCountInString(current[0])
					if len(current) > 1 {
						drop += sepLen
					}
					total -= drop
					current = current[1:]
				}
			}
		}
		current = append(current, p)
		total += n
		if len(current) > 1 {
			total += sepLen
		}
	}
	if chunk := strings.TrimSpace(strings.Join(current, sep)); chunk != "" {
		chunks = append(chunks, chunk)
	}
	return chunks
}
