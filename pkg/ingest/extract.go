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
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/xuri/excelize/v2"
)

// ErrUnsupportedFormat is returned for files no extractor handles.
var ErrUnsupportedFormat = errors.New("unsupported document format")

// ErrNoText is returned when a document yields no extractable text.
var ErrNoText = errors.New("document contains no extractable text")

// Extracted holds the raw text of a document, one entry per page (PDF),
// per sheet (XLSX) or a single entry for everything else.
type Extracted struct {
	Path   string
	Format string
	Pages  []string
}

// Text returns all pages with whitespace runs collapsed to single spaces.
func (e *Extracted) Text() string {
	parts := make([]string, 0, len(e.Pages))
	for _, p := range e.Pages {
		if c := Collapse(p); c != "" {
			parts = append(parts, c)
		}
	}
	return strings.Join(parts, " ")
}

// FirstPage returns the collapsed text of the first page only.
func (e *Extracted) FirstPage() string {
	if len(e.Pages) == 0 {
		return ""
	}
	return Collapse(e.Pages[0])
}

// Collapse replaces every whitespace run with one space and trims the ends.
func Collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// SupportedExtensions lists the file extensions Extract understands.
func SupportedExtensions() []string {
	return []string{".pdf", ".docx", ".xlsx", ".txt", ".md"}
}

// Extract reads the text out of the document at path, picking the extractor
// by file extension.
func Extract(ctx context.Context, path string) (*Extracted, error) {
	ext := strings.ToLower(filepath.Ext(path))

	var (
		pages []string
		err   error
	)
	switch ext {
	case ".pdf":
		pages, err = extractPDF(ctx, path)
	case ".docx":
		pages, err = extractWord(path)
	case ".xlsx":
		pages, err = extractExcel(ctx, path)
	case ".txt", ".md":
		var data []byte
		data, err = os.ReadFile(path)
		pages = []string{string(data)}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to extract %s: %w", filepath.Base(path), err)
	}

	doc := &Extracted{Path: path, Format: strings.TrimPrefix(ext, "."), Pages: pages}
	if doc.Text() == "" {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), ErrNoText)
	}
	return doc, nil
}

func extractPDF(ctx context.Context, path string) ([]string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	pages := make([]string, 0, reader.NumPage())
	for i := 1; i <= reader.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		pages = append(pages, text)
	}
	return pages, nil
}

func extractWord(path string) ([]string, error) {
	doc, err := docx.ReadDocxFile(path)
	if err != nil {
		return nil, err
	}
	defer doc.Close()

	text, err := wordText(doc.Editable().GetContent())
	if err != nil {
		return nil, err
	}
	return []string{text}, nil
}

// wordText pulls run text out of WordprocessingML, one line per paragraph.
func wordText(content string) (string, error) {
	dec := xml.NewDecoder(strings.NewReader(content))
	var (
		b      strings.Builder
		inText bool
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				b.WriteByte('\t')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				b.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}
	return b.String(), nil
}

func extractExcel(ctx context.Context, path string) ([]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var pages []string
	for _, sheet := range f.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("sheet %q: %w", sheet, err)
		}
		var b strings.Builder
		b.WriteString(sheet)
		b.WriteByte('\n')
		for _, row := range rows {
			b.WriteString(strings.Join(row, "\t"))
			b.WriteByte('\n')
		}
		pages = append(pages, b.String())
	}
	return pages, nil
}
