// Package catalog queries the FOSRC repository's DSpace discovery API.
package catalog

import (
	"net/url"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Filter constrains a catalog search. Empty fields and empty list items
// never produce a constraint.
type Filter struct {
	Query       string   `json:"search_query,omitempty"`
	Authors     []string `json:"authors,omitempty"`
	Subjects    []string `json:"subjects,omitempty"`
	MinDate     string   `json:"min_date,omitempty"`
	MaxDate     string   `json:"max_date,omitempty"`
	ItemTypes   []string `json:"item_types,omitempty"`
	Communities []string `json:"communities,omitempty"`
}

// Discovery facet names.
const (
	FieldAuthor    = "f.author"
	FieldSubject   = "f.subjectEn"
	FieldDate      = "f.dateIssued"
	FieldItemType  = "f.itemtype_en"
	FieldCommunity = "f.community_en"
)

// minorWords stay lowercase in title-cased author and community names.
var minorWords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "but": true, "or": true, "for": true,
	"nor": true, "on": true, "in": true, "at": true, "to": true, "with": true, "of": true,
}

// Constraint is one equality facet sent to the backend.
type Constraint struct {
	Field string
	Value string
}

// DateRange renders the inclusive issued-date range, or "" when neither bound
// is set.
func (f Filter) DateRange() string {
	lo, hi := strings.TrimSpace(f.MinDate), strings.TrimSpace(f.MaxDate)
	switch {
	case lo != "" && hi != "":
		return "[" + lo + " TO " + hi + "]"
	case lo != "":
		return "[" + lo + " TO *]"
	case hi != "":
		return "[* TO " + hi + "]"
	}
	return ""
}

// Constraints returns the facet constraints in a stable order: authors,
// subjects, date, item types, communities.
func (f Filter) Constraints() []Constraint {
	var out []Constraint
	add := func(field string, values []string, normalize func(string) string) {
		for _, v := range values {
			if strings.TrimSpace(v) == "" {
				continue
			}
			out = append(out, Constraint{Field: field, Value: normalize(v)})
		}
	}

	add(FieldAuthor, f.Authors, TitleCase)
	add(FieldSubject, f.Subjects, Capitalize)
	if r := f.DateRange(); r != "" {
		out = append(out, Constraint{Field: FieldDate, Value: r})
	}
	add(FieldItemType, f.ItemTypes, Capitalize)
	add(FieldCommunity, f.Communities, TitleCase)
	return out
}

// IsEmpty reports whether the filter carries no query and no constraint.
func (f Filter) IsEmpty() bool {
	return strings.TrimSpace(f.Query) == "" && len(f.Constraints()) == 0
}

// Encode renders the discovery query string for a page of size results.
// Parameter order is fixed so requests are reproducible in logs and tests.
func (f Filter) Encode(size int) string {
	var b strings.Builder
	b.WriteString("sort=")
	b.WriteString(url.QueryEscape("score,DESC"))
	b.WriteString("&page=0&size=")
	b.WriteString(strconv.Itoa(size))
	b.WriteString("&query=")
	b.WriteString(url.QueryEscape(f.Query))

	for _, c := range f.Constraints() {
		b.WriteByte('&')
		b.WriteString(c.Field)
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(c.Value))
		b.WriteString(",equals")
	}
	return b.String()
}

// Capitalize upper-cases the first letter and lower-cases the rest.
func Capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}

// TitleCase capitalizes every word except minor words, which are lower-cased.
// Runs of whitespace collapse to a single space.
func TitleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		if minorWords[strings.ToLower(w)] {
			words[i] = strings.ToLower(w)
		} else {
			words[i] = Capitalize(w)
		}
	}
	return strings.Join(words, " ")
}
