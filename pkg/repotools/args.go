package repotools

import (
	"strconv"
	"strings"

	"github.com/invopop/jsonschema"

	"github.com/kadirpekel/fosrc/pkg/catalog"
)

// ItemTypes lists the catalog item types the model may filter on. The empty
// string is accepted and ignored.
var ItemTypes = []string{
	"",
	"Article",
	"Report",
	"Accepted manuscript",
	"Internal report",
	"Departmental report",
	"Submitted manuscript",
	"Consultant report",
	"Other",
	"Book",
	"Book chapter",
	"Conference proceeding or paper",
	"Whitepaper",
}

// FilterArgs are the catalog filters shared by the count and search tools.
// Every field is optional; null and empty values add no constraint.
type FilterArgs struct {
	SearchQuery *string  `json:"search_query,omitempty" jsonschema:"description=The search query filter."`
	Authors     []string `json:"authors,omitempty" jsonschema:"description=A list of authors for filtering the query."`
	Subjects    []string `json:"subjects,omitempty" jsonschema:"description=A list of subjects for filtering the query."`
	MinDate     *string  `json:"min_date,omitempty" jsonschema:"description=The min date filter. Only the year."`
	MaxDate     *string  `json:"max_date,omitempty" jsonschema:"description=The max date filter. Only the year."`
	ItemTypes   []string `json:"item_types,omitempty" jsonschema:"description=A list of item types for filtering the query. Only include if specified by the user."`
	Communities []string `json:"communities,omitempty" jsonschema:"description=A list of communities for filtering the query. Only include if specified by the user."`
}

func (FilterArgs) JSONSchemaExtend(s *jsonschema.Schema) {
	extendFilterSchema(s)
}

func extendFilterSchema(s *jsonschema.Schema) {
	items := map[string]string{
		"authors":     "An author.",
		"subjects":    "A subject.",
		"item_types":  "An item type.",
		"communities": "A community.",
	}
	for name, desc := range items {
		p, ok := s.Properties.Get(name)
		if !ok || p.Items == nil {
			continue
		}
		p.Items.Description = desc
		if name == "item_types" {
			p.Items.Enum = make([]any, len(ItemTypes))
			for i, v := range ItemTypes {
				p.Items.Enum[i] = v
			}
		}
	}
}

// Filter converts the arguments to a catalog filter.
func (a FilterArgs) Filter() catalog.Filter {
	return catalog.Filter{
		Query:       deref(a.SearchQuery),
		Authors:     a.Authors,
		Subjects:    a.Subjects,
		MinDate:     deref(a.MinDate),
		MaxDate:     deref(a.MaxDate),
		ItemTypes:   a.ItemTypes,
		Communities: a.Communities,
	}
}

// SearchArgs adds the page size to the catalog filters.
type SearchArgs struct {
	Size *string `json:"size,omitempty" jsonschema:"description=The size filter which indicates the number of results to return. Only include if specified by the user."`
	FilterArgs
}

func (SearchArgs) JSONSchemaExtend(s *jsonschema.Schema) {
	extendFilterSchema(s)
}

// PageSize parses Size, falling back to the catalog default.
func (a SearchArgs) PageSize() int {
	n, err := strconv.Atoi(strings.TrimSpace(deref(a.Size)))
	if err != nil || n <= 0 {
		return catalog.DefaultPageSize
	}
	return n
}

// QuestionArgs carries the question for a grounded answer.
type QuestionArgs struct {
	UserQuestion *string `json:"user_question,omitempty" jsonschema:"description=The user's question."`
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
