// Package repotools defines the three repository tools the assistant may
// call: result counts, result listings and grounded answers.
package repotools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kadirpekel/fosrc/pkg/catalog"
	"github.com/kadirpekel/fosrc/pkg/model"
	"github.com/kadirpekel/fosrc/pkg/retrieval"
	"github.com/kadirpekel/fosrc/pkg/tool"
)

// Name identifies one repository tool.
type Name string

const (
	CountResults   Name = "get_search_results_count"
	SearchResults  Name = "get_search_results"
	GroundedAnswer Name = "get_rag_response"
)

// Names lists the repository tools in declaration order.
func Names() []Name {
	return []Name{CountResults, SearchResults, GroundedAnswer}
}

const (
	countDescription  = "In FOSRC, get the number of search results based on the following filters: search query filter, the authors filter, the subjects filter, the min date filter, the max date filter, the communities filter, and the item types filter."
	searchDescription = "In FOSRC, fetch the search results based on the following filters: size filter, search query filter, the authors filter, the subjects filter, the min date filter, the max date filter, the communities filter, and the item types filter."
	answerDescription = "Fetch the answer to a question based on resources in FOSRC."
)

// NoData is the tool output when the catalog backend returned nothing usable.
const NoData = "No data available: the FOSRC catalog could not be reached."

// Retriever is what the tools need from the retrieval layer.
type Retriever interface {
	CountResults(ctx context.Context, f catalog.Filter) string
	FetchResults(ctx context.Context, size int, f catalog.Filter) []catalog.Item
	RetrieveContext(ctx context.Context, question string) (*retrieval.Context, error)
}

// Tools builds the repository tools. llm produces grounded answers.
func Tools(r Retriever, llm model.LLM) ([]tool.Tool, error) {
	if r == nil {
		return nil, fmt.Errorf("repository tools need a retriever")
	}
	if llm == nil {
		return nil, fmt.Errorf("repository tools need a model for grounded answers")
	}

	count, err := tool.NewFunction(string(CountResults), countDescription,
		func(ctx context.Context, args FilterArgs) (string, error) {
			count := r.CountResults(ctx, args.Filter())
			if count == "" {
				return NoData, nil
			}
			return count, nil
		})
	if err != nil {
		return nil, err
	}

	search, err := tool.NewFunction(string(SearchResults), searchDescription,
		func(ctx context.Context, args SearchArgs) (string, error) {
			items := r.FetchResults(ctx, args.PageSize(), args.Filter())
			if items == nil {
				return NoData, nil
			}
			data, err := json.Marshal(items)
			if err != nil {
				return "", err
			}
			return string(data), nil
		})
	if err != nil {
		return nil, err
	}

	answer, err := tool.NewFunction(string(GroundedAnswer), answerDescription,
		func(ctx context.Context, args QuestionArgs) (string, error) {
			text, err := Answer(ctx, r, llm, deref(args.UserQuestion))
			if err != nil {
				return "", err
			}
			return WrapGrounded(text), nil
		})
	if err != nil {
		return nil, err
	}

	return []tool.Tool{count, search, answer}, nil
}

// Register adds the repository tools to reg.
func Register(reg *tool.Registry, r Retriever, llm model.LLM) error {
	tools, err := Tools(r, llm)
	if err != nil {
		return err
	}
	for _, t := range tools {
		if err := reg.Register(t); err != nil {
			return err
		}
	}
	return nil
}

// Answer retrieves context for question and asks llm for a grounded answer.
// An empty question yields an empty answer.
func Answer(ctx context.Context, r Retriever, llm model.LLM, question string) (string, error) {
	if strings.TrimSpace(question) == "" {
		return "", nil
	}

	rc, err := r.RetrieveContext(ctx, question)
	if err != nil {
		return "", fmt.Errorf("failed to retrieve context: %w", err)
	}

	resp, err := llm.Generate(ctx, &model.Request{
		Messages: []model.Message{model.SystemMessage(GroundedPrompt(question, rc.Text()))},
	})
	if err != nil {
		return "", fmt.Errorf("grounded answer generation failed: %w", err)
	}

	slog.Debug("Grounded answer", "passages", len(rc.Passages), "citations", len(rc.Citations()), "chars", len(resp.Text))
	return strings.TrimSpace(resp.Text), nil
}
