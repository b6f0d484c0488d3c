package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/planloop/planloop/capability"
)

// SearchCapabilityOptions configures the retrieval capability.
type SearchCapabilityOptions struct {
	// Name overrides the capability name; defaults to "search_corpus".
	Name string
	// Description overrides the text shown to the model.
	Description string
	// MaxResults caps how many snippets one call may return; defaults to 3.
	MaxResults int
}

// NewSearchCapability wraps a corpus as a capability the planner can invoke.
// Results are formatted one snippet per line as "[source-id]: excerpt", the
// shape the planner is expected to quote from.
func NewSearchCapability(corpus Corpus, optFns ...func(o *SearchCapabilityOptions)) *capability.FunctionCapability {
	opts := SearchCapabilityOptions{
		Name:        "search_corpus",
		Description: "Search the reference corpus for passages relevant to a query. Returns source-attributed excerpts.",
		MaxResults:  3,
	}
	for _, f := range optFns {
		f(&opts)
	}

	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "Natural-language search query.",
			},
			"limit": map[string]any{
				"type":        "integer",
				"description": fmt.Sprintf("Maximum number of snippets to return (default %d).", opts.MaxResults),
			},
		},
		"required": []string{"query"},
	}

	return capability.NewFunction(opts.Name, opts.Description, schema,
		func(ctx context.Context, args map[string]any) (string, error) {
			query, _ := args["query"].(string)
			limit := opts.MaxResults
			if v, ok := args["limit"].(float64); ok && int(v) > 0 && int(v) < limit {
				limit = int(v)
			}

			snippets, err := corpus.Search(ctx, query, limit)
			if err != nil {
				return "", capability.NewError(opts.Name, err.Error(), capability.CodeExecutionError)
			}
			if len(snippets) == 0 {
				return fmt.Sprintf("No passages found for %q.", query), nil
			}

			lines := make([]string, len(snippets))
			for i, s := range snippets {
				lines[i] = fmt.Sprintf("[%s]: %s", s.SourceID, s.Excerpt)
			}
			return strings.Join(lines, "\n"), nil
		})
}
