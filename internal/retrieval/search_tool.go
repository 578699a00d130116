package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// SearchTool exposes the knowledge base to the model as a callable tool.
type SearchTool struct {
	retriever *KeywordRetriever
	limit     int
}

// NewSearchTool wraps a retriever as a tool. limit caps results per call.
func NewSearchTool(retriever *KeywordRetriever, limit int) *SearchTool {
	if limit <= 0 {
		limit = 3
	}
	return &SearchTool{retriever: retriever, limit: limit}
}

func (t *SearchTool) Name() string { return "search_kb" }

func (t *SearchTool) Description() string {
	return "Search the store knowledge base for policies, product info, and account help. " +
		"Use when the answer depends on store-specific facts."
}

func (t *SearchTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {
				"type": "string",
				"description": "Search terms"
			}
		},
		"required": ["query"]
	}`)
}

func (t *SearchTool) Execute(ctx context.Context, input json.RawMessage) (string, error) {
	var in struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(input, &in); err != nil {
		return "", fmt.Errorf("invalid search input: %w", err)
	}
	if in.Query == "" {
		return "", fmt.Errorf("query is required")
	}

	docs, err := t.retriever.Retrieve(ctx, in.Query, t.limit)
	if err != nil {
		return "", err
	}
	if len(docs) == 0 {
		return "No results found.", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d result(s):\n", len(docs))
	for _, doc := range docs {
		body, _ := t.retriever.Body(doc.Title)
		fmt.Fprintf(&b, "## %s\n%s\n", doc.Title, body)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}
