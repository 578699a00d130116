// Package retrieval supplies context documents for the engine's Retrieval
// stage from an in-process keyword index.
package retrieval

import (
	"context"
	"sort"
	"strings"

	"github.com/haasonsaas/concierge/pkg/models"
)

// Document is one entry in the knowledge base.
type Document struct {
	Title  string `yaml:"title" json:"title"`
	Body   string `yaml:"body" json:"body"`
	Source string `yaml:"source" json:"source"`
}

// KeywordRetriever scores documents by query-term overlap. It is pure and
// deterministic: the same query over the same documents always returns the
// same ordering.
type KeywordRetriever struct {
	docs []Document
}

// NewKeywordRetriever builds a retriever over a fixed document set.
func NewKeywordRetriever(docs []Document) *KeywordRetriever {
	return &KeywordRetriever{docs: docs}
}

// Retrieve returns up to limit documents matching query, scored by the
// fraction of query terms present in the document. Zero-score documents are
// excluded. Ties break by title so ordering is stable.
func (r *KeywordRetriever) Retrieve(_ context.Context, query string, limit int) ([]models.ContextDoc, error) {
	terms := tokenize(query)
	if len(terms) == 0 {
		return []models.ContextDoc{}, nil
	}

	var out []models.ContextDoc
	for _, doc := range r.docs {
		haystack := strings.ToLower(doc.Title + " " + doc.Body)
		hits := 0
		for _, term := range terms {
			if strings.Contains(haystack, term) {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		out = append(out, models.ContextDoc{
			Title:  doc.Title,
			Score:  float64(hits) / float64(len(terms)),
			Source: doc.Source,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Title < out[j].Title
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	if out == nil {
		out = []models.ContextDoc{}
	}
	return out, nil
}

// Body returns the body of the named document, used by the search tool to
// hand full text to the model.
func (r *KeywordRetriever) Body(title string) (string, bool) {
	for _, doc := range r.docs {
		if doc.Title == title {
			return doc.Body, true
		}
	}
	return "", false
}

var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "is": true, "are": true,
	"what": true, "how": true, "do": true, "does": true, "my": true,
	"i": true, "to": true, "of": true, "in": true, "for": true,
}

func tokenize(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
	var terms []string
	for _, f := range fields {
		if len(f) < 2 || stopwords[f] {
			continue
		}
		terms = append(terms, f)
	}
	return terms
}
