package reranker

import (
	"context"
	"strings"
	"unicode"

	"github.com/fyrsmithlabs/memoryd/internal/config"
	"github.com/fyrsmithlabs/memoryd/internal/provider"
)

// Lexical scores documents by the fraction of distinct query terms they contain.
// It runs locally and is always available.
type Lexical struct {
	provider.Static
}

// NewLexical creates a term-overlap scorer.
func NewLexical() *Lexical {
	return &Lexical{Static: provider.NewStatic(config.ProviderLexical, "")}
}

// Score returns the query term overlap for each document.
// A query with no usable terms scores every document 0.
func (l *Lexical) Score(ctx context.Context, query string, docs []string) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	terms := tokenize(query)
	scores := make([]float64, len(docs))
	if len(terms) == 0 {
		return scores, nil
	}
	for i, doc := range docs {
		scores[i] = termOverlap(terms, tokenize(doc))
	}
	return scores, nil
}

// tokenize lowercases text, splits on non-alphanumerics and drops stopwords
// and tokens shorter than three characters.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	out := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) > 2 && !stopwords[f] {
			out = append(out, f)
		}
	}
	return out
}

// termOverlap is the share of distinct query terms present in the document.
func termOverlap(queryTerms, docTerms []string) float64 {
	docSet := make(map[string]struct{}, len(docTerms))
	for _, t := range docTerms {
		docSet[t] = struct{}{}
	}

	unique := make(map[string]struct{}, len(queryTerms))
	matched := 0
	for _, t := range queryTerms {
		if _, seen := unique[t]; seen {
			continue
		}
		unique[t] = struct{}{}
		if _, ok := docSet[t]; ok {
			matched++
		}
	}
	return clamp01(float64(matched) / float64(len(unique)))
}

var stopwords = map[string]bool{
	"the": true, "and": true, "but": true, "for": true, "with": true, "from": true,
	"was": true, "are": true, "been": true, "being": true, "have": true, "has": true,
	"had": true, "does": true, "did": true, "will": true, "would": true, "could": true,
	"should": true, "may": true, "might": true, "can": true, "this": true, "that": true,
	"these": true, "those": true, "you": true, "she": true, "they": true, "what": true,
	"which": true, "who": true, "when": true, "where": true, "why": true, "how": true,
}
