package reranker

import (
	"context"
	"time"

	"github.com/fyrsmithlabs/memoryd/internal/config"
	"github.com/fyrsmithlabs/memoryd/internal/provider"
)

// TEI calls a text-embeddings-inference cross-encoder /rerank endpoint.
type TEI struct {
	provider.Static
	baseURL string
	client  *provider.HTTPClient
}

type teiRequest struct {
	Query     string   `json:"query"`
	Texts     []string `json:"texts"`
	RawScores bool     `json:"raw_scores"`
}

type teiResult struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

func newTEI(cfg config.RerankerConfig, opts ...provider.HTTPOption) *TEI {
	var reason string
	if cfg.BaseURL == "" {
		reason = "reranker.base_url is not set"
	}
	opts = append([]provider.HTTPOption{provider.WithRateLimit(cfg.RateLimit)}, opts...)
	return &TEI{
		Static:  provider.NewStatic(config.ProviderTEI, reason),
		baseURL: cfg.BaseURL,
		client:  provider.NewHTTPClient(config.ProviderTEI, provider.ClampTimeout(cfg.Timeout.Duration(), 30*time.Second), opts...),
	}
}

// Score maps the server's ranked results back onto input order.
func (p *TEI) Score(ctx context.Context, query string, docs []string) ([]float64, error) {
	if err := p.Check(); err != nil {
		return nil, err
	}
	scores := make([]float64, len(docs))
	if len(docs) == 0 {
		return scores, nil
	}

	var results []teiResult
	req := teiRequest{Query: query, Texts: docs}
	if err := p.client.PostJSON(ctx, "rerank", provider.JoinURL(p.baseURL, "/rerank"), req, &results); err != nil {
		return nil, err
	}
	for _, r := range results {
		if r.Index < 0 || r.Index >= len(docs) {
			return nil, provider.Errorf(p.Name(), "rerank", "result index %d out of range for %d documents", r.Index, len(docs))
		}
		scores[r.Index] = clamp01(r.Score)
	}
	return scores, nil
}
