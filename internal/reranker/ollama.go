package reranker

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/fyrsmithlabs/memoryd/internal/config"
	"github.com/fyrsmithlabs/memoryd/internal/provider"
	"go.uber.org/zap"
)

const ollamaPrompt = "Given a query and a document, determine if the document is relevant.\n\n" +
	"Query: %s\nDocument: %s\n\nRelevance score (0-1):"

var scorePattern = regexp.MustCompile(`[01](?:\.\d+)?`)

// Ollama asks a generative model for a relevance score, one call per document.
type Ollama struct {
	provider.Static
	model   string
	baseURL string
	client  *provider.HTTPClient
	logger  *zap.Logger
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	NumPredict  int     `json:"num_predict"`
	Temperature float64 `json:"temperature"`
}

type generateResponse struct {
	Response string `json:"response"`
}

func newOllama(cfg config.RerankerConfig, logger *zap.Logger, opts ...provider.HTTPOption) *Ollama {
	var reason string
	switch {
	case cfg.BaseURL == "":
		reason = "reranker.base_url is not set"
	case cfg.Model == "":
		reason = "reranker.model is not set"
	}
	opts = append([]provider.HTTPOption{provider.WithRateLimit(cfg.RateLimit)}, opts...)
	return &Ollama{
		Static:  provider.NewStatic(config.ProviderOllama, reason),
		model:   cfg.Model,
		baseURL: cfg.BaseURL,
		client:  provider.NewHTTPClient(config.ProviderOllama, provider.ClampTimeout(cfg.Timeout.Duration(), 30*time.Second), opts...),
		logger:  logger,
	}
}

// Score generates a score per document. Output without a parseable number
// scores that document 0 instead of failing the batch.
func (p *Ollama) Score(ctx context.Context, query string, docs []string) ([]float64, error) {
	if err := p.Check(); err != nil {
		return nil, err
	}
	scores := make([]float64, len(docs))
	for i, doc := range docs {
		req := generateRequest{
			Model:   p.model,
			Prompt:  fmt.Sprintf(ollamaPrompt, query, doc),
			Options: generateOptions{NumPredict: 5, Temperature: 0},
		}
		var resp generateResponse
		if err := p.client.PostJSON(ctx, "rerank", provider.JoinURL(p.baseURL, "/api/generate"), req, &resp); err != nil {
			return nil, err
		}
		score, ok := parseScore(resp.Response)
		if !ok {
			p.logger.Warn("reranker output had no score, using 0",
				zap.String("model", p.model),
				zap.Int("document", i),
				zap.String("output", provider.Snippet(resp.Response)),
			)
		}
		scores[i] = score
	}
	return scores, nil
}

// parseScore extracts the first 0, 1 or 0.xxx style number, clamped to [0,1].
func parseScore(output string) (float64, bool) {
	m := scorePattern.FindString(output)
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return clamp01(v), true
}
