package embeddings

import (
	"context"

	"github.com/fyrsmithlabs/memoryd/internal/config"
	"github.com/fyrsmithlabs/memoryd/internal/provider"
)

// OpenAI calls an OpenAI-compatible /v1/embeddings endpoint.
type OpenAI struct {
	remote
}

type openAIRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type openAIResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func newOpenAI(cfg config.EmbeddingsConfig, o *options) *OpenAI {
	var reason string
	if !cfg.APIKey.IsSet() {
		reason = "embeddings.api_key is not set"
	}
	return &OpenAI{remote: newRemote(config.ProviderOpenAI, reason, cfg, o,
		provider.WithBearerToken(cfg.APIKey.Value()))}
}

// Embed returns data[0].embedding for text.
func (p *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	return p.embed(ctx, text, func(ctx context.Context) ([]float32, error) {
		var resp openAIResponse
		err := p.client.PostJSON(ctx, "embed", provider.JoinURL(p.baseURL, "/v1/embeddings"),
			openAIRequest{Model: p.model, Input: text}, &resp)
		if err != nil {
			return nil, err
		}
		if len(resp.Data) == 0 {
			return nil, nil
		}
		return resp.Data[0].Embedding, nil
	})
}
