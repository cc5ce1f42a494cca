package embeddings

import (
	"context"

	"github.com/fyrsmithlabs/memoryd/internal/config"
	"github.com/fyrsmithlabs/memoryd/internal/provider"
)

// Ollama calls a local Ollama server's /api/embeddings endpoint.
type Ollama struct {
	remote
}

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaResponse struct {
	Embedding []float32 `json:"embedding"`
}

func newOllama(cfg config.EmbeddingsConfig, o *options) *Ollama {
	var reason string
	switch {
	case cfg.BaseURL == "":
		reason = "embeddings.base_url is not set"
	case cfg.Model == "":
		reason = "embeddings.model is not set"
	}
	return &Ollama{remote: newRemote(config.ProviderOllama, reason, cfg, o)}
}

// Embed returns the embedding for text.
func (p *Ollama) Embed(ctx context.Context, text string) ([]float32, error) {
	return p.embed(ctx, text, func(ctx context.Context) ([]float32, error) {
		var resp ollamaResponse
		err := p.client.PostJSON(ctx, "embed", provider.JoinURL(p.baseURL, "/api/embeddings"),
			ollamaRequest{Model: p.model, Prompt: text}, &resp)
		return resp.Embedding, err
	})
}
