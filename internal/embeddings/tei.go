package embeddings

import (
	"context"

	"github.com/fyrsmithlabs/memoryd/internal/config"
	"github.com/fyrsmithlabs/memoryd/internal/provider"
)

// TEI calls a HuggingFace text-embeddings-inference server.
type TEI struct {
	remote
}

type teiRequest struct {
	Inputs   string `json:"inputs"`
	Truncate bool   `json:"truncate"`
}

func newTEI(cfg config.EmbeddingsConfig, o *options) *TEI {
	var reason string
	if cfg.BaseURL == "" {
		reason = "embeddings.base_url is not set"
	}
	return &TEI{remote: newRemote(config.ProviderTEI, reason, cfg, o)}
}

// Embed returns the first vector of the /embed response.
func (p *TEI) Embed(ctx context.Context, text string) ([]float32, error) {
	return p.embed(ctx, text, func(ctx context.Context) ([]float32, error) {
		var vectors [][]float32
		err := p.client.PostJSON(ctx, "embed", provider.JoinURL(p.baseURL, "/embed"),
			teiRequest{Inputs: text, Truncate: true}, &vectors)
		if err != nil || len(vectors) == 0 {
			return nil, err
		}
		return vectors[0], nil
	})
}
