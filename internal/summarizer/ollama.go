package summarizer

import (
	"context"
	"time"

	"github.com/fyrsmithlabs/memoryd/internal/config"
	"github.com/fyrsmithlabs/memoryd/internal/provider"
)

const ollamaSystemPrompt = "Summarize the agent session into key decisions and next steps. " +
	"Keep it concise and actionable."

// Ollama summarizes through a local Ollama /api/chat endpoint.
type Ollama struct {
	provider.Static
	model   string
	baseURL string
	client  *provider.HTTPClient
}

type ollamaRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type ollamaResponse struct {
	Message chatMessage `json:"message"`
}

func newOllama(cfg config.SummarizerConfig, opts ...provider.HTTPOption) *Ollama {
	var reason string
	switch {
	case cfg.BaseURL == "":
		reason = "summarizer.base_url is not set"
	case cfg.Model == "":
		reason = "summarizer.model is not set"
	}
	return &Ollama{
		Static:  provider.NewStatic(config.ProviderOllama, reason),
		model:   cfg.Model,
		baseURL: cfg.BaseURL,
		client:  provider.NewHTTPClient(config.ProviderOllama, provider.ClampTimeout(cfg.Timeout.Duration(), 45*time.Second), opts...),
	}
}

// Summarize returns message.content from a non-streaming chat call.
func (p *Ollama) Summarize(ctx context.Context, transcript string) (string, error) {
	if err := p.Check(); err != nil {
		return "", err
	}
	req := ollamaRequest{
		Model: p.model,
		Messages: []chatMessage{
			{Role: "system", Content: ollamaSystemPrompt},
			{Role: "user", Content: transcript},
		},
	}
	var resp ollamaResponse
	if err := p.client.PostJSON(ctx, "summarize", provider.JoinURL(p.baseURL, "/api/chat"), req, &resp); err != nil {
		return "", err
	}
	return finish(p.Name(), resp.Message.Content)
}
