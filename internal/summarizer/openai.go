package summarizer

import (
	"context"
	"time"

	"github.com/fyrsmithlabs/memoryd/internal/config"
	"github.com/fyrsmithlabs/memoryd/internal/provider"
)

const openAISystemPrompt = "You are summarizing an autonomous agent session. " +
	"Produce a concise distillation with key decisions and concrete next steps."

// OpenAI summarizes through an OpenAI-compatible chat completions endpoint.
type OpenAI struct {
	provider.Static
	model   string
	baseURL string
	client  *provider.HTTPClient
}

type openAIRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type openAIResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func newOpenAI(cfg config.SummarizerConfig, opts ...provider.HTTPOption) *OpenAI {
	var reason string
	if !cfg.APIKey.IsSet() {
		reason = "summarizer.api_key is not set"
	}
	opts = append([]provider.HTTPOption{provider.WithBearerToken(cfg.APIKey.Value())}, opts...)
	return &OpenAI{
		Static:  provider.NewStatic(config.ProviderOpenAI, reason),
		model:   cfg.Model,
		baseURL: cfg.BaseURL,
		client:  provider.NewHTTPClient(config.ProviderOpenAI, provider.ClampTimeout(cfg.Timeout.Duration(), 45*time.Second), opts...),
	}
}

// Summarize returns choices[0].message.content.
func (p *OpenAI) Summarize(ctx context.Context, transcript string) (string, error) {
	if err := p.Check(); err != nil {
		return "", err
	}
	req := openAIRequest{
		Model: p.model,
		Messages: []chatMessage{
			{Role: "system", Content: openAISystemPrompt},
			{Role: "user", Content: transcript},
		},
		Temperature: 0.2,
	}
	var resp openAIResponse
	if err := p.client.PostJSON(ctx, "summarize", provider.JoinURL(p.baseURL, "/v1/chat/completions"), req, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return finish(p.Name(), "")
	}
	return finish(p.Name(), resp.Choices[0].Message.Content)
}
