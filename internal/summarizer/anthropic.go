package summarizer

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/fyrsmithlabs/memoryd/internal/config"
	"github.com/fyrsmithlabs/memoryd/internal/provider"
	"go.uber.org/zap"
)

const anthropicSystemPrompt = "You are summarizing an autonomous agent session. " +
	"Produce a concise distillation with the key decisions made and concrete next steps. " +
	"Reply with the summary only."

// Anthropic summarizes through the Claude Messages API.
type Anthropic struct {
	provider.Static
	client    anthropic.Client
	model     string
	maxTokens int64
	timeout   time.Duration
	logger    *zap.Logger
}

func newAnthropic(cfg config.SummarizerConfig, logger *zap.Logger) *Anthropic {
	var reason string
	if !cfg.APIKey.IsSet() {
		reason = "summarizer.api_key is not set"
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey.Value()),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	maxTokens := int64(cfg.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	return &Anthropic{
		Static:    provider.NewStatic(config.ProviderAnthropic, reason),
		client:    anthropic.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: maxTokens,
		timeout:   provider.ClampTimeout(cfg.Timeout.Duration(), 45*time.Second),
		logger:    logger,
	}
}

// Summarize concatenates the text blocks of the model's reply.
func (p *Anthropic) Summarize(ctx context.Context, transcript string) (string, error) {
	if err := p.Check(); err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	msg, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: p.maxTokens,
		System:    []anthropic.TextBlockParam{{Text: anthropicSystemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(transcript)),
		},
	})
	if err != nil {
		perr := &provider.Error{Provider: p.Name(), Op: "summarize", Err: err}
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			perr.StatusCode = apiErr.StatusCode
		}
		return "", perr
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	p.logger.Debug("anthropic summary generated",
		zap.String("model", p.model),
		zap.Int64("output_tokens", msg.Usage.OutputTokens),
		zap.String("stop_reason", string(msg.StopReason)),
	)
	return finish(p.Name(), sb.String())
}
