// Package summarizer condenses agent session transcripts into short prose.
package summarizer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/memoryd/internal/config"
	"github.com/fyrsmithlabs/memoryd/internal/provider"
	"go.uber.org/zap"
)

var (
	// ErrEmptySummary is returned when a backend answers with no text.
	ErrEmptySummary = errors.New("empty summary")

	// ErrInvalidConfig indicates an unknown provider name.
	ErrInvalidConfig = errors.New("invalid summarizer configuration")
)

// Provider summarizes a transcript.
type Provider interface {
	provider.Availability
	// Summarize returns a trimmed, non-empty summary of transcript.
	Summarize(ctx context.Context, transcript string) (string, error)
}

// New creates the provider selected by cfg.Provider.
func New(cfg config.SummarizerConfig, logger *zap.Logger, opts ...provider.HTTPOption) (Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Provider {
	case config.ProviderNone, "":
		return NewDisabled(), nil
	case config.ProviderOpenAI:
		return newOpenAI(cfg, opts...), nil
	case config.ProviderOllama:
		return newOllama(cfg, opts...), nil
	case config.ProviderAnthropic:
		return newAnthropic(cfg, logger), nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}

// Disabled is the provider used when summarizer.provider is "none".
type Disabled struct {
	provider.Static
}

// NewDisabled returns a provider that fails every call.
func NewDisabled() *Disabled {
	return &Disabled{Static: provider.NewStatic(config.ProviderNone, "summarization is disabled (summarizer.provider=none)")}
}

// Summarize always fails with provider.ErrUnavailable.
func (d *Disabled) Summarize(context.Context, string) (string, error) {
	return "", d.Check()
}

// finish trims a backend answer and rejects empty output.
func finish(name, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", &provider.Error{Provider: name, Op: "summarize", Err: ErrEmptySummary}
	}
	return text, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
