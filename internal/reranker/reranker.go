// Package reranker scores documents for relevance to a query.
//
// Scores are in [0,1] and returned in input order. Recall treats them as
// advisory metadata attached to vector hits.
package reranker

import (
	"context"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/memoryd/internal/config"
	"github.com/fyrsmithlabs/memoryd/internal/provider"
	"go.uber.org/zap"
)

// ErrInvalidConfig indicates an unknown provider name.
var ErrInvalidConfig = errors.New("invalid reranker configuration")

// Provider scores documents against a query.
type Provider interface {
	provider.Availability
	// Score returns one score per document, same order, each within [0,1].
	Score(ctx context.Context, query string, docs []string) ([]float64, error)
}

// New creates the provider selected by cfg.Provider.
func New(cfg config.RerankerConfig, logger *zap.Logger, opts ...provider.HTTPOption) (Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Provider {
	case config.ProviderNone, "":
		return NewDisabled(), nil
	case config.ProviderOllama:
		return newOllama(cfg, logger, opts...), nil
	case config.ProviderTEI:
		return newTEI(cfg, opts...), nil
	case config.ProviderLexical:
		return NewLexical(), nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}

// Disabled is the provider used when reranker.provider is "none".
type Disabled struct {
	provider.Static
}

// NewDisabled returns a provider that fails every call.
func NewDisabled() *Disabled {
	return &Disabled{Static: provider.NewStatic(config.ProviderNone, "reranking is disabled (reranker.provider=none)")}
}

// Score always fails with provider.ErrUnavailable.
func (d *Disabled) Score(context.Context, string, []string) ([]float64, error) {
	return nil, d.Check()
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
