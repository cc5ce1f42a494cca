package embeddings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/fyrsmithlabs/memoryd/internal/config"
	"github.com/fyrsmithlabs/memoryd/internal/provider"
	"go.uber.org/zap"
)

// ErrInvalidConfig indicates an unknown provider name.
var ErrInvalidConfig = errors.New("invalid embeddings configuration")

// Provider generates embeddings of a fixed, configured dimension.
type Provider interface {
	provider.Availability
	// Embed returns the vector for text.
	Embed(ctx context.Context, text string) ([]float32, error)
	// Dimension returns the configured vector length.
	Dimension() int
}

// Option configures HTTP-backed providers.
type Option func(*options)

type options struct {
	metrics *Metrics
	http    []provider.HTTPOption
}

// WithMetrics overrides the metrics sink.
func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithHTTPOptions passes options to the underlying HTTP client.
func WithHTTPOptions(opts ...provider.HTTPOption) Option {
	return func(o *options) { o.http = append(o.http, opts...) }
}

// New creates the provider selected by cfg.Provider.
func New(cfg config.EmbeddingsConfig, logger *zap.Logger, opts ...Option) (Provider, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.metrics == nil {
		o.metrics = NewMetrics(logger)
	}

	switch cfg.Provider {
	case config.ProviderNone, "":
		return NewDisabled(cfg.Dimension), nil
	case config.ProviderOpenAI:
		return newOpenAI(cfg, o), nil
	case config.ProviderOllama:
		return newOllama(cfg, o), nil
	case config.ProviderTEI:
		return newTEI(cfg, o), nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}

// Disabled is the provider used when embeddings.provider is "none".
type Disabled struct {
	provider.Static
	dimension int
}

// NewDisabled returns a provider that fails every call.
func NewDisabled(dimension int) *Disabled {
	return &Disabled{
		Static:    provider.NewStatic(config.ProviderNone, "embeddings are disabled (embeddings.provider=none)"),
		dimension: dimension,
	}
}

// Embed always fails with provider.ErrUnavailable.
func (d *Disabled) Embed(context.Context, string) ([]float32, error) {
	return nil, d.Check()
}

// Dimension returns the configured dimension.
func (d *Disabled) Dimension() int { return d.dimension }

// remote carries what the HTTP-backed variants share.
type remote struct {
	provider.Static
	model     string
	baseURL   string
	dimension int
	client    *provider.HTTPClient
	metrics   *Metrics
}

func newRemote(name, reason string, cfg config.EmbeddingsConfig, o *options, extra ...provider.HTTPOption) remote {
	httpOpts := append([]provider.HTTPOption{provider.WithRateLimit(cfg.RateLimit)}, extra...)
	httpOpts = append(httpOpts, o.http...)
	return remote{
		Static:    provider.NewStatic(name, reason),
		model:     cfg.Model,
		baseURL:   cfg.BaseURL,
		dimension: cfg.Dimension,
		client:    provider.NewHTTPClient(name, cfg.Timeout.Duration(), httpOpts...),
		metrics:   o.metrics,
	}
}

// Dimension returns the configured dimension.
func (r *remote) Dimension() int { return r.dimension }

// embed checks availability and input, runs call and records metrics.
func (r *remote) embed(ctx context.Context, text string, call func(context.Context) ([]float32, error)) (vec []float32, err error) {
	if err := r.Check(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, provider.Errorf(r.Name(), "embed", "empty input text")
	}

	start := time.Now()
	defer func() {
		r.metrics.Record(ctx, r.Name(), r.model, time.Since(start), utf8.RuneCountInString(text), err)
	}()

	vec, err = call(ctx)
	if err != nil {
		return nil, err
	}
	if len(vec) == 0 {
		return nil, provider.Errorf(r.Name(), "embed", "response contained no embedding")
	}
	return vec, nil
}
