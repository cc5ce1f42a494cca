package memory

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/fyrsmithlabs/memoryd/internal/config"
	"github.com/fyrsmithlabs/memoryd/internal/embeddings"
	"github.com/fyrsmithlabs/memoryd/internal/reranker"
	"github.com/fyrsmithlabs/memoryd/internal/sanitize"
	"github.com/fyrsmithlabs/memoryd/internal/store"
	"github.com/fyrsmithlabs/memoryd/internal/summarizer"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/memoryd/internal/memory"

const (
	// MaxTopK bounds recall result counts.
	MaxTopK = 50

	// DefaultQueryLimit and MaxQueryLimit bound keyword search results.
	DefaultQueryLimit = 20
	MaxQueryLimit     = 100

	// DefaultSummarizeEvents is the per-call event cap for on-demand summaries.
	DefaultSummarizeEvents = 500

	// MaxSessionEvents is the hard cap on events loaded into one transcript.
	MaxSessionEvents = 2000
)

// Config tunes the engine.
type Config struct {
	// DefaultTopK applies when a recall request sets no top_k.
	DefaultTopK int

	// MaxSnippetChars clips result snippets, ellipsis included.
	MaxSnippetChars int

	// RerankReorder re-sorts recall results by reranker score instead of
	// only attaching the score.
	RerankReorder bool

	// ChunkSize is the knowledge chunk size in characters.
	ChunkSize int

	// MaxSessionEvents caps events per compacted session (at most 2000).
	MaxSessionEvents int

	// CompactionEnabled is reported by Health.
	CompactionEnabled bool
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() *Config {
	return &Config{
		DefaultTopK:      5,
		MaxSnippetChars:  900,
		ChunkSize:        800,
		MaxSessionEvents: MaxSessionEvents,
	}
}

// ConfigFromApp derives the engine configuration from the daemon configuration.
func ConfigFromApp(cfg *config.Config) *Config {
	return &Config{
		DefaultTopK:       cfg.Recall.DefaultTopK,
		MaxSnippetChars:   cfg.Recall.MaxSnippetChars,
		RerankReorder:     cfg.Recall.RerankReorder,
		ChunkSize:         cfg.Ingest.ChunkSize,
		MaxSessionEvents:  min(cfg.Compaction.MaxEvents, MaxSessionEvents),
		CompactionEnabled: cfg.CompactionEnabled(),
	}
}

// Service is the memory engine: ingestion, recall, keyword query,
// session summarization and embedding backfill over one store.
type Service struct {
	store      *store.Store
	embedder   embeddings.Provider
	summarizer summarizer.Provider
	reranker   reranker.Provider
	config     *Config
	logger     *zap.Logger
	tracer     trace.Tracer
}

// Option configures a Service.
type Option func(*Service)

// WithTracer overrides the global tracer.
func WithTracer(t trace.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

// NewService creates the engine. Providers must not be nil; use the
// Disabled variants for unconfigured providers.
func NewService(
	st *store.Store,
	emb embeddings.Provider,
	sum summarizer.Provider,
	rr reranker.Provider,
	cfg *Config,
	logger *zap.Logger,
	opts ...Option,
) (*Service, error) {
	if st == nil {
		return nil, errors.New("store is required")
	}
	if emb == nil || sum == nil || rr == nil {
		return nil, errors.New("embedding, summarizer and reranker providers are required")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		store:      st,
		embedder:   emb,
		summarizer: sum,
		reranker:   rr,
		config:     cfg,
		logger:     logger,
		tracer:     otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Health reports provider names and availability.
func (s *Service) Health() Health {
	return Health{
		Status:              "ok",
		EmbeddingProvider:   s.embedder.Name(),
		EmbeddingAvailable:  s.embedder.Available(),
		SummarizerProvider:  s.summarizer.Name(),
		SummarizerAvailable: s.summarizer.Available(),
		RerankerProvider:    s.reranker.Name(),
		RerankerAvailable:   s.reranker.Available(),
		CompactionEnabled:   s.config.CompactionEnabled,
	}
}

// Summarizer exposes the configured summarization provider.
func (s *Service) Summarizer() summarizer.Provider {
	return s.summarizer
}

// CreateNamespace creates name if it does not exist.
func (s *Service) CreateNamespace(ctx context.Context, name string) (*store.Namespace, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, validationf("namespace name is required")
	}
	if err := sanitize.ValidateNamespace(name); err != nil {
		return nil, validationf("%v", err)
	}
	return s.store.CreateNamespace(ctx, name)
}

// embeddingsDisabled reports whether embeddings are administratively off,
// as opposed to configured but unavailable.
func (s *Service) embeddingsDisabled() bool {
	return s.embedder.Name() == config.ProviderNone
}

func (s *Service) requireNamespace(ctx context.Context, namespace string) error {
	ok, err := s.store.NamespaceExists(ctx, namespace)
	if err != nil {
		return err
	}
	if !ok {
		return namespaceNotFound(namespace)
	}
	return nil
}

func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func namespaceOrDefault(ns string) string {
	if ns = strings.TrimSpace(ns); ns == "" {
		return DefaultNamespace
	}
	return ns
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

// clip shortens text to maxChars characters, ending with "..." when cut.
func clip(text string, maxChars int) string {
	if utf8.RuneCountInString(text) <= maxChars {
		return text
	}
	r := []rune(text)
	if maxChars <= 3 {
		return string(r[:max(maxChars, 0)])
	}
	return string(r[:maxChars-3]) + "..."
}

// entityLookup is implemented by both *store.Store and *store.Tx.
type entityLookup interface {
	EntityIDBySlug(ctx context.Context, namespace, slug string) (string, error)
}

// slugResolver resolves and caches slug references within one namespace.
type slugResolver struct {
	lookup    entityLookup
	namespace string
	ids       map[string]string
}

func newSlugResolver(lookup entityLookup, namespace string) *slugResolver {
	return &slugResolver{lookup: lookup, namespace: namespace, ids: map[string]string{}}
}

// resolve returns the id for slug, or "" for an empty slug. role names the
// referencing field in the not-found error.
func (r *slugResolver) resolve(ctx context.Context, role, slug string) (string, error) {
	if slug == "" {
		return "", nil
	}
	if id, ok := r.ids[slug]; ok {
		return id, nil
	}
	id, err := r.lookup.EntityIDBySlug(ctx, r.namespace, slug)
	if errors.Is(err, store.ErrNotFound) {
		return "", referenceNotFound(role, slug, r.namespace)
	}
	if err != nil {
		return "", err
	}
	r.ids[slug] = id
	return id, nil
}
