package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/fyrsmithlabs/memoryd/internal/logging"
	"github.com/fyrsmithlabs/memoryd/internal/store"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Recall returns the rows of one scope nearest to the query vector by cosine
// distance, closest first. The vector is taken from QueryEmbedding or derived
// from QueryText.
//
// When a reranker is available and QueryText is set, each item also carries
// a reranker score. Order is unchanged unless RerankReorder is configured.
func (s *Service) Recall(ctx context.Context, req RecallRequest) (resp *RecallResponse, err error) {
	ns := namespaceOrDefault(req.Namespace)
	ctx = logging.WithNamespace(ctx, ns)
	ctx, span := s.tracer.Start(ctx, "memory.recall", trace.WithAttributes(
		attribute.String("namespace", ns),
		attribute.String("scope", string(req.Scope)),
		attribute.Bool("query_embedding", req.QueryEmbedding != nil),
	))
	defer func() { finishSpan(span, err) }()

	scope, err := ParseScope(string(req.Scope))
	if err != nil {
		return nil, err
	}
	if err := s.requireNamespace(ctx, ns); err != nil {
		return nil, err
	}

	topK := s.config.DefaultTopK
	if req.TopK != nil {
		topK = *req.TopK
	}
	topK = clamp(topK, 1, MaxTopK)

	vec, err := s.queryVector(ctx, req)
	if err != nil {
		return nil, err
	}

	refs := newSlugResolver(s.store, ns)
	projectID, err := refs.resolve(ctx, roleProject, req.ProjectSlug)
	if err != nil {
		return nil, err
	}
	entityID, err := refs.resolve(ctx, roleEntity, req.EntitySlug)
	if err != nil {
		return nil, err
	}

	hits, err := s.store.SearchVector(ctx, scope.table(), store.VectorQuery{
		Namespace: ns,
		Embedding: vec,
		ProjectID: projectID,
		EntityID:  entityID,
		Limit:     topK,
	})
	if err != nil {
		return nil, err
	}

	items := make([]RecallItem, 0, len(hits))
	for _, h := range hits {
		items = append(items, RecallItem{
			ID:        h.ID,
			Scope:     scope,
			Score:     h.Distance,
			Snippet:   clip(h.Snippet, s.config.MaxSnippetChars),
			Tags:      h.Tags,
			CreatedAt: h.CreatedAt,
		})
	}
	s.rerank(ctx, req.QueryText, items)

	span.SetAttributes(attribute.Int("results", len(items)))
	return &RecallResponse{Namespace: ns, Scope: scope, TopK: topK, Items: items}, nil
}

func (s *Service) queryVector(ctx context.Context, req RecallRequest) ([]float32, error) {
	vec := req.QueryEmbedding
	if vec == nil {
		if strings.TrimSpace(req.QueryText) == "" {
			return nil, validationf("either query_embedding or query_text is required")
		}
		if s.embeddingsDisabled() {
			return nil, validationf("embeddings.provider=none; provide query_embedding explicitly")
		}
		var err error
		if vec, err = s.embedder.Embed(ctx, req.QueryText); err != nil {
			return nil, fmt.Errorf("embedding query text: %w", err)
		}
	}
	if err := checkVector(vec, s.embedder.Dimension()); err != nil {
		return nil, err
	}
	return vec, nil
}

// rerank attaches reranker scores to items. Failures are logged and leave
// items unscored.
func (s *Service) rerank(ctx context.Context, query string, items []RecallItem) {
	if len(items) == 0 || strings.TrimSpace(query) == "" || !s.reranker.Available() {
		return
	}

	docs := make([]string, len(items))
	for i, it := range items {
		docs[i] = it.Snippet
	}
	scores, err := s.reranker.Score(ctx, query, docs)
	if err != nil {
		logging.For(ctx, s.logger).Warn("reranking failed, returning results without reranker scores",
			zap.String("reranker", s.reranker.Name()),
			zap.Error(err))
		return
	}
	if len(scores) != len(items) {
		logging.For(ctx, s.logger).Warn("reranker returned wrong number of scores",
			zap.String("reranker", s.reranker.Name()),
			zap.Int("expected", len(items)),
			zap.Int("got", len(scores)))
		return
	}

	for i := range items {
		score := scores[i]
		items[i].RerankerScore = &score
	}
	if s.config.RerankReorder {
		sort.SliceStable(items, func(i, j int) bool {
			return *items[i].RerankerScore > *items[j].RerankerScore
		})
	}
}
