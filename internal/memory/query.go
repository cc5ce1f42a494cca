package memory

import (
	"context"
	"sort"

	"github.com/fyrsmithlabs/memoryd/internal/store"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var queryKinds = []store.Kind{
	store.KindEntity,
	store.KindRequirement,
	store.KindKnowledge,
	store.KindEvent,
}

// Query runs a case-insensitive substring search over every record kind and
// returns the union, newest first. An empty Text matches everything.
func (s *Service) Query(ctx context.Context, req QueryRequest) (resp *QueryResponse, err error) {
	ns := namespaceOrDefault(req.Namespace)
	ctx, span := s.tracer.Start(ctx, "memory.query", trace.WithAttributes(
		attribute.String("namespace", ns),
		attribute.Int("limit", req.Limit),
	))
	defer func() { finishSpan(span, err) }()

	limit := req.Limit
	if limit == 0 {
		limit = DefaultQueryLimit
	}
	limit = clamp(limit, 1, MaxQueryLimit)

	if err := s.requireNamespace(ctx, ns); err != nil {
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

	q := store.KeywordQuery{
		Namespace:  ns,
		Text:       req.Text,
		ProjectID:  projectID,
		EntityID:   entityID,
		EntitySlug: req.EntitySlug,
		Limit:      limit,
	}

	var records []QueryRecord
	for _, kind := range queryKinds {
		hits, err := s.store.SearchKeyword(ctx, kind, q)
		if err != nil {
			return nil, err
		}
		for _, h := range hits {
			records = append(records, QueryRecord{
				ID:        h.ID,
				Kind:      h.Kind,
				Title:     h.Title,
				Snippet:   clip(h.Snippet, s.config.MaxSnippetChars),
				Tags:      h.Tags,
				CreatedAt: h.CreatedAt,
			})
		}
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	if len(records) > limit {
		records = records[:limit]
	}
	if records == nil {
		records = []QueryRecord{}
	}

	return &QueryResponse{Namespace: ns, Total: len(records), Results: records}, nil
}
