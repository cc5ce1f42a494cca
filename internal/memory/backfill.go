package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/memoryd/internal/logging"
	"github.com/fyrsmithlabs/memoryd/internal/store"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Backfill limits.
const (
	DefaultBackfillLimit = 500
	MaxBackfillLimit     = 50000
	DefaultBackfillBatch = 50
	MaxBackfillBatch     = 500
)

type embeddingUpdate struct {
	id  string
	vec []float32
}

// Backfill attaches embeddings to rows of one scope stored without one,
// newest first. Each batch is embedded outside any transaction and then
// committed on its own, so progress survives a later failure.
func (s *Service) Backfill(ctx context.Context, req BackfillRequest) (res *BackfillResult, err error) {
	ns := namespaceOrDefault(req.Namespace)
	ctx = logging.WithNamespace(ctx, ns)
	ctx, span := s.tracer.Start(ctx, "memory.backfill", trace.WithAttributes(
		attribute.String("namespace", ns),
		attribute.String("scope", string(req.Scope)),
		attribute.Bool("dry_run", req.DryRun),
	))
	defer func() { finishSpan(span, err) }()

	scope, err := ParseScope(string(req.Scope))
	if err != nil {
		return nil, err
	}
	if err := s.requireNamespace(ctx, ns); err != nil {
		return nil, err
	}
	if s.embeddingsDisabled() {
		return nil, validationf("embeddings.provider=none; cannot backfill embeddings server-side")
	}
	if err := checkAvailable(s.embedder); err != nil {
		return nil, err
	}

	limit := req.Limit
	if limit == 0 {
		limit = DefaultBackfillLimit
	}
	limit = clamp(limit, 1, MaxBackfillLimit)
	batchSize := req.BatchSize
	if batchSize == 0 {
		batchSize = DefaultBackfillBatch
	}
	batchSize = clamp(batchSize, 1, MaxBackfillBatch)

	res = &BackfillResult{Namespace: ns, Scope: scope, DryRun: req.DryRun}
	table := scope.table()

	// The cursor moves past every visited row, so skipped rows and dry runs
	// still make progress.
	var after *store.Cursor
	for remaining := limit; remaining > 0; {
		take := min(batchSize, remaining)
		rows, err := s.store.MissingEmbeddings(ctx, table, ns, after, take)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			break
		}

		updates := make([]embeddingUpdate, 0, len(rows))
		for _, row := range rows {
			if strings.TrimSpace(row.Text) == "" {
				res.Skipped++
				continue
			}
			vec, err := s.embedder.Embed(ctx, row.Text)
			if err != nil {
				return nil, fmt.Errorf("embedding %s row %s: %w", table.Name, row.ID, err)
			}
			if err := checkDimension(vec, s.embedder.Dimension()); err != nil {
				return nil, err
			}
			updates = append(updates, embeddingUpdate{id: row.ID, vec: vec})
		}

		if !req.DryRun && len(updates) > 0 {
			err := s.store.WithTx(ctx, func(tx *store.Tx) error {
				for _, u := range updates {
					if err := tx.SetEmbedding(ctx, table, u.id, u.vec); err != nil {
						return err
					}
				}
				return nil
			})
			if err != nil {
				return nil, err
			}
		}
		res.Updated += len(updates)

		after = &rows[len(rows)-1].Cursor
		remaining -= take
	}

	logging.For(ctx, s.logger).Info("embedding backfill finished",
		zap.String("scope", string(scope)),
		zap.Int("updated", res.Updated),
		zap.Int("skipped", res.Skipped),
		zap.Bool("dry_run", req.DryRun))
	return res, nil
}
