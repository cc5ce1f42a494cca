package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/memoryd/internal/chunking"
	"github.com/fyrsmithlabs/memoryd/internal/logging"
	"github.com/fyrsmithlabs/memoryd/internal/store"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Reference roles named in not-found errors.
const (
	roleProject     = "project_slug"
	roleOwnerEntity = "owner_entity_slug"
	roleEntity      = "entity_slug"
	roleAgent       = "agent_slug"
)

type pendingRequirement struct {
	row         store.Requirement
	projectSlug string
	ownerSlug   string
}

type pendingKnowledge struct {
	row         store.KnowledgeItem
	projectSlug string
	entitySlug  string
}

type pendingEvent struct {
	row         store.Event
	projectSlug string
	agentSlug   string
}

type ingestBatch struct {
	entities     []store.Entity
	requirements []pendingRequirement
	knowledge    []pendingKnowledge
	events       []pendingEvent
}

// Ingest writes a batch of entities, requirements, knowledge items and
// events. Either every row is written or none is.
//
// Embeddings are computed before the write transaction opens, so a slow
// provider never holds the database.
func (s *Service) Ingest(ctx context.Context, req IngestRequest) (counts IngestCounts, err error) {
	ns := namespaceOrDefault(req.Namespace)
	ctx = logging.WithNamespace(ctx, ns)
	ctx, span := s.tracer.Start(ctx, "memory.ingest", trace.WithAttributes(
		attribute.String("namespace", ns),
		attribute.Int("entities", len(req.Entities)),
		attribute.Int("requirements", len(req.Requirements)),
		attribute.Int("knowledge_items", len(req.KnowledgeItems)),
		attribute.Int("events", len(req.Events)),
	))
	defer func() { finishSpan(span, err) }()

	if err := s.validateIngest(req); err != nil {
		return IngestCounts{}, err
	}
	if err := s.requireNamespace(ctx, ns); err != nil {
		return IngestCounts{}, err
	}
	if err := s.precheckReferences(ctx, ns, req); err != nil {
		return IngestCounts{}, err
	}

	batch, err := s.prepareBatch(ctx, ns, req)
	if err != nil {
		return IngestCounts{}, err
	}

	var written IngestCounts
	err = s.store.WithTx(ctx, func(tx *store.Tx) error {
		ok, err := tx.NamespaceExists(ctx, ns)
		if err != nil {
			return err
		}
		if !ok {
			return namespaceNotFound(ns)
		}

		for i := range batch.entities {
			if _, err := tx.UpsertEntity(ctx, &batch.entities[i]); err != nil {
				return err
			}
			written.Entities++
		}

		refs := newSlugResolver(tx, ns)
		for i := range batch.requirements {
			p := &batch.requirements[i]
			if p.row.ProjectID, err = refs.resolve(ctx, roleProject, p.projectSlug); err != nil {
				return err
			}
			if p.row.OwnerEntityID, err = refs.resolve(ctx, roleOwnerEntity, p.ownerSlug); err != nil {
				return err
			}
			if err := tx.InsertRequirement(ctx, &p.row); err != nil {
				return err
			}
			written.Requirements++
		}
		for i := range batch.knowledge {
			p := &batch.knowledge[i]
			if p.row.ProjectID, err = refs.resolve(ctx, roleProject, p.projectSlug); err != nil {
				return err
			}
			if p.row.EntityID, err = refs.resolve(ctx, roleEntity, p.entitySlug); err != nil {
				return err
			}
			if err := tx.InsertKnowledgeItem(ctx, &p.row); err != nil {
				return err
			}
			written.KnowledgeItems++
		}
		for i := range batch.events {
			p := &batch.events[i]
			if p.row.ProjectID, err = refs.resolve(ctx, roleProject, p.projectSlug); err != nil {
				return err
			}
			if p.row.AgentID, err = refs.resolve(ctx, roleAgent, p.agentSlug); err != nil {
				return err
			}
			if err := tx.InsertEvent(ctx, &p.row); err != nil {
				return err
			}
			written.Events++
		}
		return nil
	})
	if err != nil {
		return IngestCounts{}, err
	}

	logging.For(ctx, s.logger).Debug("ingested batch",
		zap.Int("entities", written.Entities),
		zap.Int("requirements", written.Requirements),
		zap.Int("knowledge_items", written.KnowledgeItems),
		zap.Int("events", written.Events))
	return written, nil
}

// validateIngest rejects malformed input before anything is read or written.
func (s *Service) validateIngest(req IngestRequest) error {
	dim := s.embedder.Dimension()
	for i, e := range req.Entities {
		if strings.TrimSpace(e.Slug) == "" {
			return validationf("entities[%d]: slug is required", i)
		}
		if e.Type != "" && !e.Type.Valid() {
			return validationf("entities[%d]: unknown entity type '%s'", i, e.Type)
		}
	}
	for i, r := range req.Requirements {
		if strings.TrimSpace(r.Title) == "" {
			return validationf("requirements[%d]: title is required", i)
		}
		if r.Priority != "" && !r.Priority.Valid() {
			return validationf("requirements[%d]: unknown priority '%s'", i, r.Priority)
		}
		if r.Status != "" && !r.Status.Valid() {
			return validationf("requirements[%d]: unknown status '%s'", i, r.Status)
		}
		if err := checkVector(r.Embedding, dim); err != nil {
			return err
		}
	}
	for _, k := range req.KnowledgeItems {
		if err := checkVector(k.Embedding, dim); err != nil {
			return err
		}
	}
	for i, e := range req.Events {
		if strings.TrimSpace(e.Title) == "" {
			return validationf("events[%d]: title is required", i)
		}
		if e.Type != "" && !e.Type.Valid() {
			return validationf("events[%d]: unknown event type '%s'", i, e.Type)
		}
		if err := checkVector(e.Embedding, dim); err != nil {
			return err
		}
	}
	return nil
}

// precheckReferences fails fast on slugs that neither exist in the namespace
// nor are created by this batch, so no embedding work is wasted on a batch
// that cannot commit. The transaction resolves slugs again authoritatively.
func (s *Service) precheckReferences(ctx context.Context, ns string, req IngestRequest) error {
	inBatch := make(map[string]bool, len(req.Entities))
	for _, e := range req.Entities {
		inBatch[e.Slug] = true
	}
	refs := newSlugResolver(s.store, ns)
	check := func(role, slug string) error {
		if slug == "" || inBatch[slug] {
			return nil
		}
		_, err := refs.resolve(ctx, role, slug)
		return err
	}

	for _, r := range req.Requirements {
		if err := check(roleProject, r.ProjectSlug); err != nil {
			return err
		}
		if err := check(roleOwnerEntity, r.OwnerEntitySlug); err != nil {
			return err
		}
	}
	for _, k := range req.KnowledgeItems {
		if err := check(roleProject, k.ProjectSlug); err != nil {
			return err
		}
		if err := check(roleEntity, k.EntitySlug); err != nil {
			return err
		}
	}
	for _, e := range req.Events {
		if err := check(roleProject, e.ProjectSlug); err != nil {
			return err
		}
		if err := check(roleAgent, e.AgentSlug); err != nil {
			return err
		}
	}
	return nil
}

// prepareBatch builds the rows to write, chunking knowledge content and
// computing missing embeddings.
func (s *Service) prepareBatch(ctx context.Context, ns string, req IngestRequest) (*ingestBatch, error) {
	b := &ingestBatch{}

	for _, e := range req.Entities {
		typ := e.Type
		if typ == "" {
			typ = store.EntityOther
		}
		b.entities = append(b.entities, store.Entity{
			Namespace:   ns,
			Slug:        e.Slug,
			Type:        typ,
			Name:        e.Name,
			Description: e.Description,
			Metadata:    e.Metadata,
		})
	}

	for _, r := range req.Requirements {
		emb := r.Embedding
		if emb == nil {
			var err error
			if emb, err = s.embedForWrite(ctx, sourceText(r.Title, r.Body, r.ContextSnippet)); err != nil {
				return nil, err
			}
		}
		b.requirements = append(b.requirements, pendingRequirement{
			row: store.Requirement{
				Namespace:      ns,
				Title:          r.Title,
				Body:           r.Body,
				Priority:       orDefault(r.Priority, store.PriorityMedium),
				Status:         orDefault(r.Status, store.StatusDraft),
				ContextSnippet: r.ContextSnippet,
				Tags:           r.Tags,
				Embedding:      emb,
			},
			projectSlug: r.ProjectSlug,
			ownerSlug:   r.OwnerEntitySlug,
		})
	}

	for _, k := range req.KnowledgeItems {
		// A caller-supplied embedding covers the whole document and is
		// reused for every chunk.
		for _, chunk := range chunking.Chunk(k.Content, s.config.ChunkSize) {
			emb := k.Embedding
			if emb == nil {
				var err error
				if emb, err = s.embedForWrite(ctx, chunk); err != nil {
					return nil, err
				}
			}
			b.knowledge = append(b.knowledge, pendingKnowledge{
				row: store.KnowledgeItem{
					Namespace: ns,
					Content:   chunk,
					Source:    k.Source,
					SourceRef: k.SourceRef,
					Tags:      k.Tags,
					Embedding: emb,
				},
				projectSlug: k.ProjectSlug,
				entitySlug:  k.EntitySlug,
			})
		}
	}

	for _, e := range req.Events {
		emb := e.Embedding
		if emb == nil {
			var err error
			if emb, err = s.embedForWrite(ctx, sourceText(e.Title, e.Body, e.ContextSnippet)); err != nil {
				return nil, err
			}
		}
		b.events = append(b.events, pendingEvent{
			row: store.Event{
				Namespace:      ns,
				Type:           orDefault(e.Type, store.EventNote),
				Title:          e.Title,
				Body:           e.Body,
				ContextSnippet: e.ContextSnippet,
				SessionID:      e.SessionID,
				Tags:           e.Tags,
				Embedding:      emb,
			},
			projectSlug: e.ProjectSlug,
			agentSlug:   e.AgentSlug,
		})
	}

	return b, nil
}

// embedForWrite embeds text for a new row. It returns nil without calling the
// provider when text is blank or embeddings are disabled. A configured but
// unavailable provider is an error.
func (s *Service) embedForWrite(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" || s.embeddingsDisabled() {
		return nil, nil
	}
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding record text: %w", err)
	}
	if err := checkDimension(vec, s.embedder.Dimension()); err != nil {
		return nil, err
	}
	return vec, nil
}

// sourceText joins the non-empty parts with newlines.
func sourceText(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n")
}

func orDefault[T ~string](v, def T) T {
	if v == "" {
		return def
	}
	return v
}
