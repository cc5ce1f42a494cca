package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// CreateNamespace inserts name if missing and returns the stored namespace.
func (o *ops) CreateNamespace(ctx context.Context, name string) (*Namespace, error) {
	if _, err := o.q.ExecContext(ctx,
		`INSERT INTO namespaces (name, created_at) VALUES (?, ?) ON CONFLICT(name) DO NOTHING`,
		name, o.timestamp(),
	); err != nil {
		return nil, fmt.Errorf("inserting namespace: %w", err)
	}

	var created string
	if err := o.q.QueryRowContext(ctx,
		`SELECT created_at FROM namespaces WHERE name = ?`, name,
	).Scan(&created); err != nil {
		return nil, fmt.Errorf("reading namespace: %w", err)
	}
	return &Namespace{Name: name, CreatedAt: parseTime(created)}, nil
}

// NamespaceExists reports whether name has been created.
func (o *ops) NamespaceExists(ctx context.Context, name string) (bool, error) {
	var n int
	err := o.q.QueryRowContext(ctx, `SELECT COUNT(1) FROM namespaces WHERE name = ?`, name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking namespace: %w", err)
	}
	return n > 0, nil
}

// UpsertEntity inserts e or updates the entity with the same (namespace, slug),
// returning its id. created_at and id are preserved on update.
func (o *ops) UpsertEntity(ctx context.Context, e *Entity) (string, error) {
	meta := e.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("encoding metadata: %w", err)
	}

	now := o.timestamp()
	if _, err := o.q.ExecContext(ctx, `
		INSERT INTO entities (id, namespace, slug, type, name, description, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(namespace, slug) DO UPDATE SET
			type = excluded.type,
			name = excluded.name,
			description = excluded.description,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at`,
		uuid.NewString(), e.Namespace, e.Slug, string(e.Type), e.Name,
		nullString(e.Description), string(metaJSON), now, now,
	); err != nil {
		return "", fmt.Errorf("upserting entity %q: %w", e.Slug, err)
	}
	return o.EntityIDBySlug(ctx, e.Namespace, e.Slug)
}

// EntityIDBySlug resolves a slug within a namespace. Returns ErrNotFound if absent.
func (o *ops) EntityIDBySlug(ctx context.Context, namespace, slug string) (string, error) {
	var id string
	err := o.q.QueryRowContext(ctx,
		`SELECT id FROM entities WHERE namespace = ? AND slug = ?`, namespace, slug,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("resolving entity %q: %w", slug, err)
	}
	return id, nil
}

// GetEntity loads an entity by slug.
func (o *ops) GetEntity(ctx context.Context, namespace, slug string) (*Entity, error) {
	var (
		e                    Entity
		typ, meta            string
		desc                 sql.NullString
		createdAt, updatedAt string
	)
	err := o.q.QueryRowContext(ctx, `
		SELECT id, namespace, slug, type, name, description, metadata, created_at, updated_at
		FROM entities WHERE namespace = ? AND slug = ?`, namespace, slug,
	).Scan(&e.ID, &e.Namespace, &e.Slug, &typ, &e.Name, &desc, &meta, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading entity %q: %w", slug, err)
	}
	e.Type = EntityType(typ)
	e.Description = desc.String
	e.CreatedAt = parseTime(createdAt)
	e.UpdatedAt = parseTime(updatedAt)
	_ = json.Unmarshal([]byte(meta), &e.Metadata)
	return &e, nil
}

// InsertRequirement stores r, assigning its id and timestamps.
func (o *ops) InsertRequirement(ctx context.Context, r *Requirement) error {
	tags, err := encodeTags(r.Tags)
	if err != nil {
		return err
	}
	emb, err := encodeEmbedding(r.Embedding)
	if err != nil {
		return err
	}
	r.ID = uuid.NewString()
	now := o.now()
	r.CreatedAt, r.UpdatedAt = now, now

	_, err = o.q.ExecContext(ctx, `
		INSERT INTO requirements (id, namespace, project_id, owner_entity_id, title, body, priority,
			status, context_snippet, tags, embedding, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Namespace, nullString(r.ProjectID), nullString(r.OwnerEntityID), r.Title,
		nullString(r.Body), string(r.Priority), string(r.Status), nullString(r.ContextSnippet),
		tags, emb, formatTime(now), formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("inserting requirement: %w", err)
	}
	return nil
}

// InsertKnowledgeItem stores k, assigning its id and timestamp.
func (o *ops) InsertKnowledgeItem(ctx context.Context, k *KnowledgeItem) error {
	tags, err := encodeTags(k.Tags)
	if err != nil {
		return err
	}
	emb, err := encodeEmbedding(k.Embedding)
	if err != nil {
		return err
	}
	k.ID = uuid.NewString()
	k.CreatedAt = o.now()

	_, err = o.q.ExecContext(ctx, `
		INSERT INTO knowledge_items (id, namespace, project_id, entity_id, content, source,
			source_ref, tags, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		k.ID, k.Namespace, nullString(k.ProjectID), nullString(k.EntityID), k.Content,
		nullString(k.Source), nullString(k.SourceRef), tags, emb, formatTime(k.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting knowledge item: %w", err)
	}
	return nil
}

// GetKnowledgeItem loads a knowledge item by id. The embedding is not loaded.
func (o *ops) GetKnowledgeItem(ctx context.Context, id string) (*KnowledgeItem, error) {
	var (
		k                            KnowledgeItem
		project, entity, source, ref sql.NullString
		tags, createdAt              string
	)
	err := o.q.QueryRowContext(ctx, `
		SELECT id, namespace, project_id, entity_id, content, source, source_ref, tags, created_at
		FROM knowledge_items WHERE id = ?`, id,
	).Scan(&k.ID, &k.Namespace, &project, &entity, &k.Content, &source, &ref, &tags, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading knowledge item: %w", err)
	}
	k.ProjectID, k.EntityID = project.String, entity.String
	k.Source, k.SourceRef = source.String, ref.String
	k.Tags = decodeTags(tags)
	k.CreatedAt = parseTime(createdAt)
	return &k, nil
}

// InsertEvent stores e, assigning its id and timestamp.
func (o *ops) InsertEvent(ctx context.Context, e *Event) error {
	tags, err := encodeTags(e.Tags)
	if err != nil {
		return err
	}
	emb, err := encodeEmbedding(e.Embedding)
	if err != nil {
		return err
	}
	e.ID = uuid.NewString()
	e.CreatedAt = o.now()

	_, err = o.q.ExecContext(ctx, `
		INSERT INTO events (id, namespace, project_id, agent_id, type, title, body,
			context_snippet, session_id, is_archived, tags, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Namespace, nullString(e.ProjectID), nullString(e.AgentID), string(e.Type), e.Title,
		nullString(e.Body), nullString(e.ContextSnippet), nullString(e.SessionID), e.IsArchived,
		tags, emb, formatTime(e.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}
	return nil
}
