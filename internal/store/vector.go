package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// VectorTable describes an embedded record table: where its filters live,
// which columns form a result snippet and which form the text to embed.
type VectorTable struct {
	Name          string
	ProjectColumn string
	EntityColumn  string
	// SnippetColumns are tried in order; the first non-empty value wins.
	SnippetColumns []string
	// SourceColumns are joined with newlines to build the embedding input.
	SourceColumns []string
	// OrderColumn orders rows newest-first when backfilling.
	OrderColumn string
}

var (
	KnowledgeTable = VectorTable{
		Name:           "knowledge_items",
		ProjectColumn:  "project_id",
		EntityColumn:   "entity_id",
		SnippetColumns: []string{"content"},
		SourceColumns:  []string{"content"},
		OrderColumn:    "created_at",
	}
	RequirementsTable = VectorTable{
		Name:           "requirements",
		ProjectColumn:  "project_id",
		EntityColumn:   "owner_entity_id",
		SnippetColumns: []string{"context_snippet", "body", "title"},
		SourceColumns:  []string{"title", "body", "context_snippet"},
		OrderColumn:    "updated_at",
	}
	EventsTable = VectorTable{
		Name:           "events",
		ProjectColumn:  "project_id",
		EntityColumn:   "agent_id",
		SnippetColumns: []string{"body", "context_snippet", "title"},
		SourceColumns:  []string{"title", "body", "context_snippet"},
		OrderColumn:    "created_at",
	}
)

// VectorQuery selects nearest neighbours of Embedding within a namespace.
type VectorQuery struct {
	Namespace string
	Embedding []float32
	ProjectID string
	EntityID  string
	Limit     int
}

// VectorHit is one nearest-neighbour result. Distance is cosine distance,
// lower meaning more similar.
type VectorHit struct {
	ID        string
	Distance  float64
	Snippet   string
	Tags      []string
	CreatedAt time.Time
}

// SearchVector returns rows of t with a non-null embedding ordered by
// ascending cosine distance to q.Embedding. Rows whose distance is undefined
// are skipped.
func (o *ops) SearchVector(ctx context.Context, t VectorTable, q VectorQuery) ([]VectorHit, error) {
	blob, err := encodeEmbedding(q.Embedding)
	if err != nil {
		return nil, err
	}

	var (
		where = []string{"namespace = ?", "embedding IS NOT NULL"}
		args  = []any{blob, q.Namespace}
	)
	if q.ProjectID != "" {
		where = append(where, t.ProjectColumn+" = ?")
		args = append(args, q.ProjectID)
	}
	if q.EntityID != "" {
		where = append(where, t.EntityColumn+" = ?")
		args = append(args, q.EntityID)
	}
	args = append(args, q.Limit)

	// vec_distance_cosine yields NaN, stored as NULL, when either side has
	// zero norm. Such rows have no defined distance and are never returned.
	query := fmt.Sprintf(`
		SELECT * FROM (
			SELECT id, %s, tags, created_at, vec_distance_cosine(embedding, ?) AS distance
			FROM %s
			WHERE %s
		)
		WHERE distance IS NOT NULL
		ORDER BY distance ASC, created_at DESC
		LIMIT ?`,
		strings.Join(t.SnippetColumns, ", "), t.Name, strings.Join(where, " AND "))

	rows, err := o.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("vector search on %s: %w", t.Name, err)
	}
	defer rows.Close()

	var hits []VectorHit
	for rows.Next() {
		var (
			hit        VectorHit
			snippets   = make([]sql.NullString, len(t.SnippetColumns))
			tags, ts   string
			scanFields = []any{&hit.ID}
		)
		for i := range snippets {
			scanFields = append(scanFields, &snippets[i])
		}
		scanFields = append(scanFields, &tags, &ts, &hit.Distance)
		if err := rows.Scan(scanFields...); err != nil {
			return nil, fmt.Errorf("scanning %s hit: %w", t.Name, err)
		}
		for _, s := range snippets {
			if s.Valid && s.String != "" {
				hit.Snippet = s.String
				break
			}
		}
		hit.Tags = decodeTags(tags)
		hit.CreatedAt = parseTime(ts)
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

// Cursor marks the last row visited by a newest-first scan.
type Cursor struct {
	Order string
	ID    string
}

// PendingEmbedding is a row without an embedding and the text to embed for it.
type PendingEmbedding struct {
	ID     string
	Text   string
	Cursor Cursor
}

// MissingEmbeddings lists up to limit rows of t in namespace whose embedding
// is NULL, newest first, starting strictly after cursor when non-nil.
func (o *ops) MissingEmbeddings(ctx context.Context, t VectorTable, namespace string, after *Cursor, limit int) ([]PendingEmbedding, error) {
	var (
		where = []string{"namespace = ?", "embedding IS NULL"}
		args  = []any{namespace}
	)
	if after != nil {
		where = append(where, fmt.Sprintf("(%[1]s < ? OR (%[1]s = ? AND id < ?))", t.OrderColumn))
		args = append(args, after.Order, after.Order, after.ID)
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT id, %s, %s
		FROM %s
		WHERE %s
		ORDER BY %s DESC, id DESC
		LIMIT ?`,
		t.OrderColumn, strings.Join(t.SourceColumns, ", "), t.Name,
		strings.Join(where, " AND "), t.OrderColumn)

	rows, err := o.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing rows without embeddings in %s: %w", t.Name, err)
	}
	defer rows.Close()

	var out []PendingEmbedding
	for rows.Next() {
		var (
			p      PendingEmbedding
			order  string
			parts  = make([]sql.NullString, len(t.SourceColumns))
			fields = []any{&p.ID, &order}
		)
		for i := range parts {
			fields = append(fields, &parts[i])
		}
		if err := rows.Scan(fields...); err != nil {
			return nil, fmt.Errorf("scanning %s row: %w", t.Name, err)
		}
		var text []string
		for _, part := range parts {
			if part.String != "" {
				text = append(text, part.String)
			}
		}
		p.Text = strings.Join(text, "\n")
		p.Cursor = Cursor{Order: order, ID: p.ID}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SetEmbedding attaches vec to the row id of t.
func (o *ops) SetEmbedding(ctx context.Context, t VectorTable, id string, vec []float32) error {
	blob, err := encodeEmbedding(vec)
	if err != nil {
		return err
	}
	res, err := o.q.ExecContext(ctx, fmt.Sprintf(`UPDATE %s SET embedding = ? WHERE id = ?`, t.Name), blob, id)
	if err != nil {
		return fmt.Errorf("updating %s embedding: %w", t.Name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
