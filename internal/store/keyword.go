package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Kind names a record kind in keyword search results.
type Kind string

const (
	KindEntity      Kind = "entity"
	KindRequirement Kind = "requirement"
	KindKnowledge   Kind = "knowledge_item"
	KindEvent       Kind = "event"
)

// KeywordQuery filters one record kind by substring.
// Empty Text matches every row.
type KeywordQuery struct {
	Namespace string
	Text      string
	// ProjectID filters requirements, knowledge items and events.
	ProjectID string
	// EntityID filters requirement owner, knowledge entity and event agent.
	EntityID string
	// EntitySlug filters entities.
	EntitySlug string
	Limit      int
}

// KeywordHit is one keyword search result.
type KeywordHit struct {
	ID        string
	Kind      Kind
	Title     string
	Snippet   string
	Tags      []string
	CreatedAt time.Time
}

// keywordTable describes how one kind is searched and rendered.
type keywordTable struct {
	table        string
	textColumns  []string
	projectCol   string
	entityCol    string
	orderCol     string
	titleExpr    string
	snippetExpr  string
	tagsExpr     string
	entityBySlug bool
}

var keywordTables = map[Kind]keywordTable{
	KindEntity: {
		table:        "entities",
		textColumns:  []string{"name", "description"},
		orderCol:     "updated_at",
		titleExpr:    "name",
		snippetExpr:  "COALESCE(description, '')",
		tagsExpr:     "json_array(type)",
		entityBySlug: true,
	},
	KindRequirement: {
		table:       "requirements",
		textColumns: []string{"title", "body"},
		projectCol:  "project_id",
		entityCol:   "owner_entity_id",
		orderCol:    "updated_at",
		titleExpr:   "title",
		snippetExpr: "COALESCE(NULLIF(context_snippet, ''), body, '')",
		tagsExpr:    "tags",
	},
	KindKnowledge: {
		table:       "knowledge_items",
		textColumns: []string{"content", "source", "source_ref"},
		projectCol:  "project_id",
		entityCol:   "entity_id",
		orderCol:    "created_at",
		titleExpr:   "COALESCE(NULLIF(source, ''), 'knowledge_item')",
		snippetExpr: "content",
		tagsExpr:    "tags",
	},
	KindEvent: {
		table:       "events",
		textColumns: []string{"title", "body"},
		projectCol:  "project_id",
		entityCol:   "agent_id",
		orderCol:    "created_at",
		titleExpr:   "title",
		snippetExpr: "COALESCE(NULLIF(body, ''), context_snippet, '')",
		tagsExpr:    "tags",
	},
}

// SearchKeyword returns up to q.Limit rows of kind whose text columns contain
// q.Text, newest first. Matching ignores case by Unicode case folding.
func (o *ops) SearchKeyword(ctx context.Context, kind Kind, q KeywordQuery) ([]KeywordHit, error) {
	kt, ok := keywordTables[kind]
	if !ok {
		return nil, fmt.Errorf("unknown record kind %q", kind)
	}

	var (
		where = []string{"namespace = ?"}
		args  = []any{q.Namespace}
	)
	if q.Text != "" {
		pattern := "%" + escapeLike(foldCase(q.Text)) + "%"
		var ors []string
		for _, col := range kt.textColumns {
			ors = append(ors, "casefold("+col+`) LIKE ? ESCAPE '\'`)
			args = append(args, pattern)
		}
		where = append(where, "("+strings.Join(ors, " OR ")+")")
	}
	if kt.entityBySlug {
		if q.EntitySlug != "" {
			where = append(where, "slug = ?")
			args = append(args, q.EntitySlug)
		}
	} else {
		if q.ProjectID != "" {
			where = append(where, kt.projectCol+" = ?")
			args = append(args, q.ProjectID)
		}
		if q.EntityID != "" {
			where = append(where, kt.entityCol+" = ?")
			args = append(args, q.EntityID)
		}
	}
	args = append(args, q.Limit)

	query := fmt.Sprintf(`
		SELECT id, %s, %s, %s, created_at
		FROM %s
		WHERE %s
		ORDER BY %s DESC, rowid DESC
		LIMIT ?`,
		kt.titleExpr, kt.snippetExpr, kt.tagsExpr, kt.table,
		strings.Join(where, " AND "), kt.orderCol)

	rows, err := o.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("keyword search on %s: %w", kt.table, err)
	}
	defer rows.Close()

	var hits []KeywordHit
	for rows.Next() {
		var (
			h       KeywordHit
			snippet sql.NullString
			tags    string
			ts      string
		)
		if err := rows.Scan(&h.ID, &h.Title, &snippet, &tags, &ts); err != nil {
			return nil, fmt.Errorf("scanning %s: %w", kt.table, err)
		}
		h.Kind = kind
		h.Snippet = snippet.String
		h.Tags = decodeTags(tags)
		h.CreatedAt = parseTime(ts)
		hits = append(hits, h)
	}
	return hits, rows.Err()
}
