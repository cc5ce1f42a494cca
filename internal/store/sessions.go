package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// CompactionCandidates groups unarchived events that have a session id by
// (namespace, project, session) and returns the groups whose event count
// exceeds eventThreshold or whose title+body+context character total exceeds
// charThreshold. Both comparisons are strict.
func (o *ops) CompactionCandidates(ctx context.Context, eventThreshold, charThreshold int) ([]Candidate, error) {
	rows, err := o.q.QueryContext(ctx, `
		SELECT namespace, project_id, session_id,
			COUNT(id) AS event_count,
			COALESCE(SUM(length(COALESCE(title, '')) + length(COALESCE(body, '')) + length(COALESCE(context_snippet, ''))), 0) AS char_count
		FROM events
		WHERE is_archived = 0 AND session_id IS NOT NULL AND session_id != ''
		GROUP BY namespace, project_id, session_id
		HAVING event_count > ? OR char_count > ?
		ORDER BY namespace, session_id`,
		eventThreshold, charThreshold,
	)
	if err != nil {
		return nil, fmt.Errorf("selecting compaction candidates: %w", err)
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		var (
			c       Candidate
			project sql.NullString
		)
		if err := rows.Scan(&c.Namespace, &project, &c.SessionID, &c.EventCount, &c.CharCount); err != nil {
			return nil, fmt.Errorf("scanning candidate: %w", err)
		}
		c.ProjectID = project.String
		out = append(out, c)
	}
	return out, rows.Err()
}

// SessionFilter selects the unarchived events of one session.
type SessionFilter struct {
	Namespace string
	SessionID string
	// ProjectID restricts events to one project when MatchProject is set.
	// An empty ProjectID with MatchProject matches events without a project.
	ProjectID    string
	MatchProject bool
	Limit        int
}

// SessionEvents loads up to f.Limit unarchived events of a session, oldest first.
func (o *ops) SessionEvents(ctx context.Context, f SessionFilter) ([]Event, error) {
	var (
		where = []string{"namespace = ?", "session_id = ?", "is_archived = 0"}
		args  = []any{f.Namespace, f.SessionID}
	)
	if f.MatchProject {
		where = append(where, "project_id IS ?")
		args = append(args, nullString(f.ProjectID))
	}
	args = append(args, f.Limit)

	rows, err := o.q.QueryContext(ctx, `
		SELECT id, namespace, project_id, agent_id, type, title, body, context_snippet,
			session_id, is_archived, tags, created_at
		FROM events
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY created_at ASC, rowid ASC
		LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("loading session events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e                                   Event
			project, agent, body, ctxSnip, sess sql.NullString
			typ, tags, ts                       string
		)
		if err := rows.Scan(&e.ID, &e.Namespace, &project, &agent, &typ, &e.Title, &body, &ctxSnip,
			&sess, &e.IsArchived, &tags, &ts); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		e.ProjectID, e.AgentID = project.String, agent.String
		e.Body, e.ContextSnippet, e.SessionID = body.String, ctxSnip.String, sess.String
		e.Type = EventType(typ)
		e.Tags = decodeTags(tags)
		e.CreatedAt = parseTime(ts)
		events = append(events, e)
	}
	return events, rows.Err()
}

// ArchiveEvents marks exactly the given events archived and returns how many changed.
func (o *ops) ArchiveEvents(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	res, err := o.q.ExecContext(ctx,
		`UPDATE events SET is_archived = 1 WHERE is_archived = 0 AND id IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("archiving events: %w", err)
	}
	return res.RowsAffected()
}
