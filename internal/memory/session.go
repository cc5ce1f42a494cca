package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/memoryd/internal/logging"
	"github.com/fyrsmithlabs/memoryd/internal/provider"
	"github.com/fyrsmithlabs/memoryd/internal/store"
	"github.com/fyrsmithlabs/memoryd/internal/summarizer"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// SummarySource is the source of knowledge items written by SummarizeSession.
const SummarySource = "session_compaction"

// SummaryTags are attached to every session summary.
var SummaryTags = []string{"summary", "compaction"}

// SummarizeSession collapses the unarchived events of one session into a
// knowledge item and archives exactly the events that were summarized.
//
// Events appended to the session after they are loaded stay unarchived and
// are picked up by a later call.
func (s *Service) SummarizeSession(ctx context.Context, req SummarizeRequest) (res *SummarizeResult, err error) {
	ns := namespaceOrDefault(req.Namespace)
	ctx = logging.WithSessionID(logging.WithNamespace(ctx, ns), req.SessionID)
	ctx, span := s.tracer.Start(ctx, "memory.summarize_session", trace.WithAttributes(
		attribute.String("namespace", ns),
		attribute.String("session.id", req.SessionID),
	))
	defer func() { finishSpan(span, err) }()

	if strings.TrimSpace(req.SessionID) == "" {
		return nil, validationf("session_id is required")
	}
	if err := s.requireNamespace(ctx, ns); err != nil {
		return nil, err
	}
	if err := checkAvailable(s.summarizer); err != nil {
		return nil, err
	}

	projectID := req.ProjectID
	if req.ProjectSlug != "" {
		if projectID, err = newSlugResolver(s.store, ns).resolve(ctx, roleProject, req.ProjectSlug); err != nil {
			return nil, err
		}
	}

	maxEvents := req.MaxEvents
	if maxEvents <= 0 {
		maxEvents = DefaultSummarizeEvents
	}
	maxEvents = min(maxEvents, s.config.MaxSessionEvents, MaxSessionEvents)

	events, err := s.store.SessionEvents(ctx, store.SessionFilter{
		Namespace:    ns,
		SessionID:    req.SessionID,
		ProjectID:    projectID,
		MatchProject: projectID != "",
		Limit:        maxEvents,
	})
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, notFoundf("no unarchived events found for session_id '%s'", req.SessionID)
	}

	transcript := BuildTranscript(events)
	if transcript == "" {
		return nil, validationf("session transcript is empty; nothing to summarize")
	}

	summary, err := s.summarizer.Summarize(ctx, transcript)
	if err != nil {
		return nil, fmt.Errorf("summarizing session: %w", err)
	}
	if summary = strings.TrimSpace(summary); summary == "" {
		return nil, &provider.Error{Provider: s.summarizer.Name(), Op: "summarize", Err: summarizer.ErrEmptySummary}
	}

	if projectID == "" {
		projectID = events[0].ProjectID
	}
	item := &store.KnowledgeItem{
		Namespace: ns,
		ProjectID: projectID,
		Content:   summary,
		Source:    SummarySource,
		SourceRef: req.SessionID,
		Tags:      SummaryTags,
		Embedding: s.embedBestEffort(ctx, summary),
	}
	ids := make([]string, len(events))
	for i, e := range events {
		ids[i] = e.ID
	}

	var archived int64
	err = s.store.WithTx(ctx, func(tx *store.Tx) error {
		if err := tx.InsertKnowledgeItem(ctx, item); err != nil {
			return err
		}
		n, err := tx.ArchiveEvents(ctx, ids)
		if err != nil {
			return err
		}
		if n == 0 {
			// Another writer archived the whole transcript first.
			return notFoundf("no unarchived events found for session_id '%s'", req.SessionID)
		}
		archived = n
		return nil
	})
	if err != nil {
		return nil, err
	}

	logging.For(ctx, s.logger).Info("summarized session",
		zap.Int64("archived_events", archived),
		zap.String("knowledge_item_id", item.ID))

	return &SummarizeResult{
		Namespace:              ns,
		SessionID:              req.SessionID,
		ArchivedEvents:         int(archived),
		SummaryKnowledgeItemID: item.ID,
	}, nil
}

// CompactionCandidates lists the sessions whose unarchived events exceed
// either threshold.
func (s *Service) CompactionCandidates(ctx context.Context, eventThreshold, charThreshold int) ([]store.Candidate, error) {
	return s.store.CompactionCandidates(ctx, eventThreshold, charThreshold)
}

// embedBestEffort embeds text when embeddings are usable, returning nil on
// any failure.
func (s *Service) embedBestEffort(ctx context.Context, text string) []float32 {
	if s.embeddingsDisabled() || !s.embedder.Available() {
		return nil
	}
	vec, err := s.embedForWrite(ctx, text)
	if err != nil {
		logging.For(ctx, s.logger).Warn("summary embedding failed, storing without embedding", zap.Error(err))
		return nil
	}
	return vec
}

// BuildTranscript renders events oldest-first as
//
//	[timestamp] (type) title
//	body
//	Context: snippet
//
// with a blank line between events. Body and context lines are omitted
// when empty.
func BuildTranscript(events []store.Event) string {
	var b strings.Builder
	for _, e := range events {
		ts := ""
		if !e.CreatedAt.IsZero() {
			ts = e.CreatedAt.UTC().Format(time.RFC3339Nano)
		}
		fmt.Fprintf(&b, "[%s] (%s) %s\n", ts, e.Type, e.Title)
		if e.Body != "" {
			b.WriteString(e.Body)
			b.WriteByte('\n')
		}
		if e.ContextSnippet != "" {
			b.WriteString("Context: ")
			b.WriteString(e.ContextSnippet)
			b.WriteByte('\n')
		}
		b.WriteByte('\n')
	}
	return strings.TrimSpace(b.String())
}

func checkAvailable(p provider.Availability) error {
	if p.Available() {
		return nil
	}
	return provider.Unavailable(p.Name(), p.UnavailableReason())
}
