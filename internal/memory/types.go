package memory

import (
	"time"

	"github.com/fyrsmithlabs/memoryd/internal/store"
)

// DefaultNamespace is used when a request names no namespace.
const DefaultNamespace = "default"

// EntityInput is an entity to upsert by slug.
type EntityInput struct {
	Slug        string           `json:"slug"`
	Type        store.EntityType `json:"type"`
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Metadata    map[string]any   `json:"metadata,omitempty"`
}

// RequirementInput is a requirement to insert.
type RequirementInput struct {
	ProjectSlug     string         `json:"project_slug,omitempty"`
	OwnerEntitySlug string         `json:"owner_entity_slug,omitempty"`
	Title           string         `json:"title"`
	Body            string         `json:"body,omitempty"`
	Priority        store.Priority `json:"priority,omitempty"`
	Status          store.Status   `json:"status,omitempty"`
	ContextSnippet  string         `json:"context_snippet,omitempty"`
	Tags            []string       `json:"tags,omitempty"`
	Embedding       []float32      `json:"embedding,omitempty"`
}

// KnowledgeInput is a knowledge document, stored as one row per chunk.
type KnowledgeInput struct {
	ProjectSlug string    `json:"project_slug,omitempty"`
	EntitySlug  string    `json:"entity_slug,omitempty"`
	Content     string    `json:"content"`
	Source      string    `json:"source,omitempty"`
	SourceRef   string    `json:"source_ref,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	Embedding   []float32 `json:"embedding,omitempty"`
}

// EventInput is an event to insert.
type EventInput struct {
	ProjectSlug    string          `json:"project_slug,omitempty"`
	AgentSlug      string          `json:"agent_slug,omitempty"`
	Type           store.EventType `json:"type,omitempty"`
	Title          string          `json:"title"`
	Body           string          `json:"body,omitempty"`
	ContextSnippet string          `json:"context_snippet,omitempty"`
	SessionID      string          `json:"session_id,omitempty"`
	Tags           []string        `json:"tags,omitempty"`
	Embedding      []float32       `json:"embedding,omitempty"`
}

// IngestRequest is one all-or-nothing ingestion batch.
type IngestRequest struct {
	Namespace      string             `json:"namespace"`
	Entities       []EntityInput      `json:"entities"`
	Requirements   []RequirementInput `json:"requirements"`
	KnowledgeItems []KnowledgeInput   `json:"knowledge_items"`
	Events         []EventInput       `json:"events"`
}

// IngestCounts reports rows written per kind. Knowledge items count chunks.
type IngestCounts struct {
	Entities       int `json:"entities"`
	Requirements   int `json:"requirements"`
	KnowledgeItems int `json:"knowledge_items"`
	Events         int `json:"events"`
}

// QueryRequest is a keyword search across all record kinds.
type QueryRequest struct {
	Namespace   string
	Text        string
	ProjectSlug string
	EntitySlug  string
	Limit       int
}

// QueryRecord is one keyword search result.
type QueryRecord struct {
	ID        string     `json:"id"`
	Kind      store.Kind `json:"kind"`
	Title     string     `json:"title"`
	Snippet   string     `json:"snippet"`
	Tags      []string   `json:"tags"`
	CreatedAt time.Time  `json:"created_at"`
}

// QueryResponse holds keyword search results, newest first.
type QueryResponse struct {
	Namespace string        `json:"namespace"`
	Total     int           `json:"total"`
	Results   []QueryRecord `json:"results"`
}

// RecallRequest is a vector similarity search in one scope. Either
// QueryEmbedding or QueryText must be set.
type RecallRequest struct {
	Namespace      string    `json:"namespace"`
	Scope          Scope     `json:"scope"`
	QueryText      string    `json:"query_text,omitempty"`
	QueryEmbedding []float32 `json:"query_embedding,omitempty"`
	TopK           *int      `json:"top_k,omitempty"`
	ProjectSlug    string    `json:"project_slug,omitempty"`
	EntitySlug     string    `json:"entity_slug,omitempty"`
}

// RecallItem is one recall result. Score is cosine distance, lower is closer.
type RecallItem struct {
	ID            string    `json:"id"`
	Scope         Scope     `json:"scope"`
	Score         float64   `json:"score"`
	RerankerScore *float64  `json:"reranker_score,omitempty"`
	Snippet       string    `json:"snippet"`
	Tags          []string  `json:"tags"`
	CreatedAt     time.Time `json:"created_at"`
}

// RecallResponse holds recall results.
type RecallResponse struct {
	Namespace string       `json:"namespace"`
	Scope     Scope        `json:"scope"`
	TopK      int          `json:"top_k"`
	Items     []RecallItem `json:"items"`
}

// SummarizeRequest asks for one session to be summarized and archived.
type SummarizeRequest struct {
	Namespace   string `json:"namespace"`
	SessionID   string `json:"session_id"`
	ProjectSlug string `json:"project_slug,omitempty"`
	// ProjectID filters by resolved project id; ProjectSlug takes precedence.
	ProjectID string `json:"-"`
	MaxEvents int    `json:"max_events,omitempty"`
}

// SummarizeResult describes a completed summarize-and-archive.
type SummarizeResult struct {
	Namespace              string `json:"namespace"`
	SessionID              string `json:"session_id"`
	ArchivedEvents         int    `json:"archived_events"`
	SummaryKnowledgeItemID string `json:"summary_knowledge_item_id"`
}

// BackfillRequest attaches embeddings to rows stored without one.
type BackfillRequest struct {
	Namespace string `json:"namespace"`
	Scope     Scope  `json:"scope"`
	Limit     int    `json:"limit,omitempty"`
	BatchSize int    `json:"batch_size,omitempty"`
	DryRun    bool   `json:"dry_run"`
}

// BackfillResult reports backfill progress.
type BackfillResult struct {
	Namespace string `json:"namespace"`
	Scope     Scope  `json:"scope"`
	Updated   int    `json:"updated"`
	Skipped   int    `json:"skipped"`
	DryRun    bool   `json:"dry_run"`
}

// Health reports provider status.
type Health struct {
	Status              string `json:"status"`
	EmbeddingProvider   string `json:"embedding_provider"`
	EmbeddingAvailable  bool   `json:"embedding_available"`
	SummarizerProvider  string `json:"summarizer_provider"`
	SummarizerAvailable bool   `json:"summarizer_available"`
	RerankerProvider    string `json:"reranker_provider"`
	RerankerAvailable   bool   `json:"reranker_available"`
	CompactionEnabled   bool   `json:"compaction_enabled"`
}
