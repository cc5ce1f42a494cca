package store

import "time"

// EntityType classifies an entity.
type EntityType string

const (
	EntityProject     EntityType = "project"
	EntityPerson      EntityType = "person"
	EntityAgent       EntityType = "agent"
	EntityDocument    EntityType = "document"
	EntityIntegration EntityType = "integration"
	EntityOther       EntityType = "other"
)

// Valid reports whether t is a known entity type.
func (t EntityType) Valid() bool {
	switch t {
	case EntityProject, EntityPerson, EntityAgent, EntityDocument, EntityIntegration, EntityOther:
		return true
	}
	return false
}

// Priority ranks a requirement.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// Status tracks a requirement's progress.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusProposed   Status = "proposed"
	StatusInProgress Status = "in_progress"
	StatusBlocked    Status = "blocked"
	StatusDone       Status = "done"
	StatusArchived   Status = "archived"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusProposed, StatusInProgress, StatusBlocked, StatusDone, StatusArchived:
		return true
	}
	return false
}

// EventType classifies an event.
type EventType string

const (
	EventNote      EventType = "note"
	EventDecision  EventType = "decision"
	EventDirective EventType = "directive"
	EventAction    EventType = "action"
	EventResult    EventType = "result"
	EventError     EventType = "error"
)

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	switch t {
	case EventNote, EventDecision, EventDirective, EventAction, EventResult, EventError:
		return true
	}
	return false
}

// Namespace is the isolation boundary for every record.
type Namespace struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Entity is a named thing other records reference by slug.
type Entity struct {
	ID          string
	Namespace   string
	Slug        string
	Type        EntityType
	Name        string
	Description string
	Metadata    map[string]any
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Requirement is a tracked piece of work. Empty reference ids are stored as NULL.
type Requirement struct {
	ID             string
	Namespace      string
	ProjectID      string
	OwnerEntityID  string
	Title          string
	Body           string
	Priority       Priority
	Status         Status
	ContextSnippet string
	Tags           []string
	Embedding      []float32
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// KnowledgeItem is one chunk of a knowledge document, or a session summary.
type KnowledgeItem struct {
	ID        string
	Namespace string
	ProjectID string
	EntityID  string
	Content   string
	Source    string
	SourceRef string
	Tags      []string
	Embedding []float32
	CreatedAt time.Time
}

// Event is a timestamped note from an agent, optionally part of a session.
type Event struct {
	ID             string
	Namespace      string
	ProjectID      string
	AgentID        string
	Type           EventType
	Title          string
	Body           string
	ContextSnippet string
	SessionID      string
	IsArchived     bool
	Tags           []string
	Embedding      []float32
	CreatedAt      time.Time
}

// Candidate is a (namespace, project, session) group of unarchived events
// that crossed a compaction threshold.
type Candidate struct {
	Namespace  string
	ProjectID  string
	SessionID  string
	EventCount int
	CharCount  int
}
