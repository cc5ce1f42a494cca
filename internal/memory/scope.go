package memory

import "github.com/fyrsmithlabs/memoryd/internal/store"

// Scope selects the record table searched by recall and backfill.
type Scope string

const (
	ScopeKnowledge    Scope = "knowledge"
	ScopeRequirements Scope = "requirements"
	ScopeEvents       Scope = "events"
)

var scopeTables = map[Scope]store.VectorTable{
	ScopeKnowledge:    store.KnowledgeTable,
	ScopeRequirements: store.RequirementsTable,
	ScopeEvents:       store.EventsTable,
}

// ParseScope validates s. Empty selects ScopeKnowledge.
func ParseScope(s string) (Scope, error) {
	if s == "" {
		return ScopeKnowledge, nil
	}
	if _, ok := scopeTables[Scope(s)]; !ok {
		return "", validationf("unknown scope '%s'", s)
	}
	return Scope(s), nil
}

func (s Scope) table() store.VectorTable {
	return scopeTables[s]
}
