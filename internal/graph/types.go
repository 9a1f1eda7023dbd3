// Package graph implements the knowledge-graph index: entity/relationship
// extraction from chunks and BFS-based traversal queries, grounded on the
// vjache-cie pack's entity/edge shape (pkg/ingestion/schema.go) but emitted
// as Triples rather than Datalog facts, since a pure-Go CozoDB binding isn't
// available (cgo-only; see DESIGN.md).
package graph

import "strings"

// EntityType is the closed set of entity kinds.
type EntityType string

const (
	EntityFunction EntityType = "function"
	EntityClass    EntityType = "class"
	EntityModule   EntityType = "module"
	EntityConcept  EntityType = "concept"
	EntityVariable EntityType = "variable"
)

// Entity is a node in the knowledge graph. Two entities with the same
// (normalized name, type) in the same project are the same entity: EntityID
// is derived from exactly those two fields so identity is structural, not
// assigned.
type Entity struct {
	ID   string
	Name string
	Type EntityType
}

// NormalizeName lowercases and trims an entity name so that "Foo" and "foo "
// resolve to the same identity.
func NormalizeName(name string) string {
	return strings.TrimSpace(strings.ToLower(name))
}

// EntityID derives the deterministic ID for a (name, type) pair.
func EntityID(name string, t EntityType) string {
	return string(t) + ":" + NormalizeName(name)
}

// NewEntity constructs an Entity with its ID derived from name+type.
func NewEntity(name string, t EntityType) *Entity {
	return &Entity{ID: EntityID(name, t), Name: name, Type: t}
}

// Predicate is the closed set of relationship labels a Triple can carry.
// Predicates returned by the bounded LLM extractor must be one of this set;
// any other predicate is dropped (see llmPredicates in extract_llm.go).
type Predicate string

const (
	PredImports    Predicate = "imports"
	PredContains   Predicate = "contains"
	PredExtends    Predicate = "extends"
	PredCalls      Predicate = "calls"
	PredUses       Predicate = "uses"
	PredReferences Predicate = "references"
	PredDefinedIn  Predicate = "defined_in"
)

// Triple is a directed, labeled edge with provenance to the chunk it was
// extracted from. SourceChunkID is a key lookup, not an owning reference:
// orphaned triples (source chunk replaced) remain queryable with a lowered
// rank weight rather than being deleted.
type Triple struct {
	Subject       string // Entity.ID
	Predicate     Predicate
	Object        string // Entity.ID
	SourceChunkID string
	Orphaned      bool
}
