// Package entity describes the records and queries owned by the external data layer.
package entity

import (
	"maps"
	"sync"
)

// Entity is a record with a stable key, attribute access and relation traversal.
// The engine never mutates attributes; it only attaches ephemeral decorations.
type Entity interface {
	Key() string
	Type() string
	Attribute(name string) (any, bool)
	Relation(name string) (any, bool)
	Decorate(name string, value any)
	Decoration(name string) (any, bool)
}

// Record is a map-backed Entity.
type Record struct {
	key        string
	entityType string
	attributes map[string]any
	relations  map[string]any

	mu          sync.RWMutex
	decorations map[string]any
}

// NewRecord creates a Record. attributes and relations are copied.
func NewRecord(entityType, key string, attributes, relations map[string]any) *Record {
	r := &Record{
		key:         key,
		entityType:  entityType,
		attributes:  make(map[string]any, len(attributes)),
		relations:   make(map[string]any, len(relations)),
		decorations: make(map[string]any),
	}
	maps.Copy(r.attributes, attributes)
	maps.Copy(r.relations, relations)
	return r
}

// Key returns the primary key.
func (r *Record) Key() string { return r.key }

// Type returns the entity type name.
func (r *Record) Type() string { return r.entityType }

// Attribute returns a base attribute.
func (r *Record) Attribute(name string) (any, bool) {
	v, ok := r.attributes[name]
	return v, ok
}

// Relation returns a loaded relation.
func (r *Record) Relation(name string) (any, bool) {
	v, ok := r.relations[name]
	return v, ok
}

// Decorate attaches a computed value.
func (r *Record) Decorate(name string, value any) {
	r.mu.Lock()
	r.decorations[name] = value
	r.mu.Unlock()
}

// Decoration returns a previously attached computed value.
func (r *Record) Decoration(name string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.decorations[name]
	return v, ok
}

// Attributes returns a copy of the base attributes.
func (r *Record) Attributes() map[string]any {
	return maps.Clone(r.attributes)
}

// Decorations returns a copy of the attached computed values.
func (r *Record) Decorations() map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return maps.Clone(r.decorations)
}

// ScopeKey identifies an entity across types: "<type>:<key>".
func ScopeKey(e Entity) string {
	return e.Type() + ":" + e.Key()
}
