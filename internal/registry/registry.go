// Package registry owns the set of virtual field definitions.
package registry

import (
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/kailas-cloud/vfields/internal/domain/field"
)

// Dependencies is the union of base columns and relations a field set needs.
type Dependencies struct {
	BaseFields []string
	Relations  []string
}

// Registry maps field names to definitions. Safe for concurrent use;
// iteration follows registration order.
type Registry struct {
	mu     sync.RWMutex
	defs   map[string]field.Definition
	order  []string
	logger *zap.Logger
}

// New creates an empty registry.
func New(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		defs:   make(map[string]field.Definition),
		logger: logger,
	}
}

// Add registers def, replacing any existing definition with the same name.
func (r *Registry) Add(def field.Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := def.Name()
	if _, exists := r.defs[name]; exists {
		r.logger.Warn("Virtual field redefined, replacing previous definition",
			zap.String("field", name),
		)
	} else {
		r.order = append(r.order, name)
	}
	r.defs[name] = def
}

// Remove unregisters a field. Reports whether it existed.
func (r *Registry) Remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.defs[name]; !ok {
		return false
	}
	delete(r.defs, name)
	r.order = slices.DeleteFunc(r.order, func(n string) bool { return n == name })
	return true
}

// Get returns the definition registered under name.
func (r *Registry) Get(name string) (field.Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.defs[name]
	return d, ok
}

// Has reports whether name is a registered virtual field.
func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Len returns the number of registered fields.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Names returns registered names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.order)
}

// All returns every definition in registration order.
func (r *Registry) All() []field.Definition {
	return r.where(func(field.Definition) bool { return true })
}

// ByType returns fields of the given type.
func (r *Registry) ByType(t field.Type) []field.Definition {
	return r.where(func(d field.Definition) bool { return d.FieldType() == t })
}

// ByOperator returns fields that enable op.
func (r *Registry) ByOperator(op field.Operator) []field.Definition {
	return r.where(func(d field.Definition) bool { return d.Supports(op) })
}

// Cacheable returns fields whose values may be cached.
func (r *Registry) Cacheable() []field.Definition {
	return r.where(field.Definition.Cacheable)
}

// Sortable returns fields usable for sorting.
func (r *Registry) Sortable() []field.Definition {
	return r.where(field.Definition.Sortable)
}

// Searchable returns fields taking part in search.
func (r *Registry) Searchable() []field.Definition {
	return r.where(field.Definition.Searchable)
}

func (r *Registry) where(keep func(field.Definition) bool) []field.Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]field.Definition, 0, len(r.order))
	for _, name := range r.order {
		if d := r.defs[name]; keep(d) {
			out = append(out, d)
		}
	}
	return out
}

// AllDependencies returns the base columns and relations needed to compute names.
// Dependencies on other virtual fields are followed transitively and contribute
// their own needs instead of being reported as columns. Unknown names are skipped.
func (r *Registry) AllDependencies(names []string) Dependencies {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var deps Dependencies
	visited := make(map[string]bool)
	stack := slices.Clone(names)

	for len(stack) > 0 {
		name := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[name] {
			continue
		}
		visited[name] = true

		def, ok := r.defs[name]
		if !ok {
			continue
		}
		for _, dep := range def.Dependencies() {
			if _, virtual := r.defs[dep]; virtual {
				stack = append(stack, dep)
				continue
			}
			if !slices.Contains(deps.BaseFields, dep) {
				deps.BaseFields = append(deps.BaseFields, dep)
			}
		}
		for _, rel := range def.Relations() {
			if !slices.Contains(deps.Relations, rel) {
				deps.Relations = append(deps.Relations, rel)
			}
		}
	}

	slices.Sort(deps.BaseFields)
	slices.Sort(deps.Relations)
	return deps
}
