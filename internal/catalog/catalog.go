// Package catalog provides parameterised compute functions that declarative
// (YAML) field definitions can reference by name.
package catalog

import (
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/kailas-cloud/vfields/internal/domain"
	"github.com/kailas-cloud/vfields/internal/domain/field"
	"github.com/kailas-cloud/vfields/internal/usecase/validator"
)

// Args are the parameters of a catalog function. Each function reads the subset it needs.
type Args struct {
	Attribute  string   `yaml:"attribute"`
	Attributes []string `yaml:"attributes"`
	Separator  *string  `yaml:"separator"`
	Field      string   `yaml:"field"`
	Relation   string   `yaml:"relation"`
}

// Spec is one declarative field: the catalog function, its arguments and the
// remaining field settings (type, operators, cache_ttl, ...) passed through as-is.
type Spec struct {
	Compute  string         `yaml:"compute"`
	Args     Args           `yaml:"args"`
	Settings map[string]any `yaml:",inline"`
}

// Function is a built compute function together with the inputs it reads.
type Function struct {
	Compute      field.Computable
	Dependencies []string
	Relations    []string
}

// Builder validates args and builds a Function.
type Builder func(args Args, now func() time.Time) (Function, error)

// Catalog maps function names to builders.
type Catalog struct {
	mu       sync.RWMutex
	builders map[string]Builder
	now      func() time.Time
}

// New creates a Catalog with the built-in functions.
func New() *Catalog {
	c := &Catalog{
		builders: make(map[string]Builder, len(builtins)),
		now:      time.Now,
	}
	maps.Copy(c.builders, builtins)
	return c
}

// Register adds or replaces a named function.
func (c *Catalog) Register(name string, b Builder) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.builders[name] = b
}

// Names returns the known function names in sorted order.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Sorted(maps.Keys(c.builders))
}

// Build resolves name with args.
func (c *Catalog) Build(name string, args Args) (Function, error) {
	c.mu.RLock()
	b, ok := c.builders[name]
	c.mu.RUnlock()
	if !ok {
		return Function{}, fmt.Errorf("unknown catalog function %q", name)
	}
	return b(args, c.now)
}

// RawConfig converts declarative field entries into the raw configuration
// consumed by the validator. Dependencies and relations default to what the
// function reads unless an entry lists them explicitly. Entries whose function
// cannot be built are left out and reported.
func (c *Catalog) RawConfig(specs map[string]Spec) (validator.RawConfig, domain.ConfigErrors) {
	raw := make(validator.RawConfig, len(specs))
	var errs domain.ConfigErrors

	for _, name := range slices.Sorted(maps.Keys(specs)) {
		spec := specs[name]
		if spec.Compute == "" {
			errs = append(errs, &domain.ConfigError{Field: name, Problem: "compute is required"})
			continue
		}
		fn, err := c.Build(spec.Compute, spec.Args)
		if err != nil {
			errs = append(errs, &domain.ConfigError{Field: name, Problem: err.Error()})
			continue
		}

		settings := make(map[string]any, len(spec.Settings)+3)
		maps.Copy(settings, spec.Settings)
		settings["compute"] = fn.Compute
		if _, ok := settings["dependencies"]; !ok && len(fn.Dependencies) > 0 {
			settings["dependencies"] = fn.Dependencies
		}
		if _, ok := settings["relations"]; !ok && len(fn.Relations) > 0 {
			settings["relations"] = fn.Relations
		}
		raw[name] = settings
	}
	return raw, errs
}
