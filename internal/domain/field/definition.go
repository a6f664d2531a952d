package field

import (
	"fmt"
	"regexp"
	"slices"
	"time"

	"github.com/kailas-cloud/vfields/internal/domain"
)

var namePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

var reservedNames = map[string]bool{
	"id": true, "created_at": true, "updated_at": true, "deleted_at": true,
}

// IsReserved reports whether name collides with a store-managed column.
func IsReserved(name string) bool { return reservedNames[name] }

// ValidName reports whether name matches the identifier pattern.
func ValidName(name string) bool { return namePattern.MatchString(name) }

// Params is the typed input for building a Definition.
type Params struct {
	Type         Type
	Compute      Computable
	Dependencies []string
	Relations    []string
	Operators    []Operator // nil = every operator valid for Type
	Values       []any      // enum only
	Cacheable    bool
	CacheTTL     time.Duration
	DefaultValue any
	Nullable     bool
	Sortable     bool
	Searchable   bool
	Description  string
}

// Problems lists every rule the params violate for a field called name.
func (p Params) Problems(name string) []string {
	var out []string
	switch {
	case name == "":
		out = append(out, "name is required")
	case !ValidName(name):
		out = append(out, fmt.Sprintf("name must match %s", namePattern.String()))
	case IsReserved(name):
		out = append(out, "name is reserved")
	}

	if p.Type == "" {
		out = append(out, "type is required")
	} else if !p.Type.Valid() {
		out = append(out, fmt.Sprintf("unknown type %q", p.Type))
	}
	if p.Compute == nil {
		out = append(out, "compute is required")
	}

	if p.Type.Valid() {
		for _, op := range p.Operators {
			if !Supports(p.Type, op) {
				out = append(out, fmt.Sprintf("operator %q is not valid for type %s", op, p.Type))
			}
		}
	}

	if p.CacheTTL < 0 {
		out = append(out, "cache_ttl must not be negative")
	}
	for i, d := range p.Dependencies {
		if d == "" {
			out = append(out, fmt.Sprintf("dependencies[%d] must be a non-empty string", i))
		}
		if d == name && name != "" {
			out = append(out, "field depends on itself")
		}
	}
	for i, r := range p.Relations {
		if r == "" {
			out = append(out, fmt.Sprintf("relations[%d] must be a non-empty string", i))
		}
	}

	if p.Type == Enum {
		if len(p.Values) == 0 {
			out = append(out, "enum values must not be empty")
		}
		for i, v := range p.Values {
			if !isScalar(v) {
				out = append(out, fmt.Sprintf("enum values[%d] must be a scalar", i))
			}
		}
	}
	return out
}

func isScalar(v any) bool {
	switch v.(type) {
	case string, bool, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, float32, float64:
		return true
	default:
		return false
	}
}

// Definition is an immutable virtual field descriptor.
type Definition struct {
	name         string
	fieldType    Type
	compute      Computable
	dependencies []string
	relations    []string
	operators    []Operator
	values       []any
	cacheable    bool
	cacheTTL     time.Duration
	defaultValue any
	nullable     bool
	sortable     bool
	searchable   bool
	description  string
}

// New validates params and creates a Definition.
func New(name string, p Params) (Definition, error) {
	if problems := p.Problems(name); len(problems) > 0 {
		errs := make(domain.ConfigErrors, len(problems))
		for i, pr := range problems {
			errs[i] = &domain.ConfigError{Field: name, Problem: pr}
		}
		return Definition{}, errs
	}
	return Reconstruct(name, p), nil
}

// Reconstruct creates a Definition without validation.
// Slices are copied; nil operators expand to the full valid set.
func Reconstruct(name string, p Params) Definition {
	ops := slices.Clone(p.Operators)
	if len(ops) == 0 {
		ops = ValidOperators(p.Type)
	}
	return Definition{
		name:         name,
		fieldType:    p.Type,
		compute:      p.Compute,
		dependencies: dedup(p.Dependencies),
		relations:    dedup(p.Relations),
		operators:    ops,
		values:       slices.Clone(p.Values),
		cacheable:    p.Cacheable,
		cacheTTL:     p.CacheTTL,
		defaultValue: p.DefaultValue,
		nullable:     p.Nullable,
		sortable:     p.Sortable,
		searchable:   p.Searchable,
		description:  p.Description,
	}
}

func dedup(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}

// Name returns the field name.
func (d Definition) Name() string { return d.name }

// FieldType returns the value type.
func (d Definition) FieldType() Type { return d.fieldType }

// Computable returns the compute capability.
func (d Definition) Computable() Computable { return d.compute }

// Dependencies returns the base attributes (or virtual fields) read by compute.
func (d Definition) Dependencies() []string { return slices.Clone(d.dependencies) }

// Relations returns the relations that must be loaded before compute.
func (d Definition) Relations() []string { return slices.Clone(d.relations) }

// Operators returns the enabled filter operators.
func (d Definition) Operators() []Operator { return slices.Clone(d.operators) }

// Supports reports whether op is enabled for this field.
func (d Definition) Supports(op Operator) bool { return slices.Contains(d.operators, op) }

// Values returns the allowed enum values.
func (d Definition) Values() []any { return slices.Clone(d.values) }

// Cacheable reports whether computed values may be cached.
func (d Definition) Cacheable() bool { return d.cacheable }

// CacheTTL returns the per-field TTL; 0 means the store default.
func (d Definition) CacheTTL() time.Duration { return d.cacheTTL }

// DefaultValue returns the fallback value used when compute fails on a nullable field.
func (d Definition) DefaultValue() any { return d.defaultValue }

// Nullable reports whether compute failures degrade to the default value.
func (d Definition) Nullable() bool { return d.nullable }

// Sortable reports whether the field may be used for sorting.
func (d Definition) Sortable() bool { return d.sortable }

// Searchable reports whether the field takes part in free-text search.
func (d Definition) Searchable() bool { return d.searchable }

// Description returns the human-readable description.
func (d Definition) Description() string { return d.description }
