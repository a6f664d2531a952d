// Package filter evaluates virtual field predicates over computed values.
package filter

import (
	"fmt"

	"github.com/kailas-cloud/vfields/internal/domain"
	"github.com/kailas-cloud/vfields/internal/domain/field"
)

// MaxPredicates is the maximum number of predicates per filter request.
const MaxPredicates = 32

// Logic chains a predicate against the accumulated result of the previous ones.
type Logic string

// Logic values.
const (
	And Logic = "and"
	Or  Logic = "or"
)

// Direction is a sort direction.
type Direction string

// Direction values.
const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// ParseDirection accepts asc/desc (empty = asc).
func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case "", Asc:
		return Asc, nil
	case Desc:
		return Desc, nil
	default:
		return "", fmt.Errorf("sort direction must be asc or desc, got %q: %w", s, domain.ErrInvalidPredicate)
	}
}

// Predicate is one {field, operator, value, logic} filter clause.
type Predicate struct {
	Field    string         `json:"field" yaml:"field"`
	Operator field.Operator `json:"operator" yaml:"operator"`
	Value    any            `json:"value,omitempty" yaml:"value,omitempty"`
	Logic    Logic          `json:"logic,omitempty" yaml:"logic,omitempty"`
}

// Chain returns the effective logic (and when unset).
func (p Predicate) Chain() Logic {
	if p.Logic == "" {
		return And
	}
	return p.Logic
}

// Validate checks the predicate shape. Operator support per field is checked by the caller.
func (p Predicate) Validate() error {
	if p.Field == "" {
		return fmt.Errorf("predicate field is required: %w", domain.ErrInvalidPredicate)
	}
	if p.Chain() != And && p.Chain() != Or {
		return fmt.Errorf("predicate logic must be and or or, got %q: %w", p.Logic, domain.ErrInvalidPredicate)
	}
	switch p.Operator {
	case field.Between, field.NotBetween:
		if _, _, err := Bounds(p.Value); err != nil {
			return err
		}
	case field.In, field.NotIn:
		if p.Value == nil {
			return fmt.Errorf("operator %s on %q requires a value list: %w", p.Operator, p.Field, domain.ErrInvalidPredicate)
		}
	case "":
		return fmt.Errorf("predicate operator is required for %q: %w", p.Field, domain.ErrInvalidPredicate)
	}
	return nil
}

// ValidateAll checks every predicate and the overall count.
func ValidateAll(preds []Predicate) error {
	if len(preds) > MaxPredicates {
		return fmt.Errorf("too many predicates (max %d): %w", MaxPredicates, domain.ErrInvalidPredicate)
	}
	for i, p := range preds {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("predicate %d: %w", i, err)
		}
	}
	return nil
}
