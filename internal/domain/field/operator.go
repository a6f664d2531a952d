package field

import "slices"

// Operator is a filter comparison operator.
type Operator string

// Operator constants.
const (
	Eq         Operator = "eq"
	Ne         Operator = "ne"
	Gt         Operator = "gt"
	Gte        Operator = "gte"
	Lt         Operator = "lt"
	Lte        Operator = "lte"
	Like       Operator = "like"
	NotLike    Operator = "not_like"
	StartsWith Operator = "starts_with"
	EndsWith   Operator = "ends_with"
	In         Operator = "in"
	NotIn      Operator = "not_in"
	Between    Operator = "between"
	NotBetween Operator = "not_between"
	Null       Operator = "null"
	NotNull    Operator = "not_null"
)

var (
	stringOperators = []Operator{Eq, Ne, Like, NotLike, In, NotIn, Null, NotNull, StartsWith, EndsWith}

	numericOperators = []Operator{Eq, Ne, Gt, Gte, Lt, Lte, Between, NotBetween, In, NotIn, Null, NotNull}

	booleanOperators = []Operator{Eq, Ne, Null, NotNull}

	enumOperators = []Operator{Eq, Ne, In, NotIn, Null, NotNull}

	compoundOperators = []Operator{Null, NotNull}
)

// ValidOperators returns the operators a field of type t may enable.
func ValidOperators(t Type) []Operator {
	switch t {
	case String:
		return slices.Clone(stringOperators)
	case Integer, Float, Date, DateTime:
		return slices.Clone(numericOperators)
	case Boolean:
		return slices.Clone(booleanOperators)
	case Enum:
		return slices.Clone(enumOperators)
	case Array, Object:
		return slices.Clone(compoundOperators)
	default:
		return nil
	}
}

// Supports reports whether op is valid for type t.
func Supports(t Type, op Operator) bool {
	return slices.Contains(ValidOperators(t), op)
}

// Known reports whether op is any known operator.
func (op Operator) Known() bool {
	return slices.Contains(stringOperators, op) || slices.Contains(numericOperators, op)
}
