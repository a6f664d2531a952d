package filter

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/kailas-cloud/vfields/internal/domain"
	"github.com/kailas-cloud/vfields/internal/domain/field"
	"github.com/kailas-cloud/vfields/internal/domain/value"
)

// ListSeparator splits string-encoded value lists for in/not_in/between.
const ListSeparator = ","

// Match evaluates actual <op> expected. Comparisons against a null actual are
// false for every operator except null, matching SQL three-valued logic.
func Match(op field.Operator, actual, expected any) (bool, error) {
	switch op {
	case field.Null:
		return value.IsNull(actual), nil
	case field.NotNull:
		return !value.IsNull(actual), nil
	}

	if !op.Known() {
		return false, fmt.Errorf("%w: %q", domain.ErrUnsupportedOperator, op)
	}
	if value.IsNull(actual) {
		return false, nil
	}

	switch op {
	case field.Eq:
		return value.Equal(actual, expected), nil
	case field.Ne:
		return !value.Equal(actual, expected), nil
	case field.Gt, field.Gte, field.Lt, field.Lte:
		return compare(op, actual, expected), nil
	case field.Like:
		return strings.Contains(fold(actual), fold(stripWildcards(expected))), nil
	case field.NotLike:
		return !strings.Contains(fold(actual), fold(stripWildcards(expected))), nil
	case field.StartsWith:
		return strings.HasPrefix(fold(actual), fold(expected)), nil
	case field.EndsWith:
		return strings.HasSuffix(fold(actual), fold(expected)), nil
	case field.In:
		return contains(List(expected), actual), nil
	case field.NotIn:
		return !contains(List(expected), actual), nil
	case field.Between, field.NotBetween:
		lo, hi, err := Bounds(expected)
		if err != nil {
			return false, err
		}
		inside := compare(field.Gte, actual, lo) && compare(field.Lte, actual, hi)
		if op == field.NotBetween {
			return !inside, nil
		}
		return inside, nil
	}
	return false, fmt.Errorf("%w: %q", domain.ErrUnsupportedOperator, op)
}

func compare(op field.Operator, actual, expected any) bool {
	c, ok := value.Compare(actual, expected)
	if !ok || value.IsNull(expected) {
		return false
	}
	switch op {
	case field.Gt:
		return c > 0
	case field.Gte:
		return c >= 0
	case field.Lt:
		return c < 0
	case field.Lte:
		return c <= 0
	}
	return false
}

func fold(v any) string { return strings.ToLower(value.ToString(v)) }

func stripWildcards(v any) string {
	return strings.NewReplacer("*", "", "%", "").Replace(value.ToString(v))
}

func contains(list []any, actual any) bool {
	for _, candidate := range list {
		if value.Equal(actual, candidate) {
			return true
		}
	}
	return false
}

// List normalises a filter value into a list: slices pass through,
// strings are split on ListSeparator, scalars become a one-element list.
func List(v any) []any {
	if value.IsNull(v) {
		return nil
	}
	if s, ok := v.(string); ok {
		parts := strings.Split(s, ListSeparator)
		out := make([]any, 0, len(parts))
		for _, p := range parts {
			out = append(out, strings.TrimSpace(p))
		}
		return out
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out
	}
	return []any{v}
}

// Bounds extracts the inclusive [lo, hi] pair of a between filter.
func Bounds(v any) (lo, hi any, err error) {
	list := List(v)
	if len(list) != 2 {
		return nil, nil, fmt.Errorf("between requires exactly two values, got %d: %w", len(list), domain.ErrInvalidPredicate)
	}
	return list[0], list[1], nil
}
