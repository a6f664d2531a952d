package catalog

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kailas-cloud/vfields/internal/domain/entity"
	"github.com/kailas-cloud/vfields/internal/domain/field"
	"github.com/kailas-cloud/vfields/internal/domain/value"
)

var (
	errAttributeRequired  = errors.New("args.attribute is required")
	errAttributesRequired = errors.New("args.attributes must list at least one attribute")
	errRelationRequired   = errors.New("args.relation is required")
	errLengthSource       = errors.New("args requires exactly one of field or attribute")
)

var builtins = map[string]Builder{
	"concat":       concat,
	"email_domain": emailDomain,
	"length":       length,
	"lower":        transform(strings.ToLower),
	"upper":        transform(strings.ToUpper),
	"coalesce":     coalesce,
	"count":        count,
	"sum":          sum,
	"days_since":   daysSince,
}

func concat(args Args, _ func() time.Time) (Function, error) {
	if len(args.Attributes) == 0 {
		return Function{}, errAttributesRequired
	}
	sep := " "
	if args.Separator != nil {
		sep = *args.Separator
	}
	attrs := args.Attributes
	return Function{
		Dependencies: attrs,
		Compute: field.ComputeFunc(func(_ context.Context, e entity.Entity) (any, error) {
			parts := make([]string, 0, len(attrs))
			for _, a := range attrs {
				if v, ok := e.Attribute(a); ok && !value.IsNull(v) {
					if s := value.ToString(v); s != "" {
						parts = append(parts, s)
					}
				}
			}
			if len(parts) == 0 {
				return nil, nil
			}
			return strings.Join(parts, sep), nil
		}),
	}, nil
}

func emailDomain(args Args, _ func() time.Time) (Function, error) {
	if args.Attribute == "" {
		return Function{}, errAttributeRequired
	}
	attr := args.Attribute
	return Function{
		Dependencies: []string{attr},
		Compute: field.ComputeFunc(func(_ context.Context, e entity.Entity) (any, error) {
			v, ok := e.Attribute(attr)
			if !ok || value.IsNull(v) {
				return nil, nil
			}
			_, domainPart, found := strings.Cut(value.ToString(v), "@")
			if !found || domainPart == "" {
				return nil, nil
			}
			return strings.ToLower(domainPart), nil
		}),
	}, nil
}

// length counts characters of an attribute or of another virtual field.
func length(args Args, _ func() time.Time) (Function, error) {
	if (args.Field == "") == (args.Attribute == "") {
		return Function{}, errLengthSource
	}
	fieldName, attr := args.Field, args.Attribute
	dep := attr
	if fieldName != "" {
		dep = fieldName
	}
	return Function{
		Dependencies: []string{dep},
		Compute: field.ComputeFunc(func(ctx context.Context, e entity.Entity) (any, error) {
			var v any
			if fieldName != "" {
				resolved, err := field.Resolve(ctx, fieldName, e)
				if err != nil {
					return nil, err
				}
				v = resolved
			} else {
				v, _ = e.Attribute(attr)
			}
			if value.IsNull(v) {
				return nil, nil
			}
			return utf8.RuneCountInString(value.ToString(v)), nil
		}),
	}, nil
}

func transform(fn func(string) string) Builder {
	return func(args Args, _ func() time.Time) (Function, error) {
		if args.Attribute == "" {
			return Function{}, errAttributeRequired
		}
		attr := args.Attribute
		return Function{
			Dependencies: []string{attr},
			Compute: field.ComputeFunc(func(_ context.Context, e entity.Entity) (any, error) {
				v, ok := e.Attribute(attr)
				if !ok || value.IsNull(v) {
					return nil, nil
				}
				return fn(value.ToString(v)), nil
			}),
		}, nil
	}
}

func coalesce(args Args, _ func() time.Time) (Function, error) {
	if len(args.Attributes) == 0 {
		return Function{}, errAttributesRequired
	}
	attrs := args.Attributes
	return Function{
		Dependencies: attrs,
		Compute: field.ComputeFunc(func(_ context.Context, e entity.Entity) (any, error) {
			for _, a := range attrs {
				if v, ok := e.Attribute(a); ok && !value.IsNull(v) {
					return v, nil
				}
			}
			return nil, nil
		}),
	}, nil
}

func count(args Args, _ func() time.Time) (Function, error) {
	if args.Relation == "" {
		return Function{}, errRelationRequired
	}
	rel := args.Relation
	return Function{
		Relations: []string{rel},
		Compute: field.ComputeFunc(func(_ context.Context, e entity.Entity) (any, error) {
			v, _ := e.Relation(rel)
			return len(items(v)), nil
		}),
	}, nil
}

func sum(args Args, _ func() time.Time) (Function, error) {
	if args.Relation == "" {
		return Function{}, errRelationRequired
	}
	if args.Attribute == "" {
		return Function{}, errAttributeRequired
	}
	rel, attr := args.Relation, args.Attribute
	return Function{
		Relations: []string{rel},
		Compute: field.ComputeFunc(func(_ context.Context, e entity.Entity) (any, error) {
			v, _ := e.Relation(rel)
			var total float64
			for _, item := range items(v) {
				if f, ok := value.ToFloat(attribute(item, attr)); ok {
					total += f
				}
			}
			return total, nil
		}),
	}, nil
}

func daysSince(args Args, now func() time.Time) (Function, error) {
	if args.Attribute == "" {
		return Function{}, errAttributeRequired
	}
	attr := args.Attribute
	return Function{
		Dependencies: []string{attr},
		Compute: field.ComputeFunc(func(_ context.Context, e entity.Entity) (any, error) {
			v, ok := e.Attribute(attr)
			if !ok || value.IsNull(v) {
				return nil, nil
			}
			t, ok := value.ToTime(v)
			if !ok {
				return nil, errors.New("not a date: " + value.ToString(v))
			}
			return int(now().Sub(t).Hours() / 24), nil
		}),
	}, nil
}

// items flattens a loaded relation into its elements. A single related
// record counts as one element; nil counts as none.
func items(v any) []any {
	if value.IsNull(v) {
		return nil
	}
	switch list := v.(type) {
	case []any:
		return list
	case []entity.Entity:
		out := make([]any, len(list))
		for i, e := range list {
			out[i] = e
		}
		return out
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return []any{v}
	}
	out := make([]any, rv.Len())
	for i := range rv.Len() {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

func attribute(item any, name string) any {
	switch it := item.(type) {
	case entity.Entity:
		v, _ := it.Attribute(name)
		return v
	case map[string]any:
		return it[name]
	}
	return nil
}
