package field

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/vfields/internal/domain/entity"
)

// Computable produces the value of a virtual field for one entity.
// Implementations must not keep state shared across entities.
type Computable interface {
	Compute(ctx context.Context, e entity.Entity) (any, error)
}

// ComputeFunc adapts a function to Computable.
type ComputeFunc func(ctx context.Context, e entity.Entity) (any, error)

// Compute calls f.
func (f ComputeFunc) Compute(ctx context.Context, e entity.Entity) (any, error) {
	return f(ctx, e)
}

// Resolver gives compute functions access to other virtual fields of the same entity.
type Resolver interface {
	Resolve(ctx context.Context, name string, e entity.Entity) (any, error)
}

type resolverKey struct{}

// ContextWithResolver installs a resolver for nested virtual field lookups.
func ContextWithResolver(ctx context.Context, r Resolver) context.Context {
	return context.WithValue(ctx, resolverKey{}, r)
}

// Resolve returns the value of another virtual field for e.
// Falls back to an existing decoration when no resolver is installed.
func Resolve(ctx context.Context, name string, e entity.Entity) (any, error) {
	if r, ok := ctx.Value(resolverKey{}).(Resolver); ok {
		return r.Resolve(ctx, name, e)
	}
	if v, ok := e.Decoration(name); ok {
		return v, nil
	}
	return nil, fmt.Errorf("no resolver for virtual field %q", name)
}

// AsComputable converts the accepted callable shapes into a Computable.
func AsComputable(v any) (Computable, bool) {
	switch fn := v.(type) {
	case Computable:
		return fn, fn != nil
	case func(context.Context, entity.Entity) (any, error):
		return ComputeFunc(fn), fn != nil
	case func(entity.Entity) (any, error):
		if fn == nil {
			return nil, false
		}
		return ComputeFunc(func(_ context.Context, e entity.Entity) (any, error) { return fn(e) }), true
	case func(entity.Entity) any:
		if fn == nil {
			return nil, false
		}
		return ComputeFunc(func(_ context.Context, e entity.Entity) (any, error) { return fn(e), nil }), true
	default:
		return nil, false
	}
}
