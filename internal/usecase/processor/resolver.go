package processor

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/vfields/internal/domain"
	"github.com/kailas-cloud/vfields/internal/domain/entity"
	"github.com/kailas-cloud/vfields/internal/domain/field"
)

type depthKey struct{}

// resolver serves field.Resolve calls made from inside compute functions.
type resolver struct {
	s *Service
}

func (s *Service) withResolver(ctx context.Context) context.Context {
	return field.ContextWithResolver(ctx, resolver{s: s})
}

// Resolve computes another virtual field of e, through the cache and with
// the same default-value policy as a top-level computation.
func (r resolver) Resolve(ctx context.Context, name string, e entity.Entity) (any, error) {
	def, ok := r.s.reg.Get(name)
	if !ok {
		return nil, fmt.Errorf("virtual field %q: %w", name, domain.ErrFieldNotFound)
	}

	depth, _ := ctx.Value(depthKey{}).(int)
	if depth >= MaxResolveDepth {
		return nil, fmt.Errorf("virtual field %q: nesting deeper than %d", name, MaxResolveDepth)
	}
	return r.s.value(context.WithValue(ctx, depthKey{}, depth+1), def, e)
}
