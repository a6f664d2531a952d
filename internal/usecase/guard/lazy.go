package guard

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/samber/lo"

	"github.com/kailas-cloud/vfields/internal/domain"
	"github.com/kailas-cloud/vfields/internal/domain/entity"
)

// BatchFunc computes fields for entities. Each field maps to values aligned with entities.
type BatchFunc func(ctx context.Context, fields []string, entities []entity.Entity) (map[string][]any, error)

// Lazy defers computation of a known field set until fields are requested.
// Each field is computed at most once. Safe for concurrent use.
type Lazy struct {
	entities  []entity.Entity
	available []string
	compute   BatchFunc

	mu      sync.Mutex
	results map[string][]any
}

// LazyEvaluate prepares a deferred evaluator over entities for allFields.
// With lazy evaluation disabled every field is computed up front.
func (g *Guard) LazyEvaluate(
	ctx context.Context,
	entities []entity.Entity,
	allFields []string,
	compute BatchFunc,
) (*Lazy, error) {
	l := &Lazy{
		entities:  entities,
		available: lo.Uniq(allFields),
		compute:   compute,
		results:   make(map[string][]any),
	}
	if !g.cfg.LazyEvaluation {
		if _, err := l.Get(ctx, l.available...); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// Get returns values for the requested fields, computing only those not yet computed.
func (l *Lazy) Get(ctx context.Context, fields ...string) (map[string][]any, error) {
	for _, name := range fields {
		if !slices.Contains(l.available, name) {
			return nil, fmt.Errorf("lazy field %q: %w", name, domain.ErrFieldNotFound)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	missing := lo.Filter(lo.Uniq(fields), func(name string, _ int) bool {
		_, done := l.results[name]
		return !done
	})
	if len(missing) > 0 {
		computed, err := l.compute(ctx, missing, l.entities)
		if err != nil {
			return nil, err
		}
		for _, name := range missing {
			l.results[name] = computed[name]
		}
	}

	out := make(map[string][]any, len(fields))
	for _, name := range fields {
		out[name] = l.results[name]
	}
	return out, nil
}

// Computed lists the fields evaluated so far, in declaration order.
func (l *Lazy) Computed() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return lo.Filter(l.available, func(name string, _ int) bool {
		_, done := l.results[name]
		return done
	})
}
