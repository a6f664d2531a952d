package processor

import (
	"context"
	"fmt"
	"slices"

	"github.com/samber/lo"

	"github.com/kailas-cloud/vfields/internal/domain/entity"
	"github.com/kailas-cloud/vfields/internal/domain/field"
	"github.com/kailas-cloud/vfields/internal/usecase/guard"
	"github.com/kailas-cloud/vfields/internal/usecase/monitor"
)

// Invalidate drops cached values of e. Named fields take the virtual fields that
// depend on them along; no names drops every field of e.
func (s *Service) Invalidate(ctx context.Context, e entity.Entity, fieldNames ...string) {
	if s.cache == nil {
		return
	}
	if len(fieldNames) == 0 {
		s.cache.InvalidateEntity(ctx, e)
		return
	}
	s.cache.InvalidateEntity(ctx, e, s.withDependents(fieldNames)...)
}

// InvalidateType drops cached values for every entity of a type.
func (s *Service) InvalidateType(ctx context.Context, entityType string, fieldNames ...string) {
	if s.cache == nil {
		return
	}
	if len(fieldNames) == 0 {
		s.cache.InvalidateType(ctx, entityType)
		return
	}
	s.cache.InvalidateType(ctx, entityType, s.withDependents(fieldNames)...)
}

// WarmCache precomputes cacheable fields (all of them when none are named) so
// later requests are served from the cache. Named fields that are not cacheable
// are skipped.
func (s *Service) WarmCache(ctx context.Context, entities []entity.Entity, fieldNames ...string) error {
	if s.cache == nil || len(entities) == 0 {
		return nil
	}

	var names []string
	if len(fieldNames) == 0 {
		names = lo.Map(s.reg.Cacheable(), func(d field.Definition, _ int) string { return d.Name() })
	} else {
		defs, err := s.definitions(fieldNames)
		if err != nil {
			return err
		}
		for _, d := range defs {
			if d.Cacheable() {
				names = append(names, d.Name())
			}
		}
	}
	if len(names) == 0 {
		return nil
	}

	_, err := guard.Monitored(s.guard, monitor.OpWarm, "", func() (int, error) {
		out, err := guard.ProcessBatches(ctx, s.guard, entities, 0,
			func(ctx context.Context, batch []entity.Entity) ([]struct{}, error) {
				_, err := s.computeColumns(ctx, names, batch)
				return nil, err
			})
		return out.Processed, err
	})
	if err != nil {
		return fmt.Errorf("warm cache: %w", err)
	}
	return nil
}

// withDependents extends names with every virtual field that depends on them, transitively.
func (s *Service) withDependents(names []string) []string {
	out := lo.Uniq(names)
	all := s.reg.All()
	for changed := true; changed; {
		changed = false
		for _, def := range all {
			if slices.Contains(out, def.Name()) {
				continue
			}
			if lo.Some(def.Dependencies(), out) {
				out = append(out, def.Name())
				changed = true
			}
		}
	}
	return out
}
