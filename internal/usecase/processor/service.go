// Package processor computes, filters and sorts virtual fields over entity collections.
package processor

import (
	"context"
	"fmt"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/kailas-cloud/vfields/internal/domain"
	"github.com/kailas-cloud/vfields/internal/domain/entity"
	"github.com/kailas-cloud/vfields/internal/domain/field"
	"github.com/kailas-cloud/vfields/internal/repository/fieldcache"
	"github.com/kailas-cloud/vfields/internal/usecase/guard"
	"github.com/kailas-cloud/vfields/internal/usecase/monitor"
)

// MaxResolveDepth bounds nested virtual field lookups from compute functions.
const MaxResolveDepth = 32

// Service orchestrates virtual field evaluation.
type Service struct {
	reg     FieldRegistry
	guard   *guard.Guard
	cache   Cache
	monitor Monitor
	logger  *zap.Logger
}

// New creates a processor. Caching and monitoring are off until configured.
func New(reg FieldRegistry, g *guard.Guard, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		reg:     reg,
		guard:   g,
		monitor: nopMonitor{},
		logger:  logger,
	}
}

// WithCache enables result caching for cacheable fields.
func (s *Service) WithCache(c Cache) *Service {
	s.cache = c
	return s
}

// WithMonitor records every computation and cache lookup.
func (s *Service) WithMonitor(m Monitor) *Service {
	if m != nil {
		s.monitor = m
	}
	return s
}

// ComputeBatch returns field name -> entity key -> value for every requested pair.
// A failing nullable field yields its default value; a failing non-nullable field
// aborts with a ComputationError.
func (s *Service) ComputeBatch(
	ctx context.Context, fieldNames []string, entities []entity.Entity,
) (map[string]map[string]any, error) {
	fieldNames = lo.Uniq(fieldNames)
	return guard.Monitored(s.guard, monitor.OpBatch, "", func() (map[string]map[string]any, error) {
		cols, err := s.computeColumns(ctx, fieldNames, entities)
		if err != nil {
			return nil, err
		}
		out := make(map[string]map[string]any, len(fieldNames))
		for _, name := range fieldNames {
			byKey := make(map[string]any, len(entities))
			for i, e := range entities {
				byKey[e.Key()] = cols[name][i]
			}
			out[name] = byKey
		}
		return out, nil
	})
}

// ComputeForSelection decorates entities with the requested fields. Collections
// above the batch threshold go through the guard's batched path; in lenient mode
// a limit breach returns only the entities processed so far.
func (s *Service) ComputeForSelection(
	ctx context.Context, entities []entity.Entity, fieldNames []string,
) ([]entity.Entity, error) {
	fieldNames = lo.Uniq(fieldNames)
	if len(fieldNames) == 0 || len(entities) == 0 {
		return entities, nil
	}

	return guard.Monitored(s.guard, monitor.OpSelection, "", func() ([]entity.Entity, error) {
		cfg := s.guard.Config()
		if cfg.BatchThreshold <= 0 || len(entities) <= cfg.BatchThreshold {
			if err := s.decorate(ctx, fieldNames, entities); err != nil {
				return nil, err
			}
			return entities, nil
		}

		out, err := guard.ProcessBatches(ctx, s.guard, entities, cfg.BatchSize,
			func(ctx context.Context, batch []entity.Entity) ([]entity.Entity, error) {
				if err := s.decorate(ctx, fieldNames, batch); err != nil {
					return nil, err
				}
				return batch, nil
			})
		if err != nil {
			return nil, fmt.Errorf("compute for selection: %w", err)
		}
		if out.Partial {
			s.logger.Warn("Selection truncated by resource limit",
				zap.Int("processed", out.Processed),
				zap.Int("total", out.Total),
			)
		}
		return out.Results, nil
	})
}

// Evaluator returns a deferred evaluator over entities for fieldNames.
// With lazy evaluation disabled every field is computed immediately.
func (s *Service) Evaluator(
	ctx context.Context, entities []entity.Entity, fieldNames []string,
) (*guard.Lazy, error) {
	if err := s.checkKnown(fieldNames); err != nil {
		return nil, err
	}
	return s.guard.LazyEvaluate(ctx, entities, fieldNames, s.computeColumns)
}

func (s *Service) decorate(ctx context.Context, fieldNames []string, entities []entity.Entity) error {
	cols, err := s.computeColumns(ctx, fieldNames, entities)
	if err != nil {
		return err
	}
	for _, name := range fieldNames {
		for i, e := range entities {
			e.Decorate(name, cols[name][i])
		}
	}
	return nil
}

// computeColumns evaluates fields for entities, values aligned with entities.
// Cacheable fields are looked up with one batch read and written back with one batch write.
func (s *Service) computeColumns(
	ctx context.Context, fieldNames []string, entities []entity.Entity,
) (map[string][]any, error) {
	defs, err := s.definitions(fieldNames)
	if err != nil {
		return nil, err
	}
	ctx = s.withResolver(ctx)

	out := make(map[string][]any, len(defs))
	for _, def := range defs {
		vals := make([]any, len(entities))
		pending := lo.Range(len(entities))

		cached := s.cached(def)
		if cached {
			pending = pending[:0]
			for i, hit := range s.cache.RetrieveBatch(ctx, def, entities) {
				if hit.Found {
					vals[i] = hit.Value
					s.monitor.RecordCacheHit(def.Name())
					continue
				}
				s.monitor.RecordCacheMiss(def.Name())
				pending = append(pending, i)
			}
		}

		var fresh []fieldcache.Entry
		for _, i := range pending {
			v, computed, err := s.evaluate(ctx, def, entities[i])
			if err != nil {
				return nil, err
			}
			vals[i] = v
			if cached && computed {
				fresh = append(fresh, fieldcache.Entry{Entity: entities[i], Value: v})
			}
		}
		if len(fresh) > 0 {
			s.cache.StoreBatch(ctx, def, fresh, def.CacheTTL())
		}
		out[def.Name()] = vals
	}
	return out, nil
}

// value computes one field for one entity through the cache.
func (s *Service) value(ctx context.Context, def field.Definition, e entity.Entity) (any, error) {
	cached := s.cached(def)
	if cached {
		if v, ok := s.cache.Retrieve(ctx, def, e); ok {
			s.monitor.RecordCacheHit(def.Name())
			return v, nil
		}
		s.monitor.RecordCacheMiss(def.Name())
	}

	v, computed, err := s.evaluate(ctx, def, e)
	if err != nil {
		return nil, err
	}
	if cached && computed {
		s.cache.Store(ctx, def, e, v, def.CacheTTL())
	}
	return v, nil
}

// evaluate runs the compute function. computed is false when a failure was
// replaced by the field's default value; such values are never cached.
func (s *Service) evaluate(ctx context.Context, def field.Definition, e entity.Entity) (v any, computed bool, err error) {
	id := s.monitor.Start(monitor.OpComputation, def.Name())
	v, err = def.Computable().Compute(ctx, e)
	s.monitor.End(id, err)
	if err == nil {
		return v, true, nil
	}

	if def.Nullable() {
		s.logger.Debug("Virtual field computation failed, using default value",
			zap.String("field", def.Name()),
			zap.String("entity", entity.ScopeKey(e)),
			zap.Error(err),
		)
		return def.DefaultValue(), false, nil
	}
	return nil, false, &domain.ComputationError{Field: def.Name(), EntityKey: e.Key(), Err: err}
}

func (s *Service) cached(def field.Definition) bool {
	return s.cache != nil && def.Cacheable()
}

func (s *Service) definitions(names []string) ([]field.Definition, error) {
	defs := make([]field.Definition, 0, len(names))
	for _, name := range lo.Uniq(names) {
		def, ok := s.reg.Get(name)
		if !ok {
			return nil, fmt.Errorf("virtual field %q: %w", name, domain.ErrFieldNotFound)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func (s *Service) checkKnown(names []string) error {
	_, err := s.definitions(names)
	return err
}
