package processor

import (
	"context"
	"fmt"
	"slices"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/kailas-cloud/vfields/internal/domain"
	"github.com/kailas-cloud/vfields/internal/domain/entity"
	"github.com/kailas-cloud/vfields/internal/domain/filter"
	"github.com/kailas-cloud/vfields/internal/usecase/guard"
	"github.com/kailas-cloud/vfields/internal/usecase/monitor"
)

// Filter keeps the entities matching the predicate chain, in input order.
// Each referenced field is computed at most once for the whole collection.
// A predicate whose operator the field does not enable matches nothing.
func (s *Service) Filter(
	ctx context.Context, entities []entity.Entity, preds []filter.Predicate,
) ([]entity.Entity, error) {
	if err := filter.ValidateAll(preds); err != nil {
		return nil, err
	}
	if len(preds) == 0 {
		return slices.Clone(entities), nil
	}

	enabled := make([]bool, len(preds))
	var names []string
	for i, p := range preds {
		def, ok := s.reg.Get(p.Field)
		if !ok {
			return nil, fmt.Errorf("filter on %q: %w", p.Field, domain.ErrFieldNotFound)
		}
		if !def.Supports(p.Operator) {
			s.logger.Warn("Unsupported filter operator, predicate matches nothing",
				zap.String("field", p.Field),
				zap.String("operator", string(p.Operator)),
			)
			continue
		}
		enabled[i] = true
		names = append(names, p.Field)
	}

	return guard.Monitored(s.guard, monitor.OpFilter, "", func() ([]entity.Entity, error) {
		lazy, err := s.guard.LazyEvaluate(ctx, entities, lo.Uniq(names), s.computeColumns)
		if err != nil {
			return nil, err
		}

		var evalErr error
		columns := make(map[string][]any)
		column := func(name string) []any {
			if col, ok := columns[name]; ok {
				return col
			}
			if evalErr != nil {
				return nil
			}
			res, err := lazy.Get(ctx, name)
			if err != nil {
				evalErr = err
				return nil
			}
			columns[name] = res[name]
			return res[name]
		}

		warned := make([]bool, len(preds))
		verdict := filter.Chain(preds, len(entities), func(pi, i int) bool {
			p := preds[pi]
			if !enabled[pi] {
				return false
			}
			col := column(p.Field)
			if col == nil {
				return false
			}
			ok, err := filter.Match(p.Operator, col[i], p.Value)
			if err != nil {
				if !warned[pi] {
					warned[pi] = true
					s.logger.Warn("Filter predicate failed, predicate matches nothing",
						zap.String("field", p.Field),
						zap.String("operator", string(p.Operator)),
						zap.Error(err),
					)
				}
				return false
			}
			return ok
		})
		if evalErr != nil {
			return nil, evalErr
		}

		out := make([]entity.Entity, 0, len(entities))
		for i, e := range entities {
			if verdict[i] {
				out = append(out, e)
			}
		}
		return out, nil
	})
}
