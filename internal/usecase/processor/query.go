package processor

import (
	"github.com/samber/lo"

	"github.com/kailas-cloud/vfields/internal/domain/entity"
)

// OptimizeQuery adds the base columns and eager loads needed to compute fieldNames.
// It only ever adds: existing columns and relations are not repeated, and a query
// selecting all columns gets no explicit projection.
func (s *Service) OptimizeQuery(q entity.Query, fieldNames []string) entity.Query {
	deps := s.reg.AllDependencies(fieldNames)

	if !q.SelectsAll() {
		if missing := lo.Without(deps.BaseFields, q.Columns()...); len(missing) > 0 {
			q.AddColumns(missing...)
		}
	}

	missing := lo.Filter(deps.Relations, func(rel string, _ int) bool { return !q.HasEagerLoad(rel) })
	if len(missing) > 0 {
		q.AddEagerLoad(missing...)
	}
	return q
}
