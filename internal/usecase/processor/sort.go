package processor

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/kailas-cloud/vfields/internal/domain"
	"github.com/kailas-cloud/vfields/internal/domain/entity"
	"github.com/kailas-cloud/vfields/internal/domain/filter"
	"github.com/kailas-cloud/vfields/internal/domain/value"
	"github.com/kailas-cloud/vfields/internal/usecase/guard"
	"github.com/kailas-cloud/vfields/internal/usecase/monitor"
)

// Sort orders entities by a sortable virtual field. The sort is stable and nulls
// come first in ascending order. Collections above the sort limit fail in strict
// mode and come back unsorted in lenient mode.
func (s *Service) Sort(
	ctx context.Context, entities []entity.Entity, fieldName string, dir filter.Direction,
) ([]entity.Entity, error) {
	def, ok := s.reg.Get(fieldName)
	if !ok {
		return nil, fmt.Errorf("sort by %q: %w", fieldName, domain.ErrFieldNotFound)
	}
	if !def.Sortable() {
		return nil, fmt.Errorf("virtual field %q is not sortable: %w", fieldName, domain.ErrInvalidPredicate)
	}
	if dir != filter.Asc && dir != filter.Desc {
		return nil, fmt.Errorf("sort direction %q: %w", dir, domain.ErrInvalidPredicate)
	}

	sortable, err := s.guard.CheckSortSize(len(entities))
	if err != nil {
		return nil, fmt.Errorf("sort by %q: %w", fieldName, err)
	}
	if !sortable {
		return slices.Clone(entities), nil
	}

	return guard.Monitored(s.guard, monitor.OpSort, fieldName, func() ([]entity.Entity, error) {
		cols, err := s.computeColumns(ctx, []string{fieldName}, entities)
		if err != nil {
			return nil, err
		}
		vals := cols[fieldName]

		idx := make([]int, len(entities))
		for i := range idx {
			idx[i] = i
		}
		sort.SliceStable(idx, func(a, b int) bool {
			c := compare(vals[idx[a]], vals[idx[b]])
			if dir == filter.Desc {
				return c > 0
			}
			return c < 0
		})

		out := make([]entity.Entity, len(entities))
		for i, j := range idx {
			out[i] = entities[j]
		}
		return out, nil
	})
}

// Value classes in sort order. Values of different classes order by class.
const (
	classNull = iota
	classBool
	classNumber
	classTime
	classText
)

func classOf(v any) int {
	if value.IsNull(v) {
		return classNull
	}
	switch v.(type) {
	case bool:
		return classBool
	case time.Time:
		return classTime
	case string:
		return classText
	}
	if _, ok := value.ToFloat(v); ok {
		return classNumber
	}
	return classText
}

// compare is a total order over field values: class first, then natural order
// within the class. Strings always compare as text.
func compare(a, b any) int {
	ca, cb := classOf(a), classOf(b)
	if ca != cb {
		return cmp.Compare(ca, cb)
	}
	switch ca {
	case classNull:
		return 0
	case classBool:
		x, y := a.(bool), b.(bool)
		switch {
		case x == y:
			return 0
		case x:
			return 1
		default:
			return -1
		}
	case classNumber:
		x, _ := value.ToFloat(a)
		y, _ := value.ToFloat(b)
		return cmp.Compare(x, y)
	case classTime:
		return a.(time.Time).Compare(b.(time.Time))
	default:
		return cmp.Compare(value.ToString(a), value.ToString(b))
	}
}
