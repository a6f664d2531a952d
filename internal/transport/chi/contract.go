package chi

import (
	"context"

	"github.com/kailas-cloud/vfields/internal/domain/entity"
	"github.com/kailas-cloud/vfields/internal/domain/field"
	"github.com/kailas-cloud/vfields/internal/domain/filter"
	healthuc "github.com/kailas-cloud/vfields/internal/usecase/health"
	"github.com/kailas-cloud/vfields/internal/usecase/monitor"
)

// Processor evaluates virtual fields over request records (ISP).
type Processor interface {
	Filter(ctx context.Context, entities []entity.Entity, preds []filter.Predicate) ([]entity.Entity, error)
	Sort(ctx context.Context, entities []entity.Entity, fieldName string, dir filter.Direction) ([]entity.Entity, error)
	ComputeForSelection(ctx context.Context, entities []entity.Entity, fieldNames []string) ([]entity.Entity, error)
	Invalidate(ctx context.Context, e entity.Entity, fieldNames ...string)
	InvalidateType(ctx context.Context, entityType string, fieldNames ...string)
}

// FieldLister reads registered definitions.
type FieldLister interface {
	All() []field.Definition
	Get(name string) (field.Definition, bool)
}

// StatsReader reads monitor statistics.
type StatsReader interface {
	Statistics() monitor.Stats
	FieldMetrics(name string) (monitor.FieldStats, bool)
}

// HealthChecker reports component health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}
