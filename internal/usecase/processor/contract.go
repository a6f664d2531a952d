package processor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/vfields/internal/domain/entity"
	"github.com/kailas-cloud/vfields/internal/domain/field"
	"github.com/kailas-cloud/vfields/internal/registry"
	"github.com/kailas-cloud/vfields/internal/repository/fieldcache"
	"github.com/kailas-cloud/vfields/internal/usecase/monitor"
)

// FieldRegistry reads field definitions.
type FieldRegistry interface {
	Get(name string) (field.Definition, bool)
	All() []field.Definition
	Cacheable() []field.Definition
	AllDependencies(names []string) registry.Dependencies
}

// Cache stores computed values per entity.
type Cache interface {
	Retrieve(ctx context.Context, def field.Definition, e entity.Entity) (any, bool)
	RetrieveBatch(ctx context.Context, def field.Definition, entities []entity.Entity) []fieldcache.Hit
	Store(ctx context.Context, def field.Definition, e entity.Entity, value any, ttl time.Duration)
	StoreBatch(ctx context.Context, def field.Definition, entries []fieldcache.Entry, ttl time.Duration)
	InvalidateEntity(ctx context.Context, e entity.Entity, fields ...string)
	InvalidateType(ctx context.Context, entityType string, fields ...string)
}

// Monitor records computations and cache lookups.
type Monitor interface {
	Start(opType, fieldName string, fields ...zap.Field) string
	End(id string, err error) (monitor.Record, bool)
	RecordCacheHit(fieldName string)
	RecordCacheMiss(fieldName string)
}

type nopMonitor struct{}

func (nopMonitor) Start(string, string, ...zap.Field) string { return "" }
func (nopMonitor) End(string, error) (monitor.Record, bool) { return monitor.Record{}, false }
func (nopMonitor) RecordCacheHit(string) {}
func (nopMonitor) RecordCacheMiss(string) {}
