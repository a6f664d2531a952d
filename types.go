package vfields

import (
	"github.com/kailas-cloud/vfields/internal/catalog"
	"github.com/kailas-cloud/vfields/internal/domain"
	"github.com/kailas-cloud/vfields/internal/domain/entity"
	"github.com/kailas-cloud/vfields/internal/domain/field"
	"github.com/kailas-cloud/vfields/internal/domain/filter"
	"github.com/kailas-cloud/vfields/internal/usecase/guard"
	"github.com/kailas-cloud/vfields/internal/usecase/monitor"
	"github.com/kailas-cloud/vfields/internal/usecase/validator"
)

// Entities and queries.
type (
	// Entity is a record the engine decorates with virtual field values.
	Entity = entity.Entity
	// Record is a map-backed Entity.
	Record = entity.Record
	// Query is the subset of a query builder OptimizeQuery needs.
	Query = entity.Query
	// SelectQuery is a minimal Query implementation.
	SelectQuery = entity.SelectQuery
)

// NewRecord creates a map-backed Entity.
func NewRecord(entityType, key string, attributes, relations map[string]any) *Record {
	return entity.NewRecord(entityType, key, attributes, relations)
}

// NewSelectQuery creates a SelectQuery for table. No columns selects all.
func NewSelectQuery(table string, columns ...string) *SelectQuery {
	return entity.NewSelectQuery(table, columns...)
}

// Field definitions.
type (
	// FieldType is the value type of a virtual field.
	FieldType = field.Type
	// Operator is a filter comparison operator.
	Operator = field.Operator
	// Computable produces a virtual field value for one entity.
	Computable = field.Computable
	// ComputeFunc adapts a function to Computable.
	ComputeFunc = field.ComputeFunc
	// Params is the typed input of Define.
	Params = field.Params
	// Definition is a registered virtual field.
	Definition = field.Definition
	// FieldConfig is untyped configuration: field name -> settings.
	FieldConfig = validator.RawConfig
	// FieldSpec declares a field backed by a built-in compute function.
	FieldSpec = catalog.Spec
	// FieldArgs are the parameters of a built-in compute function.
	FieldArgs = catalog.Args
)

// Field type constants.
const (
	String   = field.String
	Integer  = field.Integer
	Float    = field.Float
	Boolean  = field.Boolean
	Date     = field.Date
	DateTime = field.DateTime
	Enum     = field.Enum
	Array    = field.Array
	Object   = field.Object
)

// Operator constants.
const (
	Eq         = field.Eq
	Ne         = field.Ne
	Gt         = field.Gt
	Gte        = field.Gte
	Lt         = field.Lt
	Lte        = field.Lte
	Like       = field.Like
	NotLike    = field.NotLike
	StartsWith = field.StartsWith
	EndsWith   = field.EndsWith
	In         = field.In
	NotIn      = field.NotIn
	Between    = field.Between
	NotBetween = field.NotBetween
	Null       = field.Null
	NotNull    = field.NotNull
)

// Resolve reads another virtual field of e from inside a compute function.
var Resolve = field.Resolve

// Filtering and sorting.
type (
	// Predicate is one {field, operator, value, logic} filter clause.
	Predicate = filter.Predicate
	// Logic chains a predicate to the previous ones.
	Logic = filter.Logic
	// Direction is a sort direction.
	Direction = filter.Direction
	// LazyFields computes each of a fixed set of fields on first request.
	LazyFields = guard.Lazy
)

// Logic and direction constants.
const (
	And  = filter.And
	Or   = filter.Or
	Asc  = filter.Asc
	Desc = filter.Desc
)

// Statistics.
type (
	// Stats aggregates every monitored operation.
	Stats = monitor.Stats
	// FieldStats is the per-field breakdown.
	FieldStats = monitor.FieldStats
	// OperationRecord is one completed monitored operation.
	OperationRecord = monitor.Record
)

// EngineConfig holds every engine tunable.
type EngineConfig = domain.EngineConfig

// DefaultEngineConfig returns the defaults New starts from.
func DefaultEngineConfig() EngineConfig { return domain.DefaultEngineConfig() }
