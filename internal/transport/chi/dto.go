package chi

import (
	"time"

	"github.com/kailas-cloud/vfields/internal/domain/entity"
	"github.com/kailas-cloud/vfields/internal/domain/field"
	"github.com/kailas-cloud/vfields/internal/domain/filter"
	"github.com/kailas-cloud/vfields/internal/usecase/monitor"
)

// ErrorCode is a machine-readable error code.
type ErrorCode string

// Error codes.
const (
	CodeBadRequest          ErrorCode = "bad_request"
	CodeUnauthorized        ErrorCode = "unauthorized"
	CodeFieldNotFound       ErrorCode = "field_not_found"
	CodeInvalidPredicate    ErrorCode = "invalid_predicate"
	CodeUnsupportedOperator ErrorCode = "unsupported_operator"
	CodeConfiguration       ErrorCode = "configuration_error"
	CodeComputationFailed   ErrorCode = "computation_failed"
	CodeResourceExhausted   ErrorCode = "resource_exhausted"
	CodeInternalError       ErrorCode = "internal_error"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// RecordInput is one entity sent for evaluation.
type RecordInput struct {
	ID         string         `json:"id"`
	Attributes map[string]any `json:"attributes"`
	Relations  map[string]any `json:"relations,omitempty"`
}

// SortInput orders the evaluated records by a virtual field.
type SortInput struct {
	Field     string `json:"field"`
	Direction string `json:"direction,omitempty"`
}

// EvaluateRequest is the body of POST /v1/evaluate/{entityType}.
type EvaluateRequest struct {
	Records []RecordInput      `json:"records"`
	Select  []string           `json:"select,omitempty"`
	Filters []filter.Predicate `json:"filters,omitempty"`
	Sort    *SortInput         `json:"sort,omitempty"`
}

// RecordOutput is one evaluated entity.
type RecordOutput struct {
	ID         string         `json:"id"`
	Attributes map[string]any `json:"attributes"`
	Virtual    map[string]any `json:"virtual,omitempty"`
}

// EvaluateResponse lists the records that passed the filters, in result order.
type EvaluateResponse struct {
	Records []RecordOutput `json:"records"`
	Total   int            `json:"total"`
	Input   int            `json:"input"`
}

// InvalidateRequest is the body of POST /v1/cache/invalidate.
// Without ids every entity of the type is invalidated.
type InvalidateRequest struct {
	EntityType string   `json:"entity_type"`
	IDs        []string `json:"ids,omitempty"`
	Fields     []string `json:"fields,omitempty"`
}

// FieldResponse describes a registered virtual field.
type FieldResponse struct {
	Name         string   `json:"name"`
	Type         string   `json:"type"`
	Description  string   `json:"description,omitempty"`
	Dependencies []string `json:"dependencies"`
	Relations    []string `json:"relations"`
	Operators    []string `json:"operators"`
	Values       []any    `json:"values,omitempty"`
	Cacheable    bool     `json:"cacheable"`
	CacheTTLSec  int64    `json:"cache_ttl_sec,omitempty"`
	Nullable     bool     `json:"nullable"`
	DefaultValue any      `json:"default_value,omitempty"`
	Sortable     bool     `json:"sortable"`
	Searchable   bool     `json:"searchable"`
}

// FieldListResponse is the body of GET /v1/fields.
type FieldListResponse struct {
	Items []FieldResponse `json:"items"`
}

// OperationResponse is one recent monitored operation.
type OperationResponse struct {
	ID         string  `json:"id"`
	Type       string  `json:"type"`
	Start      string  `json:"start"`
	DurationMs float64 `json:"duration_ms"`
	Success    bool    `json:"success"`
	Error      string  `json:"error,omitempty"`
	Slow       bool    `json:"slow,omitempty"`
	MemoryDiff int64   `json:"memory_delta_bytes,omitempty"`
}

// FieldStatsResponse is the per-field breakdown.
type FieldStatsResponse struct {
	Field         string              `json:"field"`
	Operations    int64               `json:"operations"`
	Failures      int64               `json:"failures"`
	SlowCount     int64               `json:"slow_count"`
	AvgDurationMs float64             `json:"avg_duration_ms"`
	MinDurationMs float64             `json:"min_duration_ms"`
	MaxDurationMs float64             `json:"max_duration_ms"`
	CacheHits     int64               `json:"cache_hits"`
	CacheMisses   int64               `json:"cache_misses"`
	CacheHitRate  float64             `json:"cache_hit_rate"`
	Recent        []OperationResponse `json:"recent,omitempty"`
}

// StatsResponse is the body of GET /v1/stats.
type StatsResponse struct {
	TotalOperations int64                         `json:"total_operations"`
	Succeeded       int64                         `json:"succeeded"`
	Failed          int64                         `json:"failed"`
	SlowOperations  int64                         `json:"slow_operations"`
	Active          int                           `json:"active"`
	AvgDurationMs   float64                       `json:"avg_duration_ms"`
	MinDurationMs   float64                       `json:"min_duration_ms"`
	MaxDurationMs   float64                       `json:"max_duration_ms"`
	CacheHits       int64                         `json:"cache_hits"`
	CacheMisses     int64                         `json:"cache_misses"`
	CacheHitRate    float64                       `json:"cache_hit_rate"`
	Fields          map[string]FieldStatsResponse `json:"fields"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
	Fields int               `json:"fields"`
}

func recordsFromInput(entityType string, in []RecordInput) []entity.Entity {
	out := make([]entity.Entity, len(in))
	for i, r := range in {
		out[i] = entity.NewRecord(entityType, r.ID, r.Attributes, r.Relations)
	}
	return out
}

func recordToOutput(e entity.Entity, selected []string) RecordOutput {
	out := RecordOutput{ID: e.Key()}
	if r, ok := e.(*entity.Record); ok {
		out.Attributes = r.Attributes()
	}
	if len(selected) > 0 {
		out.Virtual = make(map[string]any, len(selected))
		for _, name := range selected {
			v, _ := e.Decoration(name)
			out.Virtual[name] = v
		}
	}
	return out
}

func fieldToResponse(d field.Definition) FieldResponse {
	ops := d.Operators()
	names := make([]string, len(ops))
	for i, op := range ops {
		names[i] = string(op)
	}
	return FieldResponse{
		Name:         d.Name(),
		Type:         string(d.FieldType()),
		Description:  d.Description(),
		Dependencies: nonNil(d.Dependencies()),
		Relations:    nonNil(d.Relations()),
		Operators:    names,
		Values:       d.Values(),
		Cacheable:    d.Cacheable(),
		CacheTTLSec:  int64(d.CacheTTL() / time.Second),
		Nullable:     d.Nullable(),
		DefaultValue: d.DefaultValue(),
		Sortable:     d.Sortable(),
		Searchable:   d.Searchable(),
	}
}

func statsToResponse(s monitor.Stats) StatsResponse {
	fields := make(map[string]FieldStatsResponse, len(s.Fields))
	for name, fs := range s.Fields {
		fields[name] = fieldStatsToResponse(fs)
	}
	return StatsResponse{
		TotalOperations: s.TotalOperations,
		Succeeded:       s.Succeeded,
		Failed:          s.Failed,
		SlowOperations:  s.SlowOperations,
		Active:          s.Active,
		AvgDurationMs:   ms(s.AvgDuration),
		MinDurationMs:   ms(s.MinDuration),
		MaxDurationMs:   ms(s.MaxDuration),
		CacheHits:       s.CacheHits,
		CacheMisses:     s.CacheMisses,
		CacheHitRate:    s.CacheHitRate,
		Fields:          fields,
	}
}

func fieldStatsToResponse(fs monitor.FieldStats) FieldStatsResponse {
	recent := make([]OperationResponse, len(fs.Recent))
	for i, r := range fs.Recent {
		recent[i] = OperationResponse{
			ID:         r.ID,
			Type:       r.Type,
			Start:      r.Start.UTC().Format(time.RFC3339Nano),
			DurationMs: ms(r.Duration),
			Success:    r.Success,
			Error:      r.Err,
			Slow:       r.Slow,
			MemoryDiff: r.MemoryDelta,
		}
	}
	return FieldStatsResponse{
		Field:         fs.Field,
		Operations:    fs.Operations,
		Failures:      fs.Failures,
		SlowCount:     fs.SlowCount,
		AvgDurationMs: ms(fs.AvgDuration),
		MinDurationMs: ms(fs.MinDuration),
		MaxDurationMs: ms(fs.MaxDuration),
		CacheHits:     fs.CacheHits,
		CacheMisses:   fs.CacheMisses,
		CacheHitRate:  fs.CacheHitRate,
		Recent:        recent,
	}
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
