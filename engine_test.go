package vfields

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	e, err := New(context.Background(), opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(e.Close)
	return e
}

func users() []Entity {
	return []Entity{
		NewRecord("users", "1", map[string]any{"first_name": "John", "last_name": "Doe", "email": "john@example.com"}, nil),
		NewRecord("users", "2", map[string]any{"first_name": "Jane", "last_name": "Smith", "email": "jane@gmail.com"}, nil),
		NewRecord("users", "3", map[string]any{"first_name": "Bob", "last_name": "Lee", "email": "bob@example.com"}, nil),
	}
}

func userKeys(entities []Entity) []string {
	out := make([]string, len(entities))
	for i, e := range entities {
		out[i] = e.Key()
	}
	return out
}

func registerUserFields(t *testing.T, e *Engine) {
	t.Helper()
	err := e.RegisterSpecs(map[string]FieldSpec{
		"full_name": {
			Compute:  "concat",
			Args:     FieldArgs{Attributes: []string{"first_name", "last_name"}},
			Settings: map[string]any{"type": "string", "cacheable": true, "sortable": true},
		},
		"email_domain": {
			Compute:  "email_domain",
			Args:     FieldArgs{Attribute: "email"},
			Settings: map[string]any{"type": "string", "operators": []any{"eq", "ne", "in"}},
		},
		"name_length": {
			Compute:  "length",
			Args:     FieldArgs{Field: "full_name"},
			Settings: map[string]any{"type": "integer", "sortable": true},
		},
	})
	if err != nil {
		t.Fatalf("RegisterSpecs: %v", err)
	}
}

func TestNew_Drivers(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
		want string
	}{
		{"redis without address", []Option{WithRedis()}, "redis address required"},
		{"valkey without address", []Option{WithValkey(), WithPassword("x")}, "valkey address required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(context.Background(), tt.opts...)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("New() error = %v, want %q", err, tt.want)
			}
		})
	}

	if _, err := createStore(&engineConfig{driver: "memcached"}); err == nil {
		t.Error("expected unknown driver error")
	}
}

func TestNew_AppliesOptions(t *testing.T) {
	cfg := defaultEngineConfig()
	for _, o := range []Option{
		WithKeyPrefix("app:"),
		WithDefaultTTL(time.Minute),
		WithBatchSize(10),
		WithBatchThreshold(20),
		WithMemoryLimit(1 << 20),
		WithTimeLimit(time.Second),
		WithStrictLimits(false),
		WithLazyEvaluation(true),
		WithMaxSortRecords(5),
		WithSortMode(SortLenient),
		WithSlowThreshold(time.Millisecond),
		WithHistorySize(7),
		WithMemoryTracking(),
		WithStandalone(),
	} {
		o.apply(cfg)
	}

	got := cfg.engine
	if cfg.keyPrefix != "app:" || !cfg.standalone {
		t.Errorf("prefix=%q standalone=%v", cfg.keyPrefix, cfg.standalone)
	}
	if got.DefaultCacheTTL != time.Minute || got.BatchSize != 10 || got.BatchThreshold != 20 {
		t.Errorf("ttl/batch = %v/%d/%d", got.DefaultCacheTTL, got.BatchSize, got.BatchThreshold)
	}
	if got.MemoryLimit != 1<<20 || got.TimeLimit != time.Second || got.StrictLimits {
		t.Errorf("limits = %d/%v/%v", got.MemoryLimit, got.TimeLimit, got.StrictLimits)
	}
	if !got.LazyEvaluation || got.MaxSortRecords != 5 || !got.LenientSort {
		t.Errorf("lazy/sort = %v/%d/%v", got.LazyEvaluation, got.MaxSortRecords, got.LenientSort)
	}
	if got.SlowThreshold != time.Millisecond || got.HistorySize != 7 || !got.TrackMemory {
		t.Errorf("monitor = %v/%d/%v", got.SlowThreshold, got.HistorySize, got.TrackMemory)
	}
}

func TestNew_WithPrometheus(t *testing.T) {
	reg := prometheus.NewRegistry()
	newTestEngine(t, WithPrometheus(reg))
	newTestEngine(t, WithPrometheus(reg))
}

func TestEngine_ObservesCalls(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	e := newTestEngine(t, WithPrometheus(reg))
	registerUserFields(t, e)

	if _, err := e.Filter(ctx, users(), nil); err != nil {
		t.Fatalf("Filter: %v", err)
	}
	if _, err := e.Sort(ctx, users(), "missing", Asc); err == nil {
		t.Fatal("expected sort error")
	}

	if got := testutil.ToFloat64(e.obs.metrics.calls.WithLabelValues("filter", "ok")); got != 1 {
		t.Errorf("filter ok = %v, want 1", got)
	}
	if got := testutil.ToFloat64(e.obs.metrics.calls.WithLabelValues("sort", "error")); got != 1 {
		t.Errorf("sort error = %v, want 1", got)
	}
}

func TestRegisterOrReuse_IncompatibleType(t *testing.T) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "vfields", Subsystem: "sdk", Name: "calls_total", Help: "Engine calls by method and status.",
	}))

	if _, err := newCallMetrics(reg); err == nil {
		t.Error("expected incompatible collector error")
	}
}

func TestEngine_SelectionScenario(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	registerUserFields(t, e)

	out, err := e.ComputeForSelection(ctx, users(), []string{"full_name", "email_domain"})
	if err != nil {
		t.Fatalf("ComputeForSelection: %v", err)
	}
	v, _ := out[0].Decoration("full_name")
	d, _ := out[1].Decoration("email_domain")
	if v != "John Doe" || d != "gmail.com" {
		t.Errorf("decorations = %v, %v", v, d)
	}

	batch, err := e.ComputeBatch(ctx, []string{"name_length"}, users())
	if err != nil {
		t.Fatalf("ComputeBatch: %v", err)
	}
	if batch["name_length"]["2"] != 10 {
		t.Errorf("name_length of Jane Smith = %v", batch["name_length"]["2"])
	}
}

func TestEngine_EvaluatorDefersUntilGet(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, WithLazyEvaluation(true))
	registerUserFields(t, e)

	lazy, err := e.Evaluator(ctx, users(), []string{"full_name", "name_length"})
	if err != nil {
		t.Fatalf("Evaluator: %v", err)
	}
	if len(lazy.Computed()) != 0 {
		t.Errorf("computed before Get: %v", lazy.Computed())
	}
	vals, err := lazy.Get(ctx, "name_length")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if vals["name_length"][1] != 10 {
		t.Errorf("name_length = %v", vals["name_length"])
	}
	if !slices.Equal(lazy.Computed(), []string{"name_length"}) {
		t.Errorf("computed = %v", lazy.Computed())
	}

	eager := newTestEngine(t, WithLazyEvaluation(false))
	registerUserFields(t, eager)
	all, err := eager.Evaluator(ctx, users(), []string{"full_name"})
	if err != nil {
		t.Fatalf("Evaluator: %v", err)
	}
	if !slices.Equal(all.Computed(), []string{"full_name"}) {
		t.Errorf("eager computed = %v", all.Computed())
	}

	if _, err := e.Evaluator(ctx, users(), []string{"ghost"}); !errors.Is(err, ErrFieldNotFound) {
		t.Errorf("unknown field: %v", err)
	}
}

func TestEngine_FilterAndSort(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	registerUserFields(t, e)

	kept, err := e.Filter(ctx, users(), []Predicate{
		{Field: "email_domain", Operator: Eq, Value: "example.com"},
	})
	if err != nil {
		t.Fatalf("Filter: %v", err)
	}
	if !slices.Equal(userKeys(kept), []string{"1", "3"}) {
		t.Errorf("filtered = %v", userKeys(kept))
	}

	sorted, err := e.Sort(ctx, users(), "name_length", Desc)
	if err != nil {
		t.Fatalf("Sort: %v", err)
	}
	// Jane Smith (10), John Doe (8), Bob Lee (7)
	if !slices.Equal(userKeys(sorted), []string{"2", "1", "3"}) {
		t.Errorf("sorted = %v", userKeys(sorted))
	}

	if _, err := e.Sort(ctx, users(), "email_domain", Asc); !errors.Is(err, ErrInvalidPredicate) {
		t.Errorf("sort by non-sortable field: %v", err)
	}
}

func TestEngine_DefineRejectsCycle(t *testing.T) {
	e := newTestEngine(t)
	compute := ComputeFunc(func(context.Context, Entity) (any, error) { return 1, nil })

	if err := e.Define("a", Params{Type: Integer, Compute: compute, Dependencies: []string{"b"}}); err != nil {
		t.Fatalf("define a: %v", err)
	}
	err := e.Define("b", Params{Type: Integer, Compute: compute, Dependencies: []string{"a"}})

	var cfgErrs ConfigErrors
	if !errors.As(err, &cfgErrs) || !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ConfigErrors, got %v", err)
	}
	if _, ok := e.Field("b"); ok {
		t.Error("b must not be registered")
	}
	if len(e.Fields()) != 1 {
		t.Errorf("fields = %d", len(e.Fields()))
	}
}

func TestEngine_RegisterSpecsMergesErrors(t *testing.T) {
	e := newTestEngine(t)
	err := e.RegisterSpecs(map[string]FieldSpec{
		"unknown_fn": {Compute: "soundex", Settings: map[string]any{"type": "string"}},
		"bad_type":   {Compute: "lower", Args: FieldArgs{Attribute: "email"}, Settings: map[string]any{"type": "money"}},
		"ok":         {Compute: "upper", Args: FieldArgs{Attribute: "email"}, Settings: map[string]any{"type": "string"}},
	})

	var cfgErrs ConfigErrors
	if !errors.As(err, &cfgErrs) {
		t.Fatalf("expected ConfigErrors, got %v", err)
	}
	fields := cfgErrs.Fields()
	slices.Sort(fields)
	if !slices.Equal(fields, []string{"bad_type", "unknown_fn"}) {
		t.Errorf("rejected = %v", fields)
	}
	if _, ok := e.Field("ok"); !ok {
		t.Error("ok must be registered")
	}
}

func TestEngine_CacheAndStatistics(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	registerUserFields(t, e)
	all := users()

	if err := e.WarmCache(ctx, all); err != nil {
		t.Fatalf("WarmCache: %v", err)
	}
	if _, err := e.ComputeBatch(ctx, []string{"full_name"}, all); err != nil {
		t.Fatalf("ComputeBatch: %v", err)
	}

	stats := e.Statistics()
	if stats.CacheHits < 3 {
		t.Errorf("expected warmed values to be hits, got %d hits", stats.CacheHits)
	}
	fs, ok := e.FieldMetrics("full_name")
	if !ok || fs.CacheHits < 3 {
		t.Errorf("full_name metrics = %+v", fs)
	}

	e.Invalidate(ctx, all[0])
	e.InvalidateType(ctx, "users", "full_name")
	e.FlushCache(ctx)

	e.ResetStatistics()
	if got := e.Statistics(); got.TotalOperations != 0 || len(e.History()) != 0 {
		t.Errorf("after reset: %+v", got)
	}
}

func TestEngine_OptimizeQuery(t *testing.T) {
	e := newTestEngine(t)
	registerUserFields(t, e)

	q := e.OptimizeQuery(NewSelectQuery("users", "id", "email"), []string{"full_name", "name_length"})
	if !slices.Equal(q.Columns(), []string{"id", "email", "first_name", "last_name"}) {
		t.Errorf("columns = %v", q.Columns())
	}
}

func TestEngine_Health(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	if e.Healthy(ctx) {
		t.Error("engine without fields must not be healthy")
	}
	registerUserFields(t, e)
	if !e.Healthy(ctx) {
		t.Error("expected healthy engine")
	}
	if err := e.Ping(ctx); err != nil {
		t.Errorf("Ping with in-process cache: %v", err)
	}
}
