package processor

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"

	"github.com/kailas-cloud/vfields/internal/domain"
	"github.com/kailas-cloud/vfields/internal/domain/entity"
	"github.com/kailas-cloud/vfields/internal/domain/field"
	"github.com/kailas-cloud/vfields/internal/domain/filter"
)

func TestComputeForSelection_FullName(t *testing.T) {
	h := newHarness(t, domain.DefaultEngineConfig())
	h.defineNames(t)

	out, err := h.svc.ComputeForSelection(context.Background(), people(), []string{"full_name"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got []any
	for _, e := range out {
		v, _ := e.Decoration("full_name")
		got = append(got, v)
	}
	if !slices.Equal(got, []any{"John Doe", "Jane Smith", "Bob"}) {
		t.Errorf("full names = %v", got)
	}
}

func TestFilter_EmailDomainEq(t *testing.T) {
	h := newHarness(t, domain.DefaultEngineConfig())
	h.defineNames(t)

	out, err := h.svc.Filter(context.Background(), people(), []filter.Predicate{
		{Field: "email_domain", Operator: field.Eq, Value: "example.com"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !slices.Equal(keys(out), []string{"1"}) {
		t.Errorf("matched %v, want only John", keys(out))
	}
}

func TestFilter_NameLengthBetween(t *testing.T) {
	h := newHarness(t, domain.DefaultEngineConfig())
	h.defineNames(t)
	entities := []entity.Entity{
		person("short", "Bob", "", ""),
		person("mid", "Jane", "Smith", ""),
		person("long", "Alexandra", "Johnson", ""),
	}

	out, err := h.svc.Filter(context.Background(), entities, []filter.Predicate{
		{Field: "name_length", Operator: field.Between, Value: []any{5, 15}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !slices.Equal(keys(out), []string{"mid"}) {
		t.Errorf("matched %v, want only the length-10 entity", keys(out))
	}
}

func TestFilter_NameLengthBetweenIsInclusive(t *testing.T) {
	h := newHarness(t, domain.DefaultEngineConfig())
	h.defineNames(t)
	entities := []entity.Entity{
		person("four", "Anna", "", ""),
		person("five", "Alice", "", ""),
		person("fifteen", "Jonathan", "Walker", ""),
		person("sixteen", "Jonathan", "Walkers", ""),
	}

	out, err := h.svc.Filter(context.Background(), entities, []filter.Predicate{
		{Field: "name_length", Operator: field.Between, Value: []any{5, 15}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !slices.Equal(keys(out), []string{"five", "fifteen"}) {
		t.Errorf("matched %v, want both bounds included", keys(out))
	}
}

func TestFilter_LikeIsCaseInsensitive(t *testing.T) {
	h := newHarness(t, domain.DefaultEngineConfig())
	h.defineNames(t)
	entities := []entity.Entity{
		person("1", "John", "Doe", ""),
		person("2", "Jane", "Johnson", ""),
		person("3", "Bob", "Smith", ""),
	}

	out, err := h.svc.Filter(context.Background(), entities, []filter.Predicate{
		{Field: "full_name", Operator: field.Like, Value: "*jO*"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !slices.Equal(keys(out), []string{"1", "2"}) {
		t.Errorf("matched %v", keys(out))
	}
}

func TestSort_DescIsStable(t *testing.T) {
	h := newHarness(t, domain.DefaultEngineConfig())
	h.defineNames(t)
	entities := []entity.Entity{
		person("al", "Al", "", ""),
		person("jane", "Jane", "Smith", ""),
		person("alexandra", "Alexandra", "Johnson", ""),
		person("john", "John", "Smyth", ""),
	}

	out, err := h.svc.Sort(context.Background(), entities, "name_length", filter.Desc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"alexandra", "jane", "john", "al"}
	if !slices.Equal(keys(out), want) {
		t.Errorf("order = %v, want %v", keys(out), want)
	}

	out, err = h.svc.Sort(context.Background(), entities, "name_length", filter.Asc)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(keys(out), []string{"al", "jane", "john", "alexandra"}) {
		t.Errorf("asc order = %v", keys(out))
	}
	if !slices.Equal(keys(entities), []string{"al", "jane", "alexandra", "john"}) {
		t.Error("input slice must not be reordered")
	}
}

func TestSort_NullsFirstAscending(t *testing.T) {
	h := newHarness(t, domain.DefaultEngineConfig())
	h.define(t, "score", field.Params{
		Type:     field.Integer,
		Sortable: true,
		Nullable: true,
		Compute: field.ComputeFunc(func(_ context.Context, e entity.Entity) (any, error) {
			v, _ := e.Attribute("score")
			return v, nil
		}),
	})
	entities := []entity.Entity{
		entity.NewRecord("t", "a", map[string]any{"score": 3}, nil),
		entity.NewRecord("t", "b", map[string]any{"score": nil}, nil),
		entity.NewRecord("t", "c", map[string]any{"score": 1}, nil),
	}
	out, err := h.svc.Sort(context.Background(), entities, "score", filter.Asc)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(keys(out), []string{"b", "c", "a"}) {
		t.Errorf("order = %v", keys(out))
	}
}

func TestCompare_MixedTypesIsTransitive(t *testing.T) {
	vals := []any{9, 10, "1a", nil, true, "10"}
	for _, a := range vals {
		for _, b := range vals {
			for _, c := range vals {
				if compare(a, b) < 0 && compare(b, c) < 0 && compare(a, c) >= 0 {
					t.Errorf("%v < %v < %v but compare(%v, %v) = %d", a, b, c, a, c, compare(a, c))
				}
			}
			if compare(a, b) != -compare(b, a) {
				t.Errorf("compare(%v, %v) is not antisymmetric", a, b)
			}
		}
	}
	if compare(9, 10) >= 0 {
		t.Error("numbers must compare numerically")
	}
	if compare(nil, false) >= 0 {
		t.Error("null must sort first")
	}
}

func TestSort_MixedTypesAreGroupedByClass(t *testing.T) {
	h := newHarness(t, domain.DefaultEngineConfig())
	h.define(t, "raw", field.Params{
		Type:     field.String,
		Sortable: true,
		Nullable: true,
		Compute: field.ComputeFunc(func(_ context.Context, e entity.Entity) (any, error) {
			v, _ := e.Attribute("raw")
			return v, nil
		}),
	})
	entities := []entity.Entity{
		entity.NewRecord("t", "text", map[string]any{"raw": "1a"}, nil),
		entity.NewRecord("t", "ten", map[string]any{"raw": 10}, nil),
		entity.NewRecord("t", "nine", map[string]any{"raw": 9}, nil),
	}
	out, err := h.svc.Sort(context.Background(), entities, "raw", filter.Asc)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(keys(out), []string{"nine", "ten", "text"}) {
		t.Errorf("order = %v", keys(out))
	}
}

func TestSort_Errors(t *testing.T) {
	h := newHarness(t, domain.DefaultEngineConfig())
	h.defineNames(t)
	ctx := context.Background()

	if _, err := h.svc.Sort(ctx, people(), "missing", filter.Asc); !errors.Is(err, domain.ErrFieldNotFound) {
		t.Errorf("missing field: %v", err)
	}
	if _, err := h.svc.Sort(ctx, people(), "email_domain", filter.Asc); !errors.Is(err, domain.ErrInvalidPredicate) {
		t.Errorf("non-sortable field: %v", err)
	}
	if _, err := h.svc.Sort(ctx, people(), "full_name", "sideways"); !errors.Is(err, domain.ErrInvalidPredicate) {
		t.Errorf("bad direction: %v", err)
	}
}

func TestSort_LargeDatasetModes(t *testing.T) {
	cfg := domain.DefaultEngineConfig()
	cfg.MaxSortRecords = 2

	strict := newHarness(t, cfg)
	strict.defineNames(t)
	if _, err := strict.svc.Sort(context.Background(), people(), "full_name", filter.Asc); !errors.Is(err, domain.ErrResourceExhausted) {
		t.Errorf("strict mode should fail, got %v", err)
	}
	if strict.callCount("full_name") != 0 {
		t.Error("nothing should be computed when the sort is refused")
	}

	cfg.LenientSort = true
	lenient := newHarness(t, cfg)
	lenient.defineNames(t)
	out, err := lenient.svc.Sort(context.Background(), people(), "full_name", filter.Desc)
	if err != nil {
		t.Fatalf("lenient mode should not fail: %v", err)
	}
	if !slices.Equal(keys(out), []string{"1", "2", "3"}) {
		t.Errorf("lenient mode should return input order, got %v", keys(out))
	}
}

func TestComputeBatch_ExactShape(t *testing.T) {
	h := newHarness(t, domain.DefaultEngineConfig())
	h.defineNames(t)
	fields := []string{"full_name", "email_domain", "name_length", "full_name"}

	out, err := h.svc.ComputeBatch(context.Background(), fields, people())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	total := 0
	for _, byKey := range out {
		total += len(byKey)
	}
	if len(out) != 3 || total != 9 {
		t.Errorf("expected 3x3 entries, got %d fields / %d entries", len(out), total)
	}
	if out["name_length"]["2"] != 10 || out["email_domain"]["3"] != "company.org" {
		t.Errorf("unexpected values: %v", out)
	}
}

func TestComputeBatch_NullableFailureUsesDefault(t *testing.T) {
	h := newHarness(t, domain.DefaultEngineConfig())
	h.define(t, "email_domain", field.Params{
		Type:         field.String,
		Compute:      emailDomain,
		Nullable:     true,
		DefaultValue: "unknown",
		Cacheable:    true,
	})
	entities := []entity.Entity{person("1", "", "", "a@x.io"), person("2", "", "", "broken")}

	out, err := h.svc.ComputeBatch(context.Background(), []string{"email_domain"}, entities)
	if err != nil {
		t.Fatalf("nullable failure must not abort: %v", err)
	}
	if out["email_domain"]["1"] != "x.io" || out["email_domain"]["2"] != "unknown" {
		t.Errorf("values = %v", out["email_domain"])
	}
	if h.logs.FilterMessage("Virtual field computation failed, using default value").Len() != 1 {
		t.Error("expected a debug log for the substitution")
	}
	if _, ok := h.cache.Retrieve(context.Background(), mustGet(t, h, "email_domain"), entities[1]); ok {
		t.Error("substituted defaults must not be cached")
	}
}

func TestComputeBatch_NonNullableFailureAborts(t *testing.T) {
	h := newHarness(t, domain.DefaultEngineConfig())
	h.defineNames(t)
	entities := []entity.Entity{person("1", "", "", "a@x.io"), person("2", "", "", "broken")}

	_, err := h.svc.ComputeBatch(context.Background(), []string{"email_domain"}, entities)
	var cerr *domain.ComputationError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected ComputationError, got %v", err)
	}
	if cerr.Field != "email_domain" || cerr.EntityKey != "2" {
		t.Errorf("error identifies %s/%s", cerr.Field, cerr.EntityKey)
	}
	if !errors.Is(err, domain.ErrComputation) {
		t.Error("expected ErrComputation")
	}
}

func TestComputeBatch_UnknownField(t *testing.T) {
	h := newHarness(t, domain.DefaultEngineConfig())
	if _, err := h.svc.ComputeBatch(context.Background(), []string{"nope"}, people()); !errors.Is(err, domain.ErrFieldNotFound) {
		t.Errorf("expected ErrFieldNotFound, got %v", err)
	}
}

func TestCaching_SecondComputationIsAHit(t *testing.T) {
	h := newHarness(t, domain.DefaultEngineConfig())
	h.defineNames(t)
	ctx := context.Background()
	entities := people()

	first, err := h.svc.ComputeBatch(ctx, []string{"full_name"}, entities)
	if err != nil {
		t.Fatal(err)
	}
	hitsBefore := h.mon.Statistics().CacheHits

	second, err := h.svc.ComputeBatch(ctx, []string{"full_name"}, entities)
	if err != nil {
		t.Fatal(err)
	}
	for k, v := range first["full_name"] {
		if second["full_name"][k] != v {
			t.Errorf("value for %s changed: %v -> %v", k, v, second["full_name"][k])
		}
	}
	if h.callCount("full_name") != 3 {
		t.Errorf("compute calls = %d, want 3", h.callCount("full_name"))
	}
	if got := h.mon.Statistics().CacheHits - hitsBefore; got != 3 {
		t.Errorf("cache hits = %d, want 3", got)
	}
}

func TestCaching_NestedResolveUsesCache(t *testing.T) {
	h := newHarness(t, domain.DefaultEngineConfig())
	h.defineNames(t)
	ctx := context.Background()

	if _, err := h.svc.ComputeBatch(ctx, []string{"full_name"}, people()); err != nil {
		t.Fatal(err)
	}
	if _, err := h.svc.ComputeBatch(ctx, []string{"name_length"}, people()); err != nil {
		t.Fatal(err)
	}
	if h.callCount("full_name") != 3 {
		t.Errorf("name_length should read full_name from cache, full_name computed %d times", h.callCount("full_name"))
	}
}

func TestInvalidate_ClearsEntity(t *testing.T) {
	h := newHarness(t, domain.DefaultEngineConfig())
	h.defineNames(t)
	ctx := context.Background()
	entities := people()

	if _, err := h.svc.ComputeBatch(ctx, []string{"full_name"}, entities); err != nil {
		t.Fatal(err)
	}
	h.svc.Invalidate(ctx, entities[0])

	def := mustGet(t, h, "full_name")
	if _, ok := h.cache.Retrieve(ctx, def, entities[0]); ok {
		t.Error("invalidated entity should miss")
	}
	if _, ok := h.cache.Retrieve(ctx, def, entities[1]); !ok {
		t.Error("other entities should still hit")
	}
}

func TestInvalidate_NamedFieldTakesDependents(t *testing.T) {
	h := newHarness(t, domain.DefaultEngineConfig())
	h.defineNames(t)
	h.define(t, "initials", field.Params{
		Type:         field.String,
		Compute:      fullName,
		Dependencies: []string{"name_length"},
		Cacheable:    true,
	})
	got := h.svc.withDependents([]string{"full_name"})
	slices.Sort(got)
	if !slices.Equal(got, []string{"full_name", "initials", "name_length"}) {
		t.Errorf("withDependents = %v", got)
	}
}

func TestInvalidateType(t *testing.T) {
	h := newHarness(t, domain.DefaultEngineConfig())
	h.defineNames(t)
	ctx := context.Background()
	if _, err := h.svc.ComputeBatch(ctx, []string{"full_name"}, people()); err != nil {
		t.Fatal(err)
	}
	h.svc.InvalidateType(ctx, "users", "full_name")
	if h.cache.Len() != 0 {
		t.Errorf("expected empty cache, len = %d", h.cache.Len())
	}
}

func TestWarmCache(t *testing.T) {
	h := newHarness(t, domain.DefaultEngineConfig())
	h.defineNames(t)
	ctx := context.Background()

	if err := h.svc.WarmCache(ctx, people()); err != nil {
		t.Fatal(err)
	}
	// Only full_name is cacheable.
	if h.cache.Len() != 3 {
		t.Errorf("cache len = %d, want 3", h.cache.Len())
	}
	if _, err := h.svc.ComputeForSelection(ctx, people(), []string{"full_name"}); err != nil {
		t.Fatal(err)
	}
	if h.callCount("full_name") != 3 {
		t.Errorf("selection after warm-up should be served from cache, calls = %d", h.callCount("full_name"))
	}
	if err := h.svc.WarmCache(ctx, people(), "missing"); !errors.Is(err, domain.ErrFieldNotFound) {
		t.Errorf("expected ErrFieldNotFound, got %v", err)
	}
}

func TestComputeForSelection_BatchedPath(t *testing.T) {
	cfg := domain.DefaultEngineConfig()
	cfg.BatchThreshold = 5
	cfg.BatchSize = 4
	h := newHarness(t, cfg)
	h.defineNames(t)

	entities := make([]entity.Entity, 11)
	for i := range entities {
		entities[i] = person(fmt.Sprint(i), "N", fmt.Sprint(i), "")
	}
	out, err := h.svc.ComputeForSelection(context.Background(), entities, []string{"full_name"})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 11 {
		t.Fatalf("expected 11 entities, got %d", len(out))
	}
	for i, e := range out {
		if v, _ := e.Decoration("full_name"); v != fmt.Sprintf("N %d", i) {
			t.Errorf("entity %d = %v", i, v)
		}
	}
	batches := 0
	for _, r := range h.mon.History() {
		if r.Type == "batch" || r.Type == "selection" {
			batches++
		}
	}
	if batches == 0 {
		t.Error("expected monitored operations")
	}
}

func TestComputeForSelection_LenientPartial(t *testing.T) {
	cfg := domain.DefaultEngineConfig()
	cfg.BatchThreshold = 1
	cfg.BatchSize = 2
	cfg.StrictLimits = false
	cfg.MemoryLimit = 1 // any live heap breaches
	h := newHarness(t, cfg)
	h.defineNames(t)

	out, err := h.svc.ComputeForSelection(context.Background(), people(), []string{"full_name"})
	if err != nil {
		t.Fatalf("lenient mode should not fail: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("expected no entities before the first breach check passes, got %d", len(out))
	}
}

func TestComputeForSelection_StrictBreach(t *testing.T) {
	cfg := domain.DefaultEngineConfig()
	cfg.BatchThreshold = 1
	cfg.MemoryLimit = 1
	h := newHarness(t, cfg)
	h.defineNames(t)

	_, err := h.svc.ComputeForSelection(context.Background(), people(), []string{"full_name"})
	if !errors.Is(err, domain.ErrResourceExhausted) {
		t.Errorf("expected ErrResourceExhausted, got %v", err)
	}
}

func TestOptimizeQuery_Additive(t *testing.T) {
	h := newHarness(t, domain.DefaultEngineConfig())
	h.defineNames(t)
	h.define(t, "order_count", field.Params{
		Type:      field.Integer,
		Compute:   fullName,
		Relations: []string{"orders"},
	})

	q := entity.NewSelectQuery("users", "id", "first")
	h.svc.OptimizeQuery(q, []string{"name_length", "email_domain"})
	h.svc.OptimizeQuery(q, []string{"full_name", "order_count"})
	h.svc.OptimizeQuery(q, []string{"order_count"})

	if !slices.Equal(q.Columns(), []string{"id", "first", "email", "last"}) {
		t.Errorf("columns = %v", q.Columns())
	}
	if !slices.Equal(q.EagerLoads(), []string{"orders"}) {
		t.Errorf("eager loads = %v", q.EagerLoads())
	}

	all := entity.NewSelectQuery("users")
	h.svc.OptimizeQuery(all, []string{"full_name", "order_count"})
	if !all.SelectsAll() || len(all.Columns()) != 0 {
		t.Errorf("select-all query must keep no projection, got %v", all.Columns())
	}
	if !all.HasEagerLoad("orders") {
		t.Error("relations are still eager-loaded for select-all queries")
	}
}

func mustGet(t *testing.T, h *harness, name string) field.Definition {
	t.Helper()
	d, ok := h.reg.Get(name)
	if !ok {
		t.Fatalf("field %s not registered", name)
	}
	return d
}
