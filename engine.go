package vfields

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/vfields/internal/catalog"
	"github.com/kailas-cloud/vfields/internal/db"
	dbRedis "github.com/kailas-cloud/vfields/internal/db/redis"
	"github.com/kailas-cloud/vfields/internal/domain"
	"github.com/kailas-cloud/vfields/internal/metrics"
	"github.com/kailas-cloud/vfields/internal/registry"
	"github.com/kailas-cloud/vfields/internal/repository/fieldcache"
	"github.com/kailas-cloud/vfields/internal/usecase/guard"
	healthuc "github.com/kailas-cloud/vfields/internal/usecase/health"
	"github.com/kailas-cloud/vfields/internal/usecase/monitor"
	"github.com/kailas-cloud/vfields/internal/usecase/processor"
	"github.com/kailas-cloud/vfields/internal/usecase/validator"
)

const defaultReadinessTimeout = 10 * time.Second

// Engine is the vfields entry point: it registers virtual fields and computes,
// filters and sorts them over collections of entities. Safe for concurrent use.
type Engine struct {
	store     db.Store // nil with the in-process cache
	cache     fieldcache.Store
	reg       *registry.Registry
	validator *validator.Validator
	catalog   *catalog.Catalog
	monitor   *monitor.Monitor
	proc      *processor.Service
	health    *healthuc.Service
	obs       *observer
}

// New creates an Engine. With WithRedis or WithValkey it connects to the shared
// cache and waits for it; ctx bounds that readiness check.
func New(ctx context.Context, opts ...Option) (*Engine, error) {
	cfg := defaultEngineConfig()
	for _, o := range opts {
		o.apply(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}

	if cfg.metricsReg != nil {
		if err := metrics.RegisterEngine(cfg.metricsReg); err != nil {
			return nil, fmt.Errorf("vfields: %w", err)
		}
	}
	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	store, err := createStore(cfg)
	if err != nil {
		return nil, err
	}
	if store != nil {
		if err := store.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
			store.Close()
			return nil, fmt.Errorf("vfields: cache not ready: %w", err)
		}
	}

	e := wireEngine(store, cfg)
	e.obs = obs
	return e, nil
}

func createStore(cfg *engineConfig) (db.Store, error) {
	switch cfg.driver {
	case "memory":
		return nil, nil
	case "redis", "valkey":
		if len(cfg.addrs) == 0 {
			return nil, fmt.Errorf("vfields: %s address required", cfg.driver)
		}
		s, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:      cfg.addrs,
			Password:   cfg.password,
			Standalone: cfg.standalone,
		})
		if err != nil {
			return nil, fmt.Errorf("vfields: create %s store: %w", cfg.driver, err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("vfields: unknown driver %q", cfg.driver)
	}
}

func wireEngine(store db.Store, cfg *engineConfig) *Engine {
	logger := cfg.logger

	var cache fieldcache.Store
	if store != nil {
		cache = fieldcache.NewKVStore(store, cfg.keyPrefix, cfg.engine.DefaultCacheTTL, metrics.CacheTotal, logger)
	} else {
		cache = fieldcache.NewMemoryStore(cfg.engine.DefaultCacheTTL)
	}

	reg := registry.New(logger)
	mon := monitor.New(monitor.Config{
		SlowThreshold: cfg.engine.SlowThreshold,
		HistorySize:   cfg.engine.HistorySize,
		FieldWindow:   cfg.engine.FieldWindow,
		TrackMemory:   cfg.engine.TrackMemory,
	}, logger)
	g := guard.New(cfg.engine, mon, logger)
	proc := processor.New(reg, g, logger).WithCache(cache).WithMonitor(mon)

	return &Engine{
		store:     store,
		cache:     cache,
		reg:       reg,
		validator: validator.New(logger),
		catalog:   catalog.New(),
		monitor:   mon,
		proc:      proc,
		health:    healthuc.New(store, reg),
	}
}

// Close releases the shared cache connection, if any.
func (e *Engine) Close() {
	if e.store != nil {
		e.store.Close()
	}
}

// Ping checks the shared cache. Always nil with the in-process cache.
func (e *Engine) Ping(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { e.obs.observe("ping", start, err) }()

	if e.store == nil {
		return nil
	}
	if err = e.store.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// RegisterFields validates cfg and registers every field that passes. The
// returned ConfigErrors lists every problem of every rejected field; the
// accepted fields stay registered either way.
func (e *Engine) RegisterFields(cfg FieldConfig) error {
	return e.validator.Register(e.reg, cfg)
}

// RegisterSpecs registers fields backed by built-in compute functions
// (concat, email_domain, length, lower, upper, coalesce, count, sum, days_since).
func (e *Engine) RegisterSpecs(specs map[string]FieldSpec) error {
	raw, buildErrs := e.catalog.RawConfig(specs)
	err := e.validator.Register(e.reg, raw)

	var regErrs domain.ConfigErrors
	if err != nil && !errors.As(err, &regErrs) {
		return err
	}
	if all := append(buildErrs, regErrs...); len(all) > 0 {
		return all
	}
	return nil
}

// Define registers a single field from typed params.
func (e *Engine) Define(name string, p Params) error {
	return e.validator.Register(e.reg, validator.RawConfig{name: validator.FromParams(p)})
}

// Fields returns the registered definitions in registration order.
func (e *Engine) Fields() []Definition {
	return e.reg.All()
}

// Field returns one registered definition.
func (e *Engine) Field(name string) (Definition, bool) {
	return e.reg.Get(name)
}

// OptimizeQuery adds the columns and eager loads fieldNames read. It never
// removes or duplicates anything already on q.
func (e *Engine) OptimizeQuery(q Query, fieldNames []string) Query {
	return e.proc.OptimizeQuery(q, fieldNames)
}

// ComputeForSelection decorates entities with fieldNames. Large collections are
// processed in batches under the configured resource limits.
func (e *Engine) ComputeForSelection(ctx context.Context, entities []Entity, fieldNames []string) (out []Entity, err error) {
	start := time.Now()
	defer func() { e.obs.observe("compute_for_selection", start, err) }()

	return e.proc.ComputeForSelection(ctx, entities, fieldNames)
}

// ComputeBatch returns field name -> entity key -> value.
func (e *Engine) ComputeBatch(
	ctx context.Context, fieldNames []string, entities []Entity,
) (out map[string]map[string]any, err error) {
	start := time.Now()
	defer func() { e.obs.observe("compute_batch", start, err) }()

	return e.proc.ComputeBatch(ctx, fieldNames, entities)
}

// Filter keeps the entities matching the predicate chain, in input order.
func (e *Engine) Filter(ctx context.Context, entities []Entity, preds []Predicate) (out []Entity, err error) {
	start := time.Now()
	defer func() { e.obs.observe("filter", start, err) }()

	return e.proc.Filter(ctx, entities, preds)
}

// Sort orders entities by a sortable virtual field.
func (e *Engine) Sort(ctx context.Context, entities []Entity, fieldName string, dir Direction) (out []Entity, err error) {
	start := time.Now()
	defer func() { e.obs.observe("sort", start, err) }()

	return e.proc.Sort(ctx, entities, fieldName, dir)
}

// Evaluator returns deferred values of fieldNames over entities. Fields are
// computed on first Get unless lazy evaluation is disabled, in which case
// they are all computed here.
func (e *Engine) Evaluator(ctx context.Context, entities []Entity, fieldNames []string) (l *LazyFields, err error) {
	start := time.Now()
	defer func() { e.obs.observe("evaluator", start, err) }()

	return e.proc.Evaluator(ctx, entities, fieldNames)
}

// Invalidate drops cached values of one entity: fieldNames and their dependents, or all.
func (e *Engine) Invalidate(ctx context.Context, ent Entity, fieldNames ...string) {
	e.proc.Invalidate(ctx, ent, fieldNames...)
}

// InvalidateType drops cached values of every entity of entityType.
func (e *Engine) InvalidateType(ctx context.Context, entityType string, fieldNames ...string) {
	e.proc.InvalidateType(ctx, entityType, fieldNames...)
}

// FlushCache drops every cached virtual field value.
func (e *Engine) FlushCache(ctx context.Context) {
	e.cache.FlushAll(ctx)
}

// WarmCache precomputes cacheable fields (fieldNames, or all cacheable) for entities.
func (e *Engine) WarmCache(ctx context.Context, entities []Entity, fieldNames ...string) (err error) {
	start := time.Now()
	defer func() { e.obs.observe("warm_cache", start, err) }()

	return e.proc.WarmCache(ctx, entities, fieldNames...)
}

// Statistics returns aggregate operation and cache statistics.
func (e *Engine) Statistics() Stats {
	return e.monitor.Statistics()
}

// FieldMetrics returns the statistics of one field, including its recent operations.
func (e *Engine) FieldMetrics(name string) (FieldStats, bool) {
	return e.monitor.FieldMetrics(name)
}

// History returns the retained operations, oldest first.
func (e *Engine) History() []OperationRecord {
	return e.monitor.History()
}

// ResetStatistics clears every counter and the operation history.
func (e *Engine) ResetStatistics() {
	e.monitor.Reset()
}

// Healthy reports whether fields are registered and the shared cache answers.
func (e *Engine) Healthy(ctx context.Context) bool {
	return e.health.Check(ctx).Status == healthuc.Healthy
}
