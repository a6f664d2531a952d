// Package guard enforces memory, time and size ceilings around virtual field work.
package guard

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/kailas-cloud/vfields/internal/domain"
	"github.com/kailas-cloud/vfields/internal/metrics"
)

// Resource names reported in ResourceExhaustedError and metrics.
const (
	ResourceMemory      = "memory"
	ResourceTime        = "time"
	ResourceSortRecords = "sort_records"
)

// Guard applies the engine limits. It holds no per-call state and is safe for concurrent use.
type Guard struct {
	cfg     domain.EngineConfig
	monitor OperationMonitor
	logger  *zap.Logger
	now     func() time.Time
	memory  func() uint64
	gc      func()
}

// New creates a guard. monitor may be nil.
func New(cfg domain.EngineConfig, mon OperationMonitor, logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{
		cfg:     cfg,
		monitor: mon,
		logger:  logger,
		now:     time.Now,
		memory:  heapAlloc,
		gc:      runtime.GC,
	}
}

// Config returns the limits the guard enforces.
func (g *Guard) Config() domain.EngineConfig { return g.cfg }

// Monitored runs body as a monitored operation. Errors are recorded, then returned unchanged.
func Monitored[T any](g *Guard, opType, fieldName string, body func() (T, error)) (T, error) {
	if g.monitor == nil {
		return body()
	}
	id := g.monitor.Start(opType, fieldName)
	v, err := body()
	g.monitor.End(id, err)
	return v, err
}

// CheckMemoryLimit fails when the live heap exceeds the configured limit.
func (g *Guard) CheckMemoryLimit() error {
	if g.cfg.MemoryLimit <= 0 {
		return nil
	}
	used := int64(g.memory()) //nolint:gosec // heap sizes fit int64
	if used > g.cfg.MemoryLimit {
		return domain.NewResourceExhausted(ResourceMemory, g.cfg.MemoryLimit, used)
	}
	return nil
}

// CheckTimeLimit fails when more than the configured time has passed since start.
// Limit and observed values are reported in milliseconds.
func (g *Guard) CheckTimeLimit(start time.Time) error {
	if g.cfg.TimeLimit <= 0 {
		return nil
	}
	elapsed := g.now().Sub(start)
	if elapsed > g.cfg.TimeLimit {
		return domain.NewResourceExhausted(ResourceTime, g.cfg.TimeLimit.Milliseconds(), elapsed.Milliseconds())
	}
	return nil
}

// CheckSortSize applies the large-dataset sort policy. It reports whether n records
// may be sorted. In strict mode an oversized set is an error; in lenient mode the
// caller is told to skip sorting and a warning is logged.
func (g *Guard) CheckSortSize(n int) (bool, error) {
	limit := g.cfg.MaxSortRecords
	if limit <= 0 || n <= limit {
		return true, nil
	}

	if !g.cfg.LenientSort {
		g.breach(ResourceSortRecords, true)
		return false, domain.NewResourceExhausted(ResourceSortRecords, int64(limit), int64(n))
	}

	g.breach(ResourceSortRecords, false)
	g.logger.Warn("Dataset too large to sort by virtual field, returning unsorted",
		zap.Int("records", n),
		zap.Int("max_sort_records", limit),
	)
	return false, nil
}

// Outcome is the result of ProcessBatches.
type Outcome[R any] struct {
	Results   []R
	Processed int // input items whose batch completed
	Total     int
	Batches   int
	// Partial is set when a limit stopped processing in lenient mode.
	Partial bool
	// Breach is the limit error that stopped processing, if any.
	Breach error
}

// ProcessBatches splits items into chunks of batchSize (the configured size when
// non-positive) and runs fn on each, in order. Before every chunk the time limit
// and then the memory limit are checked. A breach is returned as an error in strict
// mode; in lenient mode processing stops and the results so far are returned.
// A GC hint runs every GCEveryBatches chunks.
func ProcessBatches[E, R any](
	ctx context.Context,
	g *Guard,
	items []E,
	batchSize int,
	fn func(ctx context.Context, batch []E) ([]R, error),
) (Outcome[R], error) {
	if batchSize <= 0 {
		batchSize = g.cfg.BatchSize
	}
	if batchSize <= 0 {
		batchSize = len(items)
	}
	out := Outcome[R]{Total: len(items), Results: make([]R, 0, len(items))}
	if len(items) == 0 {
		return out, nil
	}

	start := g.now()
	for i, chunk := range lo.Chunk(items, batchSize) {
		if err := ctx.Err(); err != nil {
			return out, fmt.Errorf("batch %d: %w", i, err)
		}
		if breach := g.checkLimits(start); breach != nil {
			out.Breach = breach
			if g.cfg.StrictLimits {
				return out, fmt.Errorf("batch %d: %w", i, breach)
			}
			out.Partial = true
			g.logger.Warn("Resource limit reached, returning partial results",
				zap.Error(breach),
				zap.Int("processed", out.Processed),
				zap.Int("total", out.Total),
			)
			return out, nil
		}

		results, err := fn(ctx, chunk)
		if err != nil {
			return out, fmt.Errorf("batch %d: %w", i, err)
		}
		out.Results = append(out.Results, results...)
		out.Processed += len(chunk)
		out.Batches++

		if g.cfg.GCEveryBatches > 0 && out.Batches%g.cfg.GCEveryBatches == 0 {
			g.gc()
		}
	}
	return out, nil
}

func (g *Guard) checkLimits(start time.Time) error {
	if err := g.CheckTimeLimit(start); err != nil {
		g.breach(ResourceTime, g.cfg.StrictLimits)
		return err
	}
	if err := g.CheckMemoryLimit(); err != nil {
		g.breach(ResourceMemory, g.cfg.StrictLimits)
		return err
	}
	return nil
}

func (g *Guard) breach(resource string, strict bool) {
	mode := "lenient"
	if strict {
		mode = "strict"
	}
	metrics.ResourceBreachesTotal.WithLabelValues(resource, mode).Inc()
}

func heapAlloc() uint64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.HeapAlloc
}
