// Package monitor records timing, memory and cache statistics for engine operations.
package monitor

import (
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/vfields/internal/metrics"
)

// Operation types recorded by the engine.
const (
	OpComputation = "computation"
	OpBatch       = "batch"
	OpFilter      = "filter"
	OpSort        = "sort"
	OpSelection   = "selection"
	OpWarm        = "warm_cache"
)

// Config controls thresholds and retention.
type Config struct {
	SlowThreshold time.Duration
	HistorySize   int
	FieldWindow   int
	TrackMemory   bool
}

type activeOp struct {
	opType   string
	field    string
	start    time.Time
	memStart uint64
	fields   []zap.Field
}

// Monitor tracks operations from Start to End. Safe for concurrent use.
type Monitor struct {
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
	memory func() uint64

	mu        sync.Mutex
	active    map[string]activeOp
	history   *ring[Record]
	durations durationAgg
	succeeded int64
	failed    int64
	slow      int64
	hits      int64
	misses    int64
	fields    map[string]*fieldAgg
}

// New creates a monitor. Non-positive sizes fall back to 1000 operations and 100 per field.
func New(cfg Config, logger *zap.Logger) *Monitor {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 1000
	}
	if cfg.FieldWindow <= 0 {
		cfg.FieldWindow = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
		memory:  heapAlloc,
		active:  make(map[string]activeOp),
		history: newRing[Record](cfg.HistorySize),
		fields:  make(map[string]*fieldAgg),
	}
}

// Start opens an operation and returns its id. fields are attached to the slow-operation log.
func (m *Monitor) Start(opType, fieldName string, fields ...zap.Field) string {
	op := activeOp{
		opType: opType,
		field:  fieldName,
		start:  m.now(),
		fields: fields,
	}
	if m.cfg.TrackMemory {
		op.memStart = m.memory()
	}

	id := uuid.NewString()
	m.mu.Lock()
	m.active[id] = op
	m.mu.Unlock()
	return id
}

// End closes an operation; a nil err means success. Unknown ids return false.
func (m *Monitor) End(id string, err error) (Record, bool) {
	end := m.now()
	var memEnd uint64
	if m.cfg.TrackMemory {
		memEnd = m.memory()
	}

	m.mu.Lock()
	op, ok := m.active[id]
	if !ok {
		m.mu.Unlock()
		return Record{}, false
	}
	delete(m.active, id)

	rec := Record{
		ID:       id,
		Type:     op.opType,
		Field:    op.field,
		Start:    op.start,
		End:      end,
		Duration: end.Sub(op.start),
		Success:  err == nil,
	}
	if err != nil {
		rec.Err = err.Error()
	}
	if m.cfg.TrackMemory {
		rec.MemoryDelta = int64(memEnd) - int64(op.memStart) //nolint:gosec // heap sizes fit int64
	}
	rec.Slow = m.cfg.SlowThreshold > 0 && rec.Duration > m.cfg.SlowThreshold

	m.fold(rec)
	m.mu.Unlock()

	m.observe(rec, op.fields)
	return rec, true
}

// MonitorComputation times one field computation.
func (m *Monitor) MonitorComputation(fieldName string, fn func() (any, error)) (any, error) {
	id := m.Start(OpComputation, fieldName)
	v, err := fn()
	m.End(id, err)
	return v, err
}

// MonitorBatch times a multi-entity operation over fields.
func (m *Monitor) MonitorBatch(opType string, fieldNames []string, count int, fn func() error) error {
	id := m.Start(opType, "", zap.Strings("fields", fieldNames), zap.Int("entities", count))
	err := fn()
	m.End(id, err)
	return err
}

// RecordCacheHit counts a cache hit for a field.
func (m *Monitor) RecordCacheHit(fieldName string) {
	metrics.CacheTotal.WithLabelValues("hit").Inc()
	m.mu.Lock()
	m.hits++
	m.field(fieldName).hits++
	m.mu.Unlock()
}

// RecordCacheMiss counts a cache miss for a field.
func (m *Monitor) RecordCacheMiss(fieldName string) {
	metrics.CacheTotal.WithLabelValues("miss").Inc()
	m.mu.Lock()
	m.misses++
	m.field(fieldName).misses++
	m.mu.Unlock()
}

// Statistics returns aggregates since the last Reset.
func (m *Monitor) Statistics() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	fields := make(map[string]FieldStats, len(m.fields))
	for name, agg := range m.fields {
		fields[name] = agg.stats(name, false)
	}
	return Stats{
		TotalOperations: m.durations.count,
		Succeeded:       m.succeeded,
		Failed:          m.failed,
		SlowOperations:  m.slow,
		Active:          len(m.active),
		AvgDuration:     m.durations.avg(),
		MinDuration:     m.durations.min,
		MaxDuration:     m.durations.max,
		CacheHits:       m.hits,
		CacheMisses:     m.misses,
		CacheHitRate:    hitRate(m.hits, m.misses),
		Fields:          fields,
	}
}

// FieldMetrics returns one field's statistics including its recent operations.
func (m *Monitor) FieldMetrics(name string) (FieldStats, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	agg, ok := m.fields[name]
	if !ok {
		return FieldStats{}, false
	}
	return agg.stats(name, true), true
}

// History returns the retained operation records, oldest first.
func (m *Monitor) History() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.history.snapshot()
}

// ActiveOperations returns the ids of operations that have started but not ended.
func (m *Monitor) ActiveOperations() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.active))
	for id := range m.active {
		ids = append(ids, id)
	}
	return ids
}

// Reset clears history and aggregates. Active operations are kept.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = newRing[Record](m.cfg.HistorySize)
	m.durations = durationAgg{}
	m.succeeded, m.failed, m.slow = 0, 0, 0
	m.hits, m.misses = 0, 0
	m.fields = make(map[string]*fieldAgg)
}

func (m *Monitor) fold(rec Record) {
	m.history.push(rec)
	m.durations.add(rec.Duration)
	if rec.Success {
		m.succeeded++
	} else {
		m.failed++
	}
	if rec.Slow {
		m.slow++
	}

	if rec.Field == "" {
		return
	}
	agg := m.field(rec.Field)
	agg.durations.add(rec.Duration)
	agg.recent.push(rec)
	if !rec.Success {
		agg.failures++
	}
	if rec.Slow {
		agg.slow++
	}
}

func (m *Monitor) field(name string) *fieldAgg {
	agg, ok := m.fields[name]
	if !ok {
		agg = &fieldAgg{recent: newRing[Record](m.cfg.FieldWindow)}
		m.fields[name] = agg
	}
	return agg
}

func (m *Monitor) observe(rec Record, extra []zap.Field) {
	status := "success"
	if !rec.Success {
		status = "error"
	}
	metrics.OperationsTotal.WithLabelValues(rec.Type, status).Inc()
	metrics.OperationDuration.WithLabelValues(rec.Type).Observe(rec.Duration.Seconds())

	if !rec.Slow {
		return
	}
	metrics.SlowOperationsTotal.WithLabelValues(rec.Type).Inc()

	fields := append([]zap.Field{
		zap.String("operation_id", rec.ID),
		zap.String("type", rec.Type),
		zap.String("field", rec.Field),
		zap.Duration("duration", rec.Duration),
		zap.Duration("threshold", m.cfg.SlowThreshold),
		zap.Bool("success", rec.Success),
	}, extra...)
	if m.cfg.TrackMemory {
		fields = append(fields, zap.Int64("memory_delta_bytes", rec.MemoryDelta))
	}
	m.logger.Warn("Slow virtual field operation", fields...)
}

func heapAlloc() uint64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.HeapAlloc
}
