package vfields

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/vfields/internal/domain"
)

// Option configures the Engine.
type Option interface {
	apply(*engineConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*engineConfig)

func (f optionFunc) apply(c *engineConfig) { f(c) }

// SortMode controls what Sort does with collections above the sort limit.
type SortMode string

// Sort modes.
const (
	// SortStrict fails with ErrResourceExhausted.
	SortStrict SortMode = "strict"
	// SortLenient logs a warning and returns the input unsorted.
	SortLenient SortMode = "lenient"
)

type engineConfig struct {
	driver     string // "memory", "valkey" or "redis"
	addrs      []string
	password   string
	standalone bool
	keyPrefix  string

	engine domain.EngineConfig

	logger     *zap.Logger
	metricsReg prometheus.Registerer
}

func defaultEngineConfig() *engineConfig {
	return &engineConfig{
		driver:    "memory",
		keyPrefix: domain.KeyPrefix,
		engine:    domain.DefaultEngineConfig(),
	}
}

// WithLogger sets the structured logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return optionFunc(func(c *engineConfig) {
		c.logger = l
	})
}

// WithPrometheus registers engine metrics (operations, durations, cache
// lookups, limit breaches) on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *engineConfig) {
		c.metricsReg = reg
	})
}

// WithRedis caches field values in Redis instead of process memory.
func WithRedis(addrs ...string) Option {
	return optionFunc(func(c *engineConfig) {
		c.driver = "redis"
		c.addrs = addrs
	})
}

// WithValkey caches field values in Valkey instead of process memory.
func WithValkey(addrs ...string) Option {
	return optionFunc(func(c *engineConfig) {
		c.driver = "valkey"
		c.addrs = addrs
	})
}

// WithPassword sets the Redis/Valkey password.
func WithPassword(password string) Option {
	return optionFunc(func(c *engineConfig) {
		c.password = password
	})
}

// WithStandalone disables cluster topology discovery.
// Use for standalone Valkey/Redis instances.
func WithStandalone() Option {
	return optionFunc(func(c *engineConfig) {
		c.standalone = true
	})
}

// WithKeyPrefix namespaces cache keys in a shared Redis/Valkey. Default: "vfields:".
func WithKeyPrefix(prefix string) Option {
	return optionFunc(func(c *engineConfig) {
		c.keyPrefix = prefix
	})
}

// WithDefaultTTL sets the TTL for cacheable fields that declare none. Default: 1h.
// Zero means no expiry.
func WithDefaultTTL(ttl time.Duration) Option {
	return optionFunc(func(c *engineConfig) {
		c.engine.DefaultCacheTTL = ttl
	})
}

// WithBatchSize sets the chunk size of the batched path. Default: 500.
func WithBatchSize(n int) Option {
	return optionFunc(func(c *engineConfig) {
		c.engine.BatchSize = n
	})
}

// WithBatchThreshold sets the collection size above which selection is batched. Default: 1000.
func WithBatchThreshold(n int) Option {
	return optionFunc(func(c *engineConfig) {
		c.engine.BatchThreshold = n
	})
}

// WithMemoryLimit caps heap usage observed between batches, in bytes. Zero disables the check.
// Default: 512 MiB.
func WithMemoryLimit(bytes int64) Option {
	return optionFunc(func(c *engineConfig) {
		c.engine.MemoryLimit = bytes
	})
}

// WithTimeLimit caps the duration of one batched operation. Default: 30s.
func WithTimeLimit(d time.Duration) Option {
	return optionFunc(func(c *engineConfig) {
		c.engine.TimeLimit = d
	})
}

// WithStrictLimits selects error (true, default) or partial results (false) on a limit breach.
func WithStrictLimits(strict bool) Option {
	return optionFunc(func(c *engineConfig) {
		c.engine.StrictLimits = strict
	})
}

// WithLazyEvaluation defers computing filter fields until a predicate needs them.
func WithLazyEvaluation(lazy bool) Option {
	return optionFunc(func(c *engineConfig) {
		c.engine.LazyEvaluation = lazy
	})
}

// WithMaxSortRecords sets the largest collection Sort orders. Default: 10000.
func WithMaxSortRecords(n int) Option {
	return optionFunc(func(c *engineConfig) {
		c.engine.MaxSortRecords = n
	})
}

// WithSortMode selects the behaviour above the sort limit. Default: SortStrict.
func WithSortMode(mode SortMode) Option {
	return optionFunc(func(c *engineConfig) {
		c.engine.LenientSort = mode == SortLenient
	})
}

// WithSlowThreshold sets the duration above which an operation is logged as slow. Default: 100ms.
func WithSlowThreshold(d time.Duration) Option {
	return optionFunc(func(c *engineConfig) {
		c.engine.SlowThreshold = d
	})
}

// WithHistorySize sets how many completed operations the monitor retains. Default: 1000.
func WithHistorySize(n int) Option {
	return optionFunc(func(c *engineConfig) {
		c.engine.HistorySize = n
	})
}

// WithMemoryTracking records heap deltas per operation (costs a runtime.ReadMemStats per operation).
func WithMemoryTracking() Option {
	return optionFunc(func(c *engineConfig) {
		c.engine.TrackMemory = true
	})
}

// WithEngineConfig replaces every engine tunable at once.
func WithEngineConfig(cfg domain.EngineConfig) Option {
	return optionFunc(func(c *engineConfig) {
		c.engine = cfg
	})
}
