package domain

import "time"

// KeyPrefix is the default namespace for keys written to a shared store.
const KeyPrefix = "vfields:"

// EngineConfig holds the tunables shared by the processor, guard and monitor.
type EngineConfig struct {
	BatchSize       int
	BatchThreshold  int
	MemoryLimit     int64 // bytes, 0 = unlimited
	TimeLimit       time.Duration
	StrictLimits    bool
	GCEveryBatches  int
	LazyEvaluation  bool
	MaxSortRecords  int
	LenientSort     bool
	DefaultCacheTTL time.Duration
	SlowThreshold   time.Duration
	HistorySize     int
	FieldWindow     int
	TrackMemory     bool
}

// DefaultEngineConfig returns conservative defaults: strict limits and strict sort.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		BatchSize:       500,
		BatchThreshold:  1000,
		MemoryLimit:     512 << 20,
		TimeLimit:       30 * time.Second,
		StrictLimits:    true,
		GCEveryBatches:  10,
		MaxSortRecords:  10000,
		DefaultCacheTTL: time.Hour,
		SlowThreshold:   100 * time.Millisecond,
		HistorySize:     1000,
		FieldWindow:     100,
	}
}
