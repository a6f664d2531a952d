package monitor

import "time"

// Record is the outcome of one monitored operation.
type Record struct {
	ID          string
	Type        string
	Field       string
	Start       time.Time
	End         time.Time
	Duration    time.Duration
	MemoryDelta int64 // bytes; zero when memory tracking is off
	Success     bool
	Err         string
	Slow        bool
}

// Stats aggregates every operation since the last Reset.
type Stats struct {
	TotalOperations int64
	Succeeded       int64
	Failed          int64
	SlowOperations  int64
	Active          int
	AvgDuration     time.Duration
	MinDuration     time.Duration
	MaxDuration     time.Duration
	CacheHits       int64
	CacheMisses     int64
	CacheHitRate    float64 // 0..1; zero before any lookup
	Fields          map[string]FieldStats
}

// FieldStats is the breakdown for one virtual field.
type FieldStats struct {
	Field        string
	Operations   int64
	Failures     int64
	SlowCount    int64
	AvgDuration  time.Duration
	MinDuration  time.Duration
	MaxDuration  time.Duration
	CacheHits    int64
	CacheMisses  int64
	CacheHitRate float64
	Recent       []Record // bounded window, oldest first
}

type durationAgg struct {
	count int64
	total time.Duration
	min   time.Duration
	max   time.Duration
}

func (a *durationAgg) add(d time.Duration) {
	if a.count == 0 || d < a.min {
		a.min = d
	}
	if d > a.max {
		a.max = d
	}
	a.count++
	a.total += d
}

func (a *durationAgg) avg() time.Duration {
	if a.count == 0 {
		return 0
	}
	return a.total / time.Duration(a.count)
}

type fieldAgg struct {
	durations durationAgg
	failures  int64
	slow      int64
	hits      int64
	misses    int64
	recent    *ring[Record]
}

func (f *fieldAgg) stats(name string, withRecent bool) FieldStats {
	fs := FieldStats{
		Field:        name,
		Operations:   f.durations.count,
		Failures:     f.failures,
		SlowCount:    f.slow,
		AvgDuration:  f.durations.avg(),
		MinDuration:  f.durations.min,
		MaxDuration:  f.durations.max,
		CacheHits:    f.hits,
		CacheMisses:  f.misses,
		CacheHitRate: hitRate(f.hits, f.misses),
	}
	if withRecent {
		fs.Recent = f.recent.snapshot()
	}
	return fs
}

func hitRate(hits, misses int64) float64 {
	if hits+misses == 0 {
		return 0
	}
	return float64(hits) / float64(hits+misses)
}
