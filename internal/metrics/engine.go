package metrics

import (
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Virtual field engine Prometheus metrics.
var (
	OperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vfields",
			Name:      "operations_total",
			Help:      "Monitored engine operations by type and outcome",
		},
		[]string{"type", "status"},
	)

	OperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "vfields",
			Name:      "operation_duration_seconds",
			Help:      "Duration of monitored engine operations",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"type"},
	)

	SlowOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vfields",
			Name:      "slow_operations_total",
			Help:      "Operations slower than the configured threshold",
		},
		[]string{"type"},
	)

	CacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vfields",
			Name:      "cache_total",
			Help:      "Virtual field cache lookups",
		},
		[]string{"result"}, // "hit" / "miss" / "error"
	)

	ResourceBreachesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vfields",
			Name:      "resource_breaches_total",
			Help:      "Memory, time or sort-size limit breaches",
		},
		[]string{"resource", "mode"}, // mode: "strict" / "lenient"
	)
)

var registerEngineOnce sync.Once

// RegisterEngineMetrics registers the engine collectors with the default registry.
// Safe to call more than once.
func RegisterEngineMetrics() {
	registerEngineOnce.Do(func() {
		if err := RegisterEngine(prometheus.DefaultRegisterer); err != nil {
			panic(err)
		}
	})
}

// RegisterEngine registers the engine collectors on reg. Collectors already
// registered there are kept.
func RegisterEngine(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		OperationsTotal,
		OperationDuration,
		SlowOperationsTotal,
		CacheTotal,
		ResourceBreachesTotal,
	} {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return fmt.Errorf("register engine metric: %w", err)
		}
	}
	return nil
}
