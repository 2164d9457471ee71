package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains all platform-level metrics for the composition core and
// its persistence layer
type Metrics struct {
	// Composition metrics
	BrickInserts          *prometheus.CounterVec
	BrickRemovals         *prometheus.CounterVec
	EncoderSettingChanges prometheus.Counter
	ViewerContentChanges  prometheus.Counter

	// Serialization metrics
	Serializations *prometheus.CounterVec

	// Store metrics
	StoreOperations        *prometheus.CounterVec
	StoreOperationDuration *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance with all platform metrics
func NewMetrics() *Metrics {
	return &Metrics{
		BrickInserts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "brickflow",
				Subsystem: "pipe",
				Name:      "brick_inserts_total",
				Help:      "Total number of bricks inserted into pipes",
			},
			[]string{"kind"},
		),

		BrickRemovals: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "brickflow",
				Subsystem: "pipe",
				Name:      "brick_removals_total",
				Help:      "Total number of bricks removed from pipes",
			},
			[]string{"kind"},
		),

		EncoderSettingChanges: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "brickflow",
				Subsystem: "pipe",
				Name:      "encoder_setting_changes_total",
				Help:      "Total number of encoder setting changes bubbled to pipes",
			},
		),

		ViewerContentChanges: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "brickflow",
				Subsystem: "pipe",
				Name:      "viewer_content_changes_total",
				Help:      "Total number of viewer content changes bubbled to pipes",
			},
		),

		Serializations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "brickflow",
				Subsystem: "serialization",
				Name:      "operations_total",
				Help:      "Total number of pipe extraction operations",
			},
			[]string{"operation", "status"},
		),

		StoreOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "brickflow",
				Subsystem: "store",
				Name:      "operations_total",
				Help:      "Total number of pipe store operations",
			},
			[]string{"operation", "status"},
		),

		StoreOperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "brickflow",
				Subsystem: "store",
				Name:      "operation_duration_seconds",
				Help:      "Pipe store operation duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// Collectors returns all metrics for registration
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.BrickInserts,
		m.BrickRemovals,
		m.EncoderSettingChanges,
		m.ViewerContentChanges,
		m.Serializations,
		m.StoreOperations,
		m.StoreOperationDuration,
	}
}

// RegisterAll registers every metric with the registry under the given
// service name
func (m *Metrics) RegisterAll(registry *MetricsRegistry, service string) error {
	named := map[string]prometheus.Collector{
		"brick_inserts":            m.BrickInserts,
		"brick_removals":           m.BrickRemovals,
		"encoder_setting_changes":  m.EncoderSettingChanges,
		"viewer_content_changes":   m.ViewerContentChanges,
		"serializations":           m.Serializations,
		"store_operations":         m.StoreOperations,
		"store_operation_duration": m.StoreOperationDuration,
	}

	for name, collector := range named {
		if err := registry.Register(service, name, collector); err != nil {
			return err
		}
	}
	return nil
}
