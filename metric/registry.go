package metric

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/brickflow/brickflow/errors"
)

// MetricsRegistry manages the registration and lifecycle of metrics
type MetricsRegistry struct {
	prometheusRegistry *prometheus.Registry
	Metrics            *Metrics
	registeredMetrics  map[string]prometheus.Collector
	mu                 sync.RWMutex
}

// NewMetricsRegistry creates a new metrics registry with core platform
// metrics and Go runtime collectors pre-registered
func NewMetricsRegistry() *MetricsRegistry {
	prometheusRegistry := prometheus.NewRegistry()

	registry := &MetricsRegistry{
		prometheusRegistry: prometheusRegistry,
		registeredMetrics:  make(map[string]prometheus.Collector),
	}

	registry.Metrics = NewMetrics()
	for _, c := range registry.Metrics.Collectors() {
		registry.prometheusRegistry.MustRegister(c)
	}

	registry.prometheusRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return registry
}

// Registry exposes the underlying prometheus registry for handler wiring
func (r *MetricsRegistry) Registry() *prometheus.Registry {
	return r.prometheusRegistry
}

// Register adds a service-specific collector under a namespaced key.
// Duplicate keys are rejected so services cannot silently shadow each other.
func (r *MetricsRegistry) Register(serviceName, metricName string, collector prometheus.Collector) error {
	key := serviceName + ":" + metricName

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.registeredMetrics[key]; exists {
		return errors.WrapInvalid(
			fmt.Errorf("metric %q already registered", key),
			"MetricsRegistry", "Register", "duplicate metric check")
	}

	if err := r.prometheusRegistry.Register(collector); err != nil {
		return errors.WrapInvalid(err, "MetricsRegistry", "Register", "prometheus registration")
	}

	r.registeredMetrics[key] = collector
	return nil
}

// Unregister removes a previously registered collector. Returns true if the
// collector existed.
func (r *MetricsRegistry) Unregister(serviceName, metricName string) bool {
	key := serviceName + ":" + metricName

	r.mu.Lock()
	defer r.mu.Unlock()

	collector, exists := r.registeredMetrics[key]
	if !exists {
		return false
	}

	r.prometheusRegistry.Unregister(collector)
	delete(r.registeredMetrics, key)
	return true
}
