package metric

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every clinvault metric.
const Namespace = "clinvault"

// Registry owns the Prometheus registry of the process.
type Registry struct {
	registry *prometheus.Registry
}

// NewRegistry creates a registry preloaded with the Go runtime and
// process collectors.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &Registry{registry: reg}
}

var (
	globalOnce sync.Once
	global     *Registry
)

// Global returns the process-wide registry.
func Global() *Registry {
	globalOnce.Do(func() { global = NewRegistry() })
	return global
}

// Registerer returns the registerer for components that add their own metrics.
func (r *Registry) Registerer() prometheus.Registerer {
	return r.registry
}

// Gatherer returns the gatherer backing Handler.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// StorageOps records the outcome and latency of storage engine operations.
// A nil *StorageOps is valid and records nothing.
type StorageOps struct {
	total    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewStorageOps registers the storage operation metrics on reg.
func NewStorageOps(reg prometheus.Registerer) (*StorageOps, error) {
	ops := &StorageOps{
		total: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "storage",
			Name:      "operations_total",
			Help:      "Storage engine operations by operation and result.",
		}, []string{"op", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "storage",
			Name:      "operation_duration_seconds",
			Help:      "Storage engine operation latency.",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
		}, []string{"op"}),
	}
	for _, c := range []prometheus.Collector{ops.total, ops.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return ops, nil
}

// Observe records one operation that started at start.
func (o *StorageOps) Observe(op string, start time.Time, err error) {
	if o == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	o.total.WithLabelValues(op, result).Inc()
	o.duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
