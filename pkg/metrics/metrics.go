// Package metrics registers the counters and histograms an operator scrapes
// off a storage or balancer daemon's /metrics endpoint.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the per-operation instrumentation for one daemon process.
// A nil *Metrics is safe to call methods on — every method is a no-op —
// so callers that don't wire metrics don't need to guard every call site.
type Metrics struct {
	reg *prometheus.Registry

	opsTotal    *prometheus.CounterVec
	opErrors    *prometheus.CounterVec
	opDuration  *prometheus.HistogramVec
	bytesPut    prometheus.Counter
	bytesGet    prometheus.Counter
	gcGenerat   prometheus.Gauge
	compactions *prometheus.CounterVec
}

// New builds a fresh Metrics registered on its own prometheus.Registry, so
// multiple daemons in one process (e.g. a test harness running a storage
// server and a balancer side by side) never collide on metric names.
func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		reg: reg,
		opsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ops_total",
			Help:      "Number of CAS operations processed, by method.",
		}, []string{"method"}),
		opErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "op_errors_total",
			Help:      "Number of CAS operations that returned an error, by method and error kind.",
		}, []string{"method", "kind"}),
		opDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "op_duration_seconds",
			Help:      "CAS operation latency, by method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		bytesPut: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_put_total",
			Help:      "Total bytes accepted by put.",
		}),
		bytesGet: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_get_total",
			Help:      "Total bytes served by get.",
		}),
		gcGenerat: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "gc_generation",
			Help:      "Current garbage collection generation id, or 0 if no collection is in progress.",
		}),
		compactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compactions_total",
			Help:      "Number of compaction passes run, by outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(m.opsTotal, m.opErrors, m.opDuration, m.bytesPut, m.bytesGet, m.gcGenerat, m.compactions)
	return m
}

// Handler returns an http.Handler suitable for mounting at /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// ObserveOp records the outcome and latency of a single RPC method call.
// errKind should be the empty string on success.
func (m *Metrics) ObserveOp(method string, seconds float64, errKind string) {
	if m == nil {
		return
	}
	m.opsTotal.WithLabelValues(method).Inc()
	m.opDuration.WithLabelValues(method).Observe(seconds)
	if errKind != "" {
		m.opErrors.WithLabelValues(method, errKind).Inc()
	}
}

func (m *Metrics) AddBytesPut(n int) {
	if m == nil {
		return
	}
	m.bytesPut.Add(float64(n))
}

func (m *Metrics) AddBytesGet(n int) {
	if m == nil {
		return
	}
	m.bytesGet.Add(float64(n))
}

func (m *Metrics) SetGCGeneration(id uint64) {
	if m == nil {
		return
	}
	m.gcGenerat.Set(float64(id))
}

func (m *Metrics) ObserveCompaction(outcome string) {
	if m == nil {
		return
	}
	m.compactions.WithLabelValues(outcome).Inc()
}
