package inspectcore

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the prometheus collectors the pipeline updates on every
// request. Each Pipeline owns its own Metrics instance; its collectors are
// registered only with the private Registry, which embedders gather from.
type Metrics struct {
	Registry       *prometheus.Registry
	decisionsTotal *prometheus.CounterVec
	duration       prometheus.Histogram
}

// NewMetrics builds a fresh Metrics instance whose collectors are
// registered with its own private registry rather than the prometheus
// default registry, mirroring the teacher's per-instance metrics wiring.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		decisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "inspectcore",
			Name:      "decisions_total",
			Help:      "Count of pipeline decisions by terminal stage.",
		}, []string{"stage"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "inspectcore",
			Name:      "inspect_duration_seconds",
			Help:      "Latency of a full Inspect call.",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 2, 14),
		}),
	}
	reg.MustRegister(m.decisionsTotal, m.duration)
	return m
}

// ObserveDecision increments the decisions-by-stage counter.
func (m *Metrics) ObserveDecision(stage string) {
	m.decisionsTotal.WithLabelValues(stage).Inc()
}

// StartTimer returns a prometheus timer that records into the inspect
// duration histogram when observed.
func (m *Metrics) StartTimer() *prometheus.Timer {
	return prometheus.NewTimer(m.duration)
}
