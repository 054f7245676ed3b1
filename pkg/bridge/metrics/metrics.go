// Package metrics exposes a small set of Prometheus collectors describing
// the health of a running bridge: steps completed per direction, time
// spent busy-waiting on the shared buffer's state cell, and protocol
// faults by kind. Metrics are ambient observability, not a simulation
// feature, so they are carried regardless of the spec's non-goals around
// adaptive load rebalancing.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry bundles the collectors a single bridge run publishes.
type Registry struct {
	StepsTotal      *prometheus.CounterVec
	BufferWaitTime  *prometheus.HistogramVec
	ProtocolFaults  *prometheus.CounterVec
	BufferHeaderLen *prometheus.GaugeVec
}

// New constructs a Registry and registers its collectors with reg. Passing
// a fresh prometheus.NewRegistry() keeps tests isolated from the global
// default registry.
func New(reg prometheus.Registerer) *Registry {
	r := &Registry{
		StepsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "interscalehub",
			Name:      "steps_total",
			Help:      "Number of simulation steps completed per direction and role.",
		}, []string{"direction", "role"}),
		BufferWaitTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "interscalehub",
			Name:      "buffer_wait_seconds",
			Help:      "Time spent busy-waiting on the shared buffer state cell.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"direction", "role"}),
		ProtocolFaults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "interscalehub",
			Name:      "protocol_faults_total",
			Help:      "Fatal protocol anomalies by error kind.",
		}, []string{"kind"}),
		BufferHeaderLen: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "interscalehub",
			Name:      "buffer_header_length",
			Help:      "Last header value written to the shared buffer.",
		}, []string{"buffer_type"}),
	}
	reg.MustRegister(r.StepsTotal, r.BufferWaitTime, r.ProtocolFaults, r.BufferHeaderLen)
	return r
}
