package metrics

import "github.com/prometheus/client_golang/prometheus"

// EventSourceMetrics holds Prometheus metrics for inbound notification events.
type EventSourceMetrics struct {
	Events     *prometheus.CounterVec
	Reconnects prometheus.Counter
}

// NewEventSourceMetrics creates and registers event source metrics on the given registry.
func NewEventSourceMetrics(reg prometheus.Registerer) *EventSourceMetrics {
	m := &EventSourceMetrics{
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "received_total",
			Help:      "Total number of notification events received, by source and result.",
		}, []string{"source", "result"}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "listener_reconnects_total",
			Help:      "Total number of database listener reconnects.",
		}),
	}

	reg.MustRegister(m.Events, m.Reconnects)
	return m
}
