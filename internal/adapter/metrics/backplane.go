package metrics

import "github.com/prometheus/client_golang/prometheus"

// BackplaneMetrics holds Prometheus metrics for cross-instance fan-out.
type BackplaneMetrics struct {
	Published    *prometheus.CounterVec
	Received     prometheus.Counter
	RedisLatency *prometheus.HistogramVec
	RedisErrors  *prometheus.CounterVec
	BreakerState prometheus.Gauge
}

// NewBackplaneMetrics creates and registers backplane metrics on the given registry.
func NewBackplaneMetrics(reg prometheus.Registerer) *BackplaneMetrics {
	m := &BackplaneMetrics{
		Published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backplane",
			Name:      "published_total",
			Help:      "Total number of backplane publishes, by result.",
		}, []string{"result"}),
		Received: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backplane",
			Name:      "received_total",
			Help:      "Total number of messages received from the backplane.",
		}),
		RedisLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "redis",
			Name:      "command_duration_seconds",
			Help:      "Duration of Redis commands in seconds.",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1},
		}, []string{"command"}),
		RedisErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "redis",
			Name:      "command_errors_total",
			Help:      "Total number of failed Redis commands.",
		}, []string{"command"}),
		BreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "redis",
			Name:      "circuit_breaker_state",
			Help:      "Redis circuit breaker state (0=closed, 1=half-open, 2=open).",
		}),
	}

	reg.MustRegister(m.Published, m.Received, m.RedisLatency, m.RedisErrors, m.BreakerState)
	return m
}
