package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "scgnoti"

// Set bundles every metric group the server registers.
type Set struct {
	Registry  *prometheus.Registry
	HTTP      *HTTPMetrics
	WebSocket *WebSocketMetrics
	Backplane *BackplaneMetrics
	Events    *EventSourceMetrics
}

// NewSet creates a registry with runtime collectors and registers all groups on it.
func NewSet() *Set {
	reg := NewRegistry()
	return &Set{
		Registry:  reg,
		HTTP:      NewHTTPMetrics(reg),
		WebSocket: NewWebSocketMetrics(reg),
		Backplane: NewBackplaneMetrics(reg),
		Events:    NewEventSourceMetrics(reg),
	}
}

// NewRegistry creates a Prometheus registry with Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// Handler returns an http.Handler that serves Prometheus metrics.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}
