package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks server activity, exposed on /metrics.
type Metrics struct {
	// Connections counts accepted websocket connections.
	Connections prometheus.Counter

	// Events counts outbound realtime events by type.
	Events *prometheus.CounterVec

	// ToolExecutions counts tool invocations by tool name.
	ToolExecutions *prometheus.CounterVec
}

// NewMetrics registers the server metrics on a fresh registry and returns
// both, keeping tests isolated from the default registry.
func NewMetrics() (*Metrics, *prometheus.Registry) {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	return &Metrics{
		Connections: factory.NewCounter(prometheus.CounterOpts{
			Name: "agentd_connections_total",
			Help: "Accepted websocket connections.",
		}),
		Events: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agentd_events_total",
			Help: "Realtime events sent to clients.",
		}, []string{"type"}),
		ToolExecutions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agentd_tool_executions_total",
			Help: "Tool invocations observed on the event stream.",
		}, []string{"tool"}),
	}, registry
}
