package server

import (
	"time"

	"github.com/harunnryd/shiori/internal/tool"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DefaultToolDurationBuckets range from a cached lookup to a slow upstream.
var DefaultToolDurationBuckets = []float64{
	0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// Metrics holds Prometheus metrics for the tool-provider server.
type Metrics struct {
	// SessionsActive tracks open SSE streams.
	SessionsActive prometheus.Gauge

	// SessionsTotal counts streams opened since start.
	SessionsTotal prometheus.Counter

	// ToolCalls counts tool executions by tool and status.
	ToolCalls *prometheus.CounterVec

	// ToolDuration tracks tool execution time in seconds.
	ToolDuration *prometheus.HistogramVec
}

// NewMetrics creates Metrics registered against reg. Use prometheus.NewRegistry() in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "shiori_server_sessions_active",
			Help: "Number of open MCP SSE sessions",
		}),

		SessionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "shiori_server_sessions_total",
			Help: "Total MCP SSE sessions opened",
		}),

		ToolCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shiori_server_tool_calls_total",
			Help: "Total tool calls by tool and status",
		}, []string{"tool", "status"}),

		ToolDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "shiori_server_tool_duration_seconds",
			Help:    "Tool execution duration in seconds",
			Buckets: DefaultToolDurationBuckets,
		}, []string{"tool"}),
	}
}

// Initialize pre-registers label sets so they appear in /metrics at startup.
func (m *Metrics) Initialize(tools []string) {
	for _, name := range tools {
		for _, status := range []string{tool.StatusSuccess, tool.StatusInvalidInput, tool.StatusError} {
			m.ToolCalls.WithLabelValues(name, status).Add(0)
		}
		m.ToolDuration.WithLabelValues(name)
	}
}

func (m *Metrics) ObserveToolCall(name, status string, duration time.Duration) {
	m.ToolCalls.WithLabelValues(name, status).Inc()
	if status != tool.StatusInvalidInput {
		m.ToolDuration.WithLabelValues(name).Observe(duration.Seconds())
	}
}

func (m *Metrics) SessionOpened(string) {
	m.SessionsActive.Inc()
	m.SessionsTotal.Inc()
}

func (m *Metrics) SessionClosed(string) {
	m.SessionsActive.Dec()
}
