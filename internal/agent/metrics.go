package agent

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects engine observability counters.
//
// All metrics register with Prometheus's default registry and surface at the
// /metrics endpoint. Construct once at startup and share across engines.
type Metrics struct {
	// Invocations counts engine runs by terminal status (ok|error).
	Invocations *prometheus.CounterVec

	// StageDuration measures per-stage wall time in seconds.
	StageDuration *prometheus.HistogramVec

	// ToolCalls counts tool invocations by tool name and status.
	ToolCalls *prometheus.CounterVec
}

// NewMetrics creates and registers all engine metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		Invocations: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "concierge_engine_invocations_total",
				Help: "Total engine invocations by terminal status",
			},
			[]string{"status"},
		),
		StageDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "concierge_engine_stage_duration_seconds",
				Help:    "Duration of pipeline stages in seconds",
				Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
			},
			[]string{"stage"},
		),
		ToolCalls: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "concierge_engine_tool_calls_total",
				Help: "Total tool invocations by tool and status",
			},
			[]string{"tool", "status"},
		),
	}
}
