package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// webhookEvents counts webhook deliveries by provider and outcome
// (accepted|empty|parse_error|rejected|error).
var webhookEvents = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "concierge_webhook_events_total",
		Help: "Total webhook deliveries by provider and outcome",
	},
	[]string{"provider", "outcome"},
)
