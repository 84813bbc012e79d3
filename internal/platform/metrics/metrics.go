package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	KeyOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_api_key_operations_total",
		Help: "API key operations by type and outcome.",
	}, []string{"operation", "outcome"})

	GatewayUp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "portal_gateway_up",
		Help: "Result of the most recent gateway health probe.",
	})

	GatewayConnectionFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "portal_gateway_connection_failures_total",
		Help: "Gateway admin API calls that failed before receiving a response.",
	})

	GatewayRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "portal_gateway_request_duration_seconds",
		Help:    "Latency of gateway admin API calls.",
		Buckets: prometheus.DefBuckets,
	})

	StreamSubscriptions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_log_stream_subscriptions_total",
		Help: "Log stream subscriptions by terminal state.",
	}, []string{"state"})
)
