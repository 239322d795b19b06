package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DeviceRegistrations counts device registrations by outcome (created|updated|conflict|error).
	DeviceRegistrations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_device_registrations_total",
			Help: "Total number of device registration requests",
		},
		[]string{"outcome"},
	)

	// TokenUpserts counts push token upserts by outcome (created|reactivated|moved|conflict|error).
	TokenUpserts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_token_upserts_total",
			Help: "Total number of push token upserts",
		},
		[]string{"outcome"},
	)

	// Dispatches counts fan-out dispatch requests by source (http|kafka) and result.
	Dispatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_dispatches_total",
			Help: "Total number of notification dispatch requests",
		},
		[]string{"source", "result"},
	)

	// ResolvedRecipients observes how many tokens a single fan-out resolved to.
	ResolvedRecipients = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "notify_resolved_recipients",
			Help:    "Number of delivery tokens resolved per dispatch",
			Buckets: []float64{0, 1, 5, 10, 50, 100, 500, 1000, 5000},
		},
	)

	// GatewaySends counts push gateway deliveries by result (ok|error).
	GatewaySends = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_gateway_sends_total",
			Help: "Total number of push gateway send calls",
		},
		[]string{"result"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notify_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// APIInFlight tracks HTTP requests currently being served.
	APIInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "notify_api_in_flight_requests",
			Help: "Number of HTTP requests currently in flight",
		},
	)
)
