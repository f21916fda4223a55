// Package metrics registers the gateway's Prometheus metrics.
//
// Grounded on cuemby/warren's pkg/metrics: package-level GaugeVec/CounterVec
// variables, registered once and updated by the owning component.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// WorkersTotal tracks live workers by provider and status.
	WorkersTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "zeusgate_workers_total",
			Help: "Number of workers by provider and status.",
		},
		[]string{"provider", "status"},
	)

	// ClientsConnected tracks currently attached client streams.
	ClientsConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "zeusgate_clients_connected",
			Help: "Number of currently attached client streams.",
		},
	)

	// SpawnDuration observes worker spawn latency (start → healthy).
	SpawnDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "zeusgate_spawn_duration_seconds",
			Help:    "Time from spawn request to a worker reporting healthy.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	// HealthProbeFailures counts failed health probes by provider.
	HealthProbeFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zeusgate_health_probe_failures_total",
			Help: "Total failed health probes by provider.",
		},
		[]string{"provider"},
	)

	// FanoutDeliveries counts events delivered to clients by delivery path.
	FanoutDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zeusgate_fanout_deliveries_total",
			Help: "Events delivered to clients, by delivery path (affinity|process|provider).",
		},
		[]string{"path"},
	)
)

func init() {
	prometheus.MustRegister(
		WorkersTotal,
		ClientsConnected,
		SpawnDuration,
		HealthProbeFailures,
		FanoutDeliveries,
	)
}

// Handler returns the HTTP handler to mount at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
