// SPDX-License-Identifier: AGPL-3.0-or-later

// Package metricsx holds the gateway's ambient operational metrics —
// process health, not device telemetry. These are exposed on a separate
// debug HTTP listener from the client-facing WebSocket endpoint.
package metricsx

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the gateway's Prometheus collectors.
type Metrics struct {
	PollLatency       prometheus.Histogram
	AuditDropTotal    prometheus.Counter
	ActiveConnections prometheus.Gauge
	ExecResults       *prometheus.CounterVec
}

// New registers and returns a fresh Metrics bundle against reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		PollLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "lydia_device_poll_latency_ms",
			Help:    "Latency of each status poll exec, in milliseconds.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14),
		}),
		AuditDropTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "lydia_device_audit_drop_total",
			Help: "Count of audit events dropped due to a full queue.",
		}),
		ActiveConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "lydia_device_active_connections",
			Help: "Number of currently connected WebSocket clients.",
		}),
		ExecResults: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lydia_device_exec_results_total",
			Help: "Count of exec results by verb and outcome.",
		}, []string{"verb", "outcome"}),
	}
}

// Handler returns the /metrics HTTP handler for reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// Healthz is a minimal liveness probe: 200 OK once the process is up.
func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}
