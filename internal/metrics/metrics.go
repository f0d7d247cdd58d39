// Package metrics exposes scan and alert counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"campus-access-backend/internal/model"
	"campus-access-backend/internal/presence"
)

// Metrics records scan and alert measurements on a private Prometheus registry.
type Metrics struct {
	registry     *prometheus.Registry
	scans        *prometheus.CounterVec
	scanDuration *prometheus.HistogramVec
	alerts       *prometheus.CounterVec
}

// New creates the collectors on a private registry together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "campus_access",
			Name:      "scans_total",
			Help:      "Tag scans processed by the presence ledger.",
		}, []string{"location", "outcome", "reason"}),
		scanDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "campus_access",
			Name:      "scan_duration_seconds",
			Help:      "Time from scan validation to commit.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}, []string{"location"}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "campus_access",
			Name:      "alerts_total",
			Help:      "Emergency alerts submitted.",
		}, []string{"type", "severity"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.scans,
		m.scanDuration,
		m.alerts,
	)
	return m
}

// ObserveScan implements presence.Observer.
func (m *Metrics) ObserveScan(location model.Location, outcome presence.Outcome, reason presence.Reason, took time.Duration) {
	m.scans.WithLabelValues(string(location), string(outcome), string(reason)).Inc()
	m.scanDuration.WithLabelValues(string(location)).Observe(took.Seconds())
}

// ObserveAlert implements alert.Observer.
func (m *Metrics) ObserveAlert(a model.Alert) {
	m.alerts.WithLabelValues(string(a.Type), string(a.Severity)).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
