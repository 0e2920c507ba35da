// Package observability provides Prometheus metrics for the orchestrator.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/relicta-tech/launchpad/internal/domain/publish/ports"
)

const namespace = "launchpad"

// Metrics implements ports.Metrics on a private Prometheus registry.
type Metrics struct {
	registry *prometheus.Registry

	publishes     *prometheus.CounterVec
	callbacks     *prometheus.CounterVec
	notifications *prometheus.CounterVec
	rollbacks     *prometheus.CounterVec
	startTime     time.Time
}

// Ensure Metrics implements ports.Metrics.
var _ ports.Metrics = (*Metrics)(nil)

// NewMetrics creates the collectors and registers them together with the Go
// runtime and process collectors.
func NewMetrics(version string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publishes_total",
			Help:      "Publish requests by project type, environment and outcome.",
		}, []string{"project_type", "environment", "outcome"}),
		callbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "build_callbacks_total",
			Help:      "Build completion reports by result and whether they changed the task.",
		}, []string{"result", "applied"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Upstream build notifications by outcome.",
		}, []string{"outcome"}),
		rollbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rollbacks_total",
			Help:      "Production rollbacks by project type and outcome.",
		}, []string{"project_type", "outcome"}),
		startTime: time.Now(),
	}

	info := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "info",
		Help:        "Build information.",
		ConstLabels: prometheus.Labels{"version": version},
	})
	info.Set(1)

	uptime := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "uptime_seconds",
		Help:      "Seconds since the process started.",
	}, func() float64 { return time.Since(m.startTime).Seconds() })

	m.registry.MustRegister(
		m.publishes, m.callbacks, m.notifications, m.rollbacks, info, uptime,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObservePublish counts a publish request.
func (m *Metrics) ObservePublish(projectType, env, outcome string) {
	m.publishes.WithLabelValues(projectType, env, outcome).Inc()
}

// ObserveCallback counts a build completion report.
func (m *Metrics) ObserveCallback(result string, applied bool) {
	m.callbacks.WithLabelValues(result, strconv.FormatBool(applied)).Inc()
}

// ObserveNotification counts an upstream notification attempt.
func (m *Metrics) ObserveNotification(outcome string) {
	m.notifications.WithLabelValues(outcome).Inc()
}

// ObserveRollback counts a rollback.
func (m *Metrics) ObserveRollback(projectType, outcome string) {
	m.rollbacks.WithLabelValues(projectType, outcome).Inc()
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the /metrics handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
