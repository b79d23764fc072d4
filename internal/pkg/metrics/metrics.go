/*
Package metrics holds the Prometheus collectors of the client core.

All collectors live on a private registry served by the companion server at /metrics.
Every method is safe to call on a nil *Metrics so that components can run without metrics
(for example in one-shot CLI commands).
*/
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metric collectors.
type Metrics struct {
	registry *prometheus.Registry

	// Remote API gateway.
	RemoteRequestsTotal   *prometheus.CounterVec
	RemoteRequestDuration *prometheus.HistogramVec

	// Local-first writes whose remote half failed and was swallowed.
	BestEffortFailuresTotal *prometheus.CounterVec

	// Session state machine.
	SessionTransitionsTotal *prometheus.CounterVec

	// Tab hub.
	TabsConnected  prometheus.Gauge
	TabEventsTotal *prometheus.CounterVec

	// Companion server.
	RateLimitRejectionsTotal *prometheus.CounterVec
	ServerStartTime          prometheus.Gauge
}

// New creates and registers all metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,

		RemoteRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "holidaze_remote_requests_total",
			Help: "Total number of booking API requests by operation and status class.",
		}, []string{"operation", "status"}),

		RemoteRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "holidaze_remote_request_duration_seconds",
			Help:    "Latency of booking API requests in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),

		BestEffortFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "holidaze_best_effort_failures_total",
			Help: "Remote writes that failed after the local copy was committed.",
		}, []string{"operation"}),

		SessionTransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "holidaze_session_transitions_total",
			Help: "Session state transitions by target state and cause.",
		}, []string{"state", "cause"}),

		TabsConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "holidaze_tabs_connected",
			Help: "Number of connected tab websockets.",
		}),

		TabEventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "holidaze_tab_events_total",
			Help: "Events broadcast to connected tabs by type.",
		}, []string{"type"}),

		RateLimitRejectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "holidaze_ratelimit_rejections_total",
			Help: "Requests rejected by the companion server rate limiter.",
		}, []string{"scope"}),

		ServerStartTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "holidaze_server_start_time_seconds",
			Help: "Unix timestamp of companion server start.",
		}),
	}

	reg.MustRegister(
		m.RemoteRequestsTotal,
		m.RemoteRequestDuration,
		m.BestEffortFailuresTotal,
		m.SessionTransitionsTotal,
		m.TabsConnected,
		m.TabEventsTotal,
		m.RateLimitRejectionsTotal,
		m.ServerStartTime,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m.ServerStartTime.Set(float64(time.Now().Unix()))

	return m
}

// Registry returns the private Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRemote records one booking API call. status is the HTTP status or 0 for transport errors.
func (m *Metrics) ObserveRemote(operation string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RemoteRequestsTotal.WithLabelValues(operation, statusClass(status)).Inc()
	m.RemoteRequestDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// IncBestEffortFailure counts a swallowed remote write failure.
func (m *Metrics) IncBestEffortFailure(operation string) {
	if m == nil {
		return
	}
	m.BestEffortFailuresTotal.WithLabelValues(operation).Inc()
}

// IncSessionTransition counts a session state change.
func (m *Metrics) IncSessionTransition(state, cause string) {
	if m == nil {
		return
	}
	m.SessionTransitionsTotal.WithLabelValues(state, cause).Inc()
}

// TabConnected adjusts the connected tabs gauge by delta.
func (m *Metrics) TabConnected(delta int) {
	if m == nil {
		return
	}
	m.TabsConnected.Add(float64(delta))
}

// IncTabEvent counts one broadcast event.
func (m *Metrics) IncTabEvent(eventType string) {
	if m == nil {
		return
	}
	m.TabEventsTotal.WithLabelValues(eventType).Inc()
}

// IncRateLimitRejection counts a rejected request for the given limiter scope.
func (m *Metrics) IncRateLimitRejection(scope string) {
	if m == nil {
		return
	}
	m.RateLimitRejectionsTotal.WithLabelValues(scope).Inc()
}

func statusClass(status int) string {
	if status <= 0 {
		return "error"
	}
	return strconv.Itoa(status/100) + "xx"
}
