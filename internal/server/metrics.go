package server

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/daviddozie/flowvahub/internal/authflow"
	"github.com/daviddozie/flowvahub/internal/session"
)

var (
	histogramBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10}
)

// metrics owns a registry per server so several servers can coexist in one process.
type metrics struct {
	registry       *prometheus.Registry
	requestTotal   *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
	authOutcomes   *prometheus.CounterVec
	sessionEvents  *prometheus.CounterVec
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowva",
			Subsystem: "web",
			Name:      "http_requests_total",
			Help:      "Count of processed HTTP requests",
		}, []string{"method", "route", "status"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "flowva",
			Subsystem: "web",
			Name:      "http_request_duration_seconds",
			Help:      "Latency distribution of HTTP handlers",
			Buckets:   histogramBuckets,
		}, []string{"method", "route", "status"}),
		authOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowva",
			Subsystem: "web",
			Name:      "auth_submissions_total",
			Help:      "Auth form submissions and callbacks by flow and outcome",
		}, []string{"flow", "outcome"}),
		sessionEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowva",
			Subsystem: "web",
			Name:      "session_events_published_total",
			Help:      "Session change events published to subscribers",
		}, []string{"type", "result"}),
	}
	m.registry.MustRegister(
		m.requestTotal,
		m.requestLatency,
		m.authOutcomes,
		m.sessionEvents,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *metrics) recordRequest(method, route string, status int, duration time.Duration) {
	labels := prometheus.Labels{
		"method": method,
		"route":  route,
		"status": strconv.Itoa(status),
	}
	m.requestTotal.With(labels).Inc()
	m.requestLatency.With(labels).Observe(duration.Seconds())
}

// Observe implements authflow.Observer.
func (m *metrics) Observe(kind authflow.Kind, outcome authflow.Outcome) {
	m.authOutcomes.With(prometheus.Labels{"flow": string(kind), "outcome": string(outcome)}).Inc()
}

func (m *metrics) recordSessionEvent(t session.EventType, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.sessionEvents.With(prometheus.Labels{"type": string(t), "result": result}).Inc()
}
