// Package metrics exposes Prometheus instruments for attendance marking,
// window configuration, and the HTTP surface.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/field-attendance/internal/window"
)

const namespace = "attendance"

// Metrics owns a private registry and the instruments registered on it.
type Metrics struct {
	Registry *prometheus.Registry

	markingsTotal   *prometheus.CounterVec
	rejectionsTotal *prometheus.CounterVec
	windowUpdates   *prometheus.CounterVec
	historyRequests prometheus.Counter
	attendanceRate  prometheus.Histogram
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

// New builds a registry with the attendance instruments plus the Go runtime
// and process collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Metrics{
		Registry: registry,
		markingsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "markings_total",
			Help:      "Attendance markings accepted, by classification",
		}, []string{"classification"}),
		rejectionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "marking_rejections_total",
			Help:      "Attendance markings rejected, by reason",
		}, []string{"reason"}),
		windowUpdates: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "window_updates_total",
			Help:      "Window configuration changes, by scope kind",
		}, []string{"scope_kind"}),
		historyRequests: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_requests_total",
			Help:      "Attendance history listings served",
		}),
		attendanceRate: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "history_attendance_rate",
			Help:      "Attendance rate of served history listings with at least one expected day",
			Buckets:   []float64{0.25, 0.5, 0.75, 0.9, 0.95, 1},
		}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests handled, by route and status code",
		}, []string{"route", "code"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency, by route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

// MarkingRecorded counts an accepted marking.
func (m *Metrics) MarkingRecorded(classification window.Classification) {
	m.markingsTotal.WithLabelValues(string(classification)).Inc()
}

// MarkingRejected counts a rejected marking. reason is a stable error kind.
func (m *Metrics) MarkingRejected(reason string) {
	if reason == "" {
		reason = "unexpected"
	}
	m.rejectionsTotal.WithLabelValues(reason).Inc()
}

// WindowUpdated counts a window change. Manager scopes collapse into one
// label value to bound cardinality.
func (m *Metrics) WindowUpdated(scope string) {
	m.windowUpdates.WithLabelValues(scopeKind(scope)).Inc()
}

// HistoryServed counts a history listing and observes its rate.
func (m *Metrics) HistoryServed(expectedDays int, attendanceRate float64) {
	m.historyRequests.Inc()
	if expectedDays > 0 {
		m.attendanceRate.Observe(attendanceRate)
	}
}

// ObserveRequest records one handled HTTP request.
func (m *Metrics) ObserveRequest(route string, status int, elapsed time.Duration) {
	m.httpRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

func scopeKind(scope string) string {
	switch {
	case scope == "" || scope == "global":
		return "global"
	case strings.HasPrefix(scope, "manager:"):
		return "manager"
	}
	return "other"
}
