// Package metrics exposes Prometheus counters for the IoT core.
//
// Each Metrics value owns its registry, so tests can create one per case
// without colliding on global registration. All methods are safe on a nil
// *Metrics, which lets packages take metrics as an optional dependency.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "graylogic_iot"

// Metrics holds the service's collectors.
type Metrics struct {
	registry *prometheus.Registry

	actions          *prometheus.CounterVec
	notifications    *prometheus.CounterVec
	publishFailures  *prometheus.CounterVec
	retentionDeleted *prometheus.CounterVec
	schedulerTicks   prometheus.Counter
	motionEvents     *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
}

// New creates and registers every collector, including the Go runtime and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Committed device transitions by trigger and action.",
		}, []string{"trigger", "action"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notifications created by type.",
		}, []string{"type"}),
		publishFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mqtt_publish_failures_total",
			Help:      "Outbound MQTT publishes that failed, by channel.",
		}, []string{"channel"}),
		retentionDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retention_deleted_total",
			Help:      "Rows removed by the retention sweep, by table.",
		}, []string{"table"}),
		schedulerTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduler_ticks_total",
			Help:      "Scheduler minute ticks evaluated.",
		}),
		motionEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "motion_events_total",
			Help:      "Inbound sensor and status events by kind.",
		}, []string{"kind"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.actions,
		m.notifications,
		m.publishFailures,
		m.retentionDeleted,
		m.schedulerTicks,
		m.motionEvents,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ActionExecuted counts a committed transition.
func (m *Metrics) ActionExecuted(trigger, action string) {
	if m == nil {
		return
	}
	m.actions.WithLabelValues(trigger, action).Inc()
}

// NotificationCreated counts a notification fan-out.
func (m *Metrics) NotificationCreated(kind string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(kind).Inc()
}

// PublishFailed counts a failed outbound publish ("action" or "settings").
func (m *Metrics) PublishFailed(channel string) {
	if m == nil {
		return
	}
	m.publishFailures.WithLabelValues(channel).Inc()
}

// RetentionDeleted adds n removed rows for table.
func (m *Metrics) RetentionDeleted(table string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.retentionDeleted.WithLabelValues(table).Add(float64(n))
}

// SchedulerTick counts one evaluated minute.
func (m *Metrics) SchedulerTick() {
	if m == nil {
		return
	}
	m.schedulerTicks.Inc()
}

// MotionEvent counts an inbound event: motion_detected, motion_cleared,
// status or dropped.
func (m *Metrics) MotionEvent(kind string) {
	if m == nil {
		return
	}
	m.motionEvents.WithLabelValues(kind).Inc()
}

// ObserveHTTP records one completed request.
func (m *Metrics) ObserveHTTP(route, method string, status int, seconds float64) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route, method).Observe(seconds)
}
