package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "taskview"

// HTTPMetrics counts and times HTTP requests
type HTTPMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// NewHTTPMetrics registers the HTTP request metrics with reg.
func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	m := &HTTPMetrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}

	reg.MustRegister(m.requestsTotal, m.requestDuration)
	return m
}

// Middleware records every request that passes through it.
func (m *HTTPMetrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			duration := time.Since(start)
			status := c.Response().Status
			if err != nil {
				// the error handler has not written the response yet
				var he *echo.HTTPError
				if errors.As(err, &he) {
					status = he.Code
				}
				if status == 0 || status == http.StatusOK {
					status = http.StatusInternalServerError
				}
			}

			m.requestsTotal.WithLabelValues(
				c.Request().Method,
				c.Path(),
				fmt.Sprintf("%d", status),
			).Inc()

			m.requestDuration.WithLabelValues(
				c.Request().Method,
				c.Path(),
			).Observe(duration.Seconds())

			return err
		}
	}
}

// NotificationMetrics tracks reminder notification syncs. A nil
// *NotificationMetrics is valid and records nothing.
type NotificationMetrics struct {
	syncs        *prometheus.CounterVec
	schedules    *prometheus.CounterVec
	cancelled    prometheus.Counter
	syncDuration prometheus.Histogram
}

// NewNotificationMetrics registers the notification metrics with reg.
func NewNotificationMetrics(reg prometheus.Registerer) *NotificationMetrics {
	m := &NotificationMetrics{
		syncs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notification_syncs_total",
				Help:      "Notification syncs by final state",
			},
			[]string{"state"},
		),
		schedules: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notification_schedules_total",
				Help:      "Reminder scheduling attempts by outcome",
			},
			[]string{"outcome"},
		),
		cancelled: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_cancelled_total",
				Help:      "Scheduled notifications cancelled before rescheduling",
			},
		),
		syncDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "notification_sync_duration_seconds",
				Help:      "Time spent cancelling and rescheduling a task's notifications",
				Buckets:   prometheus.DefBuckets,
			},
		),
	}

	reg.MustRegister(m.syncs, m.schedules, m.cancelled, m.syncDuration)
	return m
}

func (m *NotificationMetrics) ObserveSync(state string, d time.Duration) {
	if m == nil {
		return
	}
	m.syncs.WithLabelValues(state).Inc()
	m.syncDuration.Observe(d.Seconds())
}

func (m *NotificationMetrics) ObserveSchedule(outcome string) {
	if m == nil {
		return
	}
	m.schedules.WithLabelValues(outcome).Inc()
}

func (m *NotificationMetrics) AddCancelled(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.cancelled.Add(float64(n))
}
