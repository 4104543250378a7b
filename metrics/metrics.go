// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_http_requests_total",
			Help: "HTTP requests by method, route pattern and status code",
		},
		[]string{"method", "route", "status"},
	)
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crm_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	Enrollments = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "crm_enrollments_total",
			Help: "Leads converted into billing obligations",
		},
	)
	RecordsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_financial_records_created_total",
			Help: "Financial records created, by origin",
		},
		[]string{"origin"},
	)
	EventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_events_published_total",
			Help: "Events published, by topic and outcome",
		},
		[]string{"topic", "outcome"},
	)
	OverdueRecords = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "crm_overdue_marked_last_sweep",
			Help: "Records flipped to OVERDUE by the last sweep",
		},
	)
	NotificationsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_notifications_total",
			Help: "Notification emails, by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)
)

var registerOnce sync.Once

// Register adds the collectors to the default registry. Safe to call more
// than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			HTTPRequests,
			HTTPDuration,
			Enrollments,
			RecordsCreated,
			EventsPublished,
			OverdueRecords,
			NotificationsSent,
		)
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRequest records one served request.
func ObserveRequest(method, route string, status int, elapsed time.Duration) {
	HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
