// Package metrics exposes the Prometheus collectors for evaluations, triggers
// and the ops HTTP server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	evaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cadence_evaluations_total",
			Help: "Total number of schedule evaluations by outcome",
		},
		[]string{"tenant", "type", "outcome"},
	)

	triggersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cadence_triggers_total",
			Help: "Total number of triggers published",
		},
		[]string{"tenant", "type", "dry_run"},
	)

	passDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cadence_pass_duration_seconds",
			Help:    "Time spent evaluating every schedule in one runner pass",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	schedulesActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cadence_schedules_enabled",
			Help: "Number of enabled schedules seen by the last pass",
		},
	)

	passErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cadence_pass_errors_total",
			Help: "Schedules that could not be evaluated because of a storage error",
		},
	)

	eventsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cadence_events_processed_total",
			Help: "Trigger events dispatched to subscribers by final status",
		},
		[]string{"status"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cadence_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cadence_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cadence_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	dbConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cadence_db_connections_open",
			Help: "Number of open database connections",
		},
	)

	dbConnectionsInUse = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cadence_db_connections_in_use",
			Help: "Number of database connections currently in use",
		},
	)
)

func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordEvaluation counts one decision. outcome is "triggered" or the
// lower-cased blocked-by reason.
func RecordEvaluation(tenant, scheduleType, outcome string) {
	evaluationsTotal.WithLabelValues(tenant, scheduleType, outcome).Inc()
}

func RecordTrigger(tenant, scheduleType string, dryRun bool) {
	triggersTotal.WithLabelValues(tenant, scheduleType, strconv.FormatBool(dryRun)).Inc()
}

func ObservePass(duration time.Duration, enabled int) {
	passDuration.Observe(duration.Seconds())
	schedulesActive.Set(float64(enabled))
}

func RecordPassError() {
	passErrors.Inc()
}

func RecordEventProcessed(status string) {
	eventsProcessed.WithLabelValues(status).Inc()
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func IncrementInFlight() {
	httpRequestsInFlight.Inc()
}

func DecrementInFlight() {
	httpRequestsInFlight.Dec()
}

func UpdateDBStats(open, inUse int) {
	dbConnectionsOpen.Set(float64(open))
	dbConnectionsInUse.Set(float64(inUse))
}
