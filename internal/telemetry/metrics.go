// Package telemetry provides logging setup and Prometheus metrics for the
// auth service and the task worker.
//
// All metrics are registered against the default Prometheus registry and are
// served by the side-channel HTTP server each binary starts:
//
//	GET http://<host>:<AUTHSVC_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// The endpoint is not served by the Gin router.
//
// # Metric Groups
//
//   - HTTP request counters and latency histograms (labelled by route template)
//   - Signup, authentication failure and rate-limit counters
//   - Outbound notification outcomes
//   - Task worker outcomes, backoffs and current state
//   - Database connection pool gauge (polled every 30 s)
package telemetry

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics, labelled by method, route template and status code. The path
// label is the Gin route template (e.g. /api/v1/organizations/:org_id/members),
// never the raw URL.
//
// Example PromQL queries:
//   - Error rate (%):   sum(rate(http_requests_total{status=~"5.."}[5m])) / sum(rate(http_requests_total[5m])) * 100
//   - p99 per route:    histogram_quantile(0.99, sum by (path, le) (rate(http_request_duration_seconds_bucket[5m])))
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// Identity metrics.
//
// AuthFailuresTotal{reason} counts rejected signins and token checks. reason is
// one of invalid_credentials, invalid_token, forbidden. A sudden spike in
// invalid_credentials is the usual credential-stuffing signal.
//
// RateLimitedTotal{route} counts requests refused by the Redis limiter.
var (
	SignupsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "auth_signups_total",
			Help: "Total number of completed signups.",
		},
	)

	AuthFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_failures_total",
			Help: "Total number of rejected authentication or authorization attempts, by reason.",
		},
		[]string{"reason"},
	)

	RateLimitedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_rate_limited_total",
			Help: "Total number of requests rejected by the rate limiter, by route template.",
		},
		[]string{"route"},
	)
)

// NotificationsTotal{kind, outcome} counts outbound emails. kind is welcome,
// login_alert, password_updated or invite; outcome is sent or failed. Failed
// deliveries never fail the triggering request, so this counter is the only
// place they surface.
var NotificationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "notifications_total",
		Help: "Total number of notification emails attempted, by kind and outcome.",
	},
	[]string{"kind", "outcome"},
)

// Worker metrics.
//
// WorkerTasksTotal{outcome}: processed, malformed, dead_lettered, failed.
// WorkerBackoffsTotal{reason}: dequeue, persist.
// WorkerState{state} is 1 for the state the loop is currently in and 0 for
// the others.
//
// Example PromQL queries:
//   - Throughput:            rate(worker_tasks_total{outcome="processed"}[5m])
//   - Stuck in backoff:      worker_state{state="backoff"} == 1
var (
	WorkerTasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_tasks_total",
			Help: "Total number of queue messages handled by the task worker, by outcome.",
		},
		[]string{"outcome"},
	)

	WorkerBackoffsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_backoffs_total",
			Help: "Total number of times the task worker backed off after an infrastructure failure, by reason.",
		},
		[]string{"reason"},
	)

	WorkerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_state",
			Help: "Current task worker state (1 = active state).",
		},
		[]string{"state"},
	)
)

// PanicsRecoveredTotal counts panics caught by safego, by task name. Any
// increase is a bug worth alerting on.
var PanicsRecoveredTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "panics_recovered_total",
		Help: "Total number of panics recovered in background or guarded work, by task.",
	},
	[]string{"task"},
)

// DBOpenConnections tracks the open connections held by the pool. It is
// sampled every 30 seconds by StartDBStatsCollector.
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector samples pool statistics every 30 seconds until ctx is
// cancelled or the database becomes unreachable.
func StartDBStatsCollector(ctx context.Context, db *sql.DB) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := db.PingContext(ctx); err != nil {
					slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
					return
				}
				DBOpenConnections.Set(float64(db.Stats().OpenConnections))
			}
		}
	}()
}
