// Package metrics exposes the Prometheus collectors for the control plane:
// workflow/job outcomes, route table size, proxy request counts, and
// managed-service readiness.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Workflow Engine metrics
	JobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "temps_jobs_total",
			Help: "Total number of deployment jobs by job_type and status",
		},
		[]string{"job_type", "status"},
	)

	JobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "temps_job_duration_seconds",
			Help:    "Deployment job duration in seconds by job_type",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"job_type"},
	)

	DeploymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "temps_deployments_total",
			Help: "Total number of deployments by status",
		},
		[]string{"status"},
	)

	DeploymentDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "temps_deployment_duration_seconds",
			Help:    "End-to-end deployment duration in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
	)

	CleanupCallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "temps_cleanup_callbacks_total",
			Help: "Total number of cleanup callbacks run by outcome",
		},
		[]string{"outcome"},
	)

	// Deployment Readiness metrics
	ReadinessDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "temps_readiness_duration_seconds",
			Help:    "Time taken for a deployed container to become ready",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReadinessTimeoutsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "temps_readiness_timeouts_total",
			Help: "Total number of deployments that failed readiness within their timeout",
		},
	)

	// Route Table metrics
	RouteTableSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "temps_route_table_size",
			Help: "Number of routes in the current Route Table snapshot",
		},
	)

	RouteTableReloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "temps_route_table_reloads_total",
			Help: "Total number of Route Table reloads by outcome",
		},
		[]string{"outcome"},
	)

	RouteTableReloadDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "temps_route_table_reload_duration_seconds",
			Help:    "Time taken to rebuild the Route Table snapshot",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Edge Proxy metrics
	ProxyRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "temps_proxy_requests_total",
			Help: "Total number of proxied requests by host and outcome",
		},
		[]string{"host", "outcome"},
	)

	ProxyRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "temps_proxy_request_duration_seconds",
			Help:    "Proxied request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"host"},
	)

	// Managed-Service Supervisor metrics
	ManagedServiceStateTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "temps_managed_service_state_transitions_total",
			Help: "Total number of managed-service supervisor state transitions",
		},
		[]string{"service", "state"},
	)

	ManagedServiceReadyDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "temps_managed_service_ready_duration_seconds",
			Help:    "Time taken for a managed service to become Ready",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service"},
	)

	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "temps_store_notifications_total",
			Help: "Total number of persistent store notifications published by channel",
		},
		[]string{"channel"},
	)
)

func init() {
	prometheus.MustRegister(
		JobsTotal,
		JobDuration,
		DeploymentsTotal,
		DeploymentDuration,
		CleanupCallbacksTotal,
		ReadinessDuration,
		ReadinessTimeoutsTotal,
		RouteTableSize,
		RouteTableReloadsTotal,
		RouteTableReloadDuration,
		ProxyRequestsTotal,
		ProxyRequestDuration,
		ManagedServiceStateTransitionsTotal,
		ManagedServiceReadyDuration,
		NotificationsTotal,
	)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures elapsed time for later recording against a histogram.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time against histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed time against a labeled histogram.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
