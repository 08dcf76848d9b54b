package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "netonboard"

var (
	// JobRunTimeSummary observes job durations by terminal status and error kind.
	JobRunTimeSummary = promauto.NewSummaryVec(
		prometheus.SummaryOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Onboarding job run time by status and error kind.",
		},
		[]string{"status", "error_kind"},
	)

	// JobsTotal counts finished jobs.
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Finished onboarding jobs by status and error kind.",
		},
		[]string{"status", "error_kind"},
	)

	// JobAttemptsTotal counts attempts, retries included.
	JobAttemptsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_attempts_total",
			Help:      "Onboarding attempts, retries included.",
		},
	)

	// JobsInFlight is the number of jobs currently holding a worker slot.
	JobsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_in_flight",
			Help:      "Jobs currently running.",
		},
	)

	// ConnectAttemptsTotal counts driver sessions by outcome.
	ConnectAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connect_attempts_total",
			Help:      "Driver sessions by driver and outcome.",
		},
		[]string{"driver", "result"},
	)

	// EntityChangesTotal counts reconciled inventory changes.
	EntityChangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entity_changes_total",
			Help:      "Inventory records created or updated by kind.",
		},
		[]string{"kind", "action"},
	)
)

// ConnectAttempt records one driver session outcome.
func ConnectAttempt(driver, result string) {
	ConnectAttemptsTotal.With(prometheus.Labels{"driver": driver, "result": result}).Inc()
}

// JobFinished records a terminal job.
func JobFinished(status, errorKind string, started time.Time) {
	labels := prometheus.Labels{"status": status, "error_kind": errorKind}
	JobsTotal.With(labels).Inc()
	JobRunTimeSummary.With(labels).Observe(time.Since(started).Seconds())
}

// EntityChanged records one reconciled change.
func EntityChanged(kind, action string) {
	EntityChangesTotal.With(prometheus.Labels{"kind": kind, "action": action}).Inc()
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
