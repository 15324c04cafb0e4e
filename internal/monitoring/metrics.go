package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	stateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "edgeflow",
		Name:      "state_transitions_total",
		Help:      "Pipeline context state transitions, by destination state.",
	}, []string{"state"})

	phaseDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "edgeflow",
		Name:      "phase_duration_seconds",
		Help:      "Wall time spent in each pipeline phase.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
	}, []string{"phase"})

	batchesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "edgeflow",
		Name:      "batches_created_total",
		Help:      "Batches created from resolved cluster pairs.",
	})

	liveProcessors = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "edgeflow",
		Name:      "processors_live",
		Help:      "Cluster processors currently held by batches.",
	})

	validationIssues = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "edgeflow",
		Name:      "validation_issues_total",
		Help:      "Recoverable data issues found while resolving cluster pairs.",
	}, []string{"kind"})

	taskFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "edgeflow",
		Name:      "task_failures_total",
		Help:      "Processor tasks that returned an error.",
	})

	runsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "edgeflow",
		Name:      "runs_finished_total",
		Help:      "Finished runs by terminal status.",
	}, []string{"status"})
)

// ObserveTransition counts a state transition.
func ObserveTransition(state string) {
	stateTransitions.WithLabelValues(state).Inc()
}

// ObservePhase records how long a phase took.
func ObservePhase(phase string, d time.Duration) {
	phaseDuration.WithLabelValues(phase).Observe(d.Seconds())
}

// ObserveBatches counts created batches.
func ObserveBatches(n int) {
	batchesCreated.Add(float64(n))
}

// SetLiveProcessors sets the live processor gauge.
func SetLiveProcessors(n int) {
	liveProcessors.Set(float64(n))
}

// ObserveIssue counts one validation issue.
func ObserveIssue(kind string) {
	validationIssues.WithLabelValues(kind).Inc()
}

// ObserveTaskFailures counts failed processor tasks.
func ObserveTaskFailures(n int) {
	taskFailures.Add(float64(n))
}

// ObserveRun counts a finished run.
func ObserveRun(status string) {
	runsFinished.WithLabelValues(status).Inc()
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
