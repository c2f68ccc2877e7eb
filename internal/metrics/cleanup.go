package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Cleanup steps.
const (
	StepKill          = "kill"
	StepDetach        = "detach"
	StepEngineStop    = "engine_stop"
	StepEngineCleanup = "engine_cleanup"
)

var (
	cleanupFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "devbooster",
		Subsystem: "cleanup",
		Name:      "failures_total",
		Help:      "Best-effort cleanup steps that failed and were ignored",
	}, []string{"step"})

	engineRecreations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "devbooster",
		Subsystem: "engine",
		Name:      "recreations_total",
		Help:      "Times the database engine was created from a clean slate",
	})
)

// RecordCleanupFailure counts a swallowed cleanup failure for a step.
func RecordCleanupFailure(step string) {
	cleanupFailures.WithLabelValues(step).Inc()
}

// RecordEngineRecreation counts a fresh engine creation.
func RecordEngineRecreation() {
	engineRecreations.Inc()
}
