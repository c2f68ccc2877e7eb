// Package metrics provides Prometheus metrics for instance sessions, cleanup
// and the web server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "devbooster",
		Subsystem: "sessions",
		Name:      "started_total",
		Help:      "Total instance sessions started",
	})

	sessionsEnded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "devbooster",
		Subsystem: "sessions",
		Name:      "ended_total",
		Help:      "Total instance sessions ended, by reason",
	}, []string{"reason"})

	sessionRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "devbooster",
		Subsystem: "session",
		Name:      "running",
		Help:      "1 while an instance session is running",
	})

	sessionReadySeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "devbooster",
		Subsystem: "session",
		Name:      "ready_seconds",
		Help:      "Time from launch until the web server reported ready",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
	})
)

// RecordSessionStarted counts a started session and marks it running.
func RecordSessionStarted() {
	sessionsStarted.Inc()
	sessionRunning.Set(1)
}

// RecordSessionEnded counts an ended session and clears the running gauge.
func RecordSessionEnded(reason string) {
	sessionsEnded.WithLabelValues(reason).Inc()
	sessionRunning.Set(0)
}

// ObserveSessionReady records how long the web server took to become ready.
func ObserveSessionReady(seconds float64) {
	sessionReadySeconds.Observe(seconds)
}
