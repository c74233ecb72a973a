package session

import "github.com/prometheus/client_golang/prometheus"

var (
	evaluationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "inferhost",
			Subsystem: "session",
			Name:      "evaluations_total",
			Help:      "Completed evaluations by feature and terminal state",
		},
		[]string{"feature", "state"},
	)

	evaluateDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "inferhost",
			Subsystem: "session",
			Name:      "evaluate_duration_seconds",
			Help:      "Time from submission to terminal frame",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		},
		[]string{"feature"},
	)

	filteredFragmentsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "inferhost",
			Subsystem: "session",
			Name:      "filtered_fragments_total",
			Help:      "Response fragments dropped by the content filter",
		},
	)

	tooBusyTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "inferhost",
			Subsystem: "session",
			Name:      "too_busy_total",
			Help:      "Evaluations rejected by admission",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(evaluationsTotal, evaluateDuration, filteredFragmentsTotal, tooBusyTotal)
}
