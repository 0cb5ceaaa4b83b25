package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeApplied labels operations that changed state.
	OutcomeApplied = "applied"
	// OutcomeRejected labels operations refused by a precondition.
	OutcomeRejected = "rejected"
	// OutcomeSuccess labels successful store flushes.
	OutcomeSuccess = "success"
	// OutcomeError labels failed store flushes.
	OutcomeError = "error"
)

var (
	operationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "field_verification",
			Name:      "operations_total",
			Help:      "Reconciliation operations, partitioned by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	differencesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "field_verification",
			Name:      "differences_total",
			Help:      "Detected differences by severity and detection mode.",
		},
		[]string{"severity", "auto"},
	)

	finalizationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "field_verification",
			Name:      "finalizations_total",
			Help:      "Finalized investigations by recommended action.",
		},
		[]string{"action"},
	)

	flushesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "field_verification",
			Name:      "store_flushes_total",
			Help:      "Store flushes partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	flushDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "field_verification",
			Name:      "store_flush_seconds",
			Help:      "Store flush latency in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
	)
)

// Register attaches collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		operationsTotal,
		differencesTotal,
		finalizationsTotal,
		flushesTotal,
		flushDurationSeconds,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveOperation counts a reconciliation operation.
func ObserveOperation(operation string, applied bool) {
	outcome := OutcomeApplied
	if !applied {
		outcome = OutcomeRejected
	}
	operationsTotal.WithLabelValues(operation, outcome).Inc()
}

// ObserveDifference counts a recorded difference.
func ObserveDifference(severity string, auto bool) {
	label := "false"
	if auto {
		label = "true"
	}
	differencesTotal.WithLabelValues(severity, label).Inc()
}

// ObserveFinalization counts a finalized investigation.
func ObserveFinalization(action string) {
	finalizationsTotal.WithLabelValues(action).Inc()
}

// ObserveFlush records a flush duration and outcome label.
func ObserveFlush(duration time.Duration, err error) {
	label := OutcomeSuccess
	if err != nil {
		label = OutcomeError
	}
	flushesTotal.WithLabelValues(label).Inc()
	if duration < 0 {
		duration = 0
	}
	flushDurationSeconds.Observe(duration.Seconds())
}
