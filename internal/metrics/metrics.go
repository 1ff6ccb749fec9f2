package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pulsestack/pulse-insights/internal/models"
)

const (
	// OutcomeSuccess labels successful analytics computations.
	OutcomeSuccess = "success"
	// OutcomeError labels failed computations (pipeline or dependency issues).
	OutcomeError = "error"
	// OutcomeInsufficientData labels computations that ran against too little data.
	OutcomeInsufficientData = "insufficient_data"
)

var (
	computationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pulse_insights",
			Name:      "computations_total",
			Help:      "Total number of analytics computations handled, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	computationDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "pulse_insights",
			Name:      "computation_seconds",
			Help:      "Analytics computation latency in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5, 8, 10},
		},
	)

	anomaliesDetectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pulse_insights",
			Name:      "anomalies_detected_total",
			Help:      "Total anomalies detected, partitioned by severity.",
		},
		[]string{"severity"},
	)

	skippedRecordsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pulse_insights",
			Name:      "skipped_records_total",
			Help:      "Total malformed feed records skipped during normalization.",
		},
	)
)

// Register attaches pulse-insights collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		computationsTotal,
		computationDurationSeconds,
		anomaliesDetectedTotal,
		skippedRecordsTotal,
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

// ObserveComputation records a computation duration and outcome label.
func ObserveComputation(duration time.Duration, outcome string) {
	label := outcome
	switch label {
	case OutcomeError, OutcomeInsufficientData:
	default:
		label = OutcomeSuccess
	}
	computationsTotal.WithLabelValues(label).Inc()
	if duration < 0 {
		duration = 0
	}
	computationDurationSeconds.Observe(duration.Seconds())
}

// ObserveSnapshot records per-snapshot detail counters.
func ObserveSnapshot(snapshot models.Snapshot) {
	for _, anomaly := range snapshot.Anomalies {
		anomaliesDetectedTotal.WithLabelValues(string(anomaly.Severity)).Inc()
	}
	if len(snapshot.Skipped) > 0 {
		skippedRecordsTotal.Add(float64(len(snapshot.Skipped)))
	}
}
