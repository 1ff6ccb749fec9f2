package engine

import (
	"time"

	"github.com/pulsestack/pulse-insights/internal/models"
)

// BaselineEstimator derives expected value and spread for a metric from its
// own trailing history.
type BaselineEstimator struct {
	windowDays int
}

// NewBaselineEstimator constructs an estimator over the given trailing
// window. 7 and 30 days are the documented presets; non-positive falls back
// to 7.
func NewBaselineEstimator(windowDays int) *BaselineEstimator {
	if windowDays <= 0 {
		windowDays = DefaultParams().BaselineWindowDays
	}
	return &BaselineEstimator{windowDays: windowDays}
}

// WindowDays returns the configured trailing window length.
func (e *BaselineEstimator) WindowDays() int { return e.windowDays }

// Estimate computes the baseline from samples in the trailing window
// preceding now. The window is the full population of interest, so spread
// is the population standard deviation. With fewer than two samples the
// spread is defined as zero and the baseline is flagged low-confidence;
// detectors must short-circuit on that flag rather than divide by spread.
func (e *BaselineEstimator) Estimate(metricKey string, history []models.MetricPoint, now time.Time) models.Baseline {
	cutoff := now.AddDate(0, 0, -e.windowDays)

	values := make([]float64, 0, len(history))
	for _, point := range history {
		if point.Timestamp.Before(cutoff) || !point.Timestamp.Before(now) {
			continue
		}
		values = append(values, point.Value)
	}

	baseline := models.Baseline{
		MetricKey:  metricKey,
		SampleSize: len(values),
		ComputedAt: now,
	}
	if len(values) == 0 {
		baseline.LowConfidence = true
		return baseline
	}

	baseline.ExpectedValue = mean(values)
	if len(values) < 2 {
		baseline.LowConfidence = true
		return baseline
	}
	baseline.Spread = populationStdDev(values, baseline.ExpectedValue)
	return baseline
}
