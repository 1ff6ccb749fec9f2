package engine

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/pulsestack/pulse-insights/internal/models"
)

// deviationEpsilon floors the baseline denominator so near-zero expected
// values cannot blow the deviation up to infinity.
const deviationEpsilon = 1e-6

// AnomalyDetector compares current metric values against their baselines and
// emits structured anomalies for deviations past the severity thresholds.
// Detection is idempotent and side-effect-free; anomaly history is the
// caller's concern.
type AnomalyDetector struct {
	params Params
}

// NewAnomalyDetector constructs an AnomalyDetector.
func NewAnomalyDetector(params Params) *AnomalyDetector {
	return &AnomalyDetector{params: params.withDefaults()}
}

// Detect evaluates every metric with a baseline. Below-threshold deviations
// are not reported at all; this is a detector, not a deviation log.
// Low-confidence baselines are skipped entirely: one stale sample is not
// evidence of an anomaly. Output ordering and IDs are deterministic for a
// given input, so re-running over an unchanged feed is bit-identical.
func (d *AnomalyDetector) Detect(current map[string]float64, baselines map[string]models.Baseline, detectedAt time.Time) []models.Anomaly {
	metrics := make([]string, 0, len(current))
	for metric := range current {
		metrics = append(metrics, metric)
	}
	sort.Strings(metrics)

	anomalies := make([]models.Anomaly, 0)
	for _, metric := range metrics {
		baseline, ok := baselines[metric]
		if !ok || baseline.LowConfidence {
			continue
		}

		value := current[metric]
		deviation := (value - baseline.ExpectedValue) / math.Max(baseline.ExpectedValue, deviationEpsilon) * 100

		severity, reportable := d.severityFor(deviation)
		if !reportable {
			continue
		}
		if !d.directionAllows(metric, deviation) {
			continue
		}

		anomalies = append(anomalies, models.Anomaly{
			ID:            anomalyID(metric, detectedAt),
			Metric:        metric,
			CurrentValue:  value,
			ExpectedValue: baseline.ExpectedValue,
			DeviationPct:  deviation,
			Severity:      severity,
			Message:       deviationMessage(metric, value, baseline.ExpectedValue, deviation),
			Timestamp:     detectedAt,
		})
	}

	sort.SliceStable(anomalies, func(i, j int) bool {
		di, dj := math.Abs(anomalies[i].DeviationPct), math.Abs(anomalies[j].DeviationPct)
		if di == dj {
			return anomalies[i].Metric < anomalies[j].Metric
		}
		return di > dj
	})

	return anomalies
}

// severityFor maps |deviation| onto the configured thresholds. Severity is
// monotonic in |deviation| by construction: the critical threshold is
// validated to sit above the warning one.
func (d *AnomalyDetector) severityFor(deviationPct float64) (models.Severity, bool) {
	abs := math.Abs(deviationPct)
	switch {
	case abs >= d.params.CriticalThresholdPct:
		return models.SeverityCritical, true
	case abs >= d.params.WarnThresholdPct:
		return models.SeverityWarning, true
	default:
		return models.SeverityInfo, false
	}
}

// directionAllows applies per-metric direction tags. Directionality never
// changes severity, only whether the deviation is reported at all.
func (d *AnomalyDetector) directionAllows(metric string, deviationPct float64) bool {
	switch d.params.Direction(metric) {
	case DirectionHigherIsBad:
		return deviationPct > 0
	case DirectionLowerIsBad:
		return deviationPct < 0
	default:
		return true
	}
}

func deviationMessage(metric string, current, expected, deviationPct float64) string {
	direction := "above"
	if deviationPct < 0 {
		direction = "below"
	}
	return fmt.Sprintf("%s is %.1f%% %s expected (current %.2f, expected %.2f)",
		metric, math.Abs(deviationPct), direction, current, expected)
}

// anomalyID derives a stable v5 UUID from the metric and detection instant,
// keeping whole-pipeline reruns reproducible.
func anomalyID(metric string, detectedAt time.Time) string {
	seed := fmt.Sprintf("anomaly|%s|%d", metric, detectedAt.UnixNano())
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(seed)).String()
}
