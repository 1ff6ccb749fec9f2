package engine

import (
	"fmt"
	"math"

	"github.com/pulsestack/pulse-insights/internal/models"
	"github.com/pulsestack/pulse-insights/internal/utils"
)

// ForecastHorizons are the fixed projection horizons, one Forecast per
// (metric, horizon) pair.
var ForecastHorizons = map[models.ForecastPeriod]int{
	models.ForecastPeriod30d: 30,
	models.ForecastPeriod60d: 60,
	models.ForecastPeriod90d: 90,
}

// ForecastProjector extrapolates a metric forward using the recent linear
// trend, with confidence bounds that widen as the horizon grows. It shares
// the baseline estimator's numeric approach: mean and population spread over
// the trailing window.
type ForecastProjector struct {
	params Params
}

// NewForecastProjector constructs a ForecastProjector.
func NewForecastProjector(params Params) *ForecastProjector {
	return &ForecastProjector{params: params.withDefaults()}
}

// Project fits a least-squares slope over the history and extrapolates
// horizonDays past the last sample. Sparse history degrades to a flat,
// zero-spread projection rather than failing; only a nonsensical horizon is
// a contract violation.
func (p *ForecastProjector) Project(metric string, history []models.MetricPoint, period models.ForecastPeriod) (models.Forecast, error) {
	horizonDays, ok := ForecastHorizons[period]
	if !ok {
		return models.Forecast{}, utils.InvalidRange("engine.ForecastProjector.Project", fmt.Sprintf("unsupported forecast period %q", period))
	}

	forecast := models.Forecast{
		Metric: metric,
		Period: period,
		Trend:  models.TrendStable,
	}

	if len(history) < 2 {
		if len(history) == 1 {
			forecast.ForecastedValue = history[0].Value
			forecast.ConfidenceInterval = models.ConfidenceInterval{Lower: history[0].Value, Upper: history[0].Value}
		}
		return forecast, nil
	}

	origin := history[0].Timestamp
	xs := make([]float64, len(history))
	ys := make([]float64, len(history))
	for i, point := range history {
		xs[i] = utils.DaysBetween(origin, point.Timestamp)
		ys[i] = point.Value
	}

	slope, intercept := leastSquares(xs, ys)
	lastDay := xs[len(xs)-1]
	forecast.ForecastedValue = intercept + slope*(lastDay+float64(horizonDays))

	historyMean := mean(ys)
	spread := populationStdDev(ys, historyMean)
	widening := math.Sqrt(float64(horizonDays) / float64(p.params.BaselineWindowDays))
	margin := spread * widening
	forecast.ConfidenceInterval = models.ConfidenceInterval{
		Lower: forecast.ForecastedValue - margin,
		Upper: forecast.ForecastedValue + margin,
	}

	// Growth relative to the recent mean over the horizon; slope noise below
	// the epsilon reads as stable rather than a trend.
	denominator := math.Max(math.Abs(historyMean), deviationEpsilon)
	forecast.GrowthRate = slope * float64(horizonDays) / denominator
	relSlopePct := math.Abs(slope) / denominator * 100
	if relSlopePct >= p.params.TrendEpsilonPct {
		if slope > 0 {
			forecast.Trend = models.TrendIncreasing
		} else {
			forecast.Trend = models.TrendDecreasing
		}
	}

	return forecast, nil
}
