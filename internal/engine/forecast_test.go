package engine

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/pulsestack/pulse-insights/internal/models"
	"github.com/pulsestack/pulse-insights/internal/utils"
)

func linearHistory(base time.Time, days int, start, slope float64) []models.MetricPoint {
	points := make([]models.MetricPoint, days)
	for i := 0; i < days; i++ {
		points[i] = models.MetricPoint{
			Timestamp: day(base, i),
			Value:     start + slope*float64(i),
		}
	}
	return points
}

func TestProjectLinearGrowth(t *testing.T) {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	projector := NewForecastProjector(DefaultParams())

	// Exactly linear: 10, 12, 14, ... slope 2/day over 7 days.
	history := linearHistory(base, 7, 10, 2)

	forecast, err := projector.Project("events", history, models.ForecastPeriod30d)
	if err != nil {
		t.Fatalf("Project: %v", err)
	}

	// Last sample is day 6 at value 22; 30 days later the line reads 82.
	if math.Abs(forecast.ForecastedValue-82) > 1e-6 {
		t.Fatalf("expected forecast 82, got %v", forecast.ForecastedValue)
	}
	if forecast.Trend != models.TrendIncreasing {
		t.Fatalf("expected increasing trend, got %s", forecast.Trend)
	}
	if forecast.GrowthRate <= 0 {
		t.Fatalf("expected positive growth rate, got %v", forecast.GrowthRate)
	}
	if forecast.ConfidenceInterval.Lower >= forecast.ForecastedValue ||
		forecast.ConfidenceInterval.Upper <= forecast.ForecastedValue {
		t.Fatalf("interval must bracket the forecast: %+v", forecast.ConfidenceInterval)
	}
}

func TestProjectIntervalWidensWithHorizon(t *testing.T) {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	projector := NewForecastProjector(DefaultParams())
	history := linearHistory(base, 7, 10, 2)

	f30, err := projector.Project("events", history, models.ForecastPeriod30d)
	if err != nil {
		t.Fatalf("Project 30d: %v", err)
	}
	f90, err := projector.Project("events", history, models.ForecastPeriod90d)
	if err != nil {
		t.Fatalf("Project 90d: %v", err)
	}

	width30 := f30.ConfidenceInterval.Upper - f30.ConfidenceInterval.Lower
	width90 := f90.ConfidenceInterval.Upper - f90.ConfidenceInterval.Lower
	if width90 <= width30 {
		t.Fatalf("90d interval (%v) must be wider than 30d (%v)", width90, width30)
	}
	// sqrt scaling: 90d margin should be sqrt(3) times the 30d margin.
	if math.Abs(width90/width30-math.Sqrt(3)) > 1e-6 {
		t.Fatalf("expected sqrt(3) widening, got ratio %v", width90/width30)
	}
}

func TestProjectFlatSeriesIsStable(t *testing.T) {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	projector := NewForecastProjector(DefaultParams())
	history := linearHistory(base, 7, 50, 0)

	forecast, err := projector.Project("events", history, models.ForecastPeriod60d)
	if err != nil {
		t.Fatalf("Project: %v", err)
	}
	if forecast.Trend != models.TrendStable {
		t.Fatalf("flat series must be stable, got %s", forecast.Trend)
	}
	if math.Abs(forecast.ForecastedValue-50) > 1e-6 {
		t.Fatalf("flat series must forecast its level, got %v", forecast.ForecastedValue)
	}
}

func TestProjectSparseHistoryDegrades(t *testing.T) {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	projector := NewForecastProjector(DefaultParams())

	forecast, err := projector.Project("events", nil, models.ForecastPeriod30d)
	if err != nil {
		t.Fatalf("empty history must not fail: %v", err)
	}
	if forecast.ForecastedValue != 0 || forecast.Trend != models.TrendStable {
		t.Fatalf("empty history must degrade to a flat zero forecast, got %+v", forecast)
	}

	single := []models.MetricPoint{{Timestamp: base, Value: 33}}
	forecast, err = projector.Project("events", single, models.ForecastPeriod30d)
	if err != nil {
		t.Fatalf("single point must not fail: %v", err)
	}
	if forecast.ForecastedValue != 33 {
		t.Fatalf("single point must project flat, got %v", forecast.ForecastedValue)
	}
	if forecast.ConfidenceInterval.Lower != 33 || forecast.ConfidenceInterval.Upper != 33 {
		t.Fatalf("single point must have a degenerate interval, got %+v", forecast.ConfidenceInterval)
	}
}

func TestProjectUnsupportedPeriod(t *testing.T) {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	projector := NewForecastProjector(DefaultParams())
	history := linearHistory(base, 7, 10, 2)

	_, err := projector.Project("events", history, models.ForecastPeriod("45d"))
	if !errors.Is(err, utils.ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange, got %v", err)
	}
}
