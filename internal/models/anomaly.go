package models

import "time"

// Baseline captures the expected value and spread for a metric, derived from
// its own trailing history. Recomputed on every detection pass, never
// mutated in place.
type Baseline struct {
	MetricKey     string    `json:"metricKey"`
	ExpectedValue float64   `json:"expectedValue"`
	Spread        float64   `json:"spread"`
	SampleSize    int       `json:"sampleSize"`
	LowConfidence bool      `json:"lowConfidence"`
	ComputedAt    time.Time `json:"computedAt"`
}

// Severity grades how far a metric strayed from its baseline.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Anomaly is a single detected deviation. Each detection run produces a
// fresh, independent snapshot; deduplication is the caller's concern.
type Anomaly struct {
	ID            string    `json:"id"`
	Metric        string    `json:"metric"`
	CurrentValue  float64   `json:"currentValue"`
	ExpectedValue float64   `json:"expectedValue"`
	DeviationPct  float64   `json:"deviationPct"`
	Severity      Severity  `json:"severity"`
	Message       string    `json:"message"`
	Timestamp     time.Time `json:"timestamp"`
}

// ForecastPeriod enumerates the supported projection horizons.
type ForecastPeriod string

const (
	ForecastPeriod30d ForecastPeriod = "30d"
	ForecastPeriod60d ForecastPeriod = "60d"
	ForecastPeriod90d ForecastPeriod = "90d"
)

// ForecastTrend labels the direction of a projected metric.
type ForecastTrend string

const (
	TrendIncreasing ForecastTrend = "increasing"
	TrendDecreasing ForecastTrend = "decreasing"
	TrendStable     ForecastTrend = "stable"
)

// ConfidenceInterval bounds a forecasted value.
type ConfidenceInterval struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// Forecast extrapolates a metric over a fixed horizon.
type Forecast struct {
	Metric             string             `json:"metric"`
	Period             ForecastPeriod     `json:"period"`
	ForecastedValue    float64            `json:"forecastedValue"`
	ConfidenceInterval ConfidenceInterval `json:"confidenceInterval"`
	Trend              ForecastTrend      `json:"trend"`
	GrowthRate         float64            `json:"growthRate"`
}

// AnomalyPattern is a recurring anomaly signature mined from snapshot
// history: the dashboard's "recurring issues" panel.
type AnomalyPattern struct {
	ID                  string    `json:"id"`
	Metric              string    `json:"metric"`
	Occurrences         int       `json:"occurrences"`
	Prevalence          float64   `json:"prevalence"`
	TypicalDeviationPct float64   `json:"typicalDeviationPct"`
	DominantSeverity    Severity  `json:"dominantSeverity"`
	LastSeen            time.Time `json:"lastSeen"`
}
