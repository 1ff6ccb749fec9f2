package models

import "time"

// AnalyticsRequest triggers a full point-in-time recomputation over a window.
type AnalyticsRequest struct {
	TenantID string    `json:"tenantId"`
	Window   TimeRange `json:"window"`
	// EntityIDs optionally narrows health scoring; empty means every entity
	// observed in the window.
	EntityIDs []string `json:"entityIds,omitempty"`
	// Metrics lists the metric keys to baseline, detect and forecast.
	// "events" is the per-day event count; any other key sums that numeric
	// attribute per day.
	Metrics []string `json:"metrics,omitempty"`
	// MaxPeriods overrides the configured retention horizon when positive.
	MaxPeriods int `json:"maxPeriods,omitempty"`
	// BaselineWindowDays selects a baseline preset (7 or 30) when positive.
	BaselineWindowDays int `json:"baselineWindowDays,omitempty"`
}

// Snapshot is the full computed output for one request. Persisting it is the
// caller's concern; the engine only hands it to the configured hook.
type Snapshot struct {
	SnapshotID   string            `json:"snapshotId"`
	TenantID     string            `json:"tenantId"`
	Window       TimeRange         `json:"window"`
	Retention    []RetentionCurve  `json:"retention"`
	Baselines    []Baseline        `json:"baselines"`
	Anomalies    []Anomaly         `json:"anomalies"`
	HealthScores []HealthScore     `json:"healthScores"`
	Forecasts    []Forecast        `json:"forecasts"`
	Skipped      []SkippedRecord   `json:"skipped,omitempty"`
	// Recommendations are tenant-level interventions contributed by the
	// anomaly rules in the deployment rule pack.
	Recommendations []string  `json:"recommendations,omitempty"`
	ComputedAt      time.Time `json:"computedAt"`
}
