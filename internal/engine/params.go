// Package engine implements the behavioral analytics computations: metric
// aggregation, cohort building, retention curves, baselines, anomaly
// detection, health scoring and forecasting. Every function here is pure and
// synchronous over already-fetched in-memory data; no component retains
// state between calls, so concurrent invocations for different windows are
// safe without locking.
package engine

// Direction tags how a metric's deviation should be judged.
type Direction string

const (
	// DirectionSymmetric reports spikes and drops of equal magnitude with
	// equal severity.
	DirectionSymmetric Direction = "symmetric"
	// DirectionHigherIsBad only reports positive deviations (error rates,
	// cost overruns).
	DirectionHigherIsBad Direction = "higher-is-bad"
	// DirectionLowerIsBad only reports negative deviations (activity
	// volumes).
	DirectionLowerIsBad Direction = "lower-is-bad"
)

// ScoreCutoffs are the fixed risk-tier boundaries: score < Critical is
// critical risk, < High is high, < Medium is medium, anything else low.
type ScoreCutoffs struct {
	Critical int
	High     int
	Medium   int
}

// Params carries every window length, threshold and cutoff the engine uses.
// Injected at construction so thresholds are independently testable and
// tunable per deployment instead of living inline.
type Params struct {
	WeekWindowDays       int
	MaxPeriods           int
	BaselineWindowDays   int
	WarnThresholdPct     float64
	CriticalThresholdPct float64
	TrendEpsilonPct      float64
	ScoreCutoffs         ScoreCutoffs
	MetricDirections     map[string]Direction
}

// DefaultParams returns the documented preset: 7-day behavioral windows,
// 8 retention periods, 7-day baselines (30 is the alternate preset),
// 25/50 severity thresholds and 30/50/70 score cutoffs.
func DefaultParams() Params {
	return Params{
		WeekWindowDays:       7,
		MaxPeriods:           8,
		BaselineWindowDays:   7,
		WarnThresholdPct:     25,
		CriticalThresholdPct: 50,
		TrendEpsilonPct:      2,
		ScoreCutoffs:         ScoreCutoffs{Critical: 30, High: 50, Medium: 70},
	}
}

func (p Params) withDefaults() Params {
	defaults := DefaultParams()
	if p.WeekWindowDays <= 0 {
		p.WeekWindowDays = defaults.WeekWindowDays
	}
	if p.MaxPeriods <= 0 {
		p.MaxPeriods = defaults.MaxPeriods
	}
	if p.BaselineWindowDays <= 0 {
		p.BaselineWindowDays = defaults.BaselineWindowDays
	}
	if p.WarnThresholdPct <= 0 {
		p.WarnThresholdPct = defaults.WarnThresholdPct
	}
	if p.CriticalThresholdPct <= 0 {
		p.CriticalThresholdPct = defaults.CriticalThresholdPct
	}
	if p.TrendEpsilonPct <= 0 {
		p.TrendEpsilonPct = defaults.TrendEpsilonPct
	}
	if p.ScoreCutoffs == (ScoreCutoffs{}) {
		p.ScoreCutoffs = defaults.ScoreCutoffs
	}
	return p
}

// Direction returns the configured deviation direction for a metric,
// defaulting to symmetric.
func (p Params) Direction(metric string) Direction {
	if d, ok := p.MetricDirections[metric]; ok {
		switch d {
		case DirectionHigherIsBad, DirectionLowerIsBad:
			return d
		}
	}
	return DirectionSymmetric
}
