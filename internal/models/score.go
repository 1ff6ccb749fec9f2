package models

import "time"

// RiskLevel buckets a health score via fixed cutoffs.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// TrendDirection describes score movement against the previous snapshot.
type TrendDirection string

const (
	TrendImproving TrendDirection = "improving"
	TrendDeclining TrendDirection = "declining"
	TrendFlat      TrendDirection = "stable"
)

// Factor maximums for the composite health score.
const (
	MaxActivity     = 25
	MaxEngagement   = 25
	MaxFeatureUsage = 25
	MaxSentiment    = 15
	MaxPayment      = 10
)

// HealthFactors are the five independent sub-scores, each clamped to its
// maximum. The composite score is always their exact sum.
type HealthFactors struct {
	Activity     int `json:"activity"`
	Engagement   int `json:"engagement"`
	FeatureUsage int `json:"featureUsage"`
	Sentiment    int `json:"sentiment"`
	Payment      int `json:"payment"`
}

// Sum returns the composite score.
func (f HealthFactors) Sum() int {
	return f.Activity + f.Engagement + f.FeatureUsage + f.Sentiment + f.Payment
}

// ScoreTrend compares a score against the most recent prior score.
type ScoreTrend struct {
	ScoreChange int            `json:"scoreChange"`
	Direction   TrendDirection `json:"direction"`
}

// HealthScore is the composite per-entity churn/engagement risk output.
type HealthScore struct {
	EntityID        string        `json:"entityId"`
	Score           int           `json:"score"`
	Factors         HealthFactors `json:"factors"`
	RiskLevel       RiskLevel     `json:"riskLevel"`
	Trend           ScoreTrend    `json:"trend"`
	Recommendations []string      `json:"recommendations"`
	ComputedAt      time.Time     `json:"computedAt"`
}
