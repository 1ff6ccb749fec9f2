package engine

import (
	"log/slog"
	"math"
	"time"

	"github.com/pulsestack/pulse-insights/internal/models"
	"github.com/pulsestack/pulse-insights/internal/utils"
)

// Factor fractions below which the built-in recommendations trigger.
// Recommendations trace to a specific weak factor, never to the composite
// score alone, so every suggestion is explainable.
const (
	lowActivityPts     = 10
	lowEngagementPts   = 10
	lowFeatureUsagePts = 10
	lowSentimentPts    = 6
	lowPaymentPts      = 5
)

// recencyHorizonDays is where the recency component of the activity factor
// decays to zero.
const recencyHorizonDays = 14.0

// HealthScorer combines five weighted behavioral factors into a bounded
// composite score, risk tier, trend and recommended interventions.
type HealthScorer struct {
	params Params
	rules  *RuleEngine
	logger *slog.Logger
}

// NewHealthScorer constructs a HealthScorer. rules may be nil; built-in
// factor-threshold recommendations always apply.
func NewHealthScorer(params Params, rules *RuleEngine, logger *slog.Logger) *HealthScorer {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthScorer{params: params.withDefaults(), rules: rules, logger: logger}
}

// ScoreInput carries everything needed to score one entity. Events should be
// the entity's full observed history; the window selects the scoring period
// while the rest establishes the entity's own cadence.
type ScoreInput struct {
	EntityID string
	Window   models.TimeRange
	Events   []models.Event
	// Payment is the billing collaborator's state; nil means no billing
	// signal, which scores full marks rather than penalizing absence.
	Payment *models.PaymentState
	// PreviousScore is the most recent persisted score, supplied by the
	// caller since persistence is external. Nil reads as no history.
	PreviousScore *int
	ComputedAt    time.Time
}

// Score computes the composite health score. The score is always the exact
// sum of the five clamped factors and maps to exactly one risk tier.
func (s *HealthScorer) Score(in ScoreInput) (models.HealthScore, error) {
	if err := in.Window.Validate(); err != nil {
		return models.HealthScore{}, utils.InvalidRange("engine.HealthScorer.Score", err.Error())
	}

	factors := models.HealthFactors{
		Activity:     s.activityFactor(in),
		Engagement:   s.engagementFactor(in),
		FeatureUsage: s.featureUsageFactor(in),
		Sentiment:    s.sentimentFactor(in),
		Payment:      s.paymentFactor(in.Payment),
	}

	score := factors.Sum()
	health := models.HealthScore{
		EntityID:   in.EntityID,
		Score:      score,
		Factors:    factors,
		RiskLevel:  s.RiskLevelFor(score),
		Trend:      trendAgainst(score, in.PreviousScore),
		ComputedAt: in.ComputedAt,
	}
	health.Recommendations = s.recommend(health)
	return health, nil
}

// RiskLevelFor maps a score onto the fixed cutoffs.
func (s *HealthScorer) RiskLevelFor(score int) models.RiskLevel {
	cutoffs := s.params.ScoreCutoffs
	switch {
	case score < cutoffs.Critical:
		return models.RiskCritical
	case score < cutoffs.High:
		return models.RiskHigh
	case score < cutoffs.Medium:
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}

// activityFactor scores recency and frequency of any event in the window
// against the entity's own historical cadence, not a global norm.
func (s *HealthScorer) activityFactor(in ScoreInput) int {
	var (
		windowCount int
		totalCount  int
		firstSeen   time.Time
		lastSeen    time.Time
	)
	for _, event := range in.Events {
		if event.Timestamp.After(in.ComputedAt) {
			continue
		}
		totalCount++
		if firstSeen.IsZero() || event.Timestamp.Before(firstSeen) {
			firstSeen = event.Timestamp
		}
		if event.Timestamp.After(lastSeen) {
			lastSeen = event.Timestamp
		}
		if in.Window.Contains(event.Timestamp) {
			windowCount++
		}
	}
	if totalCount == 0 || windowCount == 0 {
		return 0
	}

	lifetimeDays := math.Max(utils.DaysBetween(firstSeen, in.ComputedAt), 1)
	windowDays := float64(in.Window.Days())
	lifetimeRate := float64(totalCount) / lifetimeDays
	windowRate := float64(windowCount) / windowDays

	frequency := clamp(windowRate/lifetimeRate, 0, 1) * 15

	daysSince := utils.DaysBetween(lastSeen, in.ComputedAt)
	recency := clamp(1-daysSince/recencyHorizonDays, 0, 1) * 10

	return clampInt(int(math.Round(frequency+recency)), 0, models.MaxActivity)
}

// engagementFactor scores depth of interaction relative to creation volume:
// a depth of two edits/collaborations per creation earns full marks.
func (s *HealthScorer) engagementFactor(in ScoreInput) int {
	var creates, edits, collabs int
	for _, event := range in.Events {
		if !in.Window.Contains(event.Timestamp) {
			continue
		}
		switch event.Type {
		case models.EventCreate:
			creates++
		case models.EventEdit:
			edits++
		case models.EventCollaborate:
			collabs++
		}
	}
	if edits+collabs == 0 {
		return 0
	}
	depth := float64(edits+collabs) / math.Max(float64(creates), 1)
	return clampInt(int(math.Round(clamp(depth/2, 0, 1)*25)), 0, models.MaxEngagement)
}

// featureUsageFactor scores breadth: each distinct feature type touched in
// the window is worth five points.
func (s *HealthScorer) featureUsageFactor(in ScoreInput) int {
	touched := make(map[models.EventType]struct{})
	for _, event := range in.Events {
		if !in.Window.Contains(event.Timestamp) {
			continue
		}
		switch event.Type {
		case models.EventSignup, models.EventSentiment, models.EventPaymentFailed:
			// Lifecycle and signal events are not features.
		default:
			touched[event.Type] = struct{}{}
		}
	}
	return clampInt(len(touched)*5, 0, models.MaxFeatureUsage)
}

// sentimentFactor maps the mean sentiment score in the window from [-1, 1]
// onto 0-15. No sentiment data defaults to the neutral midpoint: absence of
// signal must not read as negative signal.
func (s *HealthScorer) sentimentFactor(in ScoreInput) int {
	var sum float64
	var count int
	for _, event := range in.Events {
		if event.Type != models.EventSentiment || !in.Window.Contains(event.Timestamp) {
			continue
		}
		value := event.Attr("sentiment")
		if value == 0 {
			value = event.Attr("score")
		}
		sum += clamp(value, -1, 1)
		count++
	}
	if count == 0 {
		return 8
	}
	avg := sum / float64(count)
	return clampInt(int(math.Round((avg+1)/2*float64(models.MaxSentiment))), 0, models.MaxSentiment)
}

// paymentFactor penalizes failed charges and past-due state; full marks
// otherwise, including when the billing collaborator has nothing to say.
func (s *HealthScorer) paymentFactor(payment *models.PaymentState) int {
	if payment == nil {
		return models.MaxPayment
	}
	points := models.MaxPayment
	if payment.PastDue {
		points -= 5
	}
	points -= 3 * payment.FailedCharges
	return clampInt(points, 0, models.MaxPayment)
}

func trendAgainst(score int, previous *int) models.ScoreTrend {
	if previous == nil {
		return models.ScoreTrend{Direction: models.TrendFlat}
	}
	change := score - *previous
	trend := models.ScoreTrend{ScoreChange: change, Direction: models.TrendFlat}
	switch {
	case change > 0:
		trend.Direction = models.TrendImproving
	case change < 0:
		trend.Direction = models.TrendDeclining
	}
	return trend
}

// recommend derives interventions from which factors fell below their fixed
// thresholds, then lets the deployment rule pack add its own.
func (s *HealthScorer) recommend(health models.HealthScore) []string {
	recs := make([]string, 0, 4)
	f := health.Factors
	if f.Activity < lowActivityPts {
		recs = append(recs, "Schedule re-engagement outreach")
	}
	if f.Engagement < lowEngagementPts {
		recs = append(recs, "Prompt collaboration and editing workflows")
	}
	if f.FeatureUsage < lowFeatureUsagePts {
		recs = append(recs, "Surface unused features via onboarding tips")
	}
	if f.Sentiment < lowSentimentPts {
		recs = append(recs, "Follow up on negative feedback")
	}
	if f.Payment < lowPaymentPts {
		recs = append(recs, "Review billing state and retry failed charges")
	}
	if health.RiskLevel == models.RiskCritical {
		recs = append(recs, "Escalate to customer success for intervention")
	}
	if s.rules != nil {
		recs = appendUnique(recs, s.rules.RecommendForScore(health)...)
	}
	return recs
}
