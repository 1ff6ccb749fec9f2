package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/pulsestack/pulse-insights/internal/ingest"
	"github.com/pulsestack/pulse-insights/internal/models"
	"github.com/pulsestack/pulse-insights/internal/utils"
)

// EventFeed defines the document-store adapter behaviour the pipeline
// consumes. The engine never writes events; it only reads the feed.
type EventFeed interface {
	FetchRecords(ctx context.Context, tenantID string, window models.TimeRange) ([]map[string]any, error)
	FetchPaymentStates(ctx context.Context, tenantID string, entityIDs []string) (map[string]models.PaymentState, error)
}

// ScoreStore is the optional persistence hook: previous scores feed trend
// computation, and the computed snapshot is handed over for storage. The
// engine itself performs no storage I/O beyond these calls.
type ScoreStore interface {
	PreviousScore(ctx context.Context, tenantID, entityID string) (int, bool, error)
	StoreSnapshot(ctx context.Context, tenantID string, snapshot models.Snapshot) error
}

// Pipeline orchestrates one full point-in-time recomputation: aggregation,
// cohorts, retention, baselines, anomalies, health scores and forecasts.
type Pipeline struct {
	logger    *slog.Logger
	feed      EventFeed
	store     ScoreStore
	params    Params
	cohorts   *CohortBuilder
	retention *RetentionCalculator
	detector  *AnomalyDetector
	scorer    *HealthScorer
	projector *ForecastProjector
	rules     *RuleEngine
}

// NewPipeline constructs the computation pipeline. store and rules may be
// nil; the pipeline degrades to trendless scores and built-in
// recommendations.
func NewPipeline(logger *slog.Logger, feed EventFeed, store ScoreStore, params Params, rules *RuleEngine) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	params = params.withDefaults()
	return &Pipeline{
		logger:    logger,
		feed:      feed,
		store:     store,
		params:    params,
		cohorts:   NewCohortBuilder(params, logger),
		retention: NewRetentionCalculator(params, logger),
		detector:  NewAnomalyDetector(params),
		scorer:    NewHealthScorer(params, rules, logger),
		projector: NewForecastProjector(params),
		rules:     rules,
	}
}

// Run executes the full computation for one request and returns the
// snapshot. Everything after the fetch is pure computation over in-memory
// data; identical requests over an unchanged feed produce identical
// snapshots, including IDs.
func (p *Pipeline) Run(ctx context.Context, req models.AnalyticsRequest) (models.Snapshot, error) {
	if p.feed == nil {
		return models.Snapshot{}, fmt.Errorf("event feed not configured")
	}
	if err := req.Window.Validate(); err != nil {
		return models.Snapshot{}, utils.InvalidRange("engine.Pipeline.Run", err.Error())
	}

	records, err := p.feed.FetchRecords(ctx, req.TenantID, req.Window)
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("fetch records: %w", err)
	}

	events, skipped := ingest.Normalize(records)
	for _, skip := range skipped {
		p.logger.Debug("record skipped", slog.Int("index", skip.Index), slog.String("reason", skip.Reason))
	}
	if len(events) == 0 {
		return models.Snapshot{}, fmt.Errorf("no usable events in feed for window: %w", utils.ErrInsufficientData)
	}

	// ComputedAt anchors to the window end so identical requests yield
	// identical snapshots.
	computedAt := req.Window.End.UTC()

	cohortSet, err := p.cohorts.Build(req.Window, events)
	if err != nil {
		return models.Snapshot{}, err
	}
	curves, err := p.retention.Curves(cohortSet, events, req.MaxPeriods)
	if err != nil {
		return models.Snapshot{}, err
	}

	baselines, currents, series, err := p.metricSeries(req, events)
	if err != nil {
		return models.Snapshot{}, err
	}
	anomalies := p.detector.Detect(currents, baselines, computedAt)

	scores, err := p.scoreEntities(ctx, req, events, computedAt)
	if err != nil {
		return models.Snapshot{}, err
	}

	forecasts, err := p.forecastMetrics(series)
	if err != nil {
		return models.Snapshot{}, err
	}

	snapshot := models.Snapshot{
		SnapshotID:      snapshotID(req),
		TenantID:        req.TenantID,
		Window:          req.Window,
		Retention:       curves,
		Baselines:       sortedBaselines(baselines),
		Anomalies:       anomalies,
		HealthScores:    scores,
		Forecasts:       forecasts,
		Skipped:         skipped,
		Recommendations: p.rules.RecommendForAnomalies(anomalies),
		ComputedAt:      computedAt,
	}

	if p.store != nil {
		if err := p.store.StoreSnapshot(ctx, req.TenantID, snapshot); err != nil {
			p.logger.Warn("failed to persist snapshot", slog.Any("error", err))
		}
	}

	return snapshot, nil
}

// metricSeries builds the per-day series for each requested metric, then
// splits off the most recent day as the "current" value and baselines the
// days before it.
func (p *Pipeline) metricSeries(req models.AnalyticsRequest, events []models.Event) (map[string]models.Baseline, map[string]float64, map[string][]models.MetricPoint, error) {
	metrics := req.Metrics
	if len(metrics) == 0 {
		metrics = []string{"events"}
	}

	windowDays := req.BaselineWindowDays
	if windowDays <= 0 {
		windowDays = p.params.BaselineWindowDays
	}
	estimator := NewBaselineEstimator(windowDays)

	baselines := make(map[string]models.Baseline, len(metrics))
	currents := make(map[string]float64, len(metrics))
	series := make(map[string][]models.MetricPoint, len(metrics))

	for _, metric := range metrics {
		field := metric
		if metric == "events" {
			field = ""
		}
		points, err := DailySeries(events, req.Window, field)
		if err != nil {
			return nil, nil, nil, err
		}
		series[metric] = points

		last := points[len(points)-1]
		currents[metric] = last.Value
		baselines[metric] = estimator.Estimate(metric, points[:len(points)-1], last.Timestamp)
	}

	return baselines, currents, series, nil
}

func (p *Pipeline) scoreEntities(ctx context.Context, req models.AnalyticsRequest, events []models.Event, computedAt time.Time) ([]models.HealthScore, error) {
	byEntity := make(map[string][]models.Event)
	for _, event := range events {
		byEntity[event.EntityID] = append(byEntity[event.EntityID], event)
	}

	entityIDs := req.EntityIDs
	if len(entityIDs) == 0 {
		entityIDs = make([]string, 0, len(byEntity))
		for id := range byEntity {
			entityIDs = append(entityIDs, id)
		}
	}
	sort.Strings(entityIDs)

	payments, err := p.feed.FetchPaymentStates(ctx, req.TenantID, entityIDs)
	if err != nil {
		p.logger.Warn("payment state fetch failed, scoring without billing signal", slog.Any("error", err))
		payments = nil
	}

	scores := make([]models.HealthScore, 0, len(entityIDs))
	for _, entityID := range entityIDs {
		entityEvents, ok := byEntity[entityID]
		if !ok {
			// A requested entity with no observed events is an
			// insufficient-data state, not a zero score.
			p.logger.Debug("entity has no events in window, skipping score", slog.String("entity_id", entityID))
			continue
		}

		input := ScoreInput{
			EntityID:   entityID,
			Window:     req.Window,
			Events:     entityEvents,
			ComputedAt: computedAt,
		}
		if state, ok := payments[entityID]; ok {
			payment := state
			input.Payment = &payment
		}
		if p.store != nil {
			if previous, ok, err := p.store.PreviousScore(ctx, req.TenantID, entityID); err != nil {
				p.logger.Warn("previous score lookup failed", slog.String("entity_id", entityID), slog.Any("error", err))
			} else if ok {
				input.PreviousScore = &previous
			}
		}

		score, err := p.scorer.Score(input)
		if err != nil {
			return nil, err
		}
		scores = append(scores, score)
	}
	return scores, nil
}

// forecastMetrics projects every metric over every fixed horizon, in
// deterministic metric-then-horizon order.
func (p *Pipeline) forecastMetrics(series map[string][]models.MetricPoint) ([]models.Forecast, error) {
	metrics := make([]string, 0, len(series))
	for metric := range series {
		metrics = append(metrics, metric)
	}
	sort.Strings(metrics)

	periods := []models.ForecastPeriod{
		models.ForecastPeriod30d,
		models.ForecastPeriod60d,
		models.ForecastPeriod90d,
	}

	forecasts := make([]models.Forecast, 0, len(metrics)*len(periods))
	for _, metric := range metrics {
		for _, period := range periods {
			forecast, err := p.projector.Project(metric, series[metric], period)
			if err != nil {
				return nil, err
			}
			forecasts = append(forecasts, forecast)
		}
	}
	return forecasts, nil
}

func snapshotID(req models.AnalyticsRequest) string {
	seed := fmt.Sprintf("snapshot|%s|%d|%d", req.TenantID, req.Window.Start.UnixNano(), req.Window.End.UnixNano())
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(seed)).String()
}

func sortedBaselines(baselines map[string]models.Baseline) []models.Baseline {
	keys := make([]string, 0, len(baselines))
	for key := range baselines {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	out := make([]models.Baseline, 0, len(keys))
	for _, key := range keys {
		out = append(out, baselines[key])
	}
	return out
}
