package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/pulsestack/pulse-insights/internal/engine"
	"github.com/pulsestack/pulse-insights/internal/metrics"
	"github.com/pulsestack/pulse-insights/internal/models"
	"github.com/pulsestack/pulse-insights/internal/patterns"
	"github.com/pulsestack/pulse-insights/internal/utils"
)

// SnapshotHistoryRepo defines the storage operations the service needs for
// snapshot history and pattern mining.
type SnapshotHistoryRepo interface {
	ListSnapshots(ctx context.Context, tenantID string, limit int) ([]models.Snapshot, error)
}

// InsightsService is the facade the API surface talks to. It owns the
// computation pipeline, latency accounting, and the pattern miner.
type InsightsService struct {
	logger      *slog.Logger
	pipeline    *engine.Pipeline
	historyRepo SnapshotHistoryRepo
	miner       *patterns.Miner
	latencies   *utils.LatencyTracker
}

// NewInsightsService constructs the service facade.
func NewInsightsService(logger *slog.Logger, pipeline *engine.Pipeline, historyRepo SnapshotHistoryRepo, miner *patterns.Miner) *InsightsService {
	if logger == nil {
		logger = slog.Default()
	}
	return &InsightsService{
		logger:      logger,
		pipeline:    pipeline,
		historyRepo: historyRepo,
		miner:       miner,
		latencies:   utils.NewLatencyTracker(1024),
	}
}

// Compute runs a full analytics computation for the request window.
func (s *InsightsService) Compute(ctx context.Context, req models.AnalyticsRequest) (models.Snapshot, error) {
	if s.pipeline == nil {
		return models.Snapshot{}, errors.New("pipeline not configured")
	}

	s.logger.Debug("Compute called",
		slog.String("tenant_id", req.TenantID),
		slog.Time("window_start", req.Window.Start),
		slog.Time("window_end", req.Window.End))

	start := time.Now()
	snapshot, err := s.pipeline.Run(ctx, req)
	duration := time.Since(start)
	if err != nil {
		outcome := metrics.OutcomeError
		if errors.Is(err, utils.ErrInsufficientData) {
			outcome = metrics.OutcomeInsufficientData
		}
		metrics.ObserveComputation(duration, outcome)
		s.logger.Error("analytics computation failed", slog.Any("error", err))
		return models.Snapshot{}, err
	}

	s.latencies.Observe(duration)
	metrics.ObserveComputation(duration, metrics.OutcomeSuccess)
	metrics.ObserveSnapshot(snapshot)
	if count := s.latencies.Count(); count >= 20 && count%20 == 0 {
		p95 := s.latencies.Percentile(95)
		s.logger.Info("computation latency", slog.Duration("p95", p95), slog.Int("samples", count))
	}

	return snapshot, nil
}

// Patterns mines recurring-anomaly patterns from the tenant's snapshot
// history.
func (s *InsightsService) Patterns(ctx context.Context, tenantID string, limit int) ([]models.AnomalyPattern, error) {
	if s.historyRepo == nil {
		return nil, errors.New("snapshot history repository not configured")
	}
	if s.miner == nil {
		return nil, errors.New("pattern miner not configured")
	}

	snapshots, err := s.historyRepo.ListSnapshots(ctx, tenantID, limit)
	if err != nil {
		s.logger.Error("list snapshots failed", slog.Any("error", err))
		return nil, err
	}

	return s.miner.Mine(ctx, tenantID, snapshots)
}

// LatencyP95 returns the current p95 computation latency.
func (s *InsightsService) LatencyP95() time.Duration {
	if s.latencies == nil {
		return 0
	}
	return s.latencies.Percentile(95)
}
