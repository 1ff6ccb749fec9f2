package patterns

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/pulsestack/pulse-insights/internal/models"
)

// Store abstracts persistence for mined patterns.
type Store interface {
	StorePatterns(ctx context.Context, tenantID string, patterns []models.AnomalyPattern) error
}

// Miner mines frequency-based recurring-anomaly patterns from snapshot
// history: metrics that keep showing up anomalous across computations.
type Miner struct {
	store  Store
	logger *slog.Logger
}

// NewMiner constructs a Miner; store may be nil for dry runs.
func NewMiner(logger *slog.Logger, store Store) *Miner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Miner{store: store, logger: logger}
}

// Mine analyses snapshot history and returns aggregated patterns per metric.
func (m *Miner) Mine(ctx context.Context, tenantID string, snapshots []models.Snapshot) ([]models.AnomalyPattern, error) {
	if len(snapshots) == 0 {
		return nil, nil
	}

	metricStats := make(map[string]*metricAggregate)
	for _, snapshot := range snapshots {
		seen := make(map[string]struct{})
		for _, anomaly := range snapshot.Anomalies {
			agg := ensureAggregate(metricStats, anomaly.Metric)
			agg.occurrences++
			agg.deviationSum += abs(anomaly.DeviationPct)
			agg.severityCounts[anomaly.Severity]++
			if anomaly.Timestamp.After(agg.lastSeen) {
				agg.lastSeen = anomaly.Timestamp
			}
			seen[anomaly.Metric] = struct{}{}
		}
		for metric := range seen {
			metricStats[metric].snapshotHits++
		}
	}

	patterns := make([]models.AnomalyPattern, 0, len(metricStats))
	for metric, agg := range metricStats {
		if agg.occurrences == 0 {
			continue
		}
		patterns = append(patterns, models.AnomalyPattern{
			ID:                  "pattern-" + metric,
			Metric:              metric,
			Occurrences:         agg.occurrences,
			Prevalence:          float64(agg.snapshotHits) / float64(len(snapshots)),
			TypicalDeviationPct: agg.deviationSum / float64(agg.occurrences),
			DominantSeverity:    agg.dominantSeverity(),
			LastSeen:            agg.lastSeen,
		})
	}

	sort.Slice(patterns, func(i, j int) bool {
		if patterns[i].Prevalence != patterns[j].Prevalence {
			return patterns[i].Prevalence > patterns[j].Prevalence
		}
		return patterns[i].Metric < patterns[j].Metric
	})

	if m.store != nil && len(patterns) > 0 {
		if err := m.store.StorePatterns(ctx, tenantID, patterns); err != nil {
			m.logger.Warn("pattern store failed", slog.Any("error", err))
		}
	}

	return patterns, nil
}

type metricAggregate struct {
	occurrences    int
	snapshotHits   int
	deviationSum   float64
	lastSeen       time.Time
	severityCounts map[models.Severity]int
}

func ensureAggregate(m map[string]*metricAggregate, metric string) *metricAggregate {
	if metric == "" {
		metric = "unknown"
	}
	agg, ok := m[metric]
	if !ok {
		agg = &metricAggregate{
			severityCounts: make(map[models.Severity]int),
		}
		m[metric] = agg
	}
	return agg
}

func (agg *metricAggregate) dominantSeverity() models.Severity {
	// Ties resolve toward the more severe label.
	if agg.severityCounts[models.SeverityCritical] >= agg.severityCounts[models.SeverityWarning] {
		if agg.severityCounts[models.SeverityCritical] > 0 {
			return models.SeverityCritical
		}
	}
	if agg.severityCounts[models.SeverityWarning] > 0 {
		return models.SeverityWarning
	}
	return models.SeverityInfo
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
