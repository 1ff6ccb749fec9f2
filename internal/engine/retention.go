package engine

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/pulsestack/pulse-insights/internal/models"
	"github.com/pulsestack/pulse-insights/internal/utils"
)

// RetentionCalculator computes per-cohort retention curves: the fraction of
// members still active in each period after their qualifying event.
type RetentionCalculator struct {
	params Params
	logger *slog.Logger
}

// NewRetentionCalculator constructs a RetentionCalculator.
func NewRetentionCalculator(params Params, logger *slog.Logger) *RetentionCalculator {
	if logger == nil {
		logger = slog.Default()
	}
	return &RetentionCalculator{params: params.withDefaults(), logger: logger}
}

// Curves computes a retention curve for every non-empty cohort in the set.
// Empty cohorts carry no signal and are omitted entirely rather than
// rendered as 0/0. maxPeriods below zero is a contract violation; zero
// falls back to the configured horizon.
func (c *RetentionCalculator) Curves(set CohortSet, events []models.Event, maxPeriods int) ([]models.RetentionCurve, error) {
	if maxPeriods < 0 {
		return nil, utils.InvalidRange("engine.RetentionCalculator.Curves", fmt.Sprintf("maxPeriods %d is negative", maxPeriods))
	}
	if maxPeriods == 0 {
		maxPeriods = c.params.MaxPeriods
	}

	names := make([]models.CohortName, 0, len(set.Cohorts))
	for name := range set.Cohorts {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })

	curves := make([]models.RetentionCurve, 0, len(names))
	for _, name := range names {
		cohort := set.Cohorts[name]
		if cohort.Size() == 0 {
			continue
		}
		curves = append(curves, c.curve(cohort, set.Anchors, events, maxPeriods))
	}
	return curves, nil
}

func (c *RetentionCalculator) curve(cohort models.Cohort, anchors map[string]time.Time, events []models.Event, maxPeriods int) models.RetentionCurve {
	size := cohort.Size()
	period := time.Duration(c.params.WeekWindowDays) * 24 * time.Hour

	// Events per member, so each period scan only touches that member's
	// activity.
	memberEvents := make(map[string][]time.Time, size)
	members := make(map[string]struct{}, size)
	for _, id := range cohort.MemberIDs {
		members[id] = struct{}{}
	}
	for _, event := range events {
		if _, ok := members[event.EntityID]; ok {
			memberEvents[event.EntityID] = append(memberEvents[event.EntityID], event.Timestamp)
		}
	}

	points := make([]models.RetentionPoint, 0, maxPeriods+1)
	// Period 0 is 1.0 by construction: the qualifying event itself is the
	// period-zero activity.
	points = append(points, models.RetentionPoint{
		CohortName:    cohort.Name,
		PeriodIndex:   0,
		ActiveCount:   size,
		CohortSize:    size,
		RetentionRate: 1.0,
	})

	for idx := 1; idx <= maxPeriods; idx++ {
		active := 0
		for _, id := range cohort.MemberIDs {
			anchor, ok := anchors[id]
			if !ok {
				continue
			}
			periodStart := anchor.Add(time.Duration(idx) * period)
			periodEnd := periodStart.Add(period)
			if anyActivityIn(memberEvents[id], periodStart, periodEnd) {
				active++
			}
		}
		points = append(points, models.RetentionPoint{
			CohortName:    cohort.Name,
			PeriodIndex:   idx,
			ActiveCount:   active,
			CohortSize:    size,
			RetentionRate: float64(active) / float64(size),
		})
	}

	return models.RetentionCurve{
		CohortName: cohort.Name,
		Size:       size,
		Points:     points,
	}
}

// anyActivityIn reports at least one timestamp in [start, end). Curves may
// legitimately dip and recover; no smoothing or clamping happens here.
func anyActivityIn(timestamps []time.Time, start, end time.Time) bool {
	for _, ts := range timestamps {
		if !ts.Before(start) && ts.Before(end) {
			return true
		}
	}
	return false
}
