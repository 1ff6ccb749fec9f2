package engine

import (
	"fmt"

	"github.com/pulsestack/pulse-insights/internal/models"
	"github.com/pulsestack/pulse-insights/internal/utils"
)

// Aggregate is the result of summing numeric fields over a window.
type Aggregate struct {
	Total   float64            `json:"total"`
	ByGroup map[string]float64 `json:"byGroup,omitempty"`
}

// SumFields folds events within the window (bounds inclusive) into a total
// for the named value fields, optionally grouped by a label key. Fields
// absent on a record contribute zero; heterogeneous upstream data must never
// turn into a fatal error here. Every screen that shows "the same" token or
// cost number goes through this one fold so the numbers cannot drift apart.
func SumFields(events []models.Event, window models.TimeRange, valueFields []string, groupBy string) (Aggregate, error) {
	if err := window.Validate(); err != nil {
		return Aggregate{}, utils.InvalidRange("engine.SumFields", err.Error())
	}

	agg := Aggregate{}
	if groupBy != "" {
		agg.ByGroup = make(map[string]float64)
	}

	for _, event := range events {
		if !window.Contains(event.Timestamp) {
			continue
		}
		value := 0.0
		for _, field := range valueFields {
			value += event.Attr(field)
		}
		agg.Total += value
		if groupBy != "" {
			key := event.Labels[groupBy]
			if key == "" {
				key = "unknown"
			}
			agg.ByGroup[key] += value
		}
	}

	return agg, nil
}

// CountEvents folds events within the window into a count, optionally
// restricted to the given types.
func CountEvents(events []models.Event, window models.TimeRange, types ...models.EventType) (int, error) {
	if err := window.Validate(); err != nil {
		return 0, utils.InvalidRange("engine.CountEvents", err.Error())
	}

	count := 0
	for _, event := range events {
		if !window.Contains(event.Timestamp) {
			continue
		}
		if len(types) > 0 && !typeIn(event.Type, types) {
			continue
		}
		count++
	}
	return count, nil
}

// DailySeries buckets a metric into per-day samples over the window. An
// empty valueField counts events; otherwise the named attribute is summed.
// Days without events still appear with value zero so baseline and forecast
// arithmetic see a continuous series.
func DailySeries(events []models.Event, window models.TimeRange, valueField string) ([]models.MetricPoint, error) {
	if err := window.Validate(); err != nil {
		return nil, utils.InvalidRange("engine.DailySeries", err.Error())
	}

	start := utils.StartOfDay(window.Start)
	end := utils.StartOfDay(window.End)
	numDays := int(end.Sub(start).Hours()/24) + 1
	if numDays < 1 {
		return nil, utils.InvalidRange("engine.DailySeries", fmt.Sprintf("window spans no days: %v", window))
	}

	totals := make([]float64, numDays)
	for _, event := range events {
		if !window.Contains(event.Timestamp) {
			continue
		}
		day := int(utils.StartOfDay(event.Timestamp).Sub(start).Hours() / 24)
		if day < 0 || day >= numDays {
			continue
		}
		if valueField == "" {
			totals[day]++
		} else {
			totals[day] += event.Attr(valueField)
		}
	}

	points := make([]models.MetricPoint, numDays)
	for i := range totals {
		points[i] = models.MetricPoint{
			Timestamp: start.AddDate(0, 0, i),
			Value:     totals[i],
		}
	}
	return points, nil
}

func typeIn(t models.EventType, types []models.EventType) bool {
	for _, candidate := range types {
		if t == candidate {
			return true
		}
	}
	return false
}
