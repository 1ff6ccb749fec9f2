// Package ingest is the single normalization boundary between the
// heterogeneous document-store records and the strict Event type the engine
// computes over. Fallback field chains live here and nowhere else.
package ingest

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pulsestack/pulse-insights/internal/models"
)

// Field alias chains observed in the document store. First match wins.
var (
	entityAliases    = []string{"entityId", "entity_id", "userId", "user_id", "uid"}
	timestampAliases = []string{"timestamp", "ts", "createdAt", "created_at", "occurredAt", "occurred_at"}
	typeAliases      = []string{"type", "eventType", "event_type", "action"}

	attributeAliases = map[string]string{
		"tokens_in":       "tokensIn",
		"tokens_out":      "tokensOut",
		"cost_usd":        "cost",
		"costUsd":         "cost",
		"duration_ms":     "durationMs",
		"sentiment_score": "sentiment",
		"sentimentScore":  "sentiment",
	}

	labelKeys = []string{"model", "source", "sourceType", "source_type", "feature"}
)

// Event type synonyms are mapped onto the canonical enum once here.
var typeSynonyms = map[string]models.EventType{
	"signup":          models.EventSignup,
	"registered":      models.EventSignup,
	"account_created": models.EventSignup,
	"create":          models.EventCreate,
	"created":         models.EventCreate,
	"new":             models.EventCreate,
	"edit":            models.EventEdit,
	"edited":          models.EventEdit,
	"update":          models.EventEdit,
	"updated":         models.EventEdit,
	"export":          models.EventExport,
	"exported":        models.EventExport,
	"download":        models.EventExport,
	"mention":         models.EventCollaborate,
	"reply":           models.EventCollaborate,
	"share":           models.EventCollaborate,
	"shared_access":   models.EventCollaborate,
	"comment":         models.EventCollaborate,
	"collaborate":     models.EventCollaborate,
	"session":         models.EventSession,
	"login":           models.EventSession,
	"view":            models.EventSession,
	"sentiment":       models.EventSentiment,
	"feedback":        models.EventSentiment,
	"nps":             models.EventSentiment,
	"payment_failed":  models.EventPaymentFailed,
	"charge_failed":   models.EventPaymentFailed,
}

// Normalize maps raw records into Events, skipping records that are missing
// identity fields. Offending records never abort the batch; their reasons
// are returned alongside the survivors. Output is ordered by timestamp then
// entity id so downstream computation is deterministic regardless of feed
// ordering.
func Normalize(records []map[string]any) ([]models.Event, []models.SkippedRecord) {
	events := make([]models.Event, 0, len(records))
	skipped := make([]models.SkippedRecord, 0)

	for i, record := range records {
		if record == nil {
			skipped = append(skipped, models.SkippedRecord{Index: i, Reason: "record is null"})
			continue
		}

		entityID := firstString(record, entityAliases)
		if entityID == "" {
			skipped = append(skipped, models.SkippedRecord{Index: i, Reason: "missing entity id"})
			continue
		}

		ts, ok := firstTimestamp(record, timestampAliases)
		if !ok {
			skipped = append(skipped, models.SkippedRecord{Index: i, Reason: fmt.Sprintf("missing or unparseable timestamp for entity %s", entityID)})
			continue
		}

		events = append(events, models.Event{
			EntityID:   entityID,
			Type:       canonicalType(firstString(record, typeAliases)),
			Timestamp:  ts.UTC(),
			Attributes: collectAttributes(record),
			Labels:     collectLabels(record),
		})
	}

	sort.SliceStable(events, func(i, j int) bool {
		if events[i].Timestamp.Equal(events[j].Timestamp) {
			return events[i].EntityID < events[j].EntityID
		}
		return events[i].Timestamp.Before(events[j].Timestamp)
	})

	return events, skipped
}

func canonicalType(raw string) models.EventType {
	if raw == "" {
		return models.EventSession
	}
	key := strings.ToLower(strings.TrimSpace(raw))
	if canonical, ok := typeSynonyms[key]; ok {
		return canonical
	}
	// Unknown types are carried through untouched; feature-usage breadth
	// counts them as distinct features.
	return models.EventType(key)
}

func firstString(record map[string]any, keys []string) string {
	for _, key := range keys {
		if raw, ok := record[key]; ok {
			if s, ok := raw.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

func firstTimestamp(record map[string]any, keys []string) (time.Time, bool) {
	for _, key := range keys {
		raw, ok := record[key]
		if !ok {
			continue
		}
		switch v := raw.(type) {
		case string:
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				return t, true
			}
		case float64:
			// Epoch seconds, or milliseconds for values clearly too large.
			if v > 1e12 {
				return time.UnixMilli(int64(v)), true
			}
			if v > 0 {
				return time.Unix(int64(v), 0), true
			}
		case time.Time:
			return v, true
		}
	}
	return time.Time{}, false
}

// collectAttributes gathers numeric fields from the record and any nested
// "attributes"/"data" map, resolving alias names to their canonical keys.
// Missing numerics simply stay absent; Event.Attr reads them as zero.
func collectAttributes(record map[string]any) map[string]float64 {
	attrs := make(map[string]float64)
	mergeNumeric(attrs, record)
	if nested, ok := record["attributes"].(map[string]any); ok {
		mergeNumeric(attrs, nested)
	}
	if nested, ok := record["data"].(map[string]any); ok {
		mergeNumeric(attrs, nested)
	}
	if len(attrs) == 0 {
		return nil
	}
	return attrs
}

func mergeNumeric(dst map[string]float64, src map[string]any) {
	for key, raw := range src {
		value, ok := toFloat(raw)
		if !ok {
			continue
		}
		if canonical, aliased := attributeAliases[key]; aliased {
			key = canonical
		}
		dst[key] = value
	}
}

func toFloat(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

func collectLabels(record map[string]any) map[string]string {
	var labels map[string]string
	sources := []map[string]any{record}
	if nested, ok := record["attributes"].(map[string]any); ok {
		sources = append(sources, nested)
	}
	if nested, ok := record["data"].(map[string]any); ok {
		sources = append(sources, nested)
	}
	for _, src := range sources {
		for _, key := range labelKeys {
			raw, ok := src[key]
			if !ok {
				continue
			}
			s, ok := raw.(string)
			if !ok || s == "" {
				continue
			}
			if labels == nil {
				labels = make(map[string]string)
			}
			if key == "source_type" {
				key = "sourceType"
			}
			labels[key] = s
		}
	}
	return labels
}
