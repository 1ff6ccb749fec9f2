package models

import (
	"fmt"
	"time"
)

// EventType enumerates the canonical behavioral event categories the engine
// understands. The ingest layer maps raw document-store records onto these.
type EventType string

const (
	EventSignup        EventType = "signup"
	EventCreate        EventType = "create"
	EventEdit          EventType = "edit"
	EventExport        EventType = "export"
	EventCollaborate   EventType = "collaborate"
	EventSession       EventType = "session"
	EventSentiment     EventType = "sentiment"
	EventPaymentFailed EventType = "payment_failed"
)

// Event is a single normalized usage record. Immutable input; the engine
// never mutates or writes events.
type Event struct {
	EntityID   string             `json:"entityId"`
	Type       EventType          `json:"type"`
	Timestamp  time.Time          `json:"timestamp"`
	Attributes map[string]float64 `json:"attributes,omitempty"`
	Labels     map[string]string  `json:"labels,omitempty"`
}

// Attr returns the named numeric attribute, or zero when absent.
func (e Event) Attr(name string) float64 {
	if e.Attributes == nil {
		return 0
	}
	return e.Attributes[name]
}

// TimeRange bounds a computation window.
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Validate reports whether the range is well formed.
func (r TimeRange) Validate() error {
	if r.Start.IsZero() || r.End.IsZero() {
		return fmt.Errorf("time range start and end must be set")
	}
	if r.Start.After(r.End) {
		return fmt.Errorf("time range start %s after end %s", r.Start.Format(time.RFC3339), r.End.Format(time.RFC3339))
	}
	return nil
}

// Contains reports whether t falls within the range, bounds inclusive.
func (r TimeRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

// Days returns the span of the range in whole days, never below 1.
func (r TimeRange) Days() int {
	days := int(r.End.Sub(r.Start).Hours() / 24)
	if days < 1 {
		return 1
	}
	return days
}

// MetricPoint is a single sample of a metric series.
type MetricPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// SkippedRecord explains why a raw record was dropped during normalization.
type SkippedRecord struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// PaymentState summarises an entity's billing standing, supplied by the
// billing collaborator.
type PaymentState struct {
	EntityID      string `json:"entityId"`
	FailedCharges int    `json:"failedCharges"`
	PastDue       bool   `json:"pastDue"`
}
