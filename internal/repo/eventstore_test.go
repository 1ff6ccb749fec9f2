package repo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pulsestack/pulse-insights/internal/models"
)

func TestFetchRecords(t *testing.T) {
	var gotPath string
	var gotPayload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotPayload)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"records":[{"entity_id":"acct-1","type":"edit","timestamp":"2025-03-01T10:00:00Z"}]}`))
	}))
	defer server.Close()

	client := NewEventStoreClient(server.URL, "/api/v1/store/events", "/api/v1/store/payments", time.Second)
	window := models.TimeRange{
		Start: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 3, 8, 0, 0, 0, 0, time.UTC),
	}

	records, err := client.FetchRecords(context.Background(), "tenant-a", window)
	if err != nil {
		t.Fatalf("FetchRecords: %v", err)
	}
	if gotPath != "/api/v1/store/events" {
		t.Fatalf("unexpected path %s", gotPath)
	}
	if gotPayload["tenant_id"] != "tenant-a" {
		t.Fatalf("unexpected payload %v", gotPayload)
	}
	if len(records) != 1 || records[0]["entity_id"] != "acct-1" {
		t.Fatalf("unexpected records %v", records)
	}
}

func TestFetchRecordsEmptyFeedIsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"records":[]}`))
	}))
	defer server.Close()

	client := NewEventStoreClient(server.URL, "/api/v1/store/events", "/api/v1/store/payments", time.Second)
	records, err := client.FetchRecords(context.Background(), "tenant-a", models.TimeRange{
		Start: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 3, 8, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("empty feed must not be a transport failure: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected empty records, got %v", records)
	}
}

func TestFetchRecordsServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewEventStoreClient(server.URL, "/api/v1/store/events", "/api/v1/store/payments", time.Second)
	_, err := client.FetchRecords(context.Background(), "tenant-a", models.TimeRange{
		Start: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 3, 8, 0, 0, 0, 0, time.UTC),
	})
	if err == nil {
		t.Fatalf("expected error on 500")
	}
}

func TestFetchPaymentStates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"states":[
			{"entity_id":"acct-1","failed_charges":2,"past_due":true},
			{"entity_id":"","failed_charges":9,"past_due":true}
		]}`))
	}))
	defer server.Close()

	client := NewEventStoreClient(server.URL, "/api/v1/store/events", "/api/v1/store/payments", time.Second)
	states, err := client.FetchPaymentStates(context.Background(), "tenant-a", []string{"acct-1"})
	if err != nil {
		t.Fatalf("FetchPaymentStates: %v", err)
	}
	if len(states) != 1 {
		t.Fatalf("records without an entity id must be dropped, got %v", states)
	}
	state := states["acct-1"]
	if state.FailedCharges != 2 || !state.PastDue {
		t.Fatalf("unexpected state %+v", state)
	}
}

func TestFetchPaymentStatesNoEntities(t *testing.T) {
	client := NewEventStoreClient("http://unused", "/events", "/payments", time.Second)
	states, err := client.FetchPaymentStates(context.Background(), "tenant-a", nil)
	if err != nil {
		t.Fatalf("no entities must short-circuit: %v", err)
	}
	if len(states) != 0 {
		t.Fatalf("expected empty states, got %v", states)
	}
}
