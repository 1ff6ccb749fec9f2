package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pulsestack/pulse-insights/internal/engine"
	"github.com/pulsestack/pulse-insights/internal/models"
	"github.com/pulsestack/pulse-insights/internal/patterns"
	"github.com/pulsestack/pulse-insights/internal/services"
)

type stubFeed struct {
	records []map[string]any
}

func (s *stubFeed) FetchRecords(ctx context.Context, tenantID string, window models.TimeRange) ([]map[string]any, error) {
	return s.records, nil
}

func (s *stubFeed) FetchPaymentStates(ctx context.Context, tenantID string, entityIDs []string) (map[string]models.PaymentState, error) {
	return nil, nil
}

type stubHistory struct {
	snapshots []models.Snapshot
}

func (s *stubHistory) ListSnapshots(ctx context.Context, tenantID string, limit int) ([]models.Snapshot, error) {
	return s.snapshots, nil
}

func newTestServer(records []map[string]any, history []models.Snapshot) *Server {
	pipeline := engine.NewPipeline(nil, &stubFeed{records: records}, nil, engine.DefaultParams(), nil)
	service := services.NewInsightsService(nil, pipeline, &stubHistory{snapshots: history}, patterns.NewMiner(nil, nil))
	return NewServer(nil, ":0", service)
}

func feedRecords(base time.Time) []map[string]any {
	records := []map[string]any{
		{"entity_id": "acct-1", "type": "signup", "timestamp": base.Format(time.RFC3339)},
		{"entity_id": "acct-1", "type": "create", "timestamp": base.Add(time.Hour).Format(time.RFC3339)},
		{"entity_id": "acct-1", "type": "export", "timestamp": base.Add(48 * time.Hour).Format(time.RFC3339)},
	}
	for d := 0; d < 14; d++ {
		records = append(records, map[string]any{
			"entity_id": "acct-1",
			"type":      "session",
			"timestamp": base.Add(time.Duration(d)*24*time.Hour + 6*time.Hour).Format(time.RFC3339),
		})
	}
	return records
}

func computeBody(base time.Time) string {
	return `{"tenantId":"tenant-a","window":{"start":"` +
		base.Format(time.RFC3339) + `","end":"` +
		base.AddDate(0, 0, 14).Format(time.RFC3339) + `"}}`
}

func TestHandleComputeReturnsSnapshot(t *testing.T) {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	server := newTestServer(feedRecords(base), nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/insights/compute", strings.NewReader(computeBody(base)))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var payload struct {
		Status   string          `json:"status"`
		Snapshot models.Snapshot `json:"snapshot"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Status != statusOK {
		t.Fatalf("expected ok status, got %s", payload.Status)
	}
	if payload.Snapshot.TenantID != "tenant-a" || payload.Snapshot.SnapshotID == "" {
		t.Fatalf("unexpected snapshot %+v", payload.Snapshot)
	}
}

func TestHandleComputeRejectsBadRequests(t *testing.T) {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	server := newTestServer(feedRecords(base), nil)

	cases := []struct {
		name string
		body string
	}{
		{"garbage body", `{not json`},
		{"missing tenant", `{"window":{"start":"2025-03-01T00:00:00Z","end":"2025-03-08T00:00:00Z"}}`},
		{"inverted window", `{"tenantId":"tenant-a","window":{"start":"2025-03-08T00:00:00Z","end":"2025-03-01T00:00:00Z"}}`},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/insights/compute", strings.NewReader(tc.body))
		rec := httptest.NewRecorder()
		server.Handler().ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", tc.name, rec.Code)
		}
	}
}

func TestHandleComputeInsufficientData(t *testing.T) {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	server := newTestServer(nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/insights/compute", strings.NewReader(computeBody(base)))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	// An empty feed is a degraded-but-valid response, not a server error.
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var payload struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Status != statusInsufficientData {
		t.Fatalf("expected insufficient_data status, got %s", payload.Status)
	}
}

func TestHandleRetentionReturnsSubset(t *testing.T) {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	server := newTestServer(feedRecords(base), nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/insights/retention", strings.NewReader(computeBody(base)))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var payload struct {
		Status    string                  `json:"status"`
		Retention []models.RetentionCurve `json:"retention"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(payload.Retention) == 0 {
		t.Fatalf("expected retention curves")
	}
}

func TestHandlePatterns(t *testing.T) {
	at := time.Date(2025, 3, 8, 0, 0, 0, 0, time.UTC)
	history := []models.Snapshot{
		{Anomalies: []models.Anomaly{{Metric: "events", Severity: models.SeverityWarning, DeviationPct: -30, Timestamp: at}}},
	}
	server := newTestServer(nil, history)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/insights/patterns?tenant_id=tenant-a", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var payload struct {
		Patterns []models.AnomalyPattern `json:"patterns"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(payload.Patterns) != 1 || payload.Patterns[0].Metric != "events" {
		t.Fatalf("unexpected patterns %v", payload.Patterns)
	}
}

func TestHandlePatternsRequiresTenant(t *testing.T) {
	server := newTestServer(nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/insights/patterns", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	server := newTestServer(nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/insights/compute", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}
