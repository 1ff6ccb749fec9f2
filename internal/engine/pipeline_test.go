package engine

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/pulsestack/pulse-insights/internal/models"
	"github.com/pulsestack/pulse-insights/internal/utils"
)

type fakeFeed struct {
	records  []map[string]any
	payments map[string]models.PaymentState
	err      error
}

func (f *fakeFeed) FetchRecords(ctx context.Context, tenantID string, window models.TimeRange) ([]map[string]any, error) {
	return f.records, f.err
}

func (f *fakeFeed) FetchPaymentStates(ctx context.Context, tenantID string, entityIDs []string) (map[string]models.PaymentState, error) {
	return f.payments, nil
}

type fakeStore struct {
	previous map[string]int
	stored   []models.Snapshot
}

func (f *fakeStore) PreviousScore(ctx context.Context, tenantID, entityID string) (int, bool, error) {
	score, ok := f.previous[entityID]
	return score, ok, nil
}

func (f *fakeStore) StoreSnapshot(ctx context.Context, tenantID string, snapshot models.Snapshot) error {
	f.stored = append(f.stored, snapshot)
	return nil
}

// pipelineFixture builds two weeks of raw records in deliberately mixed
// shapes, with enough per-day volume in the last stretch to stabilize
// baselines and forecasts.
func pipelineFixture(base time.Time) []map[string]any {
	records := []map[string]any{
		{"entity_id": "acct-1", "type": "signup", "timestamp": base.Format(time.RFC3339)},
		{"userId": "acct-1", "event": "create", "ts": base.Add(2 * time.Hour).Format(time.RFC3339)},
		{"userId": "acct-1", "event": "edited", "ts": base.Add(26 * time.Hour).Format(time.RFC3339)},
		{"entity_id": "acct-1", "type": "edit", "timestamp": base.Add(28 * time.Hour).Format(time.RFC3339)},
		{"entity_id": "acct-1", "type": "edit", "timestamp": base.Add(50 * time.Hour).Format(time.RFC3339)},
		{"entity_id": "acct-1", "type": "export", "timestamp": base.Add(3 * 24 * time.Hour).Format(time.RFC3339)},
		{"entity_id": "acct-2", "type": "signup", "timestamp": base.Add(24 * time.Hour).Format(time.RFC3339)},
		{"entity_id": "acct-2", "type": "create", "timestamp": base.Add(25 * time.Hour).Format(time.RFC3339)},
		// malformed records: skipped, never fatal
		{"type": "edit", "timestamp": base.Add(30 * time.Hour).Format(time.RFC3339)},
		{"entity_id": "acct-3", "type": "create", "timestamp": "not-a-time"},
	}
	// steady background sessions so every day has signal
	for d := 0; d < 14; d++ {
		records = append(records, map[string]any{
			"entity_id": "acct-1",
			"type":      "session",
			"timestamp": base.Add(time.Duration(d)*24*time.Hour + 12*time.Hour).Format(time.RFC3339),
		})
	}
	return records
}

func TestPipelineRunProducesFullSnapshot(t *testing.T) {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	window := models.TimeRange{Start: base, End: base.AddDate(0, 0, 14)}

	store := &fakeStore{previous: map[string]int{"acct-1": 40}}
	pipeline := NewPipeline(nil, &fakeFeed{
		records: pipelineFixture(base),
		payments: map[string]models.PaymentState{
			"acct-2": {EntityID: "acct-2", FailedCharges: 2, PastDue: true},
		},
	}, store, DefaultParams(), nil)

	snapshot, err := pipeline.Run(context.Background(), models.AnalyticsRequest{
		TenantID: "tenant-a",
		Window:   window,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if snapshot.SnapshotID == "" {
		t.Fatalf("expected snapshot id")
	}
	if len(snapshot.Retention) == 0 {
		t.Fatalf("expected retention curves")
	}
	if len(snapshot.Baselines) == 0 {
		t.Fatalf("expected baselines")
	}
	if len(snapshot.HealthScores) != 2 {
		t.Fatalf("expected 2 health scores, got %d", len(snapshot.HealthScores))
	}
	if len(snapshot.Forecasts) != 3 {
		t.Fatalf("expected forecasts for 3 horizons, got %d", len(snapshot.Forecasts))
	}
	if len(snapshot.Skipped) != 2 {
		t.Fatalf("expected 2 skipped records, got %d", len(snapshot.Skipped))
	}
	if !snapshot.ComputedAt.Equal(window.End) {
		t.Fatalf("ComputedAt must anchor to the window end")
	}
	if len(store.stored) != 1 {
		t.Fatalf("expected snapshot persisted once, got %d", len(store.stored))
	}

	// Previous score must feed trend computation.
	for _, score := range snapshot.HealthScores {
		if score.EntityID == "acct-1" && score.Trend.Direction == models.TrendFlat && score.Trend.ScoreChange == 0 && score.Score != 40 {
			t.Fatalf("acct-1 trend must compare against the stored score, got %+v", score.Trend)
		}
		if score.EntityID == "acct-2" && score.Factors.Payment != 0 {
			t.Fatalf("acct-2 billing trouble must floor the payment factor, got %d", score.Factors.Payment)
		}
	}
}

func TestPipelineRunIsDeterministic(t *testing.T) {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	window := models.TimeRange{Start: base, End: base.AddDate(0, 0, 14)}
	req := models.AnalyticsRequest{TenantID: "tenant-a", Window: window}

	pipeline := NewPipeline(nil, &fakeFeed{records: pipelineFixture(base)}, nil, DefaultParams(), nil)

	first, err := pipeline.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := pipeline.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	firstJSON, err := json.Marshal(first)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	secondJSON, err := json.Marshal(second)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(firstJSON) != string(secondJSON) {
		t.Fatalf("identical requests over an unchanged feed must be bit-identical")
	}
}

func TestPipelineRunEmptyFeed(t *testing.T) {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	pipeline := NewPipeline(nil, &fakeFeed{}, nil, DefaultParams(), nil)

	_, err := pipeline.Run(context.Background(), models.AnalyticsRequest{
		TenantID: "tenant-a",
		Window:   models.TimeRange{Start: base, End: base.AddDate(0, 0, 7)},
	})
	if !errors.Is(err, utils.ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
}

func TestPipelineRunInvalidWindow(t *testing.T) {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	pipeline := NewPipeline(nil, &fakeFeed{records: pipelineFixture(base)}, nil, DefaultParams(), nil)

	_, err := pipeline.Run(context.Background(), models.AnalyticsRequest{
		TenantID: "tenant-a",
		Window:   models.TimeRange{Start: base.AddDate(0, 0, 7), End: base},
	})
	if !errors.Is(err, utils.ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange, got %v", err)
	}
}

func TestPipelineFeedFailureIsFatal(t *testing.T) {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	pipeline := NewPipeline(nil, &fakeFeed{err: errors.New("store unreachable")}, nil, DefaultParams(), nil)

	_, err := pipeline.Run(context.Background(), models.AnalyticsRequest{
		TenantID: "tenant-a",
		Window:   models.TimeRange{Start: base, End: base.AddDate(0, 0, 7)},
	})
	if err == nil {
		t.Fatalf("feed failure must abort the run")
	}
}
