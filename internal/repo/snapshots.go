package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pulsestack/pulse-insights/internal/cache"
	"github.com/pulsestack/pulse-insights/internal/models"
)

// SnapshotRepo persists computed snapshots and serves previous health
// scores for trend comparison. The cache is the fast path; the remote
// document endpoint is optional, and an empty endpoint degrades the repo
// to cache-only operation.
type SnapshotRepo struct {
	endpoint    string
	apiKey      string
	httpClient  *http.Client
	cache       cache.Provider
	scoreTTL    time.Duration
	snapshotTTL time.Duration
}

// NewSnapshotRepo constructs a snapshot repository. provider must be
// non-nil; pass a NoopProvider to disable caching.
func NewSnapshotRepo(endpoint, apiKey string, timeout time.Duration, provider cache.Provider, scoreTTL, snapshotTTL time.Duration) *SnapshotRepo {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if scoreTTL <= 0 {
		scoreTTL = 24 * time.Hour
	}
	if snapshotTTL <= 0 {
		snapshotTTL = time.Hour
	}
	return &SnapshotRepo{
		endpoint:    strings.TrimRight(endpoint, "/"),
		apiKey:      apiKey,
		httpClient:  &http.Client{Timeout: timeout},
		cache:       provider,
		scoreTTL:    scoreTTL,
		snapshotTTL: snapshotTTL,
	}
}

func scoreKey(tenantID, entityID string) string {
	return fmt.Sprintf("insights:score:%s:%s", tenantID, entityID)
}

func snapshotKey(tenantID string) string {
	return fmt.Sprintf("insights:snapshot:last:%s", tenantID)
}

// StoreSnapshot writes the snapshot to the remote endpoint (when
// configured) and refreshes the per-entity score cache so the next
// computation can resolve trends without a round trip.
func (r *SnapshotRepo) StoreSnapshot(ctx context.Context, tenantID string, snapshot models.Snapshot) error {
	for _, score := range snapshot.HealthScores {
		value := strconv.Itoa(score.Score)
		if err := r.cache.Set(ctx, scoreKey(tenantID, score.EntityID), []byte(value), r.scoreTTL); err != nil {
			return fmt.Errorf("cache score for %s: %w", score.EntityID, err)
		}
	}

	encoded, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := r.cache.Set(ctx, snapshotKey(tenantID), encoded, r.snapshotTTL); err != nil {
		return fmt.Errorf("cache snapshot: %w", err)
	}

	if r.endpoint == "" {
		return nil
	}

	if err := r.postJSON(ctx, r.endpoint+"/api/v1/snapshots", snapshot, nil); err != nil {
		return fmt.Errorf("store snapshot remotely: %w", err)
	}
	return nil
}

// PreviousScore resolves the most recently stored health score for an
// entity. The second return reports whether a score was found; a miss is
// not an error.
func (r *SnapshotRepo) PreviousScore(ctx context.Context, tenantID, entityID string) (int, bool, error) {
	data, err := r.cache.Get(ctx, scoreKey(tenantID, entityID))
	if err == nil {
		score, parseErr := strconv.Atoi(strings.TrimSpace(string(data)))
		if parseErr == nil {
			return score, true, nil
		}
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		return 0, false, fmt.Errorf("score cache lookup: %w", err)
	}

	if r.endpoint == "" {
		return 0, false, nil
	}

	endpoint := fmt.Sprintf("%s/api/v1/scores/%s/%s", r.endpoint, tenantID, entityID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, false, err
	}
	r.setAuth(req)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return 0, false, fmt.Errorf("score request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return 0, false, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, false, fmt.Errorf("unexpected status %d fetching score", resp.StatusCode)
	}

	var payload struct {
		Score int `json:"score"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, false, fmt.Errorf("decode score response: %w", err)
	}

	// Backfill the cache so trend lookups stay local.
	_ = r.cache.Set(ctx, scoreKey(tenantID, entityID), []byte(strconv.Itoa(payload.Score)), r.scoreTTL)

	return payload.Score, true, nil
}

// ListSnapshots returns recent snapshots for a tenant, newest first. In
// cache-only mode only the latest snapshot is available.
func (r *SnapshotRepo) ListSnapshots(ctx context.Context, tenantID string, limit int) ([]models.Snapshot, error) {
	if limit <= 0 {
		limit = 20
	}

	if r.endpoint == "" {
		data, err := r.cache.Get(ctx, snapshotKey(tenantID))
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("snapshot cache lookup: %w", err)
		}
		var snapshot models.Snapshot
		if err := json.Unmarshal(data, &snapshot); err != nil {
			return nil, fmt.Errorf("decode cached snapshot: %w", err)
		}
		return []models.Snapshot{snapshot}, nil
	}

	endpoint := fmt.Sprintf("%s/api/v1/snapshots?tenant_id=%s&limit=%d", r.endpoint, tenantID, limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	r.setAuth(req)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("snapshot list request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d listing snapshots", resp.StatusCode)
	}

	var payload struct {
		Snapshots []models.Snapshot `json:"snapshots"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode snapshot list: %w", err)
	}
	return payload.Snapshots, nil
}

func (r *SnapshotRepo) setAuth(req *http.Request) {
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}
}

func (r *SnapshotRepo) postJSON(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	r.setAuth(req)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
