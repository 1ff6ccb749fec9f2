package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/pulsestack/pulse-insights/internal/models"
)

// EventStoreClient wraps the document store's analytics feed APIs. Raw
// records come back as loosely-typed documents; the ingest package owns
// turning them into Events.
type EventStoreClient struct {
	baseURL      string
	eventsPath   string
	paymentsPath string
	httpClient   *http.Client
}

// NewEventStoreClient constructs a client targeting the configured document
// store instance.
func NewEventStoreClient(baseURL, eventsPath, paymentsPath string, timeout time.Duration) *EventStoreClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &EventStoreClient{
		baseURL:      strings.TrimRight(baseURL, "/"),
		eventsPath:   eventsPath,
		paymentsPath: paymentsPath,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// FetchRecords queries the event feed for raw usage records in the window.
// An empty window is a valid, empty result; sparse data is the engine's
// concern, not a transport failure.
func (c *EventStoreClient) FetchRecords(ctx context.Context, tenantID string, window models.TimeRange) ([]map[string]any, error) {
	if c == nil {
		return nil, fmt.Errorf("event store client not initialised")
	}
	if c.baseURL == "" {
		return nil, fmt.Errorf("event store base URL not configured")
	}

	payload := map[string]interface{}{
		"tenant_id": tenantID,
		"start":     window.Start.Format(time.RFC3339),
		"end":       window.End.Format(time.RFC3339),
	}

	var response struct {
		Records []map[string]any `json:"records"`
	}

	if err := c.postJSON(ctx, c.joinURL(c.eventsPath), payload, &response); err != nil {
		return nil, fmt.Errorf("event store records request failed: %w", err)
	}

	return response.Records, nil
}

// FetchPaymentStates queries billing standing for the given entities.
func (c *EventStoreClient) FetchPaymentStates(ctx context.Context, tenantID string, entityIDs []string) (map[string]models.PaymentState, error) {
	if c == nil {
		return nil, fmt.Errorf("event store client not initialised")
	}
	if c.baseURL == "" {
		return nil, fmt.Errorf("event store base URL not configured")
	}
	if len(entityIDs) == 0 {
		return map[string]models.PaymentState{}, nil
	}

	payload := map[string]interface{}{
		"tenant_id":  tenantID,
		"entity_ids": entityIDs,
	}

	var response struct {
		States []struct {
			EntityID      string `json:"entity_id"`
			FailedCharges int    `json:"failed_charges"`
			PastDue       bool   `json:"past_due"`
		} `json:"states"`
	}

	if err := c.postJSON(ctx, c.joinURL(c.paymentsPath), payload, &response); err != nil {
		return nil, fmt.Errorf("event store payments request failed: %w", err)
	}

	states := make(map[string]models.PaymentState, len(response.States))
	for _, state := range response.States {
		if state.EntityID == "" {
			continue
		}
		states[state.EntityID] = models.PaymentState{
			EntityID:      state.EntityID,
			FailedCharges: state.FailedCharges,
			PastDue:       state.PastDue,
		}
	}
	return states, nil
}

func (c *EventStoreClient) joinURL(p string) string {
	parsed, err := url.Parse(c.baseURL)
	if err != nil {
		return c.baseURL + p
	}
	parsed.Path = path.Join(parsed.Path, p)
	return parsed.String()
}

func (c *EventStoreClient) postJSON(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
