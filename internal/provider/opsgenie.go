package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const opsGenieDefaultBaseURL = "https://api.opsgenie.com"

// OpsGenie resolves the current on-call via the OpsGenie schedule on-calls
// endpoint. Required config keys: "api_key", "schedule_id".
// Optional: "base_url".
type OpsGenie struct {
	client  *http.Client
	timeout time.Duration
}

func NewOpsGenie(timeout time.Duration) *OpsGenie {
	return &OpsGenie{
		client:  &http.Client{},
		timeout: timeout,
	}
}

type opsGenieOnCallsResponse struct {
	Data struct {
		OnCallRecipients []string `json:"onCallRecipients"`
	} `json:"data"`
}

func (o *OpsGenie) CurrentUser(ctx context.Context, config map[string]string) (string, error) {
	apiKey := config["api_key"]
	scheduleID := config["schedule_id"]
	if apiKey == "" || scheduleID == "" {
		return "", fmt.Errorf("opsgenie: api_key and schedule_id are required")
	}

	base := config["base_url"]
	if base == "" {
		base = opsGenieDefaultBaseURL
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/v2/schedules/%s/on-calls?flat=true", base, scheduleID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("opsgenie: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "GenieKey "+apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("opsgenie: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("opsgenie: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("opsgenie: read body: %w", err)
	}

	var parsed opsGenieOnCallsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("opsgenie: decode: %w", err)
	}

	if len(parsed.Data.OnCallRecipients) == 0 {
		return "", nil
	}
	return parsed.Data.OnCallRecipients[0], nil
}
