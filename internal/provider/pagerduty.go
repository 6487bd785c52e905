package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const pagerDutyDefaultBaseURL = "https://api.pagerduty.com"

// PagerDuty resolves the current on-call via the PagerDuty REST API
// /oncalls endpoint. Required config keys: "api_token", "schedule_id".
// Optional: "base_url" (for tests and regional endpoints).
type PagerDuty struct {
	client  *http.Client
	timeout time.Duration
}

func NewPagerDuty(timeout time.Duration) *PagerDuty {
	return &PagerDuty{
		client:  &http.Client{},
		timeout: timeout,
	}
}

type pagerDutyOncallsResponse struct {
	Oncalls []struct {
		User struct {
			ID      string `json:"id"`
			Summary string `json:"summary"`
		} `json:"user"`
	} `json:"oncalls"`
}

func (p *PagerDuty) CurrentUser(ctx context.Context, config map[string]string) (string, error) {
	token := config["api_token"]
	scheduleID := config["schedule_id"]
	if token == "" || scheduleID == "" {
		return "", fmt.Errorf("pagerduty: api_token and schedule_id are required")
	}

	base := config["base_url"]
	if base == "" {
		base = pagerDutyDefaultBaseURL
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	q := url.Values{}
	q.Set("schedule_ids[]", scheduleID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/oncalls?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("pagerduty: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Token token="+token)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("pagerduty: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("pagerduty: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("pagerduty: read body: %w", err)
	}

	var parsed pagerDutyOncallsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("pagerduty: decode: %w", err)
	}

	if len(parsed.Oncalls) == 0 {
		return "", nil
	}
	return parsed.Oncalls[0].User.ID, nil
}
