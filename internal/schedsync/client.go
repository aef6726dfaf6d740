package schedsync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"rental-sync-backend/config"
)

// ScheduleProvider fetches the current schedule of a turnover job.
type ScheduleProvider interface {
	GetSchedule(ctx context.Context, jobID string) (*Schedule, error)
}

// scheduleResponse models the scheduling platform's job payload.
type scheduleResponse struct {
	Code int      `json:"code"`
	Data Schedule `json:"data"`
}

// HTTPClient reads job schedules from the scheduling platform's REST API.
type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewHTTPClient(cfg *config.Config) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(cfg.Scheduler.BaseURL, "/"),
		token:   cfg.Scheduler.APIToken,
		client:  &http.Client{Timeout: cfg.Scheduler.Timeout},
	}
}

// GetSchedule returns the job's schedule, or nil without error when the
// platform no longer knows the job. Callers treat a nil schedule as a job
// that was never created.
func (c *HTTPClient) GetSchedule(ctx context.Context, jobID string) (*Schedule, error) {
	u := fmt.Sprintf("%s/jobs/%s", c.baseURL, url.PathEscape(jobID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("received non-200 status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var sr scheduleResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, fmt.Errorf("failed to unmarshal schedule response: %w", err)
	}
	if sr.Code != 0 {
		return nil, fmt.Errorf("platform returned non-zero application code: %d", sr.Code)
	}

	sched := sr.Data
	return &sched, nil
}
