package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"rental-sync-backend/config"
	"rental-sync-backend/internal/normalize"
)

// feedResponse models the top-level structure of a booking feed's response.
type feedResponse struct {
	Code int `json:"code"`
	Data struct {
		Page     int                        `json:"page"`
		PageSize int                        `json:"pageSize"`
		Total    int                        `json:"total"`
		Items    []normalize.RawObservation `json:"items"`
	} `json:"data"`
}

// FeedSource reads booking observations from a paginated JSON feed over HTTP.
type FeedSource struct {
	id       string
	url      string
	headers  map[string]string
	pageSize int
	client   *http.Client
}

// NewFeedSource builds a source for one configured feed. The timeout bounds
// each HTTP request; the scheduler additionally bounds the whole fetch.
func NewFeedSource(cfg config.SourceConfig, timeout time.Duration) *FeedSource {
	return &FeedSource{
		id:       cfg.ID,
		url:      cfg.URL,
		headers:  cfg.Headers,
		pageSize: cfg.PageSize,
		client:   &http.Client{Timeout: timeout},
	}
}

func (f *FeedSource) ID() string {
	return f.id
}

// Fetch walks the feed page by page and returns the full snapshot. Any page
// failure fails the whole fetch: a partial snapshot would make records on the
// missing pages look withdrawn.
func (f *FeedSource) Fetch(ctx context.Context) ([]normalize.RawObservation, error) {
	var all []normalize.RawObservation
	total := 1
	for page := 1; (page-1)*f.pageSize < total; page++ {
		resp, err := f.fetchPage(ctx, page)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch page %d: %w", page, err)
		}
		if resp.Data.Total == 0 || len(resp.Data.Items) == 0 {
			break
		}
		total = resp.Data.Total
		all = append(all, resp.Data.Items...)
	}
	return all, nil
}

// fetchPage fetches a single page of observations from the feed.
func (f *FeedSource) fetchPage(ctx context.Context, page int) (*feedResponse, error) {
	payload := map[string]any{
		"page":     page,
		"pageSize": f.pageSize,
	}

	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	for key, value := range f.headers {
		req.Header.Set(key, value)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("received non-200 status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var feedResp feedResponse
	if err := json.Unmarshal(body, &feedResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal feed response: %w", err)
	}

	if feedResp.Code != 0 {
		return nil, fmt.Errorf("feed returned non-zero application code: %d", feedResp.Code)
	}

	return &feedResp, nil
}
