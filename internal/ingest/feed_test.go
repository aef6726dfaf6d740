package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rental-sync-backend/config"
	"rental-sync-backend/internal/normalize"
)

func TestFeedSourceFetchesAllPages(t *testing.T) {
	start := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	items := make([]normalize.RawObservation, 0, 3)
	for i := 0; i < 3; i++ {
		s := start.AddDate(0, 0, i*7)
		items = append(items, obs(fmt.Sprintf("HM%03d", i), "Cabin 7", s, s.AddDate(0, 0, 4), "Guest"))
	}

	var requests []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "secret-token", r.Header.Get("X-Api-Key"))

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		requests = append(requests, req)

		page := int(req["page"].(float64))
		lo := (page - 1) * 2
		hi := lo + 2
		if hi > len(items) {
			hi = len(items)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"code": 0,
			"data": map[string]any{
				"page":     page,
				"pageSize": 2,
				"total":    len(items),
				"items":    items[lo:hi],
			},
		})
	}))
	defer srv.Close()

	src := NewFeedSource(config.SourceConfig{
		ID:       "feed-a",
		URL:      srv.URL,
		Headers:  map[string]string{"X-Api-Key": "secret-token"},
		PageSize: 2,
	}, 5*time.Second)

	assert.Equal(t, "feed-a", src.ID())

	got, err := src.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "HM000", got[0].RawUID)
	assert.Equal(t, "HM002", got[2].RawUID)
	require.NotNil(t, got[0].Start)
	assert.True(t, got[0].Start.Equal(start))

	require.Len(t, requests, 2)
	assert.Equal(t, float64(2), requests[1]["page"])
	assert.Equal(t, float64(2), requests[1]["pageSize"])
}

func TestFeedSourceEmptyFeed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"code": 0,
			"data": map[string]any{"page": 1, "pageSize": 50, "total": 0, "items": []any{}},
		})
	}))
	defer srv.Close()

	src := NewFeedSource(config.SourceConfig{ID: "feed-a", URL: srv.URL, PageSize: 50}, 5*time.Second)
	got, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFeedSourceFetchFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantErr string
	}{
		{
			name:    "upstream 5xx",
			handler: func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusBadGateway) },
			wantErr: "non-200 status code",
		},
		{
			name: "application error code",
			handler: func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(map[string]any{"code": 7})
			},
			wantErr: "non-zero application code",
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, "this is not json")
			},
			wantErr: "failed to unmarshal",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			src := NewFeedSource(config.SourceConfig{ID: "feed-a", URL: srv.URL, PageSize: 50}, 5*time.Second)
			_, err := src.Fetch(context.Background())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Contains(t, err.Error(), "failed to fetch page 1")
		})
	}
}
