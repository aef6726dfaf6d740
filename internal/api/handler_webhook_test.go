package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The scheduling platform disables endpoints that answer with errors, so the
// webhook must acknowledge everything, decodable or not.
func TestSchedulerWebhookAlwaysAcknowledges(t *testing.T) {
	scheduled := time.Date(2026, 4, 5, 14, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		body        string
		wantTrigger bool
	}{
		{
			name:        "reschedule event with payload schedule",
			body:        `{"jobId":"job-42","eventType":"job.rescheduled","scheduledStart":"2026-04-05T14:00:00Z"}`,
			wantTrigger: true,
		},
		{
			name:        "creation event binding a reservation",
			body:        `{"jobId":"job-43","eventType":"job.created","reservationId":"res-9"}`,
			wantTrigger: true,
		},
		{
			name:        "malformed json",
			body:        `{"jobId": job-42}`,
			wantTrigger: false,
		},
		{
			name:        "payload naming nothing",
			body:        `{"eventType":"job.completed","workStatus":"done"}`,
			wantTrigger: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, _, queue, _ := newTestAPI(t)

			w := httptest.NewRecorder()
			req, _ := http.NewRequest(http.MethodPost, "/webhooks/scheduler", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusOK, w.Code)
			assert.JSONEq(t, `{"received":true}`, w.Body.String())

			if !tt.wantTrigger {
				assert.Empty(t, queue.triggers)
				return
			}
			require.Len(t, queue.triggers, 1)
			trg := queue.triggers[0]
			assert.Equal(t, "webhook", trg.Origin)
			switch tt.name {
			case "reschedule event with payload schedule":
				assert.Equal(t, "job-42", trg.JobID)
				require.NotNil(t, trg.ScheduledStart)
				assert.True(t, trg.ScheduledStart.Equal(scheduled))
			case "creation event binding a reservation":
				assert.Equal(t, "job-43", trg.JobID)
				assert.Equal(t, "res-9", trg.ReservationID)
				assert.Nil(t, trg.ScheduledStart)
			}
		})
	}
}
