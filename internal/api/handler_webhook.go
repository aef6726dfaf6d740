package api

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"rental-sync-backend/internal/schedsync"
)

// schedulerWebhookPayload is the scheduling platform's delivery shape. Every
// field is optional: the platform must never see a failure, so the handler
// works with whatever arrived.
type schedulerWebhookPayload struct {
	JobID          string     `json:"jobId"`
	EventType      string     `json:"eventType"`
	ReservationID  string     `json:"reservationId"`
	ScheduledStart *time.Time `json:"scheduledStart"`
	WorkStatus     string     `json:"workStatus"`
}

// SchedulerWebhook handles POST /webhooks/scheduler. It always acknowledges
// with 200; processing problems are logged, never surfaced to the sender,
// which would otherwise retry forever.
func (h *Handler) SchedulerWebhook(c *gin.Context) {
	var payload schedulerWebhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		log.Printf("Warning: undecodable scheduler webhook: %v", err)
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	if payload.JobID == "" && payload.ReservationID == "" {
		log.Printf("Warning: scheduler webhook (%s) names neither a job nor a reservation", payload.EventType)
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	h.triggers.Enqueue(schedsync.Trigger{
		ReservationID:  payload.ReservationID,
		JobID:          payload.JobID,
		ScheduledStart: payload.ScheduledStart,
		Origin:         "webhook",
	})
	c.JSON(http.StatusOK, gin.H{"received": true})
}
