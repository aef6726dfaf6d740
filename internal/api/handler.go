package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"rental-sync-backend/internal/ingest"
	"rental-sync-backend/internal/model"
	"rental-sync-backend/internal/schedsync"
	"rental-sync-backend/internal/store"
)

// TriggerQueue accepts sync triggers for asynchronous processing.
type TriggerQueue interface {
	Enqueue(trg schedsync.Trigger)
}

// ReportSource exposes the latest ingestion report.
type ReportSource interface {
	LastReport() (*ingest.Report, time.Time)
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store    store.Store
	reports  ReportSource
	triggers TriggerQueue
}

// NewHandler creates a new API handler.
func NewHandler(s store.Store, reports ReportSource, triggers TriggerQueue) *Handler {
	return &Handler{
		store:    s,
		reports:  reports,
		triggers: triggers,
	}
}

// reservationResponse is the API shape of one reservation record. Check-in
// and check-out carry date-only semantics and are rendered as plain dates.
type reservationResponse struct {
	ID             string           `json:"id"`
	CompositeUID   string           `json:"compositeUid"`
	PropertyID     string           `json:"propertyId"`
	CheckIn        string           `json:"checkIn"`
	CheckOut       string           `json:"checkOut"`
	EntryType      model.EntryType  `json:"entryType"`
	GuestLabel     string           `json:"guestLabel,omitempty"`
	Status         model.Status     `json:"status"`
	Source         string           `json:"source"`
	RawUID         string           `json:"rawUid,omitempty"`
	PlaceholderUID bool             `json:"placeholderUid,omitempty"`
	SupersedesID   *string          `json:"supersedesId,omitempty"`
	SupersededByID *string          `json:"supersededById,omitempty"`
	ExternalJobID  string           `json:"externalJobId,omitempty"`
	ServiceAt      *time.Time       `json:"serviceAt,omitempty"`
	SyncStatus     model.SyncStatus `json:"syncStatus,omitempty"`
	SyncDetails    string           `json:"syncDetails,omitempty"`
	SyncCheckedAt  *time.Time       `json:"syncCheckedAt,omitempty"`
	CreatedAt      time.Time        `json:"createdAt"`
	UpdatedAt      time.Time        `json:"updatedAt"`
}

func toReservationResponse(r model.Reservation) reservationResponse {
	return reservationResponse{
		ID:             r.ID,
		CompositeUID:   r.CompositeUID,
		PropertyID:     r.PropertyID,
		CheckIn:        r.CheckIn.Format("2006-01-02"),
		CheckOut:       r.CheckOut.Format("2006-01-02"),
		EntryType:      r.EntryType,
		GuestLabel:     r.GuestLabel,
		Status:         r.Status,
		Source:         r.Source,
		RawUID:         r.RawUID,
		PlaceholderUID: r.PlaceholderUID,
		SupersedesID:   r.SupersedesID,
		SupersededByID: r.SupersededByID,
		ExternalJobID:  r.ExternalJobID,
		ServiceAt:      r.ServiceAt,
		SyncStatus:     r.SyncStatus,
		SyncDetails:    r.SyncDetails,
		SyncCheckedAt:  r.SyncCheckedAt,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func toReservationResponses(recs []model.Reservation) []reservationResponse {
	out := make([]reservationResponse, 0, len(recs))
	for _, r := range recs {
		out = append(out, toReservationResponse(r))
	}
	return out
}

// parseDateParam reads an optional YYYY-MM-DD query parameter. The second
// return is false when the parameter was present but invalid; the handler
// has already aborted with a 400 in that case.
func parseDateParam(c *gin.Context, name string) (*time.Time, bool) {
	v := c.Query(name)
	if v == "" {
		return nil, true
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid %s: use YYYY-MM-DD", name)})
		return nil, false
	}
	return &t, true
}

// parseStatusParam reads an optional comma-separated status filter.
func parseStatusParam(c *gin.Context) ([]model.Status, bool) {
	v := c.Query("status")
	if v == "" {
		return nil, true
	}
	var out []model.Status
	for _, part := range strings.Split(v, ",") {
		s := model.Status(strings.TrimSpace(part))
		switch s {
		case model.StatusNew, model.StatusModified, model.StatusRemoved, model.StatusOld:
			out = append(out, s)
		default:
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown status %q", part)})
			return nil, false
		}
	}
	return out, true
}
