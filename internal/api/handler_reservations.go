package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"rental-sync-backend/internal/identity"
	"rental-sync-backend/internal/schedsync"
	"rental-sync-backend/internal/store"
)

// GetReservations handles the GET /api/reservations request. Records can be
// filtered by source, status, composite uid, property and check-in window.
func (h *Handler) GetReservations(c *gin.Context) {
	statuses, ok := parseStatusParam(c)
	if !ok {
		return
	}
	from, ok := parseDateParam(c, "from")
	if !ok {
		return
	}
	to, ok := parseDateParam(c, "to")
	if !ok {
		return
	}

	filter := store.Filter{
		Source:       c.Query("source"),
		CompositeUID: c.Query("uid"),
		Statuses:     statuses,
		ActiveOnly:   c.Query("active") == "true",
		CheckInFrom:  from,
		CheckInTo:    to,
	}
	if p := c.Query("property_id"); p != "" {
		filter.PropertyID = identity.NormalizeProperty(p)
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return
		}
		filter.Limit = n
	}
	if v := c.Query("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid offset"})
			return
		}
		filter.Offset = n
	}

	recs, err := h.store.Query(c.Request.Context(), filter)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve reservations"})
		return
	}
	c.JSON(http.StatusOK, toReservationResponses(recs))
}

// GetReservationHistory handles the GET /api/reservations/{id}/history
// request. The chain is returned oldest first, following the supersede links
// in both directions from the requested record.
func (h *Handler) GetReservationHistory(c *gin.Context) {
	id := c.Param("id")
	chain, err := h.store.History(c.Request.Context(), id)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve history"})
		return
	}
	if len(chain) == 0 {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Reservation not found"})
		return
	}
	c.JSON(http.StatusOK, toReservationResponses(chain))
}

// TriggerSync handles the POST /api/reservations/{id}/sync request by
// queueing an on-demand schedule check. The check itself runs in the worker
// pool; the request returns immediately.
func (h *Handler) TriggerSync(c *gin.Context) {
	id := c.Param("id")
	rec, err := h.store.ByID(c.Request.Context(), id)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to load reservation"})
		return
	}
	if rec == nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Reservation not found"})
		return
	}

	h.triggers.Enqueue(schedsync.Trigger{ReservationID: id, Origin: "manual"})
	c.JSON(http.StatusAccepted, gin.H{"queued": true})
}
