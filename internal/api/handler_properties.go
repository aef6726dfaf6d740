package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"rental-sync-backend/internal/identity"
	"rental-sync-backend/internal/store"
)

// propertyResponse represents the API shape of one property registry entry.
type propertyResponse struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName"`
	LastSource  string    `json:"lastSource,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// GetProperties handles the GET /api/properties request.
func (h *Handler) GetProperties(c *gin.Context) {
	props, err := h.store.Properties(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve properties"})
		return
	}

	responses := make([]propertyResponse, 0, len(props))
	for _, p := range props {
		responses = append(responses, propertyResponse{
			ID:          p.ID,
			DisplayName: p.DisplayName,
			LastSource:  p.LastSource,
			UpdatedAt:   p.UpdatedAt,
		})
	}
	c.JSON(http.StatusOK, responses)
}

// GetPropertyReservations handles the GET /api/properties/{property_id}/reservations
// request. It returns the property's active records, optionally bounded by
// check-in date.
func (h *Handler) GetPropertyReservations(c *gin.Context) {
	propertyID := identity.NormalizeProperty(c.Param("property_id"))
	if propertyID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid property ID"})
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

	recs, err := h.store.Query(c.Request.Context(), store.Filter{
		PropertyID:  propertyID,
		ActiveOnly:  true,
		CheckInFrom: from,
		CheckInTo:   to,
	})
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve reservations"})
		return
	}
	c.JSON(http.StatusOK, toReservationResponses(recs))
}
