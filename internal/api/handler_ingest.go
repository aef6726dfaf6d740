package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// GetIngestReport handles the GET /api/ingest/report request. The report is
// null until the first pass has finished; lastSuccessAt is null until a pass
// completes with every source succeeding.
func (h *Handler) GetIngestReport(c *gin.Context) {
	report, lastSuccess := h.reports.LastReport()

	var successAt *time.Time
	if !lastSuccess.IsZero() {
		successAt = &lastSuccess
	}
	c.JSON(http.StatusOK, gin.H{
		"report":        report,
		"lastSuccessAt": successAt,
	})
}
