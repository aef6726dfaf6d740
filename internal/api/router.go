package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"rental-sync-backend/config"
	"rental-sync-backend/internal/mw"
	"rental-sync-backend/internal/store"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(cfg *config.Config, s store.Store, reports ReportSource, triggers TriggerQueue) *gin.Engine {
	r := gin.Default()

	handler := NewHandler(s, reports, triggers)

	burst := int(cfg.Server.RateLimitPerSec)
	if burst < 1 {
		burst = 1
	}
	rateLimiter := mw.RateLimiter(rate.Limit(cfg.Server.RateLimitPerSec), burst, cfg.Server.RequestIPHeader)

	ttl := time.Duration(cfg.Server.CacheTTLSeconds) * time.Second
	cacheStore := cache.New(ttl, 2*ttl)
	caching := mw.Cache(cacheStore, ttl)

	// API group
	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.GET("/properties", caching, handler.GetProperties)
		api.GET("/properties/:property_id/reservations", caching, handler.GetPropertyReservations)

		api.GET("/reservations", handler.GetReservations)
		api.GET("/reservations/:id/history", handler.GetReservationHistory)
		api.POST("/reservations/:id/sync", handler.TriggerSync)

		api.GET("/ingest/report", handler.GetIngestReport)
	}

	// The scheduling platform disables endpoints that fail repeatedly, so its
	// webhook sits outside the rate-limited group.
	r.POST("/webhooks/scheduler", handler.SchedulerWebhook)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return r
}
