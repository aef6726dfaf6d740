package api

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"rental-sync-backend/config"
	"rental-sync-backend/internal/identity"
	"rental-sync-backend/internal/ingest"
	"rental-sync-backend/internal/model"
	"rental-sync-backend/internal/schedsync"
	"rental-sync-backend/internal/store"
)

var testDBSeq atomic.Int64

type fakeQueue struct {
	triggers []schedsync.Trigger
}

func (f *fakeQueue) Enqueue(trg schedsync.Trigger) {
	f.triggers = append(f.triggers, trg)
}

type fakeReports struct {
	report  *ingest.Report
	success time.Time
}

func (f *fakeReports) LastReport() (*ingest.Report, time.Time) {
	return f.report, f.success
}

func newTestAPI(t *testing.T) (*gin.Engine, store.Store, *fakeQueue, *fakeReports) {
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s-%d?mode=memory&cache=shared", t.Name(), testDBSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.Reservation{}, &model.TransitionLog{}, &model.Property{}))

	cfg := &config.Config{}
	cfg.Server.RateLimitPerSec = 100
	cfg.Server.CacheTTLSeconds = 60

	st := store.NewGormStore(db, nil)
	queue := &fakeQueue{}
	reports := &fakeReports{}
	return NewRouter(cfg, st, reports, queue), st, queue, reports
}

func seedReservation(t *testing.T, st store.Store, id, property, source string, status model.Status, checkIn time.Time) *model.Reservation {
	checkOut := checkIn.AddDate(0, 0, 4)
	propertyID := identity.NormalizeProperty(property)
	rec := &model.Reservation{
		ID:           id,
		CompositeUID: propertyID + "_" + id,
		PropertyID:   propertyID,
		CheckIn:      checkIn,
		CheckOut:     checkOut,
		EntryType:    model.EntryReservation,
		GuestLabel:   "Guest " + id,
		Status:       status,
		Source:       source,
		ConflictKey:  model.ConflictKeyFor(propertyID, checkIn, checkOut, model.EntryReservation),
	}
	require.NoError(t, st.Create(context.Background(), rec, "created"))
	return rec
}
