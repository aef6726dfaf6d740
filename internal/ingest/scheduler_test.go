package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"rental-sync-backend/config"
	"rental-sync-backend/internal/identity"
	"rental-sync-backend/internal/model"
	"rental-sync-backend/internal/normalize"
	"rental-sync-backend/internal/reconcile"
	"rental-sync-backend/internal/store"
)

var testDBSeq atomic.Int64

type fakeSource struct {
	id  string
	obs []normalize.RawObservation
	err error
}

func (f *fakeSource) ID() string { return f.id }

func (f *fakeSource) Fetch(ctx context.Context) ([]normalize.RawObservation, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.obs, nil
}

func newTestScheduler(t *testing.T) (*Scheduler, store.Store) {
	dsn := fmt.Sprintf("file:%s-%d?mode=memory&cache=shared", t.Name(), testDBSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.Reservation{}, &model.TransitionLog{}, &model.Property{}))

	cfg := &config.Config{}
	cfg.Ingest.Enabled = true
	cfg.Ingest.Concurrency = 1
	cfg.Ingest.SourceTimeout = 5 * time.Second
	cfg.Ingest.RetentionPastMonths = 3
	cfg.Ingest.RetentionFutureMonths = 18
	cfg.Ingest.Timezone = "UTC"
	cfg.Ingest.SourcePriority = []string{"channel-direct", "feed-a", "feed-b"}
	cfg.Scheduler.DefaultServiceTime = "10:00"

	st := store.NewGormStore(db, nil)
	rec := reconcile.New(cfg, st, nil)
	return NewScheduler(cfg, st, rec), st
}

func obs(uid, property string, start, end time.Time, label string) normalize.RawObservation {
	return normalize.RawObservation{RawUID: uid, PropertyID: property, Start: &start, End: &end, Label: label}
}

func TestRunOnceCountsPerSource(t *testing.T) {
	s, st := newTestScheduler(t)
	ctx := context.Background()

	now := time.Now().UTC()
	in := now.AddDate(0, 1, 0)
	out := in.AddDate(0, 0, 4)
	in2 := now.AddDate(0, 2, 0)
	out2 := in2.AddDate(0, 0, 3)
	stale := now.AddDate(-1, 0, 0)

	report := s.RunOnce(ctx, []Source{
		&fakeSource{id: "feed-a", obs: []normalize.RawObservation{
			obs("HM100", "Cabin 7", in, out, "Avery Kim"),
			{RawUID: "HM101", PropertyID: "Cabin 7", Label: "No Dates"},
			obs("HM102", "Cabin 7", stale, stale.AddDate(0, 0, 4), "Long Gone"),
			obs("", "Cabin 7", in2, out2, "Mystery Guest"),
		}},
		&fakeSource{id: "feed-b", err: errors.New("connection refused")},
	})

	require.Len(t, report.Sources, 2)
	a := report.Sources[0]
	assert.Equal(t, "feed-a", a.SourceID)
	assert.Equal(t, 4, a.Fetched)
	assert.Equal(t, 2, a.Accepted)
	assert.Equal(t, 1, a.Rejected)
	assert.Equal(t, 1, a.Skipped)
	assert.Equal(t, 2, a.Created)
	assert.Empty(t, a.Error)

	b := report.Sources[1]
	assert.Equal(t, "feed-b", b.SourceID)
	assert.Contains(t, b.Error, "connection refused")

	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 1, report.Failed)

	last, success := s.LastReport()
	require.NotNil(t, last)
	assert.True(t, last.StartedAt.Equal(report.StartedAt))
	assert.True(t, success.IsZero(), "a pass with a failed source should not count as fully successful")

	props, err := st.Properties(ctx)
	require.NoError(t, err)
	require.Len(t, props, 1)
	assert.Equal(t, "cabin-7", props[0].ID)
	assert.Equal(t, "Cabin 7", props[0].DisplayName)
}

// TestRunOnceSharedInstant feeds the same stay from two sources in one pass,
// in both processing orders. Because every source in a pass shares one
// observation instant, recency ties and the configured authority order picks
// the winner regardless of which source was applied first.
func TestRunOnceSharedInstant(t *testing.T) {
	now := time.Now().UTC()
	in := now.AddDate(0, 1, 0)
	out := in.AddDate(0, 0, 5)

	direct := &fakeSource{id: "channel-direct", obs: []normalize.RawObservation{
		obs("D-1", "Cabin 7", in, out, "Avery Kim"),
	}}
	feed := &fakeSource{id: "feed-b", obs: []normalize.RawObservation{
		obs("F-1", "Cabin 7", in, out, "Avery Kim"),
	}}

	orders := []struct {
		name    string
		sources []Source
	}{
		{"higher authority applied first", []Source{direct, feed}},
		{"higher authority applied second", []Source{feed, direct}},
	}
	for _, order := range orders {
		s, st := newTestScheduler(t)
		t.Run(order.name, func(t *testing.T) {
			ctx := context.Background()
			report := s.RunOnce(ctx, order.sources)
			assert.Equal(t, 2, report.Succeeded)

			actives, err := st.Query(ctx, store.Filter{ActiveOnly: true})
			require.NoError(t, err)
			require.Len(t, actives, 1)
			assert.Equal(t, "channel-direct", actives[0].Source)

			all, err := st.Query(ctx, store.Filter{})
			require.NoError(t, err)
			assert.Len(t, all, 2, "the losing description is kept as history")
		})
	}
}

func TestRunOnceDetectsRemovalsAcrossPasses(t *testing.T) {
	s, st := newTestScheduler(t)
	ctx := context.Background()

	now := time.Now().UTC()
	inA := now.AddDate(0, 1, 0)
	inB := now.AddDate(0, 2, 0)
	a := obs("HM-A", "Cabin 7", inA, inA.AddDate(0, 0, 4), "Guest A")
	b := obs("HM-B", "Cabin 7", inB, inB.AddDate(0, 0, 4), "Guest B")

	src := &fakeSource{id: "feed-a", obs: []normalize.RawObservation{a, b}}

	first := s.RunOnce(ctx, []Source{src})
	require.Len(t, first.Sources, 1)
	assert.Equal(t, 2, first.Sources[0].Created)
	assert.Equal(t, 0, first.Sources[0].Removed)

	src.obs = []normalize.RawObservation{a}
	second := s.RunOnce(ctx, []Source{src})
	require.Len(t, second.Sources, 1)
	assert.Equal(t, 1, second.Sources[0].Refreshed)
	assert.Equal(t, 1, second.Sources[0].Removed)

	uidB := identity.NewGenerator().Generate("HM-B", "Cabin 7")
	recs, err := st.ActiveByUID(ctx, uidB)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, model.StatusRemoved, recs[0].Status)

	uidA := identity.NewGenerator().Generate("HM-A", "Cabin 7")
	recs, err = st.ActiveByUID(ctx, uidA)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, model.StatusNew, recs[0].Status)

	_, success := s.LastReport()
	assert.False(t, success.IsZero())
}

// A fetch failure must fail the source without touching its records: a
// truncated snapshot must never read as a wave of withdrawals.
func TestRunOnceFetchFailureLeavesRecordsUntouched(t *testing.T) {
	s, st := newTestScheduler(t)
	ctx := context.Background()

	now := time.Now().UTC()
	in := now.AddDate(0, 1, 0)
	src := &fakeSource{id: "feed-a", obs: []normalize.RawObservation{
		obs("HM-A", "Cabin 7", in, in.AddDate(0, 0, 4), "Guest A"),
	}}
	s.RunOnce(ctx, []Source{src})

	src.err = errors.New("feed exploded")
	report := s.RunOnce(ctx, []Source{src})
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 0, report.Sources[0].Removed)

	uid := identity.NewGenerator().Generate("HM-A", "Cabin 7")
	recs, err := st.ActiveByUID(ctx, uid)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, model.StatusNew, recs[0].Status)
}

func TestNewSchedulerBuildsConfiguredSources(t *testing.T) {
	cfg := &config.Config{}
	cfg.Ingest.Timezone = "UTC"
	cfg.Ingest.SourceTimeout = 5 * time.Second
	cfg.Ingest.Sources = []config.SourceConfig{
		{ID: "feed-a", URL: "http://feeds.example/a", PageSize: 100},
		{ID: "feed-b", URL: "http://feeds.example/b", PageSize: 50},
	}

	s := NewScheduler(cfg, nil, nil)
	require.Len(t, s.sources, 2)
	assert.Equal(t, "feed-a", s.sources[0].ID())
	assert.Equal(t, "feed-b", s.sources[1].ID())
}

func TestRunRespectsDisabledFlag(t *testing.T) {
	s, _ := newTestScheduler(t)
	s.cfg.Ingest.Enabled = false

	// Returns synchronously without executing a pass.
	s.Run(context.Background())

	last, _ := s.LastReport()
	assert.Nil(t, last)
}
