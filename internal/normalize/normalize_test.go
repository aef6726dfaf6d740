package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rental-sync-backend/internal/identity"
	"rental-sync-backend/internal/model"
)

func tp(t time.Time) *time.Time { return &t }

func TestNormalizeDispositions(t *testing.T) {
	loc := time.FixedZone("CST", -6*3600)
	n := New(identity.NewGenerator(), loc, 3, 18)
	observedAt := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		raw        RawObservation
		wantDisp   Disposition
		wantReason Reason
	}{
		{
			name: "valid reservation",
			raw: RawObservation{
				RawUID:     "HM123",
				PropertyID: "Cabin 7",
				Start:      tp(time.Date(2026, 4, 1, 15, 0, 0, 0, loc)),
				End:        tp(time.Date(2026, 4, 5, 11, 0, 0, 0, loc)),
				Label:      "Jordan Lee",
			},
			wantDisp: DispositionAccepted,
		},
		{
			name: "missing start",
			raw: RawObservation{
				RawUID:     "HM124",
				PropertyID: "Cabin 7",
				End:        tp(time.Date(2026, 4, 5, 11, 0, 0, 0, loc)),
			},
			wantDisp:   DispositionRejected,
			wantReason: ReasonMissingDates,
		},
		{
			name: "missing end",
			raw: RawObservation{
				RawUID:     "HM125",
				PropertyID: "Cabin 7",
				Start:      tp(time.Date(2026, 4, 1, 15, 0, 0, 0, loc)),
			},
			wantDisp:   DispositionRejected,
			wantReason: ReasonMissingDates,
		},
		{
			name: "checkout before checkin",
			raw: RawObservation{
				RawUID:     "HM126",
				PropertyID: "Cabin 7",
				Start:      tp(time.Date(2026, 4, 5, 15, 0, 0, 0, loc)),
				End:        tp(time.Date(2026, 4, 1, 11, 0, 0, 0, loc)),
			},
			wantDisp:   DispositionRejected,
			wantReason: ReasonInvalidRange,
		},
		{
			name: "same-day checkout collapses to zero nights",
			raw: RawObservation{
				RawUID:     "HM127",
				PropertyID: "Cabin 7",
				Start:      tp(time.Date(2026, 4, 1, 9, 0, 0, 0, loc)),
				End:        tp(time.Date(2026, 4, 1, 18, 0, 0, 0, loc)),
			},
			wantDisp:   DispositionRejected,
			wantReason: ReasonInvalidRange,
		},
		{
			name: "stay ended before the window opens",
			raw: RawObservation{
				RawUID:     "HM128",
				PropertyID: "Cabin 7",
				Start:      tp(time.Date(2025, 10, 1, 15, 0, 0, 0, loc)),
				End:        tp(time.Date(2025, 10, 6, 11, 0, 0, 0, loc)),
			},
			wantDisp:   DispositionSkipped,
			wantReason: ReasonOutsideWindow,
		},
		{
			name: "stay starts after the window closes",
			raw: RawObservation{
				RawUID:     "HM129",
				PropertyID: "Cabin 7",
				Start:      tp(time.Date(2027, 10, 1, 15, 0, 0, 0, loc)),
				End:        tp(time.Date(2027, 10, 6, 11, 0, 0, 0, loc)),
			},
			wantDisp:   DispositionSkipped,
			wantReason: ReasonOutsideWindow,
		},
		{
			name: "stay straddling the past edge is kept",
			raw: RawObservation{
				RawUID:     "HM130",
				PropertyID: "Cabin 7",
				Start:      tp(time.Date(2025, 12, 8, 15, 0, 0, 0, loc)),
				End:        tp(time.Date(2025, 12, 12, 11, 0, 0, 0, loc)),
			},
			wantDisp: DispositionAccepted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := n.Normalize(tt.raw, "feed-a", observedAt)
			assert.Equal(t, tt.wantDisp, res.Disposition)
			assert.Equal(t, tt.wantReason, res.Reason)
		})
	}
}

func TestNormalizeAcceptedEvent(t *testing.T) {
	loc := time.FixedZone("CST", -6*3600)
	n := New(identity.NewGenerator(), loc, 3, 18)
	observedAt := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

	res := n.Normalize(RawObservation{
		RawUID:     "HM123",
		PropertyID: "Cabin 7",
		Start:      tp(time.Date(2026, 4, 1, 15, 0, 0, 0, loc)),
		End:        tp(time.Date(2026, 4, 5, 11, 0, 0, 0, loc)),
		Label:      "  Jordan Lee  ",
	}, "feed-a", observedAt)
	require.Equal(t, DispositionAccepted, res.Disposition)

	ev := res.Event
	assert.Equal(t, "cabin-7_HM123", ev.CompositeUID)
	assert.False(t, ev.Placeholder)
	assert.Equal(t, "cabin-7", ev.PropertyID)
	assert.Equal(t, "Cabin 7", ev.PropertyLabel)
	assert.Equal(t, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), ev.CheckIn)
	assert.Equal(t, time.Date(2026, 4, 5, 0, 0, 0, 0, time.UTC), ev.CheckOut)
	assert.Equal(t, model.EntryReservation, ev.EntryType)
	assert.Equal(t, "Jordan Lee", ev.GuestLabel)
	assert.Equal(t, observedAt, ev.ObservedAt)
}

func TestNormalizeBlankLabelBecomesBlock(t *testing.T) {
	n := New(identity.NewGenerator(), time.UTC, 3, 18)
	observedAt := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

	res := n.Normalize(RawObservation{
		RawUID:     "maint-1",
		PropertyID: "Cabin 7",
		Start:      tp(time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)),
		End:        tp(time.Date(2026, 4, 3, 0, 0, 0, 0, time.UTC)),
		Label:      "   ",
	}, "feed-a", observedAt)
	require.Equal(t, DispositionAccepted, res.Disposition)
	assert.Equal(t, model.EntryBlock, res.Event.EntryType)
	assert.Empty(t, res.Event.GuestLabel)
}

func TestNormalizeMissingUIDGetsPlaceholder(t *testing.T) {
	n := New(identity.NewGenerator(), time.UTC, 3, 18)
	observedAt := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	raw := RawObservation{
		PropertyID: "Cabin 7",
		Start:      tp(time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)),
		End:        tp(time.Date(2026, 4, 3, 0, 0, 0, 0, time.UTC)),
		Label:      "Walk-in",
	}

	first := n.Normalize(raw, "feed-a", observedAt)
	second := n.Normalize(raw, "feed-a", observedAt)
	require.Equal(t, DispositionAccepted, first.Disposition)
	require.Equal(t, DispositionAccepted, second.Disposition)

	assert.True(t, first.Event.Placeholder)
	assert.True(t, second.Event.Placeholder)
	assert.NotEqual(t, first.Event.CompositeUID, second.Event.CompositeUID,
		"placeholder identities must never collide")
}

func TestDateOnlyUsesReferenceTimezone(t *testing.T) {
	chicago := time.FixedZone("CST", -6*3600)

	// 02:30 UTC on March 11 is still March 10 in the reference timezone.
	instant := time.Date(2026, 3, 11, 2, 30, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), DateOnly(instant, chicago))
	assert.Equal(t, time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC), DateOnly(instant, time.UTC))
}
