package reconcile

import (
	"context"
	"log"
	"time"

	"rental-sync-backend/internal/model"
	"rental-sync-backend/internal/normalize"
)

// DetectRemovals finds this source's active records that the pass no longer
// observed and transitions them to removed. observed holds the composite UIDs
// the pass yielded; resolved holds UIDs that took part in conflict resolution
// and must be left alone this pass. observedAt anchors "today" for the
// expired-stay exclusion.
//
// The optimistic claim makes each removal fire exactly once even when passes
// overlap: a record already transitioned elsewhere is skipped.
func (r *Reconciler) DetectRemovals(ctx context.Context, sourceID string, observed, resolved map[string]bool, observedAt time.Time) ([]model.Reservation, error) {
	actives, err := r.store.ActiveBySource(ctx, sourceID)
	if err != nil {
		return nil, err
	}

	today := normalize.DateOnly(observedAt, r.loc)

	var removed []model.Reservation
	for _, rec := range actives {
		// Removed records are already removed; only live bookings degrade.
		if rec.Status != model.StatusNew && rec.Status != model.StatusModified {
			continue
		}
		if observed[rec.CompositeUID] || resolved[rec.CompositeUID] {
			continue
		}
		// A stay whose checkout has passed drops off feeds naturally; that is
		// expiry, not cancellation.
		if rec.CheckOut.Before(today) {
			continue
		}

		claimed, err := r.store.ConditionalTransition(ctx, rec.ID, rec.Status, model.StatusRemoved, "absent_from_feed", nil)
		if err != nil {
			return removed, err
		}
		if !claimed {
			log.Printf("Reservation %s (%s) already updated, skipping removal.", rec.ID, rec.CompositeUID)
			continue
		}
		removed = append(removed, rec)

		if r.commands != nil && rec.EntryType == model.EntryReservation {
			r.commands.Dispatch(model.AppointmentCommand{
				Op:            model.CommandCancel,
				ReservationID: rec.ID,
				CompositeUID:  rec.CompositeUID,
				PropertyID:    rec.PropertyID,
				ExternalJobID: rec.ExternalJobID,
				ServiceAt:     rec.ServiceAt,
			})
		}
	}
	return removed, nil
}
