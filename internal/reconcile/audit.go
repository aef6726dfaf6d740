package reconcile

import (
	"context"
	"log"

	"rental-sync-backend/internal/model"
)

// AuditInvariants scans for composite UIDs holding more than one active
// record. Any hit is a defect in the optimistic write path, so it is logged
// loudly and remediated: the most recently updated record stays active, the
// rest are retired and linked to it. Returns the number of records retired.
func (r *Reconciler) AuditInvariants(ctx context.Context) (int, error) {
	uids, err := r.store.DuplicateActiveUIDs(ctx)
	if err != nil {
		return 0, err
	}

	retired := 0
	for _, uid := range uids {
		recs, err := r.store.ActiveByUID(ctx, uid)
		if err != nil {
			return retired, err
		}
		if len(recs) < 2 {
			// Fixed between the scan and now.
			continue
		}

		keeper := recs[0]
		log.Printf("INVARIANT BREACH: %d active records for %s; keeping %s, retiring the rest.",
			len(recs), uid, keeper.ID)

		for _, rec := range recs[1:] {
			claimed, err := r.store.ConditionalTransition(ctx, rec.ID, rec.Status, model.StatusOld, "invariant_remediation", &keeper.ID)
			if err != nil {
				return retired, err
			}
			if claimed {
				retired++
			}
		}
	}
	return retired, nil
}
