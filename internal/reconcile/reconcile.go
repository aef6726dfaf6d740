package reconcile

import (
	"context"
	"log"
	"time"

	"rental-sync-backend/config"
	"rental-sync-backend/internal/model"
	"rental-sync-backend/internal/normalize"
	"rental-sync-backend/internal/store"
)

// Outcome classifies what applying one booking event did to the store.
type Outcome string

const (
	OutcomeCreated      Outcome = "created"
	OutcomeRefreshed    Outcome = "refreshed"
	OutcomeSuperseded   Outcome = "superseded"
	OutcomeConflictWon  Outcome = "conflict_won"
	OutcomeConflictLost Outcome = "conflict_lost"
	OutcomeSkipped      Outcome = "skipped"
)

// Conflict resolution criteria, in the order they are consulted.
const (
	critCompleteness = "completeness"
	critRecency      = "recency"
	critAuthority    = "source_authority"
	critEqualRank    = "equal_rank"
)

// ApplyResult reports the outcome of one event. ResolvedUIDs lists every
// composite UID that took part in a conflict resolution; removal detection
// must not touch those in the same pass.
type ApplyResult struct {
	Outcome      Outcome
	Record       *model.Reservation
	ResolvedUIDs []string
}

// CommandSink receives appointment alignment requests derived from
// reconciliation outcomes. Dispatch must not block.
type CommandSink interface {
	Dispatch(cmd model.AppointmentCommand)
}

// Reconciler applies normalized booking events to the reservation store,
// keeping one active record per composite UID and a full supersede history.
type Reconciler struct {
	store       store.Store
	rank        map[string]int
	loc         *time.Location
	serviceHour int
	serviceMin  int
	commands    CommandSink
}

// New creates a reconciler. commands may be nil when no appointment
// alignment is wanted (tests, backfills).
func New(cfg *config.Config, st store.Store, commands CommandSink) *Reconciler {
	loc, err := time.LoadLocation(cfg.Ingest.Timezone)
	if err != nil {
		log.Printf("Warning: invalid timezone %q: %v. Falling back to UTC.", cfg.Ingest.Timezone, err)
		loc = time.UTC
	}

	hour, min := parseServiceTime(cfg.Scheduler.DefaultServiceTime)

	// First mention wins so a duplicated id cannot demote a source.
	rank := make(map[string]int, len(cfg.Ingest.SourcePriority))
	for i, id := range cfg.Ingest.SourcePriority {
		if _, ok := rank[id]; !ok {
			rank[id] = i
		}
	}

	return &Reconciler{
		store:       st,
		rank:        rank,
		loc:         loc,
		serviceHour: hour,
		serviceMin:  min,
		commands:    commands,
	}
}

func parseServiceTime(s string) (int, int) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		log.Printf("Warning: invalid default service time %q: %v. Falling back to 10:00.", s, err)
		return 10, 0
	}
	return t.Hour(), t.Minute()
}

// Apply runs one event through the state machine. Store errors abort the
// event; "already updated" races are skips, not errors.
func (r *Reconciler) Apply(ctx context.Context, ev normalize.BookingEvent) (ApplyResult, error) {
	actives, err := r.store.ActiveByUID(ctx, ev.CompositeUID)
	if err != nil {
		return ApplyResult{}, err
	}

	if len(actives) > 0 {
		cur := actives[0]
		if cur.SameStay(ev.CheckIn, ev.CheckOut, ev.EntryType) {
			if err := r.store.Refresh(ctx, cur.ID, ev.ObservedAt); err != nil {
				return ApplyResult{}, err
			}
			cur.UpdatedAt = ev.ObservedAt.UTC()
			return ApplyResult{Outcome: OutcomeRefreshed, Record: &cur}, nil
		}

		successor := r.buildRecord(ev, model.StatusModified)
		successor.ExternalJobID = cur.ExternalJobID
		claimed, err := r.store.Supersede(ctx, cur.ID, cur.Status, successor, changeReason(&cur, ev))
		if err != nil {
			return ApplyResult{}, err
		}
		if !claimed {
			log.Printf("Reservation %s (%s) already updated, skipping supersede.", cur.ID, ev.CompositeUID)
			return ApplyResult{Outcome: OutcomeSkipped}, nil
		}
		r.dispatch(successor)
		return ApplyResult{Outcome: OutcomeSuperseded, Record: successor}, nil
	}

	// Nothing active under this UID. The same stay may still be active under
	// another UID reported by a different feed.
	key := model.ConflictKeyFor(ev.PropertyID, ev.CheckIn, ev.CheckOut, ev.EntryType)
	candidates, err := r.store.ActiveByConflictKey(ctx, key)
	if err != nil {
		return ApplyResult{}, err
	}
	candidates = dropUID(candidates, ev.CompositeUID)

	if len(candidates) == 0 {
		rec := r.buildRecord(ev, model.StatusNew)
		if err := r.store.Create(ctx, rec, "created"); err != nil {
			return ApplyResult{}, err
		}
		r.dispatch(rec)
		return ApplyResult{Outcome: OutcomeCreated, Record: rec}, nil
	}

	return r.resolveConflict(ctx, ev, candidates)
}

// resolveConflict decides between the incoming event and the active records
// holding the same stay under other UIDs. The incoming event must beat every
// candidate to take over; candidates arrive in a deterministic order, so the
// outcome does not depend on observation order.
func (r *Reconciler) resolveConflict(ctx context.Context, ev normalize.BookingEvent, candidates []model.Reservation) (ApplyResult, error) {
	resolved := make([]string, 0, len(candidates)+1)
	resolved = append(resolved, ev.CompositeUID)
	for i := range candidates {
		resolved = append(resolved, candidates[i].CompositeUID)
	}

	for i := range candidates {
		verdict := r.resolve(ev, &candidates[i])
		if verdict.incomingWins {
			continue
		}
		winner := candidates[i]
		if verdict.criterion == critEqualRank {
			log.Printf("MANUAL REVIEW: conflict between %s and incoming %s has equal source rank; keeping existing record %s.",
				winner.CompositeUID, ev.CompositeUID, winner.ID)
		}

		// Record the losing observation once, not on every pass.
		latest, err := r.store.LatestByUID(ctx, ev.CompositeUID)
		if err != nil {
			return ApplyResult{}, err
		}
		if latest != nil && latest.Status == model.StatusOld &&
			latest.SameStay(ev.CheckIn, ev.CheckOut, ev.EntryType) &&
			latest.SupersededByID != nil && *latest.SupersededByID == winner.ID {
			if err := r.store.Refresh(ctx, latest.ID, ev.ObservedAt); err != nil {
				return ApplyResult{}, err
			}
			return ApplyResult{Outcome: OutcomeConflictLost, ResolvedUIDs: resolved}, nil
		}

		loser := r.buildRecord(ev, model.StatusOld)
		loser.SupersededByID = &winner.ID
		if err := r.store.Create(ctx, loser, "conflict_lost:"+verdict.criterion); err != nil {
			return ApplyResult{}, err
		}
		return ApplyResult{Outcome: OutcomeConflictLost, ResolvedUIDs: resolved}, nil
	}

	// Incoming beats every candidate: supersede the first, retire the rest.
	primary := candidates[0]
	crit := r.resolve(ev, &primary).criterion
	successor := r.buildRecord(ev, model.StatusNew)
	successor.ExternalJobID = primary.ExternalJobID
	claimed, err := r.store.Supersede(ctx, primary.ID, primary.Status, successor, "conflict_resolved:"+crit)
	if err != nil {
		return ApplyResult{}, err
	}
	if !claimed {
		log.Printf("Reservation %s already updated, skipping conflict takeover.", primary.ID)
		return ApplyResult{Outcome: OutcomeSkipped, ResolvedUIDs: resolved}, nil
	}
	for i := 1; i < len(candidates); i++ {
		c := candidates[i]
		ok, err := r.store.ConditionalTransition(ctx, c.ID, c.Status, model.StatusOld, "conflict_resolved:"+crit, &successor.ID)
		if err != nil {
			return ApplyResult{}, err
		}
		if !ok {
			log.Printf("Reservation %s already updated, skipping conflict retire.", c.ID)
		}
	}
	r.dispatch(successor)
	return ApplyResult{Outcome: OutcomeConflictWon, Record: successor, ResolvedUIDs: resolved}, nil
}

type verdict struct {
	incomingWins bool
	criterion    string
}

// resolve compares an incoming observation against one existing record:
// data completeness first, then observation recency, then configured source
// authority. Equal on all three keeps the existing record.
func (r *Reconciler) resolve(ev normalize.BookingEvent, existing *model.Reservation) verdict {
	in := completeness(ev.GuestLabel, ev.Placeholder)
	ex := completeness(existing.GuestLabel, existing.PlaceholderUID)
	if in != ex {
		return verdict{in > ex, critCompleteness}
	}
	if !ev.ObservedAt.Equal(existing.UpdatedAt) {
		return verdict{ev.ObservedAt.After(existing.UpdatedAt), critRecency}
	}
	inRank, exRank := r.rankOf(ev.SourceID), r.rankOf(existing.Source)
	if inRank != exRank {
		return verdict{inRank < exRank, critAuthority}
	}
	return verdict{false, critEqualRank}
}

func completeness(guestLabel string, placeholder bool) int {
	score := 0
	if guestLabel != "" {
		score++
	}
	if !placeholder {
		score++
	}
	return score
}

func (r *Reconciler) rankOf(source string) int {
	if rank, ok := r.rank[source]; ok {
		return rank
	}
	return len(r.rank)
}

func (r *Reconciler) buildRecord(ev normalize.BookingEvent, status model.Status) *model.Reservation {
	rec := &model.Reservation{
		CompositeUID:   ev.CompositeUID,
		PropertyID:     ev.PropertyID,
		CheckIn:        ev.CheckIn,
		CheckOut:       ev.CheckOut,
		EntryType:      ev.EntryType,
		GuestLabel:     ev.GuestLabel,
		Status:         status,
		Source:         ev.SourceID,
		ConflictKey:    model.ConflictKeyFor(ev.PropertyID, ev.CheckIn, ev.CheckOut, ev.EntryType),
		RawUID:         ev.RawUID,
		PlaceholderUID: ev.Placeholder,
		CreatedAt:      ev.ObservedAt.UTC(),
		UpdatedAt:      ev.ObservedAt.UTC(),
	}
	if ev.EntryType == model.EntryReservation {
		at := r.serviceAt(ev.CheckOut)
		rec.ServiceAt = &at
	}
	return rec
}

// serviceAt is the intended turnover start: the checkout date at the default
// service time of day, in the reference timezone.
func (r *Reconciler) serviceAt(checkOut time.Time) time.Time {
	y, m, d := checkOut.Date()
	return time.Date(y, m, d, r.serviceHour, r.serviceMin, 0, 0, r.loc)
}

func (r *Reconciler) dispatch(rec *model.Reservation) {
	if r.commands == nil {
		return
	}
	cmd := model.AppointmentCommand{
		ReservationID: rec.ID,
		CompositeUID:  rec.CompositeUID,
		PropertyID:    rec.PropertyID,
		ExternalJobID: rec.ExternalJobID,
		ServiceAt:     rec.ServiceAt,
	}
	switch {
	case rec.EntryType == model.EntryReservation && rec.ExternalJobID != "":
		cmd.Op = model.CommandUpdate
	case rec.EntryType == model.EntryReservation:
		cmd.Op = model.CommandCreate
	case rec.ExternalJobID != "":
		// A reservation that turned into a block keeps the job link only so
		// the appointment can be cancelled.
		cmd.Op = model.CommandCancel
	default:
		return
	}
	r.commands.Dispatch(cmd)
}

func changeReason(cur *model.Reservation, ev normalize.BookingEvent) string {
	datesChanged := !cur.CheckIn.Equal(ev.CheckIn) || !cur.CheckOut.Equal(ev.CheckOut)
	typeChanged := cur.EntryType != ev.EntryType
	switch {
	case datesChanged && typeChanged:
		return "dates_and_type_changed"
	case typeChanged:
		return "type_changed"
	default:
		return "dates_changed"
	}
}

func dropUID(recs []model.Reservation, uid string) []model.Reservation {
	out := recs[:0]
	for _, rec := range recs {
		if rec.CompositeUID != uid {
			out = append(out, rec)
		}
	}
	return out
}
