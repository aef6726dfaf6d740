package normalize

import (
	"strings"
	"time"

	"rental-sync-backend/internal/identity"
	"rental-sync-backend/internal/model"
)

// RawObservation is the adapter-neutral shape every source must yield.
// Column mapping and VEVENT parsing happen in the adapters; by the time an
// observation reaches the normalizer only presence and ordering of fields
// matter.
type RawObservation struct {
	RawUID     string     `json:"rawUid"`
	PropertyID string     `json:"propertyId"`
	Start      *time.Time `json:"start"`
	End        *time.Time `json:"end"`
	Label      string     `json:"label"`
}

// BookingEvent is the canonical, ephemeral form consumed by reconciliation.
type BookingEvent struct {
	SourceID      string
	RawUID        string
	CompositeUID  string
	Placeholder   bool
	PropertyID    string // normalized
	PropertyLabel string // as reported, for the property registry
	CheckIn       time.Time
	CheckOut      time.Time
	EntryType     model.EntryType
	GuestLabel    string
	ObservedAt    time.Time
}

// Disposition tags the outcome of normalizing one observation.
type Disposition string

const (
	DispositionAccepted Disposition = "accepted"
	DispositionRejected Disposition = "rejected"
	DispositionSkipped  Disposition = "skipped"
)

// Reason codes for rejected and skipped observations. Expected bad data is
// reported through these, never through errors.
type Reason string

const (
	ReasonNone          Reason = ""
	ReasonMissingDates  Reason = "missing_dates"
	ReasonInvalidRange  Reason = "invalid_range"
	ReasonOutsideWindow Reason = "outside_window"
)

// Result is the tagged outcome of Normalize. Event is only meaningful when
// Disposition is DispositionAccepted.
type Result struct {
	Event       BookingEvent
	Disposition Disposition
	Reason      Reason
}

// Normalizer converts raw observations into booking events. It is a pure
// transform: identity placeholders are flagged on the event and logged by the
// caller, and out-of-window observations are skipped silently rather than
// treated as errors.
type Normalizer struct {
	gen          *identity.Generator
	loc          *time.Location
	pastMonths   int
	futureMonths int
}

func New(gen *identity.Generator, loc *time.Location, pastMonths, futureMonths int) *Normalizer {
	if loc == nil {
		loc = time.UTC
	}
	return &Normalizer{
		gen:          gen,
		loc:          loc,
		pastMonths:   pastMonths,
		futureMonths: futureMonths,
	}
}

// Normalize validates and converts one observation. observedAt anchors both
// the event timestamp and the retention window, so a whole pass shares one
// reference instant.
func (n *Normalizer) Normalize(raw RawObservation, sourceID string, observedAt time.Time) Result {
	if raw.Start == nil || raw.End == nil {
		return Result{Disposition: DispositionRejected, Reason: ReasonMissingDates}
	}

	checkIn := DateOnly(*raw.Start, n.loc)
	checkOut := DateOnly(*raw.End, n.loc)
	if !checkOut.After(checkIn) {
		return Result{Disposition: DispositionRejected, Reason: ReasonInvalidRange}
	}

	// Stays that ended before the window opens or start after it closes are
	// out of scope for reconciliation, not data errors.
	today := DateOnly(observedAt, n.loc)
	if checkOut.Before(today.AddDate(0, -n.pastMonths, 0)) ||
		checkIn.After(today.AddDate(0, n.futureMonths, 0)) {
		return Result{Disposition: DispositionSkipped, Reason: ReasonOutsideWindow}
	}

	event := BookingEvent{
		SourceID:      sourceID,
		RawUID:        raw.RawUID,
		PropertyID:    identity.NormalizeProperty(raw.PropertyID),
		PropertyLabel: raw.PropertyID,
		CheckIn:       checkIn,
		CheckOut:      checkOut,
		GuestLabel:    guestLabel(raw.Label),
		ObservedAt:    observedAt.UTC(),
	}

	if event.GuestLabel == "" {
		event.EntryType = model.EntryBlock
	} else {
		event.EntryType = model.EntryReservation
	}

	if rawUID := strings.TrimSpace(raw.RawUID); rawUID == "" {
		event.CompositeUID = n.gen.Placeholder(sourceID, raw.PropertyID, observedAt)
		event.Placeholder = true
	} else {
		event.CompositeUID = n.gen.Generate(rawUID, raw.PropertyID)
	}

	return Result{Event: event, Disposition: DispositionAccepted}
}

// DateOnly truncates an instant to its calendar date in loc, stored as UTC
// midnight. All check-in/check-out comparisons run on these values, so one
// reference timezone decides which day an instant belongs to.
func DateOnly(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func guestLabel(label string) string {
	return strings.TrimSpace(label)
}
