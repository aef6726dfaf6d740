package store

import (
	"log"
	"time"

	"rental-sync-backend/internal/model"
)

// Filter narrows Query results. Zero values mean "no constraint".
type Filter struct {
	PropertyID   string
	Source       string
	CompositeUID string
	Statuses     []model.Status
	ActiveOnly   bool
	CheckInFrom  *time.Time
	CheckInTo    *time.Time
	Limit        int
	Offset       int
}

const (
	defaultQueryLimit = 200
	maxQueryLimit     = 1000
)

// TransitionSink receives every committed status transition. Sinks run after
// the transaction commits and must not block for long.
type TransitionSink func(model.Transition)

// LogSink is the default sink: one log line per transition.
func LogSink(t model.Transition) {
	from := string(t.OldStatus)
	if from == "" {
		from = "(created)"
	}
	log.Printf("transition %s [%s]: %s -> %s reason=%q source=%s",
		t.CompositeUID, t.ReservationID, from, t.NewStatus, t.Reason, t.Source)
}
