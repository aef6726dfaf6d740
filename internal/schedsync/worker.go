package schedsync

import (
	"context"
	"log"
	"time"

	"rental-sync-backend/config"
	"rental-sync-backend/internal/model"
	"rental-sync-backend/internal/store"
)

// Trigger asks the pool to re-check one reservation's schedule sync. Webhook
// deliveries carry a JobID (and sometimes a ReservationID to bind); on-demand
// requests carry a ReservationID. A ScheduledStart from the payload is used
// as-is, saving a platform round trip.
type Trigger struct {
	ReservationID  string
	JobID          string
	ScheduledStart *time.Time
	Origin         string
}

// Worker owns the sync-trigger and appointment-command queues and the pool
// of goroutines draining them.
type Worker struct {
	cfg      *config.Config
	store    store.Store
	provider ScheduleProvider
	sink     CommandSink
	loc      *time.Location
	size     int
	triggers chan Trigger
	commands chan model.AppointmentCommand
}

// NewWorker creates the pool. A nil sink falls back to the logging sink; a
// nil provider disables platform lookups (payload-carried schedules still
// evaluate).
func NewWorker(cfg *config.Config, st store.Store, provider ScheduleProvider, sink CommandSink) *Worker {
	loc, err := time.LoadLocation(cfg.Ingest.Timezone)
	if err != nil {
		log.Printf("Warning: invalid timezone %q: %v. Sync checks will compare in UTC.", cfg.Ingest.Timezone, err)
		loc = time.UTC
	}
	if sink == nil {
		sink = LogSink{}
	}
	size := cfg.WorkerPool.Size
	if size < 1 {
		size = 1
	}
	return &Worker{
		cfg:      cfg,
		store:    st,
		provider: provider,
		sink:     sink,
		loc:      loc,
		size:     size,
		triggers: make(chan Trigger, size*4),
		commands: make(chan model.AppointmentCommand, size*4),
	}
}

// Start launches the worker goroutines.
func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.size; i++ {
		go w.worker(ctx, i)
	}
}

func (w *Worker) worker(ctx context.Context, id int) {
	log.Printf("Sync worker %d started", id)
	for {
		select {
		case trg := <-w.triggers:
			w.processTrigger(ctx, trg)
		case cmd := <-w.commands:
			if err := w.sink.Deliver(ctx, cmd); err != nil {
				log.Printf("Error delivering appointment command %s for reservation %s: %v", cmd.Op, cmd.ReservationID, err)
			}
		case <-ctx.Done():
			log.Printf("Sync worker %d shutting down", id)
			return
		}
	}
}

// Enqueue hands a trigger to the pool without blocking the caller. Webhook
// handlers must acknowledge regardless, so an overflowing queue drops the
// trigger with a warning; the next pass or a manual request re-checks.
func (w *Worker) Enqueue(trg Trigger) {
	select {
	case w.triggers <- trg:
	default:
		log.Printf("Warning: sync trigger queue full; dropping trigger (origin=%s, job=%q, reservation=%q)",
			trg.Origin, trg.JobID, trg.ReservationID)
	}
}

// Dispatch queues an appointment command for asynchronous delivery. It is
// the command sink handed to reconciliation.
func (w *Worker) Dispatch(cmd model.AppointmentCommand) {
	select {
	case w.commands <- cmd:
	default:
		log.Printf("Warning: appointment command queue full; dropping %s for reservation %s", cmd.Op, cmd.ReservationID)
	}
}

// processTrigger resolves the reservation, binds a newly learned job id,
// obtains the schedule, and persists the verdict.
func (w *Worker) processTrigger(ctx context.Context, trg Trigger) {
	res, err := w.resolve(ctx, trg)
	if err != nil {
		log.Printf("Error resolving sync trigger (origin=%s): %v", trg.Origin, err)
		return
	}
	if res == nil {
		log.Printf("Sync trigger matched no reservation (origin=%s, job=%q, reservation=%q)",
			trg.Origin, trg.JobID, trg.ReservationID)
		return
	}

	if trg.JobID != "" && trg.JobID != res.ExternalJobID {
		if err := w.store.SetExternalJob(ctx, res.ID, trg.JobID); err != nil {
			log.Printf("Error linking job %s to reservation %s: %v", trg.JobID, res.ID, err)
			return
		}
		log.Printf("Linked job %s to reservation %s", trg.JobID, res.ID)
		res.ExternalJobID = trg.JobID
	}

	var sched *Schedule
	switch {
	case trg.ScheduledStart != nil:
		sched = &Schedule{JobID: res.ExternalJobID, ScheduledStart: *trg.ScheduledStart}
	case res.ExternalJobID != "" && w.provider == nil:
		// A linked job with no platform client to ask: without an answer
		// there is no verdict to record.
		log.Printf("No scheduling platform configured; skipping check for reservation %s", res.ID)
		return
	case res.ExternalJobID != "":
		sched, err = w.provider.GetSchedule(ctx, res.ExternalJobID)
		if err != nil {
			// Keep the previous verdict rather than recording one based on
			// an answer we never got.
			log.Printf("Error fetching schedule for job %s: %v", res.ExternalJobID, err)
			return
		}
	}

	verdict := Evaluate(res, sched, w.loc)
	if err := w.store.SetSyncVerdict(ctx, res.ID, verdict.Status, verdict.Details, verdict.EvaluatedAt); err != nil {
		log.Printf("Error saving sync verdict for reservation %s: %v", res.ID, err)
		return
	}
	log.Printf("Reservation %s schedule check: %s (origin=%s)", res.ID, verdict.Status, trg.Origin)
}

func (w *Worker) resolve(ctx context.Context, trg Trigger) (*model.Reservation, error) {
	if trg.ReservationID != "" {
		return w.store.ByID(ctx, trg.ReservationID)
	}
	if trg.JobID != "" {
		return w.store.ByExternalJob(ctx, trg.JobID)
	}
	return nil, nil
}
