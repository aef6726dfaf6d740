package schedsync

import (
	"context"
	"log"
	"time"

	"rental-sync-backend/internal/model"
)

// CommandSink is the delivery target for appointment commands. The default
// sink only logs; a real scheduling-platform writer would implement this.
type CommandSink interface {
	Deliver(ctx context.Context, cmd model.AppointmentCommand) error
}

// LogSink writes each command to the process log.
type LogSink struct{}

func (LogSink) Deliver(_ context.Context, cmd model.AppointmentCommand) error {
	serviceAt := "-"
	if cmd.ServiceAt != nil {
		serviceAt = cmd.ServiceAt.Format(time.RFC3339)
	}
	log.Printf("appointment command %s: reservation=%s property=%s job=%q service_at=%s",
		cmd.Op, cmd.ReservationID, cmd.PropertyID, cmd.ExternalJobID, serviceAt)
	return nil
}
