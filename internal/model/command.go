package model

import "time"

// CommandOp is the kind of appointment change requested downstream.
type CommandOp string

const (
	CommandCreate CommandOp = "create"
	CommandUpdate CommandOp = "update"
	CommandCancel CommandOp = "cancel"
)

// AppointmentCommand asks the scheduling platform collaborator to align a
// turnover appointment with a reservation. Reconciliation emits these; it
// never talks to the platform itself.
type AppointmentCommand struct {
	Op            CommandOp
	ReservationID string
	CompositeUID  string
	PropertyID    string
	ExternalJobID string
	ServiceAt     *time.Time
}
