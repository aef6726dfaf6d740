package model

import "time"

// TransitionLog is the append-only audit trail of status changes. One row is
// written for every transition, including first creation (old status empty).
type TransitionLog struct {
	ID            int64     `gorm:"autoIncrement;primaryKey"`
	ReservationID string    `gorm:"size:36;not null;index"`
	CompositeUID  string    `gorm:"size:160;not null;index"`
	Source        string    `gorm:"size:64"`
	OldStatus     Status    `gorm:"size:16"`
	NewStatus     Status    `gorm:"size:16;not null"`
	Reason        string    `gorm:"size:256"`
	CreatedAt     time.Time `gorm:"not null;index"`
}

// Transition is the structured event handed to audit sinks. It mirrors a
// TransitionLog row without the persistence identity.
type Transition struct {
	ReservationID string
	CompositeUID  string
	Source        string
	OldStatus     Status
	NewStatus     Status
	Reason        string
	At            time.Time
}
