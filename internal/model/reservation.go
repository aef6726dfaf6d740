package model

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a reservation record.
type Status string

const (
	StatusNew      Status = "new"
	StatusModified Status = "modified"
	StatusRemoved  Status = "removed"
	StatusOld      Status = "old"
)

// ActiveStatuses are the states in which a record is authoritative for its
// composite UID. Removed records stay active: they remain the current truth
// ("this booking was withdrawn") until superseded.
var ActiveStatuses = []Status{StatusNew, StatusModified, StatusRemoved}

// Active reports whether the status counts toward the single-active invariant.
func (s Status) Active() bool {
	return s == StatusNew || s == StatusModified || s == StatusRemoved
}

// EntryType classifies a calendar entry.
type EntryType string

const (
	EntryReservation EntryType = "reservation"
	EntryBlock       EntryType = "block"
)

// SyncStatus is the computed relationship between a reservation's intended
// service time and the externally scheduled appointment.
type SyncStatus string

const (
	SyncSynced     SyncStatus = "synced"
	SyncWrongTime  SyncStatus = "wrong_time"
	SyncWrongDate  SyncStatus = "wrong_date"
	SyncNotCreated SyncStatus = "not_created"
)

// Reservation is one observation-derived record of a booking. Records are
// never deleted; superseded ones are kept with status "old" and linked via
// SupersedesID/SupersededByID so the full chain stays walkable by id.
type Reservation struct {
	ID           string    `gorm:"primaryKey;size:36"`
	CompositeUID string    `gorm:"size:160;not null;index"`
	PropertyID   string    `gorm:"size:64;not null;index"`
	CheckIn      time.Time `gorm:"not null"`
	CheckOut     time.Time `gorm:"not null"`
	EntryType    EntryType `gorm:"size:16;not null"`
	GuestLabel   string    `gorm:"size:256"`
	Status       Status    `gorm:"size:16;not null;index"`
	Source       string    `gorm:"size:64;not null;index"`

	// ConflictKey is the property-date identity used for cross-source
	// duplicate detection when composite UIDs differ.
	ConflictKey string `gorm:"size:160;not null;index"`

	// RawUID preserves the identifier as reported by the source;
	// PlaceholderUID marks identities synthesized for malformed input.
	RawUID         string `gorm:"size:128"`
	PlaceholderUID bool

	SupersedesID   *string `gorm:"size:36;index"`
	SupersededByID *string `gorm:"size:36;index"`

	// External turnover appointment, when one has been linked.
	ExternalJobID string     `gorm:"size:64;index"`
	ServiceAt     *time.Time // intended service start for the turnover job

	SyncStatus    SyncStatus `gorm:"size:16"`
	SyncDetails   string     `gorm:"type:text"`
	SyncCheckedAt *time.Time

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null;index"`
}

// ConflictKeyFor derives the property-date key for cross-source matching.
// Check-in/check-out carry date-only semantics, so the day is enough.
func ConflictKeyFor(propertyID string, checkIn, checkOut time.Time, entry EntryType) string {
	return fmt.Sprintf("%s|%s|%s|%s",
		propertyID,
		checkIn.Format("2006-01-02"),
		checkOut.Format("2006-01-02"),
		entry,
	)
}

// SameStay reports whether the record's material fields match the given
// ones. Identical re-observations refresh the record instead of superseding.
func (r *Reservation) SameStay(checkIn, checkOut time.Time, entry EntryType) bool {
	return r.CheckIn.Equal(checkIn) && r.CheckOut.Equal(checkOut) && r.EntryType == entry
}
