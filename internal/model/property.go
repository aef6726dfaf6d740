package model

import "time"

// Property is the registry of rental units seen across sources. The ID is the
// normalized form used as the composite-UID prefix, so every feed reporting
// the same unit lands on the same row.
type Property struct {
	ID          string    `gorm:"primaryKey;size:64"`
	DisplayName string    `gorm:"size:256;not null"`
	LastSource  string    `gorm:"size:64"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}
