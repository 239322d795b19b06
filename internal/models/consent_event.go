package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ConsentEvent is an append-only audit record of an explicit permission change.
// Rows are never updated or deleted by request-path code; retention is enforced
// by the maintenance cleaner only.
type ConsentEvent struct {
	ID             string         `gorm:"primaryKey;type:uuid" json:"id"`
	UserID         string         `gorm:"type:uuid;not null;index" json:"user_id"`
	PermissionType PermissionType `gorm:"type:varchar(32);not null" json:"permission_type"`

	// PreviousEnabled is the value the setting held before this change.
	PreviousEnabled *bool `json:"previous_enabled"`
	NewEnabled      bool  `gorm:"not null" json:"new_enabled"`

	Metadata  datatypes.JSON `json:"metadata,omitempty"`
	CreatedAt time.Time      `gorm:"index" json:"created_at"`
}

// BeforeCreate ensures a UUID is present before persisting.
func (e *ConsentEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}
