package models

import "time"

// PushToken maps a push-messaging token to the device (and user) it currently
// belongs to. A token string exists in exactly one row; when the token shows up
// on a different device the row is reassigned rather than duplicated, so the
// unique index on token doubles as the "one active row per token" guarantee.
type PushToken struct {
	BaseModel

	DeviceID string `gorm:"type:uuid;not null;index" json:"device_id"`
	UserID   string `gorm:"type:uuid;not null;index" json:"user_id"`
	Token    string `gorm:"type:varchar(512);not null;uniqueIndex" json:"token"`

	Active          bool      `gorm:"not null;default:true;index" json:"active"`
	LastValidatedAt time.Time `json:"last_validated_at"`
}
