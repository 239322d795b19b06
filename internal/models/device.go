package models

import (
	"strings"
	"time"
)

// Platform identifies the client platform a device runs on.
type Platform string

const (
	PlatformAndroid Platform = "ANDROID"
	PlatformIOS     Platform = "IOS"
	PlatformWeb     Platform = "WEB"
)

// ParsePlatform normalises a raw platform string, reporting whether it is known.
func ParsePlatform(raw string) (Platform, bool) {
	switch Platform(strings.ToUpper(strings.TrimSpace(raw))) {
	case PlatformAndroid:
		return PlatformAndroid, true
	case PlatformIOS:
		return PlatformIOS, true
	case PlatformWeb:
		return PlatformWeb, true
	default:
		return "", false
	}
}

// Device represents a registered client install for a user.
//
// A (user_id, device_identifier) pair is unique among live rows, backed by a
// partial unique index where the dialect has one (see database.AutoMigrate).
// Soft-deleted rows are retained for audit and excluded by explicit
// deleted_at IS NULL filters rather than gorm's implicit soft-delete scoping.
type Device struct {
	BaseModel

	UserID           string   `gorm:"type:uuid;not null;index:idx_devices_user_identifier" json:"user_id"`
	DeviceIdentifier string   `gorm:"type:varchar(191);not null;index:idx_devices_user_identifier" json:"device_identifier"`
	Platform         Platform `gorm:"type:varchar(16);not null" json:"platform"`
	AppVersion       string   `gorm:"type:varchar(32)" json:"app_version"`

	DeletedAt *time.Time `gorm:"index" json:"deleted_at,omitempty"`
}

// Live reports whether the device has not been soft-deleted.
func (d *Device) Live() bool {
	return d.DeletedAt == nil
}
