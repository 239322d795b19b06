package models

import "strings"

// PermissionType enumerates the notification categories a user can opt into.
type PermissionType string

const (
	PermissionMarketing    PermissionType = "MARKETING"
	PermissionCommentReply PermissionType = "COMMENT_REPLY"
	PermissionSystem       PermissionType = "SYSTEM"
)

// KnownPermissionTypes lists every permission type in materialization order,
// mapped to its default enabled state for newly materialized settings.
func KnownPermissionTypes() map[PermissionType]bool {
	return map[PermissionType]bool{
		PermissionMarketing:    false,
		PermissionCommentReply: false,
		PermissionSystem:       true,
	}
}

// ParsePermissionType normalises a raw permission string, reporting whether it is known.
func ParsePermissionType(raw string) (PermissionType, bool) {
	candidate := PermissionType(strings.ToUpper(strings.TrimSpace(raw)))
	_, ok := KnownPermissionTypes()[candidate]
	return candidate, ok
}

// NotificationSetting holds a user's opt-in state for one permission type.
type NotificationSetting struct {
	BaseModel

	UserID         string         `gorm:"type:uuid;not null;uniqueIndex:idx_settings_user_permission" json:"user_id"`
	PermissionType PermissionType `gorm:"type:varchar(32);not null;uniqueIndex:idx_settings_user_permission" json:"permission_type"`
	Enabled        bool           `gorm:"not null;default:false" json:"enabled"`
}
