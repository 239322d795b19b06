package database

import (
	"gorm.io/gorm"

	"github.com/aiva-app/notify/internal/models"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Device{},
		&models.PushToken{},
		&models.NotificationSetting{},
		&models.ConsentEvent{},
	); err != nil {
		return err
	}

	return createPartialIndexes(db)
}

// createPartialIndexes adds indexes gorm's tag syntax cannot express.
//
// A (user_id, device_identifier) pair must be unique among live devices while
// soft-deleted rows keep their historical values, which needs a partial unique
// index. MySQL has no partial indexes; there the registry relies on the
// locking read in DeviceService.Register to serialise concurrent registers.
func createPartialIndexes(db *gorm.DB) error {
	switch db.Dialector.Name() {
	case "sqlite", "postgres":
		return db.Exec(
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_devices_live_user_identifier
			 ON devices (user_id, device_identifier) WHERE deleted_at IS NULL`,
		).Error
	default:
		return nil
	}
}
