package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/aiva-app/notify/internal/models"
	apperrors "github.com/aiva-app/notify/pkg/errors"
	"github.com/aiva-app/notify/pkg/metrics"
)

// DeviceDTO represents the API-friendly device payload.
type DeviceDTO struct {
	ID               string          `json:"id"`
	UserID           string          `json:"user_id"`
	DeviceIdentifier string          `json:"device_identifier"`
	Platform         models.Platform `json:"platform"`
	AppVersion       string          `json:"app_version"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// RegisterDeviceInput defines attributes required to register a device.
type RegisterDeviceInput struct {
	UserID           string
	DeviceIdentifier string
	Platform         string
	AppVersion       string
}

// DeviceService manages the registry of client devices.
type DeviceService struct {
	db  *gorm.DB
	now func() time.Time
}

// DeviceServiceOption customises a DeviceService.
type DeviceServiceOption func(*DeviceService)

// WithDeviceClock overrides the clock, primarily for tests.
func WithDeviceClock(now func() time.Time) DeviceServiceOption {
	return func(s *DeviceService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewDeviceService constructs a DeviceService.
func NewDeviceService(db *gorm.DB, opts ...DeviceServiceOption) (*DeviceService, error) {
	if db == nil {
		return nil, errors.New("device service: db is required")
	}

	svc := &DeviceService{db: db, now: time.Now}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Register performs an idempotent upsert keyed on the live (user, identifier)
// pair: an existing live device gets its platform and app version refreshed,
// otherwise a new row is created. Soft-deleted rows are never resurrected.
//
// Two registers racing on the same pair can both miss the lookup and insert;
// the partial unique index rejects the loser, which reruns the sequence and
// lands on the winner's row.
func (s *DeviceService) Register(ctx context.Context, input RegisterDeviceInput) (*DeviceDTO, error) {
	ctx = ensureContext(ctx)

	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return nil, apperrors.NewValidation("user id is required")
	}

	identifier := strings.TrimSpace(input.DeviceIdentifier)
	if identifier == "" {
		metrics.DeviceRegistrations.WithLabelValues("error").Inc()
		return nil, apperrors.NewValidation("device identifier is required")
	}

	platform, ok := models.ParsePlatform(input.Platform)
	if !ok {
		metrics.DeviceRegistrations.WithLabelValues("error").Inc()
		return nil, apperrors.NewValidation(fmt.Sprintf("unknown platform %q", input.Platform))
	}

	appVersion := strings.TrimSpace(input.AppVersion)

	var (
		device  models.Device
		outcome string
		lastErr error
	)

	for attempt := 0; attempt < upsertAttempts; attempt++ {
		outcome = "updated"
		lastErr = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			err := lockForUpdate(tx).
				Where("user_id = ? AND device_identifier = ? AND deleted_at IS NULL", userID, identifier).
				First(&device).Error
			switch {
			case err == nil:
				return tx.Model(&device).Updates(map[string]any{
					"platform":    platform,
					"app_version": appVersion,
				}).Error
			case errors.Is(err, gorm.ErrRecordNotFound):
				outcome = "created"
				device = models.Device{
					UserID:           userID,
					DeviceIdentifier: identifier,
					Platform:         platform,
					AppVersion:       appVersion,
				}
				return tx.Create(&device).Error
			default:
				return err
			}
		})

		if lastErr == nil {
			device.Platform = platform
			device.AppVersion = appVersion
			metrics.DeviceRegistrations.WithLabelValues(outcome).Inc()

			dto := mapDevice(device)
			return &dto, nil
		}

		// A concurrent register created the live row between our lookup and
		// the insert; the next pass finds it and refreshes it instead.
		if errors.Is(lastErr, gorm.ErrDuplicatedKey) {
			device = models.Device{}
			continue
		}

		metrics.DeviceRegistrations.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("device service: register device: %w", lastErr)
	}

	metrics.DeviceRegistrations.WithLabelValues("conflict").Inc()
	return nil, apperrors.ErrConflict.WithInternal(lastErr)
}

// SoftDelete marks the device logically removed and deactivates its push
// tokens in the same transaction, so a deleted device can never keep an
// active token. Deleting an absent or already-deleted device is a no-op.
func (s *DeviceService) SoftDelete(ctx context.Context, userID, deviceIdentifier string) error {
	ctx = ensureContext(ctx)

	userID = strings.TrimSpace(userID)
	deviceIdentifier = strings.TrimSpace(deviceIdentifier)
	if userID == "" || deviceIdentifier == "" {
		return apperrors.NewValidation("user id and device identifier are required")
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var device models.Device
		err := lockForUpdate(tx).
			Where("user_id = ? AND device_identifier = ? AND deleted_at IS NULL", userID, deviceIdentifier).
			First(&device).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		now := s.now().UTC()
		if err := tx.Model(&device).Update("deleted_at", now).Error; err != nil {
			return err
		}

		return tx.Model(&models.PushToken{}).
			Where("device_id = ? AND active = ?", device.ID, true).
			Update("active", false).Error
	})
	if err != nil {
		return fmt.Errorf("device service: soft delete device: %w", err)
	}

	return nil
}

// ListForUser returns the user's live devices ordered by registration time.
func (s *DeviceService) ListForUser(ctx context.Context, userID string) ([]DeviceDTO, error) {
	ctx = ensureContext(ctx)

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, apperrors.NewValidation("user id is required")
	}

	var rows []models.Device
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND deleted_at IS NULL", userID).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("device service: list devices: %w", err)
	}

	items := make([]DeviceDTO, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapDevice(row))
	}
	return items, nil
}

// FindLive resolves a live device by its (user, identifier) pair.
func (s *DeviceService) FindLive(ctx context.Context, userID, deviceIdentifier string) (*DeviceDTO, error) {
	ctx = ensureContext(ctx)

	var device models.Device
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND device_identifier = ? AND deleted_at IS NULL", strings.TrimSpace(userID), strings.TrimSpace(deviceIdentifier)).
		First(&device).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("device service: find device: %w", err)
	}

	dto := mapDevice(device)
	return &dto, nil
}

func mapDevice(row models.Device) DeviceDTO {
	return DeviceDTO{
		ID:               row.ID,
		UserID:           row.UserID,
		DeviceIdentifier: row.DeviceIdentifier,
		Platform:         row.Platform,
		AppVersion:       row.AppVersion,
		CreatedAt:        row.CreatedAt,
		UpdatedAt:        row.UpdatedAt,
	}
}
