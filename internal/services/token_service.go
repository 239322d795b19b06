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

const (
	upsertAttempts   = 3
	resolveBatchSize = 500
)

// PushTokenDTO represents the API-friendly push token payload.
type PushTokenDTO struct {
	ID              string    `json:"id"`
	DeviceID        string    `json:"device_id"`
	UserID          string    `json:"user_id"`
	Token           string    `json:"token"`
	Active          bool      `json:"active"`
	LastValidatedAt time.Time `json:"last_validated_at"`
	CreatedAt       time.Time `json:"created_at"`
}

// TokenService manages push-messaging tokens and their device bindings.
type TokenService struct {
	db  *gorm.DB
	now func() time.Time
}

// TokenServiceOption customises a TokenService.
type TokenServiceOption func(*TokenService)

// WithTokenClock overrides the clock, primarily for tests.
func WithTokenClock(now func() time.Time) TokenServiceOption {
	return func(s *TokenService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewTokenService constructs a TokenService.
func NewTokenService(db *gorm.DB, opts ...TokenServiceOption) (*TokenService, error) {
	if db == nil {
		return nil, errors.New("token service: db is required")
	}

	svc := &TokenService{db: db, now: time.Now}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Upsert registers tokenString as the single active token for deviceID.
//
// A token row is unique per token string; when a token reappears on a
// different device (app reinstall, restore from backup) the existing row is
// reassigned to the new device instead of duplicated. Any other token that was
// active on the target device is deactivated in the same transaction. The
// whole sequence is retried a bounded number of times when two upserts race on
// the token unique index, then surfaced as a conflict.
func (s *TokenService) Upsert(ctx context.Context, deviceID, userID, tokenString string) (*PushTokenDTO, error) {
	ctx = ensureContext(ctx)

	deviceID = strings.TrimSpace(deviceID)
	userID = strings.TrimSpace(userID)
	tokenString = strings.TrimSpace(tokenString)
	if deviceID == "" || userID == "" {
		return nil, apperrors.NewValidation("device id and user id are required")
	}
	if tokenString == "" {
		metrics.TokenUpserts.WithLabelValues("error").Inc()
		return nil, apperrors.NewValidation("token is required")
	}

	var (
		result  models.PushToken
		outcome string
		lastErr error
	)

	for attempt := 0; attempt < upsertAttempts; attempt++ {
		outcome = ""
		lastErr = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			// Lock the device row first so concurrent upserts for the same
			// device serialise before touching token rows.
			var device models.Device
			err := lockForUpdate(tx).Where("id = ?", deviceID).First(&device).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrNotFound.WithMessage("device not found")
			}
			if err != nil {
				return err
			}
			if !device.Live() {
				return apperrors.NewValidation("device has been deleted")
			}
			if device.UserID != userID {
				return apperrors.ErrNotFound.WithMessage("device not found")
			}

			now := s.now().UTC()

			var existing models.PushToken
			err = lockForUpdate(tx).Where("token = ?", tokenString).First(&existing).Error
			switch {
			case err == nil:
				switch {
				case existing.DeviceID != deviceID:
					outcome = "moved"
				case existing.Active:
					outcome = "refreshed"
				default:
					outcome = "reactivated"
				}

				// Deactivate whatever else is active on the target device
				// before this row claims it.
				if err := tx.Model(&models.PushToken{}).
					Where("device_id = ? AND active = ? AND id <> ?", deviceID, true, existing.ID).
					Update("active", false).Error; err != nil {
					return err
				}

				if err := tx.Model(&existing).Updates(map[string]any{
					"device_id":         deviceID,
					"user_id":           userID,
					"active":            true,
					"last_validated_at": now,
				}).Error; err != nil {
					return err
				}

				existing.DeviceID = deviceID
				existing.UserID = userID
				existing.Active = true
				existing.LastValidatedAt = now
				result = existing
				return nil

			case errors.Is(err, gorm.ErrRecordNotFound):
				outcome = "created"

				if err := tx.Model(&models.PushToken{}).
					Where("device_id = ? AND active = ?", deviceID, true).
					Update("active", false).Error; err != nil {
					return err
				}

				result = models.PushToken{
					DeviceID:        deviceID,
					UserID:          userID,
					Token:           tokenString,
					Active:          true,
					LastValidatedAt: now,
				}
				return tx.Create(&result).Error

			default:
				return err
			}
		})

		if lastErr == nil {
			metrics.TokenUpserts.WithLabelValues(outcome).Inc()
			dto := mapPushToken(result)
			return &dto, nil
		}

		// Another upsert claimed the token string between our lookup and the
		// insert; rerun the sequence against the fresh state.
		if errors.Is(lastErr, gorm.ErrDuplicatedKey) {
			continue
		}

		var appErr *apperrors.AppError
		if errors.As(lastErr, &appErr) {
			metrics.TokenUpserts.WithLabelValues("error").Inc()
			return nil, appErr
		}

		metrics.TokenUpserts.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("token service: upsert token: %w", lastErr)
	}

	metrics.TokenUpserts.WithLabelValues("conflict").Inc()
	return nil, apperrors.ErrConflict.WithInternal(lastErr)
}

// GetActive returns the device's active token, or nil when it has none.
func (s *TokenService) GetActive(ctx context.Context, deviceID string) (*PushTokenDTO, error) {
	ctx = ensureContext(ctx)

	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return nil, apperrors.NewValidation("device id is required")
	}

	var row models.PushToken
	err := s.db.WithContext(ctx).
		Joins("JOIN devices ON devices.id = push_tokens.device_id").
		Where("push_tokens.device_id = ? AND push_tokens.active = ? AND devices.deleted_at IS NULL", deviceID, true).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("token service: get active token: %w", err)
	}

	dto := mapPushToken(row)
	return &dto, nil
}

// ResolveActiveForUsers returns every active token string owned by the given
// users through a live device. Lookups are chunked so arbitrarily large user
// sets never produce an unbounded IN clause.
func (s *TokenService) ResolveActiveForUsers(ctx context.Context, userIDs []string) ([]string, error) {
	ctx = ensureContext(ctx)

	ids := normaliseIDs(userIDs)
	if len(ids) == 0 {
		return []string{}, nil
	}

	tokens := make([]string, 0, len(ids))
	for _, chunk := range chunkIDs(ids, resolveBatchSize) {
		var batch []string
		if err := s.db.WithContext(ctx).
			Model(&models.PushToken{}).
			Joins("JOIN devices ON devices.id = push_tokens.device_id").
			Where("push_tokens.user_id IN ? AND push_tokens.active = ? AND devices.deleted_at IS NULL", chunk, true).
			Pluck("push_tokens.token", &batch).Error; err != nil {
			return nil, fmt.Errorf("token service: resolve active tokens: %w", err)
		}
		tokens = append(tokens, batch...)
	}

	return tokens, nil
}

// DeactivateStale flips tokens inactive when they have not been validated
// since the cutoff. Used by the maintenance cleaner, never the request path.
func (s *TokenService) DeactivateStale(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx = ensureContext(ctx)

	res := s.db.WithContext(ctx).
		Model(&models.PushToken{}).
		Where("active = ? AND last_validated_at < ?", true, cutoff).
		Update("active", false)
	if res.Error != nil {
		return 0, fmt.Errorf("token service: deactivate stale tokens: %w", res.Error)
	}

	return res.RowsAffected, nil
}

func mapPushToken(row models.PushToken) PushTokenDTO {
	return PushTokenDTO{
		ID:              row.ID,
		DeviceID:        row.DeviceID,
		UserID:          row.UserID,
		Token:           row.Token,
		Active:          row.Active,
		LastValidatedAt: row.LastValidatedAt,
		CreatedAt:       row.CreatedAt,
	}
}
