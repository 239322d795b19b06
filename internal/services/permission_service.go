package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/aiva-app/notify/internal/models"
	apperrors "github.com/aiva-app/notify/pkg/errors"
)

// NotificationSettingDTO represents the API-friendly setting payload.
type NotificationSettingDTO struct {
	ID             string                `json:"id"`
	UserID         string                `json:"user_id"`
	PermissionType models.PermissionType `json:"permission_type"`
	Enabled        bool                  `json:"enabled"`
	UpdatedAt      time.Time             `json:"updated_at"`
}

// UpdateSettingInput carries an explicit user decision about one permission.
type UpdateSettingInput struct {
	UserID    string
	SettingID string
	Enabled   bool

	// Request attribution recorded on the consent event.
	IPAddress string
	UserAgent string
}

// ConsentEventDTO represents one audit record of a permission change.
type ConsentEventDTO struct {
	ID              string                `json:"id"`
	UserID          string                `json:"user_id"`
	PermissionType  models.PermissionType `json:"permission_type"`
	PreviousEnabled *bool                 `json:"previous_enabled"`
	NewEnabled      bool                  `json:"new_enabled"`
	CreatedAt       time.Time             `json:"created_at"`
}

// ListConsentEventsOptions controls pagination for consent audit queries.
type ListConsentEventsOptions struct {
	UserID   string
	Page     int
	PageSize int
}

// PermissionService is the per-user ledger of notification opt-ins. Every
// explicit mutation appends a consent event, including no-op toggles; the
// ledger is the only writer of consent events.
type PermissionService struct {
	db  *gorm.DB
	now func() time.Time
}

// PermissionServiceOption customises a PermissionService.
type PermissionServiceOption func(*PermissionService)

// WithPermissionClock overrides the clock, primarily for tests.
func WithPermissionClock(now func() time.Time) PermissionServiceOption {
	return func(s *PermissionService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewPermissionService constructs a PermissionService.
func NewPermissionService(db *gorm.DB, opts ...PermissionServiceOption) (*PermissionService, error) {
	if db == nil {
		return nil, errors.New("permission service: db is required")
	}

	svc := &PermissionService{db: db, now: time.Now}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// GetSettings returns the user's settings, lazily materialising one
// default-valued row per known permission type. Calling it repeatedly, or
// concurrently for the same user, yields the same set without duplicates: the
// unique (user, permission) index absorbs materialisation races.
func (s *PermissionService) GetSettings(ctx context.Context, userID string) ([]NotificationSettingDTO, error) {
	ctx = ensureContext(ctx)

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, apperrors.NewValidation("user id is required")
	}

	var rows []models.NotificationSetting
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("permission service: load settings: %w", err)
	}

	present := make(map[models.PermissionType]struct{}, len(rows))
	for _, row := range rows {
		present[row.PermissionType] = struct{}{}
	}

	created := false
	for permissionType, enabledDefault := range models.KnownPermissionTypes() {
		if _, ok := present[permissionType]; ok {
			continue
		}

		row := models.NotificationSetting{
			UserID:         userID,
			PermissionType: permissionType,
			Enabled:        enabledDefault,
		}
		err := s.db.WithContext(ctx).Create(&row).Error
		if err != nil && !errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("permission service: materialise setting %s: %w", permissionType, err)
		}
		created = true
	}

	if created {
		rows = rows[:0]
		if err := s.db.WithContext(ctx).
			Where("user_id = ?", userID).
			Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("permission service: reload settings: %w", err)
		}
	}

	sort.Slice(rows, func(i, j int) bool {
		return rows[i].PermissionType < rows[j].PermissionType
	})

	items := make([]NotificationSettingDTO, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapSetting(row))
	}
	return items, nil
}

// UpdateSetting records an explicit user decision. The setting must belong to
// the user. One consent event is appended per call even when the new value
// equals the old one; every explicit action is audited, not only effective
// changes.
func (s *PermissionService) UpdateSetting(ctx context.Context, input UpdateSettingInput) (*NotificationSettingDTO, error) {
	ctx = ensureContext(ctx)

	userID := strings.TrimSpace(input.UserID)
	settingID := strings.TrimSpace(input.SettingID)
	if userID == "" || settingID == "" {
		return nil, apperrors.NewValidation("user id and setting id are required")
	}

	var setting models.NotificationSetting
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := lockForUpdate(tx).
			Where("id = ? AND user_id = ?", settingID, userID).
			First(&setting).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrNotFound.WithMessage("notification setting not found")
		}
		if err != nil {
			return err
		}

		previous := setting.Enabled
		if err := tx.Model(&setting).Update("enabled", input.Enabled).Error; err != nil {
			return err
		}
		setting.Enabled = input.Enabled

		event := models.ConsentEvent{
			UserID:          userID,
			PermissionType:  setting.PermissionType,
			PreviousEnabled: &previous,
			NewEnabled:      input.Enabled,
			CreatedAt:       s.now().UTC(),
		}

		if meta := consentMetadata(input.IPAddress, input.UserAgent); meta != nil {
			event.Metadata = meta
		}

		return tx.Create(&event).Error
	})
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, fmt.Errorf("permission service: update setting: %w", err)
	}

	dto := mapSetting(setting)
	return &dto, nil
}

// IsEnabled reports the user's opt-in state for one permission type. A missing
// row means disabled: absent preference data never results in a send.
func (s *PermissionService) IsEnabled(ctx context.Context, userID string, permissionType models.PermissionType) (bool, error) {
	ctx = ensureContext(ctx)

	var setting models.NotificationSetting
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND permission_type = ?", strings.TrimSpace(userID), permissionType).
		First(&setting).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("permission service: load setting: %w", err)
	}

	return setting.Enabled, nil
}

// FilterEnabled reduces userIDs to those with the permission explicitly
// enabled. Users without a setting row are dropped, which is the same
// fail-closed default IsEnabled applies. Lookups are chunked.
func (s *PermissionService) FilterEnabled(ctx context.Context, userIDs []string, permissionType models.PermissionType) ([]string, error) {
	ctx = ensureContext(ctx)

	ids := normaliseIDs(userIDs)
	if len(ids) == 0 {
		return []string{}, nil
	}

	enabled := make([]string, 0, len(ids))
	for _, chunk := range chunkIDs(ids, resolveBatchSize) {
		var batch []string
		if err := s.db.WithContext(ctx).
			Model(&models.NotificationSetting{}).
			Where("user_id IN ? AND permission_type = ? AND enabled = ?", chunk, permissionType, true).
			Pluck("user_id", &batch).Error; err != nil {
			return nil, fmt.Errorf("permission service: filter enabled users: %w", err)
		}
		enabled = append(enabled, batch...)
	}

	return enabled, nil
}

// ListConsentEvents returns paginated consent events ordered by recency.
func (s *PermissionService) ListConsentEvents(ctx context.Context, opts ListConsentEventsOptions) ([]ConsentEventDTO, int64, error) {
	ctx = ensureContext(ctx)

	userID := strings.TrimSpace(opts.UserID)
	if userID == "" {
		return nil, 0, apperrors.NewValidation("user id is required")
	}

	page := opts.Page
	if page <= 0 {
		page = 1
	}
	perPage := opts.PageSize
	if perPage <= 0 || perPage > 200 {
		perPage = 50
	}

	query := s.db.WithContext(ctx).Model(&models.ConsentEvent{}).Where("user_id = ?", userID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("permission service: count consent events: %w", err)
	}

	var rows []models.ConsentEvent
	if err := query.
		Order("created_at DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("permission service: list consent events: %w", err)
	}

	items := make([]ConsentEventDTO, 0, len(rows))
	for _, row := range rows {
		items = append(items, ConsentEventDTO{
			ID:              row.ID,
			UserID:          row.UserID,
			PermissionType:  row.PermissionType,
			PreviousEnabled: row.PreviousEnabled,
			NewEnabled:      row.NewEnabled,
			CreatedAt:       row.CreatedAt,
		})
	}
	return items, total, nil
}

func consentMetadata(ipAddress, userAgent string) datatypes.JSON {
	meta := map[string]string{}
	if ip := strings.TrimSpace(ipAddress); ip != "" {
		meta["ip_address"] = ip
	}
	if ua := strings.TrimSpace(userAgent); ua != "" {
		meta["user_agent"] = ua
	}
	if len(meta) == 0 {
		return nil
	}

	encoded, err := json.Marshal(meta)
	if err != nil {
		return nil
	}
	return datatypes.JSON(encoded)
}

func mapSetting(row models.NotificationSetting) NotificationSettingDTO {
	return NotificationSettingDTO{
		ID:             row.ID,
		UserID:         row.UserID,
		PermissionType: row.PermissionType,
		Enabled:        row.Enabled,
		UpdatedAt:      row.UpdatedAt,
	}
}
