package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/aiva-app/notify/internal/database/testutil"
	"github.com/aiva-app/notify/internal/models"
	apperrors "github.com/aiva-app/notify/pkg/errors"
)

func newPermissionFixtures(t *testing.T) (*gorm.DB, *PermissionService) {
	t.Helper()

	db := testutil.MustOpenTestDB(t)
	svc, err := NewPermissionService(db)
	require.NoError(t, err)
	return db, svc
}

func countConsentEvents(t *testing.T, db *gorm.DB, userID string) int64 {
	t.Helper()

	var count int64
	require.NoError(t, db.Model(&models.ConsentEvent{}).
		Where("user_id = ?", userID).
		Count(&count).Error)
	return count
}

func TestGetSettingsMaterialisesDefaults(t *testing.T) {
	db, svc := newPermissionFixtures(t)

	settings, err := svc.GetSettings(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, settings, len(models.KnownPermissionTypes()))

	byType := map[models.PermissionType]NotificationSettingDTO{}
	for _, s := range settings {
		byType[s.PermissionType] = s
	}
	require.False(t, byType[models.PermissionMarketing].Enabled)
	require.False(t, byType[models.PermissionCommentReply].Enabled)
	require.True(t, byType[models.PermissionSystem].Enabled)

	// Second call must not duplicate rows.
	again, err := svc.GetSettings(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, again, len(settings))

	var rows int64
	require.NoError(t, db.Model(&models.NotificationSetting{}).
		Where("user_id = ?", "user-1").
		Count(&rows).Error)
	require.EqualValues(t, len(settings), rows)

	// Materialisation is not a user action and appends no consent events.
	require.Zero(t, countConsentEvents(t, db, "user-1"))
}

func TestUpdateSettingAppendsOneConsentEventPerCall(t *testing.T) {
	db := testutil.MustOpenTestDB(t)

	current := time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)
	svc, err := NewPermissionService(db, WithPermissionClock(func() time.Time {
		current = current.Add(time.Second)
		return current
	}))
	require.NoError(t, err)

	settings, err := svc.GetSettings(context.Background(), "user-1")
	require.NoError(t, err)

	var marketing NotificationSettingDTO
	for _, s := range settings {
		if s.PermissionType == models.PermissionMarketing {
			marketing = s
		}
	}
	require.NotEmpty(t, marketing.ID)

	updated, err := svc.UpdateSetting(context.Background(), UpdateSettingInput{
		UserID:    "user-1",
		SettingID: marketing.ID,
		Enabled:   true,
		IPAddress: "203.0.113.9",
		UserAgent: "aiva-ios/3.2.1",
	})
	require.NoError(t, err)
	require.True(t, updated.Enabled)
	require.EqualValues(t, 1, countConsentEvents(t, db, "user-1"))

	// A no-op toggle is still an explicit action and must be logged.
	_, err = svc.UpdateSetting(context.Background(), UpdateSettingInput{
		UserID:    "user-1",
		SettingID: marketing.ID,
		Enabled:   true,
	})
	require.NoError(t, err)
	require.EqualValues(t, 2, countConsentEvents(t, db, "user-1"))

	events, total, err := svc.ListConsentEvents(context.Background(), ListConsentEventsOptions{UserID: "user-1"})
	require.NoError(t, err)
	require.EqualValues(t, 2, total)
	require.Len(t, events, 2)

	latest := events[0]
	require.Equal(t, models.PermissionMarketing, latest.PermissionType)
	require.NotNil(t, latest.PreviousEnabled)
	require.True(t, *latest.PreviousEnabled)
	require.True(t, latest.NewEnabled)
}

func TestUpdateSettingRejectsForeignSetting(t *testing.T) {
	db, svc := newPermissionFixtures(t)

	settings, err := svc.GetSettings(context.Background(), "user-1")
	require.NoError(t, err)

	_, err = svc.UpdateSetting(context.Background(), UpdateSettingInput{
		UserID:    "user-2",
		SettingID: settings[0].ID,
		Enabled:   true,
	})
	require.Error(t, err)
	require.Equal(t, apperrors.ErrNotFound.Code, apperrors.FromError(err).Code)

	// The failed attempt must not leak a consent event.
	require.Zero(t, countConsentEvents(t, db, "user-2"))
}

func TestIsEnabledFailsClosed(t *testing.T) {
	_, svc := newPermissionFixtures(t)

	// No rows exist for this user at all, including SYSTEM whose
	// materialised default is enabled: absence means disabled.
	enabled, err := svc.IsEnabled(context.Background(), "unseen-user", models.PermissionSystem)
	require.NoError(t, err)
	require.False(t, enabled)
}

func TestIsEnabledReflectsStoredValue(t *testing.T) {
	_, svc := newPermissionFixtures(t)

	settings, err := svc.GetSettings(context.Background(), "user-1")
	require.NoError(t, err)

	enabled, err := svc.IsEnabled(context.Background(), "user-1", models.PermissionSystem)
	require.NoError(t, err)
	require.True(t, enabled)

	for _, s := range settings {
		if s.PermissionType == models.PermissionSystem {
			_, err = svc.UpdateSetting(context.Background(), UpdateSettingInput{
				UserID:    "user-1",
				SettingID: s.ID,
				Enabled:   false,
			})
			require.NoError(t, err)
		}
	}

	enabled, err = svc.IsEnabled(context.Background(), "user-1", models.PermissionSystem)
	require.NoError(t, err)
	require.False(t, enabled)
}

func TestFilterEnabled(t *testing.T) {
	_, svc := newPermissionFixtures(t)

	for _, userID := range []string{"user-1", "user-2"} {
		settings, err := svc.GetSettings(context.Background(), userID)
		require.NoError(t, err)

		if userID == "user-1" {
			for _, s := range settings {
				if s.PermissionType == models.PermissionCommentReply {
					_, err = svc.UpdateSetting(context.Background(), UpdateSettingInput{
						UserID:    userID,
						SettingID: s.ID,
						Enabled:   true,
					})
					require.NoError(t, err)
				}
			}
		}
	}

	eligible, err := svc.FilterEnabled(context.Background(),
		[]string{"user-1", "user-2", "user-without-rows"}, models.PermissionCommentReply)
	require.NoError(t, err)
	require.Equal(t, []string{"user-1"}, eligible)

	empty, err := svc.FilterEnabled(context.Background(), nil, models.PermissionCommentReply)
	require.NoError(t, err)
	require.Empty(t, empty)
}
