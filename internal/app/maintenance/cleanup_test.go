package maintenance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/aiva-app/notify/internal/database/testutil"
	"github.com/aiva-app/notify/internal/models"
	"github.com/aiva-app/notify/internal/services"
)

func newCleanerFixtures(t *testing.T, now time.Time, opts ...Option) (*gorm.DB, *Cleaner) {
	t.Helper()

	db := testutil.MustOpenTestDB(t)

	tokens, err := services.NewTokenService(db)
	require.NoError(t, err)

	opts = append([]Option{WithNow(func() time.Time { return now })}, opts...)
	cleaner, err := NewCleaner(db, tokens, opts...)
	require.NoError(t, err)

	return db, cleaner
}

func seedToken(t *testing.T, db *gorm.DB, token string, lastValidated time.Time) {
	t.Helper()

	device := models.Device{
		UserID:           "user-1",
		DeviceIdentifier: "device-" + token,
		Platform:         models.PlatformAndroid,
	}
	require.NoError(t, db.Create(&device).Error)
	require.NoError(t, db.Create(&models.PushToken{
		DeviceID:        device.ID,
		UserID:          "user-1",
		Token:           token,
		Active:          true,
		LastValidatedAt: lastValidated,
	}).Error)
}

func seedConsentEvent(t *testing.T, db *gorm.DB, createdAt time.Time) {
	t.Helper()

	previous := false
	require.NoError(t, db.Create(&models.ConsentEvent{
		UserID:          "user-1",
		PermissionType:  models.PermissionMarketing,
		PreviousEnabled: &previous,
		NewEnabled:      true,
		CreatedAt:       createdAt,
	}).Error)
}

func TestRunOnceDeactivatesStaleTokens(t *testing.T) {
	now := time.Date(2026, time.June, 1, 3, 0, 0, 0, time.UTC)
	db, cleaner := newCleanerFixtures(t, now, WithTokenRetentionDays(60))

	seedToken(t, db, "tok-stale", now.AddDate(0, 0, -61))
	seedToken(t, db, "tok-fresh", now.AddDate(0, 0, -59))

	require.NoError(t, cleaner.RunOnce(context.Background()))

	var stale, fresh models.PushToken
	require.NoError(t, db.Where("token = ?", "tok-stale").First(&stale).Error)
	require.NoError(t, db.Where("token = ?", "tok-fresh").First(&fresh).Error)
	require.False(t, stale.Active)
	require.True(t, fresh.Active)
}

func TestRunOncePrunesOldConsentEvents(t *testing.T) {
	now := time.Date(2026, time.June, 1, 3, 0, 0, 0, time.UTC)
	db, cleaner := newCleanerFixtures(t, now, WithConsentRetentionDays(730))

	seedConsentEvent(t, db, now.AddDate(0, 0, -731))
	seedConsentEvent(t, db, now.AddDate(0, 0, -10))

	require.NoError(t, cleaner.RunOnce(context.Background()))

	var remaining int64
	require.NoError(t, db.Model(&models.ConsentEvent{}).Count(&remaining).Error)
	require.EqualValues(t, 1, remaining)
}

func TestCleanerStartRejectsBadSchedule(t *testing.T) {
	now := time.Date(2026, time.June, 1, 3, 0, 0, 0, time.UTC)
	_, cleaner := newCleanerFixtures(t, now, WithTokenSchedule("not-a-spec"))

	require.Error(t, cleaner.Start())
}

func TestCleanerStartAndStop(t *testing.T) {
	now := time.Date(2026, time.June, 1, 3, 0, 0, 0, time.UTC)
	_, cleaner := newCleanerFixtures(t, now)

	require.NoError(t, cleaner.Start())
	<-cleaner.Stop().Done()
}
