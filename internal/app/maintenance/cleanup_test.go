package maintenance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oitdesk/oitdesk/internal/database/testutil"
	"github.com/oitdesk/oitdesk/internal/models"
	"github.com/oitdesk/oitdesk/internal/services"
)

func TestRunOncePurgesExpiredData(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())

	audit, err := services.NewAuditService(db)
	require.NoError(t, err)

	stale := models.ActivityLog{
		Username:  "old",
		Action:    "auth.ldap_login",
		Status:    models.ActivityStatusSuccess,
		CreatedAt: time.Now().Add(-200 * 24 * time.Hour),
	}
	require.NoError(t, db.Create(&stale).Error)
	require.NoError(t, audit.Log(context.Background(), services.AuditEntry{
		Username: "fresh",
		Action:   "auth.ldap_login",
		Status:   models.ActivityStatusSuccess,
	}))

	require.NoError(t, db.Create(&models.CacheEntry{
		Key:       "stale",
		Value:     []byte("x"),
		ExpiresAt: time.Now().Add(-time.Hour),
	}).Error)
	require.NoError(t, db.Create(&models.CacheEntry{
		Key:       "live",
		Value:     []byte("y"),
		ExpiresAt: time.Now().Add(time.Hour),
	}).Error)

	cleaner := NewCleaner(db, nil, audit, WithAuditRetentionDays(180))
	require.NoError(t, cleaner.RunOnce(context.Background()))

	var activityCount int64
	require.NoError(t, db.Model(&models.ActivityLog{}).Count(&activityCount).Error)
	require.EqualValues(t, 1, activityCount)

	var cacheCount int64
	require.NoError(t, db.Model(&models.CacheEntry{}).Count(&cacheCount).Error)
	require.EqualValues(t, 1, cacheCount)
}

func TestCleanerStartRegistersJobs(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	audit, err := services.NewAuditService(db)
	require.NoError(t, err)

	cleaner := NewCleaner(db, nil, audit)
	require.NoError(t, cleaner.Start())
	<-cleaner.Stop().Done()
}
