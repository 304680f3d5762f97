package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oitdesk/oitdesk/internal/database/testutil"
	"github.com/oitdesk/oitdesk/internal/models"
)

func TestAuditLogWritesSingleRow(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	audit, err := NewAuditService(db)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, audit.Log(ctx, AuditEntry{
		Username:  "alice",
		Action:    "auth.ldap_login",
		Status:    models.ActivityStatusSuccess,
		IPAddress: "192.0.2.5",
	}))

	var count int64
	require.NoError(t, db.Model(&models.ActivityLog{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestAuditLogDefaultsUnknownUsername(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	audit, err := NewAuditService(db)
	require.NoError(t, err)

	require.NoError(t, audit.Log(context.Background(), AuditEntry{
		Action: "auth.ldap_login",
		Status: models.ActivityStatusError,
	}))

	var row models.ActivityLog
	require.NoError(t, db.Take(&row).Error)
	require.Equal(t, "unknown", row.Username)
	require.Nil(t, row.UserID)
}

func TestAuditLogRequiresActionAndStatus(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	audit, err := NewAuditService(db)
	require.NoError(t, err)

	require.Error(t, audit.Log(context.Background(), AuditEntry{Status: "success"}))
	require.Error(t, audit.Log(context.Background(), AuditEntry{Action: "auth.ldap_login"}))
}

func TestAuditListFiltersAndPaginates(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	audit, err := NewAuditService(db)
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, audit.Log(ctx, AuditEntry{
			Username: "bob",
			Action:   "auth.ldap_login",
			Status:   models.ActivityStatusError,
		}))
	}
	require.NoError(t, audit.Log(ctx, AuditEntry{
		Username: "bob",
		Action:   "auth.logout",
		Status:   models.ActivityStatusSuccess,
	}))

	rows, total, err := audit.List(ctx, AuditListOptions{
		Filters: AuditFilters{Action: "auth.ldap_login", Status: models.ActivityStatusError},
	})
	require.NoError(t, err)
	require.EqualValues(t, 3, total)
	require.Len(t, rows, 3)

	rows, total, err = audit.List(ctx, AuditListOptions{
		Page:     2,
		PageSize: 2,
		Filters:  AuditFilters{Username: "bob"},
	})
	require.NoError(t, err)
	require.EqualValues(t, 4, total)
	require.Len(t, rows, 2)
}

func TestAuditCleanupOlderThan(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	audit, err := NewAuditService(db)
	require.NoError(t, err)

	old := models.ActivityLog{
		Username:  "stale",
		Action:    "auth.ldap_login",
		Status:    models.ActivityStatusSuccess,
		CreatedAt: time.Now().Add(-48 * time.Hour),
	}
	require.NoError(t, db.Create(&old).Error)
	require.NoError(t, audit.Log(context.Background(), AuditEntry{
		Username: "fresh",
		Action:   "auth.ldap_login",
		Status:   models.ActivityStatusSuccess,
	}))

	deleted, err := audit.CleanupOlderThan(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	require.EqualValues(t, 1, deleted)

	var count int64
	require.NoError(t, db.Model(&models.ActivityLog{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}
