package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oitdesk/oitdesk/internal/database/testutil"
	"github.com/oitdesk/oitdesk/internal/models"
)

func TestSettingsRoundTrip(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	settings, err := NewSettingsService(db)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, settings.Set(ctx, "ldapHost", "dc01.oit.int"))
	require.NoError(t, settings.Set(ctx, "ldapHost", "dc02.oit.int"))

	value, err := settings.Get(ctx, "ldapHost")
	require.NoError(t, err)
	require.Equal(t, "dc02.oit.int", value)

	value, err = settings.Get(ctx, "missing")
	require.NoError(t, err)
	require.Empty(t, value)
}

func TestSettingsSetMany(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	settings, err := NewSettingsService(db)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, settings.SetMany(ctx, map[string]string{
		"ldapHost": "dc01.oit.int",
		"ldapPort": "636",
		"ldapSSL":  "true",
	}))

	all, err := settings.GetAll(ctx)
	require.NoError(t, err)
	require.Equal(t, "dc01.oit.int", all["ldapHost"])
	require.Equal(t, "636", all["ldapPort"])
}

func TestSettingsDirectoryConfig(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	settings, err := NewSettingsService(db)
	require.NoError(t, err)

	ctx := context.Background()
	cfg, err := settings.DirectoryConfig(ctx)
	require.NoError(t, err)
	require.Error(t, cfg.Validate())

	require.NoError(t, settings.SetMany(ctx, map[string]string{
		"ldapHost":         "dc01.oit.int",
		"ldapPort":         "636",
		"ldapSSL":          "true",
		"ldapUserDN":       "CN=svc,DC=oit,DC=int",
		"ldapUserPassword": "secret",
		"ldapBaseDN":       "DC=oit,DC=int",
		"ldapAttrLogin":    "sAMAccountName",
	}))

	cfg, err = settings.DirectoryConfig(ctx)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	require.Equal(t, "ldaps://dc01.oit.int:636", cfg.URL())
}

func TestResolveRoleFromAllowLists(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	settings, err := NewSettingsService(db)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, settings.Set(ctx, SettingAdminEmails, "Root@oit.int; boss@oit.int"))
	require.NoError(t, settings.Set(ctx, SettingTechnicianEmails, "helpdesk@oit.int"))

	role, err := settings.ResolveRole(ctx, "root@OIT.INT")
	require.NoError(t, err)
	require.Equal(t, models.RoleAdmin, role)

	role, err = settings.ResolveRole(ctx, "helpdesk@oit.int")
	require.NoError(t, err)
	require.Equal(t, models.RoleTechnician, role)

	role, err = settings.ResolveRole(ctx, "nobody@oit.int")
	require.NoError(t, err)
	require.Equal(t, models.RoleUser, role)
}

func TestSettingsDelete(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	settings, err := NewSettingsService(db)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, settings.Set(ctx, "temp", "value"))
	require.NoError(t, settings.Delete(ctx, "temp"))

	value, err := settings.Get(ctx, "temp")
	require.NoError(t, err)
	require.Empty(t, value)
}
