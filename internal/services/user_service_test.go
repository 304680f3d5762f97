package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/oitdesk/oitdesk/internal/auth/directory"
	"github.com/oitdesk/oitdesk/internal/database/testutil"
	"github.com/oitdesk/oitdesk/internal/models"
)

func newUserService(t *testing.T) (*UserService, *SettingsService, *gorm.DB) {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	settings, err := NewSettingsService(db)
	require.NoError(t, err)
	users, err := NewUserService(db, settings)
	require.NoError(t, err)
	return users, settings, db
}

func TestSyncDirectoryUserCreatesAccount(t *testing.T) {
	users, _, _ := newUserService(t)

	user, err := users.SyncDirectoryUser(context.Background(), "Alice", directory.Entry{
		DN:         "CN=Иванов Иван Иванович,OU=Staff,DC=oit,DC=int",
		Principal:  "alice@OIT.INT",
		CommonName: "Иванов Иван Иванович",
		Mail:       "Alice@oit.int",
	})
	require.NoError(t, err)

	require.Equal(t, "alice", user.Username)
	require.Equal(t, "alice@oit.int", user.Email)
	require.Equal(t, "Иванов", user.LastName)
	require.Equal(t, "Иван", user.FirstName)
	require.Equal(t, "Иванович", user.MiddleName)
	require.Equal(t, models.RoleUser, user.Role)
	require.True(t, user.IsActive)
	require.Empty(t, user.Password)
}

func TestSyncDirectoryUserBackfillsEmailMatch(t *testing.T) {
	users, _, db := newUserService(t)

	// Pre-provisioned record created before directory logins existed.
	seed := models.User{
		Username: "old-import",
		Email:    "bob@oit.int",
		LastName: "Петров",
		Role:     models.RoleUser,
		IsActive: true,
	}
	require.NoError(t, db.Create(&seed).Error)

	user, err := users.SyncDirectoryUser(context.Background(), "bob", directory.Entry{
		Principal:  "bob@OIT.INT",
		CommonName: "Петров Пётр",
		Mail:       "bob@oit.int",
	})
	require.NoError(t, err)

	require.Equal(t, seed.ID, user.ID, "must reuse record matched by email, not create a duplicate")

	var count int64
	require.NoError(t, db.Model(&models.User{}).Where("email = ?", "bob@oit.int").Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestSyncDirectoryUserRecomputesRole(t *testing.T) {
	users, settings, _ := newUserService(t)

	ctx := context.Background()
	require.NoError(t, settings.Set(ctx, SettingAdminEmails, "root@oit.int, carol@oit.int"))
	require.NoError(t, settings.Set(ctx, SettingTechnicianEmails, "dave@oit.int"))

	carol, err := users.SyncDirectoryUser(ctx, "carol", directory.Entry{
		Principal: "carol@OIT.INT",
		Mail:      "carol@oit.int",
	})
	require.NoError(t, err)
	require.Equal(t, models.RoleAdmin, carol.Role)

	dave, err := users.SyncDirectoryUser(ctx, "dave", directory.Entry{
		Principal: "dave@OIT.INT",
		Mail:      "dave@oit.int",
	})
	require.NoError(t, err)
	require.Equal(t, models.RoleTechnician, dave.Role)

	// Demotion on the next login once the allow-list no longer matches.
	require.NoError(t, settings.Set(ctx, SettingAdminEmails, "root@oit.int"))
	carol, err = users.SyncDirectoryUser(ctx, "carol", directory.Entry{
		Principal: "carol@OIT.INT",
		Mail:      "carol@oit.int",
	})
	require.NoError(t, err)
	require.Equal(t, models.RoleUser, carol.Role)
}

func TestSyncDirectoryUserWithoutMailUsesPrincipal(t *testing.T) {
	users, _, _ := newUserService(t)

	user, err := users.SyncDirectoryUser(context.Background(), "erin", directory.Entry{
		Principal:  "erin@OIT.INT",
		CommonName: "Сидорова Эрин",
	})
	require.NoError(t, err)
	require.Equal(t, "erin@oit.int", user.Email)
}

func TestSyncDirectoryUserRejectsInactive(t *testing.T) {
	users, _, db := newUserService(t)

	seed := models.User{
		Username: "frank",
		Email:    "frank@oit.int",
		Role:     models.RoleUser,
		IsActive: false,
	}
	require.NoError(t, db.Create(&seed).Error)

	_, err := users.SyncDirectoryUser(context.Background(), "frank", directory.Entry{
		Principal: "frank@OIT.INT",
		Mail:      "frank@oit.int",
	})
	require.ErrorIs(t, err, ErrUserInactive)
}

func TestAuthenticateLocalUser(t *testing.T) {
	users, _, _ := newUserService(t)

	ctx := context.Background()
	created, err := users.Create(ctx, CreateUserInput{
		Username: "grace",
		Email:    "grace@oit.int",
		Password: "s3cret-pass",
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.Password)
	require.NotEqual(t, "s3cret-pass", created.Password)

	user, err := users.Authenticate(ctx, "Grace", "s3cret-pass")
	require.NoError(t, err)
	require.Equal(t, created.ID, user.ID)

	_, err = users.Authenticate(ctx, "grace", "wrong")
	require.Error(t, err)
}

func TestCreateRejectsDuplicateUsername(t *testing.T) {
	users, _, _ := newUserService(t)

	ctx := context.Background()
	_, err := users.Create(ctx, CreateUserInput{Username: "henry", Email: "henry@oit.int"})
	require.NoError(t, err)

	_, err = users.Create(ctx, CreateUserInput{Username: "henry", Email: "henry2@oit.int"})
	require.Error(t, err)
}

func TestListUsersFilters(t *testing.T) {
	users, _, _ := newUserService(t)

	ctx := context.Background()
	_, err := users.Create(ctx, CreateUserInput{Username: "tech1", Email: "tech1@oit.int", Role: models.RoleTechnician})
	require.NoError(t, err)
	_, err = users.Create(ctx, CreateUserInput{Username: "plain1", Email: "plain1@oit.int"})
	require.NoError(t, err)

	result, total, err := users.List(ctx, UserListOptions{
		Filters: UserFilters{Role: models.RoleTechnician},
	})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	require.Len(t, result, 1)
	require.Equal(t, "tech1", result[0].Username)
}

func TestSetActive(t *testing.T) {
	users, _, _ := newUserService(t)

	ctx := context.Background()
	created, err := users.Create(ctx, CreateUserInput{Username: "ivy", Email: "ivy@oit.int"})
	require.NoError(t, err)

	require.NoError(t, users.SetActive(ctx, created.ID, false))
	reloaded, err := users.GetByID(ctx, created.ID)
	require.NoError(t, err)
	require.False(t, reloaded.IsActive)

	require.ErrorIs(t, users.SetActive(ctx, "missing-id", true), ErrUserNotFound)
}
