package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	iauth "github.com/oitdesk/oitdesk/internal/auth"
	"github.com/oitdesk/oitdesk/internal/auth/directory"
	"github.com/oitdesk/oitdesk/internal/database/testutil"
	"github.com/oitdesk/oitdesk/internal/middleware"
	"github.com/oitdesk/oitdesk/internal/models"
	"github.com/oitdesk/oitdesk/internal/services"
)

type stubDirectory struct {
	authErr error
	entry   *directory.Entry
	findErr error
}

func (s *stubDirectory) Authenticate(context.Context, string, string) error {
	return s.authErr
}

func (s *stubDirectory) FindEntry(context.Context, string) (*directory.Entry, error) {
	return s.entry, s.findErr
}

type loginFixture struct {
	router *gin.Engine
	db     *gorm.DB
	stub   *stubDirectory
}

func newLoginFixture(t *testing.T, configured bool) *loginFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())

	settings, err := services.NewSettingsService(db)
	require.NoError(t, err)
	if configured {
		require.NoError(t, settings.SetMany(context.Background(), map[string]string{
			"ldapHost":         "dc01.oit.int",
			"ldapPort":         "636",
			"ldapSSL":          "true",
			"ldapUserDN":       "CN=svc,DC=oit,DC=int",
			"ldapUserPassword": "secret",
			"ldapBaseDN":       "DC=oit,DC=int",
			"ldapAttrLogin":    "sAMAccountName",
		}))
	}

	users, err := services.NewUserService(db, settings)
	require.NoError(t, err)
	audit, err := services.NewAuditService(db)
	require.NoError(t, err)

	jwtService, err := iauth.NewJWTService(iauth.JWTConfig{Secret: "test-secret", Issuer: "oitdesk"})
	require.NoError(t, err)
	sessions, err := iauth.NewSessionService(db, jwtService, iauth.SessionConfig{})
	require.NoError(t, err)

	stub := &stubDirectory{}
	handler, err := NewAuthHandler(AuthHandlerConfig{
		Users:    users,
		Settings: settings,
		Audit:    audit,
		Sessions: sessions,
		Limiter:  middleware.NewLoginLimiter(middleware.NewMemoryRateStore(), 5, 10*time.Minute),
		Directory: func(directory.Config, directory.Options) (DirectoryClient, error) {
			return stub, nil
		},
	})
	require.NoError(t, err)

	router := gin.New()
	router.POST("/api/auth/ldap-login", handler.LDAPLogin)
	return &loginFixture{router: router, db: db, stub: stub}
}

func (f *loginFixture) login(t *testing.T, login, password string) *httptest.ResponseRecorder {
	t.Helper()

	payload, err := json.Marshal(gin.H{"login": login, "password": password})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/ldap-login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestLDAPLoginRejectsUnconfiguredDirectory(t *testing.T) {
	f := newLoginFixture(t, false)

	w := f.login(t, "alice", "password")
	require.Equal(t, http.StatusBadRequest, w.Code)

	body := decodeBody(t, w)
	require.Equal(t, false, body["success"])
	errInfo := body["error"].(map[string]any)
	require.Equal(t, "DIRECTORY_NOT_CONFIGURED", errInfo["code"])

	// The failed attempt still leaves exactly one activity row.
	var count int64
	require.NoError(t, f.db.Model(&models.ActivityLog{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestLDAPLoginInvalidCredentials(t *testing.T) {
	f := newLoginFixture(t, true)
	f.stub.authErr = directory.ErrInvalidCredentials

	w := f.login(t, "alice", "wrong")
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	require.Equal(t, false, body["success"])
	errInfo := body["error"].(map[string]any)
	require.Equal(t, "Неверный логин или пароль", errInfo["message"])

	var row models.ActivityLog
	require.NoError(t, f.db.Take(&row).Error)
	require.Equal(t, models.ActivityStatusError, row.Status)
	require.Equal(t, "alice", row.Username)

	var users int64
	require.NoError(t, f.db.Model(&models.User{}).Count(&users).Error)
	require.Zero(t, users)
}

func TestLDAPLoginTransportFailureIsSanitized(t *testing.T) {
	f := newLoginFixture(t, true)
	f.stub.authErr = &directory.TransportError{Err: context.DeadlineExceeded}

	w := f.login(t, "alice", "password")
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	require.Equal(t, false, body["success"])

	var row models.ActivityLog
	require.NoError(t, f.db.Take(&row).Error)
	require.Equal(t, models.ActivityStatusError, row.Status)
}

func TestLDAPLoginSuccessProvisionsAndSetsCookie(t *testing.T) {
	f := newLoginFixture(t, true)
	f.stub.entry = &directory.Entry{
		DN:         "CN=Иванов Иван Иванович,DC=oit,DC=int",
		Principal:  "alice@OIT.INT",
		CommonName: "Иванов Иван Иванович",
		Mail:       "alice@oit.int",
	}

	w := f.login(t, "alice", "correct")
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	require.Equal(t, true, body["success"])
	data := body["data"].(map[string]any)
	require.NotEmpty(t, data["access_token"])
	require.NotEmpty(t, data["diagnostics"])

	var user models.User
	require.NoError(t, f.db.Take(&user, "username = ?", "alice").Error)
	require.Equal(t, "Иванов", user.LastName)
	require.Equal(t, "Иван", user.FirstName)
	require.Equal(t, "Иванович", user.MiddleName)
	require.NotNil(t, user.LastLoginAt)

	var cookie *http.Cookie
	for _, candidate := range w.Result().Cookies() {
		if candidate.Name == middleware.AuthCookieName {
			cookie = candidate
		}
	}
	require.NotNil(t, cookie, "auth cookie must be set")
	require.True(t, cookie.HttpOnly)
	require.Equal(t, 604800, cookie.MaxAge)

	// The cookie token must decode back to the provisioned user.
	jwtService, err := iauth.NewJWTService(iauth.JWTConfig{Secret: "test-secret", Issuer: "oitdesk"})
	require.NoError(t, err)
	claims, err := jwtService.ValidateAccessToken(cookie.Value)
	require.NoError(t, err)
	require.Equal(t, user.ID, claims.UserID)

	var row models.ActivityLog
	require.NoError(t, f.db.Take(&row).Error)
	require.Equal(t, models.ActivityStatusSuccess, row.Status)
	require.NotNil(t, row.UserID)
}

func TestLDAPLoginSecondLoginReusesAccount(t *testing.T) {
	f := newLoginFixture(t, true)
	f.stub.entry = &directory.Entry{
		Principal:  "bob@OIT.INT",
		CommonName: "Петров Пётр",
		Mail:       "bob@oit.int",
	}

	w := f.login(t, "bob", "correct")
	require.Equal(t, http.StatusOK, w.Code)
	w = f.login(t, "bob", "correct")
	require.Equal(t, http.StatusOK, w.Code)

	var count int64
	require.NoError(t, f.db.Model(&models.User{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestLDAPLoginSixthAttemptRateLimited(t *testing.T) {
	f := newLoginFixture(t, true)
	f.stub.authErr = directory.ErrInvalidCredentials

	for i := 0; i < 5; i++ {
		w := f.login(t, "mallory", "guess")
		require.Equal(t, http.StatusOK, w.Code, "attempt %d", i+1)
	}

	w := f.login(t, "mallory", "guess")
	require.Equal(t, http.StatusTooManyRequests, w.Code)

	// The limiter key includes the login, so other users still get in.
	f.stub.authErr = nil
	f.stub.entry = &directory.Entry{Principal: "carol@OIT.INT", Mail: "carol@oit.int"}
	w = f.login(t, "carol", "correct")
	require.Equal(t, http.StatusOK, w.Code)
}

func TestLDAPLoginEntryLookupFailureIsNonFatal(t *testing.T) {
	f := newLoginFixture(t, true)
	f.stub.findErr = &directory.TransportError{Err: context.DeadlineExceeded}

	w := f.login(t, "dave", "correct")
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	require.Equal(t, true, body["success"])

	// Provisioned from the principal alone, names left blank.
	var user models.User
	require.NoError(t, f.db.Take(&user, "username = ?", "dave").Error)
	require.Equal(t, "dave@oit.int", user.Email)
	require.Empty(t, user.LastName)
}
