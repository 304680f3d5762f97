package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	iauth "github.com/oitdesk/oitdesk/internal/auth"
	"github.com/oitdesk/oitdesk/internal/auth/directory"
	"github.com/oitdesk/oitdesk/internal/middleware"
	"github.com/oitdesk/oitdesk/internal/models"
	"github.com/oitdesk/oitdesk/internal/services"
	appErrors "github.com/oitdesk/oitdesk/pkg/errors"
	"github.com/oitdesk/oitdesk/pkg/logger"
	"github.com/oitdesk/oitdesk/pkg/metrics"
	"github.com/oitdesk/oitdesk/pkg/response"
)

// Invalid directory credentials are reported in Russian, matching the UI.
const msgInvalidDirectoryCredentials = "Неверный логин или пароль"

const authCookieMaxAge = 604800 // seconds, 7 days

// DirectoryClient is the slice of the directory authenticator the login flow
// needs. Tests substitute it to avoid a live LDAP server.
type DirectoryClient interface {
	Authenticate(ctx context.Context, principal, password string) error
	FindEntry(ctx context.Context, principal string) (*directory.Entry, error)
}

// DirectoryFactory builds a directory client for the settings-derived
// configuration of the current request.
type DirectoryFactory func(cfg directory.Config, opts directory.Options) (DirectoryClient, error)

func defaultDirectoryFactory(cfg directory.Config, opts directory.Options) (DirectoryClient, error) {
	return directory.NewAuthenticator(cfg, opts)
}

// AuthHandler serves the login, logout, refresh, and identity endpoints.
type AuthHandler struct {
	users            *services.UserService
	settings         *services.SettingsService
	audit            *services.AuditService
	sessions         *iauth.SessionService
	limiter          *middleware.LoginLimiter
	directory        DirectoryFactory
	directoryTimeout time.Duration
	secureCookies    bool
}

// AuthHandlerConfig wires the handler's collaborators.
type AuthHandlerConfig struct {
	Users            *services.UserService
	Settings         *services.SettingsService
	Audit            *services.AuditService
	Sessions         *iauth.SessionService
	Limiter          *middleware.LoginLimiter
	Directory        DirectoryFactory
	DirectoryTimeout time.Duration
	SecureCookies    bool
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(cfg AuthHandlerConfig) (*AuthHandler, error) {
	if cfg.Users == nil {
		return nil, errors.New("auth handler: user service is required")
	}
	if cfg.Settings == nil {
		return nil, errors.New("auth handler: settings service is required")
	}
	if cfg.Audit == nil {
		return nil, errors.New("auth handler: audit service is required")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("auth handler: session service is required")
	}

	factory := cfg.Directory
	if factory == nil {
		factory = defaultDirectoryFactory
	}
	timeout := cfg.DirectoryTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &AuthHandler{
		users:            cfg.Users,
		settings:         cfg.Settings,
		audit:            cfg.Audit,
		sessions:         cfg.Sessions,
		limiter:          cfg.Limiter,
		directory:        factory,
		directoryTimeout: timeout,
		secureCookies:    cfg.SecureCookies,
	}, nil
}

type ldapLoginRequest struct {
	Login    string `json:"login" validate:"required,min=1,max=255"`
	Password string `json:"password" validate:"required,min=1"`
}

type localLoginRequest struct {
	Username string `json:"username" validate:"required,min=1,max=255"`
	Password string `json:"password" validate:"required,min=1"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// diagnostics accumulates one structured record per login step; the full
// trail is returned in the response body.
type diagnostics []gin.H

func (d *diagnostics) add(step string, fields gin.H) {
	record := gin.H{"step": step}
	for key, value := range fields {
		record[key] = value
	}
	*d = append(*d, record)
}

// LDAPLogin authenticates against the configured directory, provisions or
// refreshes the local account, and issues a session.
func (h *AuthHandler) LDAPLogin(c *gin.Context) {
	var req ldapLoginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	ctx := requestContext(c)
	login := strings.TrimSpace(req.Login)
	trail := diagnostics{}

	// Exactly one activity row per attempt, whatever the outcome.
	attempt := services.AuditEntry{
		Username:  login,
		Action:    "auth.ldap_login",
		Status:    models.ActivityStatusError,
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
	defer func() {
		if err := h.audit.Log(ctx, attempt); err != nil {
			logger.Error("activity log write failed", zap.Error(err))
		}
	}()

	if h.limiter != nil && !h.limiter.Allow(ctx, login+"|"+c.ClientIP()) {
		trail.add("rate_limit", gin.H{"allowed": false})
		attempt.Message = "rate limited"
		metrics.LoginAttempts.WithLabelValues("ldap", "failure").Inc()
		response.Error(c, appErrors.ErrRateLimit)
		return
	}
	trail.add("rate_limit", gin.H{"allowed": true})

	cfg, err := h.settings.DirectoryConfig(ctx)
	if err != nil {
		attempt.Message = "settings load failed"
		logger.Error("directory settings load failed", zap.Error(err))
		response.Error(c, appErrors.ErrInternalServer)
		return
	}
	if err := cfg.Validate(); err != nil {
		trail.add("settings", gin.H{"configured": false, "detail": err.Error()})
		attempt.Message = "directory not configured"
		metrics.LoginAttempts.WithLabelValues("ldap", "failure").Inc()
		response.Error(c, appErrors.ErrDirectoryNotConfigured)
		return
	}
	trail.add("settings", gin.H{"configured": true, "url": cfg.URL()})

	principal := cfg.DerivePrincipal(login)
	trail.add("principal", gin.H{"value": principal})

	client, err := h.directory(cfg, directory.Options{Timeout: h.directoryTimeout})
	if err != nil {
		attempt.Message = "directory client construction failed"
		logger.Error("directory client construction failed", zap.Error(err))
		response.Error(c, appErrors.ErrInternalServer)
		return
	}

	bindCtx, cancel := context.WithTimeout(ctx, h.directoryTimeout)
	defer cancel()

	if err := client.Authenticate(bindCtx, principal, req.Password); err != nil {
		metrics.LoginAttempts.WithLabelValues("ldap", "failure").Inc()
		if errors.Is(err, directory.ErrInvalidCredentials) {
			trail.add("bind", gin.H{"ok": false, "reason": "invalid_credentials"})
			attempt.Message = "invalid credentials"
			h.loginFailure(c, msgInvalidDirectoryCredentials, trail)
			return
		}
		trail.add("bind", gin.H{"ok": false, "reason": "transport_error"})
		attempt.Message = sanitizeDetail(err.Error())
		logger.Warn("directory transport failure", zap.Error(err))
		h.loginFailure(c, "Каталог недоступен, попробуйте позже", trail)
		return
	}
	trail.add("bind", gin.H{"ok": true})

	entry := directory.Entry{Principal: principal}
	if found, err := client.FindEntry(bindCtx, principal); err != nil {
		// Provisioning survives a failed attribute lookup; names stay blank.
		trail.add("entry", gin.H{"found": false, "detail": sanitizeDetail(err.Error())})
	} else if found == nil {
		trail.add("entry", gin.H{"found": false})
	} else {
		entry = *found
		trail.add("entry", gin.H{"found": true, "dn": entry.DN})
	}

	user, err := h.users.SyncDirectoryUser(ctx, login, entry)
	if err != nil {
		metrics.LoginAttempts.WithLabelValues("ldap", "failure").Inc()
		if errors.Is(err, services.ErrUserInactive) {
			trail.add("provision", gin.H{"ok": false, "reason": "inactive"})
			attempt.Message = "account disabled"
			h.loginFailure(c, "Учётная запись отключена", trail)
			return
		}
		attempt.Message = "provisioning failed"
		logger.Error("directory user provisioning failed", zap.Error(err))
		response.Error(c, appErrors.ErrInternalServer)
		return
	}
	trail.add("provision", gin.H{"ok": true, "user_id": user.ID, "role": user.Role})

	if err := h.users.RecordLogin(ctx, user.ID, c.ClientIP()); err != nil {
		logger.Warn("last login stamp failed", zap.Error(err))
	}

	pair, _, err := h.sessions.CreateSession(user, iauth.SessionMetadata{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		attempt.Message = "session creation failed"
		logger.Error("session creation failed", zap.Error(err))
		response.Error(c, appErrors.ErrInternalServer)
		return
	}
	trail.add("session", gin.H{"ok": true})

	attempt.Status = models.ActivityStatusSuccess
	attempt.UserID = &user.ID
	attempt.Username = user.Username
	attempt.Message = "directory login"
	metrics.LoginAttempts.WithLabelValues("ldap", "success").Inc()

	h.setAuthCookie(c, pair.AccessToken)
	response.Success(c, http.StatusOK, gin.H{
		"user":          user,
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
		"diagnostics":   trail,
	})
}

// loginFailure renders a sanitized, non-enumerating failure body. The HTTP
// status stays 200 so the UI can show the message and the trail.
func (h *AuthHandler) loginFailure(c *gin.Context, message string, trail diagnostics) {
	c.JSON(http.StatusOK, response.Response{
		Success: false,
		Error: &response.ErrorInfo{
			Code:    "LOGIN_FAILED",
			Message: message,
		},
		Data: gin.H{"diagnostics": trail},
	})
}

// Login authenticates a local (password) account. Used for the seeded
// administrator and installations without a directory.
func (h *AuthHandler) Login(c *gin.Context) {
	var req localLoginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	ctx := requestContext(c)
	attempt := services.AuditEntry{
		Username:  strings.TrimSpace(req.Username),
		Action:    "auth.login",
		Status:    models.ActivityStatusError,
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
	defer func() {
		if err := h.audit.Log(ctx, attempt); err != nil {
			logger.Error("activity log write failed", zap.Error(err))
		}
	}()

	if h.limiter != nil && !h.limiter.Allow(ctx, req.Username+"|"+c.ClientIP()) {
		attempt.Message = "rate limited"
		metrics.LoginAttempts.WithLabelValues("local", "failure").Inc()
		response.Error(c, appErrors.ErrRateLimit)
		return
	}

	user, err := h.users.Authenticate(ctx, req.Username, req.Password)
	if err != nil {
		attempt.Message = "invalid credentials"
		metrics.LoginAttempts.WithLabelValues("local", "failure").Inc()
		response.Error(c, appErrors.ErrInvalidCredentials)
		return
	}

	if err := h.users.RecordLogin(ctx, user.ID, c.ClientIP()); err != nil {
		logger.Warn("last login stamp failed", zap.Error(err))
	}

	pair, _, err := h.sessions.CreateSession(user, iauth.SessionMetadata{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		attempt.Message = "session creation failed"
		logger.Error("session creation failed", zap.Error(err))
		response.Error(c, appErrors.ErrInternalServer)
		return
	}

	attempt.Status = models.ActivityStatusSuccess
	attempt.UserID = &user.ID
	attempt.Message = "local login"
	metrics.LoginAttempts.WithLabelValues("local", "success").Inc()

	h.setAuthCookie(c, pair.AccessToken)
	response.Success(c, http.StatusOK, gin.H{
		"user":          user,
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
	})
}

// Refresh rotates the refresh token and issues a new access token.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if !bindAndValidate(c, &req) {
		return
	}

	pair, session, err := h.sessions.RefreshSession(req.RefreshToken)
	if err != nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	h.setAuthCookie(c, pair.AccessToken)
	response.Success(c, http.StatusOK, gin.H{
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
		"expires_at":    session.ExpiresAt,
	})
}

// Logout revokes the current session and clears the auth cookie.
func (h *AuthHandler) Logout(c *gin.Context) {
	ctx := requestContext(c)

	if sessionID := currentSessionID(c); sessionID != "" {
		if err := h.sessions.RevokeSession(sessionID); err != nil && !errors.Is(err, iauth.ErrSessionNotFound) {
			logger.Warn("session revocation failed", zap.Error(err))
		}
	}

	userID := currentUserID(c)
	entry := services.AuditEntry{
		Action:    "auth.logout",
		Status:    models.ActivityStatusSuccess,
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
	if userID != "" {
		entry.UserID = &userID
		if user, err := h.users.GetByID(ctx, userID); err == nil {
			entry.Username = user.Username
		}
	}
	if err := h.audit.Log(ctx, entry); err != nil {
		logger.Error("activity log write failed", zap.Error(err))
	}

	h.clearAuthCookie(c)
	response.Success(c, http.StatusOK, gin.H{"logged_out": true})
}

// Me returns the authenticated user's profile.
func (h *AuthHandler) Me(c *gin.Context) {
	user, err := h.users.GetByID(requestContext(c), currentUserID(c))
	if err != nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	response.Success(c, http.StatusOK, user)
}

func (h *AuthHandler) setAuthCookie(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.AuthCookieName, token, authCookieMaxAge, "/", "", h.secureCookies, true)
}

func (h *AuthHandler) clearAuthCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.AuthCookieName, "", -1, "/", "", h.secureCookies, true)
}

// sanitizeDetail strips control characters from backend error text and caps
// its length before it reaches a response or the activity log.
func sanitizeDetail(detail string) string {
	cleaned := strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, detail)
	cleaned = strings.TrimSpace(cleaned)
	if len(cleaned) > 200 {
		cleaned = cleaned[:200]
	}
	return cleaned
}
