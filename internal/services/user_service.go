package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/oitdesk/oitdesk/internal/auth/directory"
	"github.com/oitdesk/oitdesk/internal/models"
	"github.com/oitdesk/oitdesk/pkg/crypto"
	apperrors "github.com/oitdesk/oitdesk/pkg/errors"
)

// ErrUserNotFound is returned when the requested user does not exist.
var ErrUserNotFound = errors.New("user service: user not found")

// ErrUserInactive is returned when a deactivated account attempts to log in.
var ErrUserInactive = errors.New("user service: user is inactive")

// CreateUserInput describes a locally created account.
type CreateUserInput struct {
	Username   string
	Email      string
	Password   string
	FirstName  string
	LastName   string
	MiddleName string
	Role       string
}

// UpdateUserInput carries optional profile changes. Nil fields are untouched.
type UpdateUserInput struct {
	Email      *string
	FirstName  *string
	LastName   *string
	MiddleName *string
	Role       *string
	IsActive   *bool
}

// UserFilters narrows List results.
type UserFilters struct {
	Role   string
	Active *bool
	Search string
}

// UserListOptions controls pagination and filtering for user queries.
type UserListOptions struct {
	Page     int
	PageSize int
	Filters  UserFilters
}

// UserService manages local accounts and directory-provisioned ones.
type UserService struct {
	db       *gorm.DB
	settings *SettingsService
}

// NewUserService constructs a UserService.
func NewUserService(db *gorm.DB, settings *SettingsService) (*UserService, error) {
	if db == nil {
		return nil, errors.New("user service: db is required")
	}
	if settings == nil {
		return nil, errors.New("user service: settings service is required")
	}
	return &UserService{db: db, settings: settings}, nil
}

// GetByID fetches a user by primary key.
func (s *UserService) GetByID(ctx context.Context, id string) (*models.User, error) {
	ctx = ensureContext(ctx)

	var user models.User
	err := s.db.WithContext(ctx).Take(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("user service: get by id: %w", err)
	}
	return &user, nil
}

// GetByUsername fetches a user by their login name.
func (s *UserService) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	ctx = ensureContext(ctx)

	var user models.User
	err := s.db.WithContext(ctx).Take(&user, "username = ?", normalizeLogin(username)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("user service: get by username: %w", err)
	}
	return &user, nil
}

// Authenticate validates a local password login.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	user, err := s.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if user.Password == "" || !crypto.VerifyPassword(user.Password, password) {
		return nil, apperrors.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrUserInactive
	}
	return user, nil
}

// Create registers a local account with a hashed password.
func (s *UserService) Create(ctx context.Context, input CreateUserInput) (*models.User, error) {
	ctx = ensureContext(ctx)

	username := normalizeLogin(input.Username)
	if username == "" {
		return nil, errors.New("user service: username is required")
	}
	email := normalizeEmail(input.Email)
	if email == "" {
		return nil, errors.New("user service: email is required")
	}

	role := strings.TrimSpace(input.Role)
	if role == "" {
		role = models.RoleUser
	}

	user := models.User{
		Username:   username,
		Email:      email,
		FirstName:  strings.TrimSpace(input.FirstName),
		LastName:   strings.TrimSpace(input.LastName),
		MiddleName: strings.TrimSpace(input.MiddleName),
		Role:       role,
		IsActive:   true,
	}

	if input.Password != "" {
		hashed, err := crypto.HashPassword(input.Password)
		if err != nil {
			return nil, fmt.Errorf("user service: hash password: %w", err)
		}
		user.Password = hashed
	}

	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, apperrors.NewBadRequest("Username or email is already taken")
		}
		return nil, fmt.Errorf("user service: create: %w", err)
	}
	return &user, nil
}

// Update applies partial profile changes.
func (s *UserService) Update(ctx context.Context, id string, input UpdateUserInput) (*models.User, error) {
	ctx = ensureContext(ctx)

	user, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if input.Email != nil {
		updates["email"] = normalizeEmail(*input.Email)
	}
	if input.FirstName != nil {
		updates["first_name"] = strings.TrimSpace(*input.FirstName)
	}
	if input.LastName != nil {
		updates["last_name"] = strings.TrimSpace(*input.LastName)
	}
	if input.MiddleName != nil {
		updates["middle_name"] = strings.TrimSpace(*input.MiddleName)
	}
	if input.Role != nil {
		updates["role"] = strings.TrimSpace(*input.Role)
	}
	if input.IsActive != nil {
		updates["is_active"] = *input.IsActive
	}
	if len(updates) == 0 {
		return user, nil
	}

	if err := s.db.WithContext(ctx).Model(user).Updates(updates).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, apperrors.NewBadRequest("Email is already taken")
		}
		return nil, fmt.Errorf("user service: update: %w", err)
	}
	return s.GetByID(ctx, id)
}

// List returns paginated users ordered by username.
func (s *UserService) List(ctx context.Context, opts UserListOptions) ([]models.User, int64, error) {
	ctx = ensureContext(ctx)

	page, pageSize := normalizePage(opts.Page, opts.PageSize)

	query := s.db.WithContext(ctx).Model(&models.User{})
	if v := strings.TrimSpace(opts.Filters.Role); v != "" {
		query = query.Where("role = ?", v)
	}
	if opts.Filters.Active != nil {
		query = query.Where("is_active = ?", *opts.Filters.Active)
	}
	if v := strings.TrimSpace(opts.Filters.Search); v != "" {
		pattern := "%" + strings.ToLower(v) + "%"
		query = query.Where(
			"LOWER(username) LIKE ? OR LOWER(email) LIKE ? OR LOWER(last_name) LIKE ?",
			pattern, pattern, pattern,
		)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("user service: count: %w", err)
	}

	var users []models.User
	err := query.
		Order("username").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&users).Error
	if err != nil {
		return nil, 0, fmt.Errorf("user service: list: %w", err)
	}
	return users, total, nil
}

// SetActive toggles the account's active flag.
func (s *UserService) SetActive(ctx context.Context, id string, active bool) error {
	ctx = ensureContext(ctx)

	res := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		Update("is_active", active)
	if res.Error != nil {
		return fmt.Errorf("user service: set active: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// RecordLogin stamps the last successful login time and address.
func (s *UserService) RecordLogin(ctx context.Context, id, ip string) error {
	ctx = ensureContext(ctx)

	now := time.Now()
	return s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_login_at": &now,
			"last_login_ip": strings.TrimSpace(ip),
		}).Error
}

// SyncDirectoryUser reconciles a successful directory login with the local
// user table and returns the up-to-date record. The match order is fixed:
// first by username, then by email with the username backfilled onto the
// matched record, and only then a fresh insert. A lost insert race surfaces
// as a uniqueness violation and is retried as a lookup.
func (s *UserService) SyncDirectoryUser(ctx context.Context, login string, entry directory.Entry) (*models.User, error) {
	ctx = ensureContext(ctx)

	username := normalizeLogin(login)
	if username == "" {
		return nil, errors.New("user service: login is required")
	}

	email := normalizeEmail(entry.Mail)
	if email == "" {
		// Entries without a mail attribute still need a unique address.
		email = normalizeEmail(entry.Principal)
	}

	lastName, firstName, middleName := directory.SplitCommonName(entry.CommonName)

	role, err := s.settings.ResolveRole(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("user service: resolve role: %w", err)
	}

	user, err := s.findDirectoryMatch(ctx, username, email)
	if err != nil {
		return nil, err
	}

	if user == nil {
		created, createErr := s.createDirectoryUser(ctx, username, email, firstName, lastName, middleName, role)
		if createErr == nil {
			return created, nil
		}
		if !isUniqueConstraintError(createErr) {
			return nil, createErr
		}
		// Another request provisioned the same account concurrently.
		user, err = s.findDirectoryMatch(ctx, username, email)
		if err != nil {
			return nil, err
		}
		if user == nil {
			return nil, fmt.Errorf("user service: provision %q: %w", username, createErr)
		}
	}

	if !user.IsActive {
		return nil, ErrUserInactive
	}

	updates := map[string]any{}
	if user.Username == "" {
		updates["username"] = username
	}
	if user.Email == "" && email != "" {
		updates["email"] = email
	}
	if lastName != "" && user.LastName != lastName {
		updates["last_name"] = lastName
	}
	if firstName != "" && user.FirstName != firstName {
		updates["first_name"] = firstName
	}
	if middleName != "" && user.MiddleName != middleName {
		updates["middle_name"] = middleName
	}
	if user.Role != role {
		updates["role"] = role
	}

	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(user).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("user service: sync update: %w", err)
		}
	}

	return s.GetByID(ctx, user.ID)
}

func (s *UserService) findDirectoryMatch(ctx context.Context, username, email string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Take(&user, "username = ?", username).Error
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("user service: match by username: %w", err)
	}

	if email == "" {
		return nil, nil
	}

	err = s.db.WithContext(ctx).Take(&user, "email = ?", email).Error
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("user service: match by email: %w", err)
	}
	return nil, nil
}

func (s *UserService) createDirectoryUser(ctx context.Context, username, email, firstName, lastName, middleName, role string) (*models.User, error) {
	user := models.User{
		Username:   username,
		Email:      email,
		FirstName:  firstName,
		LastName:   lastName,
		MiddleName: middleName,
		Role:       role,
		IsActive:   true,
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func normalizeLogin(login string) string {
	return strings.ToLower(strings.TrimSpace(login))
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
