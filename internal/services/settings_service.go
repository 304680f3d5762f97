package services

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/oitdesk/oitdesk/internal/auth/directory"
	"github.com/oitdesk/oitdesk/internal/database"
	"github.com/oitdesk/oitdesk/internal/models"
)

// Role allow-list settings keys. Both hold comma-separated email lists; the
// role is recomputed from them on every directory login.
const (
	SettingAdminEmails      = "adminEmails"
	SettingTechnicianEmails = "technicianEmails"
)

// SettingsService reads and writes installation-wide settings.
type SettingsService struct {
	db *gorm.DB
}

// NewSettingsService constructs a SettingsService.
func NewSettingsService(db *gorm.DB) (*SettingsService, error) {
	if db == nil {
		return nil, errors.New("settings service: db is required")
	}
	return &SettingsService{db: db}, nil
}

// Get returns the raw value of a single setting, empty when absent.
func (s *SettingsService) Get(ctx context.Context, key string) (string, error) {
	return database.GetSystemSetting(ensureContext(ctx), s.db, key)
}

// GetAll returns every stored setting as a key/value map.
func (s *SettingsService) GetAll(ctx context.Context) (map[string]string, error) {
	rows, err := database.ListSystemSettings(ensureContext(ctx), s.db)
	if err != nil {
		return nil, err
	}

	out := make(map[string]string, len(rows))
	for _, row := range rows {
		out[row.Key] = row.Value
	}
	return out, nil
}

// Set stores a single setting value.
func (s *SettingsService) Set(ctx context.Context, key, value string) error {
	return database.UpsertSystemSetting(ensureContext(ctx), s.db, key, value)
}

// SetMany stores multiple settings atomically.
func (s *SettingsService) SetMany(ctx context.Context, values map[string]string) error {
	ctx = ensureContext(ctx)

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for key, value := range values {
			if err := database.UpsertSystemSetting(ctx, tx, key, value); err != nil {
				return err
			}
		}
		return nil
	})
}

// DirectoryConfig assembles the LDAP connection configuration from stored
// settings. The returned config is not validated here; callers decide whether
// missing fields are an error.
func (s *SettingsService) DirectoryConfig(ctx context.Context) (directory.Config, error) {
	rows, err := database.ListSystemSettings(ensureContext(ctx), s.db)
	if err != nil {
		return directory.Config{}, err
	}
	return directory.ParseSettings(rows), nil
}

// ResolveRole computes the role for an email address from the allow-list
// settings. Unknown addresses get the regular user role.
func (s *SettingsService) ResolveRole(ctx context.Context, email string) (string, error) {
	ctx = ensureContext(ctx)

	admins, err := s.Get(ctx, SettingAdminEmails)
	if err != nil {
		return "", err
	}
	if containsFold(splitList(admins), email) {
		return models.RoleAdmin, nil
	}

	technicians, err := s.Get(ctx, SettingTechnicianEmails)
	if err != nil {
		return "", err
	}
	if containsFold(splitList(technicians), email) {
		return models.RoleTechnician, nil
	}

	return models.RoleUser, nil
}

// Delete removes a setting row. Missing keys are not an error.
func (s *SettingsService) Delete(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("settings service: key is required")
	}
	return s.db.WithContext(ensureContext(ctx)).
		Where("key = ?", key).
		Delete(&models.SystemSetting{}).Error
}
