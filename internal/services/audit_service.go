package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/oitdesk/oitdesk/internal/models"
)

// AuditEntry captures a single activity event to persist.
type AuditEntry struct {
	UserID    *string
	Username  string
	Action    string
	Status    string
	Message   string
	IPAddress string
	UserAgent string
}

// AuditFilters encapsulates optional filters when querying the activity log.
type AuditFilters struct {
	UserID   string
	Username string
	Action   string
	Status   string
	Since    *time.Time
	Until    *time.Time
}

// AuditListOptions controls pagination and filtering for activity queries.
type AuditListOptions struct {
	Page     int
	PageSize int
	Filters  AuditFilters
}

// AuditService persists and retrieves activity log entries.
type AuditService struct {
	db *gorm.DB
}

// NewAuditService constructs an AuditService using the provided database handle.
func NewAuditService(db *gorm.DB) (*AuditService, error) {
	if db == nil {
		return nil, errors.New("audit service: db is required")
	}
	return &AuditService{db: db}, nil
}

// Log stores exactly one activity row for the entry.
func (s *AuditService) Log(ctx context.Context, entry AuditEntry) error {
	ctx = ensureContext(ctx)

	if strings.TrimSpace(entry.Action) == "" {
		return errors.New("audit service: action is required")
	}
	if strings.TrimSpace(entry.Status) == "" {
		return errors.New("audit service: status is required")
	}

	username := strings.TrimSpace(entry.Username)
	if username == "" {
		// Failed attempts that never matched a record still produce a row.
		username = "unknown"
	}

	row := models.ActivityLog{
		Username:  username,
		Action:    strings.TrimSpace(entry.Action),
		Status:    strings.TrimSpace(entry.Status),
		Message:   entry.Message,
		IPAddress: strings.TrimSpace(entry.IPAddress),
		UserAgent: strings.TrimSpace(entry.UserAgent),
	}

	if entry.UserID != nil && strings.TrimSpace(*entry.UserID) != "" {
		id := strings.TrimSpace(*entry.UserID)
		row.UserID = &id
	}

	return s.db.WithContext(ctx).Create(&row).Error
}

// List returns paginated activity rows ordered by creation time descending.
func (s *AuditService) List(ctx context.Context, opts AuditListOptions) ([]models.ActivityLog, int64, error) {
	ctx = ensureContext(ctx)

	page, pageSize := normalizePage(opts.Page, opts.PageSize)

	var (
		results []models.ActivityLog
		total   int64
	)

	query := s.db.WithContext(ctx).Model(&models.ActivityLog{})
	query = applyAuditFilters(query, opts.Filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("audit service: count rows: %w", err)
	}

	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&results).Error
	if err != nil {
		return nil, 0, fmt.Errorf("audit service: list rows: %w", err)
	}

	return results, total, nil
}

// CleanupOlderThan removes activity rows older than the retention cutoff and
// reports how many were deleted.
func (s *AuditService) CleanupOlderThan(ctx context.Context, retention time.Duration) (int64, error) {
	ctx = ensureContext(ctx)

	if retention <= 0 {
		return 0, nil
	}

	cutoff := time.Now().Add(-retention)
	res := s.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&models.ActivityLog{})
	if res.Error != nil {
		return 0, fmt.Errorf("audit service: cleanup: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func applyAuditFilters(query *gorm.DB, filters AuditFilters) *gorm.DB {
	if v := strings.TrimSpace(filters.UserID); v != "" {
		query = query.Where("user_id = ?", v)
	}
	if v := strings.TrimSpace(filters.Username); v != "" {
		query = query.Where("username = ?", v)
	}
	if v := strings.TrimSpace(filters.Action); v != "" {
		query = query.Where("action = ?", v)
	}
	if v := strings.TrimSpace(filters.Status); v != "" {
		query = query.Where("status = ?", v)
	}
	if filters.Since != nil {
		query = query.Where("created_at >= ?", *filters.Since)
	}
	if filters.Until != nil {
		query = query.Where("created_at <= ?", *filters.Until)
	}
	return query
}
