package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/oitdesk/oitdesk/internal/models"
)

// Broadcaster pushes a freshly created notification to connected clients.
// The websocket hub implements it; a nil broadcaster disables live delivery.
type Broadcaster interface {
	Broadcast(userID string, notification *models.Notification)
}

// NotificationInput describes a notification to create.
type NotificationInput struct {
	UserID   string
	Type     string
	Title    string
	Message  string
	Severity string
	Metadata map[string]any
}

// NotificationListOptions controls notification queries.
type NotificationListOptions struct {
	Page       int
	PageSize   int
	UnreadOnly bool
}

// NotificationService persists notifications and forwards them to the hub.
type NotificationService struct {
	db          *gorm.DB
	broadcaster Broadcaster
}

// NewNotificationService constructs a NotificationService. The broadcaster
// may be nil.
func NewNotificationService(db *gorm.DB, broadcaster Broadcaster) (*NotificationService, error) {
	if db == nil {
		return nil, errors.New("notification service: db is required")
	}
	return &NotificationService{db: db, broadcaster: broadcaster}, nil
}

// Create stores a notification and pushes it to the owner's live stream.
func (s *NotificationService) Create(ctx context.Context, input NotificationInput) (*models.Notification, error) {
	ctx = ensureContext(ctx)

	if strings.TrimSpace(input.UserID) == "" {
		return nil, errors.New("notification service: user id is required")
	}
	if strings.TrimSpace(input.Title) == "" {
		return nil, errors.New("notification service: title is required")
	}

	severity := strings.TrimSpace(input.Severity)
	if severity == "" {
		severity = "info"
	}

	notification := models.Notification{
		UserID:   strings.TrimSpace(input.UserID),
		Type:     strings.TrimSpace(input.Type),
		Title:    strings.TrimSpace(input.Title),
		Message:  input.Message,
		Severity: severity,
	}

	if input.Metadata != nil {
		encoded, err := json.Marshal(input.Metadata)
		if err != nil {
			return nil, fmt.Errorf("notification service: marshal metadata: %w", err)
		}
		notification.Metadata = datatypes.JSON(encoded)
	}

	if err := s.db.WithContext(ctx).Create(&notification).Error; err != nil {
		return nil, fmt.Errorf("notification service: create: %w", err)
	}

	if s.broadcaster != nil {
		s.broadcaster.Broadcast(notification.UserID, &notification)
	}
	return &notification, nil
}

// List returns the user's notifications, newest first.
func (s *NotificationService) List(ctx context.Context, userID string, opts NotificationListOptions) ([]models.Notification, int64, error) {
	ctx = ensureContext(ctx)

	page, pageSize := normalizePage(opts.Page, opts.PageSize)

	query := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ?", userID)
	if opts.UnreadOnly {
		query = query.Where("is_read = ?", false)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("notification service: count: %w", err)
	}

	var notifications []models.Notification
	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&notifications).Error
	if err != nil {
		return nil, 0, fmt.Errorf("notification service: list: %w", err)
	}
	return notifications, total, nil
}

// UnreadCount reports how many notifications the user has not read.
func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int64, error) {
	ctx = ensureContext(ctx)

	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("notification service: unread count: %w", err)
	}
	return count, nil
}

// MarkRead flags a single notification as read. The user scope prevents
// cross-account reads.
func (s *NotificationService) MarkRead(ctx context.Context, userID, id string) error {
	return s.setRead(ctx, userID, id, true)
}

// MarkUnread clears the read flag on a single notification.
func (s *NotificationService) MarkUnread(ctx context.Context, userID, id string) error {
	return s.setRead(ctx, userID, id, false)
}

func (s *NotificationService) setRead(ctx context.Context, userID, id string, read bool) error {
	ctx = ensureContext(ctx)

	updates := map[string]any{"is_read": read}
	if read {
		now := time.Now()
		updates["read_at"] = &now
	} else {
		updates["read_at"] = nil
	}

	res := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("notification service: mark read: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// MarkAllRead flags every unread notification for the user.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	ctx = ensureContext(ctx)

	now := time.Now()
	res := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Updates(map[string]any{"is_read": true, "read_at": &now})
	if res.Error != nil {
		return 0, fmt.Errorf("notification service: mark all read: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// Delete removes a notification owned by the user.
func (s *NotificationService) Delete(ctx context.Context, userID, id string) error {
	ctx = ensureContext(ctx)

	res := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&models.Notification{})
	if res.Error != nil {
		return fmt.Errorf("notification service: delete: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
