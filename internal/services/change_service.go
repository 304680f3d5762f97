package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/oitdesk/oitdesk/internal/models"
	"github.com/oitdesk/oitdesk/pkg/logger"
)

// ErrChangeNotFound is returned for missing change requests.
var ErrChangeNotFound = errors.New("change service: change request not found")

// ErrChangeWorkflow is returned for an operation the workflow state forbids.
var ErrChangeWorkflow = errors.New("change service: operation not allowed in current status")

// CreateChangeInput describes a new change request draft.
type CreateChangeInput struct {
	Title       string
	Description string
	Risk        string
	RequesterID string
}

// ChangeFilters narrows List results.
type ChangeFilters struct {
	Status      string
	Risk        string
	RequesterID string
}

// ChangeListOptions controls pagination and filtering for change queries.
type ChangeListOptions struct {
	Page     int
	PageSize int
	Filters  ChangeFilters
}

// ChangeService owns the change request approval workflow.
type ChangeService struct {
	db            *gorm.DB
	notifications *NotificationService
}

// NewChangeService constructs a ChangeService. Notifications may be nil.
func NewChangeService(db *gorm.DB, notifications *NotificationService) (*ChangeService, error) {
	if db == nil {
		return nil, errors.New("change service: db is required")
	}
	return &ChangeService{db: db, notifications: notifications}, nil
}

// Create registers a draft change request.
func (s *ChangeService) Create(ctx context.Context, input CreateChangeInput) (*models.ChangeRequest, error) {
	ctx = ensureContext(ctx)

	if strings.TrimSpace(input.Title) == "" {
		return nil, errors.New("change service: title is required")
	}
	if strings.TrimSpace(input.RequesterID) == "" {
		return nil, errors.New("change service: requester is required")
	}

	risk := strings.TrimSpace(input.Risk)
	if risk == "" {
		risk = models.ChangeRiskLow
	}
	switch risk {
	case models.ChangeRiskLow, models.ChangeRiskMedium, models.ChangeRiskHigh:
	default:
		return nil, fmt.Errorf("change service: unknown risk %q", risk)
	}

	change := models.ChangeRequest{
		Title:       strings.TrimSpace(input.Title),
		Description: input.Description,
		Status:      models.ChangeStatusDraft,
		Risk:        risk,
		RequesterID: strings.TrimSpace(input.RequesterID),
	}
	if err := s.db.WithContext(ctx).Create(&change).Error; err != nil {
		return nil, fmt.Errorf("change service: create: %w", err)
	}
	return &change, nil
}

// Get loads a change request with its participants.
func (s *ChangeService) Get(ctx context.Context, id string) (*models.ChangeRequest, error) {
	ctx = ensureContext(ctx)

	var change models.ChangeRequest
	err := s.db.WithContext(ctx).
		Preload("Requester").
		Preload("Approver").
		Take(&change, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrChangeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("change service: get: %w", err)
	}
	return &change, nil
}

// Submit moves a draft into review. Only the requester may submit.
func (s *ChangeService) Submit(ctx context.Context, id, requesterID string) (*models.ChangeRequest, error) {
	ctx = ensureContext(ctx)

	change, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if change.RequesterID != requesterID {
		return nil, fmt.Errorf("%w: only the requester may submit", ErrChangeWorkflow)
	}
	if change.Status != models.ChangeStatusDraft {
		return nil, fmt.Errorf("%w: submit requires a draft", ErrChangeWorkflow)
	}

	now := time.Now()
	err = s.db.WithContext(ctx).Model(change).Updates(map[string]any{
		"status":       models.ChangeStatusSubmitted,
		"submitted_at": &now,
	}).Error
	if err != nil {
		return nil, fmt.Errorf("change service: submit: %w", err)
	}
	return s.Get(ctx, id)
}

// Decide approves or rejects a submitted change. Approvers cannot decide
// their own requests.
func (s *ChangeService) Decide(ctx context.Context, id, approverID string, approve bool, note string) (*models.ChangeRequest, error) {
	ctx = ensureContext(ctx)

	change, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if change.Status != models.ChangeStatusSubmitted {
		return nil, fmt.Errorf("%w: decision requires a submitted change", ErrChangeWorkflow)
	}
	if change.RequesterID == approverID {
		return nil, fmt.Errorf("%w: requester may not decide their own change", ErrChangeWorkflow)
	}

	status := models.ChangeStatusRejected
	if approve {
		status = models.ChangeStatusApproved
	}

	now := time.Now()
	err = s.db.WithContext(ctx).Model(change).Updates(map[string]any{
		"status":        status,
		"approver_id":   approverID,
		"decision_note": strings.TrimSpace(note),
		"decided_at":    &now,
	}).Error
	if err != nil {
		return nil, fmt.Errorf("change service: decide: %w", err)
	}

	s.notify(ctx, change.RequesterID, "change.decision",
		fmt.Sprintf("Change request %q was %s", change.Title, status),
		strings.TrimSpace(note), map[string]any{"change_id": change.ID, "status": status})

	return s.Get(ctx, id)
}

// MarkImplemented completes an approved change.
func (s *ChangeService) MarkImplemented(ctx context.Context, id string) (*models.ChangeRequest, error) {
	ctx = ensureContext(ctx)

	change, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if change.Status != models.ChangeStatusApproved {
		return nil, fmt.Errorf("%w: implementation requires approval", ErrChangeWorkflow)
	}

	now := time.Now()
	err = s.db.WithContext(ctx).Model(change).Updates(map[string]any{
		"status":         models.ChangeStatusImplemented,
		"implemented_at": &now,
	}).Error
	if err != nil {
		return nil, fmt.Errorf("change service: mark implemented: %w", err)
	}
	return s.Get(ctx, id)
}

// List returns paginated change requests ordered by creation time descending.
func (s *ChangeService) List(ctx context.Context, opts ChangeListOptions) ([]models.ChangeRequest, int64, error) {
	ctx = ensureContext(ctx)

	page, pageSize := normalizePage(opts.Page, opts.PageSize)

	query := s.db.WithContext(ctx).Model(&models.ChangeRequest{})
	if v := strings.TrimSpace(opts.Filters.Status); v != "" {
		query = query.Where("status = ?", v)
	}
	if v := strings.TrimSpace(opts.Filters.Risk); v != "" {
		query = query.Where("risk = ?", v)
	}
	if v := strings.TrimSpace(opts.Filters.RequesterID); v != "" {
		query = query.Where("requester_id = ?", v)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("change service: count: %w", err)
	}

	var changes []models.ChangeRequest
	err := query.
		Preload("Requester").
		Preload("Approver").
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&changes).Error
	if err != nil {
		return nil, 0, fmt.Errorf("change service: list: %w", err)
	}
	return changes, total, nil
}

func (s *ChangeService) notify(ctx context.Context, userID, kind, title, message string, metadata map[string]any) {
	if s.notifications == nil || strings.TrimSpace(userID) == "" {
		return
	}
	if _, err := s.notifications.Create(ctx, NotificationInput{
		UserID:   userID,
		Type:     kind,
		Title:    title,
		Message:  message,
		Metadata: metadata,
	}); err != nil {
		logger.Warn("change notification failed", zap.Error(err))
	}
}
