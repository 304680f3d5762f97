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
	"github.com/oitdesk/oitdesk/pkg/metrics"
)

// ErrTicketNotFound is returned for missing tickets.
var ErrTicketNotFound = errors.New("ticket service: ticket not found")

// ErrInvalidTransition is returned for a status change the lifecycle forbids.
var ErrInvalidTransition = errors.New("ticket service: invalid status transition")

// Ticket lifecycle: open -> in_progress -> resolved -> closed, with reopening
// allowed from resolved and direct closing allowed from any active state.
var ticketTransitions = map[string][]string{
	models.TicketStatusOpen:       {models.TicketStatusInProgress, models.TicketStatusResolved, models.TicketStatusClosed},
	models.TicketStatusInProgress: {models.TicketStatusOpen, models.TicketStatusResolved, models.TicketStatusClosed},
	models.TicketStatusResolved:   {models.TicketStatusInProgress, models.TicketStatusClosed},
	models.TicketStatusClosed:     {},
}

// CreateTicketInput describes a new ticket.
type CreateTicketInput struct {
	Title       string
	Description string
	Priority    string
	Category    string
	RequesterID string
}

// UpdateTicketInput carries optional ticket changes. Nil fields are untouched.
type UpdateTicketInput struct {
	Title       *string
	Description *string
	Priority    *string
	Category    *string
	AssigneeID  *string
}

// TicketFilters narrows List results.
type TicketFilters struct {
	Status      string
	Priority    string
	RequesterID string
	AssigneeID  string
	Search      string
}

// TicketListOptions controls pagination and filtering for ticket queries.
type TicketListOptions struct {
	Page     int
	PageSize int
	Filters  TicketFilters
}

// TicketService owns the helpdesk ticket lifecycle.
type TicketService struct {
	db            *gorm.DB
	notifications *NotificationService
}

// NewTicketService constructs a TicketService. Notifications may be nil.
func NewTicketService(db *gorm.DB, notifications *NotificationService) (*TicketService, error) {
	if db == nil {
		return nil, errors.New("ticket service: db is required")
	}
	return &TicketService{db: db, notifications: notifications}, nil
}

// Create opens a new ticket.
func (s *TicketService) Create(ctx context.Context, input CreateTicketInput) (*models.Ticket, error) {
	ctx = ensureContext(ctx)

	if strings.TrimSpace(input.Title) == "" {
		return nil, errors.New("ticket service: title is required")
	}
	if strings.TrimSpace(input.RequesterID) == "" {
		return nil, errors.New("ticket service: requester is required")
	}

	priority := strings.TrimSpace(input.Priority)
	if priority == "" {
		priority = models.TicketPriorityMedium
	}
	if !validTicketPriority(priority) {
		return nil, fmt.Errorf("ticket service: unknown priority %q", priority)
	}

	ticket := models.Ticket{
		Title:       strings.TrimSpace(input.Title),
		Description: input.Description,
		Status:      models.TicketStatusOpen,
		Priority:    priority,
		Category:    strings.TrimSpace(input.Category),
		RequesterID: strings.TrimSpace(input.RequesterID),
	}

	if err := s.db.WithContext(ctx).Create(&ticket).Error; err != nil {
		return nil, fmt.Errorf("ticket service: create: %w", err)
	}

	metrics.TicketsCreated.WithLabelValues(priority).Inc()
	return &ticket, nil
}

// Get loads a ticket with its requester, assignee, and comments.
func (s *TicketService) Get(ctx context.Context, id string) (*models.Ticket, error) {
	ctx = ensureContext(ctx)

	var ticket models.Ticket
	err := s.db.WithContext(ctx).
		Preload("Requester").
		Preload("Assignee").
		Preload("Comments", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at")
		}).
		Preload("Comments.Author").
		Take(&ticket, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTicketNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ticket service: get: %w", err)
	}
	return &ticket, nil
}

// GetByNumber loads a ticket by its human-facing sequence number.
func (s *TicketService) GetByNumber(ctx context.Context, number uint) (*models.Ticket, error) {
	ctx = ensureContext(ctx)

	var ticket models.Ticket
	err := s.db.WithContext(ctx).Take(&ticket, "number = ?", number).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTicketNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ticket service: get by number: %w", err)
	}
	return &ticket, nil
}

// Update applies partial ticket changes and notifies a newly set assignee.
func (s *TicketService) Update(ctx context.Context, id string, input UpdateTicketInput) (*models.Ticket, error) {
	ctx = ensureContext(ctx)

	ticket, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if input.Title != nil && strings.TrimSpace(*input.Title) != "" {
		updates["title"] = strings.TrimSpace(*input.Title)
	}
	if input.Description != nil {
		updates["description"] = *input.Description
	}
	if input.Priority != nil {
		priority := strings.TrimSpace(*input.Priority)
		if !validTicketPriority(priority) {
			return nil, fmt.Errorf("ticket service: unknown priority %q", priority)
		}
		updates["priority"] = priority
	}
	if input.Category != nil {
		updates["category"] = strings.TrimSpace(*input.Category)
	}

	var newAssignee string
	if input.AssigneeID != nil {
		assignee := strings.TrimSpace(*input.AssigneeID)
		if assignee == "" {
			updates["assignee_id"] = nil
		} else {
			updates["assignee_id"] = assignee
			if ticket.AssigneeID == nil || *ticket.AssigneeID != assignee {
				newAssignee = assignee
			}
		}
	}

	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(&models.Ticket{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("ticket service: update: %w", err)
		}
	}

	if newAssignee != "" {
		s.notify(ctx, newAssignee, "ticket.assigned",
			fmt.Sprintf("Ticket #%d assigned to you", ticket.Number),
			ticket.Title, map[string]any{"ticket_id": ticket.ID})
	}

	return s.Get(ctx, id)
}

// ChangeStatus moves a ticket through its lifecycle, stamping resolution and
// closing times, and notifies the requester.
func (s *TicketService) ChangeStatus(ctx context.Context, id, status string) (*models.Ticket, error) {
	ctx = ensureContext(ctx)

	ticket, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	status = strings.TrimSpace(status)
	if !transitionAllowed(ticket.Status, status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, ticket.Status, status)
	}

	now := time.Now()
	updates := map[string]any{"status": status}
	switch status {
	case models.TicketStatusResolved:
		updates["resolved_at"] = &now
	case models.TicketStatusClosed:
		updates["closed_at"] = &now
		if ticket.ResolvedAt == nil {
			updates["resolved_at"] = &now
		}
	case models.TicketStatusOpen, models.TicketStatusInProgress:
		updates["resolved_at"] = nil
		updates["closed_at"] = nil
	}

	if err := s.db.WithContext(ctx).Model(&models.Ticket{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("ticket service: change status: %w", err)
	}

	s.notify(ctx, ticket.RequesterID, "ticket.status",
		fmt.Sprintf("Ticket #%d is now %s", ticket.Number, status),
		ticket.Title, map[string]any{"ticket_id": ticket.ID, "status": status})

	return s.Get(ctx, id)
}

// AddComment appends a comment and notifies the other party on the ticket.
func (s *TicketService) AddComment(ctx context.Context, ticketID, authorID, body string, internal bool) (*models.TicketComment, error) {
	ctx = ensureContext(ctx)

	if strings.TrimSpace(body) == "" {
		return nil, errors.New("ticket service: comment body is required")
	}

	ticket, err := s.Get(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Status == models.TicketStatusClosed {
		return nil, fmt.Errorf("%w: closed tickets do not accept comments", ErrInvalidTransition)
	}

	comment := models.TicketComment{
		TicketID: ticket.ID,
		AuthorID: strings.TrimSpace(authorID),
		Body:     body,
		Internal: internal,
	}
	if err := s.db.WithContext(ctx).Create(&comment).Error; err != nil {
		return nil, fmt.Errorf("ticket service: add comment: %w", err)
	}

	// Internal notes stay between technicians.
	if !internal && ticket.RequesterID != comment.AuthorID {
		s.notify(ctx, ticket.RequesterID, "ticket.comment",
			fmt.Sprintf("New comment on ticket #%d", ticket.Number),
			ticket.Title, map[string]any{"ticket_id": ticket.ID})
	}
	if ticket.AssigneeID != nil && *ticket.AssigneeID != comment.AuthorID {
		s.notify(ctx, *ticket.AssigneeID, "ticket.comment",
			fmt.Sprintf("New comment on ticket #%d", ticket.Number),
			ticket.Title, map[string]any{"ticket_id": ticket.ID})
	}

	return &comment, nil
}

// List returns paginated tickets ordered by creation time descending.
func (s *TicketService) List(ctx context.Context, opts TicketListOptions) ([]models.Ticket, int64, error) {
	ctx = ensureContext(ctx)

	page, pageSize := normalizePage(opts.Page, opts.PageSize)

	query := s.db.WithContext(ctx).Model(&models.Ticket{})
	if v := strings.TrimSpace(opts.Filters.Status); v != "" {
		query = query.Where("status = ?", v)
	}
	if v := strings.TrimSpace(opts.Filters.Priority); v != "" {
		query = query.Where("priority = ?", v)
	}
	if v := strings.TrimSpace(opts.Filters.RequesterID); v != "" {
		query = query.Where("requester_id = ?", v)
	}
	if v := strings.TrimSpace(opts.Filters.AssigneeID); v != "" {
		query = query.Where("assignee_id = ?", v)
	}
	if v := strings.TrimSpace(opts.Filters.Search); v != "" {
		pattern := "%" + strings.ToLower(v) + "%"
		query = query.Where("LOWER(title) LIKE ? OR LOWER(description) LIKE ?", pattern, pattern)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("ticket service: count: %w", err)
	}

	var tickets []models.Ticket
	err := query.
		Preload("Requester").
		Preload("Assignee").
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&tickets).Error
	if err != nil {
		return nil, 0, fmt.Errorf("ticket service: list: %w", err)
	}
	return tickets, total, nil
}

func (s *TicketService) notify(ctx context.Context, userID, kind, title, message string, metadata map[string]any) {
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
		logger.Warn("ticket notification failed", zap.Error(err))
	}
}

func transitionAllowed(from, to string) bool {
	for _, candidate := range ticketTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

func validTicketPriority(priority string) bool {
	switch priority {
	case models.TicketPriorityLow, models.TicketPriorityMedium, models.TicketPriorityHigh, models.TicketPriorityCritical:
		return true
	}
	return false
}
