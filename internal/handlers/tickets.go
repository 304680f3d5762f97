package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/oitdesk/oitdesk/internal/services"
	appErrors "github.com/oitdesk/oitdesk/pkg/errors"
	"github.com/oitdesk/oitdesk/pkg/response"
)

// TicketHandler serves the helpdesk ticket endpoints.
type TicketHandler struct {
	tickets *services.TicketService
}

// NewTicketHandler constructs a TicketHandler.
func NewTicketHandler(tickets *services.TicketService) (*TicketHandler, error) {
	if tickets == nil {
		return nil, errors.New("ticket handler: ticket service is required")
	}
	return &TicketHandler{tickets: tickets}, nil
}

type createTicketRequest struct {
	Title       string `json:"title" validate:"required,min=1,max=255"`
	Description string `json:"description" validate:"max=65535"`
	Priority    string `json:"priority" validate:"omitempty,oneof=low medium high critical"`
	Category    string `json:"category" validate:"max=128"`
}

type updateTicketRequest struct {
	Title       *string `json:"title" validate:"omitempty,min=1,max=255"`
	Description *string `json:"description" validate:"omitempty,max=65535"`
	Priority    *string `json:"priority" validate:"omitempty,oneof=low medium high critical"`
	Category    *string `json:"category" validate:"omitempty,max=128"`
	AssigneeID  *string `json:"assignee_id"`
}

type changeTicketStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=open in_progress resolved closed"`
}

type addCommentRequest struct {
	Body     string `json:"body" validate:"required,min=1,max=65535"`
	Internal bool   `json:"internal"`
}

// Create opens a ticket on behalf of the authenticated user.
func (h *TicketHandler) Create(c *gin.Context) {
	var req createTicketRequest
	if !bindAndValidate(c, &req) {
		return
	}

	ticket, err := h.tickets.Create(requestContext(c), services.CreateTicketInput{
		Title:       req.Title,
		Description: req.Description,
		Priority:    req.Priority,
		Category:    req.Category,
		RequesterID: currentUserID(c),
	})
	if err != nil {
		response.Error(c, appErrors.NewBadRequest(err.Error()))
		return
	}
	response.Success(c, http.StatusCreated, ticket)
}

// Get returns a single ticket with its comments. Requesters only see their
// own tickets; staff see everything, including internal comments.
func (h *TicketHandler) Get(c *gin.Context) {
	ticket, err := h.tickets.Get(requestContext(c), c.Param("id"))
	if err != nil {
		if errors.Is(err, services.ErrTicketNotFound) {
			response.Error(c, appErrors.ErrNotFound)
			return
		}
		response.Error(c, err)
		return
	}

	if !isStaff(c) {
		if ticket.RequesterID != currentUserID(c) {
			response.Error(c, appErrors.ErrForbidden)
			return
		}
		visible := ticket.Comments[:0]
		for _, comment := range ticket.Comments {
			if !comment.Internal {
				visible = append(visible, comment)
			}
		}
		ticket.Comments = visible
	}

	response.Success(c, http.StatusOK, ticket)
}

// List returns tickets with filters and pagination. Non-staff users are
// restricted to their own tickets.
func (h *TicketHandler) List(c *gin.Context) {
	opts := services.TicketListOptions{
		Page:     parseIntQuery(c, "page", 1),
		PageSize: parseIntQuery(c, "page_size", 50),
		Filters: services.TicketFilters{
			Status:     c.Query("status"),
			Priority:   c.Query("priority"),
			AssigneeID: c.Query("assignee_id"),
			Search:     c.Query("q"),
		},
	}
	if isStaff(c) {
		opts.Filters.RequesterID = c.Query("requester_id")
	} else {
		opts.Filters.RequesterID = currentUserID(c)
	}

	tickets, total, err := h.tickets.List(requestContext(c), opts)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, tickets, paginationMeta(opts.Page, opts.PageSize, total))
}

// Update applies partial changes. Staff only.
func (h *TicketHandler) Update(c *gin.Context) {
	var req updateTicketRequest
	if !bindAndValidate(c, &req) {
		return
	}

	ticket, err := h.tickets.Update(requestContext(c), c.Param("id"), services.UpdateTicketInput{
		Title:       req.Title,
		Description: req.Description,
		Priority:    req.Priority,
		Category:    req.Category,
		AssigneeID:  req.AssigneeID,
	})
	if err != nil {
		if errors.Is(err, services.ErrTicketNotFound) {
			response.Error(c, appErrors.ErrNotFound)
			return
		}
		response.Error(c, appErrors.NewBadRequest(err.Error()))
		return
	}
	response.Success(c, http.StatusOK, ticket)
}

// ChangeStatus moves the ticket through its lifecycle. Staff only.
func (h *TicketHandler) ChangeStatus(c *gin.Context) {
	var req changeTicketStatusRequest
	if !bindAndValidate(c, &req) {
		return
	}

	ticket, err := h.tickets.ChangeStatus(requestContext(c), c.Param("id"), req.Status)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrTicketNotFound):
			response.Error(c, appErrors.ErrNotFound)
		case errors.Is(err, services.ErrInvalidTransition):
			response.Error(c, appErrors.NewBadRequest(err.Error()))
		default:
			response.Error(c, err)
		}
		return
	}
	response.Success(c, http.StatusOK, ticket)
}

// AddComment appends a comment to the ticket. Internal comments require a
// staff role.
func (h *TicketHandler) AddComment(c *gin.Context) {
	var req addCommentRequest
	if !bindAndValidate(c, &req) {
		return
	}
	if req.Internal && !isStaff(c) {
		response.Error(c, appErrors.ErrForbidden)
		return
	}

	comment, err := h.tickets.AddComment(requestContext(c), c.Param("id"), currentUserID(c), req.Body, req.Internal)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrTicketNotFound):
			response.Error(c, appErrors.ErrNotFound)
		case errors.Is(err, services.ErrInvalidTransition):
			response.Error(c, appErrors.NewBadRequest(err.Error()))
		default:
			response.Error(c, err)
		}
		return
	}
	response.Success(c, http.StatusCreated, comment)
}

func paginationMeta(page, pageSize int, total int64) *response.Meta {
	totalPages := int(total) / pageSize
	if int(total)%pageSize != 0 {
		totalPages++
	}
	return &response.Meta{
		Page:       page,
		PerPage:    pageSize,
		Total:      int(total),
		TotalPages: totalPages,
	}
}
