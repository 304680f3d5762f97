package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/oitdesk/oitdesk/internal/services"
	appErrors "github.com/oitdesk/oitdesk/pkg/errors"
	"github.com/oitdesk/oitdesk/pkg/response"
)

// ChangeHandler serves the change request workflow endpoints.
type ChangeHandler struct {
	changes *services.ChangeService
}

// NewChangeHandler constructs a ChangeHandler.
func NewChangeHandler(changes *services.ChangeService) (*ChangeHandler, error) {
	if changes == nil {
		return nil, errors.New("change handler: change service is required")
	}
	return &ChangeHandler{changes: changes}, nil
}

type createChangeRequest struct {
	Title       string `json:"title" validate:"required,min=1,max=255"`
	Description string `json:"description" validate:"max=65535"`
	Risk        string `json:"risk" validate:"omitempty,oneof=low medium high"`
}

type decideChangeRequest struct {
	Approve bool   `json:"approve"`
	Note    string `json:"note" validate:"max=4096"`
}

// Create registers a draft change request.
func (h *ChangeHandler) Create(c *gin.Context) {
	var req createChangeRequest
	if !bindAndValidate(c, &req) {
		return
	}

	change, err := h.changes.Create(requestContext(c), services.CreateChangeInput{
		Title:       req.Title,
		Description: req.Description,
		Risk:        req.Risk,
		RequesterID: currentUserID(c),
	})
	if err != nil {
		response.Error(c, appErrors.NewBadRequest(err.Error()))
		return
	}
	response.Success(c, http.StatusCreated, change)
}

// Get returns a single change request.
func (h *ChangeHandler) Get(c *gin.Context) {
	change, err := h.changes.Get(requestContext(c), c.Param("id"))
	if err != nil {
		if errors.Is(err, services.ErrChangeNotFound) {
			response.Error(c, appErrors.ErrNotFound)
			return
		}
		response.Error(c, err)
		return
	}

	if !isStaff(c) && change.RequesterID != currentUserID(c) {
		response.Error(c, appErrors.ErrForbidden)
		return
	}
	response.Success(c, http.StatusOK, change)
}

// List returns change requests. Non-staff users see only their own.
func (h *ChangeHandler) List(c *gin.Context) {
	opts := services.ChangeListOptions{
		Page:     parseIntQuery(c, "page", 1),
		PageSize: parseIntQuery(c, "page_size", 50),
		Filters: services.ChangeFilters{
			Status: c.Query("status"),
			Risk:   c.Query("risk"),
		},
	}
	if isStaff(c) {
		opts.Filters.RequesterID = c.Query("requester_id")
	} else {
		opts.Filters.RequesterID = currentUserID(c)
	}

	changes, total, err := h.changes.List(requestContext(c), opts)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, changes, paginationMeta(opts.Page, opts.PageSize, total))
}

// Submit moves a draft into review.
func (h *ChangeHandler) Submit(c *gin.Context) {
	change, err := h.changes.Submit(requestContext(c), c.Param("id"), currentUserID(c))
	if err != nil {
		h.workflowError(c, err)
		return
	}
	response.Success(c, http.StatusOK, change)
}

// Decide approves or rejects a submitted change. Staff only (enforced by
// the route's role middleware); self-approval is rejected by the service.
func (h *ChangeHandler) Decide(c *gin.Context) {
	var req decideChangeRequest
	if !bindAndValidate(c, &req) {
		return
	}

	change, err := h.changes.Decide(requestContext(c), c.Param("id"), currentUserID(c), req.Approve, req.Note)
	if err != nil {
		h.workflowError(c, err)
		return
	}
	response.Success(c, http.StatusOK, change)
}

// MarkImplemented completes an approved change. Staff only.
func (h *ChangeHandler) MarkImplemented(c *gin.Context) {
	change, err := h.changes.MarkImplemented(requestContext(c), c.Param("id"))
	if err != nil {
		h.workflowError(c, err)
		return
	}
	response.Success(c, http.StatusOK, change)
}

func (h *ChangeHandler) workflowError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrChangeNotFound):
		response.Error(c, appErrors.ErrNotFound)
	case errors.Is(err, services.ErrChangeWorkflow):
		response.Error(c, appErrors.NewBadRequest(err.Error()))
	default:
		response.Error(c, err)
	}
}
