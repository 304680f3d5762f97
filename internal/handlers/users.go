package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/oitdesk/oitdesk/internal/services"
	appErrors "github.com/oitdesk/oitdesk/pkg/errors"
	"github.com/oitdesk/oitdesk/pkg/response"
)

// UserHandler serves the administrative user management endpoints.
type UserHandler struct {
	users *services.UserService
}

// NewUserHandler constructs a UserHandler.
func NewUserHandler(users *services.UserService) (*UserHandler, error) {
	if users == nil {
		return nil, errors.New("user handler: user service is required")
	}
	return &UserHandler{users: users}, nil
}

type createUserRequest struct {
	Username   string `json:"username" validate:"required,min=1,max=255"`
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"omitempty,min=8"`
	FirstName  string `json:"first_name" validate:"max=128"`
	LastName   string `json:"last_name" validate:"max=128"`
	MiddleName string `json:"middle_name" validate:"max=128"`
	Role       string `json:"role" validate:"omitempty,oneof=admin technician user"`
}

type updateUserRequest struct {
	Email      *string `json:"email" validate:"omitempty,email"`
	FirstName  *string `json:"first_name" validate:"omitempty,max=128"`
	LastName   *string `json:"last_name" validate:"omitempty,max=128"`
	MiddleName *string `json:"middle_name" validate:"omitempty,max=128"`
	Role       *string `json:"role" validate:"omitempty,oneof=admin technician user"`
	IsActive   *bool   `json:"is_active"`
}

// Create registers a local account. Admin only.
func (h *UserHandler) Create(c *gin.Context) {
	var req createUserRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.users.Create(requestContext(c), services.CreateUserInput{
		Username:   req.Username,
		Email:      req.Email,
		Password:   req.Password,
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		MiddleName: req.MiddleName,
		Role:       req.Role,
	})
	if err != nil {
		response.Error(c, appErrors.FromError(err))
		return
	}
	response.Success(c, http.StatusCreated, user)
}

// Get returns a single user. Admin only.
func (h *UserHandler) Get(c *gin.Context) {
	user, err := h.users.GetByID(requestContext(c), c.Param("id"))
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			response.Error(c, appErrors.ErrNotFound)
			return
		}
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, user)
}

// List returns users with filters and pagination. Admin only.
func (h *UserHandler) List(c *gin.Context) {
	opts := services.UserListOptions{
		Page:     parseIntQuery(c, "page", 1),
		PageSize: parseIntQuery(c, "page_size", 50),
		Filters: services.UserFilters{
			Role:   c.Query("role"),
			Search: c.Query("q"),
		},
	}
	if raw := strings.TrimSpace(c.Query("active")); raw != "" {
		active := raw == "1" || strings.EqualFold(raw, "true")
		opts.Filters.Active = &active
	}

	users, total, err := h.users.List(requestContext(c), opts)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, users, paginationMeta(opts.Page, opts.PageSize, total))
}

// Update applies partial profile changes. Admin only.
func (h *UserHandler) Update(c *gin.Context) {
	var req updateUserRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.users.Update(requestContext(c), c.Param("id"), services.UpdateUserInput{
		Email:      req.Email,
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		MiddleName: req.MiddleName,
		Role:       req.Role,
		IsActive:   req.IsActive,
	})
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			response.Error(c, appErrors.ErrNotFound)
			return
		}
		response.Error(c, appErrors.FromError(err))
		return
	}
	response.Success(c, http.StatusOK, user)
}

// SetActive activates or deactivates an account. Admin only; admins cannot
// deactivate themselves.
func (h *UserHandler) SetActive(c *gin.Context) {
	var req struct {
		Active bool `json:"active"`
	}
	if !bindAndValidate(c, &req) {
		return
	}

	id := c.Param("id")
	if !req.Active && id == currentUserID(c) {
		response.Error(c, appErrors.NewBadRequest("You cannot deactivate your own account"))
		return
	}

	if err := h.users.SetActive(requestContext(c), id, req.Active); err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			response.Error(c, appErrors.ErrNotFound)
			return
		}
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"active": req.Active})
}
