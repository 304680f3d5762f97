package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/oitdesk/oitdesk/internal/services"
	"github.com/oitdesk/oitdesk/pkg/response"
)

// AuditHandler serves the activity log endpoints. Admin only.
type AuditHandler struct {
	audit *services.AuditService
}

// NewAuditHandler constructs an AuditHandler.
func NewAuditHandler(audit *services.AuditService) (*AuditHandler, error) {
	if audit == nil {
		return nil, errors.New("audit handler: audit service is required")
	}
	return &AuditHandler{audit: audit}, nil
}

// List returns activity rows with filters and pagination.
func (h *AuditHandler) List(c *gin.Context) {
	opts := services.AuditListOptions{
		Page:     parseIntQuery(c, "page", 1),
		PageSize: parseIntQuery(c, "page_size", 50),
		Filters: services.AuditFilters{
			UserID:   c.Query("user_id"),
			Username: c.Query("username"),
			Action:   c.Query("action"),
			Status:   c.Query("status"),
			Since:    parseTimeQuery(c, "since"),
			Until:    parseTimeQuery(c, "until"),
		},
	}

	rows, total, err := h.audit.List(requestContext(c), opts)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, rows, paginationMeta(opts.Page, opts.PageSize, total))
}

func parseTimeQuery(c *gin.Context, key string) *time.Time {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil
	}
	return &parsed
}
