package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/oitdesk/oitdesk/internal/notifications"
	"github.com/oitdesk/oitdesk/internal/services"
	appErrors "github.com/oitdesk/oitdesk/pkg/errors"
	"github.com/oitdesk/oitdesk/pkg/response"
)

// NotificationHandler serves the per-user notification endpoints and the
// websocket stream.
type NotificationHandler struct {
	notifications *services.NotificationService
	hub           *notifications.Hub
}

// NewNotificationHandler constructs a NotificationHandler. The hub may be nil
// when live streaming is disabled.
func NewNotificationHandler(svc *services.NotificationService, hub *notifications.Hub) (*NotificationHandler, error) {
	if svc == nil {
		return nil, errors.New("notification handler: notification service is required")
	}
	return &NotificationHandler{notifications: svc, hub: hub}, nil
}

// List returns the authenticated user's notifications.
func (h *NotificationHandler) List(c *gin.Context) {
	opts := services.NotificationListOptions{
		Page:       parseIntQuery(c, "page", 1),
		PageSize:   parseIntQuery(c, "page_size", 50),
		UnreadOnly: c.Query("unread") != "",
	}

	items, total, err := h.notifications.List(requestContext(c), currentUserID(c), opts)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, items, paginationMeta(opts.Page, opts.PageSize, total))
}

// UnreadCount returns the badge counter.
func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	count, err := h.notifications.UnreadCount(requestContext(c), currentUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"unread": count})
}

// MarkRead flags one notification as read.
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	h.mutate(c, func() error {
		return h.notifications.MarkRead(requestContext(c), currentUserID(c), c.Param("id"))
	})
}

// MarkUnread clears the read flag on one notification.
func (h *NotificationHandler) MarkUnread(c *gin.Context) {
	h.mutate(c, func() error {
		return h.notifications.MarkUnread(requestContext(c), currentUserID(c), c.Param("id"))
	})
}

// MarkAllRead flags every unread notification.
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	affected, err := h.notifications.MarkAllRead(requestContext(c), currentUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"marked": affected})
}

// Delete removes one notification.
func (h *NotificationHandler) Delete(c *gin.Context) {
	h.mutate(c, func() error {
		return h.notifications.Delete(requestContext(c), currentUserID(c), c.Param("id"))
	})
}

// Stream upgrades to a websocket and delivers notifications live.
func (h *NotificationHandler) Stream(c *gin.Context) {
	if h.hub == nil {
		response.Error(c, appErrors.ErrNotFound)
		return
	}
	h.hub.Serve(currentUserID(c), c.Writer, c.Request)
}

func (h *NotificationHandler) mutate(c *gin.Context, op func() error) {
	if err := op(); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.Error(c, appErrors.ErrNotFound)
			return
		}
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"ok": true})
}
