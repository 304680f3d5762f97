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

// Settings values that must never be echoed back to the admin screen.
var maskedSettings = map[string]struct{}{
	"ldapUserPassword": {},
}

// SettingsHandler serves the admin settings endpoints.
type SettingsHandler struct {
	settings *services.SettingsService
}

// NewSettingsHandler constructs a SettingsHandler.
func NewSettingsHandler(settings *services.SettingsService) (*SettingsHandler, error) {
	if settings == nil {
		return nil, errors.New("settings handler: settings service is required")
	}
	return &SettingsHandler{settings: settings}, nil
}

// List returns all settings with secrets masked.
func (h *SettingsHandler) List(c *gin.Context) {
	values, err := h.settings.GetAll(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	for key := range values {
		if _, masked := maskedSettings[key]; masked && values[key] != "" {
			values[key] = "********"
		}
	}
	response.Success(c, http.StatusOK, values)
}

// Get returns a single setting by key, masked when sensitive.
func (h *SettingsHandler) Get(c *gin.Context) {
	key := strings.TrimSpace(c.Param("key"))
	value, err := h.settings.Get(requestContext(c), key)
	if err != nil {
		response.Error(c, err)
		return
	}
	if _, masked := maskedSettings[key]; masked && value != "" {
		value = "********"
	}
	response.Success(c, http.StatusOK, gin.H{"key": key, "value": value})
}

// Upsert stores the submitted key/value pairs. Masked placeholder values are
// skipped so a round-tripped form does not overwrite stored secrets.
func (h *SettingsHandler) Upsert(c *gin.Context) {
	var req map[string]string
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.NewBadRequest("invalid JSON payload"))
		return
	}
	if len(req) == 0 {
		response.Error(c, appErrors.NewBadRequest("no settings supplied"))
		return
	}

	values := make(map[string]string, len(req))
	for key, value := range req {
		key = strings.TrimSpace(key)
		if key == "" {
			response.Error(c, appErrors.NewBadRequest("settings keys must not be empty"))
			return
		}
		if _, masked := maskedSettings[key]; masked && value == "********" {
			continue
		}
		values[key] = value
	}

	if err := h.settings.SetMany(requestContext(c), values); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"updated": len(values)})
}

// Delete removes one setting by key.
func (h *SettingsHandler) Delete(c *gin.Context) {
	if err := h.settings.Delete(requestContext(c), c.Param("key")); err != nil {
		response.Error(c, appErrors.FromError(err))
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}
