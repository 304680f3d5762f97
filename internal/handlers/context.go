package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/oitdesk/oitdesk/internal/middleware"
	"github.com/oitdesk/oitdesk/internal/models"
)

// requestContext safely returns the request context with a background fallback for tests.
func requestContext(c *gin.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if req := c.Request; req != nil {
		return req.Context()
	}
	return context.Background()
}

func currentUserID(c *gin.Context) string {
	return c.GetString(middleware.CtxUserIDKey)
}

func currentRole(c *gin.Context) string {
	return c.GetString(middleware.CtxUserRoleKey)
}

func currentSessionID(c *gin.Context) string {
	return c.GetString(middleware.CtxSessionIDKey)
}

func isStaff(c *gin.Context) bool {
	role := currentRole(c)
	return role == models.RoleAdmin || role == models.RoleTechnician
}
