package api

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	iauth "github.com/oitdesk/oitdesk/internal/auth"
	"github.com/oitdesk/oitdesk/internal/handlers"
	"github.com/oitdesk/oitdesk/internal/middleware"
	"github.com/oitdesk/oitdesk/internal/models"
	"github.com/oitdesk/oitdesk/internal/notifications"
	"github.com/oitdesk/oitdesk/internal/services"
)

// Deps bundles everything the router needs.
type Deps struct {
	DB        *gorm.DB
	JWT       *iauth.JWTService
	Sessions  *iauth.SessionService
	RateStore middleware.RateStore

	// Auth handler knobs.
	DirectoryFactory handlers.DirectoryFactory
	DirectoryTimeout time.Duration
	SecureCookies    bool
}

// NewRouter builds the Gin engine, wires middleware and registers all routes.
func NewRouter(deps Deps) (*gin.Engine, error) {
	if deps.DB == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if deps.JWT == nil {
		return nil, fmt.Errorf("jwt service must be provided")
	}
	if deps.Sessions == nil {
		return nil, fmt.Errorf("session service must be provided")
	}

	settingsService, err := services.NewSettingsService(deps.DB)
	if err != nil {
		return nil, err
	}
	userService, err := services.NewUserService(deps.DB, settingsService)
	if err != nil {
		return nil, err
	}
	auditService, err := services.NewAuditService(deps.DB)
	if err != nil {
		return nil, err
	}
	hub := notifications.NewHub()
	notificationService, err := services.NewNotificationService(deps.DB, hub)
	if err != nil {
		return nil, err
	}
	ticketService, err := services.NewTicketService(deps.DB, notificationService)
	if err != nil {
		return nil, err
	}
	changeService, err := services.NewChangeService(deps.DB, notificationService)
	if err != nil {
		return nil, err
	}
	articleService, err := services.NewArticleService(deps.DB)
	if err != nil {
		return nil, err
	}

	rateStore := deps.RateStore
	if rateStore == nil {
		rateStore = middleware.NewMemoryRateStore()
	}

	r := gin.New()

	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.RateLimit(rateStore, 100, time.Minute))

	r.GET("/health", handlers.NewHealthHandler(deps.DB).Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authHandler, err := handlers.NewAuthHandler(handlers.AuthHandlerConfig{
		Users:            userService,
		Settings:         settingsService,
		Audit:            auditService,
		Sessions:         deps.Sessions,
		Limiter:          middleware.NewLoginLimiter(rateStore, 5, 10*time.Minute),
		Directory:        deps.DirectoryFactory,
		DirectoryTimeout: deps.DirectoryTimeout,
		SecureCookies:    deps.SecureCookies,
	})
	if err != nil {
		return nil, err
	}

	// Public auth routes. The origin guard covers the credential endpoints.
	auth := r.Group("/api/auth")
	{
		auth.POST("/ldap-login", middleware.OriginGuard(), authHandler.LDAPLogin)
		auth.POST("/login", middleware.OriginGuard(), authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
	}

	requireAuth := middleware.Auth(deps.JWT)
	requireStaff := middleware.RequireRole(models.RoleAdmin, models.RoleTechnician)
	requireAdmin := middleware.RequireRole(models.RoleAdmin)

	api := r.Group("/api")
	api.Use(requireAuth)

	api.GET("/auth/me", authHandler.Me)
	api.POST("/auth/logout", authHandler.Logout)

	ticketHandler, err := handlers.NewTicketHandler(ticketService)
	if err != nil {
		return nil, err
	}
	tickets := api.Group("/tickets")
	{
		tickets.GET("", ticketHandler.List)
		tickets.POST("", ticketHandler.Create)
		tickets.GET("/:id", ticketHandler.Get)
		tickets.PATCH("/:id", requireStaff, ticketHandler.Update)
		tickets.POST("/:id/status", requireStaff, ticketHandler.ChangeStatus)
		tickets.POST("/:id/comments", ticketHandler.AddComment)
	}

	changeHandler, err := handlers.NewChangeHandler(changeService)
	if err != nil {
		return nil, err
	}
	changes := api.Group("/changes")
	{
		changes.GET("", changeHandler.List)
		changes.POST("", changeHandler.Create)
		changes.GET("/:id", changeHandler.Get)
		changes.POST("/:id/submit", changeHandler.Submit)
		changes.POST("/:id/decide", requireStaff, changeHandler.Decide)
		changes.POST("/:id/implemented", requireStaff, changeHandler.MarkImplemented)
	}

	articleHandler, err := handlers.NewArticleHandler(articleService)
	if err != nil {
		return nil, err
	}
	articles := api.Group("/articles")
	{
		articles.GET("", articleHandler.List)
		articles.GET("/:id", articleHandler.Get)
		articles.POST("", requireStaff, articleHandler.Create)
		articles.PATCH("/:id", requireStaff, articleHandler.Update)
		articles.POST("/:id/publish", requireStaff, articleHandler.SetPublished)
		articles.DELETE("/:id", requireStaff, articleHandler.Delete)
	}

	notificationHandler, err := handlers.NewNotificationHandler(notificationService, hub)
	if err != nil {
		return nil, err
	}
	notificationRoutes := api.Group("/notifications")
	{
		notificationRoutes.GET("", notificationHandler.List)
		notificationRoutes.GET("/unread-count", notificationHandler.UnreadCount)
		notificationRoutes.GET("/stream", notificationHandler.Stream)
		notificationRoutes.POST("/read-all", notificationHandler.MarkAllRead)
		notificationRoutes.POST("/:id/read", notificationHandler.MarkRead)
		notificationRoutes.POST("/:id/unread", notificationHandler.MarkUnread)
		notificationRoutes.DELETE("/:id", notificationHandler.Delete)
	}

	userHandler, err := handlers.NewUserHandler(userService)
	if err != nil {
		return nil, err
	}
	users := api.Group("/users", requireAdmin)
	{
		users.GET("", userHandler.List)
		users.POST("", userHandler.Create)
		users.GET("/:id", userHandler.Get)
		users.PATCH("/:id", userHandler.Update)
		users.POST("/:id/active", userHandler.SetActive)
	}

	auditHandler, err := handlers.NewAuditHandler(auditService)
	if err != nil {
		return nil, err
	}
	api.GET("/audit", requireAdmin, auditHandler.List)

	settingsHandler, err := handlers.NewSettingsHandler(settingsService)
	if err != nil {
		return nil, err
	}
	settingsRoutes := api.Group("/settings", requireAdmin)
	{
		settingsRoutes.GET("", settingsHandler.List)
		settingsRoutes.GET("/:key", settingsHandler.Get)
		settingsRoutes.PUT("", settingsHandler.Upsert)
		settingsRoutes.DELETE("/:key", settingsHandler.Delete)
	}

	return r, nil
}
