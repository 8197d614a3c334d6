package main

import (
	"github.com/gin-gonic/gin"

	"github.com/aranticlabs/bugpin/backend/internal/handlers"
	"github.com/aranticlabs/bugpin/backend/internal/middleware"
	"github.com/aranticlabs/bugpin/backend/internal/models"
	"github.com/aranticlabs/bugpin/backend/internal/services"
	"github.com/aranticlabs/bugpin/backend/pkg/logger"
)

// registerRoutes sets up all HTTP routes on the given Gin engine.
func registerRoutes(r *gin.Engine, svc *appServices) {
	// Middleware
	r.Use(logger.GinLogger(), logger.GinRecovery())
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false
	r.Use(middleware.CORS())

	// Rate limiters for routes open to the outside. Webhooks are bucketed
	// per integration, intake per client IP.
	webhookLimiter := middleware.NewRateLimiter(10, 20)
	webhookKey := func(c *gin.Context) string { return "integration:" + c.Param("id") }
	intakeLimiter := middleware.NewRateLimiter(5, 10)

	// Health and metrics
	healthHandler := handlers.NewHealthHandler(svc.taskQueue)
	r.GET("/health", healthHandler.CheckHealth)
	metricsHandler := handlers.NewMetricsHandler(svc.taskQueue)
	r.GET("/metrics", metricsHandler.Metrics)

	// Locally stored report attachments
	r.Static("/uploads", svc.cfg.Storage.Dir)

	// Root-level webhook route (without /api prefix for compatibility)
	rootWebhook := r.Group("", webhookLimiter.MiddlewareWithKey(webhookKey))
	{
		rootWebhook.POST("/webhooks/github/:id", svc.webhookHandler.HandleGitHub)
	}

	reportHandler := handlers.NewReportHandler(models.GetDB(), svc.attachmentService, svc.syncService, svc.taskQueue)

	// API routes
	api := r.Group("/api")
	{
		// Auth routes (public)
		auth := api.Group("/auth")
		{
			auth.POST("/login", svc.authHandler.Login)
			auth.POST("/refresh", svc.authHandler.Refresh)
			auth.GET("/config", svc.authHandler.GetAuthConfig)
		}

		// Widget intake (public, scoped by project token, rate limited)
		widget := api.Group("/widget", intakeLimiter.Middleware())
		{
			widget.POST("/reports", reportHandler.CreateFromWidget)
		}

		// SSE stream for sync updates (token validated inside the handler,
		// EventSource cannot send an Authorization header)
		sseHandler := handlers.NewSSEHandler(services.GetSSEHub())
		api.GET("/events/sync", sseHandler.StreamSyncEvents)

		// Protected routes
		protected := api.Group("")
		protected.Use(middleware.AuthRequired())
		{
			// Auth
			protected.GET("/auth/me", svc.authHandler.GetCurrentUser)
			protected.POST("/auth/logout", svc.authHandler.Logout)
			protected.POST("/auth/change-password", svc.authHandler.ChangePassword)

			// Dashboard (all users)
			dashboardHandler := handlers.NewDashboardHandler(models.GetDB())
			protected.GET("/dashboard/stats", dashboardHandler.GetStats)

			// Projects (read for all users)
			projectHandler := handlers.NewProjectHandler(models.GetDB())
			protected.GET("/projects", projectHandler.List)
			protected.GET("/projects/:id", projectHandler.GetByID)

			// Reports (read for all users)
			protected.GET("/reports", reportHandler.List)
			protected.GET("/reports/:id", reportHandler.GetByID)

			// Integrations (read for all users)
			integrationHandler := handlers.NewIntegrationHandler(models.GetDB(), svc.attachmentService)
			protected.GET("/integrations", integrationHandler.List)
			protected.GET("/integrations/:id", integrationHandler.GetByID)

			// Sync status (read for all users)
			syncHandler := handlers.NewSyncHandler(models.GetDB(), svc.syncService, svc.taskQueue)
			protected.GET("/projects/:id/sync-status", syncHandler.SyncStatus)
		}

		// Admin only routes
		admin := api.Group("")
		admin.Use(middleware.AuthRequired(), middleware.AdminRequired(), middleware.AuditLog())
		{
			// Projects (write operations)
			projectHandler := handlers.NewProjectHandler(models.GetDB())
			admin.POST("/projects", projectHandler.Create)
			admin.PUT("/projects/:id", projectHandler.Update)
			admin.POST("/projects/:id/regenerate-token", projectHandler.RegenerateToken)
			admin.DELETE("/projects/:id", projectHandler.Delete)

			// Reports (write operations)
			admin.PUT("/reports/:id", reportHandler.Update)
			admin.DELETE("/reports/:id", reportHandler.Delete)

			// Integrations
			integrationHandler := handlers.NewIntegrationHandler(models.GetDB(), svc.attachmentService)
			admin.POST("/integrations", integrationHandler.Create)
			admin.PUT("/integrations/:id", integrationHandler.Update)
			admin.DELETE("/integrations/:id", integrationHandler.Delete)
			admin.POST("/integrations/test", integrationHandler.TestConfig)
			admin.POST("/integrations/:id/test", integrationHandler.TestConnection)
			admin.GET("/integrations/:id/repositories", integrationHandler.ListRepositories)
			admin.GET("/integrations/:id/labels", integrationHandler.ListLabels)
			admin.GET("/integrations/:id/assignees", integrationHandler.ListAssignees)

			// Sync operations
			syncHandler := handlers.NewSyncHandler(models.GetDB(), svc.syncService, svc.taskQueue)
			admin.PUT("/integrations/:id/sync-mode", syncHandler.SetSyncMode)
			admin.POST("/projects/:id/sync", syncHandler.EnqueueSync)
			admin.POST("/reports/:id/sync", syncHandler.SyncReport)
			admin.POST("/reports/:id/retry-sync", syncHandler.RetrySync)

			// Users
			userHandler := handlers.NewUserHandler(models.GetDB())
			admin.GET("/users", userHandler.List)
			admin.PUT("/users/:id", userHandler.Update)
			admin.DELETE("/users/:id", userHandler.Delete)

			// System Logs
			systemLogHandler := handlers.NewSystemLogHandler(models.GetDB())
			admin.GET("/system-logs", systemLogHandler.List)
			admin.GET("/system-logs/modules", systemLogHandler.GetModules)
			admin.GET("/system-logs/retention", systemLogHandler.GetRetentionDays)
			admin.PUT("/system-logs/retention", systemLogHandler.SetRetentionDays)
			admin.POST("/system-logs/cleanup", systemLogHandler.Cleanup)

			// System Config
			systemConfigHandler := handlers.NewSystemConfigHandler(models.GetDB())
			admin.GET("/system-config/ldap", systemConfigHandler.GetLDAPConfig)
			admin.PUT("/system-config/ldap", systemConfigHandler.UpdateLDAPConfig)
			admin.GET("/system-config/auth-session", systemConfigHandler.GetAuthSessionConfig)
			admin.PUT("/system-config/auth-session", systemConfigHandler.UpdateAuthSessionConfig)
			admin.GET("/system-config/sync", systemConfigHandler.GetSyncSettings)
			admin.PUT("/system-config/sync", systemConfigHandler.UpdateSyncSettings)
		}

		// Webhook routes (public with signature verification, rate limited)
		apiWebhook := api.Group("", webhookLimiter.MiddlewareWithKey(webhookKey))
		{
			apiWebhook.POST("/webhooks/github/:id", svc.webhookHandler.HandleGitHub)
		}
	}
}
