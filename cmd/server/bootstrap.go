package main

import (
	"github.com/aranticlabs/bugpin/backend/internal/config"
	"github.com/aranticlabs/bugpin/backend/internal/handlers"
	"github.com/aranticlabs/bugpin/backend/internal/models"
	"github.com/aranticlabs/bugpin/backend/internal/services"
	"github.com/aranticlabs/bugpin/backend/internal/utils"
	"github.com/aranticlabs/bugpin/backend/pkg/logger"
)

// appServices holds all initialized services and handlers needed by the application.
type appServices struct {
	cfg               *config.Config
	syncService       *services.SyncService
	taskQueue         services.TaskQueue
	reconciler        *services.SyncReconciler
	attachmentService *services.AttachmentService
	authHandler       *handlers.AuthHandler
	webhookHandler    *handlers.WebhookHandler
}

// bootstrap initializes all application dependencies: database, services, schedulers.
func bootstrap(cfg *config.Config) *appServices {
	utils.SetJWTSecret(cfg.JWT.Secret)

	// Initialize database
	if err := models.InitDB(&cfg.Database); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	// Auto migrate database
	if err := models.AutoMigrate(); err != nil {
		logger.Fatalf("Failed to migrate database: %v", err)
	}

	// Seed default data
	if err := models.SeedDefaultData(); err != nil {
		logger.Warn().Err(err).Msg("Failed to seed default data")
	}

	// Initialize system logger
	services.InitSystemLogger(models.GetDB())

	// Start system log cleanup scheduler
	services.StartLogCleanupScheduler(models.GetDB())

	db := models.GetDB()
	configService := services.NewSystemConfigService(db)
	attachmentService := services.NewAttachmentService(db, cfg.Storage.Dir, configService)

	syncService := services.NewSyncService(
		services.NewIntegrationService(db),
		services.NewReportService(db),
		attachmentService,
		configService,
	)

	// Task queue (uses Redis if enabled, otherwise the in-memory queue)
	taskQueue := services.NewTaskQueue(cfg, syncService.SyncReport)
	if err := taskQueue.Start(); err != nil {
		logger.Fatalf("Failed to start task queue: %v", err)
	}

	// Reconciler re-queues reports stuck in pending
	reconciler := services.NewSyncReconciler(db, taskQueue, configService)
	reconciler.StartScheduler()

	// Create default admin user
	authHandler := handlers.NewAuthHandler(db, cfg)
	if err := authHandler.CreateAdminIfNotExists(); err != nil {
		logger.Warn().Err(err).Msg("Failed to create admin user")
	}

	return &appServices{
		cfg:               cfg,
		syncService:       syncService,
		taskQueue:         taskQueue,
		reconciler:        reconciler,
		attachmentService: attachmentService,
		authHandler:       authHandler,
		webhookHandler:    handlers.NewWebhookHandler(db, syncService),
	}
}

// shutdown gracefully stops all services.
func (s *appServices) shutdown() {
	s.reconciler.StopScheduler()
	services.StopLogCleanupScheduler()
	logger.Info().Msg("All schedulers stopped")

	if s.taskQueue != nil {
		s.taskQueue.Close()
	}
}
