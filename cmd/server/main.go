package main

import (
	"context"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"ai-canvas-demo/backend/internal/models"
	"ai-canvas-demo/backend/internal/service"
	"ai-canvas-demo/backend/pkg/config"
	"ai-canvas-demo/backend/pkg/di"
	"ai-canvas-demo/backend/pkg/health"
	"ai-canvas-demo/backend/pkg/logger"
	"ai-canvas-demo/backend/pkg/router"
	"ai-canvas-demo/backend/pkg/secrets"
	"ai-canvas-demo/backend/shared/observability"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		stdlog.Println("No .env file found")
	}

	cfg := config.New()

	// Initialize structured logger
	logConfig := logger.DefaultConfig()
	logConfig.Level = cfg.Logging.Level
	logConfig.JSON = cfg.Logging.Format != "text"

	log := logger.New(logConfig)
	logger.SetGlobal(log)

	log.Info("Starting application", "version", os.Getenv("APP_VERSION"), "env", cfg.Server.Env)

	// Secrets manager falls back to environment variables when vault is
	// not configured
	if err := secrets.Init(log); err != nil {
		log.LogError(err, "Failed to initialize secrets manager")
		os.Exit(1)
	}
	ctx := context.Background()
	cfg.JWT.Secret = secrets.GetSecretWithDefault(ctx, "jwt_secret", cfg.JWT.Secret)
	cfg.Upstream.APIKey = secrets.GetSecretWithDefault(ctx, "ai_service_api_key", cfg.Upstream.APIKey)
	cfg.Security.AdminAPIKeyHash = secrets.GetSecretWithDefault(ctx, "admin_api_key_hash", cfg.Security.AdminAPIKeyHash)

	// Tracing and metrics
	shutdownTracing := observability.SetupTracing("canvas-chat-backend")
	defer shutdownTracing()
	observability.SetupPrometheusMetrics()

	// Initialize database
	db, err := config.NewDB()
	if err != nil {
		log.LogError(err, "Failed to initialize database")
		os.Exit(1)
	}

	// Auto-migrate the schema
	if err := db.AutoMigrate(&models.ChatSession{}, &models.ChatMessage{}, &models.OperationCheckpoint{}); err != nil {
		log.LogError(err, "Failed to migrate database")
		os.Exit(1)
	}

	// Create indexes for better query performance
	if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_messages_session_created ON chat_messages(session_id, created_at)").Error; err != nil {
		log.LogError(err, "Failed to create message index", "index", "idx_messages_session_created")
	}
	if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_sessions_last_activity ON chat_sessions(last_activity_at)").Error; err != nil {
		log.LogError(err, "Failed to create session index", "index", "idx_sessions_last_activity")
	}
	if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_checkpoints_op_updated ON operation_checkpoints(operation_id, updated_at)").Error; err != nil {
		log.LogError(err, "Failed to create checkpoint index", "index", "idx_checkpoints_op_updated")
	}

	// Initialize dependency injection container
	container := di.New(db, cfg, log)

	// Initialize and setup router
	r := router.New(container)
	r.SetupRoutes()

	// Add OpenAPI validation if schema file is available
	schemaPath := os.Getenv("OPENAPI_SCHEMA_PATH")
	if schemaPath != "" {
		r.AddOpenAPIValidation(schemaPath)
	}

	// Periodic component health checks
	checker := health.NewChecker(log, 30*time.Second)
	checker.RegisterDatabaseCheck(func() error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Ping()
	})
	if container.SnapshotCache != nil {
		checker.RegisterRedisCheck(container.SnapshotCache.Ping)
	}
	checker.RegisterAPICheck("executor", cfg.Upstream.BaseURL+"/health", nil)
	checker.Start()
	r.Engine.GET("/health/components", gin.WrapF(checker.HTTPHandler()))

	// Background sweep of inactive sessions
	cleanupCtx, stopCleanup := context.WithCancel(context.Background())
	go runSessionCleanup(cleanupCtx, container.SessionService, cfg.Sessions.CleanupInterval, cfg.Sessions.MaxAge, log)

	// Create HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r.Engine,
	}

	// Start the server in a goroutine
	go func() {
		log.Info("Server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.LogError(err, "Server failed to start")
			os.Exit(1)
		}
	}()

	// Setup graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Block until we receive a signal
	<-quit
	log.Info("Shutting down server...")
	stopCleanup()

	// Create a deadline to wait for
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Shutdown the server
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.LogError(err, "Server forced to shutdown")
	}

	log.Info("Server exited gracefully")
}

// runSessionCleanup deletes inactive sessions on a fixed interval until the
// context is cancelled
func runSessionCleanup(ctx context.Context, sessions *service.SessionService, interval, maxAge time.Duration, log *logger.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := sessions.CleanupInactive(ctx, maxAge)
			if err != nil {
				log.LogError(err, "Session cleanup sweep failed")
				continue
			}
			if deleted > 0 {
				log.Info("Session cleanup sweep completed", "deleted", deleted)
			}
		}
	}
}
