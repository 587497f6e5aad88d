package router

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"ai-canvas-demo/backend/internal/api"
	"ai-canvas-demo/backend/pkg/config"
	"ai-canvas-demo/backend/pkg/di"
	"ai-canvas-demo/backend/pkg/errors"
	"ai-canvas-demo/backend/pkg/logger"
	"ai-canvas-demo/backend/pkg/middleware"
)

// Router is the main router for the application
type Router struct {
	Engine    *gin.Engine
	Container *di.Container
	Logger    *logger.Logger
	Config    *config.Config
}

// New creates a new router with the given container
func New(container *di.Container) *Router {
	// Use the container's logger
	logger.SetGlobal(container.Logger)

	cfg := container.Config

	// Configure Gin mode based on environment
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()

	if len(cfg.Security.TrustedProxies) > 0 {
		_ = engine.SetTrustedProxies(cfg.Security.TrustedProxies)
	}

	// Request id first, so the logger middleware can pick it up
	engine.Use(middleware.RequestIDMiddleware())
	engine.Use(middleware.ContextPropagationMiddleware())
	engine.Use(logger.Middleware(container.Logger))

	// Add custom error handler middleware
	engine.Use(errors.ErrorHandler())

	// Add custom recovery middleware with structured logging instead of default
	engine.Use(errors.RecoveryWithLogger())

	// Rate limit per client IP
	rateLimiter := middleware.NewRateLimiter(container.Logger, middleware.RateLimiterOptions{
		Limit:          rate.Limit(cfg.Security.RateLimit),
		Burst:          cfg.Security.RateLimitBurst,
		ExpiryDuration: time.Hour,
		KeyFunc: func(c *gin.Context) string {
			return c.ClientIP()
		},
	})
	engine.Use(rateLimiter.Middleware())

	return &Router{
		Engine:    engine,
		Container: container,
		Logger:    container.Logger,
		Config:    cfg,
	}
}

// SetupRoutes registers all application routes
func (r *Router) SetupRoutes() {
	r.Engine.Use(r.corsMiddleware())

	adminGuard := api.AdminAuthMiddleware(r.Config.Security.AdminAPIKeyHash, r.Logger)

	chatController := api.NewChatController(
		r.Container.SessionService,
		r.Container.RelayService,
		r.Container.AIClient,
		r.Container.JWTService,
		r.Config.Sessions.HistoryLimit,
		r.Logger,
	)
	operationsController := api.NewOperationsController(r.Container.CheckpointService, r.Logger)
	healthController := api.NewHealthController(r.Container.DB, r.Logger)

	chatController.RegisterRoutes(r.Engine, adminGuard)
	operationsController.RegisterRoutes(r.Engine, adminGuard)
	healthController.RegisterRoutes(r.Engine)

	r.setupMetricsRoute()
}

// corsMiddleware handles cross-origin requests. The streaming endpoint needs
// its response headers exposed so browser clients can read the session and
// operation ids.
func (r *Router) corsMiddleware() gin.HandlerFunc {
	allowed := r.Config.Security.AllowedOrigins

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		switch {
		case origin == "":
			// same-origin or non-browser client
		case originAllowed(origin, allowed):
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Vary", "Origin")
		default:
			if c.Request.Method == "OPTIONS" {
				c.AbortWithStatus(403)
				return
			}
		}

		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Authorization, Cache-Control, X-Request-ID, "+api.AdminAPIKeyHeader)
		c.Writer.Header().Set("Access-Control-Expose-Headers", "X-Request-ID, X-Session-Id, X-Operation-Id")
		c.Writer.Header().Set("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

func originAllowed(origin string, allowed []string) bool {
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}
