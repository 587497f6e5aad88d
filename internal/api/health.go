package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"ai-canvas-demo/backend/pkg/logger"
)

// HealthController reports process and dependency health
type HealthController struct {
	db        *gorm.DB
	log       *logger.Logger
	startedAt time.Time
}

// NewHealthController creates a new health controller
func NewHealthController(db *gorm.DB, log *logger.Logger) *HealthController {
	return &HealthController{db: db, log: log, startedAt: time.Now()}
}

// RegisterRoutes registers the health endpoints
func (c *HealthController) RegisterRoutes(router *gin.Engine) {
	router.GET("/health", c.Liveness)
	router.GET("/health/live", c.Liveness)
	router.GET("/health/ready", c.Readiness)
}

// Liveness reports that the process is up
func (c *HealthController) Liveness(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(c.startedAt).Round(time.Second).String(),
	})
}

// Readiness verifies the database is reachable before reporting ready
func (c *HealthController) Readiness(ctx *gin.Context) {
	sqlDB, err := c.db.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx.Request.Context())
	}
	if err != nil {
		c.log.LogError(err, "readiness check failed")
		ctx.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "unavailable",
			"database": "down",
		})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"status":   "ready",
		"database": "up",
	})
}
