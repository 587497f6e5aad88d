package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ai-canvas-demo/backend/internal/models"
	"ai-canvas-demo/backend/internal/service"
	"ai-canvas-demo/backend/pkg/logger"
)

// OperationsController exposes read access to operation progress and an
// internal write path for checkpoint reports.
type OperationsController struct {
	checkpoints *service.CheckpointService
	log         *logger.Logger
}

// NewOperationsController creates a new operations controller
func NewOperationsController(checkpoints *service.CheckpointService, log *logger.Logger) *OperationsController {
	return &OperationsController{checkpoints: checkpoints, log: log}
}

// RegisterRoutes registers the operation routes. adminGuard protects the
// checkpoint write path, which only trusted workers should reach.
func (c *OperationsController) RegisterRoutes(router *gin.Engine, adminGuard gin.HandlerFunc) {
	ops := router.Group("/api/operations")
	{
		ops.GET("/:operationId/status", c.GetStatus)
		ops.POST("/:operationId/checkpoints", adminGuard, c.RecordCheckpoint)
	}
}

// GetStatus returns the derived status of an operation
func (c *OperationsController) GetStatus(ctx *gin.Context) {
	operationID := ctx.Param("operationId")

	status, err := c.checkpoints.Status(ctx.Request.Context(), operationID)
	if err != nil {
		if errors.Is(err, service.ErrOperationNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "operation not found"})
			return
		}
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load operation status"})
		return
	}
	ctx.JSON(http.StatusOK, status)
}

type recordCheckpointRequest struct {
	Status       string     `json:"status" binding:"required"`
	CurrentStep  int        `json:"current_step"`
	TotalSteps   int        `json:"total_steps"`
	StartedAt    *time.Time `json:"started_at"`
	CardsCreated []string   `json:"cards_created"`
	Error        string     `json:"error"`
}

// RecordCheckpoint appends a progress report for an operation. Reports that
// would move status backward are acknowledged without effect.
func (c *OperationsController) RecordCheckpoint(ctx *gin.Context) {
	operationID := ctx.Param("operationId")

	var req recordCheckpointRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "status is required"})
		return
	}
	if req.CurrentStep < 0 || req.TotalSteps < 0 {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "steps must be non-negative"})
		return
	}

	state := models.CheckpointState{
		CurrentStep:  req.CurrentStep,
		TotalSteps:   req.TotalSteps,
		StartedAt:    req.StartedAt,
		CardsCreated: req.CardsCreated,
		Error:        req.Error,
	}

	applied, err := c.checkpoints.Record(ctx.Request.Context(), operationID, req.Status, state)
	if err != nil {
		if errors.Is(err, service.ErrInvalidStatus) {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "unknown status: " + req.Status})
			return
		}
		if errors.Is(err, service.ErrInvalidState) {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "current_step must not exceed total_steps"})
			return
		}
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record checkpoint"})
		return
	}
	if !applied {
		ctx.JSON(http.StatusAccepted, gin.H{"operation_id": operationID, "applied": false})
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"operation_id": operationID, "applied": true})
}
