package models

import (
	"time"
)

// Operation statuses. The set is open-ended at the storage layer; the
// tracker only enforces transitions between these four.
const (
	OperationPending   = "pending"
	OperationRunning   = "running"
	OperationCompleted = "completed"
	OperationFailed    = "failed"
)

// CheckpointState is the free-form progress payload carried by a checkpoint
type CheckpointState struct {
	CurrentStep  int        `json:"current_step"`
	TotalSteps   int        `json:"total_steps"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CardsCreated []string   `json:"cards_created,omitempty"`
	Error        string     `json:"error,omitempty"`
}

// OperationCheckpoint is one durable progress snapshot for a long-running
// operation. Rows are append-only; the current checkpoint for an operation
// is the row with the greatest updated_at.
type OperationCheckpoint struct {
	ID          uint            `json:"id" gorm:"primaryKey"`
	OperationID string          `json:"operation_id" gorm:"index;type:varchar(36);not null"`
	Status      string          `json:"status" gorm:"type:varchar(16);not null"`
	State       CheckpointState `json:"state" gorm:"serializer:json"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" gorm:"index"`
}

// TableName overrides the table name
func (OperationCheckpoint) TableName() string {
	return "operation_checkpoints"
}

// Terminal reports whether the checkpoint carries a terminal status
func (c *OperationCheckpoint) Terminal() bool {
	return c.Status == OperationCompleted || c.Status == OperationFailed
}
