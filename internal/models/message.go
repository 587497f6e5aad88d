package models

import (
	"time"
)

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// FileAttachment describes a file referenced by a message
type FileAttachment struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Type string `json:"type,omitempty"`
	Size int64  `json:"size,omitempty"`
}

// ToolExecution records one tool/action invocation made during generation.
// Arrival order reflects invocation order and must be preserved.
type ToolExecution struct {
	Name   string         `json:"name"`
	Input  map[string]any `json:"input,omitempty"`
	Result string         `json:"result,omitempty"`
	Status string         `json:"status,omitempty"`
}

// ImageRef points at an image produced or referenced during generation
type ImageRef struct {
	ID  string `json:"id"`
	URL string `json:"url,omitempty"`
	Alt string `json:"alt,omitempty"`
}

// ChatMessage represents one turn in a session. Rows are append-only and are
// removed only when the owning session is deleted.
type ChatMessage struct {
	ID             uint             `json:"id" gorm:"primaryKey"`
	SessionID      string           `json:"session_id" gorm:"index;type:varchar(36);not null"`
	Role           string           `json:"role" gorm:"type:varchar(16);not null"`
	Content        string           `json:"content" gorm:"type:text"`
	Files          []FileAttachment `json:"files,omitempty" gorm:"serializer:json"`
	ToolExecutions []ToolExecution  `json:"tool_executions,omitempty" gorm:"serializer:json"`
	Images         []ImageRef       `json:"images,omitempty" gorm:"serializer:json"`
	CreatedAt      time.Time        `json:"created_at" gorm:"index"`
}

// TableName overrides the table name
func (ChatMessage) TableName() string {
	return "chat_messages"
}
