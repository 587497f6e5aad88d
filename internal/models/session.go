package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ChatSession represents one conversation, optionally attached to a canvas
type ChatSession struct {
	ID             string        `json:"id" gorm:"primaryKey;type:varchar(36)"`
	CanvasID       *string       `json:"canvas_id" gorm:"index;type:varchar(36)"`
	Title          *string       `json:"title" gorm:"type:varchar(255)"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
	LastActivityAt time.Time     `json:"last_activity_at" gorm:"index"`
	Messages       []ChatMessage `json:"-" gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE"`
}

// BeforeCreate generates the session id and seeds lastActivityAt
func (s *ChatSession) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	if s.LastActivityAt.IsZero() {
		s.LastActivityAt = time.Now()
	}
	return nil
}

// TableName overrides the table name
func (ChatSession) TableName() string {
	return "chat_sessions"
}
