package service

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"ai-canvas-demo/backend/internal/models"
	"ai-canvas-demo/backend/pkg/logger"
)

// Sentinel errors surfaced by the session store
var (
	ErrSessionNotFound = errors.New("session not found")
)

// DefaultHistoryLimit caps history reads when the caller does not specify one
const DefaultHistoryLimit = 50

// MessageMeta carries the structured payloads attached to a message
type MessageMeta struct {
	Files          []models.FileAttachment
	ToolExecutions []models.ToolExecution
	Images         []models.ImageRef
}

// SessionService is the durable log of conversation turns
type SessionService struct {
	db  *gorm.DB
	log *logger.Logger
}

// NewSessionService creates a new session service
func NewSessionService(db *gorm.DB, log *logger.Logger) *SessionService {
	return &SessionService{db: db, log: log}
}

// CreateSession creates a session, optionally attached to a canvas
func (s *SessionService) CreateSession(ctx context.Context, canvasID *string) (*models.ChatSession, error) {
	session := &models.ChatSession{CanvasID: canvasID}
	if err := s.db.WithContext(ctx).Create(session).Error; err != nil {
		return nil, err
	}
	return session, nil
}

// GetSession fetches a session by id
func (s *SessionService) GetSession(ctx context.Context, sessionID string) (*models.ChatSession, error) {
	var session models.ChatSession
	if err := s.db.WithContext(ctx).First(&session, "id = ?", sessionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return &session, nil
}

// SetTitle stores a display title for the session. Returns
// ErrSessionNotFound for an unknown id.
func (s *SessionService) SetTitle(ctx context.Context, sessionID, title string) error {
	res := s.db.WithContext(ctx).
		Model(&models.ChatSession{}).
		Where("id = ?", sessionID).
		Update("title", title)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// AppendMessage durably appends one turn and refreshes the session's
// last_activity_at. Returns ErrSessionNotFound for an unknown session.
// Messages are append-only; nothing here ever mutates an existing row.
func (s *SessionService) AppendMessage(ctx context.Context, sessionID, role, content string, meta *MessageMeta) (*models.ChatMessage, error) {
	msg := &models.ChatMessage{
		SessionID: sessionID,
		Role:      role,
		Content:   content,
	}
	if meta != nil {
		msg.Files = meta.Files
		msg.ToolExecutions = meta.ToolExecutions
		msg.Images = meta.Images
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.ChatSession{}).
			Where("id = ?", sessionID).
			Update("last_activity_at", time.Now())
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrSessionNotFound
		}
		return tx.Create(msg).Error
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// GetHistory returns messages ordered by creation time ascending, capped at
// limit. An unknown or empty session yields an empty slice, not an error.
func (s *SessionService) GetHistory(ctx context.Context, sessionID string, limit int) ([]models.ChatMessage, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	var msgs []models.ChatMessage
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

// DeleteSession removes a session and all its messages in one transaction.
// Returns ErrSessionNotFound when the id does not exist, so a repeated
// delete is reported rather than silently ignored.
func (s *SessionService) DeleteSession(ctx context.Context, sessionID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", sessionID).Delete(&models.ChatMessage{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", sessionID).Delete(&models.ChatSession{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrSessionNotFound
		}
		return nil
	})
}

// CleanupInactive deletes every session whose last_activity_at is older than
// maxAge, cascading messages, and returns the count deleted. The cutoff is
// applied against the live column inside the transaction, so a session that
// receives an append mid-sweep is retained.
func (s *SessionService) CleanupInactive(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().Add(-maxAge)

	var deleted int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where(
			"session_id IN (?)",
			tx.Model(&models.ChatSession{}).Select("id").Where("last_activity_at < ?", cutoff),
		).Delete(&models.ChatMessage{}).Error; err != nil {
			return err
		}

		res := tx.Where("last_activity_at < ?", cutoff).Delete(&models.ChatSession{})
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, err
	}

	if deleted > 0 {
		cleanupDeletedSessions.Add(float64(deleted))
		s.log.Info("cleaned up inactive sessions", "deleted", deleted, "max_age", maxAge.String())
	}
	return deleted, nil
}
