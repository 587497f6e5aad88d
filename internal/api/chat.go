package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"ai-canvas-demo/backend/ai"
	"ai-canvas-demo/backend/internal/models"
	"ai-canvas-demo/backend/internal/service"
	"ai-canvas-demo/backend/pkg/jwt"
	"ai-canvas-demo/backend/pkg/logger"
)

// SessionIDHeader carries the session id on streamed responses so clients
// that let the server create the session implicitly can pick it up.
const SessionIDHeader = "X-Session-Id"

// exposedHeaders is the allow-list of headers stream clients may read
const exposedHeaders = SessionIDHeader + ", " + ai.OperationIDHeader

// TitleGenerator is the synchronous slice of the upstream client used for
// short single-answer calls
type TitleGenerator interface {
	Generate(ctx context.Context, req ai.GenerateRequest) (*ai.GenerateResponse, error)
}

// titleHistoryLimit is how many opening turns feed the title prompt
const titleHistoryLimit = 6

// ChatController handles the streaming chat endpoint and session lifecycle
type ChatController struct {
	sessions     *service.SessionService
	relay        *service.RelayService
	generator    TitleGenerator
	jwtService   *jwt.Service
	historyLimit int
	log          *logger.Logger
}

// NewChatController creates a new chat controller
func NewChatController(
	sessions *service.SessionService,
	relay *service.RelayService,
	generator TitleGenerator,
	jwtService *jwt.Service,
	historyLimit int,
	log *logger.Logger,
) *ChatController {
	if historyLimit <= 0 {
		historyLimit = service.DefaultHistoryLimit
	}
	return &ChatController{
		sessions:     sessions,
		relay:        relay,
		generator:    generator,
		jwtService:   jwtService,
		historyLimit: historyLimit,
		log:          log,
	}
}

// RegisterRoutes registers the routes for the chat controller. adminGuard
// protects the cleanup sweep.
func (c *ChatController) RegisterRoutes(router *gin.Engine, adminGuard gin.HandlerFunc) {
	chat := router.Group("/api/chat")
	{
		chat.POST("/stream", c.StreamChat)
		chat.POST("/sessions", c.CreateSession)
		chat.GET("/sessions/:sessionId/messages", c.GetHistory)
		chat.POST("/sessions/:sessionId/title", c.GenerateTitle)
		chat.DELETE("/sessions/:sessionId", c.DeleteSession)
		chat.POST("/sessions/cleanup", adminGuard, c.CleanupSessions)
	}
}

type streamChatRequest struct {
	SessionID string `json:"session_id"`
	CanvasID  string `json:"canvas_id"`
	Topic     string `json:"topic"`
	Content   string `json:"content"`
}

// StreamChat proxies one generation call as a live event stream. Input is
// validated before the upstream call is attempted; once streaming starts,
// failures surface as error frames on the stream itself.
func (c *ChatController) StreamChat(ctx *gin.Context) {
	var req streamChatRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.Content == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "content is required"})
		return
	}

	session, err := c.resolveSession(ctx, req)
	if err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		} else {
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve session"})
		}
		return
	}

	// the user turn is durable before any upstream work happens
	if _, err := c.sessions.AppendMessage(ctx.Request.Context(), session.ID, models.RoleUser, req.Content, nil); err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record message"})
		return
	}

	history, err := c.sessions.GetHistory(ctx.Request.Context(), session.ID, c.historyLimit)
	if err != nil {
		c.log.WithSession(session.ID).LogError(err, "failed to load history for stream")
		history = nil
	}

	upstreamReq := ai.StreamRequest{
		SessionID: session.ID,
		Topic:     req.Topic,
		Content:   req.Content,
		History:   toHistory(history),
	}
	if session.CanvasID != nil {
		upstreamReq.CanvasID = *session.CanvasID
	}

	// the client was asked to expect a stream; from here on every outcome,
	// including setup failure, is delivered as event frames
	ctx.Header("Content-Type", "text/event-stream")
	ctx.Header("Cache-Control", "no-cache")
	ctx.Header("Connection", "keep-alive")
	ctx.Header("X-Accel-Buffering", "no")
	ctx.Header(SessionIDHeader, session.ID)
	ctx.Header("Access-Control-Expose-Headers", exposedHeaders)

	_, _ = c.relay.Stream(ctx.Request.Context(), upstreamReq, ctx.Writer, func(operationID string) {
		if operationID != "" {
			ctx.Header(ai.OperationIDHeader, operationID)
		}
	})
}

// resolveSession loads the referenced session or creates one implicitly
// when the request carries no session id.
func (c *ChatController) resolveSession(ctx *gin.Context, req streamChatRequest) (*models.ChatSession, error) {
	if req.SessionID != "" {
		return c.sessions.GetSession(ctx.Request.Context(), req.SessionID)
	}
	var canvasID *string
	if req.CanvasID != "" {
		canvasID = &req.CanvasID
	}
	return c.sessions.CreateSession(ctx.Request.Context(), canvasID)
}

func toHistory(msgs []models.ChatMessage) []ai.HistoryMessage {
	if len(msgs) == 0 {
		return nil
	}
	history := make([]ai.HistoryMessage, 0, len(msgs))
	for _, m := range msgs {
		history = append(history, ai.HistoryMessage{Role: m.Role, Content: m.Content})
	}
	return history
}

type createSessionRequest struct {
	CanvasID string `json:"canvas_id"`
}

// CreateSession starts a new session and returns its id plus a token the
// client can present on later session-scoped calls.
func (c *ChatController) CreateSession(ctx *gin.Context) {
	var req createSessionRequest
	// body is optional; a bare POST creates a detached session
	_ = ctx.ShouldBindJSON(&req)

	var canvasID *string
	if req.CanvasID != "" {
		canvasID = &req.CanvasID
	}

	session, err := c.sessions.CreateSession(ctx.Request.Context(), canvasID)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
		return
	}

	token, err := c.jwtService.GenerateSessionToken(session.ID)
	if err != nil {
		c.log.LogError(err, "failed to mint session token", "session_id", session.ID)
	}

	ctx.JSON(http.StatusCreated, gin.H{
		"session_id": session.ID,
		"canvas_id":  session.CanvasID,
		"created_at": session.CreatedAt,
		"token":      token,
	})
}

// sessionTokenAuthorized checks the optional bearer token against the
// session being accessed. Requests without a token pass (implicit sessions
// never received one); a presented token must be valid and scoped to the
// same session. On failure the response is already written.
func (c *ChatController) sessionTokenAuthorized(ctx *gin.Context, sessionID string) bool {
	header := ctx.GetHeader("Authorization")
	if header == "" {
		return true
	}

	claims, err := c.jwtService.ValidateSessionToken(strings.TrimPrefix(header, "Bearer "))
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "invalid session token"})
		return false
	}
	if claims.SessionID != sessionID {
		c.log.WithSession(sessionID).Warn("session token scoped to another session", "token_session", claims.SessionID)
		ctx.JSON(http.StatusForbidden, gin.H{"error": "token is scoped to another session"})
		return false
	}
	return true
}

// GetHistory returns a session's messages, oldest first
func (c *ChatController) GetHistory(ctx *gin.Context) {
	sessionID := ctx.Param("sessionId")
	if !c.sessionTokenAuthorized(ctx, sessionID) {
		return
	}

	limit := 0
	if raw := ctx.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = parsed
	}

	messages, err := c.sessions.GetHistory(ctx.Request.Context(), sessionID, limit)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"session_id": sessionID,
		"messages":   messages,
		"count":      len(messages),
	})
}

// DeleteSession removes a session and its messages. A repeat delete gets a
// 404, not a silent success.
func (c *ChatController) DeleteSession(ctx *gin.Context) {
	sessionID := ctx.Param("sessionId")
	if !c.sessionTokenAuthorized(ctx, sessionID) {
		return
	}

	if err := c.sessions.DeleteSession(ctx.Request.Context(), sessionID); err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete session"})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"deleted": sessionID})
}

// GenerateTitle derives a short display title for a session from its opening
// turns via the synchronous upstream call and stores it on the session.
func (c *ChatController) GenerateTitle(ctx *gin.Context) {
	sessionID := ctx.Param("sessionId")
	if !c.sessionTokenAuthorized(ctx, sessionID) {
		return
	}

	history, err := c.sessions.GetHistory(ctx.Request.Context(), sessionID, titleHistoryLimit)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
		return
	}
	if len(history) == 0 {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "session has no messages to summarize"})
		return
	}

	resp, err := c.generator.Generate(ctx.Request.Context(), ai.GenerateRequest{
		Topic:   "session-title",
		Content: titlePrompt(history),
	})
	if err != nil {
		c.log.WithSession(sessionID).LogError(err, "title generation failed")
		ctx.JSON(http.StatusBadGateway, gin.H{"error": "failed to generate title"})
		return
	}

	title := strings.TrimSpace(resp.Text)
	if title == "" {
		ctx.JSON(http.StatusBadGateway, gin.H{"error": "upstream returned an empty title"})
		return
	}

	if err := c.sessions.SetTitle(ctx.Request.Context(), sessionID, title); err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store title"})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"session_id": sessionID, "title": title})
}

// titlePrompt flattens the opening turns into one summarization prompt
func titlePrompt(history []models.ChatMessage) string {
	var b strings.Builder
	b.WriteString("Suggest a short title for this conversation:\n")
	for _, m := range history {
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteByte('\n')
	}
	return b.String()
}

type cleanupRequest struct {
	MaxAgeHours int `json:"max_age_hours"`
}

// CleanupSessions sweeps sessions idle longer than max_age_hours
func (c *ChatController) CleanupSessions(ctx *gin.Context) {
	req := cleanupRequest{MaxAgeHours: 24}
	_ = ctx.ShouldBindJSON(&req)
	if req.MaxAgeHours <= 0 {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "max_age_hours must be positive"})
		return
	}

	deleted, err := c.sessions.CleanupInactive(ctx.Request.Context(), time.Duration(req.MaxAgeHours)*time.Hour)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "cleanup failed"})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"deleted": deleted})
}
