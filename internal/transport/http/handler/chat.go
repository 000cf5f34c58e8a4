package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"missionchat/internal/app"
	"missionchat/internal/model"
	"missionchat/internal/transport/http/middleware"
	"missionchat/internal/transport/http/response"
)

type ChatHandler struct {
	chatService    *app.ChatService
	sessionManager *app.SessionManager
	compactLimit   int
}

type QueryRequest struct {
	SessionID string `json:"session_id" binding:"required"`
	Content   string `json:"content" binding:"required"`
	Compact   bool   `json:"compact"`
	Verbose   bool   `json:"verbose"`
}

// MessageView is a transcript row with the stored citation JSON parsed
// back into structured form.
type MessageView struct {
	ID        uint                   `json:"id"`
	SessionID string                 `json:"session_id"`
	Role      string                 `json:"role"`
	Content   string                 `json:"content"`
	Sources   []model.SourceCitation `json:"sources,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

func NewChatHandler(chatService *app.ChatService, sessionManager *app.SessionManager, compactLimit int) *ChatHandler {
	if compactLimit <= 0 {
		compactLimit = 3
	}
	return &ChatHandler{
		chatService:    chatService,
		sessionManager: sessionManager,
		compactLimit:   compactLimit,
	}
}

// Query runs one conversational turn against the assistant.
func (h *ChatHandler) Query(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	sess, ok := h.sessionManager.Get(req.SessionID)
	if !ok {
		response.Error(c, http.StatusNotFound, response.CodeSessionNotFound, "session not found")
		return
	}
	if sess.IsRegistered() {
		userID, hasToken := getUserIDFromContext(c)
		if !hasToken || userID != sess.UserID {
			response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "session belongs to another user")
			return
		}
	}

	maxSources := 0
	if req.Compact {
		maxSources = h.compactLimit
	}

	reply, err := h.chatService.HandleQuery(c.Request.Context(), sess, app.QueryInput{
		Text:       req.Content,
		MaxSources: maxSources,
		Verbose:    req.Verbose,
	})
	if err != nil {
		var rateErr *app.RateLimitError
		switch {
		case errors.As(err, &rateErr):
			response.ErrorWithData(c, http.StatusTooManyRequests, response.CodeRateLimited,
				err.Error(), gin.H{"retry_after_seconds": rateErr.RetryAfterSeconds})
		case errors.Is(err, app.ErrUnauthenticated):
			response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, err.Error())
		case errors.Is(err, app.ErrMessageEmpty):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "query failed")
		}
		return
	}

	response.OK(c, gin.H{
		"response": reply.Response,
		"sources":  reply.Sources,
		"metadata": gin.H{"response_time": reply.ResponseTime},
	})
}

// Transcript returns one session's persisted messages in order.
func (h *ChatHandler) Transcript(c *gin.Context) {
	sess, ok := h.registeredContext(c)
	if !ok {
		return
	}

	sessionID := c.Query("session_id")
	messages, err := h.chatService.Transcript(c.Request.Context(), sess, sessionID)
	if err != nil {
		h.writeServiceError(c, err, "get transcript failed")
		return
	}
	response.OK(c, toMessageViews(messages))
}

// UserHistory pages through the account's messages across sessions.
func (h *ChatHandler) UserHistory(c *gin.Context) {
	sess, ok := h.registeredContext(c)
	if !ok {
		return
	}

	limit := queryInt(c, "limit", 100)
	offset := queryInt(c, "offset", 0)
	messages, err := h.chatService.UserHistory(sess, limit, offset)
	if err != nil {
		h.writeServiceError(c, err, "get history failed")
		return
	}
	response.OK(c, toMessageViews(messages))
}

// Sessions lists the account's sessions, most recent first.
func (h *ChatHandler) Sessions(c *gin.Context) {
	sess, ok := h.registeredContext(c)
	if !ok {
		return
	}

	sessions, err := h.chatService.Sessions(sess)
	if err != nil {
		h.writeServiceError(c, err, "list sessions failed")
		return
	}
	response.OK(c, sessions)
}

// DeleteSession removes the caller's messages under a session id.
func (h *ChatHandler) DeleteSession(c *gin.Context) {
	sess, ok := h.registeredContext(c)
	if !ok {
		return
	}

	sessionID := c.Param("id")
	if err := h.chatService.DeleteSession(c.Request.Context(), sess, sessionID); err != nil {
		h.writeServiceError(c, err, "delete session failed")
		return
	}
	response.OK(c, gin.H{"deleted_session_id": sessionID})
}

func (h *ChatHandler) Stats(c *gin.Context) {
	sess, ok := h.registeredContext(c)
	if !ok {
		return
	}

	stats, err := h.chatService.Stats(sess)
	if err != nil {
		h.writeServiceError(c, err, "get stats failed")
		return
	}
	response.OK(c, stats)
}

// Export returns the session snapshot as a downloadable JSON document.
func (h *ChatHandler) Export(c *gin.Context) {
	sess, ok := h.registeredContext(c)
	if !ok {
		return
	}

	sessionID := c.Query("session_id")
	doc, err := h.chatService.Export(c.Request.Context(), sess, sessionID)
	if err != nil {
		h.writeServiceError(c, err, "export failed")
		return
	}

	c.Header("Content-Disposition", `attachment; filename="chat_export_`+doc.ExportedAt.Format("20060102_150405")+`.json"`)
	c.JSON(http.StatusOK, doc)
}

// registeredContext resolves the caller's session context. A live
// context matching the token wins; otherwise the token itself proves the
// registered state for browse-only operations.
func (h *ChatHandler) registeredContext(c *gin.Context) (*app.SessionContext, bool) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return nil, false
	}

	if sessionID := c.GetHeader("X-Session-ID"); sessionID != "" {
		if sess, found := h.sessionManager.Get(sessionID); found && sess.UserID == userID {
			return sess, true
		}
	}

	username, _ := c.Get(middleware.ContextUsernameKey)
	name, _ := username.(string)
	return &app.SessionContext{
		State:    app.StateRegistered,
		UserID:   userID,
		Username: name,
	}, true
}

func (h *ChatHandler) writeServiceError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, app.ErrNotRegistered):
		response.Error(c, http.StatusForbidden, response.CodeForbidden, err.Error())
	case errors.Is(err, app.ErrInvalidInput):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	default:
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, fallback)
	}
}

func toMessageViews(messages []model.ChatMessage) []MessageView {
	views := make([]MessageView, 0, len(messages))
	for _, msg := range messages {
		views = append(views, MessageView{
			ID:        msg.ID,
			SessionID: msg.SessionID,
			Role:      msg.Role,
			Content:   msg.Content,
			Sources:   msg.SourceList(),
			CreatedAt: msg.CreatedAt,
		})
	}
	return views
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}
