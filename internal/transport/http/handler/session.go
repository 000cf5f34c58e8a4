package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"missionchat/internal/app"
	"missionchat/internal/transport/http/response"
)

type SessionHandler struct {
	sessionManager *app.SessionManager
}

type LogoutRequest struct {
	SessionID string `json:"session_id" binding:"required"`
}

func NewSessionHandler(sessionManager *app.SessionManager) *SessionHandler {
	return &SessionHandler{sessionManager: sessionManager}
}

// StartGuest opens a guest session context: lower rate ceiling, no
// durable history across sessions.
func (h *SessionHandler) StartGuest(c *gin.Context) {
	sess := h.sessionManager.BeginGuest()
	response.OK(c, gin.H{
		"session_id": sess.ID,
		"state":      sess.State.String(),
	})
}

// Logout clears the in-memory conversation and destroys the context.
// Persisted history is untouched.
func (h *SessionHandler) Logout(c *gin.Context) {
	var req LogoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	if sess, ok := h.sessionManager.Get(req.SessionID); ok {
		sess.Logout()
		h.sessionManager.Destroy(sess.ID)
	}
	response.OK(c, gin.H{"logged_out": true})
}
