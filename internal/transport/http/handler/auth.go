package handler

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"missionchat/internal/app"
	"missionchat/internal/transport/http/middleware"
	"missionchat/internal/transport/http/response"
)

type AuthHandler struct {
	authService    *app.AuthService
	chatService    *app.ChatService
	sessionManager *app.SessionManager
	guestPolicy    app.GuestHistoryPolicy
}

type RegisterRequest struct {
	Username string `json:"username" binding:"required,max=50"`
	Email    string `json:"email" binding:"required,max=100"`
	Password string `json:"password" binding:"required,max=128"`
}

type LoginRequest struct {
	Identifier string `json:"identifier" binding:"required,max=100"`
	Password   string `json:"password" binding:"required,max=128"`
	SessionID  string `json:"session_id"`
}

func NewAuthHandler(
	authService *app.AuthService,
	chatService *app.ChatService,
	sessionManager *app.SessionManager,
	guestPolicy app.GuestHistoryPolicy,
) *AuthHandler {
	return &AuthHandler{
		authService:    authService,
		chatService:    chatService,
		sessionManager: sessionManager,
		guestPolicy:    guestPolicy,
	}
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	result, err := h.authService.Register(app.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		var validationErr *app.ValidationError
		switch {
		case errors.As(err, &validationErr):
			response.ErrorWithData(c, http.StatusBadRequest, response.CodeValidation,
				"validation failed", gin.H{"violations": validationErr.Violations})
		case errors.Is(err, app.ErrDuplicateAccount):
			response.Error(c, http.StatusBadRequest, response.CodeDuplicateAccount, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "register failed")
		}
		return
	}

	sess := h.sessionManager.BeginRegistered(result.User)
	response.OK(c, gin.H{
		"token":      result.Token,
		"session_id": sess.ID,
		"user": gin.H{
			"id":         result.User.ID,
			"username":   result.User.Username,
			"email":      result.User.Email,
			"created_at": result.User.CreatedAt,
		},
	})
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	result, err := h.authService.Login(app.LoginInput{
		Identifier: req.Identifier,
		Password:   req.Password,
	})
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidCredential):
			response.Error(c, http.StatusUnauthorized, response.CodeInvalidCredentials, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "login failed")
		}
		return
	}

	// A guest who logs in starts a fresh registered context; their
	// guest-era turns follow the configured history policy.
	sess, adopted := h.sessionManager.Promote(req.SessionID, result.User, h.guestPolicy)
	if len(adopted) > 0 {
		h.chatService.AdoptGuestHistory(context.Background(), adopted)
	}
	if len(sess.Messages) == 0 {
		// Transcript restore is a convenience; login still succeeds.
		if err := h.chatService.RestoreHistory(sess); err != nil {
			log.Printf("restore history for user %d failed: %v", result.User.ID, err)
		}
	}

	response.OK(c, gin.H{
		"token":      result.Token,
		"session_id": sess.ID,
		"user": gin.H{
			"id":         result.User.ID,
			"username":   result.User.Username,
			"email":      result.User.Email,
			"last_login": result.User.LastLogin,
		},
	})
}

func (h *AuthHandler) Me(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	user, err := h.authService.GetUserByID(userID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "fetch current user failed")
		return
	}
	if user == nil {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "user not found")
		return
	}

	response.OK(c, gin.H{
		"id":         user.ID,
		"username":   user.Username,
		"email":      user.Email,
		"created_at": user.CreatedAt,
		"last_login": user.LastLogin,
		"is_active":  user.IsActive,
	})
}

func (h *AuthHandler) Deactivate(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	if err := h.authService.Deactivate(userID); err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "deactivate failed")
		return
	}
	response.OK(c, gin.H{"deactivated": true})
}

func getUserIDFromContext(c *gin.Context) (uint, bool) {
	userIDAny, exists := c.Get(middleware.ContextUserIDKey)
	if !exists {
		return 0, false
	}
	userID, ok := userIDAny.(uint)
	return userID, ok
}
