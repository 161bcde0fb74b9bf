package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/worship-room-service/pkg/apperr"
	"github.com/worship-room-service/pkg/httputil"
	"github.com/worship-room-service/pkg/jwt"
	"github.com/worship-room-service/pkg/redis"
)

// Handler issues and revokes sessions. Accounts live in the surrounding
// application; outside production a session can be opened for any user id
// so the service can be exercised on its own.
type Handler struct {
	tokens       *jwt.Manager
	sessions     *redis.SessionStore
	allowDevAuth bool
	secureCookie bool
}

func NewHandler(tokens *jwt.Manager, sessions *redis.SessionStore, production bool) *Handler {
	return &Handler{
		tokens:       tokens,
		sessions:     sessions,
		allowDevAuth: !production,
		secureCookie: production,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	auth := r.Group("/auth")
	{
		if h.allowDevAuth {
			auth.POST("/dev-session", h.devSession)
		}

		protected := auth.Group("", AuthMiddleware(h.tokens, h.sessions))
		protected.GET("/status", h.Status)
		protected.POST("/logout", h.logout)
	}
}

type DevSessionRequest struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
}

func (h *Handler) devSession(c *gin.Context) {
	var req DevSessionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			httputil.BindError(c, err)
			return
		}
	}
	userID := uuid.New()
	if req.UserID != "" {
		parsed, err := uuid.Parse(req.UserID)
		if err != nil {
			httputil.ErrorResponse(c, apperr.ErrInvalidInput.Withf("user_id must be a uuid"))
			return
		}
		userID = parsed
	}

	now := time.Now()
	sessionID := uuid.NewString()
	token, expiresAt, err := h.tokens.GenerateToken(userID.String(), sessionID, now)
	if err != nil {
		httputil.ErrorResponse(c, err)
		return
	}
	session := &redis.Session{
		SessionID:   sessionID,
		UserID:      userID.String(),
		DisplayName: strings.TrimSpace(req.DisplayName),
		ExpiresAt:   expiresAt,
	}
	if err := h.sessions.StoreSession(c.Request.Context(), session); err != nil {
		httputil.ErrorResponse(c, err)
		return
	}

	http.SetCookie(c.Writer, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteStrictMode,
	})
	c.JSON(http.StatusCreated, gin.H{"token": token, "user_id": userID, "expires_at": expiresAt})
}

func (h *Handler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"user_id":      c.GetString(httputil.UserIDKey),
		"display_name": c.GetString(DisplayNameKey),
	})
}

func (h *Handler) logout(c *gin.Context) {
	if err := h.sessions.DeleteSession(c.Request.Context(), c.GetString(httputil.UserIDKey)); err != nil {
		httputil.ErrorResponse(c, err)
		return
	}
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteStrictMode,
	})
	c.Status(http.StatusNoContent)
}
