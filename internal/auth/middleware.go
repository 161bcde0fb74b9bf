package auth

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/worship-room-service/pkg/apperr"
	"github.com/worship-room-service/pkg/httputil"
	"github.com/worship-room-service/pkg/jwt"
	"github.com/worship-room-service/pkg/redis"
)

const (
	CookieName     = "auth_token"
	SessionIDKey   = "session_id"
	DisplayNameKey = "display_name"
)

// tokenFrom reads the token from the cookie, a Bearer header or the token
// query parameter (browsers cannot set headers on websocket upgrades).
func tokenFrom(c *gin.Context) string {
	if token, err := c.Cookie(CookieName); err == nil && token != "" {
		return token
	}
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	return c.Query("token")
}

// AuthMiddleware admits requests carrying a valid token whose session is
// still stored. Deleting the session revokes every token issued for it.
func AuthMiddleware(tokens *jwt.Manager, sessions *redis.SessionStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := tokenFrom(c)
		if token == "" {
			httputil.ErrorResponse(c, apperr.ErrUnauthorized.Withf("no token"))
			return
		}

		claims, err := tokens.ValidateToken(token)
		if err != nil {
			httputil.ErrorResponse(c, apperr.ErrUnauthorized.Withf("invalid token"))
			return
		}

		session, err := sessions.GetSession(c.Request.Context(), claims.UserID)
		switch {
		case errors.Is(err, redis.ErrSessionNotFound):
			httputil.ErrorResponse(c, apperr.ErrUnauthorized.Withf("session expired"))
			return
		case err != nil:
			httputil.ErrorResponse(c, err)
			return
		}
		if session.SessionID != claims.SessionID {
			httputil.ErrorResponse(c, apperr.ErrUnauthorized.Withf("session revoked"))
			return
		}

		c.Set(httputil.UserIDKey, claims.UserID)
		c.Set(SessionIDKey, session.SessionID)
		c.Set(DisplayNameKey, session.DisplayName)
		c.Next()
	}
}
