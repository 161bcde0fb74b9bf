package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/worship-room-service/pkg/jwt"
	"github.com/worship-room-service/pkg/redis"
)

type authFixture struct {
	router   *gin.Engine
	tokens   *jwt.Manager
	sessions *redis.SessionStore
}

func setupAuth(t *testing.T, production bool) *authFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	f := &authFixture{
		router:   gin.New(),
		tokens:   jwt.NewManager("test-secret", "worship-room", time.Hour),
		sessions: redis.NewSessionStore(goredis.NewClient(&goredis.Options{Addr: mr.Addr()})),
	}
	api := f.router.Group("/api/v1")
	NewHandler(f.tokens, f.sessions, production).RegisterRoutes(api)
	return f
}

func (f *authFixture) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestDevSession_StatusAndLogout(t *testing.T) {
	f := setupAuth(t, false)
	userID := uuid.New()

	w := f.do(http.MethodPost, "/api/v1/auth/dev-session", "", gin.H{"user_id": userID.String(), "display_name": "Pastor Ana"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.NotEmpty(t, w.Result().Cookies())
	var created struct {
		Token  string    `json:"token"`
		UserID uuid.UUID `json:"user_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, userID, created.UserID)

	w = f.do(http.MethodGet, "/api/v1/auth/status", created.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Pastor Ana")

	w = f.do(http.MethodPost, "/api/v1/auth/logout", created.Token, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = f.do(http.MethodGet, "/api/v1/auth/status", created.Token, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestDevSession_DisabledInProduction(t *testing.T) {
	f := setupAuth(t, true)
	w := f.do(http.MethodPost, "/api/v1/auth/dev-session", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAuthMiddleware(t *testing.T) {
	f := setupAuth(t, false)
	ctx := context.Background()
	userID := uuid.NewString()

	token, expiresAt, err := f.tokens.GenerateToken(userID, "s-1", time.Now())
	require.NoError(t, err)

	t.Run("NoToken", func(t *testing.T) {
		w := f.do(http.MethodGet, "/api/v1/auth/status", "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("NoSession", func(t *testing.T) {
		w := f.do(http.MethodGet, "/api/v1/auth/status", token, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	require.NoError(t, f.sessions.StoreSession(ctx, &redis.Session{SessionID: "s-1", UserID: userID, ExpiresAt: expiresAt}))

	t.Run("Bearer", func(t *testing.T) {
		w := f.do(http.MethodGet, "/api/v1/auth/status", token, nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("QueryParam", func(t *testing.T) {
		w := f.do(http.MethodGet, "/api/v1/auth/status?token="+token, "", nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("Cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/status", nil)
		req.AddCookie(&http.Cookie{Name: CookieName, Value: token})
		w := httptest.NewRecorder()
		f.router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("ForgedToken", func(t *testing.T) {
		other := jwt.NewManager("other-secret", "worship-room", time.Hour)
		forged, _, err := other.GenerateToken(userID, "s-1", time.Now())
		require.NoError(t, err)
		w := f.do(http.MethodGet, "/api/v1/auth/status", forged, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("ReplacedSession", func(t *testing.T) {
		require.NoError(t, f.sessions.StoreSession(ctx, &redis.Session{SessionID: "s-2", UserID: userID, ExpiresAt: expiresAt}))
		w := f.do(http.MethodGet, "/api/v1/auth/status", token, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}
