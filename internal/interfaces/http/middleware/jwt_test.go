package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/erp/settlement/internal/infrastructure/auth"
	"github.com/erp/settlement/internal/infrastructure/config"
	"github.com/erp/settlement/internal/infrastructure/logger"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTokens() *auth.TokenService {
	return auth.NewTokenService(config.JWTConfig{
		Secret: "test-secret-key-at-least-32-chars",
		Issuer: "settlement-test",
	})
}

func issue(t *testing.T, tokens *auth.TokenService, ttl time.Duration) string {
	t.Helper()
	token, err := tokens.Issue("user-1", "alice", ttl)
	require.NoError(t, err)
	return token
}

func jwtRouter(mw gin.HandlerFunc) *gin.Engine {
	router := gin.New()
	router.Use(mw)
	handler := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"actor":     GetActor(c),
			"ctx_actor": logger.GetActor(c.Request.Context()),
		})
	}
	router.GET("/api/v1/documents", handler)
	router.GET("/health", handler)
	return router
}

func TestJWTAuth(t *testing.T) {
	tokens := newTestTokens()
	router := jwtRouter(JWTAuth(tokens))

	tests := []struct {
		name     string
		path     string
		header   string
		wantCode int
		wantBody string
	}{
		{"valid token", "/api/v1/documents", "Bearer " + issue(t, tokens, time.Hour), http.StatusOK, `"actor":"alice"`},
		{"missing header", "/api/v1/documents", "", http.StatusUnauthorized, "INVALID_TOKEN"},
		{"not a bearer header", "/api/v1/documents", "Basic abc", http.StatusUnauthorized, "INVALID_TOKEN"},
		{"empty bearer", "/api/v1/documents", "Bearer ", http.StatusUnauthorized, "INVALID_TOKEN"},
		{"garbage token", "/api/v1/documents", "Bearer not.a.jwt", http.StatusUnauthorized, "INVALID_TOKEN"},
		{"expired token", "/api/v1/documents", "Bearer " + issue(t, tokens, -time.Minute), http.StatusUnauthorized, "TOKEN_EXPIRED"},
		{"skipped path", "/health", "", http.StatusOK, `"actor":""`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set(AuthHeaderKey, tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantCode, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantBody)
		})
	}
}

func TestJWTAuth_TokenFromOtherIssuerRejected(t *testing.T) {
	other := auth.NewTokenService(config.JWTConfig{Secret: "test-secret-key-at-least-32-chars", Issuer: "someone-else"})
	router := jwtRouter(JWTAuth(newTestTokens()))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/documents", nil)
	req.Header.Set(AuthHeaderKey, "Bearer "+issue(t, other, time.Hour))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTAuth_ActorReachesRequestLogger(t *testing.T) {
	tokens := newTestTokens()
	router := jwtRouter(JWTAuth(tokens))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/documents", nil)
	req.Header.Set(AuthHeaderKey, "Bearer "+issue(t, tokens, time.Hour))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ctx_actor":"alice"`)
}

func TestOptionalJWTAuth(t *testing.T) {
	tokens := newTestTokens()
	router := jwtRouter(OptionalJWTAuth(tokens))

	t.Run("anonymous", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/documents", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"actor":""`)
	})

	t.Run("invalid token is ignored", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/documents", nil)
		req.Header.Set(AuthHeaderKey, "Bearer junk")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("valid token sets actor", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/documents", nil)
		req.Header.Set(AuthHeaderKey, "Bearer "+issue(t, tokens, time.Hour))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Contains(t, w.Body.String(), `"actor":"alice"`)
	})
}

func TestGetJWTClaims_NotFound(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Nil(t, GetJWTClaims(c))
	assert.Empty(t, GetActor(c))
}
