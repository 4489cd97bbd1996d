package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/erp/settlement/internal/infrastructure/auth"
	"github.com/erp/settlement/internal/infrastructure/logger"
	"github.com/erp/settlement/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// JWT context keys
const (
	JWTClaimsKey  = "jwt_claims"
	ActorKey      = "actor"
	AuthHeaderKey = "Authorization"
	BearerPrefix  = "Bearer "
)

// JWTMiddlewareConfig holds configuration for JWT middleware
type JWTMiddlewareConfig struct {
	// Tokens validates bearer tokens
	Tokens *auth.TokenService
	// SkipPaths are paths that don't require authentication
	SkipPaths []string
	// SkipPathPrefixes are path prefixes that don't require authentication
	SkipPathPrefixes []string
	Logger           *zap.Logger
}

// DefaultJWTConfig returns default JWT middleware configuration
func DefaultJWTConfig(tokens *auth.TokenService) JWTMiddlewareConfig {
	return JWTMiddlewareConfig{
		Tokens:    tokens,
		SkipPaths: []string{"/health", "/api/v1/health", "/api/v1/system/info"},
	}
}

// JWTAuth requires a valid bearer token with default configuration
func JWTAuth(tokens *auth.TokenService) gin.HandlerFunc {
	return JWTAuthWithConfig(DefaultJWTConfig(tokens))
}

// JWTAuthWithConfig requires a valid bearer token on every path not skipped.
// The token's actor is stored under ActorKey and on the request logger.
func JWTAuthWithConfig(cfg JWTMiddlewareConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.skips(c.Request.URL.Path) {
			c.Next()
			return
		}

		header := c.GetHeader(AuthHeaderKey)
		if header == "" {
			abortUnauthorized(c, cfg, auth.ErrInvalidToken, "missing authorization header")
			return
		}
		token, ok := strings.CutPrefix(header, BearerPrefix)
		if !ok || token == "" {
			abortUnauthorized(c, cfg, auth.ErrInvalidToken, "invalid authorization header format")
			return
		}

		claims, err := cfg.Tokens.Validate(token)
		if err != nil {
			abortUnauthorized(c, cfg, err, "token validation failed")
			return
		}

		setClaims(c, claims)
		c.Next()
	}
}

// OptionalJWTAuth extracts the actor when a valid token is present and
// otherwise lets the request through anonymously
func OptionalJWTAuth(tokens *auth.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := strings.CutPrefix(c.GetHeader(AuthHeaderKey), BearerPrefix)
		if ok && token != "" {
			if claims, err := tokens.Validate(token); err == nil {
				setClaims(c, claims)
			}
		}
		c.Next()
	}
}

func (cfg JWTMiddlewareConfig) skips(path string) bool {
	for _, p := range cfg.SkipPaths {
		if path == p {
			return true
		}
	}
	for _, prefix := range cfg.SkipPathPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func setClaims(c *gin.Context, claims *auth.Claims) {
	actor := claims.Actor()
	c.Set(JWTClaimsKey, claims)
	c.Set(ActorKey, actor)
	c.Request = c.Request.WithContext(logger.WithActor(c.Request.Context(), actor))
}

func abortUnauthorized(c *gin.Context, cfg JWTMiddlewareConfig, err error, reason string) {
	if cfg.Logger != nil {
		cfg.Logger.Warn("JWT authentication failed",
			zap.Error(err),
			zap.String("reason", reason),
			zap.String("path", c.Request.URL.Path),
		)
	}

	code, message := dto.ErrCodeUnauthorized, "Authentication required"
	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		code, message = dto.ErrCodeTokenExpired, "Token has expired"
	case errors.Is(err, auth.ErrTokenNotYetValid):
		code, message = dto.ErrCodeTokenInvalid, "Token is not yet valid"
	case errors.Is(err, auth.ErrInvalidToken):
		code, message = dto.ErrCodeTokenInvalid, "Invalid token"
	}
	c.AbortWithStatusJSON(http.StatusUnauthorized, dto.NewErrorResponseWithRequestID(code, message, GetRequestID(c)))
}

// GetJWTClaims retrieves JWT claims from gin.Context
func GetJWTClaims(c *gin.Context) *auth.Claims {
	if claims, exists := c.Get(JWTClaimsKey); exists {
		if jwtClaims, ok := claims.(*auth.Claims); ok {
			return jwtClaims
		}
	}
	return nil
}

// GetActor returns the authenticated actor, or "" for anonymous requests
func GetActor(c *gin.Context) string {
	return c.GetString(ActorKey)
}
