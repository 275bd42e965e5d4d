package middleware

import (
	"strings"

	"adichat/backend/pkg/errors"
	"adichat/backend/pkg/jwt"
	"adichat/backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

// TokenValidator validates a bearer token
type TokenValidator interface {
	ValidateToken(token string) (*jwt.Claims, error)
}

// JWTAuthMiddleware checks that the request has a valid JWT and adds claims to the context.
// Browsers cannot set headers on websocket upgrades, so a "token" query parameter is accepted too.
func JWTAuthMiddleware(validator TokenValidator, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader("Authorization")
		if token == "" {
			token = c.Query("token")
		}
		if token == "" {
			c.Error(errors.NotAuthenticated())
			c.Abort()
			return
		}

		token = strings.TrimPrefix(token, "Bearer ")

		claims, err := validator.ValidateToken(token)
		if err != nil {
			log.Warn("Invalid JWT token", "error", err.Error())
			c.Error(errors.NotAuthenticated().Wrap(err))
			c.Abort()
			return
		}

		c.Set("claims", claims)
		c.Set("userID", claims.UserID)

		c.Next()
	}
}

// UserID returns the authenticated user for the request, or "" when none.
func UserID(c *gin.Context) string {
	return c.GetString("userID")
}
