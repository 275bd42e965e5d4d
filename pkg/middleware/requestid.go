package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
)

// Key types for context values
type contextKey string

const (
	// UserIDKey is the key for user ID values in contexts
	UserIDKey contextKey = "userID"
)

// WithRequestContext copies the authenticated user onto ctx for downstream operations.
// The request ID is already carried by the request logger.
func WithRequestContext(parent context.Context, c *gin.Context) context.Context {
	ctx := parent
	if userID, exists := c.Get("userID"); exists {
		ctx = context.WithValue(ctx, UserIDKey, userID)
	}
	return ctx
}

// GetUserID extracts the user ID from a context
func GetUserID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	if userID, ok := ctx.Value(UserIDKey).(string); ok {
		return userID
	}

	return ""
}
