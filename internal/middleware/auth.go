package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"market-chat/internal/apperrors"
	"market-chat/internal/models"
)

const (
	UserIDKey = "userID"
	RoleKey   = "role"
)

// AuthMiddleware validates the bearer token and stores the caller's id and
// role on the context.
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			abort(c, apperrors.ErrUnauthorized, "missing authorization")
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			abort(c, apperrors.ErrUnauthorized, "invalid authorization header")
			return
		}

		claims, err := ParseToken(secret, parts[1])
		if err != nil {
			abort(c, apperrors.ErrUnauthorized, "invalid token")
			return
		}

		c.Set(UserIDKey, claims.UserID)
		c.Set(RoleKey, claims.Role)
		c.Next()
	}
}

// RequireAdmin lets only operator tokens through. It must run after
// AuthMiddleware.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(RoleKey) != models.RoleAdmin {
			abort(c, apperrors.ErrForbidden, "admin role required")
			return
		}
		c.Next()
	}
}

func abort(c *gin.Context, appErr *apperrors.AppError, message string) {
	status := appErr.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}
	c.AbortWithStatusJSON(status, gin.H{"error": message, "code": appErr.Code})
}
