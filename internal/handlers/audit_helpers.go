package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"market-chat/internal/middleware"
)

func requestIDFromContext(c *gin.Context) string {
	if id := c.GetString(middleware.RequestIDKey); id != "" {
		return id
	}

	requestID := c.GetHeader(middleware.RequestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(middleware.RequestIDKey, requestID)
	return requestID
}

// auditUserID renders the caller for audit envelopes, nil when anonymous.
func auditUserID(c *gin.Context) *string {
	userID := c.GetInt64(middleware.UserIDKey)
	if userID == 0 {
		return nil
	}
	value := formatID(userID)
	return &value
}
