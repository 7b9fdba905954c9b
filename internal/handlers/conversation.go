package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"market-chat/internal/apperrors"
	"market-chat/internal/middleware"
	"market-chat/internal/models"
	"market-chat/internal/telemetry"
)

// ConversationService is the conversation store used by the HTTP layer.
type ConversationService interface {
	ListConversations(ctx context.Context, userID int64) ([]models.ConversationSummary, error)
	StartConversation(ctx context.Context, initiatorID, recipientID int64, listingID *int64, body string) (models.Message, error)
	FetchMessages(ctx context.Context, conversationID, viewerID int64) ([]models.Message, error)
	SendMessage(ctx context.Context, conversationID, senderID int64, body string) (models.Message, error)
	MarkRead(ctx context.Context, conversationID, viewerID int64) (int64, error)
	UnreadCount(ctx context.Context, conversationID, viewerID int64) (int64, error)
	SearchUsers(ctx context.Context, viewerID int64, query string, limit int) ([]models.UserIdentity, error)
}

// ConversationHandler manages peer conversation endpoints.
type ConversationHandler struct {
	service ConversationService
	audit   *telemetry.AuditEmitter
}

// NewConversationHandler builds a ConversationHandler. audit may be nil.
func NewConversationHandler(service ConversationService, audit *telemetry.AuditEmitter) *ConversationHandler {
	return &ConversationHandler{service: service, audit: audit}
}

// ListConversations returns the caller's conversations, most recent first.
func (h *ConversationHandler) ListConversations(c *gin.Context) {
	userID := c.GetInt64(middleware.UserIDKey)

	conversations, err := h.service.ListConversations(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": conversations})
}

// StartConversation gets or creates a conversation and posts its first
// message.
func (h *ConversationHandler) StartConversation(c *gin.Context) {
	var req struct {
		RecipientID int64  `json:"recipient_id" binding:"required"`
		ListingID   *int64 `json:"listing_id"`
		Body        string `json:"body"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.BadRequest(err.Error(), err))
		return
	}

	userID := c.GetInt64(middleware.UserIDKey)
	msg, err := h.service.StartConversation(c.Request.Context(), userID, req.RecipientID, req.ListingID, req.Body)
	if err != nil {
		respondError(c, err)
		return
	}

	h.audit.Emit(c.Request.Context(), "INFO", "conversation message sent to user "+formatID(req.RecipientID), requestIDFromContext(c), auditUserID(c))
	c.JSON(http.StatusCreated, gin.H{"conversation_id": msg.ConversationID, "message": msg})
}

// GetMessages returns the conversation's messages oldest first.
func (h *ConversationHandler) GetMessages(c *gin.Context) {
	conversationID, ok := parseIDParam(c, "conversation_id")
	if !ok {
		return
	}

	msgs, err := h.service.FetchMessages(c.Request.Context(), conversationID, c.GetInt64(middleware.UserIDKey))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// PostMessage appends a message from the caller.
func (h *ConversationHandler) PostMessage(c *gin.Context) {
	conversationID, ok := parseIDParam(c, "conversation_id")
	if !ok {
		return
	}

	var req struct {
		Body string `json:"body"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.BadRequest(err.Error(), err))
		return
	}

	msg, err := h.service.SendMessage(c.Request.Context(), conversationID, c.GetInt64(middleware.UserIDKey), req.Body)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

// MarkRead marks what the caller received as read.
func (h *ConversationHandler) MarkRead(c *gin.Context) {
	conversationID, ok := parseIDParam(c, "conversation_id")
	if !ok {
		return
	}

	updated, err := h.service.MarkRead(c.Request.Context(), conversationID, c.GetInt64(middleware.UserIDKey))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": updated})
}

func (h *ConversationHandler) UnreadCount(c *gin.Context) {
	conversationID, ok := parseIDParam(c, "conversation_id")
	if !ok {
		return
	}

	count, err := h.service.UnreadCount(c.Request.Context(), conversationID, c.GetInt64(middleware.UserIDKey))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread": count})
}

// SearchUsers finds people to start a conversation with.
func (h *ConversationHandler) SearchUsers(c *gin.Context) {
	users, err := h.service.SearchUsers(c.Request.Context(), c.GetInt64(middleware.UserIDKey), c.Query("q"), parseLimit(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}
