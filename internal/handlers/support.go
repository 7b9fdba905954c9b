package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"market-chat/internal/apperrors"
	"market-chat/internal/config"
	"market-chat/internal/middleware"
	"market-chat/internal/models"
	"market-chat/internal/telemetry"
)

type SupportService interface {
	Messages(ctx context.Context, userID int64) ([]models.SupportMessage, error)
	Send(ctx context.Context, userID int64, senderRole, body string) (models.SupportMessage, error)
	MarkRead(ctx context.Context, userID int64, viewerRole string) (int64, error)
	UnreadCount(ctx context.Context, userID int64, viewerRole string) (int64, error)
	Threads(ctx context.Context, limit int) ([]models.SupportThread, error)
	Status(now time.Time) models.SupportStatus
	Config() config.SupportConfig
}

// SupportHandler serves both sides of the support lane. User routes act on
// the caller's own thread; admin routes name the thread by user id.
type SupportHandler struct {
	service SupportService
	audit   *telemetry.AuditEmitter
	now     func() time.Time
}

func NewSupportHandler(service SupportService, audit *telemetry.AuditEmitter) *SupportHandler {
	return &SupportHandler{service: service, audit: audit, now: time.Now}
}

// GetConfig returns the support configuration and the current status line.
func (h *SupportHandler) GetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"config": h.service.Config(),
		"status": h.service.Status(h.now()),
	})
}

func (h *SupportHandler) GetMessages(c *gin.Context) {
	h.messages(c, c.GetInt64(middleware.UserIDKey))
}

func (h *SupportHandler) PostMessage(c *gin.Context) {
	h.send(c, c.GetInt64(middleware.UserIDKey), models.RoleUser)
}

func (h *SupportHandler) MarkRead(c *gin.Context) {
	h.markRead(c, c.GetInt64(middleware.UserIDKey), models.RoleUser)
}

func (h *SupportHandler) UnreadCount(c *gin.Context) {
	count, err := h.service.UnreadCount(c.Request.Context(), c.GetInt64(middleware.UserIDKey), models.RoleUser)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread": count})
}

// ListThreads is the operator inbox.
func (h *SupportHandler) ListThreads(c *gin.Context) {
	threads, err := h.service.Threads(c.Request.Context(), parseLimit(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"threads": threads})
}

func (h *SupportHandler) AdminGetMessages(c *gin.Context) {
	userID, ok := parseIDParam(c, "user_id")
	if !ok {
		return
	}
	h.messages(c, userID)
}

func (h *SupportHandler) AdminPostMessage(c *gin.Context) {
	userID, ok := parseIDParam(c, "user_id")
	if !ok {
		return
	}
	h.send(c, userID, models.RoleAdmin)
}

func (h *SupportHandler) AdminMarkRead(c *gin.Context) {
	userID, ok := parseIDParam(c, "user_id")
	if !ok {
		return
	}
	h.markRead(c, userID, models.RoleAdmin)
}

func (h *SupportHandler) messages(c *gin.Context, userID int64) {
	msgs, err := h.service.Messages(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

func (h *SupportHandler) send(c *gin.Context, userID int64, role string) {
	var req struct {
		Body string `json:"body"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.BadRequest(err.Error(), err))
		return
	}

	msg, err := h.service.Send(c.Request.Context(), userID, role, req.Body)
	if err != nil {
		respondError(c, err)
		return
	}

	h.audit.Emit(c.Request.Context(), "INFO", role+" wrote to support thread "+formatID(userID), requestIDFromContext(c), auditUserID(c))
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

func (h *SupportHandler) markRead(c *gin.Context, userID int64, role string) {
	updated, err := h.service.MarkRead(c.Request.Context(), userID, role)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": updated})
}
