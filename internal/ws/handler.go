package ws

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"market-chat/internal/apperrors"
	"market-chat/internal/middleware"
	"market-chat/internal/models"
	"market-chat/internal/observability"
)

// Authorizer checks conversation membership before a subscription is
// accepted.
type Authorizer interface {
	Authorize(ctx context.Context, conversationID, viewerID int64) error
}

// Handler upgrades subscription requests. The token comes from the
// Authorization header or the token query parameter, since browsers cannot
// set headers on websocket requests.
type Handler struct {
	hub           *Hub
	secret        string
	conversations Authorizer
}

func NewHandler(hub *Hub, secret string, conversations Authorizer) *Handler {
	return &Handler{hub: hub, secret: secret, conversations: conversations}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Conversation subscribes to message and read events of one conversation.
func (h *Handler) Conversation(c *gin.Context) {
	conversationID, err := strconv.ParseInt(c.Param("conversation_id"), 10, 64)
	if err != nil || conversationID <= 0 {
		reject(c, apperrors.BadRequest("invalid conversation id", err))
		return
	}

	ctx, span := otel.Tracer("market-chat/ws").Start(c.Request.Context(), "ws.handshake.conversation")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	claims, ok := h.authenticate(c)
	if !ok {
		return
	}
	if err := h.conversations.Authorize(ctx, conversationID, claims.UserID); err != nil {
		reject(c, err)
		return
	}

	h.serve(c, KindConversation, conversationID, claims, span.SpanContext().TraceID().String())
}

// Support subscribes to the caller's own support thread. Operators may watch
// any thread with ?user_id=.
func (h *Handler) Support(c *gin.Context) {
	ctx, span := otel.Tracer("market-chat/ws").Start(c.Request.Context(), "ws.handshake.support")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	claims, ok := h.authenticate(c)
	if !ok {
		return
	}

	threadID := claims.UserID
	if raw := c.Query("user_id"); raw != "" {
		if !claims.IsAdmin() {
			reject(c, apperrors.ErrForbidden)
			return
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			reject(c, apperrors.BadRequest("invalid user id", err))
			return
		}
		threadID = id
	}

	h.serve(c, KindSupport, threadID, claims, span.SpanContext().TraceID().String())
}

func (h *Handler) authenticate(c *gin.Context) (*middleware.Claims, bool) {
	token := c.Query("token")
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			token = parts[1]
		}
	}
	if token == "" {
		reject(c, apperrors.ErrUnauthorized)
		return nil, false
	}
	claims, err := middleware.ParseToken(h.secret, token)
	if err != nil {
		reject(c, apperrors.ErrUnauthorized.Wrap(err))
		return nil, false
	}
	return claims, true
}

func (h *Handler) serve(c *gin.Context, kind string, id int64, claims *middleware.Claims, traceID string) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	info := newSubscriber(c.Request, kind, id, claims, traceID)
	cl := h.hub.add(kind, id, conn, info)
	go cl.writeLoop(kind, id)

	observability.IncWSActive(kind)
	publishLifecycle(c.Request.Context(), kind, id, "ws_connect", info, "")

	// The request context ends with the handler; lifecycle events after the
	// upgrade are published without it.
	go func() {
		var closeReason string
		defer func() {
			h.hub.remove(kind, id, cl)
			observability.DecWSActive(kind)
			publishLifecycle(context.Background(), kind, id, "ws_disconnect", info, closeReason)
			cl.close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				closeReason = err.Error()
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					publishLifecycle(context.Background(), kind, id, "ws_error", info, closeReason)
				}
				return
			}
		}
	}()
}

func reject(c *gin.Context, err error) {
	appErr := apperrors.From(err)
	c.AbortWithStatusJSON(appErr.Status, gin.H{"error": appErr.Message, "code": appErr.Code})
}

var _ interface {
	BroadcastConversation(int64, models.ConversationEvent)
	BroadcastSupport(int64, models.SupportEvent)
} = (*Hub)(nil)
