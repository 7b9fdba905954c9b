package ws

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"market-chat/internal/middleware"
	"market-chat/internal/observability"
)

// Subscriber describes one websocket connection for lifecycle events.
type Subscriber struct {
	ConnID      string
	Kind        string
	RoomID      int64
	UserID      int64
	Role        string
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

func newSubscriber(r *http.Request, kind string, roomID int64, claims *middleware.Claims, traceID string) Subscriber {
	return Subscriber{
		ConnID:      uuid.NewString(),
		Kind:        kind,
		RoomID:      roomID,
		UserID:      claims.UserID,
		Role:        claims.Role,
		DeviceID:    observability.DeviceIDFromRequest(r),
		IP:          observability.IPFromRequest(r),
		RequestID:   observability.RequestIDFromRequest(r),
		TraceID:     traceID,
		ConnectedAt: time.Now(),
	}
}
