package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"market-chat/internal/apperrors"
	"market-chat/internal/telemetry"
	"market-chat/internal/ws"
)

// RoomCounter reports live websocket subscribers per room.
type RoomCounter interface {
	RoomSize(kind string, id int64) int
}

// RegisterDebugRoutes wires operator-only endpoints. They stay unmounted
// unless DEBUG_ROUTES is set.
func RegisterDebugRoutes(router gin.IRoutes, emitter *telemetry.AuditEmitter, rooms RoomCounter, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/audit", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured", "code": "UNAVAILABLE"})
			return
		}
		emitter.Emit(c.Request.Context(), "INFO", "debug audit event", requestIDFromContext(c), auditUserID(c))
		c.JSON(http.StatusAccepted, gin.H{"status": "queued", "request_id": requestIDFromContext(c)})
	})

	router.GET("/debug/rooms/:kind/:id", func(c *gin.Context) {
		kind := c.Param("kind")
		if kind != ws.KindConversation && kind != ws.KindSupport {
			respondError(c, apperrors.BadRequest("unknown room kind "+strconv.Quote(kind), nil))
			return
		}
		id, ok := parseIDParam(c, "id")
		if !ok {
			return
		}
		c.JSON(http.StatusOK, gin.H{"kind": kind, "id": id, "subscribers": rooms.RoomSize(kind, id)})
	})
}
