package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"market-chat/internal/logger"
	"market-chat/internal/models"
	"market-chat/internal/observability"
)

const (
	KindConversation = "conversation"
	KindSupport      = "support"

	writeTimeout = 10 * time.Second
	sendBuffer   = 32
)

type roomKey struct {
	kind string
	id   int64
}

// client owns one connection. Broadcasts queue on send; writeLoop is the only
// writer.
type client struct {
	conn      *websocket.Conn
	info      Subscriber
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newClient(conn *websocket.Conn, info Subscriber) *client {
	return &client{conn: conn, info: info, send: make(chan []byte, sendBuffer), done: make(chan struct{})}
}

// enqueue queues payload unless the client is gone or its queue is full.
func (c *client) enqueue(payload []byte) (queued, gone bool) {
	select {
	case <-c.done:
		return false, true
	default:
	}
	select {
	case c.send <- payload:
		return true, false
	default:
		return false, false
	}
}

func (c *client) writeLoop(kind string, id int64) {
	for {
		select {
		case <-c.done:
			return
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				logger.Warn().Err(err).Str("kind", kind).Int64("resource_id", id).Str("conn_id", c.info.ConnID).Msg("websocket write error")
				publishLifecycle(context.Background(), kind, id, "ws_error", c.info, err.Error())
				c.close()
				return
			}
		}
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// Hub maintains active websocket rooms: one per conversation and one per
// support thread.
type Hub struct {
	rooms map[roomKey]map[*client]struct{}
	mu    sync.RWMutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{rooms: make(map[roomKey]map[*client]struct{})}
}

func (h *Hub) add(kind string, id int64, conn *websocket.Conn, info Subscriber) *client {
	c := newClient(conn, info)
	key := roomKey{kind: kind, id: id}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[key]; !ok {
		h.rooms[key] = make(map[*client]struct{})
	}
	h.rooms[key][c] = struct{}{}
	return c
}

func (h *Hub) remove(kind string, id int64, c *client) {
	key := roomKey{kind: kind, id: id}

	h.mu.Lock()
	defer h.mu.Unlock()
	if clients, ok := h.rooms[key]; ok {
		delete(clients, c)
		if len(clients) == 0 {
			delete(h.rooms, key)
		}
	}
}

// RoomSize reports how many connections listen on a room.
func (h *Hub) RoomSize(kind string, id int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomKey{kind: kind, id: id}])
}

// BroadcastConversation sends event to everyone watching the conversation.
func (h *Hub) BroadcastConversation(conversationID int64, event models.ConversationEvent) {
	h.broadcast(KindConversation, conversationID, event)
}

// BroadcastSupport sends event to the user's support thread watchers.
func (h *Hub) BroadcastSupport(userID int64, event models.SupportEvent) {
	h.broadcast(KindSupport, userID, event)
}

func (h *Hub) broadcast(kind string, id int64, event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		logger.Error().Err(err).Str("kind", kind).Msg("marshal websocket event")
		return
	}

	h.mu.RLock()
	clients := make([]*client, 0, len(h.rooms[roomKey{kind: kind, id: id}]))
	for c := range h.rooms[roomKey{kind: kind, id: id}] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		queued, gone := c.enqueue(payload)
		if queued || gone {
			continue
		}
		logger.Warn().Str("kind", kind).Int64("resource_id", id).Str("conn_id", c.info.ConnID).Msg("websocket send queue full, dropping subscriber")
		h.remove(kind, id, c)
		c.close()
		publishLifecycle(context.Background(), kind, id, "ws_error", c.info, "send queue full")
	}
}

func publishLifecycle(ctx context.Context, kind string, id int64, event string, info Subscriber, reason string) {
	observability.IncWSEvent(kind, event)
	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"kind":        kind,
			"resource_id": id,
			"event":       event,
			"conn_id":     info.ConnID,
			"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
			"reason":      reason,
		},
		"identity": map[string]interface{}{
			"user_id":   info.UserID,
			"role":      info.Role,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}
	_ = observability.PublishEvent(ctx, wsRoutingKey(kind), observability.EventEnvelope{
		EventType: observability.EventTypeWS,
		EventName: event,
		Payload:   payload,
	}, observability.BuildHeaders(info.RequestID, info.TraceID))
}

func wsRoutingKey(kind string) string {
	if kind == KindSupport {
		return observability.RoutingWSSupport
	}
	return observability.RoutingWSChats
}
