package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-chat/internal/apperrors"
	"market-chat/internal/middleware"
	"market-chat/internal/models"
)

const testSecret = "ws-secret"

type stubAuthorizer struct {
	members map[int64][]int64
}

func (s stubAuthorizer) Authorize(_ context.Context, conversationID, viewerID int64) error {
	for _, id := range s.members[conversationID] {
		if id == viewerID {
			return nil
		}
	}
	return apperrors.ErrNotParticipant
}

func newTestServer(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	hub := NewHub()
	handler := NewHandler(hub, testSecret, stubAuthorizer{members: map[int64][]int64{10: {1, 2}}})

	r := gin.New()
	r.GET("/ws/conversations/:conversation_id", handler.Conversation)
	r.GET("/ws/support", handler.Support)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return hub, srv
}

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func token(t *testing.T, userID int64, role string) string {
	t.Helper()
	tok, err := middleware.IssueToken(testSecret, userID, role, time.Hour)
	require.NoError(t, err)
	return tok
}

func TestConversationSubscriptionReceivesEvents(t *testing.T) {
	hub, srv := newTestServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws/conversations/10?token="+token(t, 2, "")), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.RoomSize(KindConversation, 10) == 1 }, time.Second, 5*time.Millisecond)

	hub.BroadcastConversation(10, models.ConversationEvent{
		Type:           models.EventMessage,
		ConversationID: 10,
		Message:        &models.Message{ID: 5, ConversationID: 10, SenderID: 1, Body: "hi"},
	})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var event models.ConversationEvent
	require.NoError(t, json.Unmarshal(raw, &event))
	assert.Equal(t, models.EventMessage, event.Type)
	require.NotNil(t, event.Message)
	assert.Equal(t, "hi", event.Message.Body)

	conn.Close()
	require.Eventually(t, func() bool { return hub.RoomSize(KindConversation, 10) == 0 }, time.Second, 5*time.Millisecond)
}

func TestConversationSubscriptionRejectsOutsiders(t *testing.T) {
	_, srv := newTestServer(t)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws/conversations/10?token="+token(t, 3, "")), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(wsURL(srv, "/ws/conversations/10"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSupportSubscription(t *testing.T) {
	hub, srv := newTestServer(t)

	user, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws/support?token="+token(t, 7, "")), nil)
	require.NoError(t, err)
	defer user.Close()
	admin, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws/support?user_id=7&token="+token(t, 99, "admin")), nil)
	require.NoError(t, err)
	defer admin.Close()

	require.Eventually(t, func() bool { return hub.RoomSize(KindSupport, 7) == 2 }, time.Second, 5*time.Millisecond)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws/support?user_id=7&token="+token(t, 8, "")), nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	hub.BroadcastSupport(7, models.SupportEvent{Type: models.EventRead, UserID: 7, ReaderRole: models.RoleAdmin, Updated: 1})
	for _, conn := range []*websocket.Conn{user, admin} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
		var event models.SupportEvent
		require.NoError(t, conn.ReadJSON(&event))
		assert.Equal(t, models.EventRead, event.Type)
	}
}

func TestBroadcastToEmptyRoomIsNoop(t *testing.T) {
	hub := NewHub()
	assert.NotPanics(t, func() {
		hub.BroadcastConversation(1, models.ConversationEvent{Type: models.EventRead})
	})
	assert.Zero(t, hub.RoomSize(KindConversation, 1))
}

func TestStalledSubscriberDoesNotBlockBroadcast(t *testing.T) {
	hub, srv := newTestServer(t)

	stalled, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws/conversations/10?token="+token(t, 2, "")), nil)
	require.NoError(t, err)
	defer stalled.Close()
	require.Eventually(t, func() bool { return hub.RoomSize(KindConversation, 10) == 1 }, time.Second, 5*time.Millisecond)

	// The peer never reads, so socket buffers fill and the send queue backs up.
	event := models.ConversationEvent{
		Type:           models.EventMessage,
		ConversationID: 10,
		Message:        &models.Message{ID: 1, ConversationID: 10, SenderID: 1, Body: strings.Repeat("x", 256<<10)},
	}
	started := time.Now()
	for i := 0; i < 200; i++ {
		hub.BroadcastConversation(10, event)
	}

	assert.Less(t, time.Since(started), writeTimeout/2)
	require.Eventually(t, func() bool { return hub.RoomSize(KindConversation, 10) == 0 }, 5*time.Second, 10*time.Millisecond)
}
