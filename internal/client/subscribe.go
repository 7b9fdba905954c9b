package client

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"market-chat/internal/logger"
)

const (
	minBackoff = time.Second
	maxBackoff = 30 * time.Second
)

// SubscribeConversation calls onEvent for every push on the conversation's
// websocket until ctx is done. Pushes carry no state the client relies on;
// they only tell the poller to fetch now.
func (c *Client) SubscribeConversation(ctx context.Context, conversationID int64, onEvent func()) {
	c.subscribe(ctx, "/ws/conversations/"+strconv.FormatInt(conversationID, 10), onEvent)
}

// SubscribeSupport is SubscribeConversation for the caller's support thread.
func (c *Client) SubscribeSupport(ctx context.Context, onEvent func()) {
	c.subscribe(ctx, "/ws/support", onEvent)
}

func (c *Client) subscribe(ctx context.Context, path string, onEvent func()) {
	backoff := minBackoff
	for {
		err := c.readEvents(ctx, path, onEvent, func() { backoff = minBackoff })
		if ctx.Err() != nil {
			return
		}
		logger.Debug().Err(err).Str("path", path).Dur("retry_in", backoff).Msg("websocket disconnected")

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (c *Client) readEvents(ctx context.Context, path string, onEvent, connected func()) error {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.token)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsBase(c.baseURL)+path, header)
	if err != nil {
		return err
	}
	defer conn.Close()
	connected()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return err
		}
		onEvent()
	}
}

func wsBase(baseURL string) string {
	switch {
	case strings.HasPrefix(baseURL, "https://"):
		return "wss://" + strings.TrimPrefix(baseURL, "https://")
	case strings.HasPrefix(baseURL, "http://"):
		return "ws://" + strings.TrimPrefix(baseURL, "http://")
	}
	return baseURL
}
