// Package client talks to the chat API over HTTP and websockets. It
// satisfies the poller's Source and SupportSource.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"market-chat/internal/apperrors"
	"market-chat/internal/config"
	"market-chat/internal/models"
)

type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func New(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// do sends a JSON request and decodes the response into out. Network errors
// and 5xx responses come back as transient errors; other failures map to the
// sentinel named by the response code.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return apperrors.Transient(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.Transient(fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func decodeError(resp *http.Response) error {
	var body errorBody
	_ = json.NewDecoder(resp.Body).Decode(&body)
	cause := fmt.Errorf("%s: %s", resp.Status, body.Error)

	if resp.StatusCode >= http.StatusInternalServerError {
		return apperrors.Transient(cause)
	}
	if sentinel, ok := apperrors.ByCode(body.Code); ok {
		return sentinel.Wrap(cause)
	}
	message := body.Error
	if message == "" {
		message = resp.Status
	}
	return apperrors.New(body.Code, message, resp.StatusCode, errors.New(resp.Status))
}

func (c *Client) ListConversations(ctx context.Context) ([]models.ConversationSummary, error) {
	var out struct {
		Conversations []models.ConversationSummary `json:"conversations"`
	}
	if err := c.do(ctx, http.MethodGet, "/conversations", nil, &out); err != nil {
		return nil, err
	}
	return out.Conversations, nil
}

// StartConversation opens or reuses the conversation with recipientID and
// posts body as the next message. It returns the stored message.
func (c *Client) StartConversation(ctx context.Context, recipientID int64, listingID *int64, body string) (models.Message, error) {
	in := struct {
		RecipientID int64  `json:"recipient_id"`
		ListingID   *int64 `json:"listing_id,omitempty"`
		Body        string `json:"body"`
	}{recipientID, listingID, body}
	var out struct {
		Message models.Message `json:"message"`
	}
	if err := c.do(ctx, http.MethodPost, "/conversations", in, &out); err != nil {
		return models.Message{}, err
	}
	return out.Message, nil
}

func (c *Client) FetchMessages(ctx context.Context, conversationID int64) ([]models.Message, error) {
	var out struct {
		Messages []models.Message `json:"messages"`
	}
	if err := c.do(ctx, http.MethodGet, conversationPath(conversationID, "/messages"), nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

func (c *Client) SendMessage(ctx context.Context, conversationID int64, body string) (models.Message, error) {
	in := struct {
		Body string `json:"body"`
	}{body}
	var out struct {
		Message models.Message `json:"message"`
	}
	if err := c.do(ctx, http.MethodPost, conversationPath(conversationID, "/messages"), in, &out); err != nil {
		return models.Message{}, err
	}
	return out.Message, nil
}

func (c *Client) MarkRead(ctx context.Context, conversationID int64) (int64, error) {
	var out struct {
		Updated int64 `json:"updated"`
	}
	if err := c.do(ctx, http.MethodPost, conversationPath(conversationID, "/read"), nil, &out); err != nil {
		return 0, err
	}
	return out.Updated, nil
}

func (c *Client) UnreadCount(ctx context.Context, conversationID int64) (int64, error) {
	var out struct {
		Unread int64 `json:"unread"`
	}
	if err := c.do(ctx, http.MethodGet, conversationPath(conversationID, "/unread"), nil, &out); err != nil {
		return 0, err
	}
	return out.Unread, nil
}

func (c *Client) SearchUsers(ctx context.Context, query string, limit int) ([]models.UserIdentity, error) {
	q := url.Values{}
	q.Set("q", query)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out struct {
		Users []models.UserIdentity `json:"users"`
	}
	if err := c.do(ctx, http.MethodGet, "/users/search?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out.Users, nil
}

func (c *Client) SupportConfig(ctx context.Context) (config.SupportConfig, error) {
	var out struct {
		Config config.SupportConfig `json:"config"`
	}
	if err := c.do(ctx, http.MethodGet, "/support/config", nil, &out); err != nil {
		return config.SupportConfig{}, err
	}
	return out.Config, nil
}

func (c *Client) SupportMessages(ctx context.Context) ([]models.SupportMessage, error) {
	var out struct {
		Messages []models.SupportMessage `json:"messages"`
	}
	if err := c.do(ctx, http.MethodGet, "/support/messages", nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

func (c *Client) SendSupport(ctx context.Context, body string) (models.SupportMessage, error) {
	in := struct {
		Body string `json:"body"`
	}{body}
	var out struct {
		Message models.SupportMessage `json:"message"`
	}
	if err := c.do(ctx, http.MethodPost, "/support/messages", in, &out); err != nil {
		return models.SupportMessage{}, err
	}
	return out.Message, nil
}

func (c *Client) MarkSupportRead(ctx context.Context) (int64, error) {
	var out struct {
		Updated int64 `json:"updated"`
	}
	if err := c.do(ctx, http.MethodPost, "/support/read", nil, &out); err != nil {
		return 0, err
	}
	return out.Updated, nil
}

func conversationPath(id int64, suffix string) string {
	return "/conversations/" + strconv.FormatInt(id, 10) + suffix
}
