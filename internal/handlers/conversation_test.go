package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"market-chat/internal/apperrors"
	"market-chat/internal/middleware"
	"market-chat/internal/mocks"
	"market-chat/internal/models"
)

func setupConversationRouter(handler *ConversationHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.UserIDKey, int64(1))
		c.Next()
	})
	r.GET("/conversations", handler.ListConversations)
	r.POST("/conversations", handler.StartConversation)
	r.GET("/conversations/:conversation_id/messages", handler.GetMessages)
	r.POST("/conversations/:conversation_id/messages", handler.PostMessage)
	r.POST("/conversations/:conversation_id/read", handler.MarkRead)
	r.GET("/conversations/:conversation_id/unread", handler.UnreadCount)
	r.GET("/users/search", handler.SearchUsers)
	return r
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func serve(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var reader *bytes.Buffer
	if body != "" {
		reader = bytes.NewBufferString(body)
	} else {
		reader = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestListConversationsSuccess(t *testing.T) {
	service := new(mocks.ConversationServiceMock)
	router := setupConversationRouter(NewConversationHandler(service, nil))

	service.On("ListConversations", mock.Anything, int64(1)).Return([]models.ConversationSummary{
		{ID: 3, OtherUser: models.UserIdentity{ID: 2, Name: "Bob"}, LastMessage: "hi", UnreadCount: 1},
	}, nil).Once()

	rec := serve(router, http.MethodGet, "/conversations", "")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	list := body["conversations"].([]any)
	require.Len(t, list, 1)
	assert.Equal(t, float64(1), list[0].(map[string]any)["unread_count"])
	service.AssertExpectations(t)
}

func TestListConversationsTransientError(t *testing.T) {
	service := new(mocks.ConversationServiceMock)
	router := setupConversationRouter(NewConversationHandler(service, nil))

	service.On("ListConversations", mock.Anything, int64(1)).Return(nil, apperrors.Transient(errors.New("db down"))).Once()

	rec := serve(router, http.MethodGet, "/conversations", "")

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, apperrors.CodeTransient, decodeBody(t, rec)["code"])
}

func TestStartConversationSuccess(t *testing.T) {
	service := new(mocks.ConversationServiceMock)
	router := setupConversationRouter(NewConversationHandler(service, nil))
	listingID := int64(55)
	msg := models.Message{ID: 9, ConversationID: 10, SenderID: 1, Body: "Still available?", CreatedAt: time.Now().UTC()}

	service.On("StartConversation", mock.Anything, int64(1), int64(2), &listingID, "Still available?").Return(msg, nil).Once()

	rec := serve(router, http.MethodPost, "/conversations", `{"recipient_id":2,"listing_id":55,"body":"Still available?"}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(10), body["conversation_id"])
	service.AssertExpectations(t)
}

func TestStartConversationErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"self", apperrors.ErrInvalidParticipant, http.StatusBadRequest, apperrors.CodeInvalidParticipant},
		{"empty", apperrors.ErrEmptyMessage, http.StatusUnprocessableEntity, apperrors.CodeEmptyMessage},
		{"unknown recipient", apperrors.NotFound("user"), http.StatusNotFound, apperrors.CodeNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			service := new(mocks.ConversationServiceMock)
			router := setupConversationRouter(NewConversationHandler(service, nil))
			service.On("StartConversation", mock.Anything, int64(1), int64(2), (*int64)(nil), "x").Return(nil, tc.err).Once()

			rec := serve(router, http.MethodPost, "/conversations", `{"recipient_id":2,"body":"x"}`)

			require.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.code, decodeBody(t, rec)["code"])
		})
	}
}

func TestStartConversationBadRequest(t *testing.T) {
	service := new(mocks.ConversationServiceMock)
	router := setupConversationRouter(NewConversationHandler(service, nil))

	rec := serve(router, http.MethodPost, "/conversations", `{"body":"x"}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, apperrors.CodeBadRequest, decodeBody(t, rec)["code"])
	service.AssertNotCalled(t, "StartConversation", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestGetMessagesNotParticipant(t *testing.T) {
	service := new(mocks.ConversationServiceMock)
	router := setupConversationRouter(NewConversationHandler(service, nil))

	service.On("FetchMessages", mock.Anything, int64(5), int64(1)).Return(nil, apperrors.ErrNotParticipant).Once()

	rec := serve(router, http.MethodGet, "/conversations/5/messages", "")

	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, apperrors.CodeNotParticipant, decodeBody(t, rec)["code"])
}

func TestGetMessagesInvalidID(t *testing.T) {
	service := new(mocks.ConversationServiceMock)
	router := setupConversationRouter(NewConversationHandler(service, nil))

	rec := serve(router, http.MethodGet, "/conversations/abc/messages", "")

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPostMessageSuccess(t *testing.T) {
	service := new(mocks.ConversationServiceMock)
	router := setupConversationRouter(NewConversationHandler(service, nil))

	service.On("SendMessage", mock.Anything, int64(5), int64(1), "Hi").Return(models.Message{ID: 2, ConversationID: 5, SenderID: 1, Body: "Hi"}, nil).Once()

	rec := serve(router, http.MethodPost, "/conversations/5/messages", `{"body":"Hi"}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	message := decodeBody(t, rec)["message"].(map[string]any)
	assert.Equal(t, "Hi", message["body"])
	assert.Nil(t, message["read_at"])
}

func TestMarkReadAndUnread(t *testing.T) {
	service := new(mocks.ConversationServiceMock)
	router := setupConversationRouter(NewConversationHandler(service, nil))

	service.On("MarkRead", mock.Anything, int64(5), int64(1)).Return(int64(3), nil).Once()
	service.On("UnreadCount", mock.Anything, int64(5), int64(1)).Return(int64(0), nil).Once()

	rec := serve(router, http.MethodPost, "/conversations/5/read", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(3), decodeBody(t, rec)["updated"])

	rec = serve(router, http.MethodGet, "/conversations/5/unread", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), decodeBody(t, rec)["unread"])
}

func TestUnreadCountErrors(t *testing.T) {
	service := new(mocks.ConversationServiceMock)
	router := setupConversationRouter(NewConversationHandler(service, nil))

	service.On("UnreadCount", mock.Anything, int64(5), int64(1)).Return(int64(0), apperrors.ErrNotParticipant).Once()
	service.On("UnreadCount", mock.Anything, int64(77), int64(1)).Return(int64(0), apperrors.NotFound("conversation")).Once()

	rec := serve(router, http.MethodGet, "/conversations/5/unread", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, apperrors.CodeNotParticipant, decodeBody(t, rec)["code"])

	rec = serve(router, http.MethodGet, "/conversations/77/unread", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, apperrors.CodeNotFound, decodeBody(t, rec)["code"])
}

func TestSearchUsers(t *testing.T) {
	service := new(mocks.ConversationServiceMock)
	router := setupConversationRouter(NewConversationHandler(service, nil))

	service.On("SearchUsers", mock.Anything, int64(1), "ada", 5).Return([]models.UserIdentity{{ID: 3, Name: "Ada"}}, nil).Once()

	rec := serve(router, http.MethodGet, "/users/search?q=ada&limit=5", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody(t, rec)["users"], 1)
}
