package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"market-chat/internal/middleware"
	"market-chat/internal/mocks"
	"market-chat/internal/models"
)

func TestRegisterRoutesAuthAndAdminGate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	conversations := new(mocks.ConversationServiceMock)
	support := new(mocks.SupportServiceMock)
	r := gin.New()
	RegisterRoutes(r, Routes{
		Conversations: NewConversationHandler(conversations, nil),
		Support:       NewSupportHandler(support, nil),
		SendLimiter:   middleware.NewUserRateLimiter(60, 1),
		JWTSecret:     "s",
	})

	userToken, err := middleware.IssueToken("s", 1, models.RoleUser, time.Hour)
	require.NoError(t, err)

	do := func(method, path, token, body string) int {
		req := httptest.NewRequest(method, path, nil)
		if body != "" {
			req = httptest.NewRequest(method, path, strings.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusUnauthorized, do(http.MethodGet, "/conversations", "", ""))
	assert.Equal(t, http.StatusForbidden, do(http.MethodGet, "/admin/support/threads", userToken, ""))

	conversations.On("SendMessage", mock.Anything, int64(5), int64(1), "a").Return(models.Message{ID: 1}, nil).Once()
	assert.Equal(t, http.StatusCreated, do(http.MethodPost, "/conversations/5/messages", userToken, `{"body":"a"}`))
	assert.Equal(t, http.StatusTooManyRequests, do(http.MethodPost, "/conversations/5/messages", userToken, `{"body":"a"}`))
}
