package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-chat/internal/observability"
)

const testSecret = "test-secret"

func setupRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(handlers...)
	r.GET("/whoami", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user_id":    c.GetInt64(UserIDKey),
			"role":       c.GetString(RoleKey),
			"request_id": observability.RequestIDFromContext(c.Request.Context()),
		})
	})
	return r
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestAuthMiddlewareAcceptsValidToken(t *testing.T) {
	token, err := IssueToken(testSecret, 42, "user", time.Hour)
	require.NoError(t, err)
	router := setupRouter(AuthMiddleware(testSecret))

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, float64(42), body["user_id"])
	assert.Equal(t, "user", body["role"])
}

func TestAuthMiddlewareRejects(t *testing.T) {
	expired, err := IssueToken(testSecret, 42, "", -time.Minute)
	require.NoError(t, err)
	foreign, err := IssueToken("other-secret", 42, "", time.Hour)
	require.NoError(t, err)

	cases := map[string]string{
		"missing":      "",
		"wrong scheme": "Basic abc",
		"garbage":      "Bearer not-a-jwt",
		"expired":      "Bearer " + expired,
		"wrong key":    "Bearer " + foreign,
	}
	router := setupRouter(AuthMiddleware(testSecret))

	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			require.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, "UNAUTHORIZED", decode(t, rec)["code"])
		})
	}
}

func TestRequireAdmin(t *testing.T) {
	router := setupRouter(AuthMiddleware(testSecret), RequireAdmin())

	userToken, err := IssueToken(testSecret, 1, "user", time.Hour)
	require.NoError(t, err)
	adminToken, err := IssueToken(testSecret, 2, "admin", time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+userToken)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestIDPropagates(t *testing.T) {
	router := setupRouter(RequestID())

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
	assert.Equal(t, "abc-123", decode(t, rec)["request_id"])

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/whoami", nil))
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
}

func TestRateLimitPerUser(t *testing.T) {
	limiter := NewUserRateLimiter(60, 2)
	frozen := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return frozen }

	router := setupRouter(func(c *gin.Context) {
		if id := c.GetHeader("X-Test-User"); id == "1" {
			c.Set(UserIDKey, int64(1))
		} else {
			c.Set(UserIDKey, int64(2))
		}
		c.Next()
	}, RateLimit(limiter))

	send := func(user string) int {
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		req.Header.Set("X-Test-User", user)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, send("1"))
	assert.Equal(t, http.StatusOK, send("1"))
	assert.Equal(t, http.StatusTooManyRequests, send("1"))
	assert.Equal(t, http.StatusOK, send("2"))

	frozen = frozen.Add(time.Second)
	assert.Equal(t, http.StatusOK, send("1"))
}

func TestRateLimiterPrune(t *testing.T) {
	limiter := NewUserRateLimiter(60, 1)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	limiter.Allow("a")
	now = now.Add(5 * time.Minute)
	limiter.Allow("b")
	limiter.Prune(3 * time.Minute)

	assert.Len(t, limiter.entries, 1)
	assert.Contains(t, limiter.entries, "b")
}

func TestRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Recovery())
	r.GET("/boom", func(c *gin.Context) { panic("boom") })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "INTERNAL_ERROR", decode(t, rec)["code"])
}
