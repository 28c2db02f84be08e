package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/breathe-dev/breathe/internal/auth"
	"github.com/breathe-dev/breathe/internal/handlers"
	"github.com/breathe-dev/breathe/internal/middleware"
	"github.com/breathe-dev/breathe/internal/services"
	"github.com/breathe-dev/breathe/internal/testutil"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type noopNotifier struct{}

func (noopNotifier) SendAlert(_ context.Context, _ []string, _ float64, _ string) error {
	return nil
}

type app struct {
	engine *gin.Engine
}

func newApp(t *testing.T, limiter middleware.Limiter) (*app, func(username string, role auth.Role) string) {
	t.Helper()

	store := testutil.NewStore(t)

	tokens, err := auth.NewTokenService("router-secret", time.Hour)
	require.NoError(t, err)

	history := services.NewHistoryService(store, noopNotifier{}, 800, time.Second, zap.NewNop())

	engine := New(Dependencies{
		Handler: handlers.New(handlers.Dependencies{
			Store:   store,
			Tokens:  tokens,
			History: history,
			Logger:  zap.NewNop(),
		}),
		Hub:            handlers.NewHub([]string{"http://localhost:3000"}, zap.NewNop()),
		Store:          store,
		Tokens:         tokens,
		Limiter:        limiter,
		AllowedOrigins: []string{"http://localhost:3000"},
		Logger:         zap.NewNop(),
	})

	tokenFor := func(username string, role auth.Role) string {
		user := testutil.CreateUser(t, store, username, role)

		token, err := tokens.Generate(user.ID)
		require.NoError(t, err)

		return token
	}

	return &app{engine: engine}, tokenFor
}

func (a *app) do(method, path, token, body string) *httptest.ResponseRecorder {
	var req *http.Request

	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)

	return w
}

func TestRouter_AccessTiers(t *testing.T) {
	a, tokenFor := newApp(t, nil)

	student := tokenFor("student", auth.RoleUser)
	professor := tokenFor("professor", auth.RoleProfessor)
	admin := tokenFor("admin", auth.RoleAdmin)

	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/health", "", "").Code)
	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/v1/user", "", "").Code)
	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/v1/room", "", "").Code)

	assert.Equal(t, http.StatusUnauthorized, a.do(http.MethodGet, "/v1/user/me", "", "").Code)
	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/v1/user/me", student, "").Code)

	assert.Equal(t, http.StatusUnauthorized, a.do(http.MethodGet, "/v1/sensor", "", "").Code)
	assert.Equal(t, http.StatusNotFound, a.do(http.MethodGet, "/v1/sensor", student, "").Code)

	w := a.do(http.MethodGet, "/v1/history/export?friendly_name=x", student, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Insufficient permissions")
	assert.Equal(t, http.StatusNotFound, a.do(http.MethodGet, "/v1/history/export?friendly_name=x", professor, "").Code)

	assert.Equal(t, http.StatusUnauthorized, a.do(http.MethodGet, "/v1/admin/user", professor, "").Code)
	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/v1/admin/user", admin, "").Code)

	w = a.do(http.MethodPost, "/v1/admin/room", admin, `{"name":"B204","volume":120}`)
	assert.Equal(t, http.StatusCreated, w.Code)

	w = a.do(http.MethodPost, "/v1/admin/room", admin, `{"name":"C101","volume":120,"floor":2}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(http.MethodGet, "/v1/room?name=B204", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"name":"B204"`)
}

func TestRouter_RateLimit(t *testing.T) {
	a, _ := newApp(t, middleware.NewMemoryLimiter(2, time.Minute))

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/health", "", "").Code)
	}

	w := a.do(http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestRouter_CORS(t *testing.T) {
	a, _ := newApp(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/v1/room", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)

	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
}
