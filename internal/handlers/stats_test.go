package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tutor-chat-service/internal/ws"
)

type nopTransport struct{}

func (nopTransport) WriteJSON(any) error { return nil }
func (nopTransport) Close() error        { return nil }

func setupStatsRouter(registry *ws.Registry) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewStatsHandler(registry)
	r.GET("/ws/stats", h.Stats)
	r.GET("/ws/connected-users", h.ConnectedUsers)
	r.GET("/ws/sessions/:session_id/typing", h.TypingUsers)
	return r
}

func get(t *testing.T, router *gin.Engine, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestStatsEndpoints(t *testing.T) {
	registry := ws.NewRegistry(nil)
	defer registry.Shutdown()
	registry.Connect(3, nopTransport{}, ws.ConnInfo{})
	registry.Connect(1, nopTransport{}, ws.ConnInfo{})
	student := registry.ConnectToSession(10, 1, nopTransport{}, ws.ConnInfo{})
	registry.SetTyping(student, 10, true)
	router := setupStatsRouter(registry)

	rec := get(t, router, "/ws/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats ws.Stats
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&stats))
	assert.Equal(t, ws.Stats{ConnectedUsers: 2, ActiveSessions: 1, TotalConnections: 3, TutorChatSessions: 1}, stats)

	rec = get(t, router, "/ws/connected-users")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"connected_users":[1,3],"count":2}`, rec.Body.String())

	rec = get(t, router, "/ws/sessions/10/typing")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"session_id":10,"typing_users":[1]}`, rec.Body.String())
}

func TestTypingUsersInvalidID(t *testing.T) {
	router := setupStatsRouter(ws.NewRegistry(nil))
	rec := get(t, router, "/ws/sessions/abc/typing")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
