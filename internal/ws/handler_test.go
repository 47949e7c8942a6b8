package ws

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tutor-chat-service/internal/mocks"
	"tutor-chat-service/internal/models"
)

type fakeAuth map[string]int

func (a fakeAuth) ValidateToken(token string) (int, error) {
	if userID, ok := a[token]; ok {
		return userID, nil
	}
	return 0, errors.New("invalid token")
}

func newTestServer(t *testing.T, cfg HandlerConfig) (*httptest.Server, *Registry) {
	t.Helper()
	sessions := fakeSessions{
		10: {ID: 10, StudentID: 1, TutorID: intPtr(2), Status: models.SessionActive},
		13: {ID: 13, StudentID: 1, Status: models.SessionClosed},
	}
	registry := NewRegistry(sessions)
	dispatcher := NewDispatcher(registry, sessions, new(mocks.MessageRepositoryMock), new(mocks.AnalyzerMock), nil, nil)
	auth := fakeAuth{"good-1": 1, "good-2": 2, "good-3": 3}
	handler := NewHandler(registry, dispatcher, sessions, auth, cfg, nil)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/ws/:user_id", handler.HandleGeneral)
	router.GET("/ws/tutor-chat/:session_id", handler.HandleSession)

	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		registry.Shutdown()
		srv.Close()
	})
	return srv, registry
}

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func dial(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, path), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame map[string]any
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func TestHandleGeneralPingPong(t *testing.T) {
	srv, registry := newTestServer(t, HandlerConfig{WriteTimeout: time.Second})
	conn := dial(t, srv, "/ws/1?token=good-1")

	hello := readFrame(t, conn)
	assert.Equal(t, TypeConnected, hello["type"])
	assert.Equal(t, float64(1), hello["user_id"])
	assert.True(t, registry.IsConnected(1))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"bogus"}`)))
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
	assert.Equal(t, TypePong, readFrame(t, conn)["type"])

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return !registry.IsConnected(1) }, 2*time.Second, 10*time.Millisecond)
}

func TestHandleGeneralBearerHeader(t *testing.T) {
	srv, registry := newTestServer(t, HandlerConfig{})
	header := http.Header{"Authorization": []string{"Bearer good-2"}}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws/2"), header)
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, TypeConnected, readFrame(t, conn)["type"])
	assert.True(t, registry.IsConnected(2))
}

func TestHandshakeRefusals(t *testing.T) {
	srv, _ := newTestServer(t, HandlerConfig{})

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{"missing token", "/ws/1", http.StatusUnauthorized},
		{"bad token", "/ws/1?token=nope", http.StatusUnauthorized},
		{"token for other user", "/ws/1?token=good-2", http.StatusForbidden},
		{"bad user id", "/ws/abc?token=good-1", http.StatusBadRequest},
		{"bad session id", "/ws/tutor-chat/0?token=good-1", http.StatusBadRequest},
		{"unknown session", "/ws/tutor-chat/99?token=good-1", http.StatusNotFound},
		{"not participant", "/ws/tutor-chat/10?token=good-3", http.StatusForbidden},
		{"closed session", "/ws/tutor-chat/13?token=good-1", http.StatusForbidden},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, tc.path), nil)
			require.ErrorIs(t, err, websocket.ErrBadHandshake)
			require.NotNil(t, resp)
			defer resp.Body.Close()
			assert.Equal(t, tc.status, resp.StatusCode)
		})
	}
}

func TestHandleSessionDevelopmentFallback(t *testing.T) {
	srv, registry := newTestServer(t, HandlerConfig{Development: true, DevUserID: 1})
	conn := dial(t, srv, "/ws/tutor-chat/10")

	hello := readFrame(t, conn)
	assert.Equal(t, TypeTutorChatConnect, hello["type"])
	assert.Equal(t, float64(10), hello["session_id"])
	assert.True(t, registry.IsSessionConnected(10, 1))
	assert.False(t, registry.IsConnected(1))
}

func TestReconnectClosesPriorSocket(t *testing.T) {
	srv, registry := newTestServer(t, HandlerConfig{})
	first := dial(t, srv, "/ws/1?token=good-1")
	readFrame(t, first)

	second := dial(t, srv, "/ws/1?token=good-1")
	readFrame(t, second)

	require.NoError(t, first.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := first.ReadMessage()
	assert.Error(t, err)

	require.NoError(t, second.WriteJSON(map[string]string{"type": "ping"}))
	assert.Equal(t, TypePong, readFrame(t, second)["type"])
	assert.True(t, registry.IsConnected(1))
}

func TestHeartbeatClosesSilentClient(t *testing.T) {
	srv, registry := newTestServer(t, HandlerConfig{ReadTimeout: 20 * time.Millisecond, MaxMissedPings: 2})
	conn := dial(t, srv, "/ws/1?token=good-1")
	readFrame(t, conn)

	assert.Equal(t, TypePing, readFrame(t, conn)["type"])
	assert.Equal(t, TypePing, readFrame(t, conn)["type"])

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
	require.Eventually(t, func() bool { return !registry.IsConnected(1) }, 2*time.Second, 10*time.Millisecond)
}
