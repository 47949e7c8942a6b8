package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"tutor-chat-service/internal/auth"
	"tutor-chat-service/internal/mocks"
	"tutor-chat-service/internal/telemetry"
)

const testSecret = "test-secret-at-least-32-chars-long-for-security"

func TestDebugRoutesDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterDebugRoutes(r, nil, nil, false)

	req := httptest.NewRequest(http.MethodGet, "/debug/audit-test", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDebugAuditTest(t *testing.T) {
	publisher := new(mocks.PublisherMock)
	publisher.On("Publish", mock.Anything, "audit.events", mock.AnythingOfType("telemetry.AuditEnvelope"), map[string]string{"x-request-id": "req-1"}).Return(nil).Once()
	emitter := telemetry.NewAuditEmitter(publisher, "audit.events", "tutor-chat-service", "testing", nil)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterDebugRoutes(r, emitter, nil, true)

	req := httptest.NewRequest(http.MethodGet, "/debug/audit-test", nil)
	req.Header.Set("X-Request-ID", "req-1")
	req.Header.Set("X-User-ID", "4")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	publisher.AssertExpectations(t)
	envelope := publisher.Calls[0].Arguments.Get(2).(telemetry.AuditEnvelope)
	require.NotNil(t, envelope.UserID)
	assert.Equal(t, "4", *envelope.UserID)
}

func TestDebugTokenRoundTrip(t *testing.T) {
	validator := auth.NewJWTValidator(testSecret, "tutor-chat")
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterDebugRoutes(r, nil, validator, true)

	req := httptest.NewRequest(http.MethodPost, "/debug/token", bytes.NewBufferString(`{"user_id":9}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	userID, err := validator.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, 9, userID)

	req = httptest.NewRequest(http.MethodPost, "/debug/token", bytes.NewBufferString(`{"user_id":0}`))
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
