package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"tutor-chat-service/internal/ws"
)

// ConnectionStats exposes registry occupancy.
type ConnectionStats interface {
	Stats() ws.Stats
	ConnectedUsers() []int
	TypingUsers(sessionID int) []int
}

// StatsHandler serves websocket introspection endpoints.
type StatsHandler struct {
	source ConnectionStats
}

// NewStatsHandler builds a StatsHandler.
func NewStatsHandler(source ConnectionStats) *StatsHandler {
	return &StatsHandler{source: source}
}

// Stats returns connection counters.
func (h *StatsHandler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.source.Stats())
}

// ConnectedUsers lists users holding a general connection.
func (h *StatsHandler) ConnectedUsers(c *gin.Context) {
	users := h.source.ConnectedUsers()
	c.JSON(http.StatusOK, gin.H{"connected_users": users, "count": len(users)})
}

// TypingUsers lists who is typing in a session.
func (h *StatsHandler) TypingUsers(c *gin.Context) {
	sessionID, err := strconv.Atoi(c.Param("session_id"))
	if err != nil || sessionID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "typing_users": h.source.TypingUsers(sessionID)})
}
