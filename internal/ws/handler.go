package ws

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"tutor-chat-service/internal/models"
	"tutor-chat-service/internal/observability"
	"tutor-chat-service/internal/repositories"
)

var errMissingToken = errors.New("missing token")

// Authenticator resolves an access token to a user id.
type Authenticator interface {
	ValidateToken(token string) (int, error)
}

// HandlerConfig tunes handshake and read-loop behaviour.
type HandlerConfig struct {
	// Development accepts handshakes without a token.
	Development bool
	// DevUserID identifies tokenless session-channel clients in development.
	DevUserID int
	// ReadTimeout is how long the read loop waits before sending a ping.
	// Zero disables heartbeats.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// MaxMissedPings unanswered pings close the connection. Zero never closes.
	MaxMissedPings int
	ReadLimit      int64
}

// Handler upgrades general and tutor-chat websocket connections.
type Handler struct {
	registry   *Registry
	dispatcher *Dispatcher
	sessions   SessionLookup
	auth       Authenticator
	cfg        HandlerConfig
	logger     *zap.Logger
}

// NewHandler constructs a Handler.
func NewHandler(registry *Registry, dispatcher *Dispatcher, sessions SessionLookup, auth Authenticator, cfg HandlerConfig, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		registry:   registry,
		dispatcher: dispatcher,
		sessions:   sessions,
		auth:       auth,
		cfg:        cfg,
		logger:     logger,
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleGeneral serves GET /ws/:user_id.
func (h *Handler) HandleGeneral(c *gin.Context) {
	pathUserID, ok := parsePositiveID(c.Param("user_id"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	ctx, span := otel.Tracer("tutor-chat-service/ws").Start(c.Request.Context(), "ws.handshake")
	userID, err := h.authenticate(c, pathUserID)
	if err != nil {
		span.End()
		h.logger.Info("ws handshake rejected", zap.Int("user_id", pathUserID), zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	if userID != pathUserID {
		span.End()
		c.JSON(http.StatusForbidden, gin.H{"error": "token does not match user"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		span.End()
		h.logger.Warn("ws upgrade failed", zap.Int("user_id", userID), zap.Error(err))
		return
	}
	info := h.connInfo(c.Request, span)
	span.End()

	wc := h.registry.Connect(userID, h.transport(conn), info)
	h.registry.SendTo(wc, ControlEvent{
		Type:      TypeConnected,
		UserID:    userID,
		ConnID:    wc.Info.ConnID,
		Timestamp: formatTimestamp(h.registry.Clock().Now()),
	})
	h.serve(ctx, conn, wc)
}

// HandleSession serves GET /ws/tutor-chat/:session_id.
func (h *Handler) HandleSession(c *gin.Context) {
	sessionID, ok := parsePositiveID(c.Param("session_id"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return
	}

	ctx, span := otel.Tracer("tutor-chat-service/ws").Start(c.Request.Context(), "ws.handshake")
	userID, err := h.authenticate(c, h.cfg.DevUserID)
	if err != nil {
		span.End()
		h.logger.Info("ws session handshake rejected", zap.Int("session_id", sessionID), zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	session, err := h.sessions.GetChatSession(ctx, sessionID)
	if errors.Is(err, repositories.ErrSessionNotFound) {
		span.End()
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	if err != nil {
		span.End()
		h.logger.Error("ws session lookup failed", zap.Int("session_id", sessionID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session lookup failed"})
		return
	}
	if !session.IsParticipant(userID) {
		span.End()
		c.JSON(http.StatusForbidden, gin.H{"error": "not authorized for session"})
		return
	}
	if session.Status == models.SessionClosed {
		span.End()
		c.JSON(http.StatusForbidden, gin.H{"error": "session closed"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		span.End()
		h.logger.Warn("ws upgrade failed", zap.Int("session_id", sessionID), zap.Int("user_id", userID), zap.Error(err))
		return
	}
	info := h.connInfo(c.Request, span)
	span.End()

	wc := h.registry.ConnectToSession(sessionID, userID, h.transport(conn), info)
	h.registry.SendTo(wc, ControlEvent{
		Type:      TypeTutorChatConnect,
		SessionID: sessionID,
		UserID:    userID,
		ConnID:    wc.Info.ConnID,
		Timestamp: formatTimestamp(h.registry.Clock().Now()),
	})
	h.serve(ctx, conn, wc)
}

// authenticate returns the user behind the request token. Development
// builds accept a missing token as fallback.
func (h *Handler) authenticate(c *gin.Context, fallback int) (int, error) {
	token := bearerToken(c)
	if token == "" {
		if h.cfg.Development && fallback > 0 {
			return fallback, nil
		}
		return 0, errMissingToken
	}
	return h.auth.ValidateToken(token)
}

func bearerToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return c.Query("token")
}

func (h *Handler) connInfo(r *http.Request, span trace.Span) ConnInfo {
	return ConnInfo{
		ConnID:    newConnID(),
		DeviceID:  observability.DeviceIDFromRequest(r),
		IP:        observability.IPFromRequest(r),
		RequestID: observability.RequestIDFromRequest(r),
		TraceID:   span.SpanContext().TraceID().String(),
	}
}

func (h *Handler) transport(conn *websocket.Conn) Transport {
	if h.cfg.ReadLimit > 0 {
		conn.SetReadLimit(h.cfg.ReadLimit)
	}
	return newWSTransport(conn, h.cfg.WriteTimeout)
}

// serve runs the read loop for wc until the client leaves, the registry
// evicts it or the heartbeat gives up.
func (h *Handler) serve(ctx context.Context, conn *websocket.Conn, wc *Connection) {
	kind := string(wc.Channel)
	observability.IncWSActive(kind)
	observability.IncWSEvent(kind, "ws_connect")
	h.registry.publishWSEvent(ctx, wc, "ws_connect", "")

	defer func() {
		h.registry.Release(wc)
		observability.DecWSActive(kind)
		observability.IncWSEvent(kind, "ws_disconnect")
		h.registry.publishWSEvent(context.Background(), wc, "ws_disconnect", h.registry.CloseReason(wc))
		_ = conn.Close()
	}()

	frames := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case frames <- data:
			case <-wc.Done():
				return
			}
		}
	}()

	var heartbeat <-chan time.Time
	var timer clockwork.Timer
	if h.cfg.ReadTimeout > 0 {
		timer = h.registry.Clock().NewTimer(h.cfg.ReadTimeout)
		defer timer.Stop()
		heartbeat = timer.Chan()
	}

	missed := 0
	for {
		select {
		case <-wc.Done():
			return

		case err := <-readErr:
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent(kind, "ws_error")
				h.registry.publishWSEvent(ctx, wc, "ws_error", err.Error())
				h.logger.Debug("ws read ended",
					zap.Int("user_id", wc.UserID),
					zap.Int("session_id", wc.SessionID),
					zap.String("conn_id", wc.Info.ConnID),
					zap.Error(err),
				)
			}
			return

		case data := <-frames:
			missed = 0
			h.registry.Touch(wc)
			h.dispatcher.Dispatch(ctx, wc, data)
			if timer != nil {
				if !timer.Stop() {
					select {
					case <-timer.Chan():
					default:
					}
				}
				timer.Reset(h.cfg.ReadTimeout)
			}

		case <-heartbeat:
			if h.cfg.MaxMissedPings > 0 && missed >= h.cfg.MaxMissedPings {
				h.logger.Info("ws heartbeat timeout",
					zap.Int("user_id", wc.UserID),
					zap.Int("session_id", wc.SessionID),
					zap.Int("missed_pings", missed),
				)
				h.registry.drop(wc, ReasonHeartbeat)
				return
			}
			ping := ControlEvent{Type: TypePing, SessionID: wc.SessionID, Timestamp: formatTimestamp(h.registry.Clock().Now())}
			if !h.registry.SendTo(wc, ping).Delivered() {
				return
			}
			missed++
			timer.Reset(h.cfg.ReadTimeout)
		}
	}
}
