package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"tutor-chat-service/internal/analysis"
	"tutor-chat-service/internal/models"
	"tutor-chat-service/internal/observability"
	"tutor-chat-service/internal/repositories"
	"tutor-chat-service/internal/telemetry"
)

// MessageAnalyzer runs the risk-scoring pipeline on a message.
type MessageAnalyzer interface {
	Analyze(ctx context.Context, text string, history []string) (analysis.Result, error)
}

// frameError is a handling failure reported back to the sender.
type frameError struct {
	code string
	msg  string
	err  error
}

func (e *frameError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.code, e.err)
	}
	return e.code + ": " + e.msg
}

func (e *frameError) Unwrap() error { return e.err }

func missingField(name string) error {
	return &frameError{code: CodeMissingField, msg: "Campo requerido: " + name}
}

func invalidField(name string) error {
	return &frameError{code: CodeInvalidField, msg: "Valor inválido: " + name}
}

func processingFailed(err error) error {
	return &frameError{code: CodeProcessing, msg: "Error procesando mensaje", err: err}
}

type frameHandler func(ctx context.Context, c *Connection, f Frame) error

// sessionScope is the session a frame applies to. session is only loaded
// when authorization or participant resolution needs it.
type sessionScope struct {
	id      int
	session models.ChatSession
	loaded  bool
}

// Dispatcher routes inbound frames by type.
type Dispatcher struct {
	registry *Registry
	sessions SessionLookup
	messages repositories.MessageRepository
	analyzer MessageAnalyzer
	audit    *telemetry.AuditEmitter
	logger   *zap.Logger
	handlers map[string]frameHandler
}

// NewDispatcher constructs a Dispatcher. audit may be nil.
func NewDispatcher(
	registry *Registry,
	sessions SessionLookup,
	messages repositories.MessageRepository,
	analyzer MessageAnalyzer,
	audit *telemetry.AuditEmitter,
	logger *zap.Logger,
) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{
		registry: registry,
		sessions: sessions,
		messages: messages,
		analyzer: analyzer,
		audit:    audit,
		logger:   logger,
	}
	d.handlers = map[string]frameHandler{
		TypeChatMessage:      d.handleChat,
		TypeTutorChatMessage: d.handleChat,
		TypeTyping:           d.handleTyping,
		TypeTutorTyping:      d.handleTyping,
		TypeTypingIndicator:  d.handleTyping,
		TypeReadReceipt:      d.handleReadReceipt,
		TypeTutorReadReceipt: d.handleReadReceipt,
		TypeAnalysisRequest:  d.handleAnalysisRequest,
		TypeSessionStatus:    d.handleSessionStatus,
		TypePing:             d.handlePing,
		TypePong:             func(context.Context, *Connection, Frame) error { return nil },
	}
	return d
}

// Dispatch handles one raw frame from c. Failures are logged and answered
// with an error frame; unknown types are dropped. It never closes c.
// Frames read before c was evicted are discarded.
func (d *Dispatcher) Dispatch(ctx context.Context, c *Connection, raw []byte) {
	if d.registry.State(c) != StateConnected {
		observability.IncWSFrame("evicted", "dropped")
		return
	}

	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		d.logger.Warn("ws malformed frame",
			zap.Int("user_id", c.UserID),
			zap.Int("session_id", c.SessionID),
			zap.String("conn_id", c.Info.ConnID),
			zap.Error(err),
		)
		observability.IncWSFrame("invalid", "error")
		d.replyError(c, c.SessionID, "", &frameError{code: CodeInvalidJSON, msg: "Formato de mensaje inválido", err: err})
		return
	}

	handler, ok := d.handlers[frame.Type]
	if !ok {
		d.logger.Warn("ws unknown frame type dropped",
			zap.String("type", frame.Type),
			zap.Int("user_id", c.UserID),
			zap.Int("session_id", c.SessionID),
			zap.String("conn_id", c.Info.ConnID),
		)
		observability.IncWSFrame("unknown", "dropped")
		return
	}

	ctx, span := otel.Tracer("tutor-chat-service/ws").Start(ctx, "ws.frame", trace.WithAttributes(
		attribute.String("ws.frame_type", frame.Type),
		attribute.String("ws.channel", string(c.Channel)),
		attribute.Int("ws.user_id", c.UserID),
	))
	defer span.End()

	if err := handler(ctx, c, frame); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		sessionID := c.SessionID
		if frame.SessionID != nil {
			sessionID = *frame.SessionID
		}
		d.logger.Error("ws frame failed",
			zap.String("type", frame.Type),
			zap.Int("user_id", c.UserID),
			zap.Int("session_id", sessionID),
			zap.String("conn_id", c.Info.ConnID),
			zap.String("request_id", c.Info.RequestID),
			zap.Error(err),
		)
		observability.IncWSFrame(frame.Type, "error")
		d.replyError(c, sessionID, frame.Type, err)
		return
	}
	observability.IncWSFrame(frame.Type, "ok")
}

func (d *Dispatcher) handleChat(ctx context.Context, c *Connection, f Frame) error {
	text := strings.TrimSpace(f.Text)
	if text == "" {
		return missingField("text")
	}
	if f.Type == TypeTutorChatMessage && f.Remitente == "" {
		return missingField("remitente")
	}

	scope, err := d.scope(ctx, c, f, true)
	if err != nil {
		return err
	}
	session := scope.session
	if session.Status != models.SessionActive {
		return &frameError{code: CodeSessionInactive, msg: "La sesión no está activa"}
	}

	isStudent := c.UserID == session.StudentID
	role, remitente := models.RoleTutor, remitenteTutor
	if isStudent {
		role, remitente = models.RoleUser, remitenteUser
	}
	if f.Remitente != "" && f.Remitente != remitente {
		d.logger.Debug("ws remitente overridden by identity",
			zap.String("claimed", f.Remitente),
			zap.String("actual", remitente),
			zap.Int("user_id", c.UserID),
		)
	}

	var result *analysis.Result
	if isStudent {
		history, err := d.messages.RecentUserTexts(ctx, session.ID, analysis.ContextWindow)
		if err != nil {
			return processingFailed(fmt.Errorf("load history: %w", err))
		}
		r, err := d.analyzer.Analyze(ctx, text, history)
		if err != nil {
			return processingFailed(fmt.Errorf("analyze: %w", err))
		}
		result = &r
	}

	var msg models.Message
	if result != nil {
		msg, err = d.messages.CreateAnalyzedMessage(ctx, session.ID, c.UserID, text, role, *result)
	} else {
		msg, err = d.messages.CreateMessage(ctx, session.ID, c.UserID, text, role)
	}
	if err != nil {
		return processingFailed(fmt.Errorf("create message: %w", err))
	}
	if result != nil {
		observability.IncMessageAnalyzed(string(result.Priority))
	}

	createdAt := msg.CreatedAt
	if createdAt.IsZero() {
		createdAt = d.registry.Clock().Now()
	}
	d.fanOut(c, scope, MessageEvent{
		Type:      f.Type,
		SessionID: session.ID,
		Message: MessagePayload{
			ID:        msg.ID,
			UserID:    c.UserID,
			Text:      text,
			Remitente: remitente,
			Timestamp: formatTimestamp(createdAt),
			Analysis:  result,
		},
	}, 0)

	if result != nil && result.Alert {
		d.notifyTutor(ctx, c, session, msg.ID, *result)
	}
	return nil
}

func (d *Dispatcher) handleTyping(ctx context.Context, c *Connection, f Frame) error {
	if f.IsTyping == nil {
		return missingField("is_typing")
	}
	scope, err := d.scope(ctx, c, f, false)
	if err != nil {
		return err
	}

	if !d.registry.SetTyping(c, scope.id, *f.IsTyping) {
		return nil
	}

	outType := TypeTypingIndicator
	if c.Channel == ChannelSession {
		outType = TypeTutorTyping
	}
	d.fanOut(c, scope, TypingEvent{
		Type:      outType,
		SessionID: scope.id,
		UserID:    c.UserID,
		IsTyping:  *f.IsTyping,
		Timestamp: d.now(),
	}, c.UserID)
	return nil
}

func (d *Dispatcher) handleReadReceipt(ctx context.Context, c *Connection, f Frame) error {
	if f.MessageID == nil {
		return missingField("message_id")
	}
	if *f.MessageID <= 0 {
		return invalidField("message_id")
	}
	scope, err := d.scope(ctx, c, f, false)
	if err != nil {
		return err
	}
	d.fanOut(c, scope, ReceiptEvent{
		Type:      f.Type,
		SessionID: scope.id,
		MessageID: *f.MessageID,
		UserID:    c.UserID,
		Timestamp: d.now(),
	}, 0)
	return nil
}

func (d *Dispatcher) handleSessionStatus(ctx context.Context, c *Connection, f Frame) error {
	if f.Status == "" {
		return missingField("status")
	}
	if !models.ValidSessionStatus(f.Status) {
		return invalidField("status")
	}
	scope, err := d.scope(ctx, c, f, false)
	if err != nil {
		return err
	}
	d.fanOut(c, scope, StatusEvent{
		Type:      TypeSessionStatus,
		SessionID: scope.id,
		Status:    f.Status,
		UserID:    c.UserID,
		Timestamp: d.now(),
	}, 0)
	return nil
}

// handleAnalysisRequest scores text and replies privately. Nothing is
// persisted or broadcast.
func (d *Dispatcher) handleAnalysisRequest(ctx context.Context, c *Connection, f Frame) error {
	text := strings.TrimSpace(f.Text)
	if text == "" {
		return missingField("text")
	}

	result, err := d.analyzer.Analyze(ctx, text, nil)
	if err != nil {
		d.logger.Error("ws analysis request failed",
			zap.Int("user_id", c.UserID),
			zap.String("request_id", f.RequestID),
			zap.Error(err),
		)
		d.registry.SendTo(c, AnalysisResponse{
			Type:      TypeAnalysisError,
			RequestID: f.RequestID,
			Error:     "Error en el análisis",
			Timestamp: d.now(),
		})
		return nil
	}

	recommendations := analysis.Recommend(result)
	d.registry.SendTo(c, AnalysisResponse{
		Type:            TypeAnalysisResponse,
		RequestID:       f.RequestID,
		Analysis:        &result,
		Recommendations: &recommendations,
		Timestamp:       d.now(),
	})
	return nil
}

func (d *Dispatcher) handlePing(_ context.Context, c *Connection, _ Frame) error {
	d.registry.SendTo(c, ControlEvent{Type: TypePong, SessionID: c.SessionID, Timestamp: d.now()})
	return nil
}

// scope resolves the session a frame targets and checks that the sender
// belongs to it. Session-channel connections were authorized at handshake,
// so their session is only loaded when load is set.
func (d *Dispatcher) scope(ctx context.Context, c *Connection, f Frame, load bool) (sessionScope, error) {
	var id int
	switch c.Channel {
	case ChannelSession:
		if f.SessionID != nil && *f.SessionID != c.SessionID {
			return sessionScope{}, &frameError{code: CodeSessionMismatch, msg: "La sesión no corresponde a esta conexión"}
		}
		id = c.SessionID
	default:
		if f.SessionID == nil {
			return sessionScope{}, missingField("session_id")
		}
		if *f.SessionID <= 0 {
			return sessionScope{}, invalidField("session_id")
		}
		id = *f.SessionID
		load = true
	}

	scope := sessionScope{id: id}
	if !load {
		return scope, nil
	}

	session, err := d.sessions.GetChatSession(ctx, id)
	if errors.Is(err, repositories.ErrSessionNotFound) {
		return sessionScope{}, &frameError{code: CodeSessionNotFound, msg: "Sesión no encontrada", err: err}
	}
	if err != nil {
		return sessionScope{}, processingFailed(fmt.Errorf("load session: %w", err))
	}
	if !session.IsParticipant(c.UserID) {
		return sessionScope{}, &frameError{code: CodeNotParticipant, msg: "Sin permisos para esta sesión"}
	}
	scope.session = session
	scope.loaded = true
	return scope, nil
}

// fanOut delivers msg on the sender's channel: session-channel frames go to
// the session's channel connections, general frames to the participants'
// general connections.
func (d *Dispatcher) fanOut(c *Connection, scope sessionScope, msg any, exclude int) {
	var deliveries []Delivery
	if c.Channel == ChannelSession {
		deliveries = d.registry.BroadcastToSessionChannel(scope.id, msg, exclude)
	} else {
		deliveries = d.registry.BroadcastToParticipants(scope.session, msg, exclude)
	}

	failed := 0
	for _, delivery := range deliveries {
		if !delivery.Delivered() {
			failed++
		}
	}
	if failed > 0 {
		d.logger.Debug("ws broadcast partially failed",
			zap.Int("session_id", scope.id),
			zap.Int("recipients", len(deliveries)),
			zap.Int("failed", failed),
		)
	}
}

// notifyTutor pushes an alert to the session's assigned tutor, preferring
// the tutor's general connection and falling back to the session channel.
func (d *Dispatcher) notifyTutor(ctx context.Context, c *Connection, session models.ChatSession, messageID int, result analysis.Result) {
	if session.TutorID == nil {
		d.logger.Info("ws alert without assigned tutor",
			zap.Int("session_id", session.ID),
			zap.Int("message_id", messageID),
			zap.String("priority", string(result.Priority)),
		)
		return
	}
	tutorID := *session.TutorID

	alertType := TypeAlertNotification
	if c.Channel == ChannelSession {
		alertType = TypeTutorAlert
	}
	event := AlertEvent{
		Type:      alertType,
		SessionID: session.ID,
		UserID:    c.UserID,
		MessageID: messageID,
		Priority:  result.Priority,
		Analysis:  result,
		Timestamp: d.now(),
	}

	delivered := d.registry.Send(tutorID, event).Delivered()
	if !delivered {
		if tc, ok := d.registry.LookupSession(session.ID, tutorID); ok {
			delivered = d.registry.SendTo(tc, event).Delivered()
		}
	}
	observability.IncAlert(string(c.Channel), delivered)

	_ = observability.PublishEvent(ctx, observability.RoutingAlerts, observability.EventEnvelope{
		EventType: "alerts",
		EventName: alertType,
		Payload: observability.AlertPayload{
			SessionID:   session.ID,
			MessageID:   messageID,
			StudentID:   session.StudentID,
			TutorID:     tutorID,
			Priority:    string(result.Priority),
			Emotion:     result.Emotion,
			Style:       result.Style,
			AlertReason: result.AlertReason,
			Delivered:   delivered,
		},
	}, observability.BuildHeaders(c.Info.RequestID, c.Info.TraceID))

	d.audit.Emit(ctx, "WARN",
		fmt.Sprintf("tutor alert session=%d message=%d priority=%s delivered=%t", session.ID, messageID, result.Priority, delivered),
		c.Info.RequestID, telemetry.UserRef(c.UserID))
}

func (d *Dispatcher) replyError(c *Connection, sessionID int, frameType string, err error) {
	var fe *frameError
	if !errors.As(err, &fe) {
		fe = &frameError{code: CodeProcessing, msg: "Error procesando mensaje", err: err}
	}
	d.registry.SendTo(c, ErrorEvent{
		Type:      TypeError,
		SessionID: sessionID,
		Code:      fe.code,
		Error:     fe.msg,
		FrameType: frameType,
		Timestamp: d.now(),
	})
}

func (d *Dispatcher) now() string {
	return formatTimestamp(d.registry.Clock().Now())
}
