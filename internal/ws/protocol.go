package ws

import (
	"time"

	"tutor-chat-service/internal/analysis"
)

// Frame types.
const (
	TypeChatMessage       = "chat_message"
	TypeTutorChatMessage  = "tutor_chat_message"
	TypeTyping            = "typing"
	TypeTutorTyping       = "tutor_typing"
	TypeTypingIndicator   = "typing_indicator"
	TypeReadReceipt       = "read_receipt"
	TypeTutorReadReceipt  = "tutor_read_receipt"
	TypeAnalysisRequest   = "analysis_request"
	TypeAnalysisResponse  = "analysis_response"
	TypeAnalysisError     = "analysis_error"
	TypeSessionStatus     = "session_status"
	TypePing              = "ping"
	TypePong              = "pong"
	TypeError             = "error"
	TypeAlertNotification = "alert_notification"
	TypeTutorAlert        = "tutor_alert"
	TypeConnected         = "connection_established"
	TypeTutorChatConnect  = "tutor_chat_connected"
)

// Error codes carried by error frames.
const (
	CodeInvalidJSON     = "invalid_json"
	CodeMissingField    = "missing_field"
	CodeInvalidField    = "invalid_field"
	CodeSessionNotFound = "session_not_found"
	CodeNotParticipant  = "not_participant"
	CodeSessionInactive = "session_inactive"
	CodeSessionMismatch = "session_mismatch"
	CodeProcessing      = "processing_failed"
)

const (
	remitenteUser  = "user"
	remitenteTutor = "tutor"
)

// Frame is an inbound client frame. Only Type is mandatory; the remaining
// fields are required per type.
type Frame struct {
	Type      string `json:"type"`
	SessionID *int   `json:"session_id,omitempty"`
	Text      string `json:"text,omitempty"`
	Remitente string `json:"remitente,omitempty"`
	IsTyping  *bool  `json:"is_typing,omitempty"`
	MessageID *int   `json:"message_id,omitempty"`
	Status    string `json:"status,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// MessagePayload is a persisted chat message as broadcast to participants.
type MessagePayload struct {
	ID        int              `json:"id"`
	UserID    int              `json:"user_id"`
	Text      string           `json:"text"`
	Remitente string           `json:"remitente"`
	Timestamp string           `json:"timestamp"`
	Analysis  *analysis.Result `json:"analysis"`
}

// MessageEvent carries a new chat message.
type MessageEvent struct {
	Type      string         `json:"type"`
	SessionID int            `json:"session_id"`
	Message   MessagePayload `json:"message"`
}

// TypingEvent announces that a participant started or stopped typing.
type TypingEvent struct {
	Type      string `json:"type"`
	SessionID int    `json:"session_id"`
	UserID    int    `json:"user_id"`
	IsTyping  bool   `json:"is_typing"`
	Timestamp string `json:"timestamp"`
}

// ReceiptEvent acknowledges that a participant read a message.
type ReceiptEvent struct {
	Type      string `json:"type"`
	SessionID int    `json:"session_id"`
	MessageID int    `json:"message_id"`
	UserID    int    `json:"user_id"`
	Timestamp string `json:"timestamp"`
}

// StatusEvent announces a session status change.
type StatusEvent struct {
	Type      string `json:"type"`
	SessionID int    `json:"session_id"`
	Status    string `json:"status"`
	UserID    int    `json:"user_id"`
	Timestamp string `json:"timestamp"`
}

// AlertEvent notifies the assigned tutor of a high-risk student message.
type AlertEvent struct {
	Type      string          `json:"type"`
	SessionID int             `json:"session_id"`
	UserID    int             `json:"user_id"`
	MessageID int             `json:"message_id"`
	Priority  analysis.Tier   `json:"priority"`
	Analysis  analysis.Result `json:"analysis"`
	Timestamp string          `json:"timestamp"`
}

// AnalysisResponse answers an analysis_request privately.
type AnalysisResponse struct {
	Type            string                    `json:"type"`
	RequestID       string                    `json:"request_id,omitempty"`
	Analysis        *analysis.Result          `json:"analysis,omitempty"`
	Recommendations *analysis.Recommendations `json:"recommendations,omitempty"`
	Error           string                    `json:"error,omitempty"`
	Timestamp       string                    `json:"timestamp"`
}

// ControlEvent covers ping, pong and handshake confirmations.
type ControlEvent struct {
	Type      string `json:"type"`
	SessionID int    `json:"session_id,omitempty"`
	UserID    int    `json:"user_id,omitempty"`
	ConnID    string `json:"conn_id,omitempty"`
	Timestamp string `json:"timestamp"`
}

// ErrorEvent reports a frame that could not be handled.
type ErrorEvent struct {
	Type      string `json:"type"`
	SessionID int    `json:"session_id,omitempty"`
	Code      string `json:"code"`
	Error     string `json:"error"`
	FrameType string `json:"frame_type,omitempty"`
	Timestamp string `json:"timestamp"`
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
