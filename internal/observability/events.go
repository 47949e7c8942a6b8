package observability

// Routing keys for published events.
const (
	RoutingWSGeneral = "ws_events.general"
	RoutingWSSession = "ws_events.sessions"
	RoutingAlerts    = "alerts.tutor"
)

type EventEnvelope struct {
	EventType string      `json:"event_type"`
	EventName string      `json:"event_name"`
	Payload   interface{} `json:"payload"`
}

// AlertPayload describes a tutor alert raised for a student message.
type AlertPayload struct {
	SessionID   int     `json:"session_id"`
	MessageID   int     `json:"message_id"`
	StudentID   int     `json:"student_id"`
	TutorID     int     `json:"tutor_id"`
	Priority    string  `json:"priority"`
	Emotion     string  `json:"emotion"`
	Style       string  `json:"style"`
	AlertReason *string `json:"alert_reason"`
	Delivered   bool    `json:"delivered"`
}

func BuildHeaders(requestID, traceID string) map[string]string {
	headers := map[string]string{}
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if traceID != "" {
		headers["trace_id"] = traceID
	}
	return headers
}
