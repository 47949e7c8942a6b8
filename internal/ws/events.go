package ws

import (
	"context"

	"tutor-chat-service/internal/observability"
)

func wsRoutingKey(channel Channel) string {
	if channel == ChannelSession {
		return observability.RoutingWSSession
	}
	return observability.RoutingWSGeneral
}

// publishWSEvent publishes a connection lifecycle event for c. Durations
// are measured on the registry clock.
func (r *Registry) publishWSEvent(ctx context.Context, c *Connection, event, reason string) {
	info := c.Info
	durationMS := int64(0)
	if event != "ws_connect" {
		durationMS = r.clock.Since(c.ConnectedAt()).Milliseconds()
	}

	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"kind":        string(c.Channel),
			"session_id":  c.SessionID,
			"event":       event,
			"conn_id":     info.ConnID,
			"duration_ms": durationMS,
			"reason":      reason,
		},
		"identity": map[string]interface{}{
			"user_id":   info.UserID,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}

	_ = observability.PublishEvent(ctx, wsRoutingKey(c.Channel), observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload:   payload,
	}, observability.BuildHeaders(info.RequestID, info.TraceID))
}
