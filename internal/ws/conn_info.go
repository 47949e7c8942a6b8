package ws

import "time"

// ConnInfo carries handshake metadata for logging and published events.
type ConnInfo struct {
	ConnID      string
	UserID      int
	SessionID   int
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}
