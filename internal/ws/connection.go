package ws

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Channel distinguishes the general per-user channel from tutor-chat
// session channels. It doubles as the metrics kind label.
type Channel string

const (
	ChannelGeneral Channel = "general"
	ChannelSession Channel = "session"
)

// State is the lifecycle state of a Connection. A Connection only moves
// from StateConnected to StateDisconnected; reconnecting creates a new one.
type State int

const (
	StateDisconnected State = iota
	StateConnected
)

func (s State) String() string {
	if s == StateConnected {
		return "connected"
	}
	return "disconnected"
}

// Close reasons recorded on eviction.
const (
	ReasonClosed      = "closed"
	ReasonReplaced    = "replaced"
	ReasonIdleTimeout = "idle_timeout"
	ReasonWriteFailed = "write_failed"
	ReasonHeartbeat   = "heartbeat_timeout"
	ReasonDisconnect  = "disconnect"
	ReasonShutdown    = "shutdown"
)

// Connection is one live transport registered with the Registry. Mutable
// fields are guarded by the owning Registry's lock.
type Connection struct {
	UserID    int
	SessionID int
	Channel   Channel
	Info      ConnInfo

	transport   Transport
	connectedAt time.Time

	state        State
	lastActivity time.Time
	timer        clockwork.Timer
	closeReason  string
	done         chan struct{}
}

// Done is closed when the connection leaves the registry.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// ConnectedAt is the registration time.
func (c *Connection) ConnectedAt() time.Time {
	return c.connectedAt
}
