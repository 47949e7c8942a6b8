package ws

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"tutor-chat-service/internal/models"
	"tutor-chat-service/internal/observability"
)

const (
	DefaultIdleTimeout   = 300 * time.Second
	DefaultSweepInterval = 60 * time.Second
)

// ErrNotConnected is reported for deliveries to absent recipients.
var ErrNotConnected = errors.New("recipient not connected")

// SessionLookup resolves a session's participants and status.
type SessionLookup interface {
	GetChatSession(ctx context.Context, sessionID int) (models.ChatSession, error)
}

// Delivery is the outcome of one send.
type Delivery struct {
	UserID int
	ConnID string
	Err    error
}

// Delivered reports whether the write succeeded.
func (d Delivery) Delivered() bool {
	return d.Err == nil
}

// Stats summarizes registry occupancy.
type Stats struct {
	ConnectedUsers    int `json:"connected_users"`
	ActiveSessions    int `json:"active_sessions"`
	TotalConnections  int `json:"total_connections"`
	TutorChatSessions int `json:"tutor_chat_sessions"`
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(clock clockwork.Clock) Option {
	return func(r *Registry) { r.clock = clock }
}

// WithIdleTimeout sets how long a connection may stay silent.
func WithIdleTimeout(d time.Duration) Option {
	return func(r *Registry) { r.idleTimeout = d }
}

// WithSweepInterval sets how often Run sweeps idle connections.
func WithSweepInterval(d time.Duration) Option {
	return func(r *Registry) { r.sweepInterval = d }
}

// WithLogger sets the registry logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

// Registry tracks live connections: one per user on the general channel
// and one per (session, user) pair on session channels.
type Registry struct {
	mu       sync.RWMutex
	general  map[int]*Connection
	sessions map[int]map[int]*Connection
	typing   map[int]map[int]struct{}

	lookup        SessionLookup
	clock         clockwork.Clock
	idleTimeout   time.Duration
	sweepInterval time.Duration
	logger        *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(lookup SessionLookup, opts ...Option) *Registry {
	r := &Registry{
		general:       make(map[int]*Connection),
		sessions:      make(map[int]map[int]*Connection),
		typing:        make(map[int]map[int]struct{}),
		lookup:        lookup,
		clock:         clockwork.NewRealClock(),
		idleTimeout:   DefaultIdleTimeout,
		sweepInterval: DefaultSweepInterval,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Clock returns the registry clock.
func (r *Registry) Clock() clockwork.Clock {
	return r.clock
}

// Connect registers t as userID's general connection, evicting any prior one.
func (r *Registry) Connect(userID int, t Transport, info ConnInfo) *Connection {
	c := r.newConnection(ChannelGeneral, 0, userID, t, info)

	r.mu.Lock()
	prev := r.general[userID]
	if prev != nil {
		r.evictLocked(prev, ReasonReplaced)
	}
	r.general[userID] = c
	r.armLocked(c)
	r.mu.Unlock()

	if prev != nil {
		r.closeTransport(prev)
	}
	r.logger.Info("ws connected",
		zap.Int("user_id", userID),
		zap.String("conn_id", c.Info.ConnID),
		zap.Bool("replaced", prev != nil),
	)
	return c
}

// ConnectToSession registers t for (sessionID, userID), evicting any prior
// connection for the same pair. General connections are unaffected.
func (r *Registry) ConnectToSession(sessionID, userID int, t Transport, info ConnInfo) *Connection {
	c := r.newConnection(ChannelSession, sessionID, userID, t, info)

	r.mu.Lock()
	prev := r.sessions[sessionID][userID]
	if prev != nil {
		r.evictLocked(prev, ReasonReplaced)
	}
	if _, ok := r.sessions[sessionID]; !ok {
		r.sessions[sessionID] = make(map[int]*Connection)
	}
	r.sessions[sessionID][userID] = c
	r.armLocked(c)
	r.mu.Unlock()

	if prev != nil {
		r.closeTransport(prev)
	}
	r.logger.Info("ws session connected",
		zap.Int("session_id", sessionID),
		zap.Int("user_id", userID),
		zap.String("conn_id", c.Info.ConnID),
		zap.Bool("replaced", prev != nil),
	)
	return c
}

// Disconnect removes userID's general connection. No-op when absent.
func (r *Registry) Disconnect(userID int) {
	r.mu.Lock()
	c := r.general[userID]
	evicted := c != nil && r.evictLocked(c, ReasonDisconnect)
	r.mu.Unlock()

	if evicted {
		r.closeTransport(c)
	}
}

// DisconnectFromSession removes the (sessionID, userID) connection. No-op
// when absent.
func (r *Registry) DisconnectFromSession(sessionID, userID int) {
	r.mu.Lock()
	c := r.sessions[sessionID][userID]
	evicted := c != nil && r.evictLocked(c, ReasonDisconnect)
	r.mu.Unlock()

	if evicted {
		r.closeTransport(c)
	}
}

// Release removes c if it is still the registered connection for its key.
// A connection that was already replaced or evicted is left alone.
func (r *Registry) Release(c *Connection) {
	r.drop(c, ReasonClosed)
}

// IsConnected reports whether userID has a live general connection.
func (r *Registry) IsConnected(userID int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.general[userID]
	return ok && c.state == StateConnected
}

// IsSessionConnected reports whether (sessionID, userID) has a live connection.
func (r *Registry) IsSessionConnected(sessionID, userID int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.sessions[sessionID][userID]
	return ok && c.state == StateConnected
}

// Lookup returns userID's live general connection.
func (r *Registry) Lookup(userID int) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.general[userID]
	if !ok || c.state != StateConnected {
		return nil, false
	}
	return c, true
}

// LookupSession returns the live connection for (sessionID, userID).
func (r *Registry) LookupSession(sessionID, userID int) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.sessions[sessionID][userID]
	if !ok || c.state != StateConnected {
		return nil, false
	}
	return c, true
}

// State returns c's lifecycle state.
func (r *Registry) State(c *Connection) State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return c.state
}

// LastActivity returns the last time a frame was received on c.
func (r *Registry) LastActivity(c *Connection) time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return c.lastActivity
}

// CloseReason returns why c left the registry, or "" while it is live.
func (r *Registry) CloseReason(c *Connection) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return c.closeReason
}

// Touch records activity on c and re-arms its idle timer.
func (r *Registry) Touch(c *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.state != StateConnected {
		return
	}
	c.lastActivity = r.clock.Now()
	r.armLocked(c)
}

// Send writes msg to userID's general connection. A missing recipient is
// a logged no-op; a failed write disconnects the recipient.
func (r *Registry) Send(userID int, msg any) Delivery {
	c, ok := r.Lookup(userID)
	if !ok {
		r.logger.Debug("ws send skipped, user not connected", zap.Int("user_id", userID))
		return Delivery{UserID: userID, Err: ErrNotConnected}
	}
	return r.SendTo(c, msg)
}

// SendTo writes msg to c. A failed write disconnects c.
func (r *Registry) SendTo(c *Connection, msg any) Delivery {
	d := Delivery{UserID: c.UserID, ConnID: c.Info.ConnID}
	if r.State(c) != StateConnected {
		d.Err = ErrNotConnected
		return d
	}
	if err := c.transport.WriteJSON(msg); err != nil {
		r.logger.Warn("ws write failed, disconnecting",
			zap.Int("user_id", c.UserID),
			zap.Int("session_id", c.SessionID),
			zap.String("conn_id", c.Info.ConnID),
			zap.Error(err),
		)
		if r.drop(c, ReasonWriteFailed) {
			r.publishWSEvent(context.Background(), c, "ws_error", err.Error())
			observability.IncWSEvent(string(c.Channel), "ws_error")
		}
		d.Err = err
	}
	return d
}

// BroadcastToSession resolves the session's student and tutor and sends msg
// to each connected participant other than exclude (0 excludes nobody).
// Write failures are collected, never returned.
func (r *Registry) BroadcastToSession(ctx context.Context, sessionID int, msg any, exclude int) ([]Delivery, error) {
	session, err := r.lookup.GetChatSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("resolve session %d: %w", sessionID, err)
	}
	return r.BroadcastToParticipants(session, msg, exclude), nil
}

// BroadcastToParticipants is BroadcastToSession for an already loaded session.
func (r *Registry) BroadcastToParticipants(session models.ChatSession, msg any, exclude int) []Delivery {
	deliveries := make([]Delivery, 0, 2)
	for _, userID := range session.Participants() {
		if userID == exclude {
			continue
		}
		c, ok := r.Lookup(userID)
		if !ok {
			continue
		}
		deliveries = append(deliveries, r.SendTo(c, msg))
	}
	return deliveries
}

// BroadcastToSessionChannel sends msg to every session-channel connection
// of sessionID other than exclude's.
func (r *Registry) BroadcastToSessionChannel(sessionID int, msg any, exclude int) []Delivery {
	r.mu.RLock()
	targets := make([]*Connection, 0, len(r.sessions[sessionID]))
	for userID, c := range r.sessions[sessionID] {
		if userID != exclude && c.state == StateConnected {
			targets = append(targets, c)
		}
	}
	r.mu.RUnlock()

	deliveries := make([]Delivery, 0, len(targets))
	for _, c := range targets {
		deliveries = append(deliveries, r.SendTo(c, msg))
	}
	return deliveries
}

// SetTyping updates sessionID's typing set for c's user. It reports false
// and changes nothing once c has been evicted, so typing state never
// outlives the connection that set it.
func (r *Registry) SetTyping(c *Connection, sessionID int, isTyping bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.state != StateConnected {
		return false
	}
	if isTyping {
		if _, ok := r.typing[sessionID]; !ok {
			r.typing[sessionID] = make(map[int]struct{})
		}
		r.typing[sessionID][c.UserID] = struct{}{}
		return true
	}
	r.removeTypingLocked(sessionID, c.UserID)
	return true
}

// TypingUsers lists who is typing in sessionID, sorted.
func (r *Registry) TypingUsers(sessionID int) []int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	users := make([]int, 0, len(r.typing[sessionID]))
	for userID := range r.typing[sessionID] {
		users = append(users, userID)
	}
	sort.Ints(users)
	return users
}

// IdleSweep evicts every connection silent for longer than the idle
// timeout and returns how many were evicted.
func (r *Registry) IdleSweep() int {
	now := r.clock.Now()

	r.mu.Lock()
	var stale []*Connection
	for _, c := range r.general {
		if now.Sub(c.lastActivity) > r.idleTimeout {
			stale = append(stale, c)
		}
	}
	for _, conns := range r.sessions {
		for _, c := range conns {
			if now.Sub(c.lastActivity) > r.idleTimeout {
				stale = append(stale, c)
			}
		}
	}
	evicted := stale[:0]
	for _, c := range stale {
		if r.evictLocked(c, ReasonIdleTimeout) {
			evicted = append(evicted, c)
		}
	}
	r.mu.Unlock()

	for _, c := range evicted {
		r.closeTransport(c)
		r.logger.Info("ws idle connection evicted",
			zap.Int("user_id", c.UserID),
			zap.Int("session_id", c.SessionID),
			zap.String("conn_id", c.Info.ConnID),
		)
	}
	return len(evicted)
}

// Run sweeps idle connections every sweep interval until ctx is done.
func (r *Registry) Run(ctx context.Context) {
	ticker := r.clock.NewTicker(r.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if n := r.IdleSweep(); n > 0 {
				r.logger.Info("ws idle sweep", zap.Int("evicted", n))
			}
		}
	}
}

// Stats reports registry occupancy. ActiveSessions counts sessions with
// someone typing.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sessionConns := 0
	for _, conns := range r.sessions {
		sessionConns += len(conns)
	}
	return Stats{
		ConnectedUsers:    len(r.general),
		ActiveSessions:    len(r.typing),
		TotalConnections:  len(r.general) + sessionConns,
		TutorChatSessions: len(r.sessions),
	}
}

// ConnectedUsers lists users with a general connection, sorted.
func (r *Registry) ConnectedUsers() []int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	users := make([]int, 0, len(r.general))
	for userID := range r.general {
		users = append(users, userID)
	}
	sort.Ints(users)
	return users
}

// Shutdown evicts and closes every connection.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	var all []*Connection
	for _, c := range r.general {
		all = append(all, c)
	}
	for _, conns := range r.sessions {
		for _, c := range conns {
			all = append(all, c)
		}
	}
	for _, c := range all {
		r.evictLocked(c, ReasonShutdown)
	}
	r.mu.Unlock()

	for _, c := range all {
		r.closeTransport(c)
	}
	r.logger.Info("ws registry shut down", zap.Int("closed", len(all)))
}

func (r *Registry) newConnection(channel Channel, sessionID, userID int, t Transport, info ConnInfo) *Connection {
	now := r.clock.Now()
	info.UserID = userID
	info.SessionID = sessionID
	if info.ConnID == "" {
		info.ConnID = newConnID()
	}
	if info.ConnectedAt.IsZero() {
		info.ConnectedAt = now
	}
	return &Connection{
		UserID:       userID,
		SessionID:    sessionID,
		Channel:      channel,
		Info:         info,
		transport:    t,
		connectedAt:  now,
		state:        StateConnected,
		lastActivity: now,
		done:         make(chan struct{}),
	}
}

// armLocked (re)starts c's idle timer. expire re-checks state and age so
// a timer racing Touch or a sweep never evicts twice. It runs on its own
// goroutine because the callback may fire while the clock holds its lock.
func (r *Registry) armLocked(c *Connection) {
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = r.clock.AfterFunc(r.idleTimeout, func() { go r.expire(c) })
}

func (r *Registry) expire(c *Connection) {
	r.mu.Lock()
	evicted := false
	if c.state == StateConnected && r.clock.Since(c.lastActivity) >= r.idleTimeout {
		evicted = r.evictLocked(c, ReasonIdleTimeout)
	}
	r.mu.Unlock()

	if evicted {
		r.closeTransport(c)
		r.logger.Info("ws idle timeout",
			zap.Int("user_id", c.UserID),
			zap.Int("session_id", c.SessionID),
			zap.String("conn_id", c.Info.ConnID),
		)
	}
}

// drop evicts c if it is live and closes its transport.
func (r *Registry) drop(c *Connection, reason string) bool {
	r.mu.Lock()
	evicted := r.evictLocked(c, reason)
	r.mu.Unlock()
	if evicted {
		r.closeTransport(c)
	}
	return evicted
}

// evictLocked moves c to StateDisconnected, cancels its timer, removes its
// bookkeeping and clears the user from every typing set. It reports false
// if c was already disconnected.
func (r *Registry) evictLocked(c *Connection, reason string) bool {
	if c.state != StateConnected {
		return false
	}
	c.state = StateDisconnected
	c.closeReason = reason
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}

	switch c.Channel {
	case ChannelGeneral:
		if r.general[c.UserID] == c {
			delete(r.general, c.UserID)
		}
	case ChannelSession:
		if conns, ok := r.sessions[c.SessionID]; ok && conns[c.UserID] == c {
			delete(conns, c.UserID)
			if len(conns) == 0 {
				delete(r.sessions, c.SessionID)
			}
		}
	}

	for sessionID := range r.typing {
		r.removeTypingLocked(sessionID, c.UserID)
	}
	close(c.done)
	return true
}

func (r *Registry) removeTypingLocked(sessionID, userID int) {
	users, ok := r.typing[sessionID]
	if !ok {
		return
	}
	delete(users, userID)
	if len(users) == 0 {
		delete(r.typing, sessionID)
	}
}

func (r *Registry) closeTransport(c *Connection) {
	if err := c.transport.Close(); err != nil {
		r.logger.Debug("ws transport close", zap.String("conn_id", c.Info.ConnID), zap.Error(err))
	}
}
