// Package connection owns the persistent transport to the authority: the
// auth handshake, heartbeat, outbound queue, subscription replay, and the
// bounded fixed-delay reconnection protocol. It publishes every inbound
// domain event and every state transition on the event bus; it holds no
// domain state of its own.
package connection

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/vicinity-chat/vicinity-go/internal/events"
	"github.com/vicinity-chat/vicinity-go/internal/logging"
	"github.com/vicinity-chat/vicinity-go/internal/models"
	"github.com/vicinity-chat/vicinity-go/internal/observability"
	"github.com/vicinity-chat/vicinity-go/internal/tokenstore"
)

var (
	// ErrNoToken means the token store held no access token. Connect fails
	// closed without a transport attempt.
	ErrNoToken = errors.New("connection: no access token available")
	// ErrTokenExpired means the cached access token is past its expiry claim.
	ErrTokenExpired = errors.New("connection: access token expired")
	// ErrHandshakeTimeout means the auth handshake did not complete within
	// the watchdog window.
	ErrHandshakeTimeout = errors.New("connection: handshake timed out")
)

// AuthError is the server's handshake rejection. The caller, not this
// package, decides whether it means an expired session.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string {
	return "connection: authentication rejected: " + e.Message
}

// Options configures a Manager. Zero durations and counts take the
// protocol defaults.
type Options struct {
	URL                  string
	Dial                 Dialer
	HandshakeTimeout     time.Duration // default 15s
	HeartbeatInterval    time.Duration // default 30s
	ReconnectDelay       time.Duration // fixed, default 3s
	MaxReconnectAttempts int           // default 10
	QueueLimit           int           // default 128 outbound frames
	ClientInfo           models.ClientInfo
}

func (o *Options) applyDefaults() {
	if o.Dial == nil {
		o.Dial = WebSocketDialer()
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = 15 * time.Second
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = 30 * time.Second
	}
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = 3 * time.Second
	}
	if o.MaxReconnectAttempts <= 0 {
		o.MaxReconnectAttempts = 10
	}
	if o.QueueLimit <= 0 {
		o.QueueLimit = 128
	}
}

// Manager maintains the persistent connection. Construct one per session
// and pass it by reference; there is no package-level instance.
type Manager struct {
	opts    Options
	tokens  tokenstore.Store
	bus     *events.Bus
	logger  *logging.Logger
	metrics *observability.Metrics

	mu             sync.Mutex
	state          State
	conn           Conn
	gen            int
	attempts       int
	subscriptions  map[string]struct{}
	queue          []models.Frame
	backgrounded   bool
	closed         bool
	reconnectTimer *time.Timer
	heartbeatStop  chan struct{}
}

// NewManager creates a manager. It does not connect; call Connect.
func NewManager(opts Options, tokens tokenstore.Store, bus *events.Bus, logger *logging.Logger, metrics *observability.Metrics) *Manager {
	opts.applyDefaults()
	if metrics == nil {
		metrics = observability.NewMetrics()
	}
	return &Manager{
		opts:          opts,
		tokens:        tokens,
		bus:           bus,
		logger:        logger,
		metrics:       metrics,
		subscriptions: make(map[string]struct{}),
	}
}

// State returns the current connectivity.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Attempts returns the automatic reconnection counter.
func (m *Manager) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// QueuedFrames returns the outbound queue depth.
func (m *Manager) QueuedFrames() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// SetBackgrounded suppresses outbound heartbeats while the host
// application is backgrounded. Inbound pings are still answered.
func (m *Manager) SetBackgrounded(bg bool) {
	m.mu.Lock()
	m.backgrounded = bg
	m.mu.Unlock()
}

// Connect opens the transport and runs the auth handshake. It is a no-op
// when already connecting or connected. Without a usable token it fails
// closed: no transport attempt, state back to disconnected.
func (m *Manager) Connect(ctx context.Context) error {
	return m.connect(ctx, true)
}

// connect is the shared dial path. Automatic callers (reconnect timers) pass
// manual=false and yield to an explicit Disconnect: a timer goroutine that
// already fired when Disconnect ran re-checks closed under the lock here and
// backs off instead of re-dialing.
func (m *Manager) connect(ctx context.Context, manual bool) error {
	m.mu.Lock()
	if !manual && m.closed {
		m.mu.Unlock()
		return nil
	}
	if m.state == Connecting || m.state == Connected {
		m.mu.Unlock()
		return nil
	}
	m.closed = false
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	old := m.state
	m.state = Connecting
	m.mu.Unlock()
	m.emitState(old, Connecting)

	token, err := m.tokens.Get(ctx, tokenstore.KeyAccessToken)
	if err != nil || token == "" {
		m.setState(Disconnected)
		return ErrNoToken
	}
	if tokenstore.Expired(token, time.Now()) {
		m.setState(Disconnected)
		return ErrTokenExpired
	}

	conn, err := m.opts.Dial(ctx, m.opts.URL)
	if err != nil {
		m.logger.Error(ctx, "transport dial failed: %v", err)
		m.scheduleReconnect()
		return err
	}

	m.mu.Lock()
	m.gen++
	gen := m.gen
	m.conn = conn
	m.mu.Unlock()

	handshake := make(chan error, 1)
	go m.readLoop(conn, gen, token, handshake)

	// Opening the transport does not mean connected; the handshake decides,
	// under a watchdog.
	watchdog := time.NewTimer(m.opts.HandshakeTimeout)
	defer watchdog.Stop()

	select {
	case err := <-handshake:
		return err
	case <-watchdog.C:
		conn.Close()
		return ErrHandshakeTimeout
	case <-ctx.Done():
		conn.Close()
		return ctx.Err()
	}
}

// Reconnect is the manual path: it resets the attempt counter and connects
// unconditionally.
func (m *Manager) Reconnect(ctx context.Context) error {
	m.mu.Lock()
	m.attempts = 0
	m.closed = false
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	m.mu.Unlock()
	return m.Connect(ctx)
}

// Disconnect closes the transport and cancels every pending timer. No
// reconnection is attempted until the next Connect or Reconnect.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.closed = true
	m.gen++ // invalidates in-flight read loop callbacks
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	m.stopHeartbeatLocked()
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	old := m.state
	m.state = Disconnected
	m.mu.Unlock()
	m.emitState(old, Disconnected)
}

// Send transmits a frame, or queues it while not connected (and on a
// transmission failure). The returned bool reports whether the frame was
// queued rather than sent.
func (m *Manager) Send(frameType string, payload any) (queued bool, err error) {
	frame, err := models.NewFrame(frameType, payload)
	if err != nil {
		return false, err
	}

	m.mu.Lock()
	if m.state != Connected || m.conn == nil {
		m.enqueueLocked(frame)
		m.mu.Unlock()
		return true, nil
	}
	conn := m.conn
	m.mu.Unlock()

	if err := conn.WriteJSON(frame); err != nil {
		m.mu.Lock()
		m.enqueueLocked(frame)
		m.mu.Unlock()
		conn.Close()
		return true, nil
	}
	return false, nil
}

// Subscribe adds roomID to the remembered subscription set and sends the
// subscribe frame. The set is replayed on every successful handshake, so
// subscriptions survive reconnection.
func (m *Manager) Subscribe(roomID string) error {
	m.mu.Lock()
	m.subscriptions[roomID] = struct{}{}
	m.mu.Unlock()
	_, err := m.Send(models.FrameSubscribe, models.SubscriptionPayload{RoomID: roomID})
	return err
}

// Unsubscribe removes roomID from the remembered set and sends the
// unsubscribe frame.
func (m *Manager) Unsubscribe(roomID string) error {
	m.mu.Lock()
	delete(m.subscriptions, roomID)
	m.mu.Unlock()
	_, err := m.Send(models.FrameUnsubscribe, models.SubscriptionPayload{RoomID: roomID})
	return err
}

func (m *Manager) enqueueLocked(frame models.Frame) {
	if len(m.queue) >= m.opts.QueueLimit {
		// Bounded queue: the oldest frame gives way.
		m.queue = m.queue[1:]
		m.logger.Debug(context.Background(), "outbound queue full, dropped oldest frame")
	}
	m.queue = append(m.queue, frame)
	m.metrics.QueuedFrames.Set(float64(len(m.queue)))
}

func (m *Manager) readLoop(conn Conn, gen int, token string, handshake chan error) {
	for {
		var frame models.Frame
		if err := conn.ReadJSON(&frame); err != nil {
			resolveHandshake(handshake, err)
			m.teardown(gen, err, true)
			return
		}
		m.handleFrame(conn, gen, token, frame, handshake)
	}
}

func (m *Manager) handleFrame(conn Conn, gen int, token string, frame models.Frame, handshake chan error) {
	switch frame.Type {
	case models.FrameAuthRequired:
		auth, err := models.NewFrame(models.FrameAuth, models.AuthPayload{
			AccessToken: token,
			ClientInfo:  m.opts.ClientInfo,
		})
		if err == nil {
			err = conn.WriteJSON(auth)
		}
		if err != nil {
			conn.Close()
		}

	case models.FrameAuthSuccess:
		m.onAuthenticated(conn, gen)
		resolveHandshake(handshake, nil)

	case models.FrameAuthError:
		var payload models.AuthErrorPayload
		_ = json.Unmarshal(frame.Payload, &payload)
		authErr := &AuthError{Message: payload.Message}
		resolveHandshake(handshake, authErr)
		m.teardown(gen, authErr, false)

	case models.FramePing:
		pong, _ := models.NewFrame(models.FramePong, nil)
		if err := conn.WriteJSON(pong); err != nil {
			conn.Close()
		}

	case models.FramePong:
		// heartbeat acknowledgement

	default:
		m.dispatchEvent(frame)
	}
}

// onAuthenticated completes the handshake: connected state, counter reset,
// heartbeat, subscription replay, FIFO queue flush.
func (m *Manager) onAuthenticated(conn Conn, gen int) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	old := m.state
	m.state = Connected
	m.attempts = 0
	m.startHeartbeatLocked(conn)
	subs := make([]string, 0, len(m.subscriptions))
	for roomID := range m.subscriptions {
		subs = append(subs, roomID)
	}
	pending := m.queue
	m.queue = nil
	m.metrics.QueuedFrames.Set(0)
	m.mu.Unlock()
	m.emitState(old, Connected)

	for _, roomID := range subs {
		frame, _ := models.NewFrame(models.FrameSubscribe, models.SubscriptionPayload{RoomID: roomID})
		if err := conn.WriteJSON(frame); err != nil {
			conn.Close()
			return
		}
	}
	for i, frame := range pending {
		if err := conn.WriteJSON(frame); err != nil {
			m.mu.Lock()
			m.queue = append(pending[i:], m.queue...)
			m.metrics.QueuedFrames.Set(float64(len(m.queue)))
			m.mu.Unlock()
			conn.Close()
			return
		}
	}
}

// teardown is the single disconnection path. Stale generations are
// ignored so the watchdog, read loop, and auth failure cannot double-fire.
func (m *Manager) teardown(gen int, cause error, allowReconnect bool) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.gen++
	m.stopHeartbeatLocked()
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	old := m.state

	next := Disconnected
	if allowReconnect && !m.closed && m.attempts < m.opts.MaxReconnectAttempts {
		m.attempts++
		m.metrics.ReconnectAttempts.Inc()
		next = Reconnecting
		// Fixed delay, not exponential: reconnection latency stays bounded
		// and predictable for the chat surface.
		m.reconnectTimer = time.AfterFunc(m.opts.ReconnectDelay, func() {
			_ = m.connect(context.Background(), false)
		})
	}
	m.state = next
	attempts := m.attempts
	m.mu.Unlock()

	m.logger.Debug(context.Background(), "transport closed: state=%s attempts=%d cause=%v", next, attempts, cause)
	m.emitState(old, next)
}

// scheduleReconnect handles a dial failure, which never had a generation.
func (m *Manager) scheduleReconnect() {
	m.mu.Lock()
	old := m.state
	next := Disconnected
	if !m.closed && m.attempts < m.opts.MaxReconnectAttempts {
		m.attempts++
		m.metrics.ReconnectAttempts.Inc()
		next = Reconnecting
		m.reconnectTimer = time.AfterFunc(m.opts.ReconnectDelay, func() {
			_ = m.connect(context.Background(), false)
		})
	}
	m.state = next
	m.mu.Unlock()
	m.emitState(old, next)
}

func (m *Manager) startHeartbeatLocked(conn Conn) {
	m.stopHeartbeatLocked()
	stop := make(chan struct{})
	m.heartbeatStop = stop

	go func() {
		ticker := time.NewTicker(m.opts.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				m.mu.Lock()
				suppressed := m.backgrounded
				connected := m.state == Connected
				m.mu.Unlock()
				if !connected {
					return
				}
				if suppressed {
					continue
				}
				ping, _ := models.NewFrame(models.FramePing, nil)
				if err := conn.WriteJSON(ping); err != nil {
					conn.Close()
					return
				}
			}
		}
	}()
}

func (m *Manager) stopHeartbeatLocked() {
	if m.heartbeatStop != nil {
		close(m.heartbeatStop)
		m.heartbeatStop = nil
	}
}

func (m *Manager) dispatchEvent(frame models.Frame) {
	payload, err := DecodeEvent(frame)
	if err != nil {
		m.logger.Error(context.Background(), "failed to decode %s event: %v", frame.Type, err)
		return
	}
	m.metrics.PushEvents.WithLabelValues(frame.Type).Inc()
	m.bus.Emit(frame.Type, payload)
}

func (m *Manager) setState(next State) {
	m.mu.Lock()
	old := m.state
	m.state = next
	m.mu.Unlock()
	m.emitState(old, next)
}

func (m *Manager) emitState(old, next State) {
	if old == next {
		return
	}
	m.metrics.ConnectionState.Set(float64(next))
	m.logger.Info(context.Background(), "connection state: %s -> %s", old, next)
	m.bus.Emit(models.EventConnectionState, StateChange{Old: old, New: next})
}

// resolveHandshake delivers the handshake outcome at most once.
func resolveHandshake(handshake chan error, err error) {
	select {
	case handshake <- err:
	default:
	}
}
