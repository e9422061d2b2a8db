package connection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/voxmetric/pulse/internal/auth"
	"github.com/voxmetric/pulse/internal/session"
	"github.com/voxmetric/pulse/internal/wire"
)

// storeTimeout bounds session-store reads and writes so a slow store
// cannot stall dispatch.
const storeTimeout = 5 * time.Second

// errSuperseded is returned from a dial whose generation was replaced
// before it finished.
var errSuperseded = errors.New("dial superseded")

// Manager maintains the realtime connection and dispatches its events.
type Manager interface {
	// Connect establishes the connection, tearing down any existing
	// transport first. It returns after the first dial attempt; a failed
	// attempt schedules reconnects in the background.
	Connect(ctx context.Context) error

	// Disconnect closes the connection and stops reconnecting. The
	// manager can Connect again afterwards.
	Disconnect() error

	// Send marshals v to JSON and writes it to the open transport. While
	// not open the message is logged and dropped and Send returns
	// ErrNotConnected.
	Send(v any) error

	// Subscribe adds a topic to the persisted set and, while open, sends
	// the subscribe control frame. The set is replayed on every reconnect.
	Subscribe(topic string) error

	// Unsubscribe removes a topic from the persisted set and, while open,
	// sends the unsubscribe control frame.
	Unsubscribe(topic string) error

	// On registers a handler for an event name and returns its removal
	// token.
	On(event string, h Handler) Subscription

	// Off removes a previously registered handler. It reports whether a
	// handler was removed.
	Off(sub Subscription) bool

	// Emit dispatches an event to registered handlers synchronously, in
	// registration order.
	Emit(event string, ev Event)

	// State returns the current lifecycle state.
	State() State

	// Topics returns the persisted topic set in subscription order.
	Topics() []string

	// Frames returns a tap of every decoded data frame for downstream
	// consumers. Pong frames are filtered out. Sends never block; frames
	// are dropped when the tap is full.
	Frames() <-chan wire.Envelope

	// Stats returns current counters.
	Stats() ManagerStats

	// Close shuts the manager down permanently and closes the Frames
	// channel.
	Close(ctx context.Context) error
}

// manager implements the Manager interface.
type manager struct {
	cfg      Config
	provider auth.TokenProvider
	sessions session.Store
	logger   *slog.Logger

	handlers *registry
	frames   chan wire.Envelope

	runCtx    context.Context
	runCancel context.CancelFunc
	wg        sync.WaitGroup

	// Connection state
	mu           sync.Mutex
	state        State
	tr           Transport
	gen          uint64
	attempts     int
	retryTimer   *time.Timer
	closed       bool
	topicsLoaded bool
	topics       []string

	// Counters
	statsMu        sync.Mutex
	framesReceived uint64
	framesByKind   map[string]uint64
	framesDropped  uint64
	decodeErrors   uint64
	pingsSent      uint64
	pongsReceived  uint64
	sendsDropped   uint64
	lastPongAt     time.Time
}

// NewManager creates a connection manager. sessions may be nil, in which
// case the topic set lives only in memory.
func NewManager(cfg Config, provider auth.TokenProvider, sessions session.Store, logger *slog.Logger) Manager {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.TokenTimeout <= 0 {
		cfg.TokenTimeout = 10 * time.Second
	}
	if cfg.FrameBuffer <= 0 {
		cfg.FrameBuffer = 256
	}
	if cfg.Reconnect.BaseDelay <= 0 {
		cfg.Reconnect.BaseDelay = time.Second
	}
	if cfg.Reconnect.MaxDelay <= 0 {
		cfg.Reconnect.MaxDelay = 30 * time.Second
	}

	topics := cfg.Topics
	if topics == nil {
		topics = wire.DefaultTopics()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &manager{
		cfg:          cfg,
		provider:     provider,
		sessions:     sessions,
		logger:       logger,
		handlers:     newRegistry(logger),
		frames:       make(chan wire.Envelope, cfg.FrameBuffer),
		runCtx:       ctx,
		runCancel:    cancel,
		state:        StateIdle,
		topics:       append([]string(nil), topics...),
		framesByKind: make(map[string]uint64),
	}
}

// Connect establishes the connection.
func (m *manager) Connect(ctx context.Context) error {
	if !m.provider.IsAuthenticated() {
		m.logger.Warn("connect refused, no credentials")
		err := fmt.Errorf("connect: %w", auth.ErrNotAuthenticated)
		m.handlers.emit(EventError, Event{Name: EventError, Err: err})
		return err
	}

	m.loadStoredTopics(ctx)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrAlreadyClosed
	}
	m.stopRetryLocked()
	if m.tr != nil {
		m.logger.Debug("replacing existing transport", "gen", m.gen)
		m.tr.Close()
		m.tr = nil
	}
	m.attempts = 0
	gen := m.beginDialLocked()
	m.mu.Unlock()

	return m.dial(ctx, gen)
}

// Disconnect closes the connection and stops reconnecting.
func (m *manager) Disconnect() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrAlreadyClosed
	}
	m.stopRetryLocked()
	m.gen++ // Invalidate loops, pending retries, and in-flight dials
	m.attempts = m.cfg.Reconnect.MaxAttempts
	active := m.state == StateOpen || m.state == StateConnecting
	tr := m.tr
	m.tr = nil
	m.state = StateClosed
	m.mu.Unlock()

	if tr != nil {
		tr.Close()
	}

	if active {
		m.handlers.emit(EventDisconnected, Event{Name: EventDisconnected})
	}

	m.logger.Info("realtime disconnected")
	return nil
}

// Send marshals v and writes it to the open transport.
func (m *manager) Send(v any) error {
	m.mu.Lock()
	tr := m.tr
	open := m.state == StateOpen && tr != nil
	m.mu.Unlock()

	if !open {
		m.statsMu.Lock()
		m.sendsDropped++
		m.statsMu.Unlock()
		m.logger.Debug("dropping send while not connected")
		return ErrNotConnected
	}

	data, err := wire.Encode(v)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	if err := tr.Send(data); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	return nil
}

// Subscribe adds a topic to the persisted set. Topics already in the set
// are ignored.
func (m *manager) Subscribe(topic string) error {
	if topic == "" {
		return fmt.Errorf("subscribe: empty topic")
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrAlreadyClosed
	}
	added := false
	if !containsTopic(m.topics, topic) {
		m.topics = append(m.topics, topic)
		added = true
	}
	topics := append([]string(nil), m.topics...)
	tr := m.tr
	open := m.state == StateOpen && tr != nil
	m.mu.Unlock()

	if !added {
		return nil
	}

	m.persistTopics(topics)

	if !open {
		// Recorded only; replayed when a transport opens
		return nil
	}
	if err := m.sendControl(tr, wire.Subscribe(topic)); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return nil
}

// Unsubscribe removes a topic from the persisted set.
func (m *manager) Unsubscribe(topic string) error {
	if topic == "" {
		return fmt.Errorf("unsubscribe: empty topic")
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrAlreadyClosed
	}
	removed := false
	for i, t := range m.topics {
		if t == topic {
			m.topics = append(m.topics[:i:i], m.topics[i+1:]...)
			removed = true
			break
		}
	}
	topics := append([]string(nil), m.topics...)
	tr := m.tr
	open := m.state == StateOpen && tr != nil
	m.mu.Unlock()

	if !removed {
		return nil
	}

	m.persistTopics(topics)

	if !open {
		return nil
	}
	if err := m.sendControl(tr, wire.Unsubscribe(topic)); err != nil {
		return fmt.Errorf("unsubscribe %s: %w", topic, err)
	}
	return nil
}

// On registers an event handler.
func (m *manager) On(event string, h Handler) Subscription {
	return m.handlers.on(event, h)
}

// Off removes an event handler.
func (m *manager) Off(sub Subscription) bool {
	return m.handlers.off(sub)
}

// Emit dispatches an event to registered handlers.
func (m *manager) Emit(event string, ev Event) {
	ev.Name = event
	m.handlers.emit(event, ev)
}

// State returns the current lifecycle state.
func (m *manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Topics returns the persisted topic set in subscription order.
func (m *manager) Topics() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.topics...)
}

// Frames returns the data frame tap.
func (m *manager) Frames() <-chan wire.Envelope {
	return m.frames
}

// Stats returns current counters.
func (m *manager) Stats() ManagerStats {
	m.mu.Lock()
	st := ManagerStats{
		State:             m.state,
		Generation:        m.gen,
		ReconnectAttempts: m.attempts,
		Topics:            len(m.topics),
	}
	m.mu.Unlock()

	m.statsMu.Lock()
	st.FramesReceived = m.framesReceived
	st.FramesByKind = make(map[string]uint64, len(m.framesByKind))
	for k, v := range m.framesByKind {
		st.FramesByKind[k] = v
	}
	st.FramesDropped = m.framesDropped
	st.DecodeErrors = m.decodeErrors
	st.PingsSent = m.pingsSent
	st.PongsReceived = m.pongsReceived
	st.SendsDropped = m.sendsDropped
	st.LastPongAt = m.lastPongAt
	m.statsMu.Unlock()

	st.HandlerPanics = m.handlers.panicCount()

	return st
}

// Close shuts the manager down permanently.
func (m *manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrAlreadyClosed
	}
	m.closed = true
	m.stopRetryLocked()
	m.gen++
	active := m.state == StateOpen || m.state == StateConnecting
	tr := m.tr
	m.tr = nil
	m.state = StateClosed
	m.mu.Unlock()

	if tr != nil {
		tr.Close()
	}

	m.runCancel()

	// Wait for loops with timeout. The frames channel closes only after
	// the loops exit, so a frame in flight can never hit a closed channel.
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		close(m.frames)
	case <-ctx.Done():
		m.logger.Warn("shutdown timeout, forcing close")
		go func() {
			<-done
			close(m.frames)
		}()
	}

	if active {
		m.handlers.emit(EventDisconnected, Event{Name: EventDisconnected})
	}

	m.logger.Info("connection manager stopped")
	return nil
}

// beginDialLocked advances the generation and marks the manager
// connecting. Caller holds mu.
func (m *manager) beginDialLocked() uint64 {
	m.gen++
	m.state = StateConnecting
	return m.gen
}

// stopRetryLocked cancels a pending reconnect timer. Caller holds mu.
func (m *manager) stopRetryLocked() {
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
}

// loadStoredTopics merges topics persisted by an earlier run into the
// in-memory set. Runs once per manager.
func (m *manager) loadStoredTopics(ctx context.Context) {
	m.mu.Lock()
	if m.sessions == nil || m.topicsLoaded {
		m.mu.Unlock()
		return
	}
	m.topicsLoaded = true
	m.mu.Unlock()

	lctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	stored, err := m.sessions.LoadTopics(lctx)
	if err != nil {
		m.logger.Warn("loading stored topics failed", "error", err)
		return
	}

	m.mu.Lock()
	for _, topic := range stored {
		if !containsTopic(m.topics, topic) {
			m.topics = append(m.topics, topic)
		}
	}
	m.mu.Unlock()
}

// dial fetches a token, opens a transport for the given generation, and
// starts its loops. Failures feed the reconnect schedule.
func (m *manager) dial(ctx context.Context, gen uint64) error {
	dialURL, err := m.authorizedURL(ctx)
	if err != nil {
		m.dialFailed(gen, err)
		return err
	}

	tr := NewTransport(TransportConfig{
		URL:              dialURL,
		HandshakeTimeout: m.cfg.HandshakeTimeout,
		WriteTimeout:     m.cfg.WriteTimeout,
		BufferSize:       m.cfg.FrameBuffer,
	}, m.logger.With("gen", gen))

	if err := tr.Connect(ctx); err != nil {
		m.dialFailed(gen, err)
		return err
	}

	m.mu.Lock()
	if m.closed || gen != m.gen {
		m.mu.Unlock()
		tr.Close()
		return errSuperseded
	}
	m.tr = tr
	m.state = StateOpen
	m.attempts = 0
	topics := append([]string(nil), m.topics...)
	m.mu.Unlock()

	m.statsMu.Lock()
	m.lastPongAt = time.Now()
	m.statsMu.Unlock()

	m.logger.Info("realtime connected", "url", m.cfg.URL, "gen", gen)

	// Replay the topic set before handlers learn about the connection, so
	// the gateway streams every subscribed topic from the first event on.
	for _, topic := range topics {
		if err := m.sendControl(tr, wire.Subscribe(topic)); err != nil {
			m.logger.Warn("subscribe replay failed", "topic", topic, "error", err)
		}
	}

	m.handlers.emit(EventConnected, Event{Name: EventConnected})

	m.wg.Add(2)
	go m.readLoop(tr, gen)
	go m.heartbeatLoop(tr, gen)

	return nil
}

// authorizedURL fetches a fresh token and splices it into the gateway URL
// as the token query parameter.
func (m *manager) authorizedURL(ctx context.Context) (string, error) {
	tctx, cancel := context.WithTimeout(ctx, m.cfg.TokenTimeout)
	defer cancel()

	token, err := m.provider.Token(tctx)
	if err != nil {
		return "", fmt.Errorf("fetch realtime token: %w", err)
	}

	u, err := url.Parse(m.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("parse gateway url: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// dialFailed consumes a reconnect attempt after a failed dial and
// schedules the next one.
func (m *manager) dialFailed(gen uint64, cause error) {
	m.mu.Lock()
	if m.closed || gen != m.gen {
		m.mu.Unlock()
		return
	}
	exhausted := m.scheduleRetryLocked()
	m.mu.Unlock()

	m.handlers.emit(EventError, Event{Name: EventError, Err: cause})
	m.handlers.emit(EventDisconnected, Event{Name: EventDisconnected})
	if exhausted {
		m.logger.Error("reconnect attempts exhausted", "error", cause)
		m.handlers.emit(EventError, Event{Name: EventError, Err: ErrReconnectExhausted})
	}
}

// scheduleRetryLocked advances the attempt counter and either arms the
// retry timer or reports exhaustion. The state reads Closed while the
// timer waits; the redial flips it back to Connecting. Caller holds mu.
func (m *manager) scheduleRetryLocked() (exhausted bool) {
	m.attempts++
	m.state = StateClosed
	if m.attempts > m.cfg.Reconnect.MaxAttempts {
		return true
	}

	delay := m.cfg.Reconnect.DelayFor(m.attempts)
	expect := m.gen
	attempt := m.attempts
	m.retryTimer = time.AfterFunc(delay, func() {
		m.retry(expect, attempt)
	})

	m.logger.Info("reconnect scheduled", "attempt", attempt, "delay", delay)
	return false
}

// retry runs when the backoff timer fires.
func (m *manager) retry(expect uint64, attempt int) {
	m.mu.Lock()
	if m.closed || m.gen != expect {
		m.mu.Unlock()
		return
	}
	m.retryTimer = nil
	gen := m.beginDialLocked()
	m.mu.Unlock()

	m.logger.Info("attempting reconnection", "attempt", attempt)
	m.dial(m.runCtx, gen)
}

// transportDown handles the end of a transport's life. Stale generations
// are ignored, so the read loop, the heartbeat loop, and forced teardowns
// can all report the same death safely.
func (m *manager) transportDown(gen uint64, cause error) {
	m.mu.Lock()
	if m.closed || gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.gen++ // The sibling loop and any in-flight send are now stale
	if m.tr != nil {
		m.tr.Close()
		m.tr = nil
	}
	wasOpen := m.state == StateOpen

	reconnect := m.provider.IsAuthenticated()
	var exhausted bool
	if reconnect {
		exhausted = m.scheduleRetryLocked()
	} else {
		m.state = StateClosed
	}
	m.mu.Unlock()

	if !reconnect {
		m.logger.Warn("credentials missing, not reconnecting")
	}
	if cause != nil {
		m.handlers.emit(EventError, Event{Name: EventError, Err: cause})
	}
	if wasOpen {
		m.handlers.emit(EventDisconnected, Event{Name: EventDisconnected})
	}
	if exhausted {
		m.logger.Error("reconnect attempts exhausted")
		m.handlers.emit(EventError, Event{Name: EventError, Err: ErrReconnectExhausted})
	}
}

// readLoop consumes one transport generation until it dies.
func (m *manager) readLoop(tr Transport, gen uint64) {
	defer m.wg.Done()

	for {
		select {
		case <-m.runCtx.Done():
			return

		case <-tr.Done():
			m.transportDown(gen, nil)
			return

		case err := <-tr.Errors():
			cause := err
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				// The gateway closed politely; reconnect without raising
				cause = nil
			}
			m.transportDown(gen, cause)
			return

		case frame := <-tr.Frames():
			m.handleFrame(frame, gen)
		}
	}
}

// handleFrame decodes and dispatches one frame from the given generation.
func (m *manager) handleFrame(frame RawFrame, gen uint64) {
	m.mu.Lock()
	current := !m.closed && gen == m.gen
	m.mu.Unlock()
	if !current {
		// The frame belongs to a replaced transport
		return
	}

	env, err := wire.Decode(frame.Data, frame.ReceivedAt)
	if err != nil {
		m.statsMu.Lock()
		m.decodeErrors++
		m.statsMu.Unlock()
		m.logger.Warn("dropping undecodable frame", "error", err, "size", len(frame.Data))
		return
	}
	env.Generation = gen

	m.statsMu.Lock()
	m.framesReceived++
	m.framesByKind[string(env.Kind)]++
	if env.Kind == wire.KindPong {
		m.pongsReceived++
		m.lastPongAt = frame.ReceivedAt
		m.statsMu.Unlock()
		// Heartbeat bookkeeping only, never dispatched
		return
	}
	m.statsMu.Unlock()

	if env.Kind == wire.KindConnection {
		m.recordSession(env)
	}

	// Feed the journal tap without ever blocking dispatch
	select {
	case m.frames <- env:
	default:
		m.statsMu.Lock()
		m.framesDropped++
		m.statsMu.Unlock()
	}

	name := string(env.Kind)
	if env.Kind == wire.KindUnknown {
		name = EventMessage
	}
	m.handlers.emit(name, Event{Name: name, Envelope: env})
}

// recordSession stores the gateway-assigned session ID from a connection
// frame.
func (m *manager) recordSession(env wire.Envelope) {
	if m.sessions == nil {
		return
	}

	var data wire.ConnectionData
	if err := json.Unmarshal(env.Data, &data); err != nil || data.SessionID == "" {
		return
	}

	sess := session.Session{
		ID:        data.SessionID,
		StartedAt: env.ReceivedAt,
		Topics:    m.Topics(),
	}

	go func() {
		ctx, cancel := context.WithTimeout(m.runCtx, storeTimeout)
		defer cancel()
		if err := m.sessions.SaveSession(ctx, sess); err != nil {
			m.logger.Warn("saving session failed", "session_id", sess.ID, "error", err)
		}
	}()
}

// heartbeatLoop sends the JSON ping and tears the transport down when
// pongs stop coming back.
func (m *manager) heartbeatLoop(tr Transport, gen uint64) {
	defer m.wg.Done()

	if m.cfg.HeartbeatInterval <= 0 {
		return
	}

	ticker := time.NewTicker(m.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.runCtx.Done():
			return

		case <-tr.Done():
			return

		case <-ticker.C:
			if data, err := wire.Encode(wire.Ping()); err == nil {
				if err := tr.Send(data); err != nil {
					m.logger.Debug("heartbeat send failed", "error", err)
				} else {
					m.statsMu.Lock()
					m.pingsSent++
					m.statsMu.Unlock()
				}
			}

			if m.cfg.PongTimeout <= 0 {
				continue
			}

			m.statsMu.Lock()
			lastPong := m.lastPongAt
			m.statsMu.Unlock()

			if time.Since(lastPong) > m.cfg.PongTimeout {
				m.logger.Warn("no pong received, tearing down transport",
					"last_pong", lastPong,
					"timeout", m.cfg.PongTimeout,
				)
				m.transportDown(gen, ErrStaleConnection)
				return
			}
		}
	}
}

// persistTopics saves the topic set to the session store.
func (m *manager) persistTopics(topics []string) {
	if m.sessions == nil {
		return
	}

	ctx, cancel := context.WithTimeout(m.runCtx, storeTimeout)
	defer cancel()

	if err := m.sessions.SaveTopics(ctx, topics); err != nil {
		m.logger.Warn("persisting topics failed", "error", err)
	}
}

// sendControl marshals and writes a control frame.
func (m *manager) sendControl(tr Transport, ctrl wire.Control) error {
	data, err := wire.Encode(ctrl)
	if err != nil {
		return err
	}
	return tr.Send(data)
}

func containsTopic(topics []string, topic string) bool {
	for _, t := range topics {
		if t == topic {
			return true
		}
	}
	return false
}
